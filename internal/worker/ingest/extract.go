package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/hitoshi/threadflat/internal/archive"
)

// cancelCheckEvery はキャンセルを確認するレコード間隔。
const cancelCheckEvery = 1000

// ExtractSummary は展開処理1回分の集計結果。
type ExtractSummary struct {
	Files    int // 展開したファイル数
	Skipped  int // 対象外として読み飛ばしたファイル数
	Records  int // 書き出したレコード数
	BadLines int // JSONとして解釈できず読み飛ばした行数
}

// Extractor は.zstダンプを同じ場所の.jsonlに展開する。
type Extractor struct {
	logger        *slog.Logger
	progressEvery int
	recursive     bool
}

// NewExtractor はExtractorの新しいインスタンスを生成する。
// progressEveryが0の場合は進捗ログを出力しない。
func NewExtractor(logger *slog.Logger, progressEvery int, recursive bool) *Extractor {
	return &Extractor{
		logger:        logger,
		progressEvery: progressEvery,
		recursive:     recursive,
	}
}

// OutputPath は.zstファイルの展開先パスを返す。
func OutputPath(path string) string {
	return strings.TrimSuffix(path, ".zst") + ".jsonl"
}

// Run は指定されたファイルとディレクトリを展開する。
// .jsonlと未対応の形式は読み飛ばす。1ファイルの失敗は記録して次に進み、
// 最後にまとめてエラーとして返す。
func (e *Extractor) Run(ctx context.Context, paths []string) (*ExtractSummary, error) {
	files, err := ExpandPaths(paths, e.recursive)
	if err != nil {
		return nil, err
	}

	sum := &ExtractSummary{}
	var errs []error

	for i, path := range files {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		if archive.DetectFormat(path) != archive.FormatZstd {
			e.logger.Info("対象外のファイルを読み飛ばします", slog.String("path", path))
			sum.Skipped++
			continue
		}

		e.logger.Info("展開を開始します",
			slog.Int("file", i+1),
			slog.Int("files", len(files)),
			slog.String("path", path),
		)

		records, bad, err := e.ExtractFile(ctx, path)
		sum.Records += records
		sum.BadLines += bad
		if err != nil {
			if ctx.Err() != nil {
				return sum, ctx.Err()
			}
			e.logger.Error("展開に失敗しました",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			errs = append(errs, err)
			continue
		}
		sum.Files++
	}

	return sum, errors.Join(errs...)
}

// ExtractFile は1つの.zstファイルを展開し、書き出したレコード数と読み飛ばした行数を返す。
// 一時ファイルに書き出してから置き換えるため、途中で失敗しても不完全な.jsonlは残らない。
func (e *Extractor) ExtractFile(ctx context.Context, path string) (int, int, error) {
	out := OutputPath(path)
	if out == path {
		return 0, 0, fmt.Errorf("%s: %w", path, archive.ErrUnknownFormat)
	}

	stream, err := archive.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer stream.Close()

	tmp := out + ".tmp"
	w, err := archive.Create(tmp)
	if err != nil {
		return 0, 0, err
	}

	records, bad, err := e.copyRecords(ctx, path, stream, w)
	if cerr := w.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return records, bad, err
	}

	if err := os.Rename(tmp, out); err != nil {
		os.Remove(tmp)
		return records, bad, fmt.Errorf("failed to rename output: %w", err)
	}

	e.logger.Info("展開が完了しました",
		slog.String("path", path),
		slog.String("output", out),
		slog.Int("records", records),
		slog.Int("bad_lines", bad),
	)
	return records, bad, nil
}

func (e *Extractor) copyRecords(ctx context.Context, path string, stream *archive.Stream, w *archive.Writer) (int, int, error) {
	records, bad := 0, 0
	for {
		raw, err := stream.Next()
		if err == io.EOF {
			return records, bad, nil
		}
		var lineErr *archive.LineError
		if errors.As(err, &lineErr) {
			e.logger.Warn("不正な行を読み飛ばします",
				slog.String("path", path),
				slog.Int("line", lineErr.Line),
				slog.String("error", lineErr.Err.Error()),
			)
			bad++
			continue
		}
		if err != nil {
			return records, bad, err
		}

		if err := w.Write(raw); err != nil {
			return records, bad, err
		}
		records++

		if records%cancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return records, bad, err
			}
		}
		if e.progressEvery > 0 && records%e.progressEvery == 0 {
			e.logger.Info("進捗", slog.String("path", path), slog.Int("records", records))
		}
	}
}
