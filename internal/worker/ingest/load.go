package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/threadflat/internal/archive"
	"github.com/hitoshi/threadflat/internal/metrics"
	"github.com/hitoshi/threadflat/internal/model"
	"github.com/hitoshi/threadflat/internal/repository"
)

// LoadSummary は取り込み処理1回分の集計結果。
type LoadSummary struct {
	Files       int
	Skipped     int
	Submissions int64
	Replies     int64
	Rejected    int64
}

// Loader はアーカイブダンプのレコードをストアに一括登録する。
type Loader struct {
	subRepo       repository.SubmissionRepository
	replyRepo     repository.ReplyRepository
	metrics       metrics.MetricsCollector
	logger        *slog.Logger
	batchSize     int
	maxConcurrent int
	progressEvery int
	recursive     bool
}

// NewLoader はLoaderの新しいインスタンスを生成する。
// batchSizeが0以下の場合は1000、maxConcurrentが0以下の場合は1を使用する。
func NewLoader(
	subRepo repository.SubmissionRepository,
	replyRepo repository.ReplyRepository,
	m metrics.MetricsCollector,
	logger *slog.Logger,
	batchSize, maxConcurrent, progressEvery int,
	recursive bool,
) *Loader {
	if batchSize <= 0 {
		batchSize = 1000
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Loader{
		subRepo:       subRepo,
		replyRepo:     replyRepo,
		metrics:       m,
		logger:        logger,
		batchSize:     batchSize,
		maxConcurrent: maxConcurrent,
		progressEvery: progressEvery,
		recursive:     recursive,
	}
}

// KindOf はファイル名からレコード種別を判定する。
// "_submissions" を含まないファイルは返信ダンプとして扱う。
func KindOf(path string) archive.Kind {
	if archive.DetectKind(path) == archive.KindSubmissions {
		return archive.KindSubmissions
	}
	return archive.KindComments
}

// Run は指定されたファイルを最大maxConcurrent並列で取り込む。
// いずれかのファイルでストアへの書き込みに失敗した場合は残りを中断してエラーを返す。
func (l *Loader) Run(ctx context.Context, paths []string) (*LoadSummary, error) {
	files, err := ExpandPaths(paths, l.recursive)
	if err != nil {
		return nil, err
	}

	var submissions, replies, rejected atomic.Int64
	sum := &LoadSummary{}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.maxConcurrent)

	for _, path := range files {
		if archive.DetectFormat(path) == archive.FormatUnknown {
			l.logger.Info("対象外のファイルを読み飛ばします", slog.String("path", path))
			sum.Skipped++
			continue
		}
		sum.Files++

		path := path
		g.Go(func() error {
			res, err := l.LoadFile(gctx, path)
			if res != nil {
				if res.Kind == archive.KindSubmissions {
					submissions.Add(res.Records)
				} else {
					replies.Add(res.Records)
				}
				rejected.Add(res.Rejected)
			}
			return err
		})
	}

	err = g.Wait()

	sum.Submissions = submissions.Load()
	sum.Replies = replies.Load()
	sum.Rejected = rejected.Load()

	l.logger.Info("取り込みが完了しました",
		slog.Int("files", sum.Files),
		slog.Int("skipped", sum.Skipped),
		slog.Int64("submissions", sum.Submissions),
		slog.Int64("replies", sum.Replies),
		slog.Int64("rejected", sum.Rejected),
	)

	return sum, err
}

// FileResult は1ファイル分の取り込み結果。
type FileResult struct {
	Kind     archive.Kind
	Records  int64
	Rejected int64
}

// LoadFile は1ファイルのレコードをバッチ単位でストアに登録する。
// 不正な行と必須フィールドの欠けたレコードは警告を出して読み飛ばす。
func (l *Loader) LoadFile(ctx context.Context, path string) (*FileResult, error) {
	kind := KindOf(path)
	res := &FileResult{Kind: kind}

	stream, err := archive.Open(path)
	if err != nil {
		return res, err
	}
	defer stream.Close()

	l.logger.Info("取り込みを開始します",
		slog.String("path", path),
		slog.String("kind", string(kind)),
	)

	b := &batch{kind: kind}
	flush := func() error {
		n := b.len()
		if n == 0 {
			return nil
		}
		if err := b.flush(ctx, l.subRepo, l.replyRepo); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		res.Records += int64(n)
		l.metrics.RecordRecordsIngested(string(kind), n)
		return nil
	}

	rows := 0
	for {
		raw, err := stream.Next()
		if err == io.EOF {
			break
		}
		var lineErr *archive.LineError
		if errors.As(err, &lineErr) {
			l.reject(path, kind, lineErr.Line, lineErr.Err)
			res.Rejected++
			continue
		}
		if err != nil {
			return res, fmt.Errorf("%s: %w", path, err)
		}

		if err := b.add(raw); err != nil {
			l.reject(path, kind, stream.Line(), err)
			res.Rejected++
			continue
		}

		if b.len() >= l.batchSize {
			if err := flush(); err != nil {
				return res, err
			}
		}

		rows++
		if l.progressEvery > 0 && rows%l.progressEvery == 0 {
			l.logger.Info("進捗", slog.String("path", path), slog.Int("rows", rows))
		}
	}

	if err := flush(); err != nil {
		return res, err
	}

	l.logger.Info("ファイルの取り込みが完了しました",
		slog.String("path", path),
		slog.Int64("records", res.Records),
		slog.Int64("rejected", res.Rejected),
	)
	return res, nil
}

func (l *Loader) reject(path string, kind archive.Kind, line int, err error) {
	l.logger.Warn("レコードを読み飛ばします",
		slog.String("path", path),
		slog.Int("line", line),
		slog.String("error", err.Error()),
	)
	l.metrics.RecordRecordRejected(string(kind))
}

// batch は種別ごとに変換済みのレコードを溜める。
type batch struct {
	kind    archive.Kind
	subs    []*model.Submission
	replies []*model.Reply
}

func (b *batch) add(raw model.Raw) error {
	if b.kind == archive.KindSubmissions {
		s, err := model.SubmissionFromRaw(raw)
		if err != nil {
			return err
		}
		b.subs = append(b.subs, s)
		return nil
	}

	r, err := model.ReplyFromRaw(raw)
	if err != nil {
		return err
	}
	b.replies = append(b.replies, r)
	return nil
}

func (b *batch) len() int {
	return len(b.subs) + len(b.replies)
}

func (b *batch) flush(ctx context.Context, subRepo repository.SubmissionRepository, replyRepo repository.ReplyRepository) error {
	var err error
	if len(b.subs) > 0 {
		err = subRepo.UpsertBatch(ctx, b.subs)
	} else if len(b.replies) > 0 {
		err = replyRepo.InsertBatch(ctx, b.replies)
	}
	b.subs = b.subs[:0]
	b.replies = b.replies[:0]
	return err
}
