// Package archive はReddit アーカイブダンプ（.zst / .jsonl）をレコード列として読み書きする。
//
// .zst は1行1JSONのNDJSONをzstdで圧縮したもので、arctic_shift 形式のダンプは
// 最大2GiBのウィンドウサイズで圧縮されているため、デコーダのウィンドウ上限を引き上げて開く。
package archive

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/hitoshi/threadflat/internal/model"
)

const (
	// maxWindowSize はarctic_shiftダンプが要求するzstdウィンドウサイズ（2GiB）。
	maxWindowSize = 1 << 31
	// maxLineSize は1レコード（1行）の最大バイト数。
	maxLineSize = 64 << 20
)

// ErrUnknownFormat は拡張子から形式を判定できないファイルを示す。
var ErrUnknownFormat = errors.New("unknown archive format")

// Format はアーカイブファイルの形式。
type Format int

const (
	// FormatUnknown は未対応の形式。
	FormatUnknown Format = iota
	// FormatZstd はzstd圧縮されたNDJSON。
	FormatZstd
	// FormatJSONL は非圧縮のNDJSON。
	FormatJSONL
)

// DetectFormat は拡張子からファイル形式を判定する。
func DetectFormat(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".zst":
		return FormatZstd
	case ".jsonl", ".ndjson", ".json":
		return FormatJSONL
	default:
		return FormatUnknown
	}
}

// Kind はファイルが保持するレコードの種別。
type Kind string

const (
	// KindSubmissions は投稿ダンプ。
	KindSubmissions Kind = "submissions"
	// KindComments は返信（コメント）ダンプ。
	KindComments Kind = "comments"
	// KindUnknown は名前から種別を判定できないファイル。
	KindUnknown Kind = ""
)

// DetectKind はファイル名の "_submissions" / "_comments" マーカーから種別を判定する。
func DetectKind(path string) Kind {
	base := filepath.Base(path)
	switch {
	case strings.Contains(base, "_submissions"):
		return KindSubmissions
	case strings.Contains(base, "_comments"):
		return KindComments
	default:
		return KindUnknown
	}
}

// Stream はアーカイブから1行ずつレコードを取り出すリーダー。
type Stream struct {
	scanner *bufio.Scanner
	closers []io.Closer
	line    int
}

// Open はファイルを開き、形式に応じたStreamを返す。
// 未対応の拡張子の場合はErrUnknownFormatを返す。
func Open(path string) (*Stream, error) {
	format := DetectFormat(path)
	if format == FormatUnknown {
		return nil, fmt.Errorf("%s: %w", path, ErrUnknownFormat)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}

	s, err := NewStream(f, format)
	if err != nil {
		f.Close()
		return nil, err
	}
	s.closers = append(s.closers, f)
	return s, nil
}

// NewStream はr からformat形式のレコードを読み出すStreamを生成する。
// rのクローズは呼び出し側の責務。
func NewStream(r io.Reader, format Format) (*Stream, error) {
	s := &Stream{}

	switch format {
	case FormatZstd:
		dec, err := zstd.NewReader(r, zstd.WithDecoderMaxWindow(maxWindowSize))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
		}
		s.closers = append(s.closers, decoderCloser{dec})
		r = dec
	case FormatJSONL:
	default:
		return nil, ErrUnknownFormat
	}

	s.scanner = bufio.NewScanner(r)
	s.scanner.Buffer(make([]byte, 0, 1<<20), maxLineSize)
	return s, nil
}

// Next は次のレコードを返す。終端ではio.EOFを返す。
// 空行は読み飛ばす。JSONとして解釈できない行は行番号付きのエラーを返すが、
// Streamは次の行から読み続けられる。
func (s *Stream) Next() (model.Raw, error) {
	for s.scanner.Scan() {
		s.line++
		line := bytes.TrimSpace(s.scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		dec := json.NewDecoder(bytes.NewReader(line))
		dec.UseNumber()
		var raw model.Raw
		if err := dec.Decode(&raw); err != nil {
			return nil, &LineError{Line: s.line, Err: err}
		}
		return raw, nil
	}

	if err := s.scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read archive at line %d: %w", s.line+1, err)
	}
	return nil, io.EOF
}

// Line は直近に読み出した行番号（1始まり）を返す。
func (s *Stream) Line() int {
	return s.line
}

// Close は内部のデコーダとファイルを閉じる。
func (s *Stream) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LineError は1行分のデコード失敗を表す。読み込み自体は継続できる。
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

type decoderCloser struct {
	dec *zstd.Decoder
}

func (d decoderCloser) Close() error {
	d.dec.Close()
	return nil
}
