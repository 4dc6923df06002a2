package archive

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"
)

const sampleJSONL = `{"id":"r1","link_id":"t3_abc","parent_id":"t3_abc","body":"hello","score":3}

{"id":"r2","link_id":"t3_abc","parent_id":"t1_r1","body":"[removed]","score":"1"}
`

func compress(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf)
	if err != nil {
		t.Fatalf("failed to create zstd writer: %v", err)
	}
	if _, err := enc.Write([]byte(s)); err != nil {
		t.Fatalf("failed to compress: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("failed to close zstd writer: %v", err)
	}
	return buf.Bytes()
}

func readAll(t *testing.T, s *Stream) []string {
	t.Helper()
	var ids []string
	for {
		raw, err := s.Next()
		if err == io.EOF {
			return ids
		}
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		id, _ := raw.String("id")
		ids = append(ids, id)
	}
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		path string
		want Format
	}{
		{"golang_comments.zst", FormatZstd},
		{"golang_comments.ZST", FormatZstd},
		{"golang_comments.jsonl", FormatJSONL},
		{"dump.ndjson", FormatJSONL},
		{"golang.db", FormatUnknown},
		{"README", FormatUnknown},
	}

	for _, tt := range tests {
		if got := DetectFormat(tt.path); got != tt.want {
			t.Errorf("DetectFormat(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestDetectKind(t *testing.T) {
	tests := []struct {
		path string
		want Kind
	}{
		{"/data/careerguidance_submissions.zst", KindSubmissions},
		{"careerguidance_comments.jsonl", KindComments},
		{"careerguidance.jsonl", KindUnknown},
	}

	for _, tt := range tests {
		if got := DetectKind(tt.path); got != tt.want {
			t.Errorf("DetectKind(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestNewStream_JSONL(t *testing.T) {
	s, err := NewStream(strings.NewReader(sampleJSONL), FormatJSONL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Close()

	ids := readAll(t, s)
	if len(ids) != 2 || ids[0] != "r1" || ids[1] != "r2" {
		t.Errorf("ids = %q, want [r1 r2]", ids)
	}
	if s.Line() != 3 {
		t.Errorf("Line() = %d, want 3", s.Line())
	}
}

func TestNewStream_Zstd(t *testing.T) {
	s, err := NewStream(bytes.NewReader(compress(t, sampleJSONL)), FormatZstd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Close()

	ids := readAll(t, s)
	if len(ids) != 2 || ids[0] != "r1" || ids[1] != "r2" {
		t.Errorf("ids = %q, want [r1 r2]", ids)
	}
}

func TestNewStream_KeepsNumbers(t *testing.T) {
	s, err := NewStream(strings.NewReader(sampleJSONL), FormatJSONL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	raw, err := s.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := raw.Int64("score"); got != 3 {
		t.Errorf("score = %d, want 3", got)
	}
}

func TestNext_InvalidLineIsRecoverable(t *testing.T) {
	input := "{\"id\":\"a\"}\nnot json\n{\"id\":\"b\"}\n"
	s, err := NewStream(strings.NewReader(input), FormatJSONL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := s.Next(); err != nil {
		t.Fatalf("first record: unexpected error: %v", err)
	}

	_, err = s.Next()
	var lineErr *LineError
	if !errors.As(err, &lineErr) {
		t.Fatalf("expected LineError, got %v", err)
	}
	if lineErr.Line != 2 {
		t.Errorf("LineError.Line = %d, want 2", lineErr.Line)
	}

	raw, err := s.Next()
	if err != nil {
		t.Fatalf("third record: unexpected error: %v", err)
	}
	if id, _ := raw.String("id"); id != "b" {
		t.Errorf("id = %q, want b", id)
	}
}

func TestNext_LongLine(t *testing.T) {
	body := strings.Repeat("x", 2<<20)
	input := `{"id":"big","body":"` + body + `"}` + "\n"

	s, err := NewStream(strings.NewReader(input), FormatJSONL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	raw, err := s.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, _ := raw.String("body"); len(got) != len(body) {
		t.Errorf("len(body) = %d, want %d", len(got), len(body))
	}
}

func TestOpen_UnknownFormat(t *testing.T) {
	_, err := Open("golang.db")
	if !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("err = %v, want ErrUnknownFormat", err)
	}
}

func TestOpen_ZstdFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "golang_comments.zst")
	if err := os.WriteFile(path, compress(t, sampleJSONL), 0o644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ids := readAll(t, s)
	if err := s.Close(); err != nil {
		t.Errorf("Close returned error: %v", err)
	}
	if len(ids) != 2 {
		t.Errorf("ids = %q, want 2 records", ids)
	}
}

func TestWriter_SortedKeysAndUnescaped(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	if err := w.Write(map[string]any{"text": "日本語 <b> & more", "a": 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := `{"a":1,"text":"日本語 <b> & more"}` + "\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
	if w.Count() != 1 {
		t.Errorf("Count() = %d, want 1", w.Count())
	}
}

func TestWriter_RoundTripThroughStream(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	s, err := NewStream(strings.NewReader(sampleJSONL), FormatJSONL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for {
		raw, err := s.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := w.Write(raw); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	first := strings.SplitN(buf.String(), "\n", 2)[0]
	want := `{"body":"hello","id":"r1","link_id":"t3_abc","parent_id":"t3_abc","score":3}`
	if first != want {
		t.Errorf("first line = %q, want %q", first, want)
	}
}
