package archive

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
)

// Writer はレコードをNDJSONとして書き出す。
// キーはソート順、非ASCII文字とHTML記号はエスケープせずにそのまま出力する。
// 複数のgoroutineから同時に呼び出してよく、1レコード単位で書き込みを直列化する。
type Writer struct {
	mu    sync.Mutex
	w     *bufio.Writer
	enc   *json.Encoder
	c     io.Closer
	count int
}

// NewWriter はwに書き出すWriterを生成する。
func NewWriter(w io.Writer) *Writer {
	bw := bufio.NewWriterSize(w, 1<<20)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	return &Writer{w: bw, enc: enc}
}

// Create はpathにファイルを作成してWriterを返す。既存ファイルは上書きする。
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	w := NewWriter(f)
	w.c = f
	return w, nil
}

// Write は1レコードを1行として書き出す。
// map値はencoding/jsonによりキーがソートされる。
func (w *Writer) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.enc.Encode(v); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	w.count++
	return nil
}

// Count はこれまでに書き出したレコード数を返す。
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Flush はバッファを書き出す。
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.w.Flush()
}

// Close はバッファを書き出し、Createで開いたファイルを閉じる。
func (w *Writer) Close() error {
	if err := w.Flush(); err != nil {
		if w.c != nil {
			w.c.Close()
		}
		return fmt.Errorf("failed to flush output: %w", err)
	}
	if w.c != nil {
		return w.c.Close()
	}
	return nil
}
