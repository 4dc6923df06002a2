package threads

import (
	"context"

	"github.com/hitoshi/threadflat/internal/archive"
	"github.com/hitoshi/threadflat/internal/model"
	"github.com/hitoshi/threadflat/internal/repository"
)

// Sink は完成した文書の出力先。
// 複数のgoroutineから同時に呼び出されるため、実装は文書単位で書き込みを直列化すること。
type Sink interface {
	Write(ctx context.Context, doc *model.ThreadDocument) error
}

// JSONLSink は文書を {"text": 文書} の1行として書き出す。
type JSONLSink struct {
	w *archive.Writer
}

// NewJSONLSink はJSONLSinkを生成する。wのクローズは呼び出し側が行う。
func NewJSONLSink(w *archive.Writer) *JSONLSink {
	return &JSONLSink{w: w}
}

// Write は文書を1行書き出す。
func (s *JSONLSink) Write(_ context.Context, doc *model.ThreadDocument) error {
	return s.w.Write(map[string]string{"text": doc.Text})
}

// RepositorySink は文書をthread_documentsテーブルに保存する。
type RepositorySink struct {
	repo repository.ThreadDocumentRepository
}

// NewRepositorySink はRepositorySinkを生成する。
func NewRepositorySink(repo repository.ThreadDocumentRepository) *RepositorySink {
	return &RepositorySink{repo: repo}
}

// Write は文書を投稿IDをキーにUPSERTする。
func (s *RepositorySink) Write(ctx context.Context, doc *model.ThreadDocument) error {
	return s.repo.Upsert(ctx, doc)
}
