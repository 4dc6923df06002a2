package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/threadflat/internal/middleware"
	"github.com/hitoshi/threadflat/internal/model"
	"github.com/hitoshi/threadflat/internal/thread"
	"github.com/hitoshi/threadflat/internal/worker/threads"
)

// SubmissionFinder は投稿を取得するインターフェース。
// repository.SubmissionRepositoryが満たす。
type SubmissionFinder interface {
	// FindByID は指定IDの投稿を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Submission, error)
}

// ThreadAssembler は投稿1件分の返信を読み込んで再構築するインターフェース。
// threads.Flattenerが満たす。
type ThreadAssembler interface {
	Assemble(ctx context.Context, sub *model.Submission) (*model.Submission, []model.Reply, *thread.Result, error)
}

// SubmissionHandler は投稿のスレッド文書・返信ツリーを返すHTTPハンドラー。
type SubmissionHandler struct {
	finder    SubmissionFinder
	assembler ThreadAssembler
}

// NewSubmissionHandler はSubmissionHandlerを生成する。
func NewSubmissionHandler(finder SubmissionFinder, assembler ThreadAssembler) *SubmissionHandler {
	return &SubmissionHandler{
		finder:    finder,
		assembler: assembler,
	}
}

// treeResponse は返信ツリーのAPIレスポンス。
type treeResponse struct {
	SubmissionID string         `json:"submission_id"`
	Title        string         `json:"title"`
	Roots        []string       `json:"roots"`
	ReplyCount   int            `json:"reply_count"`
	Forest       []*thread.Node `json:"forest"`
}

// Document は投稿の平坦化済み文書をテキストで返す。
// GET /api/submissions/{id}/document
func (h *SubmissionHandler) Document(w http.ResponseWriter, r *http.Request) {
	sub, ok := h.loadSubmission(w, r)
	if !ok {
		return
	}

	_, _, res, err := h.assembler.Assemble(r.Context(), sub)
	if err != nil {
		handleAssembleError(w, sub, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(res.Document))
}

// Tree は投稿の返信フォレストをJSONで返す。
// GET /api/submissions/{id}/tree
func (h *SubmissionHandler) Tree(w http.ResponseWriter, r *http.Request) {
	sub, ok := h.loadSubmission(w, r)
	if !ok {
		return
	}

	clean, replies, res, err := h.assembler.Assemble(r.Context(), sub)
	if err != nil {
		handleAssembleError(w, sub, err)
		return
	}

	// フォレストは組み立て時と同じ（サニタイズ済みの）返信集合から作る
	g, lookup := thread.Build(replies, clean.ID)
	forest := thread.Forest(g, lookup, res.Roots)

	roots := res.Roots
	if roots == nil {
		roots = []string{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(treeResponse{
		SubmissionID: clean.ID,
		Title:        clean.Title,
		Roots:        roots,
		ReplyCount:   len(res.Flattened),
		Forest:       forest,
	})
}

// loadSubmission はURLパラメータの投稿IDから投稿を取得する。
// 取得できなかった場合はエラーレスポンスを書き込んでfalseを返す。
func (h *SubmissionHandler) loadSubmission(w http.ResponseWriter, r *http.Request) (*model.Submission, bool) {
	raw := chi.URLParam(r, "id")
	id := normalizeSubmissionID(raw)
	if id == "" {
		middleware.WriteAPIError(w, model.NewInvalidSubmissionIDError(raw))
		return nil, false
	}

	sub, err := h.finder.FindByID(r.Context(), id)
	if err != nil {
		slog.Error("投稿の取得に失敗しました",
			slog.String("submission_id", id),
			slog.String("error", err.Error()),
		)
		middleware.WriteInternalServerError(w)
		return nil, false
	}
	if sub == nil {
		middleware.WriteAPIError(w, model.NewSubmissionNotFoundError(id))
		return nil, false
	}
	return sub, true
}

// normalizeSubmissionID はt3_プレフィックスを取り除いた投稿IDを返す。
// 返信（t1_）など他の型タグが付いたIDは無効として空文字を返す。
func normalizeSubmissionID(raw string) string {
	id := strings.TrimSpace(raw)
	if strings.HasPrefix(id, model.SubmissionTag) {
		return strings.TrimPrefix(id, model.SubmissionTag)
	}
	if model.StripTypeTag(id) != id {
		return ""
	}
	return id
}

// handleAssembleError は組み立て時のエラーをHTTPレスポンスに変換する。
func handleAssembleError(w http.ResponseWriter, sub *model.Submission, err error) {
	var tooLarge *threads.ReplySetTooLargeError
	if errors.As(err, &tooLarge) {
		middleware.WriteAPIError(w, model.NewReplySetTooLargeError(tooLarge.Count, tooLarge.Limit))
		return
	}

	slog.Error("スレッドの組み立てに失敗しました",
		slog.String("submission_id", sub.ID),
		slog.String("error", err.Error()),
	)
	middleware.WriteInternalServerError(w)
}
