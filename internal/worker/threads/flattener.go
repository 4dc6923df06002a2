package threads

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/threadflat/internal/metrics"
	"github.com/hitoshi/threadflat/internal/model"
	"github.com/hitoshi/threadflat/internal/repository"
	"github.com/hitoshi/threadflat/internal/security"
	"github.com/hitoshi/threadflat/internal/thread"
)

// 返信グラフの異常種別（メトリクスのkindラベル）。
const (
	AnomalyDuplicateID   = "duplicate_id"
	AnomalyDuplicateEdge = "duplicate_edge"
	AnomalySelfEdge      = "self_edge"
	AnomalyForeignParent = "foreign_parent"
)

// ReplySetTooLargeError は返信数がTHREADS_MAX_REPLIESを超えた場合のエラー。
type ReplySetTooLargeError struct {
	SubmissionID string
	Count        int
	Limit        int
}

func (e *ReplySetTooLargeError) Error() string {
	return fmt.Sprintf("reply set too large for submission %s: %d > %d", e.SubmissionID, e.Count, e.Limit)
}

// Flattener は投稿1件分の返信を読み込み、木を再構築して文書を組み立てる。
// 複数のgoroutineから同時に呼び出してよい。状態は呼び出しごとに作り直す。
type Flattener struct {
	replyRepo  repository.ReplyRepository
	sanitizer  security.BodySanitizer
	keep       thread.KeepFunc
	maxReplies int
	metrics    metrics.MetricsCollector
	logger     *slog.Logger
}

// NewFlattener はFlattenerの新しいインスタンスを生成する。
// sanitizerがnilの場合は本文をそのまま使う。keepがnilの場合はthread.KeepBodyを使う。
// maxRepliesが0の場合は返信数を制限しない。
func NewFlattener(
	replyRepo repository.ReplyRepository,
	sanitizer security.BodySanitizer,
	keep thread.KeepFunc,
	maxReplies int,
	m metrics.MetricsCollector,
	logger *slog.Logger,
) *Flattener {
	if keep == nil {
		keep = thread.KeepBody
	}
	return &Flattener{
		replyRepo:  replyRepo,
		sanitizer:  sanitizer,
		keep:       keep,
		maxReplies: maxReplies,
		metrics:    m,
		logger:     logger,
	}
}

// Replies は投稿に属する返信を到着順で返す。
// num_commentsが0の投稿はストアを参照せずに空集合とする。
func (f *Flattener) Replies(ctx context.Context, sub *model.Submission) ([]model.Reply, error) {
	if sub.NumComments == 0 {
		return nil, nil
	}

	linkID := sub.LinkID()
	if f.maxReplies > 0 {
		n, err := f.replyRepo.CountByLinkID(ctx, linkID)
		if err != nil {
			return nil, fmt.Errorf("返信数の取得に失敗: %w", err)
		}
		if n > f.maxReplies {
			return nil, &ReplySetTooLargeError{SubmissionID: sub.ID, Count: n, Limit: f.maxReplies}
		}
	}

	replies, err := f.replyRepo.ListByLinkID(ctx, linkID)
	if err != nil {
		return nil, fmt.Errorf("返信の取得に失敗: %w", err)
	}
	return replies, nil
}

// Assemble は投稿の返信を読み込み、再構築結果を返す。
// サニタイズが有効な場合は本文からHTMLタグを除去してから組み立てる。
func (f *Flattener) Assemble(ctx context.Context, sub *model.Submission) (*model.Submission, []model.Reply, *thread.Result, error) {
	replies, err := f.Replies(ctx, sub)
	if err != nil {
		return nil, nil, nil, err
	}

	if f.sanitizer != nil {
		clean := *sub
		clean.Title = f.sanitizer.Sanitize(sub.Title)
		clean.SelfText = f.sanitizer.Sanitize(sub.SelfText)
		sub = &clean

		cleaned := make([]model.Reply, len(replies))
		for i, r := range replies {
			r.Body = f.sanitizer.Sanitize(r.Body)
			cleaned[i] = r
		}
		replies = cleaned
	}

	start := time.Now()
	res := thread.Assemble(sub, replies, f.keep)
	f.metrics.RecordFlattenLatency(time.Since(start))

	f.recordAnomalies(sub, res.Stats)

	return sub, replies, res, nil
}

// Document は投稿1件分の文書を組み立てる。
func (f *Flattener) Document(ctx context.Context, sub *model.Submission) (*model.ThreadDocument, error) {
	_, _, res, err := f.Assemble(ctx, sub)
	if err != nil {
		return nil, err
	}
	return &model.ThreadDocument{
		SubmissionID: sub.ID,
		Text:         res.Document,
		ReplyCount:   len(res.Flattened),
	}, nil
}

func (f *Flattener) recordAnomalies(sub *model.Submission, st thread.Stats) {
	f.metrics.RecordAnomaly(AnomalyDuplicateID, st.DuplicateIDs)
	f.metrics.RecordAnomaly(AnomalyDuplicateEdge, st.DuplicateEdges)
	f.metrics.RecordAnomaly(AnomalySelfEdge, st.SelfEdges)
	f.metrics.RecordAnomaly(AnomalyForeignParent, st.ForeignParents)

	if st.DuplicateIDs+st.DuplicateEdges+st.SelfEdges+st.ForeignParents == 0 {
		return
	}
	f.logger.Debug("返信グラフに異常を検出しました",
		slog.String("submission_id", sub.ID),
		slog.Int("records", st.Records),
		slog.Int("duplicate_ids", st.DuplicateIDs),
		slog.Int("duplicate_edges", st.DuplicateEdges),
		slog.Int("self_edges", st.SelfEdges),
		slog.Int("foreign_parents", st.ForeignParents),
	)
}
