// Package threads は保存済みの投稿を順に平坦化し、文書を出力するバッチ処理を提供する。
// スケジューラ、投稿1件分の組み立て、出力先（JSONL/データベース）を含む。
package threads

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/threadflat/internal/metrics"
	"github.com/hitoshi/threadflat/internal/model"
	"github.com/hitoshi/threadflat/internal/repository"
)

// DocumentBuilder は投稿1件分の文書を組み立てるインターフェース。
type DocumentBuilder interface {
	Document(ctx context.Context, sub *model.Submission) (*model.ThreadDocument, error)
}

// Options はスケジューラの動作設定。
type Options struct {
	MaxConcurrency int // 同時に処理する投稿数。0以下の場合は8
	PageSize       int // 1回に読み込む投稿数。0以下の場合は500
	MinComments    int // num_commentsがこれ未満
	MinSelfText    int // かつselftextの文字数がこれ未満の投稿は除外する
	ProgressEvery  int // 進捗ログの間隔（処理件数）。0の場合は出力しない
}

// Filter は除外条件を満たす投稿ならtrueを返す。
// 返信が少なく本文も短い投稿は文書として価値が低いため出力しない。
func (o Options) Filter(sub *model.Submission) bool {
	return sub.NumComments < o.MinComments && utf8.RuneCountInString(sub.SelfText) < o.MinSelfText
}

// Summary はバッチ1回分の集計結果。
type Summary struct {
	RunID     string
	Flattened int
	Skipped   int
	Failed    int
	Dropped   int // キャンセルにより書き込まなかった文書
	Duration  time.Duration
}

// Scheduler は投稿をキーセットページネーションで読み込み、
// semaphoreパターンで並列数を制御しながら文書を組み立てて出力する。
type Scheduler struct {
	subRepo repository.SubmissionRepository
	builder DocumentBuilder
	sink    Sink
	metrics metrics.MetricsCollector
	logger  *slog.Logger
	opts    Options
	now     func() time.Time
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
func NewScheduler(
	subRepo repository.SubmissionRepository,
	builder DocumentBuilder,
	sink Sink,
	m metrics.MetricsCollector,
	logger *slog.Logger,
	opts Options,
) *Scheduler {
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 8
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 500
	}
	return &Scheduler{
		subRepo: subRepo,
		builder: builder,
		sink:    sink,
		metrics: m,
		logger:  logger,
		opts:    opts,
		now:     time.Now,
	}
}

type outcome int

const (
	outcomeFlattened outcome = iota
	outcomeFailed
	outcomeDropped
)

// Run は全投稿を1回処理する。
// コンテキストがキャンセルされると新しい投稿の投入を止め、処理中の投稿の完了を待って返る。
// キャンセル時は集計結果とともにコンテキストのエラーを返す。
func (s *Scheduler) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()
	runID := uuid.NewString()

	s.logger.Info("スレッド平坦化を開始します",
		slog.String("run_id", runID),
		slog.Int("max_concurrency", s.opts.MaxConcurrency),
		slog.Int("page_size", s.opts.PageSize),
	)

	var flattened, failed, dropped, done atomic.Int64
	skipped := 0

	sem := make(chan struct{}, s.opts.MaxConcurrency)
	var wg sync.WaitGroup
	var listErr error
	var after int64

dispatch:
	for {
		if ctx.Err() != nil {
			break
		}

		page, err := s.subRepo.ListAfter(ctx, after, s.opts.PageSize)
		if err != nil {
			if ctx.Err() == nil {
				listErr = fmt.Errorf("投稿一覧の取得に失敗: %w", err)
			}
			break
		}
		if len(page) == 0 {
			break
		}

		for _, sub := range page {
			after = sub.XID

			if s.opts.Filter(sub) {
				skipped++
				s.metrics.RecordSubmissionSkipped()
				continue
			}

			if ctx.Err() != nil {
				break dispatch
			}

			// semaphore取得（キャンセル時は投入を止める）
			select {
			case <-ctx.Done():
				break dispatch
			case sem <- struct{}{}:
			}

			wg.Add(1)
			go func(sub *model.Submission) {
				defer wg.Done()
				defer func() { <-sem }() // semaphore解放

				switch s.process(ctx, runID, sub) {
				case outcomeFlattened:
					flattened.Add(1)
				case outcomeFailed:
					failed.Add(1)
				case outcomeDropped:
					dropped.Add(1)
				}

				n := done.Add(1)
				if s.opts.ProgressEvery > 0 && n%int64(s.opts.ProgressEvery) == 0 {
					s.logger.Info("進捗",
						slog.String("run_id", runID),
						slog.Int64("processed", n),
						slog.Int64("failed", failed.Load()),
					)
				}
			}(sub)
		}
	}

	wg.Wait()

	sum := &Summary{
		RunID:     runID,
		Flattened: int(flattened.Load()),
		Skipped:   skipped,
		Failed:    int(failed.Load()),
		Dropped:   int(dropped.Load()),
		Duration:  time.Since(start),
	}

	s.logger.Info("スレッド平坦化が完了しました",
		slog.String("run_id", runID),
		slog.Int("flattened", sum.Flattened),
		slog.Int("skipped", sum.Skipped),
		slog.Int("failed", sum.Failed),
		slog.Int("dropped", sum.Dropped),
		slog.Float64("duration_ms", float64(sum.Duration.Milliseconds())),
	)

	if listErr != nil {
		return sum, listErr
	}
	return sum, ctx.Err()
}

// process は投稿1件を組み立てて出力する。
// 失敗とpanicはこの投稿だけに閉じ込め、バッチは継続する。
func (s *Scheduler) process(ctx context.Context, runID string, sub *model.Submission) (result outcome) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("投稿の処理中にpanicが発生しました",
				slog.String("submission_id", sub.ID),
				slog.Any("panic", rec),
				slog.String("stack", string(debug.Stack())),
			)
			s.metrics.RecordSubmissionFailed(metrics.ReasonPanic)
			result = outcomeFailed
		}
	}()

	doc, err := s.builder.Document(ctx, sub)
	if err != nil {
		if ctx.Err() != nil {
			return outcomeDropped
		}
		reason := metrics.ReasonRepository
		var tooLarge *ReplySetTooLargeError
		if errors.As(err, &tooLarge) {
			reason = metrics.ReasonTooLarge
		}
		s.logger.Error("投稿の平坦化に失敗しました",
			slog.String("submission_id", sub.ID),
			slog.String("reason", reason),
			slog.String("error", err.Error()),
		)
		s.metrics.RecordSubmissionFailed(reason)
		return outcomeFailed
	}

	// キャンセル済みなら書き込まずに破棄する
	if ctx.Err() != nil {
		return outcomeDropped
	}

	doc.RunID = runID
	doc.CreatedAt = s.now()

	if err := s.sink.Write(ctx, doc); err != nil {
		s.logger.Error("文書の書き込みに失敗しました",
			slog.String("submission_id", sub.ID),
			slog.String("error", err.Error()),
		)
		s.metrics.RecordSubmissionFailed(metrics.ReasonSink)
		return outcomeFailed
	}

	s.metrics.RecordSubmissionFlattened(doc.ReplyCount)
	return outcomeFlattened
}
