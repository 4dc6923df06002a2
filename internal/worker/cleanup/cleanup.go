// Package cleanup は過去の実行で書き込まれたスレッド文書の削除ジョブを提供する。
// threadsコマンドがデータベースへ出力した後、今回の実行IDを持たない文書を削除し、
// 現在の投稿集合に対応する文書だけを残す。
package cleanup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/threadflat/internal/database"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// ErrEmptyRunID は削除基準となる実行IDが空の場合のエラー。
var ErrEmptyRunID = errors.New("run id is empty")

// PruneJob は古い実行のスレッド文書を削除するジョブ。
// 同じ実行IDで何度実行しても結果は変わらない。
type PruneJob struct {
	db      Executor
	dialect database.Dialect
	logger  *slog.Logger
}

// NewPruneJob は新しいPruneJobを生成する。
func NewPruneJob(db Executor, dialect database.Dialect, logger *slog.Logger) *PruneJob {
	return &PruneJob{
		db:      db,
		dialect: dialect,
		logger:  logger,
	}
}

// Run はrunIDと異なる実行IDを持つ文書をDELETEし、削除件数を返す。
// 削除対象がない場合でもエラーにならない。
func (j *PruneJob) Run(ctx context.Context, runID string) (int64, error) {
	if runID == "" {
		return 0, ErrEmptyRunID
	}

	start := time.Now()

	query := j.dialect.Rebind(`DELETE FROM thread_documents WHERE run_id <> ?`)
	result, err := j.db.ExecContext(ctx, query, runID)
	if err != nil {
		j.logger.Error("古いスレッド文書の削除に失敗しました",
			slog.String("error", err.Error()),
			slog.String("run_id", runID),
		)
		return 0, fmt.Errorf("古いスレッド文書の削除に失敗: %w", err)
	}

	deletedCount, err := result.RowsAffected()
	if err != nil {
		j.logger.Error("削除件数の取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("削除件数の取得に失敗: %w", err)
	}

	duration := time.Since(start)
	j.logger.Info("古いスレッド文書の削除が完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.String("run_id", runID),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return deletedCount, nil
}
