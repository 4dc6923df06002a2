package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/threadflat/internal/database"
	"github.com/hitoshi/threadflat/internal/model"
)

// SQLThreadDocumentRepo はPostgreSQL/SQLiteを使用した平坦化済み文書リポジトリ。
type SQLThreadDocumentRepo struct {
	db      *sql.DB
	dialect database.Dialect
}

// NewSQLThreadDocumentRepo はSQLThreadDocumentRepoを生成する。
func NewSQLThreadDocumentRepo(db *sql.DB, dialect database.Dialect) *SQLThreadDocumentRepo {
	return &SQLThreadDocumentRepo{db: db, dialect: dialect}
}

// Upsert は文書を投稿IDをキーに保存する。既存の文書は新しい実行の内容で置き換える。
func (r *SQLThreadDocumentRepo) Upsert(ctx context.Context, doc *model.ThreadDocument) error {
	_, err := r.db.ExecContext(ctx, r.dialect.Rebind(
		`INSERT INTO thread_documents (submission_id, document, reply_count, run_id, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (submission_id) DO UPDATE SET
		   document = excluded.document,
		   reply_count = excluded.reply_count,
		   run_id = excluded.run_id,
		   created_at = excluded.created_at`,
	), doc.SubmissionID, doc.Text, doc.ReplyCount, doc.RunID, doc.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert thread document: %w", err)
	}
	return nil
}

// FindBySubmissionID は指定投稿の文書を取得する。見つからない場合はnilを返す。
func (r *SQLThreadDocumentRepo) FindBySubmissionID(ctx context.Context, submissionID string) (*model.ThreadDocument, error) {
	doc := &model.ThreadDocument{}
	err := r.db.QueryRowContext(ctx, r.dialect.Rebind(
		`SELECT submission_id, document, reply_count, run_id, created_at
		 FROM thread_documents WHERE submission_id = ?`,
	), submissionID).Scan(&doc.SubmissionID, &doc.Text, &doc.ReplyCount, &doc.RunID, &doc.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find thread document: %w", err)
	}
	return doc, nil
}
