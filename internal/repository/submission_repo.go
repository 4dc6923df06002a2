package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/threadflat/internal/database"
	"github.com/hitoshi/threadflat/internal/model"
)

const submissionColumns = `xid, id, subreddit, title, selftext, num_comments, score, created_utc`

// SQLSubmissionRepo はPostgreSQL/SQLiteを使用した投稿リポジトリ。
type SQLSubmissionRepo struct {
	db      *sql.DB
	dialect database.Dialect
}

// NewSQLSubmissionRepo はSQLSubmissionRepoを生成する。
func NewSQLSubmissionRepo(db *sql.DB, dialect database.Dialect) *SQLSubmissionRepo {
	return &SQLSubmissionRepo{db: db, dialect: dialect}
}

// UpsertBatch は投稿をまとめて登録する。idが既存の場合は上書きする。
func (r *SQLSubmissionRepo) UpsertBatch(ctx context.Context, subs []*model.Submission) error {
	if len(subs) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, r.dialect.Rebind(
		`INSERT INTO submissions (id, subreddit, title, selftext, num_comments, score, created_utc)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   subreddit = excluded.subreddit,
		   title = excluded.title,
		   selftext = excluded.selftext,
		   num_comments = excluded.num_comments,
		   score = excluded.score,
		   created_utc = excluded.created_utc`,
	))
	if err != nil {
		return fmt.Errorf("failed to prepare submission upsert: %w", err)
	}
	defer stmt.Close()

	for _, s := range subs {
		if _, err := stmt.ExecContext(ctx,
			s.ID, s.Subreddit, s.Title, s.SelfText, s.NumComments, s.Score, s.CreatedUTC,
		); err != nil {
			return fmt.Errorf("failed to upsert submission %q: %w", s.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// FindByID は指定IDの投稿を取得する。見つからない場合はnilを返す。
func (r *SQLSubmissionRepo) FindByID(ctx context.Context, id string) (*model.Submission, error) {
	row := r.db.QueryRowContext(ctx, r.dialect.Rebind(
		`SELECT `+submissionColumns+` FROM submissions WHERE id = ?`,
	), id)

	s, err := scanSubmission(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find submission by ID: %w", err)
	}
	return s, nil
}

// ListAfter はxidがafterXIDより大きい投稿をxid昇順で最大limit件返す。
func (r *SQLSubmissionRepo) ListAfter(ctx context.Context, afterXID int64, limit int) ([]*model.Submission, error) {
	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(
		`SELECT `+submissionColumns+` FROM submissions WHERE xid > ? ORDER BY xid ASC LIMIT ?`,
	), afterXID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	defer rows.Close()

	var subs []*model.Submission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan submission: %w", err)
		}
		subs = append(subs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate submissions: %w", err)
	}
	return subs, nil
}

// Count は投稿の総数を返す。
func (r *SQLSubmissionRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM submissions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count submissions: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubmission(row rowScanner) (*model.Submission, error) {
	s := &model.Submission{}
	err := row.Scan(&s.XID, &s.ID, &s.Subreddit, &s.Title, &s.SelfText,
		&s.NumComments, &s.Score, &s.CreatedUTC)
	if err != nil {
		return nil, err
	}
	return s, nil
}
