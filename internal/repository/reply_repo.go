package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/threadflat/internal/database"
	"github.com/hitoshi/threadflat/internal/model"
)

// SQLReplyRepo はPostgreSQL/SQLiteを使用した返信リポジトリ。
type SQLReplyRepo struct {
	db      *sql.DB
	dialect database.Dialect
}

// NewSQLReplyRepo はSQLReplyRepoを生成する。
func NewSQLReplyRepo(db *sql.DB, dialect database.Dialect) *SQLReplyRepo {
	return &SQLReplyRepo{db: db, dialect: dialect}
}

// InsertBatch は返信をまとめて登録する。バッチ全体を1トランザクションで処理する。
func (r *SQLReplyRepo) InsertBatch(ctx context.Context, replies []*model.Reply) error {
	if len(replies) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, r.dialect.Rebind(
		`INSERT INTO comments (id, link_id, parent_id, body, subreddit, score, created_utc)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
	))
	if err != nil {
		return fmt.Errorf("failed to prepare comment insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range replies {
		if _, err := stmt.ExecContext(ctx,
			c.ID, c.LinkID, c.ParentID, c.Body, c.Subreddit, c.Score, c.CreatedUTC,
		); err != nil {
			return fmt.Errorf("failed to insert comment %q: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListByLinkID は指定link_idに属する返信をxid昇順で返す。
// 返信の到着順が兄弟の並び順になるため、順序は必ずxidで固定する。
func (r *SQLReplyRepo) ListByLinkID(ctx context.Context, linkID string) ([]model.Reply, error) {
	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(
		`SELECT xid, id, link_id, parent_id, body, subreddit, score, created_utc
		 FROM comments WHERE link_id = ? ORDER BY xid ASC`,
	), linkID)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	defer rows.Close()

	var replies []model.Reply
	for rows.Next() {
		var c model.Reply
		if err := rows.Scan(&c.XID, &c.ID, &c.LinkID, &c.ParentID, &c.Body,
			&c.Subreddit, &c.Score, &c.CreatedUTC); err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		replies = append(replies, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate comments: %w", err)
	}
	return replies, nil
}

// CountByLinkID は指定link_idに属する返信の件数を返す。
func (r *SQLReplyRepo) CountByLinkID(ctx context.Context, linkID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, r.dialect.Rebind(
		`SELECT count(*) FROM comments WHERE link_id = ?`,
	), linkID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count comments: %w", err)
	}
	return n, nil
}
