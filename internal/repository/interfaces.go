// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"

	"github.com/hitoshi/threadflat/internal/model"
)

// SubmissionRepository は投稿データの永続化インターフェース。
type SubmissionRepository interface {
	// UpsertBatch は投稿をまとめて登録する。idが既存の場合は上書きする。
	// バッチ全体を1トランザクションで処理する。
	UpsertBatch(ctx context.Context, subs []*model.Submission) error

	// FindByID は指定IDの投稿を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Submission, error)

	// ListAfter はxidがafterXIDより大きい投稿をxid昇順で最大limit件返す。
	// キーセットページネーションに使う。
	ListAfter(ctx context.Context, afterXID int64, limit int) ([]*model.Submission, error)

	// Count は投稿の総数を返す。
	Count(ctx context.Context) (int, error)
}

// ReplyRepository は返信データの永続化インターフェース。
type ReplyRepository interface {
	// InsertBatch は返信をまとめて登録する。重複IDは排除しない。
	InsertBatch(ctx context.Context, replies []*model.Reply) error

	// ListByLinkID は指定link_id（t3_xxx）に属する返信を到着順（xid昇順）で返す。
	ListByLinkID(ctx context.Context, linkID string) ([]model.Reply, error)

	// CountByLinkID は指定link_idに属する返信の件数を返す。
	CountByLinkID(ctx context.Context, linkID string) (int, error)
}

// ThreadDocumentRepository は平坦化済み文書の永続化インターフェース。
type ThreadDocumentRepository interface {
	// Upsert は文書を投稿IDをキーに冪等に保存する。
	Upsert(ctx context.Context, doc *model.ThreadDocument) error

	// FindBySubmissionID は指定投稿の文書を取得する。見つからない場合はnilを返す。
	FindBySubmissionID(ctx context.Context, submissionID string) (*model.ThreadDocument, error)
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
