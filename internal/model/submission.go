// Package model はドメインモデルを定義する。
package model

import "time"

// Submission はスレッドの起点となる投稿（t3）を表す。
// Title と SelfText は平坦化した文書の先頭に置かれる。
type Submission struct {
	XID         int64 // ストア内の連番。キーセットページネーションに使う
	ID          string
	Subreddit   string
	Title       string
	SelfText    string
	NumComments int
	Score       int
	CreatedUTC  int64
}

// LinkID は返信レコードのlink_idと比較するための型タグ付きIDを返す。
func (s *Submission) LinkID() string {
	return SubmissionTag + s.ID
}

// ThreadDocument は投稿1件分の平坦化済み文書を表す。
type ThreadDocument struct {
	SubmissionID string
	Text         string
	ReplyCount   int
	RunID        string
	CreatedAt    time.Time
}
