package model

// RemovedBody は削除済み本文を示すセンチネル値。
// 平坦化の出力からは除外されるが、子孫の返信は引き続き辿る。
const RemovedBody = "[removed]"

// 型タグ付きIDのプレフィックス。
const (
	// ReplyTag は返信（t1）を示す型タグ。
	ReplyTag = "t1_"
	// SubmissionTag は投稿（t3）を示す型タグ。
	SubmissionTag = "t3_"
)

// Reply は投稿または他の返信にぶら下がる返信レコードを表す。
// コアにとっては読み取り専用の入力であり、変更されることはない。
type Reply struct {
	XID        int64
	ID         string
	LinkID     string // 所属する投稿の型タグ付きID（t3_xxx）
	ParentID   string // 親の型タグ付きID（t1_xxx または t3_xxx）
	Body       string
	Subreddit  string
	Score      int
	CreatedUTC int64
}

// StripTypeTag は "t<数字>_" 形式の型タグを先頭から1つだけ取り除く。
// タグのないIDはそのまま返す。
func StripTypeTag(id string) string {
	if len(id) >= 3 && id[0] == 't' && id[1] >= '0' && id[1] <= '9' && id[2] == '_' {
		return id[3:]
	}
	return id
}
