package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// ErrMissingField はレコードに必須の識別子フィールドが存在しないことを示す。
// 該当レコードはグラフ構築から除外され、処理全体は継続する。
var ErrMissingField = errors.New("required field is missing")

// Raw はアーカイブから読み出した1行分のレコード（フィールド名 → 値）を表す。
// 数値は json.Number として保持される。
type Raw map[string]any

// String は指定フィールドを文字列として返す。
// フィールドが存在しないかnullの場合はokがfalseになる。
func (r Raw) String(key string) (string, bool) {
	v, ok := r[key]
	if !ok || v == nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case bool:
		return strconv.FormatBool(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	default:
		return fmt.Sprint(t), true
	}
}

// Int64 は指定フィールドを整数として返す。
// JSON数値と数値文字列の両方を受け付け、解釈できない場合は0を返す。
func (r Raw) Int64(key string) int64 {
	s, ok := r.String(key)
	if !ok || s == "" {
		return 0
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int64(f)
	}
	return 0
}

func (r Raw) text(key string) string {
	s, _ := r.String(key)
	return s
}

// SubmissionFromRaw は生レコードからSubmissionを組み立てる。
// idが存在しない場合はErrMissingFieldを返す。
func SubmissionFromRaw(r Raw) (*Submission, error) {
	id, ok := r.String("id")
	if !ok {
		return nil, fmt.Errorf("submission: %w: id", ErrMissingField)
	}
	return &Submission{
		ID:          id,
		Subreddit:   r.text("subreddit"),
		Title:       r.text("title"),
		SelfText:    r.text("selftext"),
		NumComments: int(r.Int64("num_comments")),
		Score:       int(r.Int64("score")),
		CreatedUTC:  r.Int64("created_utc"),
	}, nil
}

// ReplyFromRaw は生レコードからReplyを組み立てる。
// id、link_id、parent_idのいずれかが存在しない場合はErrMissingFieldを返す。
// 空文字列は（珍しいが）有効な識別子として扱う。
func ReplyFromRaw(r Raw) (*Reply, error) {
	reply := &Reply{
		Body:       r.text("body"),
		Subreddit:  r.text("subreddit"),
		Score:      int(r.Int64("score")),
		CreatedUTC: r.Int64("created_utc"),
	}

	var ok bool
	if reply.ID, ok = r.String("id"); !ok {
		return nil, fmt.Errorf("reply: %w: id", ErrMissingField)
	}
	if reply.LinkID, ok = r.String("link_id"); !ok {
		return nil, fmt.Errorf("reply %s: %w: link_id", reply.ID, ErrMissingField)
	}
	if reply.ParentID, ok = r.String("parent_id"); !ok {
		return nil, fmt.Errorf("reply %s: %w: parent_id", reply.ID, ErrMissingField)
	}

	return reply, nil
}
