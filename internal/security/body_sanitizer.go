// Package security はアプリケーションのセキュリティ機能を提供する。
//
// BodySanitizer は返信本文や投稿本文に紛れ込んだHTMLタグを取り除き、
// 平文として文書に埋め込める形に整える。
// bluemondayのStrictPolicyで全タグを除去したうえで、
// HTMLエンティティを平文に戻す。
package security

import (
	"html"

	"github.com/microcosm-cc/bluemonday"
)

// BodySanitizer は本文のサニタイズ機能のインターフェースを定義する。
type BodySanitizer interface {
	// Sanitize は本文からすべてのHTMLタグを除去し、エンティティを復元した平文を返す。
	// タグを含まない本文は（エンティティの復元を除き）そのまま返す。
	// 空文字列の入力には空文字列を返す。
	Sanitize(body string) string
}

// bodySanitizer はBodySanitizerの実装。
// bluemondayのポリシーはスレッドセーフなので、ワーカー間で共有できる。
type bodySanitizer struct {
	policy *bluemonday.Policy
}

// NewBodySanitizer はBodySanitizerの新しいインスタンスを生成する。
func NewBodySanitizer() *bodySanitizer {
	return &bodySanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize は本文からHTMLタグを除去した平文を返す。
// StrictPolicyは出力をエスケープするため、最後にエンティティを1段だけ戻す。
func (s *bodySanitizer) Sanitize(body string) string {
	if body == "" {
		return ""
	}
	return html.UnescapeString(s.policy.Sanitize(body))
}
