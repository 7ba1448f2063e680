// Package security はメッセージ本文のサニタイズと外部連携用HTTPクライアントを提供する。
package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

// MessageSanitizer はメッセージ本文をプレーンテキストとして安全な形に整える。
type MessageSanitizer interface {
	// Sanitize は全てのHTMLタグを除去し、前後の空白を取り除いた本文を返す。
	// script, style, iframe 等は中身ごと除去される。
	// 戻り値はエスケープされていないプレーンテキスト。表示側でエスケープする。
	// 同一入力に対して常に同一出力を返す。
	Sanitize(body string) string
}

type messageSanitizer struct {
	policy *bluemonday.Policy
}

// NewMessageSanitizer はbluemondayのStrictPolicyでMessageSanitizerを生成する。
// ポータルの顧客が送る本文はオーナー画面にそのまま表示されるため、タグは一切許可しない。
func NewMessageSanitizer() *messageSanitizer {
	return &messageSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize はMessageSanitizerを実装する。
func (s *messageSanitizer) Sanitize(body string) string {
	return strings.TrimSpace(plainText(s.policy.Sanitize(body)))
}

// plainText はタグ除去済みのHTMLからテキストトークンだけを取り出し、
// 文字参照をデコードした文字列を返す。
func plainText(escaped string) string {
	var b strings.Builder
	tokenizer := html.NewTokenizer(strings.NewReader(escaped))
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return b.String()
		case html.TextToken:
			b.Write(tokenizer.Text())
		}
	}
}

var _ MessageSanitizer = (*messageSanitizer)(nil)
