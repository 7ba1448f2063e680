package model

import "time"

// SenderType はメッセージの送信者種別を表す。
type SenderType string

const (
	// SenderOwner はオーナーが送信したメッセージ。
	SenderOwner SenderType = "owner"
	// SenderClient はポータル経由でクライアントが送信したメッセージ。
	SenderClient SenderType = "client"
	// SenderSystem はステータス変更などでシステムが生成したメッセージ。
	SenderSystem SenderType = "system"
)

// ParseSenderType は文字列を送信者種別に変換する。
func ParseSenderType(s string) (SenderType, bool) {
	switch SenderType(s) {
	case SenderOwner, SenderClient, SenderSystem:
		return SenderType(s), true
	default:
		return "", false
	}
}

// Message はジョブに紐づくメッセージを表す。
// Body はサニタイズ済み。
type Message struct {
	ID         string
	JobID      string
	SenderType SenderType
	Body       string
	CreatedAt  time.Time
}
