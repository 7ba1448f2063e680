package model

import "time"

// AuditLog は外部連携などの操作履歴。
type AuditLog struct {
	ID         string
	OrgID      string
	Actor      string
	Action     string
	TargetType string
	TargetID   string
	Meta       map[string]any
	CreatedAt  time.Time
}
