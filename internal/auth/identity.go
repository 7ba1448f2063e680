package auth

import (
	"context"
	"time"
)

// IdentityProvider はオーナーのメールアドレスとパスワードを検証する外部IdP。
// 資格情報が誤っている場合は (false, nil) を返し、通信障害などはエラーを返す。
type IdentityProvider interface {
	VerifyPassword(ctx context.Context, email, password string) (bool, error)
}

// CallRecorder は外部呼び出しの結果を記録する。metrics.Collectorが実装する。
type CallRecorder interface {
	RecordIntegrationCall(provider, operation string, err error, duration time.Duration)
}
