package auth

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// BypassProvider は開発環境向けに、設定済みのbcryptハッシュで資格情報を検証する。
// 外部IdPを使わずにローカルでログインするためのもの。
type BypassProvider struct {
	hashes map[string]string
}

// NewBypassProvider はメールアドレス（小文字）からbcryptハッシュへの対応表で生成する。
func NewBypassProvider(hashes map[string]string) *BypassProvider {
	normalized := make(map[string]string, len(hashes))
	for email, hash := range hashes {
		normalized[strings.ToLower(email)] = hash
	}
	return &BypassProvider{hashes: normalized}
}

// VerifyPassword はハッシュと照合する。未登録のメールアドレスはfalse。
func (p *BypassProvider) VerifyPassword(_ context.Context, email, password string) (bool, error) {
	hash, ok := p.hashes[strings.ToLower(email)]
	if !ok {
		// 未登録でも同じ比較コストをかける
		_ = bcrypt.CompareHashAndPassword(dummyHash(), []byte(password))
		return false, nil
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return false, nil
	}
	return true, nil
}

var dummyHash = sync.OnceValue(func() []byte {
	hash, _ := bcrypt.GenerateFromPassword([]byte("jobdesk-unknown-user"), bcrypt.DefaultCost)
	return hash
})

// HashPassword はBYPASS_CREDENTIALSに設定するbcryptハッシュを生成する。
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// compile-time interface check
var _ IdentityProvider = (*BypassProvider)(nil)
