package auth

import (
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/zeebo/blake3"
)

const portalAudience = "jobdesk-portal"

// ClientClaims はポータルトークンに含まれる顧客の権限情報。
// トークンは1件のジョブにのみ有効。
type ClientClaims struct {
	jwt.RegisteredClaims
	JobID       string `json:"jobId"`
	ClientEmail string `json:"clientEmail"`
}

// PortalLink は発行したポータルリンク。
// Fingerprintはジョブに保存し、再発行時に旧リンクを失効させるために使う。
type PortalLink struct {
	URL         string
	Token       string
	Fingerprint string
	ExpiresAt   time.Time
}

// PortalTokens はクライアントポータルトークンの発行と検証を行う。
// オーナーセッションとは別の鍵で署名する。
type PortalTokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewPortalTokens はPortalTokensを生成する。
func NewPortalTokens(secret []byte, ttl time.Duration) *PortalTokens {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &PortalTokens{secret: secret, ttl: ttl, now: time.Now}
}

// WithClock は時刻取得関数を差し替える。
func (p *PortalTokens) WithClock(now func() time.Time) *PortalTokens {
	p.now = now
	return p
}

// Issue はジョブ用のトークンを署名し、<origin>/portal/<jobId>?t=<token> 形式のURLを返す。
func (p *PortalTokens) Issue(jobID, clientEmail, origin string) (*PortalLink, error) {
	if jobID == "" {
		return nil, fmt.Errorf("job ID is required")
	}

	now := p.now()
	expiresAt := now.Add(p.ttl)
	claims := ClientClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Audience:  jwt.ClaimStrings{portalAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
		JobID:       jobID,
		ClientEmail: clientEmail,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign portal token: %w", err)
	}

	return &PortalLink{
		URL:         strings.TrimRight(origin, "/") + "/portal/" + url.PathEscape(jobID) + "?t=" + url.QueryEscape(token),
		Token:       token,
		Fingerprint: Fingerprint(token),
		ExpiresAt:   expiresAt,
	}, nil
}

// Verify はトークンを検証してクレームを返す。
// 形式不正・期限切れ・署名不一致・jobId欠落はすべて (nil, false) で、理由は区別しない。
func (p *PortalTokens) Verify(token string) (*ClientClaims, bool) {
	if token == "" {
		return nil, false
	}
	claims := &ClientClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return p.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithAudience(portalAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil || claims.JobID == "" {
		return nil, false
	}
	return claims, true
}

// CheckAccess はトークンが有効かつ指定ジョブ用であるかを返す。
func (p *PortalTokens) CheckAccess(token, jobID string) bool {
	claims, ok := p.Verify(token)
	return ok && claims.JobID == jobID
}

// Fingerprint はトークンのblake3ダイジェストを16進文字列で返す。
// トークン本体は保存せず、このダイジェストのみをジョブに記録する。
func Fingerprint(token string) string {
	h := blake3.New()
	h.Write([]byte(token))
	return hex.EncodeToString(h.Sum(nil))
}
