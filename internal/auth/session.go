// Package auth はオーナーセッション、クライアントポータルトークン、二重認可ゲートを提供する。
package auth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/jobdesk/internal/model"
)

// OwnerSessionCookie はオーナーセッショントークンを保持するCookie名。
const OwnerSessionCookie = "owner_session"

const (
	tokenIssuer   = "jobdesk"
	ownerAudience = "jobdesk-owner"
)

// OwnerSession はCookieから復元したオーナーの認証情報。
// サーバー側には保存しない。
type OwnerSession struct {
	UserID string
	OrgID  string
	Email  string
	Role   model.UserRole
}

type ownerClaims struct {
	jwt.RegisteredClaims
	OrgID string         `json:"orgId"`
	Email string         `json:"email"`
	Role  model.UserRole `json:"role"`
}

// UserFinder はセッション発行時のユーザー取得に必要なインターフェース。
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// SessionConfig はセッションCookieの設定。
type SessionConfig struct {
	Secret []byte
	MaxAge time.Duration
	Secure bool
	Domain string
}

// SessionManager はオーナーセッションの発行・検証・Cookie操作を行う。
type SessionManager struct {
	users UserFinder
	cfg   SessionConfig
	now   func() time.Time
}

// NewSessionManager はSessionManagerを生成する。
func NewSessionManager(users UserFinder, cfg SessionConfig) *SessionManager {
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 7 * 24 * time.Hour
	}
	return &SessionManager{users: users, cfg: cfg, now: time.Now}
}

// WithClock は時刻取得関数を差し替える。
func (m *SessionManager) WithClock(now func() time.Time) *SessionManager {
	m.now = now
	return m
}

// CreateSession はユーザーを読み込み、署名済みセッショントークンを返す。
// ユーザーが存在しない場合はUSER_NOT_FOUNDを返す。
func (m *SessionManager) CreateSession(ctx context.Context, userID string) (string, error) {
	user, err := m.users.FindByID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to load user for session: %w", err)
	}
	if user == nil {
		return "", model.NewUserNotFoundError()
	}

	now := m.now()
	claims := ownerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   user.ID,
			Audience:  jwt.ClaimStrings{ownerAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.cfg.MaxAge)),
		},
		OrgID: user.OrgID,
		Email: user.Email,
		Role:  user.Role,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.cfg.Secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return token, nil
}

// AttachCookie はセッショントークンをHttpOnly Cookieとして設定する。
func (m *SessionManager) AttachCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     OwnerSessionCookie,
		Value:    token,
		Path:     "/",
		Domain:   m.cfg.Domain,
		MaxAge:   int(m.cfg.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   m.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ReadSession はリクエストのCookieからセッションを復元する。
// Cookieが無い、改ざん・期限切れの場合はいずれも (nil, false) を返す。
func (m *SessionManager) ReadSession(r *http.Request) (*OwnerSession, bool) {
	cookie, err := r.Cookie(OwnerSessionCookie)
	if err != nil || cookie.Value == "" {
		return nil, false
	}

	claims := &ownerClaims{}
	_, err = jwt.ParseWithClaims(cookie.Value, claims, func(t *jwt.Token) (interface{}, error) {
		return m.cfg.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithAudience(ownerAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil || claims.Subject == "" || claims.OrgID == "" {
		return nil, false
	}

	return &OwnerSession{
		UserID: claims.Subject,
		OrgID:  claims.OrgID,
		Email:  claims.Email,
		Role:   claims.Role,
	}, true
}

// RequireSession はセッションを必須とする。無効な場合はUNAUTHORIZEDを返す。
func (m *SessionManager) RequireSession(r *http.Request) (*OwnerSession, error) {
	session, ok := m.ReadSession(r)
	if !ok {
		return nil, model.NewUnauthorizedError()
	}
	return session, nil
}

// ClearCookie はセッションCookieを削除する。何度呼んでもよい。
func (m *SessionManager) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     OwnerSessionCookie,
		Value:    "",
		Path:     "/",
		Domain:   m.cfg.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
