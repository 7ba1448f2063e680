// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/jobdesk/internal/auth"
	"github.com/hitoshi/jobdesk/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	ownerContextKey     = contextKey("owner_session")
	principalContextKey = contextKey("principal")
	actorContextKey     = contextKey("actor")
)

// SessionReader はCookieからオーナーセッションを復元する。auth.SessionManagerが実装する。
type SessionReader interface {
	RequireSession(r *http.Request) (*auth.OwnerSession, error)
}

// JobAuthorizer はジョブ単位の二重認可を行う。auth.Gateが実装する。
type JobAuthorizer interface {
	Authorize(ctx context.Context, r *http.Request, jobID string) (*auth.Principal, error)
}

// NewSessionMiddleware はオーナーセッションを必須とするミドルウェアを返す。
// 認証済みセッションをリクエストコンテキストに注入し、未認証には401を返す。
func NewSessionMiddleware(sessions SessionReader) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, err := sessions.RequireSession(r)
			if err != nil {
				writeAuthError(w, err)
				return
			}

			setActor(r.Context(), "owner:"+session.UserID)
			ctx := ContextWithOwner(r.Context(), session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// NewJobAccessMiddleware はオーナーセッションまたはポータルトークンで
// jobIDOf(r) のジョブへのアクセスを認可し、操作主体をコンテキストに注入する。
func NewJobAccessMiddleware(gate JobAuthorizer, jobIDOf func(*http.Request) string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := gate.Authorize(r.Context(), r, jobIDOf(r))
			if err != nil {
				writeAuthError(w, err)
				return
			}

			setActor(r.Context(), principal.Label())
			ctx := ContextWithPrincipal(r.Context(), principal)
			if principal.Kind == auth.ActorOwner {
				ctx = ContextWithOwner(ctx, principal.Owner)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// writeAuthError は認可ゲートのエラーを統一フォーマットで返す。
func writeAuthError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		WriteErrorResponse(w, StatusForCode(apiErr.Code), apiErr)
		return
	}
	slog.Error("authorization failed", slog.String("error", err.Error()))
	WriteInternalServerError(w)
}

// OwnerFromContext はリクエストコンテキストからオーナーセッションを取得する。
func OwnerFromContext(ctx context.Context) (*auth.OwnerSession, error) {
	s, ok := ctx.Value(ownerContextKey).(*auth.OwnerSession)
	if !ok || s == nil {
		return nil, fmt.Errorf("owner session not found in context")
	}
	return s, nil
}

// ContextWithOwner はコンテキストにオーナーセッションを注入する。
func ContextWithOwner(ctx context.Context, s *auth.OwnerSession) context.Context {
	return context.WithValue(ctx, ownerContextKey, s)
}

// PrincipalFromContext はゲートを通過した操作主体を取得する。
func PrincipalFromContext(ctx context.Context) (*auth.Principal, error) {
	p, ok := ctx.Value(principalContextKey).(*auth.Principal)
	if !ok || p == nil {
		return nil, fmt.Errorf("principal not found in context")
	}
	return p, nil
}

// ContextWithPrincipal はコンテキストに操作主体を注入する。
func ContextWithPrincipal(ctx context.Context, p *auth.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

// actorHolder はログミドルウェアが後段で判明した操作主体を受け取るための入れ物。
type actorHolder struct {
	label string
}

func withActorHolder(ctx context.Context) (context.Context, *actorHolder) {
	h := &actorHolder{}
	return context.WithValue(ctx, actorContextKey, h), h
}

func setActor(ctx context.Context, label string) {
	if h, ok := ctx.Value(actorContextKey).(*actorHolder); ok {
		h.label = label
	}
}
