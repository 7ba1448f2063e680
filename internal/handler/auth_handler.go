package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/jobdesk/internal/auth"
	"github.com/hitoshi/jobdesk/internal/validate"
)

// LoginServiceInterface は認証ハンドラーが必要とするログイン処理。
type LoginServiceInterface interface {
	Login(ctx context.Context, email, password string) (*auth.LoginResult, error)
}

// SessionCookies はセッションCookieの付与と削除を行う。auth.SessionManagerが実装する。
type SessionCookies interface {
	AttachCookie(w http.ResponseWriter, token string)
	ClearCookie(w http.ResponseWriter)
}

// AuthHandler はオーナー認証関連のHTTPハンドラー。
type AuthHandler struct {
	service   LoginServiceInterface
	cookies   SessionCookies
	validator BodyValidator
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service LoginServiceInterface, cookies SessionCookies, validator BodyValidator) *AuthHandler {
	return &AuthHandler{service: service, cookies: cookies, validator: validator}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ownerResponse struct {
	UserID string `json:"id"`
	OrgID  string `json:"orgId"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

// Login は資格情報を検証し、セッションCookieを発行する。
// POST /api/auth/owner/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(w, r, h.validator, validate.SchemaLogin, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	result, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.cookies.AttachCookie(w, result.Token)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"user": ownerResponse{
			UserID: result.User.ID,
			OrgID:  result.User.OrgID,
			Email:  result.User.Email,
			Role:   string(result.User.Role),
		},
	})
}

// Logout はセッションCookieを削除する。Cookieがなくても成功を返す。
// POST /api/auth/owner/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.cookies.ClearCookie(w)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Me は現在のオーナー情報を返す。
// GET /api/auth/owner/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	session, ok := requireOwner(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ownerResponse{
		UserID: session.UserID,
		OrgID:  session.OrgID,
		Email:  session.Email,
		Role:   string(session.Role),
	})
}
