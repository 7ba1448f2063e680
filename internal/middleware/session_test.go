package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/jobdesk/internal/auth"
	"github.com/hitoshi/jobdesk/internal/model"
)

func TestSessionMiddleware_ValidSession_InjectsOwner(t *testing.T) {
	mw := NewSessionMiddleware(sessionFor("tok", testOwner))

	var got *auth.OwnerSession
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = OwnerFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
	req.AddCookie(&http.Cookie{Name: auth.OwnerSessionCookie, Value: "tok"})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got == nil || got.UserID != "user-1" {
		t.Errorf("owner = %+v", got)
	}
}

func TestSessionMiddleware_NoSession_Returns401JSON(t *testing.T) {
	handler := NewSessionMiddleware(sessionFor("tok", testOwner))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Code != model.ErrCodeUnauthorized {
		t.Errorf("code = %q", body.Code)
	}
}

func TestSessionMiddleware_StoreError_Returns500(t *testing.T) {
	reader := &mockSessionReader{requireFn: func(*http.Request) (*auth.OwnerSession, error) {
		return nil, errors.New("db down")
	}}
	handler := NewSessionMiddleware(reader)(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/jobs", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestJobAccessMiddleware_ClientPrincipal(t *testing.T) {
	gate := &mockAuthorizer{authorizeFn: func(context.Context, *http.Request, string) (*auth.Principal, error) {
		return auth.ClientPrincipal(testClient), nil
	}}
	mw := NewJobAccessMiddleware(gate, func(r *http.Request) string { return "job-1" })

	var principal *auth.Principal
	var ownerErr error
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, _ = PrincipalFromContext(r.Context())
		_, ownerErr = OwnerFromContext(r.Context())
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/jobs/job-1/messages?t=x", nil))

	if principal == nil || principal.Kind != auth.ActorClient {
		t.Fatalf("principal = %+v", principal)
	}
	if ownerErr == nil {
		t.Error("client requests should not carry an owner session")
	}
	if len(gate.jobIDs) != 1 || gate.jobIDs[0] != "job-1" {
		t.Errorf("authorized job ids = %v", gate.jobIDs)
	}
}

func TestJobAccessMiddleware_OwnerPrincipal_AlsoInjectsOwner(t *testing.T) {
	gate := &mockAuthorizer{authorizeFn: func(context.Context, *http.Request, string) (*auth.Principal, error) {
		return auth.OwnerPrincipal(testOwner), nil
	}}

	var owner *auth.OwnerSession
	handler := NewJobAccessMiddleware(gate, func(*http.Request) string { return "job-1" })(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner, _ = OwnerFromContext(r.Context())
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if owner == nil || owner.UserID != "user-1" {
		t.Errorf("owner = %+v", owner)
	}
}

func TestJobAccessMiddleware_GateErrorsMapToStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"unauthorized", model.NewUnauthorizedError(), http.StatusUnauthorized},
		{"forbidden", model.NewForbiddenError(), http.StatusForbidden},
		{"not found", model.NewJobNotFoundError("job-x"), http.StatusNotFound},
		{"infrastructure", errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate := &mockAuthorizer{authorizeFn: func(context.Context, *http.Request, string) (*auth.Principal, error) {
				return nil, tt.err
			}}
			handler := NewJobAccessMiddleware(gate, func(*http.Request) string { return "job-x" })(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatal("handler should not be called")
			}))

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestContextHelpers_Empty(t *testing.T) {
	if _, err := OwnerFromContext(context.Background()); err == nil {
		t.Error("OwnerFromContext should fail on empty context")
	}
	if _, err := PrincipalFromContext(context.Background()); err == nil {
		t.Error("PrincipalFromContext should fail on empty context")
	}
}
