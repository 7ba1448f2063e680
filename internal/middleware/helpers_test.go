package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/hitoshi/jobdesk/internal/auth"
	"github.com/hitoshi/jobdesk/internal/model"
)

// mockSessionReader はSessionReaderのモック。
type mockSessionReader struct {
	requireFn func(r *http.Request) (*auth.OwnerSession, error)
}

func (m *mockSessionReader) RequireSession(r *http.Request) (*auth.OwnerSession, error) {
	if m.requireFn != nil {
		return m.requireFn(r)
	}
	return nil, model.NewUnauthorizedError()
}

// sessionFor はCookie値が一致した場合のみセッションを返すSessionReaderを生成する。
func sessionFor(cookieValue string, s *auth.OwnerSession) *mockSessionReader {
	return &mockSessionReader{requireFn: func(r *http.Request) (*auth.OwnerSession, error) {
		c, err := r.Cookie(auth.OwnerSessionCookie)
		if err != nil || c.Value != cookieValue {
			return nil, model.NewUnauthorizedError()
		}
		return s, nil
	}}
}

// mockAuthorizer はJobAuthorizerのモック。
type mockAuthorizer struct {
	authorizeFn func(ctx context.Context, r *http.Request, jobID string) (*auth.Principal, error)
	jobIDs      []string
}

func (m *mockAuthorizer) Authorize(ctx context.Context, r *http.Request, jobID string) (*auth.Principal, error) {
	m.jobIDs = append(m.jobIDs, jobID)
	return m.authorizeFn(ctx, r, jobID)
}

// mockMetrics はHTTPRecorderとRateLimitRecorderのモック。
type mockMetrics struct {
	mu       sync.Mutex
	statuses []int
	latency  []time.Duration
	limited  []string
}

func (m *mockMetrics) RecordHTTPStatus(code int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses = append(m.statuses, code)
}

func (m *mockMetrics) RecordRequestLatency(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latency = append(m.latency, d)
}

func (m *mockMetrics) RecordRateLimited(scope string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limited = append(m.limited, scope)
}

var (
	testOwner  = &auth.OwnerSession{UserID: "user-1", OrgID: "org-1", Email: "owner@example.com", Role: model.UserRoleOwner}
	testClient = &auth.ClientClaims{JobID: "job-1", ClientEmail: "client@example.com"}
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}
