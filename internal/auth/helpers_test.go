package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/jobdesk/internal/model"
)

// --- モック定義 ---

type mockUserFinder struct {
	findByIDFn func(ctx context.Context, id string) (*model.User, error)
}

func (m *mockUserFinder) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

type mockJobScopes struct {
	mu     sync.Mutex
	calls  int
	scopes map[string]*model.JobScope
	err    error
}

func (m *mockJobScopes) FindJobScope(_ context.Context, jobID string) (*model.JobScope, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.scopes[jobID], nil
}

func (m *mockJobScopes) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type recordedDecision struct{ track, outcome string }

type mockRecorder struct {
	decisions []recordedDecision
}

func (m *mockRecorder) RecordGateDecision(track, outcome string) {
	m.decisions = append(m.decisions, recordedDecision{track, outcome})
}

// --- テスト用ヘルパー ---

var (
	testSessionSecret = []byte("owner-session-secret-for-tests-0123456789")
	testPortalSecret  = []byte("client-portal-secret-for-tests-0123456789")
	testNow           = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

var testUsers = map[string]*model.User{
	"user-a": {ID: "user-a", OrgID: "org-a", Email: "owner@a.example", Role: model.UserRoleOwner},
	"user-b": {ID: "user-b", OrgID: "org-b", Email: "owner@b.example", Role: model.UserRoleOwner},
}

func newTestSessionManager() *SessionManager {
	finder := &mockUserFinder{findByIDFn: func(_ context.Context, id string) (*model.User, error) {
		return testUsers[id], nil
	}}
	return NewSessionManager(finder, SessionConfig{Secret: testSessionSecret, MaxAge: 7 * 24 * time.Hour}).
		WithClock(fixedClock(testNow))
}

func newTestPortalTokens() *PortalTokens {
	return NewPortalTokens(testPortalSecret, 7*24*time.Hour).WithClock(fixedClock(testNow))
}

// requestWithSession はセッションCookie付きのリクエストを生成する。
func requestWithSession(method, target, token string) *http.Request {
	r := httptest.NewRequest(method, target, nil)
	if token != "" {
		r.AddCookie(&http.Cookie{Name: OwnerSessionCookie, Value: token})
	}
	return r
}

// tamperSignature は署名部の先頭1文字を書き換える。
func tamperSignature(token string) string {
	parts := strings.Split(token, ".")
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	parts[2] = string(sig)
	return strings.Join(parts, ".")
}
