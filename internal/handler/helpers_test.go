package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/jobdesk/internal/activity"
	"github.com/hitoshi/jobdesk/internal/auth"
	"github.com/hitoshi/jobdesk/internal/invoice"
	"github.com/hitoshi/jobdesk/internal/job"
	"github.com/hitoshi/jobdesk/internal/middleware"
	"github.com/hitoshi/jobdesk/internal/model"
	"github.com/hitoshi/jobdesk/internal/validate"
)

// --- モック定義 ---

type mockLoginService struct {
	loginFn func(ctx context.Context, email, password string) (*auth.LoginResult, error)
}

func (m *mockLoginService) Login(ctx context.Context, email, password string) (*auth.LoginResult, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, email, password)
	}
	return nil, model.NewInvalidCredentialsError()
}

type mockSessionCookies struct {
	attached string
	cleared  bool
}

func (m *mockSessionCookies) AttachCookie(w http.ResponseWriter, token string) {
	m.attached = token
	http.SetCookie(w, &http.Cookie{Name: auth.OwnerSessionCookie, Value: token, Path: "/"})
}

func (m *mockSessionCookies) ClearCookie(w http.ResponseWriter) {
	m.cleared = true
	http.SetCookie(w, &http.Cookie{Name: auth.OwnerSessionCookie, Value: "", Path: "/", MaxAge: -1})
}

type mockJobService struct {
	createFn func(ctx context.Context, session *auth.OwnerSession, in job.CreateInput) (*job.CreateResult, error)
	listFn   func(ctx context.Context, session *auth.OwnerSession, status string) ([]*model.Job, error)
	getFn    func(ctx context.Context, session *auth.OwnerSession, jobID string) (*model.JobDetail, error)
	updateFn func(ctx context.Context, session *auth.OwnerSession, jobID string, in job.UpdateInput) (*model.Job, error)
	deleteFn func(ctx context.Context, session *auth.OwnerSession, jobID string) error
	rotateFn func(ctx context.Context, session *auth.OwnerSession, jobID string) (*auth.PortalLink, error)
}

func (m *mockJobService) Create(ctx context.Context, session *auth.OwnerSession, in job.CreateInput) (*job.CreateResult, error) {
	if m.createFn != nil {
		return m.createFn(ctx, session, in)
	}
	return nil, nil
}

func (m *mockJobService) List(ctx context.Context, session *auth.OwnerSession, status string) ([]*model.Job, error) {
	if m.listFn != nil {
		return m.listFn(ctx, session, status)
	}
	return nil, nil
}

func (m *mockJobService) Get(ctx context.Context, session *auth.OwnerSession, jobID string) (*model.JobDetail, error) {
	if m.getFn != nil {
		return m.getFn(ctx, session, jobID)
	}
	return nil, model.NewJobNotFoundError(jobID)
}

func (m *mockJobService) Update(ctx context.Context, session *auth.OwnerSession, jobID string, in job.UpdateInput) (*model.Job, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, session, jobID, in)
	}
	return nil, nil
}

func (m *mockJobService) Delete(ctx context.Context, session *auth.OwnerSession, jobID string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, session, jobID)
	}
	return nil
}

func (m *mockJobService) RotatePortalLink(ctx context.Context, session *auth.OwnerSession, jobID string) (*auth.PortalLink, error) {
	if m.rotateFn != nil {
		return m.rotateFn(ctx, session, jobID)
	}
	return nil, nil
}

type mockMessageService struct {
	listFn   func(ctx context.Context, jobID string) ([]*model.Message, error)
	createFn func(ctx context.Context, p *auth.Principal, jobID string, sender model.SenderType, body string) (*model.Message, error)
}

func (m *mockMessageService) List(ctx context.Context, jobID string) ([]*model.Message, error) {
	if m.listFn != nil {
		return m.listFn(ctx, jobID)
	}
	return nil, nil
}

func (m *mockMessageService) Create(ctx context.Context, p *auth.Principal, jobID string, sender model.SenderType, body string) (*model.Message, error) {
	if m.createFn != nil {
		return m.createFn(ctx, p, jobID, sender, body)
	}
	return nil, nil
}

type mockAttachmentService struct {
	presignFn func(ctx context.Context, p *auth.Principal, jobID, contentType string, uploadedByClient bool) (*model.PresignedUpload, error)
	listFn    func(ctx context.Context, jobID string) ([]*model.Attachment, error)
}

func (m *mockAttachmentService) Presign(ctx context.Context, p *auth.Principal, jobID, contentType string, uploadedByClient bool) (*model.PresignedUpload, error) {
	if m.presignFn != nil {
		return m.presignFn(ctx, p, jobID, contentType, uploadedByClient)
	}
	return nil, nil
}

func (m *mockAttachmentService) List(ctx context.Context, jobID string) ([]*model.Attachment, error) {
	if m.listFn != nil {
		return m.listFn(ctx, jobID)
	}
	return nil, nil
}

type mockInvoiceService struct {
	createFn  func(ctx context.Context, session *auth.OwnerSession, in invoice.CreateInput) (*model.Invoice, error)
	payLinkFn func(ctx context.Context, session *auth.OwnerSession, invoiceID string) (string, error)
}

func (m *mockInvoiceService) Create(ctx context.Context, session *auth.OwnerSession, in invoice.CreateInput) (*model.Invoice, error) {
	if m.createFn != nil {
		return m.createFn(ctx, session, in)
	}
	return nil, nil
}

func (m *mockInvoiceService) CreatePayLink(ctx context.Context, session *auth.OwnerSession, invoiceID string) (string, error) {
	if m.payLinkFn != nil {
		return m.payLinkFn(ctx, session, invoiceID)
	}
	return "", nil
}

type mockPortalService struct {
	summaryFn func(ctx context.Context, jobID string) (*activity.Summary, error)
}

func (m *mockPortalService) Summary(ctx context.Context, jobID string) (*activity.Summary, error) {
	if m.summaryFn != nil {
		return m.summaryFn(ctx, jobID)
	}
	return nil, model.NewJobNotFoundError(jobID)
}

// --- テストヘルパー ---

var testOwner = &auth.OwnerSession{
	UserID: "user-1",
	OrgID:  "org-1",
	Email:  "owner@example.com",
	Role:   model.UserRoleOwner,
}

// withOwner はセッションミドルウェア通過後と同じコンテキストを作る。
func withOwner(r *http.Request, s *auth.OwnerSession) *http.Request {
	return r.WithContext(middleware.ContextWithOwner(r.Context(), s))
}

// withPrincipal は二重認可ゲート通過後と同じコンテキストを作る。
func withPrincipal(r *http.Request, p *auth.Principal) *http.Request {
	ctx := middleware.ContextWithPrincipal(r.Context(), p)
	if p.Kind == auth.ActorOwner {
		ctx = middleware.ContextWithOwner(ctx, p.Owner)
	}
	return r.WithContext(ctx)
}

func clientPrincipal(jobID string) *auth.Principal {
	return auth.ClientPrincipal(&auth.ClientClaims{JobID: jobID, ClientEmail: "client@example.com"})
}

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	return r.WithContext(ctx)
}

// parseAPIErrorResponse はレスポンスボディからAPIErrorレスポンスをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var result map[string]string
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return result
}

// decodeJSON はレスポンスボディを汎用マップにデコードする。
func decodeJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var result map[string]any
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return result
}

func newTestValidator(t *testing.T) *validate.Validator {
	t.Helper()
	v, err := validate.New()
	if err != nil {
		t.Fatalf("validate.New: %v", err)
	}
	return v
}
