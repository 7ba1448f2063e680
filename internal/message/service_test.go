package message

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hitoshi/jobdesk/internal/auth"
	"github.com/hitoshi/jobdesk/internal/model"
	"github.com/hitoshi/jobdesk/internal/security"
)

type mockMessageRepo struct {
	listFn  func(ctx context.Context, jobID string) ([]*model.Message, error)
	created []*model.Message
}

func (m *mockMessageRepo) ListByJob(ctx context.Context, jobID string) ([]*model.Message, error) {
	if m.listFn != nil {
		return m.listFn(ctx, jobID)
	}
	return nil, nil
}

func (m *mockMessageRepo) Create(_ context.Context, msg *model.Message) error {
	m.created = append(m.created, msg)
	return nil
}

var (
	owner  = auth.OwnerPrincipal(&auth.OwnerSession{UserID: "user-a", OrgID: "org-a"})
	client = auth.ClientPrincipal(&auth.ClientClaims{JobID: "job-1"})
)

func newTestService() (*Service, *mockMessageRepo) {
	repo := &mockMessageRepo{}
	return NewService(repo, security.NewMessageSanitizer()), repo
}

func errorCode(err error) string {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}

func TestCreate_SanitizesBody(t *testing.T) {
	svc, repo := newTestService()

	msg, err := svc.Create(context.Background(), client, "job-1", model.SenderClient, "<b>Hi</b> <script>alert(1)</script>there")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if msg.Body != "Hi there" {
		t.Errorf("Body = %q, want %q", msg.Body, "Hi there")
	}
	if len(repo.created) != 1 || repo.created[0].JobID != "job-1" {
		t.Errorf("created = %+v", repo.created)
	}
}

func TestCreate_SenderRules(t *testing.T) {
	tests := []struct {
		name      string
		principal *auth.Principal
		sender    model.SenderType
		wantCode  string
	}{
		{"client as client", client, model.SenderClient, ""},
		{"client as owner", client, model.SenderOwner, model.ErrCodeSenderMismatch},
		{"client as system", client, model.SenderSystem, model.ErrCodeSenderMismatch},
		{"owner as owner", owner, model.SenderOwner, ""},
		{"owner as system", owner, model.SenderSystem, ""},
		{"owner as client", owner, model.SenderClient, model.ErrCodeSenderMismatch},
		{"unknown sender", owner, model.SenderType("bot"), model.ErrCodeValidationFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo := newTestService()
			_, err := svc.Create(context.Background(), tt.principal, "job-1", tt.sender, "hello")
			if got := errorCode(err); got != tt.wantCode {
				t.Fatalf("code = %q, want %q (err=%v)", got, tt.wantCode, err)
			}
			if tt.wantCode != "" && len(repo.created) != 0 {
				t.Error("rejected message should not be stored")
			}
		})
	}
}

func TestCreate_BodyLength(t *testing.T) {
	svc, _ := newTestService()

	if _, err := svc.Create(context.Background(), owner, "job-1", model.SenderOwner, "<p></p>  "); errorCode(err) != model.ErrCodeValidationFailed {
		t.Errorf("empty after sanitize: err = %v", err)
	}

	exact := strings.Repeat("あ", MaxBodyLength)
	if _, err := svc.Create(context.Background(), owner, "job-1", model.SenderOwner, exact); err != nil {
		t.Errorf("%d runes should be accepted: %v", MaxBodyLength, err)
	}

	over := strings.Repeat("a", MaxBodyLength+1)
	if _, err := svc.Create(context.Background(), owner, "job-1", model.SenderOwner, over); errorCode(err) != model.ErrCodeValidationFailed {
		t.Errorf("over limit: err = %v", err)
	}
}

// TestCreate_StoresPlainText は記号を含む本文が文字参照に変換されずに保存されることを検証する。
func TestCreate_StoresPlainText(t *testing.T) {
	svc, repo := newTestService()

	msg, err := svc.Create(context.Background(), client, "job-1", model.SenderClient, "Tom & Jerry's <3 offer")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if msg.Body != "Tom & Jerry's <3 offer" {
		t.Errorf("Body = %q", msg.Body)
	}
	if repo.created[0].Body != msg.Body {
		t.Errorf("stored body = %q", repo.created[0].Body)
	}
}

// TestCreate_LengthCountsInputRunes は文字数制限が入力の文字数に対して適用されることを検証する。
func TestCreate_LengthCountsInputRunes(t *testing.T) {
	svc, _ := newTestService()

	body := strings.Repeat("&", 2000)
	msg, err := svc.Create(context.Background(), owner, "job-1", model.SenderOwner, body)
	if err != nil {
		t.Fatalf("2000 ampersands should be accepted: %v", err)
	}
	if msg.Body != body {
		t.Errorf("Body length = %d, want 2000", len(msg.Body))
	}
}

func TestList_WrapsRepoError(t *testing.T) {
	svc, repo := newTestService()
	repoErr := errors.New("db down")
	repo.listFn = func(context.Context, string) ([]*model.Message, error) { return nil, repoErr }

	if _, err := svc.List(context.Background(), "job-1"); !errors.Is(err, repoErr) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}
