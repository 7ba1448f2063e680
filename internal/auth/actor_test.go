package auth

import (
	"testing"

	"github.com/hitoshi/jobdesk/internal/model"
)

func TestValidateSender(t *testing.T) {
	owner := OwnerPrincipal(&OwnerSession{UserID: "user-a", OrgID: "org-a"})
	client := ClientPrincipal(&ClientClaims{JobID: "job-a"})
	system := SystemPrincipal()

	tests := []struct {
		name      string
		principal *Principal
		sender    model.SenderType
		wantCode  string
	}{
		{"client sends client", client, model.SenderClient, ""},
		{"client sends owner", client, model.SenderOwner, model.ErrCodeSenderMismatch},
		{"client sends system", client, model.SenderSystem, model.ErrCodeSenderMismatch},
		{"owner sends owner", owner, model.SenderOwner, ""},
		{"owner sends system", owner, model.SenderSystem, ""},
		{"owner sends client", owner, model.SenderClient, model.ErrCodeSenderMismatch},
		{"system sends system", system, model.SenderSystem, ""},
		{"system sends owner", system, model.SenderOwner, model.ErrCodeSenderMismatch},
		{"unknown sender", owner, model.SenderType("admin"), model.ErrCodeValidationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSender(tt.principal, tt.sender)
			if tt.wantCode == "" {
				if err != nil {
					t.Errorf("expected no error, got %v", err)
				}
				return
			}
			assertAPIErrorCode(t, err, tt.wantCode)
		})
	}
}

func TestPrincipal_Label(t *testing.T) {
	if got := OwnerPrincipal(&OwnerSession{UserID: "u1"}).Label(); got != "owner:u1" {
		t.Errorf("owner label = %q", got)
	}
	if got := ClientPrincipal(&ClientClaims{JobID: "j1"}).Label(); got != "client:j1" {
		t.Errorf("client label = %q", got)
	}
	if got := SystemPrincipal().Label(); got != "system" {
		t.Errorf("system label = %q", got)
	}
	if got := ClientPrincipal(&ClientClaims{JobID: "j1"}).UserID(); got != "" {
		t.Errorf("client UserID() = %q, want empty", got)
	}
}

func TestActorKind_String(t *testing.T) {
	if ActorOwner.String() != "owner" || ActorClient.String() != "client" || ActorSystem.String() != "system" {
		t.Error("unexpected ActorKind names")
	}
	if ActorKind(99).String() != "ActorKind(99)" {
		t.Errorf("unknown kind = %q", ActorKind(99).String())
	}
}
