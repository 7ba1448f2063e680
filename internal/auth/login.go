package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/jobdesk/internal/model"
)

const minPasswordLength = 8

// LoginUserStore はログイン時のユーザー検索・自動作成に必要なインターフェース。
type LoginUserStore interface {
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	Create(ctx context.Context, user *model.User) error
}

// FirstOrganizationFinder は自動作成ユーザーの所属先組織を返す。
type FirstOrganizationFinder interface {
	FindFirst(ctx context.Context) (*model.Organization, error)
}

// LoginService はオーナーのパスワードログインを処理する。
type LoginService struct {
	idp      IdentityProvider
	users    LoginUserStore
	orgs     FirstOrganizationFinder
	sessions *SessionManager
	// autoProvision が有効な場合、未登録ユーザーを最初の組織のOWNERとして作成する。
	autoProvision bool
}

// NewLoginService はLoginServiceを生成する。
func NewLoginService(idp IdentityProvider, users LoginUserStore, orgs FirstOrganizationFinder, sessions *SessionManager, autoProvision bool) *LoginService {
	return &LoginService{idp: idp, users: users, orgs: orgs, sessions: sessions, autoProvision: autoProvision}
}

// LoginResult はログイン成功時の結果。
type LoginResult struct {
	Token string
	User  *model.User
}

// Login は資格情報を検証し、セッショントークンを発行する。
func (s *LoginService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, model.NewValidationError("メールアドレスの形式が正しくありません")
	}
	if len(password) < minPasswordLength {
		return nil, model.NewValidationError(fmt.Sprintf("パスワードは%d文字以上です", minPasswordLength))
	}

	ok, err := s.idp.VerifyPassword(ctx, email, password)
	if err != nil {
		return nil, fmt.Errorf("failed to verify credentials: %w", err)
	}
	if !ok {
		slog.Info("owner login rejected", slog.String("email", email))
		return nil, model.NewInvalidCredentialsError()
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		if !s.autoProvision {
			return nil, model.NewUserNotFoundError()
		}
		user, err = s.provision(ctx, email)
		if err != nil {
			return nil, err
		}
	}

	token, err := s.sessions.CreateSession(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	slog.Info("owner logged in",
		slog.String("user_id", user.ID),
		slog.String("org_id", user.OrgID),
	)
	return &LoginResult{Token: token, User: user}, nil
}

func (s *LoginService) provision(ctx context.Context, email string) (*model.User, error) {
	org, err := s.orgs.FindFirst(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to find organization: %w", err)
	}
	if org == nil {
		return nil, fmt.Errorf("no organization exists to provision %s into", email)
	}

	user := &model.User{
		ID:        uuid.NewString(),
		OrgID:     org.ID,
		Email:     email,
		Role:      model.UserRoleOwner,
		CreatedAt: time.Now(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to provision user: %w", err)
	}
	slog.Info("owner user provisioned",
		slog.String("user_id", user.ID),
		slog.String("org_id", org.ID),
	)
	return user, nil
}
