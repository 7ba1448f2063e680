// Package seed はYAMLファイルから組織とオーナーユーザーを投入する。
// 既存の組織（名前一致）とユーザー（メール一致）はスキップするため、何度実行してもよい。
package seed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/hitoshi/jobdesk/internal/model"
	"github.com/hitoshi/jobdesk/internal/repository"
)

// File はシードファイルの構造。
//
//	organizations:
//	  - name: Acme Plumbing
//	    users:
//	      - email: owner@acme.test
//	        role: OWNER
type File struct {
	Organizations []Organization `yaml:"organizations"`
}

// Organization はシード対象の組織。
type Organization struct {
	Name  string `yaml:"name"`
	Users []User `yaml:"users"`
}

// User はシード対象のユーザー。roleを省略した場合はOWNER。
type User struct {
	Email string `yaml:"email"`
	Role  string `yaml:"role"`
}

// Result は投入結果の件数。
type Result struct {
	OrganizationsCreated int
	UsersCreated         int
	Skipped              int
}

// Parse はYAMLを読み込んで検証する。
func Parse(r io.Reader) (*File, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("seed file is empty")
		}
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}

	for i, org := range f.Organizations {
		if strings.TrimSpace(org.Name) == "" {
			return nil, fmt.Errorf("organizations[%d].name is required", i)
		}
		for j, u := range org.Users {
			if !strings.Contains(u.Email, "@") {
				return nil, fmt.Errorf("organizations[%d].users[%d].email is invalid: %q", i, j, u.Email)
			}
			if u.Role != "" && model.UserRole(strings.ToUpper(u.Role)) != model.UserRoleOwner && model.UserRole(strings.ToUpper(u.Role)) != model.UserRoleStaff {
				return nil, fmt.Errorf("organizations[%d].users[%d].role is invalid: %q", i, j, u.Role)
			}
		}
	}
	return &f, nil
}

// Seeder はシードデータを投入する。
type Seeder struct {
	orgs   repository.OrganizationRepository
	users  repository.UserRepository
	logger *slog.Logger
	now    func() time.Time
}

// NewSeeder はSeederを生成する。
func NewSeeder(orgs repository.OrganizationRepository, users repository.UserRepository, logger *slog.Logger) *Seeder {
	return &Seeder{orgs: orgs, users: users, logger: logger, now: time.Now}
}

// Apply はシードデータを投入する。
func (s *Seeder) Apply(ctx context.Context, f *File) (*Result, error) {
	res := &Result{}

	for _, o := range f.Organizations {
		name := strings.TrimSpace(o.Name)
		org, err := s.orgs.FindByName(ctx, name)
		if err != nil {
			return res, fmt.Errorf("組織の検索に失敗しました: %w", err)
		}
		if org == nil {
			org = &model.Organization{ID: uuid.NewString(), Name: name, CreatedAt: s.now()}
			if err := s.orgs.Create(ctx, org); err != nil {
				return res, fmt.Errorf("組織の作成に失敗しました: %w", err)
			}
			res.OrganizationsCreated++
			s.logger.Info("organization created", slog.String("org_id", org.ID), slog.String("name", name))
		}

		for _, u := range o.Users {
			email := strings.ToLower(strings.TrimSpace(u.Email))
			existing, err := s.users.FindByEmail(ctx, email)
			if err != nil {
				return res, fmt.Errorf("ユーザーの検索に失敗しました: %w", err)
			}
			if existing != nil {
				res.Skipped++
				continue
			}

			role := model.UserRole(strings.ToUpper(u.Role))
			if role == "" {
				role = model.UserRoleOwner
			}
			user := &model.User{ID: uuid.NewString(), OrgID: org.ID, Email: email, Role: role, CreatedAt: s.now()}
			if err := s.users.Create(ctx, user); err != nil {
				return res, fmt.Errorf("ユーザーの作成に失敗しました: %w", err)
			}
			res.UsersCreated++
			s.logger.Info("user created", slog.String("user_id", user.ID), slog.String("org_id", org.ID))
		}
	}
	return res, nil
}
