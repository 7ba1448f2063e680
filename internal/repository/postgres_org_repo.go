package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/jobdesk/internal/model"
)

// PostgresOrganizationRepo はPostgreSQLを使用した組織リポジトリ。
type PostgresOrganizationRepo struct {
	db *sql.DB
}

// NewPostgresOrganizationRepo はPostgresOrganizationRepoを生成する。
func NewPostgresOrganizationRepo(db *sql.DB) *PostgresOrganizationRepo {
	return &PostgresOrganizationRepo{db: db}
}

// FindByID は指定IDの組織を取得する。見つからない場合はnilを返す。
func (r *PostgresOrganizationRepo) FindByID(ctx context.Context, id string) (*model.Organization, error) {
	if !isUUID(id) {
		return nil, nil
	}
	return r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM organizations WHERE id = $1`, id))
}

// FindFirst は最も古い組織を返す。
func (r *PostgresOrganizationRepo) FindFirst(ctx context.Context) (*model.Organization, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM organizations ORDER BY created_at ASC LIMIT 1`))
}

// FindByName は名前で組織を検索する。
func (r *PostgresOrganizationRepo) FindByName(ctx context.Context, name string) (*model.Organization, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM organizations WHERE name = $1 ORDER BY created_at ASC LIMIT 1`, name))
}

func (r *PostgresOrganizationRepo) scanOne(row *sql.Row) (*model.Organization, error) {
	org := &model.Organization{}
	err := row.Scan(&org.ID, &org.Name, &org.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("組織の取得に失敗しました: %w", err)
	}
	return org, nil
}

// Create は組織を作成する。
func (r *PostgresOrganizationRepo) Create(ctx context.Context, org *model.Organization) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO organizations (id, name, created_at) VALUES ($1, $2, $3)`,
		org.ID, org.Name, org.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("組織の作成に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ OrganizationRepository = (*PostgresOrganizationRepo)(nil)
