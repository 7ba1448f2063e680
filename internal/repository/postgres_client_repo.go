package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/jobdesk/internal/model"
)

// PostgresClientRepo はPostgreSQLを使用した顧客リポジトリ。
type PostgresClientRepo struct {
	db *sql.DB
}

// NewPostgresClientRepo はPostgresClientRepoを生成する。
func NewPostgresClientRepo(db *sql.DB) *PostgresClientRepo {
	return &PostgresClientRepo{db: db}
}

// Upsert は (org_id, email) で顧客を作成または名前を更新する。
// 既存顧客の場合はIDとcreated_atが既存の値になる。
func (r *PostgresClientRepo) Upsert(ctx context.Context, c *model.Client) (*model.Client, error) {
	saved := &model.Client{}
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO clients (id, org_id, name, email, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5)
		 ON CONFLICT (org_id, email) DO UPDATE
		   SET name = EXCLUDED.name, updated_at = EXCLUDED.updated_at
		 RETURNING id, org_id, name, email, created_at, updated_at`,
		c.ID, c.OrgID, c.Name, c.Email, c.CreatedAt,
	).Scan(&saved.ID, &saved.OrgID, &saved.Name, &saved.Email, &saved.CreatedAt, &saved.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("顧客のUPSERTに失敗しました: %w", err)
	}
	return saved, nil
}

// compile-time interface check
var _ ClientRepository = (*PostgresClientRepo)(nil)
