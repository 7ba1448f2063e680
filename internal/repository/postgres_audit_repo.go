package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/jobdesk/internal/model"
)

// PostgresAuditLogRepo はPostgreSQLを使用した監査ログリポジトリ。
type PostgresAuditLogRepo struct {
	db *sql.DB
}

// NewPostgresAuditLogRepo はPostgresAuditLogRepoを生成する。
func NewPostgresAuditLogRepo(db *sql.DB) *PostgresAuditLogRepo {
	return &PostgresAuditLogRepo{db: db}
}

// Create は監査ログを記録する。metaはJSONBとして保存する。
// IDと作成日時が未設定の場合はここで補う。
func (r *PostgresAuditLogRepo) Create(ctx context.Context, e *model.AuditLog) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	meta := e.Meta
	if meta == nil {
		meta = map[string]any{}
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("監査ログmetaのエンコードに失敗しました: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO audit_logs (id, org_id, actor, action, target_type, target_id, meta, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.OrgID, e.Actor, e.Action, e.TargetType, e.TargetID, raw, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("監査ログの作成に失敗しました: %w", err)
	}
	return nil
}

// DeleteOlderThan は指定日時より前の監査ログを削除する。
func (r *PostgresAuditLogRepo) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM audit_logs WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("古い監査ログの削除に失敗しました: %w", err)
	}
	return result.RowsAffected()
}

// compile-time interface check
var _ AuditLogRepository = (*PostgresAuditLogRepo)(nil)
