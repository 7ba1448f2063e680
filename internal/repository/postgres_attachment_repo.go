package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/jobdesk/internal/model"
)

// PostgresAttachmentRepo はPostgreSQLを使用した添付ファイルリポジトリ。
type PostgresAttachmentRepo struct {
	db *sql.DB
}

// NewPostgresAttachmentRepo はPostgresAttachmentRepoを生成する。
func NewPostgresAttachmentRepo(db *sql.DB) *PostgresAttachmentRepo {
	return &PostgresAttachmentRepo{db: db}
}

// ListByJob はジョブの添付ファイルを作成日時の降順で返す。
func (r *PostgresAttachmentRepo) ListByJob(ctx context.Context, jobID string) ([]*model.Attachment, error) {
	if !isUUID(jobID) {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, job_id, file_key, mime_type, uploaded_by_client, uploaded_by_user_id, created_at
		 FROM attachments WHERE job_id = $1
		 ORDER BY created_at DESC`,
		jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("添付ファイル一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var atts []*model.Attachment
	for rows.Next() {
		a := &model.Attachment{}
		var userID sql.NullString
		if err := rows.Scan(&a.ID, &a.JobID, &a.FileKey, &a.MimeType, &a.UploadedByClient, &userID, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("添付ファイルのスキャンに失敗しました: %w", err)
		}
		a.UploadedByUserID = userID.String
		atts = append(atts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("添付ファイル一覧の走査に失敗しました: %w", err)
	}
	return atts, nil
}

// Create は添付ファイルメタデータを作成する。
func (r *PostgresAttachmentRepo) Create(ctx context.Context, a *model.Attachment) error {
	var userID sql.NullString
	if a.UploadedByUserID != "" {
		userID = sql.NullString{String: a.UploadedByUserID, Valid: true}
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO attachments (id, job_id, file_key, mime_type, uploaded_by_client, uploaded_by_user_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.JobID, a.FileKey, a.MimeType, a.UploadedByClient, userID, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("添付ファイルの作成に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ AttachmentRepository = (*PostgresAttachmentRepo)(nil)
