package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/jobdesk/internal/model"
)

// PostgresMessageRepo はPostgreSQLを使用したメッセージリポジトリ。
type PostgresMessageRepo struct {
	db *sql.DB
}

// NewPostgresMessageRepo はPostgresMessageRepoを生成する。
func NewPostgresMessageRepo(db *sql.DB) *PostgresMessageRepo {
	return &PostgresMessageRepo{db: db}
}

// ListByJob はジョブのメッセージを作成日時の昇順で返す。
func (r *PostgresMessageRepo) ListByJob(ctx context.Context, jobID string) ([]*model.Message, error) {
	if !isUUID(jobID) {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, job_id, sender_type, body, created_at
		 FROM messages WHERE job_id = $1
		 ORDER BY created_at ASC, id ASC`,
		jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("メッセージ一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var msgs []*model.Message
	for rows.Next() {
		m := &model.Message{}
		if err := rows.Scan(&m.ID, &m.JobID, &m.SenderType, &m.Body, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("メッセージのスキャンに失敗しました: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("メッセージ一覧の走査に失敗しました: %w", err)
	}
	return msgs, nil
}

// Create はメッセージを作成する。
func (r *PostgresMessageRepo) Create(ctx context.Context, m *model.Message) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO messages (id, job_id, sender_type, body, created_at) VALUES ($1, $2, $3, $4, $5)`,
		m.ID, m.JobID, m.SenderType, m.Body, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("メッセージの作成に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ MessageRepository = (*PostgresMessageRepo)(nil)
