package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/jobdesk/internal/model"
)

// PostgresJobRepo はPostgreSQLを使用したジョブリポジトリ。
type PostgresJobRepo struct {
	db *sql.DB
}

// NewPostgresJobRepo はPostgresJobRepoを生成する。
func NewPostgresJobRepo(db *sql.DB) *PostgresJobRepo {
	return &PostgresJobRepo{db: db}
}

const jobSelectColumns = `j.id, j.org_id, j.client_id, j.title, j.description, j.status,
	j.crm_provider, j.crm_external_id, j.portal_token_fingerprint, j.portal_token_expires_at,
	j.created_at, j.updated_at,
	c.id, c.org_id, c.name, c.email, c.created_at, c.updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(s rowScanner) (*model.Job, error) {
	job := &model.Job{Client: &model.Client{}}
	var crmProvider, crmExternalID, fingerprint sql.NullString
	var expiresAt sql.NullTime
	err := s.Scan(
		&job.ID, &job.OrgID, &job.ClientID, &job.Title, &job.Description, &job.Status,
		&crmProvider, &crmExternalID, &fingerprint, &expiresAt,
		&job.CreatedAt, &job.UpdatedAt,
		&job.Client.ID, &job.Client.OrgID, &job.Client.Name, &job.Client.Email,
		&job.Client.CreatedAt, &job.Client.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	job.CRMProvider = crmProvider.String
	job.CRMExternalID = crmExternalID.String
	job.PortalTokenFingerprint = fingerprint.String
	if expiresAt.Valid {
		t := expiresAt.Time
		job.PortalTokenExpiresAt = &t
	}
	return job, nil
}

// FindByID は指定IDのジョブを顧客情報付きで取得する。見つからない場合はnilを返す。
func (r *PostgresJobRepo) FindByID(ctx context.Context, id string) (*model.Job, error) {
	if !isUUID(id) {
		return nil, nil
	}
	job, err := scanJob(r.db.QueryRowContext(ctx,
		`SELECT `+jobSelectColumns+`
		 FROM jobs j JOIN clients c ON c.id = j.client_id
		 WHERE j.id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ジョブの取得に失敗しました: %w", err)
	}
	return job, nil
}

// FindJobScope は認可判定に必要な組織IDとトークン指紋のみを取得する。
func (r *PostgresJobRepo) FindJobScope(ctx context.Context, id string) (*model.JobScope, error) {
	if !isUUID(id) {
		return nil, nil
	}
	scope := &model.JobScope{}
	var fingerprint sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT id, org_id, portal_token_fingerprint FROM jobs WHERE id = $1`,
		id,
	).Scan(&scope.JobID, &scope.OrgID, &fingerprint)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ジョブスコープの取得に失敗しました: %w", err)
	}
	scope.PortalTokenFingerprint = fingerprint.String
	return scope, nil
}

// ListByOrg は組織のジョブを作成日時の降順で返す。
func (r *PostgresJobRepo) ListByOrg(ctx context.Context, orgID string, status model.JobStatus) ([]*model.Job, error) {
	if !isUUID(orgID) {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+jobSelectColumns+`
		 FROM jobs j JOIN clients c ON c.id = j.client_id
		 WHERE j.org_id = $1 AND ($2 = '' OR j.status = $2)
		 ORDER BY j.created_at DESC`,
		orgID, string(status),
	)
	if err != nil {
		return nil, fmt.Errorf("ジョブ一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var jobs []*model.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("ジョブのスキャンに失敗しました: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ジョブ一覧の走査に失敗しました: %w", err)
	}
	return jobs, nil
}

// Create はジョブを作成する。ポータルトークンの指紋が設定されていれば同時に保存する。
func (r *PostgresJobRepo) Create(ctx context.Context, job *model.Job) error {
	var expiresAt sql.NullTime
	if job.PortalTokenExpiresAt != nil {
		expiresAt = sql.NullTime{Time: *job.PortalTokenExpiresAt, Valid: true}
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO jobs (id, org_id, client_id, title, description, status,
		                   portal_token_fingerprint, portal_token_expires_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9, $10)`,
		job.ID, job.OrgID, job.ClientID, job.Title, job.Description, job.Status,
		job.PortalTokenFingerprint, expiresAt, job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("ジョブの作成に失敗しました: %w", err)
	}
	return nil
}

// Update はタイトル・説明・ステータスを更新する。
func (r *PostgresJobRepo) Update(ctx context.Context, job *model.Job) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE jobs SET title = $2, description = $3, status = $4, updated_at = $5 WHERE id = $1`,
		job.ID, job.Title, job.Description, job.Status, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("ジョブの更新に失敗しました: %w", err)
	}
	return nil
}

// UpdateCRM はCRM連携情報を保存する。
func (r *PostgresJobRepo) UpdateCRM(ctx context.Context, jobID, provider, externalID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE jobs SET crm_provider = $2, crm_external_id = $3, updated_at = now() WHERE id = $1`,
		jobID, provider, externalID,
	)
	if err != nil {
		return fmt.Errorf("CRM連携情報の更新に失敗しました: %w", err)
	}
	return nil
}

// UpdatePortalToken は現在有効なポータルトークンの指紋を置き換える。
// 旧トークンはこの時点でゲートを通過できなくなる。
func (r *PostgresJobRepo) UpdatePortalToken(ctx context.Context, jobID, fingerprint string, expiresAt time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE jobs SET portal_token_fingerprint = $2, portal_token_expires_at = $3, updated_at = now()
		 WHERE id = $1`,
		jobID, fingerprint, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("ポータルトークンの更新に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("job not found: %s", jobID)
	}
	return nil
}

// ClearExpiredPortalTokens は期限切れのトークン指紋を消去する。
func (r *PostgresJobRepo) ClearExpiredPortalTokens(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE jobs SET portal_token_fingerprint = NULL, portal_token_expires_at = NULL
		 WHERE portal_token_fingerprint IS NOT NULL AND portal_token_expires_at < $1`,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("期限切れトークン指紋の消去に失敗しました: %w", err)
	}
	return result.RowsAffected()
}

// Delete は指定IDのジョブを削除する。
func (r *PostgresJobRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ジョブの削除に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("job not found: %s", id)
	}
	return nil
}

// compile-time interface check
var _ JobRepository = (*PostgresJobRepo)(nil)
