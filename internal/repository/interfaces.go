// Package repository はデータ永続化のインターフェースとPostgreSQL実装を提供する。
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/jobdesk/internal/model"
)

// OrganizationRepository は組織データの永続化インターフェース。
type OrganizationRepository interface {
	// FindByID は指定IDの組織を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Organization, error)

	// FindFirst は最も古い組織を返す。組織が存在しない場合はnilを返す。
	FindFirst(ctx context.Context) (*model.Organization, error)

	// FindByName は名前で組織を検索する。見つからない場合はnilを返す。
	FindByName(ctx context.Context, name string) (*model.Organization, error)

	// Create は組織を作成する。
	Create(ctx context.Context, org *model.Organization) error
}

// UserRepository はオーナーユーザーの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する（大文字小文字を区別しない）。
	// 複数組織に同一メールが存在する場合は最も古いユーザーを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成する。
	Create(ctx context.Context, user *model.User) error
}

// ClientRepository は顧客データの永続化インターフェース。
type ClientRepository interface {
	// Upsert は (org_id, email) をキーに顧客を作成または名前を更新し、保存後の顧客を返す。
	Upsert(ctx context.Context, client *model.Client) (*model.Client, error)
}

// JobRepository はジョブデータの永続化インターフェース。
type JobRepository interface {
	// FindByID は指定IDのジョブを顧客情報付きで取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Job, error)

	// FindJobScope は認可判定用の最小限の情報を取得する。見つからない場合はnilを返す。
	FindJobScope(ctx context.Context, id string) (*model.JobScope, error)

	// ListByOrg は組織のジョブを作成日時の降順で返す。statusが空の場合は全件。
	ListByOrg(ctx context.Context, orgID string, status model.JobStatus) ([]*model.Job, error)

	// Create はジョブを作成する。
	Create(ctx context.Context, job *model.Job) error

	// Update はタイトル・説明・ステータスを更新する。
	Update(ctx context.Context, job *model.Job) error

	// UpdateCRM はCRM連携情報を保存する。
	UpdateCRM(ctx context.Context, jobID, provider, externalID string) error

	// UpdatePortalToken は現在有効なポータルトークンの指紋と有効期限を置き換える。
	UpdatePortalToken(ctx context.Context, jobID, fingerprint string, expiresAt time.Time) error

	// ClearExpiredPortalTokens は期限切れの指紋を消去し、件数を返す。
	ClearExpiredPortalTokens(ctx context.Context, now time.Time) (int64, error)

	// Delete は指定IDのジョブを削除する。関連データはCASCADE削除される。
	Delete(ctx context.Context, id string) error
}

// MessageRepository はメッセージの永続化インターフェース。
type MessageRepository interface {
	// ListByJob はジョブのメッセージを作成日時の昇順で返す。
	ListByJob(ctx context.Context, jobID string) ([]*model.Message, error)

	// Create はメッセージを作成する。
	Create(ctx context.Context, msg *model.Message) error
}

// AttachmentRepository は添付ファイルメタデータの永続化インターフェース。
type AttachmentRepository interface {
	// ListByJob はジョブの添付ファイルを作成日時の降順で返す。
	ListByJob(ctx context.Context, jobID string) ([]*model.Attachment, error)

	// Create は添付ファイルメタデータを作成する。
	Create(ctx context.Context, att *model.Attachment) error
}

// InvoiceRepository は請求書と明細の永続化インターフェース。
type InvoiceRepository interface {
	// FindByID は明細と組織ID付きで請求書を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Invoice, error)

	// ListByJob はジョブの請求書を明細付きで作成日時の降順に返す。
	ListByJob(ctx context.Context, jobID string) ([]*model.Invoice, error)

	// CreateWithItems は請求書番号を採番し、請求書と明細を同一トランザクションで作成する。
	// 採番結果はinv.Numberに設定される。
	CreateWithItems(ctx context.Context, inv *model.Invoice) error

	// UpdatePaymentLink は支払いリンクURLとステータスを更新する。
	UpdatePaymentLink(ctx context.Context, id, url string, status model.InvoiceStatus) error
}

// AuditLogRepository は監査ログの永続化インターフェース。
type AuditLogRepository interface {
	// Create は監査ログを記録する。
	Create(ctx context.Context, entry *model.AuditLog) error

	// DeleteOlderThan は指定日時より前の監査ログを削除し、件数を返す。
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// isUUID はIDがUUID形式かどうかを返す。
// UUID以外の値をクエリに渡すとPostgreSQLが型エラーを返すため、事前に未検出扱いにする。
func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
