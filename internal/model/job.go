// Package model はドメインモデルを定義する。
package model

import "time"

// JobStatus はジョブの進行状態を表す。
type JobStatus string

const (
	// JobStatusNew は作成直後の状態。
	JobStatusNew JobStatus = "NEW"
	// JobStatusInProgress は作業中。
	JobStatusInProgress JobStatus = "IN_PROGRESS"
	// JobStatusAwaitingClient はクライアントの返答待ち。
	JobStatusAwaitingClient JobStatus = "AWAITING_CLIENT"
	// JobStatusCompleted は完了。
	JobStatusCompleted JobStatus = "COMPLETED"
	// JobStatusCanceled はキャンセル済み。
	JobStatusCanceled JobStatus = "CANCELED"
)

// Valid はステータスが定義済みの値かどうかを返す。
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusNew, JobStatusInProgress, JobStatusAwaitingClient, JobStatusCompleted, JobStatusCanceled:
		return true
	default:
		return false
	}
}

// Client は事業者の顧客を表す。組織内でメールアドレスが一意。
type Client struct {
	ID        string
	OrgID     string
	Name      string
	Email     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Job は顧客から受けた案件を表す。
type Job struct {
	ID            string
	OrgID         string
	ClientID      string
	Title         string
	Description   string
	Status        JobStatus
	CRMProvider   string
	CRMExternalID string

	// PortalTokenFingerprint は現在有効なポータルトークンのblake3ダイジェスト。
	// 再発行すると置き換わり、旧リンクは即座に無効になる。
	PortalTokenFingerprint string
	PortalTokenExpiresAt   *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time

	// Client は一覧・詳細取得時にJOINされる顧客情報。
	Client *Client
}

// JobScope は認可判定に必要な最小限のジョブ情報。
// 二重認可ゲートはこれ以外のジョブ属性を参照しない。
type JobScope struct {
	JobID                  string
	OrgID                  string
	PortalTokenFingerprint string
}

// JobDetail はジョブ詳細画面用の集約。
type JobDetail struct {
	Job         *Job
	Messages    []*Message
	Attachments []*Attachment
	Invoices    []*Invoice
}
