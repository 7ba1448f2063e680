// Package crm はジョブとCRM（HubSpot）の取引・コンタクトを同期する。
package crm

import (
	"context"
	"strings"

	"github.com/hitoshi/jobdesk/internal/model"
)

// ProviderHubSpot はjobs.crm_providerに保存するプロバイダ名。
const ProviderHubSpot = "hubspot"

// ContactInput はコンタクト作成時の入力。空の項目は送信しない。
type ContactInput struct {
	Email     string `json:"email,omitempty"`
	FirstName string `json:"firstname,omitempty"`
	LastName  string `json:"lastname,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// DealInput は取引作成時の入力。
type DealInput struct {
	DealName   string   `json:"dealname"`
	Amount     *int64   `json:"amount,omitempty"`
	Pipeline   string   `json:"pipeline,omitempty"`
	DealStage  string   `json:"dealstage,omitempty"`
	ContactIDs []string `json:"contactIds,omitempty"`
	CompanyIDs []string `json:"companyIds,omitempty"`
}

// Provider は1組織分のCRM操作。
type Provider interface {
	CreateContact(ctx context.Context, input ContactInput) (string, error)
	CreateDeal(ctx context.Context, input DealInput) (string, error)
	AssociateDealToContact(ctx context.Context, dealID, contactID string) error
	UpdateDeal(ctx context.Context, dealID string, properties map[string]string) error
	DeleteDeal(ctx context.Context, dealID string) error
}

// Factory は組織ごとのProviderを返す。監査ログを組織に紐づけるため組織単位で生成する。
type Factory interface {
	ForOrg(orgID string) Provider
}

// DealStageFor はジョブステータスに対応するHubSpotの取引ステージを返す。
func DealStageFor(status model.JobStatus) (string, bool) {
	switch status {
	case model.JobStatusNew:
		return "appointmentscheduled", true
	case model.JobStatusInProgress:
		return "qualifiedtobuy", true
	case model.JobStatusAwaitingClient:
		return "presentationscheduled", true
	case model.JobStatusCompleted:
		return "closedwon", true
	case model.JobStatusCanceled:
		return "closedlost", true
	default:
		return "", false
	}
}

// SplitName は氏名を先頭の語とそれ以降に分割する。
func SplitName(name string) (first, last string) {
	fields := strings.Fields(name)
	switch len(fields) {
	case 0:
		return "", ""
	case 1:
		return fields[0], ""
	default:
		return fields[0], strings.Join(fields[1:], " ")
	}
}
