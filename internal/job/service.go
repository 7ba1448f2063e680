// Package job はジョブ管理のドメインロジックを提供する。
// ジョブ作成時の顧客登録、CRM同期、ポータルリンク発行をまとめて扱う。
package job

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/jobdesk/internal/auth"
	"github.com/hitoshi/jobdesk/internal/crm"
	"github.com/hitoshi/jobdesk/internal/model"
	"github.com/hitoshi/jobdesk/internal/repository"
)

// LinkIssuer はポータルリンクを発行する。auth.PortalTokensが実装する。
type LinkIssuer interface {
	Issue(jobID, clientEmail, origin string) (*auth.PortalLink, error)
}

// URLBuilder は添付ファイルの公開URLを組み立てる。
type URLBuilder interface {
	PublicURL(key string) string
}

// CreateInput はジョブ作成の入力。
type CreateInput struct {
	OrgID       string
	ClientName  string
	ClientEmail string
	Title       string
	Description string
	Pipeline    string
	DealStage   string
}

// UpdateInput はジョブ更新の入力。nilの項目は変更しない。
type UpdateInput struct {
	Title       *string
	Description *string
	Status      *model.JobStatus
}

// CreateResult はジョブ作成結果。ClientPortalURLは作成時に一度だけ返す。
type CreateResult struct {
	Job             *model.Job
	ClientPortalURL string
}

// Service はジョブ管理のサービス層。
type Service struct {
	jobs        repository.JobRepository
	clients     repository.ClientRepository
	messages    repository.MessageRepository
	attachments repository.AttachmentRepository
	invoices    repository.InvoiceRepository
	links       LinkIssuer
	crm         crm.Factory
	urls        URLBuilder
	origin      string
	now         func() time.Time
}

// Deps はServiceの依存関係。CRMとURLBuilderはnilでもよい。
type Deps struct {
	Jobs        repository.JobRepository
	Clients     repository.ClientRepository
	Messages    repository.MessageRepository
	Attachments repository.AttachmentRepository
	Invoices    repository.InvoiceRepository
	Links       LinkIssuer
	CRM         crm.Factory
	URLs        URLBuilder
	AppOrigin   string
}

// NewService はServiceを生成する。
func NewService(d Deps) *Service {
	return &Service{
		jobs:        d.Jobs,
		clients:     d.Clients,
		messages:    d.Messages,
		attachments: d.Attachments,
		invoices:    d.Invoices,
		links:       d.Links,
		crm:         d.CRM,
		urls:        d.URLs,
		origin:      d.AppOrigin,
		now:         time.Now,
	}
}

// Create は顧客をUPSERTし、ポータルリンクの指紋を付けたジョブを1回のINSERTで作成してからCRM同期を行う。
// CRM同期の失敗はログに記録して無視する。
func (s *Service) Create(ctx context.Context, session *auth.OwnerSession, in CreateInput) (*CreateResult, error) {
	if in.OrgID != session.OrgID {
		return nil, model.NewForbiddenError()
	}
	in.ClientName = strings.TrimSpace(in.ClientName)
	in.Title = strings.TrimSpace(in.Title)
	in.ClientEmail = strings.ToLower(strings.TrimSpace(in.ClientEmail))
	if in.ClientName == "" {
		return nil, model.NewValidationError("clientName は必須です")
	}
	if in.Title == "" {
		return nil, model.NewValidationError("title は必須です")
	}

	now := s.now()
	client, err := s.clients.Upsert(ctx, &model.Client{
		ID:        uuid.NewString(),
		OrgID:     in.OrgID,
		Name:      in.ClientName,
		Email:     in.ClientEmail,
		CreatedAt: now,
	})
	if err != nil {
		return nil, fmt.Errorf("顧客の登録に失敗しました: %w", err)
	}

	jobID := uuid.NewString()
	// 指紋なしのジョブを残さないよう、INSERT前にリンクを発行する
	link, err := s.links.Issue(jobID, in.ClientEmail, s.origin)
	if err != nil {
		return nil, fmt.Errorf("ポータルリンクの発行に失敗しました: %w", err)
	}

	job := &model.Job{
		ID:                     jobID,
		OrgID:                  in.OrgID,
		ClientID:               client.ID,
		Title:                  in.Title,
		Description:            in.Description,
		Status:                 model.JobStatusNew,
		PortalTokenFingerprint: link.Fingerprint,
		PortalTokenExpiresAt:   &link.ExpiresAt,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("ジョブの作成に失敗しました: %w", err)
	}
	job.Client = client
	slog.Info("portal link issued", slog.String("job_id", job.ID), slog.Time("expires_at", link.ExpiresAt))

	s.syncNewJob(ctx, job, in)

	slog.Info("job created",
		slog.String("job_id", job.ID),
		slog.String("org_id", job.OrgID),
		slog.String("user_id", session.UserID),
	)
	return &CreateResult{Job: job, ClientPortalURL: link.URL}, nil
}

// syncNewJob はCRMにコンタクトと取引を作成し、取引IDをジョブに保存する。
func (s *Service) syncNewJob(ctx context.Context, job *model.Job, in CreateInput) {
	if s.crm == nil {
		return
	}
	provider := s.crm.ForOrg(job.OrgID)

	var contactIDs []string
	if in.ClientEmail != "" {
		first, last := crm.SplitName(in.ClientName)
		contactID, err := provider.CreateContact(ctx, crm.ContactInput{Email: in.ClientEmail, FirstName: first, LastName: last})
		if err != nil {
			logCRMError("create_contact", job.ID, err)
			return
		}
		contactIDs = []string{contactID}
	}

	dealID, err := provider.CreateDeal(ctx, crm.DealInput{
		DealName:   job.Title,
		Pipeline:   in.Pipeline,
		DealStage:  in.DealStage,
		ContactIDs: contactIDs,
	})
	if err != nil {
		logCRMError("create_deal", job.ID, err)
		return
	}

	if err := s.jobs.UpdateCRM(ctx, job.ID, crm.ProviderHubSpot, dealID); err != nil {
		logCRMError("save_deal_id", job.ID, err)
		return
	}
	job.CRMProvider = crm.ProviderHubSpot
	job.CRMExternalID = dealID
}

// List は組織のジョブを新しい順に返す。statusが空の場合は全件。
func (s *Service) List(ctx context.Context, session *auth.OwnerSession, status string) ([]*model.Job, error) {
	filter := model.JobStatus(status)
	if status != "" && !filter.Valid() {
		return nil, model.NewValidationError(fmt.Sprintf("status %q は不正です", status))
	}

	jobs, err := s.jobs.ListByOrg(ctx, session.OrgID, filter)
	if err != nil {
		return nil, fmt.Errorf("ジョブ一覧の取得に失敗しました: %w", err)
	}
	return jobs, nil
}

// Get はジョブ詳細（メッセージ昇順、添付・請求書降順）を返す。
func (s *Service) Get(ctx context.Context, session *auth.OwnerSession, jobID string) (*model.JobDetail, error) {
	job, err := s.loadOwned(ctx, session, jobID)
	if err != nil {
		return nil, err
	}

	messages, err := s.messages.ListByJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("メッセージの取得に失敗しました: %w", err)
	}
	attachments, err := s.attachments.ListByJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("添付ファイルの取得に失敗しました: %w", err)
	}
	if s.urls != nil {
		for _, a := range attachments {
			a.URL = s.urls.PublicURL(a.FileKey)
		}
	}
	invoices, err := s.invoices.ListByJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("請求書の取得に失敗しました: %w", err)
	}

	return &model.JobDetail{Job: job, Messages: messages, Attachments: attachments, Invoices: invoices}, nil
}

// Update はタイトル・説明・ステータスを更新する。
// ステータスが変わった場合はシステムメッセージを残し、CRMの取引ステージを更新する。
func (s *Service) Update(ctx context.Context, session *auth.OwnerSession, jobID string, in UpdateInput) (*model.Job, error) {
	job, err := s.loadOwned(ctx, session, jobID)
	if err != nil {
		return nil, err
	}
	previous := job.Status

	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return nil, model.NewValidationError("title は空にできません")
		}
		job.Title = title
	}
	if in.Description != nil {
		job.Description = *in.Description
	}
	if in.Status != nil {
		if !in.Status.Valid() {
			return nil, model.NewValidationError(fmt.Sprintf("status %q は不正です", *in.Status))
		}
		job.Status = *in.Status
	}
	job.UpdatedAt = s.now()

	if err := s.jobs.Update(ctx, job); err != nil {
		return nil, fmt.Errorf("ジョブの更新に失敗しました: %w", err)
	}

	if job.Status != previous {
		msg := &model.Message{
			ID:         uuid.NewString(),
			JobID:      job.ID,
			SenderType: model.SenderSystem,
			Body:       fmt.Sprintf("Job status changed from %s to %s", previous, job.Status),
			CreatedAt:  job.UpdatedAt,
		}
		if err := s.messages.Create(ctx, msg); err != nil {
			return nil, fmt.Errorf("システムメッセージの作成に失敗しました: %w", err)
		}
		s.syncDealStage(ctx, job)
	}

	return job, nil
}

func (s *Service) syncDealStage(ctx context.Context, job *model.Job) {
	if s.crm == nil || job.CRMProvider != crm.ProviderHubSpot || job.CRMExternalID == "" {
		return
	}
	stage, ok := crm.DealStageFor(job.Status)
	if !ok {
		stage = strings.ToLower(string(job.Status))
	}
	if err := s.crm.ForOrg(job.OrgID).UpdateDeal(ctx, job.CRMExternalID, map[string]string{"dealstage": stage}); err != nil {
		logCRMError("update_deal", job.ID, err)
	}
}

// Delete はジョブを削除する。CRMの取引削除は失敗しても続行する。
func (s *Service) Delete(ctx context.Context, session *auth.OwnerSession, jobID string) error {
	job, err := s.loadOwned(ctx, session, jobID)
	if err != nil {
		return err
	}

	if s.crm != nil && job.CRMProvider == crm.ProviderHubSpot && job.CRMExternalID != "" {
		if err := s.crm.ForOrg(job.OrgID).DeleteDeal(ctx, job.CRMExternalID); err != nil {
			logCRMError("delete_deal", job.ID, err)
		}
	}

	if err := s.jobs.Delete(ctx, jobID); err != nil {
		return fmt.Errorf("ジョブの削除に失敗しました: %w", err)
	}
	slog.Info("job deleted", slog.String("job_id", jobID), slog.String("user_id", session.UserID))
	return nil
}

// RotatePortalLink は新しいポータルリンクを発行する。旧リンクは即座に無効になる。
func (s *Service) RotatePortalLink(ctx context.Context, session *auth.OwnerSession, jobID string) (*auth.PortalLink, error) {
	job, err := s.loadOwned(ctx, session, jobID)
	if err != nil {
		return nil, err
	}
	return s.issueLink(ctx, job.ID, clientEmail(job))
}

// IssuePortalLink はセッションなしでポータルリンクを再発行する（CLI用）。
func (s *Service) IssuePortalLink(ctx context.Context, jobID string) (*auth.PortalLink, error) {
	job, err := s.jobs.FindByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("ジョブの取得に失敗しました: %w", err)
	}
	if job == nil {
		return nil, model.NewJobNotFoundError(jobID)
	}
	return s.issueLink(ctx, job.ID, clientEmail(job))
}

func (s *Service) issueLink(ctx context.Context, jobID, email string) (*auth.PortalLink, error) {
	link, err := s.links.Issue(jobID, email, s.origin)
	if err != nil {
		return nil, fmt.Errorf("ポータルリンクの発行に失敗しました: %w", err)
	}
	if err := s.jobs.UpdatePortalToken(ctx, jobID, link.Fingerprint, link.ExpiresAt); err != nil {
		return nil, fmt.Errorf("ポータルトークンの保存に失敗しました: %w", err)
	}
	slog.Info("portal link issued", slog.String("job_id", jobID), slog.Time("expires_at", link.ExpiresAt))
	return link, nil
}

// loadOwned はジョブを取得し、セッションの組織に属するかを検証する。
func (s *Service) loadOwned(ctx context.Context, session *auth.OwnerSession, jobID string) (*model.Job, error) {
	job, err := s.jobs.FindByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("ジョブの取得に失敗しました: %w", err)
	}
	if job == nil {
		return nil, model.NewJobNotFoundError(jobID)
	}
	if job.OrgID != session.OrgID {
		return nil, model.NewForbiddenError()
	}
	return job, nil
}

func clientEmail(job *model.Job) string {
	if job.Client == nil {
		return ""
	}
	return job.Client.Email
}

func logCRMError(operation, jobID string, err error) {
	slog.Error("CRM連携に失敗しました",
		slog.String("operation", operation),
		slog.String("job_id", jobID),
		slog.String("error", err.Error()),
	)
}
