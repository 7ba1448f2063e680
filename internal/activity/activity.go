// Package activity はクライアントポータル向けのジョブ概要とAtomフィードを提供する。
// ポータルに返す情報はタイトル・ステータス・顧客名・メッセージ・添付のみで、
// CRM連携情報やトークン指紋は含めない。
package activity

import (
	"context"
	"fmt"
	"time"

	"github.com/hitoshi/jobdesk/internal/model"
	"github.com/hitoshi/jobdesk/internal/repository"
)

// JobFinder はジョブを取得する。
type JobFinder interface {
	FindByID(ctx context.Context, id string) (*model.Job, error)
}

// AttachmentLister は公開URL付きで添付ファイルを返す。attachment.Serviceが実装する。
type AttachmentLister interface {
	List(ctx context.Context, jobID string) ([]*model.Attachment, error)
}

// Summary はポータル画面に表示するジョブ概要。
type Summary struct {
	JobID       string
	Title       string
	Description string
	Status      model.JobStatus
	ClientName  string
	UpdatedAt   time.Time
	Messages    []*model.Message
	Attachments []*model.Attachment
}

// Service はポータル概要の組み立てを行う。
type Service struct {
	jobs        JobFinder
	messages    repository.MessageRepository
	attachments AttachmentLister
}

// NewService はServiceを生成する。
func NewService(jobs JobFinder, messages repository.MessageRepository, attachments AttachmentLister) *Service {
	return &Service{jobs: jobs, messages: messages, attachments: attachments}
}

// Summary はジョブの概要を返す。認可ゲート通過後に呼ばれる前提。
func (s *Service) Summary(ctx context.Context, jobID string) (*Summary, error) {
	job, err := s.jobs.FindByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("ジョブの取得に失敗しました: %w", err)
	}
	if job == nil {
		return nil, model.NewJobNotFoundError(jobID)
	}

	messages, err := s.messages.ListByJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("メッセージの取得に失敗しました: %w", err)
	}
	attachments, err := s.attachments.List(ctx, jobID)
	if err != nil {
		return nil, err
	}

	sum := &Summary{
		JobID:       job.ID,
		Title:       job.Title,
		Description: job.Description,
		Status:      job.Status,
		UpdatedAt:   job.UpdatedAt,
		Messages:    messages,
		Attachments: attachments,
	}
	if job.Client != nil {
		sum.ClientName = job.Client.Name
	}
	return sum, nil
}
