// Package message はジョブのメッセージスレッドを扱う。
package message

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/jobdesk/internal/auth"
	"github.com/hitoshi/jobdesk/internal/model"
	"github.com/hitoshi/jobdesk/internal/repository"
	"github.com/hitoshi/jobdesk/internal/security"
)

// MaxBodyLength は入力された本文の最大文字数。
const MaxBodyLength = 5000

// Service はメッセージのサービス層。
// 呼び出し前に認可ゲートを通過していることを前提とする。
type Service struct {
	repo      repository.MessageRepository
	sanitizer security.MessageSanitizer
	now       func() time.Time
}

// NewService はServiceを生成する。
func NewService(repo repository.MessageRepository, sanitizer security.MessageSanitizer) *Service {
	return &Service{repo: repo, sanitizer: sanitizer, now: time.Now}
}

// List はジョブのメッセージを古い順に返す。
func (s *Service) List(ctx context.Context, jobID string) ([]*model.Message, error) {
	messages, err := s.repo.ListByJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("メッセージ一覧の取得に失敗しました: %w", err)
	}
	return messages, nil
}

// Create は送信者種別を検証し、本文をサニタイズしてメッセージを保存する。
func (s *Service) Create(ctx context.Context, p *auth.Principal, jobID string, sender model.SenderType, body string) (*model.Message, error) {
	if err := auth.ValidateSender(p, sender); err != nil {
		return nil, err
	}

	if utf8.RuneCountInString(body) > MaxBodyLength {
		return nil, model.NewValidationError(fmt.Sprintf("body は%d文字以内で入力してください", MaxBodyLength))
	}
	clean := s.sanitizer.Sanitize(body)
	if clean == "" {
		return nil, model.NewValidationError("body は空にできません")
	}

	msg := &model.Message{
		ID:         uuid.NewString(),
		JobID:      jobID,
		SenderType: sender,
		Body:       clean,
		CreatedAt:  s.now(),
	}
	if err := s.repo.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("メッセージの保存に失敗しました: %w", err)
	}
	return msg, nil
}
