// Package invoice は請求書の作成と支払いリンク発行を扱う。
package invoice

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/jobdesk/internal/auth"
	"github.com/hitoshi/jobdesk/internal/model"
	"github.com/hitoshi/jobdesk/internal/payment"
	"github.com/hitoshi/jobdesk/internal/repository"
)

// DefaultCurrency は通貨未指定時の通貨コード。
const DefaultCurrency = "usd"

// JobScopeFinder は請求先ジョブの組織を確認する。
type JobScopeFinder interface {
	FindJobScope(ctx context.Context, jobID string) (*model.JobScope, error)
}

// ItemInput は請求明細の入力。
type ItemInput struct {
	Description string
	Qty         int64
	UnitAmount  int64
}

// CreateInput は請求書作成の入力。
type CreateInput struct {
	JobID    string
	Currency string
	Items    []ItemInput
}

// Service は請求書のサービス層。
// linksがnilの場合（Stripe未設定）、支払いリンク発行はエラーになる。
type Service struct {
	repo  repository.InvoiceRepository
	jobs  JobScopeFinder
	links payment.LinkCreator
	now   func() time.Time
}

// NewService はServiceを生成する。
func NewService(repo repository.InvoiceRepository, jobs JobScopeFinder, links payment.LinkCreator) *Service {
	return &Service{repo: repo, jobs: jobs, links: links, now: time.Now}
}

// Create は明細を検証して合計を計算し、採番した請求書をDRAFTで保存する。
// ジョブが存在しない場合も組織不一致と同じく403を返す。
func (s *Service) Create(ctx context.Context, session *auth.OwnerSession, in CreateInput) (*model.Invoice, error) {
	if len(in.Items) == 0 {
		return nil, model.NewValidationError("items は1件以上必要です")
	}

	currency := strings.ToLower(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = DefaultCurrency
	}
	if len(currency) != 3 {
		return nil, model.NewValidationError("currency は3文字の通貨コードです")
	}

	now := s.now()
	inv := &model.Invoice{
		ID:        uuid.NewString(),
		JobID:     in.JobID,
		Currency:  currency,
		Status:    model.InvoiceStatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for i, it := range in.Items {
		desc := strings.TrimSpace(it.Description)
		if desc == "" {
			return nil, model.NewValidationError(fmt.Sprintf("items[%d].description は必須です", i))
		}
		if it.Qty <= 0 || it.UnitAmount <= 0 {
			return nil, model.NewValidationError(fmt.Sprintf("items[%d] の数量と単価は正の整数です", i))
		}
		if it.Qty > (math.MaxInt64-inv.Subtotal)/it.UnitAmount {
			return nil, model.NewValidationError(fmt.Sprintf("items[%d] の金額が大きすぎます", i))
		}
		inv.Items = append(inv.Items, &model.InvoiceItem{
			ID:          uuid.NewString(),
			InvoiceID:   inv.ID,
			Description: desc,
			Qty:         it.Qty,
			UnitAmount:  it.UnitAmount,
		})
		inv.Subtotal += it.Qty * it.UnitAmount
	}
	inv.Total = inv.Subtotal + inv.Tax

	scope, err := s.jobs.FindJobScope(ctx, in.JobID)
	if err != nil {
		return nil, fmt.Errorf("ジョブの取得に失敗しました: %w", err)
	}
	if scope == nil || scope.OrgID != session.OrgID {
		return nil, model.NewForbiddenError()
	}
	inv.OrgID = scope.OrgID

	if err := s.repo.CreateWithItems(ctx, inv); err != nil {
		return nil, fmt.Errorf("請求書の作成に失敗しました: %w", err)
	}

	slog.Info("invoice created",
		slog.String("invoice_id", inv.ID),
		slog.String("job_id", inv.JobID),
		slog.String("number", inv.Number),
		slog.Int64("total", inv.Total),
	)
	return inv, nil
}

// CreatePayLink は請求書の支払いリンクを発行してSENTにする。
// 発行済みの場合は既存のリンクを返す。
func (s *Service) CreatePayLink(ctx context.Context, session *auth.OwnerSession, invoiceID string) (string, error) {
	inv, err := s.repo.FindByID(ctx, invoiceID)
	if err != nil {
		return "", fmt.Errorf("請求書の取得に失敗しました: %w", err)
	}
	if inv == nil {
		return "", model.NewInvoiceNotFoundError(invoiceID)
	}
	if inv.OrgID != session.OrgID {
		return "", model.NewForbiddenError()
	}
	if inv.PaymentLinkURL != "" {
		return inv.PaymentLinkURL, nil
	}
	if s.links == nil {
		return "", fmt.Errorf("決済サービスが設定されていません")
	}

	params := payment.PaymentLinkParams{
		Metadata: map[string]string{
			"invoiceId": inv.ID,
			"jobId":     inv.JobID,
			"orgId":     inv.OrgID,
		},
	}
	for _, it := range inv.Items {
		params.LineItems = append(params.LineItems, payment.LineItem{
			Name:       it.Description,
			Currency:   inv.Currency,
			UnitAmount: it.UnitAmount,
			Quantity:   it.Qty,
		})
	}

	url, err := s.links.CreatePaymentLink(ctx, params)
	if err != nil {
		return "", fmt.Errorf("支払いリンクの発行に失敗しました: %w", err)
	}
	if err := s.repo.UpdatePaymentLink(ctx, inv.ID, url, model.InvoiceStatusSent); err != nil {
		return "", fmt.Errorf("支払いリンクの保存に失敗しました: %w", err)
	}

	slog.Info("payment link created", slog.String("invoice_id", inv.ID), slog.String("user_id", session.UserID))
	return url, nil
}
