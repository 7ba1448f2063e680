// Package payment はStripe Payment Linksによる請求書の支払いリンク発行を提供する。
package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/paymentlink"
)

// LineItem は支払いリンクの明細行。金額は最小通貨単位。
type LineItem struct {
	Name       string
	Currency   string
	UnitAmount int64
	Quantity   int64
}

// PaymentLinkParams は支払いリンク作成パラメータ。
type PaymentLinkParams struct {
	LineItems []LineItem
	Metadata  map[string]string
}

// LinkCreator は支払いリンクを発行する外部サービス。
type LinkCreator interface {
	CreatePaymentLink(ctx context.Context, params PaymentLinkParams) (string, error)
}

// CallRecorder は外部呼び出しの結果を記録する。
type CallRecorder interface {
	RecordIntegrationCall(provider, operation string, err error, duration time.Duration)
}

// StripeClient はstripe-goでPayment Linksを発行するクライアント。
// 通信は注入したhttp.Clientを通し、SDK側の再試行は行わない。
type StripeClient struct {
	links     *paymentlink.Client
	logger    *slog.Logger
	secretKey string
	recorder  CallRecorder
}

// NewStripeClient はStripeClientを生成する。recorderはnilでもよい。
func NewStripeClient(httpClient *http.Client, logger *slog.Logger, baseURL, secretKey string, recorder CallRecorder) *StripeClient {
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		HTTPClient:        httpClient,
		URL:               stripe.String(strings.TrimRight(baseURL, "/")),
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	})
	return &StripeClient{
		links:     &paymentlink.Client{B: backend, Key: secretKey},
		logger:    logger,
		secretKey: secretKey,
		recorder:  recorder,
	}
}

// CreatePaymentLink はインライン価格の明細で支払いリンクを作成し、支払いページのURLを返す。
func (c *StripeClient) CreatePaymentLink(ctx context.Context, params PaymentLinkParams) (linkURL string, err error) {
	start := time.Now()
	defer func() {
		if c.recorder != nil {
			c.recorder.RecordIntegrationCall("stripe", "create_payment_link", err, time.Since(start))
		}
	}()

	if c.secretKey == "" {
		return "", fmt.Errorf("stripe secret key is not configured")
	}
	if len(params.LineItems) == 0 {
		return "", fmt.Errorf("payment link requires at least one line item")
	}

	link, err := c.links.New(toStripeParams(ctx, params))
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) {
			c.logger.Error("Stripe APIがエラーステータスを返しました",
				slog.Int("http_status", stripeErr.HTTPStatusCode),
				slog.String("stripe_error_type", string(stripeErr.Type)),
			)
			return "", fmt.Errorf("stripe returned status %d: %s", stripeErr.HTTPStatusCode, stripeErr.Msg)
		}
		c.logger.Error("Stripe APIの呼び出しに失敗しました", slog.String("error", err.Error()))
		return "", fmt.Errorf("payment link request failed: %w", err)
	}
	if link.URL == "" {
		return "", fmt.Errorf("stripe returned a payment link without url")
	}
	return link.URL, nil
}

// toStripeParams は明細をprice_data付きのline_itemsに変換する。
func toStripeParams(ctx context.Context, params PaymentLinkParams) *stripe.PaymentLinkParams {
	p := &stripe.PaymentLinkParams{
		Params: stripe.Params{Context: ctx},
	}
	for _, item := range params.LineItems {
		p.LineItems = append(p.LineItems, &stripe.PaymentLinkLineItemParams{
			PriceData: &stripe.PaymentLinkLineItemPriceDataParams{
				Currency: stripe.String(strings.ToLower(item.Currency)),
				ProductData: &stripe.PaymentLinkLineItemPriceDataProductDataParams{
					Name: stripe.String(item.Name),
				},
				UnitAmount: stripe.Int64(item.UnitAmount),
			},
			Quantity: stripe.Int64(item.Quantity),
		})
	}
	for k, v := range params.Metadata {
		p.AddMetadata(k, v)
	}
	return p
}

var _ LinkCreator = (*StripeClient)(nil)
