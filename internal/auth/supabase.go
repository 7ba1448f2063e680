package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	gotrue "github.com/supabase-community/auth-go"
	"github.com/supabase-community/auth-go/types"
)

// SupabaseProvider はSupabase Auth（GoTrue）のパスワードグラントで資格情報を検証する。
type SupabaseProvider struct {
	httpClient *http.Client
	logger     *slog.Logger
	authURL    string
	anonKey    string
	recorder   CallRecorder
}

// NewSupabaseProvider はSupabaseProviderを生成する。
// baseURLはプロジェクトURL（https://<ref>.supabase.co）で、/auth/v1 はこちらで付与する。
func NewSupabaseProvider(httpClient *http.Client, logger *slog.Logger, baseURL, anonKey string, recorder CallRecorder) *SupabaseProvider {
	return &SupabaseProvider{
		httpClient: httpClient,
		logger:     logger,
		authURL:    strings.TrimRight(baseURL, "/") + "/auth/v1",
		anonKey:    anonKey,
		recorder:   recorder,
	}
}

// callTransport はSDKのリクエストに呼び出し元のcontextを付け、応答ステータスを記録する。
type callTransport struct {
	ctx    context.Context
	base   http.RoundTripper
	status atomic.Int32
}

func (t *callTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(r.WithContext(t.ctx))
	if resp != nil {
		t.status.Store(int32(resp.StatusCode))
	}
	return resp, err
}

// client は呼び出しごとのGoTrueクライアントを返す。
// SDKのAPIはcontextを受け取らないため、トランスポート側でcontextを伝播する。
func (p *SupabaseProvider) client(ctx context.Context) (gotrue.Client, *callTransport) {
	base := p.httpClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	transport := &callTransport{ctx: ctx, base: base}

	httpClient := *p.httpClient
	httpClient.Transport = transport

	return gotrue.New("", p.anonKey).
		WithCustomAuthURL(p.authURL).
		WithClient(httpClient), transport
}

// VerifyPassword は /auth/v1/token?grant_type=password を呼び出す。
// 400/401は資格情報の誤りとして (false, nil) を返す。
func (p *SupabaseProvider) VerifyPassword(ctx context.Context, email, password string) (ok bool, err error) {
	start := time.Now()
	defer func() {
		if p.recorder != nil {
			p.recorder.RecordIntegrationCall("supabase", "password_grant", err, time.Since(start))
		}
	}()

	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("token request canceled: %w", err)
	}

	client, transport := p.client(ctx)
	resp, err := client.Token(types.TokenRequest{
		GrantType: "password",
		Email:     email,
		Password:  password,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, fmt.Errorf("token request canceled: %w", ctxErr)
		}
		switch status := int(transport.status.Load()); status {
		case http.StatusBadRequest, http.StatusUnauthorized:
			return false, nil
		case 0:
			p.logger.Error("Supabase Authの呼び出しに失敗しました", slog.String("error", err.Error()))
			return false, fmt.Errorf("token request failed: %w", err)
		default:
			p.logger.Error("Supabase Authがエラーステータスを返しました", slog.Int("http_status", status))
			return false, fmt.Errorf("token request failed with status %d: %w", status, err)
		}
	}

	if resp == nil || resp.AccessToken == "" {
		return false, fmt.Errorf("empty access token in response")
	}
	return true, nil
}

// compile-time interface check
var _ IdentityProvider = (*SupabaseProvider)(nil)
