// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// minSecretLength は署名用シークレットの最小バイト数。
// HS256の鍵として32バイト未満は受け付けない。
const minSecretLength = 32

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Owner session
	OwnerSessionSecret string
	SessionMaxAge      time.Duration

	// Client portal
	ClientJWTSecret string
	PortalTokenTTL  time.Duration

	// Server
	ServerPort string
	AppOrigin  string
	LogLevel   slog.Level

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string

	// Object storage
	S3Region          string
	S3Bucket          string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3Endpoint        string
	S3PresignTTL      time.Duration

	// Payment
	StripeSecretKey string
	StripeBaseURL   string

	// CRM
	HubSpotToken   string
	HubSpotBaseURL string

	// Identity provider
	SupabaseURL     string
	SupabaseAnonKey string
	BypassAuth      bool
	// BypassCredentials はメールアドレスからbcryptハッシュへの対応表。
	// BypassAuthが有効な場合のみ使用する。
	BypassCredentials map[string]string

	// Outbound integrations
	IntegrationTimeout time.Duration

	// Rate Limit (req/min)
	RateLimitGeneral int
	RateLimitPortal  int

	// Worker
	AuditRetentionDays int
	CleanupInterval    time.Duration
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.OwnerSessionSecret = os.Getenv("OWNER_SESSION_SECRET")
	if cfg.OwnerSessionSecret == "" {
		missing = append(missing, "OWNER_SESSION_SECRET")
	}

	cfg.ClientJWTSecret = os.Getenv("CLIENT_JWT_SECRET")
	if cfg.ClientJWTSecret == "" {
		missing = append(missing, "CLIENT_JWT_SECRET")
	}

	cfg.AppOrigin = strings.TrimRight(os.Getenv("APP_ORIGIN"), "/")
	if cfg.AppOrigin == "" {
		missing = append(missing, "APP_ORIGIN")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	if len(cfg.OwnerSessionSecret) < minSecretLength {
		return nil, fmt.Errorf("OWNER_SESSION_SECRET must be at least %d bytes", minSecretLength)
	}
	if len(cfg.ClientJWTSecret) < minSecretLength {
		return nil, fmt.Errorf("CLIENT_JWT_SECRET must be at least %d bytes", minSecretLength)
	}
	// 同一シークレットだとセッショントークンとポータルトークンを相互に流用できてしまう
	if cfg.OwnerSessionSecret == cfg.ClientJWTSecret {
		return nil, fmt.Errorf("OWNER_SESSION_SECRET and CLIENT_JWT_SECRET must differ")
	}

	// Optional fields with defaults
	cfg.SessionMaxAge = getEnvDuration("SESSION_MAX_AGE", 7*24*time.Hour)
	cfg.PortalTokenTTL = getEnvDuration("PORTAL_TOKEN_TTL", 7*24*time.Hour)

	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.LogLevel = parseLogLevel(getEnvString("LOG_LEVEL", "info"))

	cfg.CookieSecure = strings.HasPrefix(cfg.AppOrigin, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", cfg.AppOrigin)

	cfg.S3Region = getEnvString("S3_REGION", "us-east-1")
	cfg.S3Bucket = getEnvString("S3_BUCKET", "")
	cfg.S3AccessKeyID = getEnvString("S3_ACCESS_KEY_ID", "")
	cfg.S3SecretAccessKey = getEnvString("S3_SECRET_ACCESS_KEY", "")
	cfg.S3Endpoint = getEnvString("S3_ENDPOINT", "")
	cfg.S3PresignTTL = getEnvDuration("S3_PRESIGN_TTL", time.Hour)

	cfg.StripeSecretKey = getEnvString("STRIPE_SECRET_KEY", "")
	cfg.StripeBaseURL = getEnvString("STRIPE_BASE_URL", "https://api.stripe.com")

	cfg.HubSpotToken = getEnvString("HUBSPOT_PRIVATE_APP_TOKEN", "")
	cfg.HubSpotBaseURL = getEnvString("HUBSPOT_BASE_URL", "https://api.hubapi.com")

	cfg.SupabaseURL = getEnvString("SUPABASE_URL", "")
	cfg.SupabaseAnonKey = getEnvString("SUPABASE_ANON_KEY", "")
	cfg.BypassAuth = getEnvBool("BYPASS_AUTH", false)
	cfg.BypassCredentials = parseCredentials(os.Getenv("BYPASS_CREDENTIALS"))

	if !cfg.BypassAuth && (cfg.SupabaseURL == "" || cfg.SupabaseAnonKey == "") {
		return nil, fmt.Errorf("SUPABASE_URL and SUPABASE_ANON_KEY are required unless BYPASS_AUTH=true")
	}

	cfg.IntegrationTimeout = getEnvDuration("INTEGRATION_TIMEOUT", 10*time.Second)

	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitPortal = getEnvInt("RATE_LIMIT_PORTAL", 30)

	cfg.AuditRetentionDays = getEnvInt("AUDIT_RETENTION_DAYS", 90)
	cfg.CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", 24*time.Hour)

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

// parseLogLevel はLOG_LEVELの値をslog.Levelに変換する。未知の値はinfo扱い。
func parseLogLevel(v string) slog.Level {
	switch strings.ToLower(v) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// parseCredentials は "email=hash,email=hash" 形式の文字列を対応表に変換する。
// 形式が不正なエントリは読み飛ばす。
func parseCredentials(v string) map[string]string {
	creds := make(map[string]string)
	for _, pair := range strings.Split(v, ",") {
		email, hash, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || email == "" || hash == "" {
			continue
		}
		creds[strings.ToLower(email)] = hash
	}
	return creds
}
