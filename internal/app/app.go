// Package app は設定読み込みから依存関係の組み立て、各サブコマンドの実行までを担う。
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/jobdesk/internal/activity"
	"github.com/hitoshi/jobdesk/internal/attachment"
	"github.com/hitoshi/jobdesk/internal/auth"
	"github.com/hitoshi/jobdesk/internal/config"
	"github.com/hitoshi/jobdesk/internal/crm"
	"github.com/hitoshi/jobdesk/internal/database"
	"github.com/hitoshi/jobdesk/internal/handler"
	"github.com/hitoshi/jobdesk/internal/invoice"
	"github.com/hitoshi/jobdesk/internal/job"
	"github.com/hitoshi/jobdesk/internal/logger"
	"github.com/hitoshi/jobdesk/internal/message"
	"github.com/hitoshi/jobdesk/internal/metrics"
	"github.com/hitoshi/jobdesk/internal/middleware"
	"github.com/hitoshi/jobdesk/internal/payment"
	"github.com/hitoshi/jobdesk/internal/repository"
	"github.com/hitoshi/jobdesk/internal/security"
	"github.com/hitoshi/jobdesk/internal/seed"
	"github.com/hitoshi/jobdesk/internal/storage"
	"github.com/hitoshi/jobdesk/internal/validate"
	"github.com/hitoshi/jobdesk/internal/worker/cleanup"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで再設定する
	logger.SetupDefault(w, cfg.LogLevel)

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// argsにはos.Args[1:]を渡す。サブコマンド省略時はserveとして動作する。
func Run(ctx context.Context, w io.Writer, args []string) error {
	root := NewRootCommand(w)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// components はHTTPサーバーとCLIが共有するサービス群。
type components struct {
	sessions    *auth.SessionManager
	gate        *auth.Gate
	login       *auth.LoginService
	jobs        *job.Service
	messages    *message.Service
	attachments *attachment.Service
	invoices    *invoice.Service
	activity    *activity.Service
}

// buildComponents はリポジトリ・外部連携クライアント・サービスを組み立てる。
// 外部連携は設定がある場合のみ有効にする。
func buildComponents(ctx context.Context, cfg *config.Config, db *sql.DB, collector *metrics.Collector) (*components, error) {
	// 1. リポジトリの初期化
	orgRepo := repository.NewPostgresOrganizationRepo(db)
	userRepo := repository.NewPostgresUserRepo(db)
	clientRepo := repository.NewPostgresClientRepo(db)
	jobRepo := repository.NewPostgresJobRepo(db)
	messageRepo := repository.NewPostgresMessageRepo(db)
	attachmentRepo := repository.NewPostgresAttachmentRepo(db)
	invoiceRepo := repository.NewPostgresInvoiceRepo(db)
	auditRepo := repository.NewPostgresAuditLogRepo(db)

	// 2. 外部連携用HTTPクライアント（内部ネットワーク宛てを拒否する）
	guard := security.NewOutboundGuard()
	httpClient := guard.NewSafeClient(cfg.IntegrationTimeout)

	// 3. 認証
	var idp auth.IdentityProvider
	if cfg.BypassAuth {
		slog.Warn("BYPASS_AUTH is enabled; passwords are verified against BYPASS_CREDENTIALS",
			slog.Int("accounts", len(cfg.BypassCredentials)),
		)
		idp = auth.NewBypassProvider(cfg.BypassCredentials)
	} else {
		if err := guard.ValidateEndpoint(cfg.SupabaseURL); err != nil {
			return nil, fmt.Errorf("invalid SUPABASE_URL: %w", err)
		}
		idp = auth.NewSupabaseProvider(httpClient, slog.Default(), cfg.SupabaseURL, cfg.SupabaseAnonKey, collector)
	}

	sessions := auth.NewSessionManager(userRepo, auth.SessionConfig{
		Secret: []byte(cfg.OwnerSessionSecret),
		MaxAge: cfg.SessionMaxAge,
		Secure: cfg.CookieSecure,
		Domain: cfg.CookieDomain,
	})
	portalTokens := auth.NewPortalTokens([]byte(cfg.ClientJWTSecret), cfg.PortalTokenTTL)
	gate := auth.NewGate(sessions, portalTokens, jobRepo, collector)
	login := auth.NewLoginService(idp, userRepo, orgRepo, sessions, cfg.BypassAuth)

	// 4. CRM
	var crmFactory crm.Factory
	if cfg.HubSpotToken != "" {
		if err := guard.ValidateEndpoint(cfg.HubSpotBaseURL); err != nil {
			return nil, fmt.Errorf("invalid HUBSPOT_BASE_URL: %w", err)
		}
		crmFactory = crm.NewHubSpot(httpClient, slog.Default(), cfg.HubSpotBaseURL, cfg.HubSpotToken, auditRepo, collector)
	} else {
		slog.Info("HubSpot integration disabled")
	}

	// 5. オブジェクトストレージ
	// nilの*S3Presignerをインターフェースに入れないよう、設定時のみ代入する
	var presigner attachment.Presigner
	var urls job.URLBuilder
	if cfg.S3Bucket != "" {
		p, err := storage.NewS3Presigner(ctx, storage.Config{
			Region:          cfg.S3Region,
			Bucket:          cfg.S3Bucket,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			Endpoint:        cfg.S3Endpoint,
			PresignTTL:      cfg.S3PresignTTL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize object storage: %w", err)
		}
		presigner, urls = p, p
	} else {
		slog.Info("object storage disabled; attachment uploads will fail")
	}

	// 6. 決済
	var links payment.LinkCreator
	if cfg.StripeSecretKey != "" {
		if err := guard.ValidateEndpoint(cfg.StripeBaseURL); err != nil {
			return nil, fmt.Errorf("invalid STRIPE_BASE_URL: %w", err)
		}
		links = payment.NewStripeClient(httpClient, slog.Default(), cfg.StripeBaseURL, cfg.StripeSecretKey, collector)
	} else {
		slog.Info("Stripe integration disabled; payment links cannot be created")
	}

	// 7. ドメインサービス
	attachmentService := attachment.NewService(attachmentRepo, presigner)
	return &components{
		sessions: sessions,
		gate:     gate,
		login:    login,
		jobs: job.NewService(job.Deps{
			Jobs:        jobRepo,
			Clients:     clientRepo,
			Messages:    messageRepo,
			Attachments: attachmentRepo,
			Invoices:    invoiceRepo,
			Links:       portalTokens,
			CRM:         crmFactory,
			URLs:        urls,
			AppOrigin:   cfg.AppOrigin,
		}),
		messages:    message.NewService(messageRepo, security.NewMessageSanitizer()),
		attachments: attachmentService,
		invoices:    invoice.NewService(invoiceRepo, jobRepo, links),
		activity:    activity.NewService(jobRepo, messageRepo, attachmentService),
	}, nil
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := database.Ping(ctx, db, 5*time.Second); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Info("database connection established")
	return db, nil
}

// newMetrics はプロセス単位のレジストリとCollectorを生成する。
func newMetrics() (*prometheus.Registry, *metrics.Collector) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.NewCollector(reg)
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	// 1. DB接続
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	// 2. サービスの初期化
	reg, collector := newMetrics()
	comp, err := buildComponents(ctx, cfg, db, collector)
	if err != nil {
		return err
	}

	validator, err := validate.New()
	if err != nil {
		return fmt.Errorf("failed to load API schema: %w", err)
	}

	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitPortal),
		collector,
	)
	defer rateLimiter.Stop()

	// 3. ルーターの構築
	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		Sessions:          comp.sessions,
		Gate:              comp.gate,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		CSRF: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		RateLimiter: rateLimiter,
		Metrics:     collector,

		HealthChecker:  db,
		MetricsHandler: metrics.Handler(reg),
		Validator:      validator,
		OpenAPI:        validator.Document(),
		AppOrigin:      cfg.AppOrigin,

		LoginService:   comp.login,
		SessionCookies: comp.sessions,

		JobService:        comp.jobs,
		MessageService:    comp.messages,
		AttachmentService: comp.attachments,
		InvoiceService:    comp.invoices,
		PortalService:     comp.activity,
	})

	// 4. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return serveUntilDone(ctx, server, "API server")
}

// serveUntilDone はctxがキャンセルされるまでサーバーを動かし、その後グレースフルに停止する。
func serveUntilDone(ctx context.Context, server *http.Server, name string) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info(name+" starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("%s listen error: %w", name, err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down " + name + "...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("%s shutdown failed: %w", name, err)
	}

	slog.Info(name + " stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// クリーンアップジョブを定期実行し、/health と /metrics を公開する。
func runWorker(ctx context.Context, cfg *config.Config) error {
	// 1. DB接続
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	// 2. クリーンアップジョブの初期化
	reg, collector := newMetrics()
	cleanupJob := cleanup.NewCleanupJob(
		repository.NewPostgresAuditLogRepo(db),
		repository.NewPostgresJobRepo(db),
		collector,
		slog.Default(),
	)
	cleanupJob.RetentionDays = cfg.AuditRetentionDays

	// 3. 監視用エンドポイント（healthcheckサブコマンドが参照する）
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	mux.HandleFunc("/health", handler.NewSystemHandler(db, nil).Health)
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	slog.Info("worker starting",
		slog.Duration("cleanup_interval", cfg.CleanupInterval),
		slog.Int("audit_retention_days", cfg.AuditRetentionDays),
	)

	go cleanupJob.Start(ctx, cfg.CleanupInterval)

	return serveUntilDone(ctx, server, "worker")
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runSeed はYAMLの組織・ユーザーを投入する。既存のものは読み飛ばす。
func runSeed(ctx context.Context, cfg *config.Config, r io.Reader, out io.Writer) error {
	f, err := seed.Parse(r)
	if err != nil {
		return err
	}

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	seeder := seed.NewSeeder(
		repository.NewPostgresOrganizationRepo(db),
		repository.NewPostgresUserRepo(db),
		slog.Default(),
	)
	res, err := seeder.Apply(ctx, f)
	if err != nil {
		return fmt.Errorf("seed failed: %w", err)
	}

	fmt.Fprintf(out, "organizations created: %d, users created: %d, skipped: %d\n",
		res.OrganizationsCreated, res.UsersCreated, res.Skipped)
	return nil
}

// runPortalLink はジョブのポータルリンクを再発行する。旧リンクは無効になる。
func runPortalLink(ctx context.Context, cfg *config.Config, jobID string, out io.Writer) error {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	_, collector := newMetrics()
	comp, err := buildComponents(ctx, cfg, db, collector)
	if err != nil {
		return err
	}

	link, err := comp.jobs.IssuePortalLink(ctx, jobID)
	if err != nil {
		return err
	}

	slog.Info("portal link reissued", slog.String("job_id", jobID))
	fmt.Fprintf(out, "%s\nexpires: %s\n", link.URL, link.ExpiresAt.UTC().Format(time.RFC3339))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
