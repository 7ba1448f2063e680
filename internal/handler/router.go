package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/jobdesk/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	Sessions          middleware.SessionReader
	Gate              middleware.JobAuthorizer
	CORSAllowedOrigin string
	CSRF              middleware.CSRFConfig
	RateLimiter       *middleware.RateLimiter
	Metrics           middleware.HTTPRecorder

	// システム
	HealthChecker  HealthChecker
	MetricsHandler http.Handler
	Validator      BodyValidator
	OpenAPI        []byte
	AppOrigin      string

	// 認証
	LoginService   LoginServiceInterface
	SessionCookies SessionCookies

	// ドメイン
	JobService        JobServiceInterface
	MessageService    MessageServiceInterface
	AttachmentService AttachmentServiceInterface
	InvoiceService    InvoiceServiceInterface
	PortalService     PortalServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging → Metrics → CSRF
//
// オーナー専用ルートは Session → RateLimit(Owner)、
// 二重認可ルートは JobAccess → RateLimit(Job) を追加で通る。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.Metrics != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.Metrics))
	}
	r.Use(middleware.NewCSRFMiddleware(deps.CSRF))

	systemHandler := NewSystemHandler(deps.HealthChecker, deps.OpenAPI)
	authHandler := NewAuthHandler(deps.LoginService, deps.SessionCookies, deps.Validator)
	jobHandler := NewJobHandler(deps.JobService, deps.Validator)
	messageHandler := NewMessageHandler(deps.MessageService, deps.Validator)
	attachmentHandler := NewAttachmentHandler(deps.AttachmentService, deps.Validator)
	invoiceHandler := NewInvoiceHandler(deps.InvoiceService, deps.Validator)
	portalHandler := NewPortalHandler(deps.PortalService, deps.AppOrigin)

	requireSession := middleware.NewSessionMiddleware(deps.Sessions)
	jobAccess := middleware.NewJobAccessMiddleware(deps.Gate, func(r *http.Request) string {
		return chi.URLParam(r, "jobId")
	})

	// --- 認証不要のルート ---
	r.Get("/health", systemHandler.Health)
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}
	r.Get("/api/openapi.json", systemHandler.OpenAPI)
	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRF))

	r.Route("/api/auth/owner", func(r chi.Router) {
		r.With(deps.RateLimiter.LoginMiddleware()).Post("/login", authHandler.Login)
		r.Post("/logout", authHandler.Logout)
		r.With(requireSession).Get("/me", authHandler.Me)
	})

	r.Route("/api/jobs", func(r chi.Router) {
		// --- オーナー専用 ---
		r.Group(func(r chi.Router) {
			r.Use(requireSession)
			r.Use(deps.RateLimiter.OwnerMiddleware())

			r.Post("/", jobHandler.CreateJob)
			r.Get("/", jobHandler.ListJobs)
			r.Get("/{jobId}", jobHandler.GetJob)
			r.Patch("/{jobId}", jobHandler.UpdateJob)
			r.Delete("/{jobId}", jobHandler.DeleteJob)
			r.Post("/{jobId}/portal-link", jobHandler.RotatePortalLink)
		})

		// --- オーナーセッションまたはポータルトークン ---
		r.Group(func(r chi.Router) {
			r.Use(jobAccess)
			r.Use(deps.RateLimiter.JobMiddleware())

			r.Get("/{jobId}/messages", messageHandler.ListMessages)
			r.Post("/{jobId}/messages", messageHandler.CreateMessage)
			r.Get("/{jobId}/attachments", attachmentHandler.ListAttachments)
			r.Post("/{jobId}/attachments/presign", attachmentHandler.Presign)
		})
	})

	r.Route("/api/invoices", func(r chi.Router) {
		r.Use(requireSession)
		r.Use(deps.RateLimiter.OwnerMiddleware())

		r.Post("/", invoiceHandler.CreateInvoice)
		r.Post("/{invoiceId}/paylink", invoiceHandler.CreatePayLink)
	})

	r.Route("/api/portal/{jobId}", func(r chi.Router) {
		r.Use(jobAccess)
		r.Use(deps.RateLimiter.JobMiddleware())

		r.Get("/", portalHandler.GetSummary)
		r.Get("/feed.atom", portalHandler.GetFeed)
	})

	return r
}
