package middleware

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/jobdesk/internal/auth"
	"github.com/hitoshi/jobdesk/internal/model"
)

// レート制限のスコープ名。メトリクスのラベルにも使う。
const (
	scopeOwner  = "owner"
	scopePortal = "portal"
	scopeLogin  = "login"
)

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	OwnerRate       rate.Limit    // オーナーAPIのレート（req/sec）
	OwnerBurst      int           // オーナーAPIのバーストサイズ
	PortalRate      rate.Limit    // ポータルトークン経由のレート（req/sec）
	PortalBurst     int           // ポータルのバーストサイズ
	LoginRate       rate.Limit    // ログインのレート（接続元IP単位、req/sec）
	LoginBurst      int           // ログインのバーストサイズ
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// NewRateLimiterConfig は分あたりのリクエスト数から設定を組み立てる。
// 0以下の値はデフォルト（オーナー120、ポータル30）に置き換える。
// ログインはオーナーAPIと同じ値を接続元IP単位で適用する。
func NewRateLimiterConfig(ownerPerMin, portalPerMin int) RateLimiterConfig {
	if ownerPerMin <= 0 {
		ownerPerMin = 120
	}
	if portalPerMin <= 0 {
		portalPerMin = 30
	}
	return RateLimiterConfig{
		OwnerRate:       rate.Limit(float64(ownerPerMin) / 60.0),
		OwnerBurst:      ownerPerMin,
		PortalRate:      rate.Limit(float64(portalPerMin) / 60.0),
		PortalBurst:     portalPerMin,
		LoginRate:       rate.Limit(float64(ownerPerMin) / 60.0),
		LoginBurst:      ownerPerMin,
		CleanupInterval: 5 * time.Minute,
	}
}

// RateLimitRecorder は制限超過を記録する。metrics.Collectorが実装する。
type RateLimitRecorder interface {
	RecordRateLimited(scope string)
}

// keyedLimiter はキーごとのレートリミッターとアクセス時刻を保持する。
type keyedLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// limiterSet はスコープ1つ分のキー付きリミッター群。
type limiterSet struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*keyedLimiter
}

func newLimiterSet(limit rate.Limit, burst int) *limiterSet {
	return &limiterSet{limit: limit, burst: burst, limiters: make(map[string]*keyedLimiter)}
}

func (s *limiterSet) get(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	if kl, ok := s.limiters[key]; ok {
		kl.lastAccess = time.Now()
		return kl.limiter
	}
	limiter := rate.NewLimiter(s.limit, s.burst)
	s.limiters[key] = &keyedLimiter{limiter: limiter, lastAccess: time.Now()}
	return limiter
}

func (s *limiterSet) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.limiters)
}

func (s *limiterSet) evict(ttl time.Duration, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, kl := range s.limiters {
		if now.Sub(kl.lastAccess) > ttl {
			delete(s.limiters, key)
		}
	}
}

// RateLimiter はオーナー（ユーザーID単位）とポータル（ジョブID単位）のレート制限を管理する。
type RateLimiter struct {
	config   RateLimiterConfig
	owner    *limiterSet
	portal   *limiterSet
	login    *limiterSet
	recorder RateLimitRecorder
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter は新しいRateLimiterを生成する。recorderはnilでもよい。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewRateLimiter(config RateLimiterConfig, recorder RateLimitRecorder) *RateLimiter {
	rl := &RateLimiter{
		config:   config,
		owner:    newLimiterSet(config.OwnerRate, config.OwnerBurst),
		portal:   newLimiterSet(config.PortalRate, config.PortalBurst),
		login:    newLimiterSet(config.LoginRate, config.LoginBurst),
		recorder: recorder,
		stopCh:   make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// OwnerMiddleware はオーナー専用ルートのレート制限ミドルウェアを返す。
// SessionMiddlewareの後に配置する。
func (rl *RateLimiter) OwnerMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, err := OwnerFromContext(r.Context())
			if err != nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}
			if !rl.allow(w, scopeOwner, session.UserID) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// JobMiddleware は二重認可ルートのレート制限ミドルウェアを返す。
// JobAccessMiddlewareの後に配置する。顧客はジョブID単位、オーナーはユーザーID単位で制限する。
func (rl *RateLimiter) JobMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := PrincipalFromContext(r.Context())
			if err != nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			scope, key := scopeOwner, p.UserID()
			if p.Kind == auth.ActorClient {
				scope, key = scopePortal, p.Client.JobID
			}
			if !rl.allow(w, scope, key) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// LoginMiddleware は未認証のログインルートを接続元IP単位で制限する。
func (rl *RateLimiter) LoginMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.allow(w, scopeLogin, clientIP(r)) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP はRemoteAddrからポートを除いたアドレスを返す。
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (rl *RateLimiter) allow(w http.ResponseWriter, scope, key string) bool {
	set, limit := rl.owner, rl.config.OwnerRate
	switch scope {
	case scopePortal:
		set, limit = rl.portal, rl.config.PortalRate
	case scopeLogin:
		set, limit = rl.login, rl.config.LoginRate
	}

	if set.get(key).Allow() {
		return true
	}

	writeRateLimitResponse(w, limit)
	if rl.recorder != nil {
		rl.recorder.RecordRateLimited(scope)
	}
	slog.Warn("rate limit exceeded",
		slog.String("key", key),
		slog.String("limit_type", scope),
	)
	return false
}

// OwnerLimiterCount は管理中のオーナー用リミッター数を返す。テストおよびメトリクス用。
func (rl *RateLimiter) OwnerLimiterCount() int { return rl.owner.count() }

// PortalLimiterCount は管理中のポータル用リミッター数を返す。
func (rl *RateLimiter) PortalLimiterCount() int { return rl.portal.count() }

// LoginLimiterCount は管理中のログイン用リミッター数を返す。
func (rl *RateLimiter) LoginLimiterCount() int { return rl.login.count() }

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup は最終アクセス時刻がCleanupIntervalの2倍を超えたエントリを削除する。
func (rl *RateLimiter) cleanup() {
	ttl := rl.config.CleanupInterval * 2
	now := time.Now()
	rl.owner.evict(ttl, now)
	rl.portal.evict(ttl, now)
	rl.login.evict(ttl, now)
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
// Retry-Afterヘッダーにはトークンが補充されるまでの推定秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, r rate.Limit) {
	retryAfterSec := int(math.Ceil(1.0 / float64(r)))
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	WriteErrorResponse(w, http.StatusTooManyRequests, model.NewRateLimitedError())
}
