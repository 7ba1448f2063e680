// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 認可ゲート、外部連携クライアント、ミドルウェア、ワーカーから利用する。
type MetricsCollector interface {
	RecordGateDecision(track, outcome string)
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
	RecordIntegrationCall(provider, operation string, err error, duration time.Duration)
	RecordRateLimited(scope string)
	RecordCleanup(kind string, count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	gateDecisions      *prometheus.CounterVec
	httpStatus         *prometheus.CounterVec
	requestLatency     prometheus.Histogram
	integrationCalls   *prometheus.CounterVec
	integrationLatency *prometheus.HistogramVec
	rateLimited        *prometheus.CounterVec
	cleanupDeleted     *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		gateDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobdesk_gate_decisions_total",
			Help: "二重認可ゲートの判定結果数",
		}, []string{"track", "outcome"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobdesk_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "jobdesk_http_request_duration_seconds",
			Help:    "HTTPリクエスト処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		integrationCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobdesk_integration_calls_total",
			Help: "外部連携（CRM・決済・IdP・ストレージ）呼び出し数",
		}, []string{"provider", "operation", "result"}),
		integrationLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "jobdesk_integration_latency_seconds",
			Help:    "外部連携呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobdesk_rate_limited_total",
			Help: "レート制限で拒否したリクエスト数",
		}, []string{"scope"}),
		cleanupDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobdesk_cleanup_records_total",
			Help: "クリーンアップワーカーが削除・消去したレコード数",
		}, []string{"kind"}),
	}

	reg.MustRegister(
		c.gateDecisions,
		c.httpStatus,
		c.requestLatency,
		c.integrationCalls,
		c.integrationLatency,
		c.rateLimited,
		c.cleanupDeleted,
	)

	return c
}

// RecordGateDecision は認可ゲートの判定を記録する。
// trackは owner / client / none、outcomeは allow / unauthorized / forbidden / not_found / error。
func (c *Collector) RecordGateDecision(track, outcome string) {
	c.gateDecisions.WithLabelValues(track, outcome).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエスト処理時間を記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// RecordIntegrationCall は外部連携の呼び出し結果とレイテンシを記録する。
func (c *Collector) RecordIntegrationCall(provider, operation string, err error, duration time.Duration) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	c.integrationCalls.WithLabelValues(provider, operation, result).Inc()
	c.integrationLatency.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordRateLimited はレート制限による拒否を記録する。
func (c *Collector) RecordRateLimited(scope string) {
	c.rateLimited.WithLabelValues(scope).Inc()
}

// RecordCleanup はクリーンアップ件数を記録する。
func (c *Collector) RecordCleanup(kind string, count int64) {
	c.cleanupDeleted.WithLabelValues(kind).Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
