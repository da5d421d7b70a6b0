// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prismworlds/portal/internal/remote"
	"github.com/prismworlds/portal/internal/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// リモートクライアント、Store、HTTP層から利用する。
type MetricsCollector interface {
	RecordRemoteCall(operation, outcome string, duration time.Duration)
	RecordProfileLoad(outcome string, duration time.Duration)
	RecordStateTransition(phase string)
	RecordGateDecision(view, decision string)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	remoteCalls      *prometheus.CounterVec
	remoteLatency    *prometheus.HistogramVec
	profileLoads     *prometheus.CounterVec
	profileLatency   prometheus.Histogram
	stateTransitions *prometheus.CounterVec
	gateDecisions    *prometheus.CounterVec
	httpStatus       *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		remoteCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prismworlds_remote_calls_total",
			Help: "リモートサービス呼び出しの操作・結果別の合計数",
		}, []string{"operation", "outcome"}),
		remoteLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "prismworlds_remote_call_duration_seconds",
			Help:    "リモートサービス呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		profileLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prismworlds_profile_loads_total",
			Help: "プロフィール読み込みの結果別の合計数",
		}, []string{"outcome"}),
		profileLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "prismworlds_profile_load_duration_seconds",
			Help:    "プロフィール読み込みの所要時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		stateTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prismworlds_session_transitions_total",
			Help: "セッション状態の遷移先フェーズ別の合計数",
		}, []string{"phase"}),
		gateDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prismworlds_gate_decisions_total",
			Help: "アクセス判定のビュー・結果別の合計数",
		}, []string{"view", "decision"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prismworlds_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.remoteCalls,
		c.remoteLatency,
		c.profileLoads,
		c.profileLatency,
		c.stateTransitions,
		c.gateDecisions,
		c.httpStatus,
	)

	return c
}

// RecordRemoteCall はリモート呼び出しの結果と所要時間を記録する。
func (c *Collector) RecordRemoteCall(operation, outcome string, duration time.Duration) {
	c.remoteCalls.WithLabelValues(operation, outcome).Inc()
	c.remoteLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordProfileLoad はプロフィール読み込みの結果と所要時間を記録する。
func (c *Collector) RecordProfileLoad(outcome string, duration time.Duration) {
	c.profileLoads.WithLabelValues(outcome).Inc()
	c.profileLatency.Observe(duration.Seconds())
}

// RecordStateTransition はセッション状態の遷移を記録する。
func (c *Collector) RecordStateTransition(phase string) {
	c.stateTransitions.WithLabelValues(phase).Inc()
}

// RecordGateDecision はアクセス判定の結果を記録する。
func (c *Collector) RecordGateDecision(view, decision string) {
	c.gateDecisions.WithLabelValues(view, decision).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var (
	_ MetricsCollector    = (*Collector)(nil)
	_ remote.CallRecorder = (*Collector)(nil)
	_ session.Recorder    = (*Collector)(nil)
)
