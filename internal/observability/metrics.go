// Package observability provides Prometheus metrics, health/readiness
// endpoints, structured logging, and OpenTelemetry tracing for TubeGate.
package observability

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds both Prometheus collectors and atomic counters for fast-path
// access in the dispatch hot path. The atomic counters back the
// get_server_stats tool without touching the Prometheus registry.
type Metrics struct {
	// Atomic counters for hot-path (no mutex, no allocation).
	toolCalls         int64
	toolErrors        int64
	rateLimited       int64
	cacheHits         int64
	cacheMisses       int64
	injectionBlocked  int64
	corsDenied        int64
	signatureInvalid  int64
	replayBlocked     int64
	apiRetries        int64
	oauthRefreshes    int64
	cacheCryptErrors  int64
	validationErrors  int64

	promToolCalls *prometheus.CounterVec
	promDenied    *prometheus.CounterVec

	promCacheHits   *prometheus.CounterVec
	promCacheMisses prometheus.Counter

	promSecEvents *prometheus.CounterVec

	promAPIRetries     prometheus.Counter
	promOAuthRefreshes *prometheus.CounterVec

	promEventsExported prometheus.Counter
	promEventsDropped  prometheus.Counter

	// PromToolDuration observes end-to-end tool call latency.
	PromToolDuration *prometheus.HistogramVec

	// PromAPIDuration observes upstream YouTube API call latency.
	PromAPIDuration *prometheus.HistogramVec

	// Rate limit remaining distribution (histogram, not per-identity gauge,
	// to avoid unbounded cardinality from IP-scoped identities).
	PromRLRemaining prometheus.Histogram

	promSuspicious prometheus.Gauge
}

// NewMetrics creates and registers Prometheus metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)

	m := &Metrics{
		promToolCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tubegate",
			Name:      "tool_calls_total",
			Help:      "Total tool invocations by tool name and outcome.",
		}, []string{"tool", "outcome"}),
		promDenied: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tubegate",
			Name:      "requests_denied_total",
			Help:      "Total requests denied by a governance stage.",
		}, []string{"stage"}),
		promCacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tubegate",
			Name:      "cache_hits_total",
			Help:      "Total cache hits by tier.",
		}, []string{"tier"}),
		promCacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "tubegate",
			Name:      "cache_misses_total",
			Help:      "Total cache misses across both tiers.",
		}),
		promSecEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tubegate",
			Name:      "security_events_total",
			Help:      "Total security events by type and severity.",
		}, []string{"type", "severity"}),
		promAPIRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "tubegate",
			Name:      "api_retries_total",
			Help:      "Total retried YouTube API attempts.",
		}),
		promOAuthRefreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tubegate",
			Name:      "oauth_refreshes_total",
			Help:      "Total OAuth token refresh attempts by outcome.",
		}, []string{"outcome"}),
		promEventsExported: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "tubegate",
			Name:      "events_exported_total",
			Help:      "Total security events delivered to the webhook exporter.",
		}),
		promEventsDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "tubegate",
			Name:      "events_dropped_total",
			Help:      "Total security events dropped because the export buffer was full.",
		}),
		PromToolDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tubegate",
			Name:      "tool_duration_seconds",
			Help:      "Tool call duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool"}),
		PromAPIDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tubegate",
			Name:      "youtube_api_duration_seconds",
			Help:      "YouTube Data API call duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		PromRLRemaining: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tubegate",
			Name:      "ratelimit_remaining_requests",
			Help:      "Distribution of remaining requests across rate-limit checks.",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}),
		promSuspicious: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "tubegate",
			Name:      "suspicious_identities",
			Help:      "Number of identities currently flagged as suspicious.",
		}),
	}

	return m
}

// IncToolCall records a completed tool invocation.
func (m *Metrics) IncToolCall(tool, outcome string) {
	atomic.AddInt64(&m.toolCalls, 1)
	if outcome != "ok" {
		atomic.AddInt64(&m.toolErrors, 1)
	}
	m.promToolCalls.WithLabelValues(tool, outcome).Inc()
}

// IncRateLimited increments the rate-limited counter.
func (m *Metrics) IncRateLimited() {
	atomic.AddInt64(&m.rateLimited, 1)
	m.promDenied.WithLabelValues("ratelimit").Inc()
}

// IncCacheHit increments the hit counter for the given tier
// ("memory" or "persistent").
func (m *Metrics) IncCacheHit(tier string) {
	atomic.AddInt64(&m.cacheHits, 1)
	m.promCacheHits.WithLabelValues(tier).Inc()
}

// IncCacheMiss increments the cache miss counter.
func (m *Metrics) IncCacheMiss() {
	atomic.AddInt64(&m.cacheMisses, 1)
	m.promCacheMisses.Inc()
}

// IncInjectionBlocked increments the injection detection counter.
func (m *Metrics) IncInjectionBlocked() {
	atomic.AddInt64(&m.injectionBlocked, 1)
	m.promDenied.WithLabelValues("injection").Inc()
}

// IncCORSDenied increments the CORS denial counter.
func (m *Metrics) IncCORSDenied() {
	atomic.AddInt64(&m.corsDenied, 1)
	m.promDenied.WithLabelValues("cors").Inc()
}

// IncSignatureInvalid increments the invalid-signature counter.
func (m *Metrics) IncSignatureInvalid() {
	atomic.AddInt64(&m.signatureInvalid, 1)
	m.promDenied.WithLabelValues("signature").Inc()
}

// IncReplayBlocked increments the replayed-nonce counter.
func (m *Metrics) IncReplayBlocked() {
	atomic.AddInt64(&m.replayBlocked, 1)
	m.promDenied.WithLabelValues("replay").Inc()
}

// IncValidationError increments the input validation failure counter.
func (m *Metrics) IncValidationError() {
	atomic.AddInt64(&m.validationErrors, 1)
	m.promDenied.WithLabelValues("validation").Inc()
}

// IncSecurityEvent records a security event by type and severity.
func (m *Metrics) IncSecurityEvent(eventType, severity string) {
	m.promSecEvents.WithLabelValues(eventType, severity).Inc()
}

// IncAPIRetry increments the upstream retry counter.
func (m *Metrics) IncAPIRetry() {
	atomic.AddInt64(&m.apiRetries, 1)
	m.promAPIRetries.Inc()
}

// IncOAuthRefresh records a token refresh attempt ("ok", "error", "reauth").
func (m *Metrics) IncOAuthRefresh(outcome string) {
	atomic.AddInt64(&m.oauthRefreshes, 1)
	m.promOAuthRefreshes.WithLabelValues(outcome).Inc()
}

// IncCacheCryptError increments the cache decrypt/encrypt failure counter.
func (m *Metrics) IncCacheCryptError() {
	atomic.AddInt64(&m.cacheCryptErrors, 1)
	m.promSecEvents.WithLabelValues("cache_encryption_error", "error").Inc()
}

// AddEventsExported records a delivered webhook batch.
func (m *Metrics) AddEventsExported(n int) {
	m.promEventsExported.Add(float64(n))
}

// IncEventsDropped increments the dropped-event counter.
func (m *Metrics) IncEventsDropped() {
	m.promEventsDropped.Inc()
}

// SetSuspiciousIdentities sets the current suspicious-identity gauge.
func (m *Metrics) SetSuspiciousIdentities(n int) {
	m.promSuspicious.Set(float64(n))
}

// ObserveRemaining records the remaining request count as a histogram
// observation. Distribution visibility without per-identity cardinality.
func (m *Metrics) ObserveRemaining(remaining int64) {
	m.PromRLRemaining.Observe(float64(remaining))
}

// MetricsSnapshot holds a point-in-time copy of all atomic counters.
type MetricsSnapshot struct {
	ToolCalls        int64 `json:"tool_calls"`
	ToolErrors       int64 `json:"tool_errors"`
	RateLimited      int64 `json:"rate_limited"`
	CacheHits        int64 `json:"cache_hits"`
	CacheMisses      int64 `json:"cache_misses"`
	InjectionBlocked int64 `json:"injection_blocked"`
	CORSDenied       int64 `json:"cors_denied"`
	SignatureInvalid int64 `json:"signature_invalid"`
	ReplayBlocked    int64 `json:"replay_blocked"`
	APIRetries       int64 `json:"api_retries"`
	OAuthRefreshes   int64 `json:"oauth_refreshes"`
	CacheCryptErrors int64 `json:"cache_crypt_errors"`
	ValidationErrors int64 `json:"validation_errors"`
}

// Snapshot returns the current counter values.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		ToolCalls:        atomic.LoadInt64(&m.toolCalls),
		ToolErrors:       atomic.LoadInt64(&m.toolErrors),
		RateLimited:      atomic.LoadInt64(&m.rateLimited),
		CacheHits:        atomic.LoadInt64(&m.cacheHits),
		CacheMisses:      atomic.LoadInt64(&m.cacheMisses),
		InjectionBlocked: atomic.LoadInt64(&m.injectionBlocked),
		CORSDenied:       atomic.LoadInt64(&m.corsDenied),
		SignatureInvalid: atomic.LoadInt64(&m.signatureInvalid),
		ReplayBlocked:    atomic.LoadInt64(&m.replayBlocked),
		APIRetries:       atomic.LoadInt64(&m.apiRetries),
		OAuthRefreshes:   atomic.LoadInt64(&m.oauthRefreshes),
		CacheCryptErrors: atomic.LoadInt64(&m.cacheCryptErrors),
		ValidationErrors: atomic.LoadInt64(&m.validationErrors),
	}
}
