package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.IncToolCall("get_video_info", "ok")
	m.IncToolCall("search_videos", "error")
	m.IncRateLimited()
	m.IncCacheHit("memory")
	m.IncCacheHit("persistent")
	m.IncCacheMiss()
	m.IncInjectionBlocked()
	m.IncCORSDenied()
	m.IncSignatureInvalid()
	m.IncReplayBlocked()
	m.IncValidationError()
	m.IncAPIRetry()
	m.IncOAuthRefresh("ok")
	m.IncCacheCryptError()

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.ToolCalls)
	assert.Equal(t, int64(1), snap.ToolErrors)
	assert.Equal(t, int64(1), snap.RateLimited)
	assert.Equal(t, int64(2), snap.CacheHits)
	assert.Equal(t, int64(1), snap.CacheMisses)
	assert.Equal(t, int64(1), snap.InjectionBlocked)
	assert.Equal(t, int64(1), snap.CORSDenied)
	assert.Equal(t, int64(1), snap.SignatureInvalid)
	assert.Equal(t, int64(1), snap.ReplayBlocked)
	assert.Equal(t, int64(1), snap.ValidationErrors)
	assert.Equal(t, int64(1), snap.APIRetries)
	assert.Equal(t, int64(1), snap.OAuthRefreshes)
	assert.Equal(t, int64(1), snap.CacheCryptErrors)
}

func TestMetricsRegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.IncToolCall("get_video_info", "ok")
	m.IncSecurityEvent("rate_limit_exceeded", "warning")
	m.SetSuspiciousIdentities(2)
	m.ObserveRemaining(42)
	m.PromToolDuration.WithLabelValues("get_video_info").Observe(0.1)
	m.PromAPIDuration.WithLabelValues("videos.list").Observe(0.2)

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"tubegate_tool_calls_total",
		"tubegate_security_events_total",
		"tubegate_suspicious_identities",
		"tubegate_ratelimit_remaining_requests",
		"tubegate_tool_duration_seconds",
		"tubegate_youtube_api_duration_seconds",
	} {
		assert.True(t, names[want], "missing metric %s", want)
	}
}

func TestNewMetricsNilRegistererPanicsOnDoubleUse(t *testing.T) {
	// Two instances on distinct registries must not collide.
	_ = NewMetrics(prometheus.NewRegistry())
	_ = NewMetrics(prometheus.NewRegistry())
}
