package seclog

import (
	"bufio"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tubegate/tubegate/internal/config"
	"github.com/tubegate/tubegate/internal/observability"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func newTestLogger(t *testing.T, cfg config.SecLogConfig, opts ...Option) *Logger {
	t.Helper()
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	l, err := New(cfg, discardLogger(), metrics, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestRecordAndRecent(t *testing.T) {
	l := newTestLogger(t, config.SecLogConfig{RecentSize: 10})

	l.Record(EventRateLimitExceeded, "ip:1.2.3.4", "minute window", nil)
	l.Record(EventInjectionDetected, "user:alice", "role_override", map[string]string{"tool": "search_videos"})

	recent := l.Recent(0)
	require.Len(t, recent, 2)
	// Newest first.
	assert.Equal(t, EventInjectionDetected, recent[0].Type)
	assert.Equal(t, SeverityError, recent[0].Severity)
	assert.Equal(t, EventRateLimitExceeded, recent[1].Type)
	assert.NotEmpty(t, recent[0].ID)
}

func TestRingOverwritesOldest(t *testing.T) {
	l := newTestLogger(t, config.SecLogConfig{RecentSize: 3})

	for i := 0; i < 5; i++ {
		l.Record(EventAuthFailure, "", "", map[string]string{"n": string(rune('a' + i))})
	}

	recent := l.Recent(0)
	require.Len(t, recent, 3)
	assert.Equal(t, "e", recent[0].Fields["n"])
	assert.Equal(t, "c", recent[2].Fields["n"])
}

func TestFileSinkWritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "security.log")
	l := newTestLogger(t, config.SecLogConfig{FilePath: path, RecentSize: 10})

	l.Record(EventReplayAttack, "key:abc", "nonce reuse", nil)
	require.NoError(t, l.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	scanner := bufio.NewScanner(f)
	require.True(t, scanner.Scan())
	var ev Event
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev))
	assert.Equal(t, EventReplayAttack, ev.Type)
	assert.Equal(t, SeverityCritical, ev.Severity)
	assert.Equal(t, "key:abc", ev.Identity)
}

func TestSuspicionThreshold(t *testing.T) {
	now := time.Now()
	clock := now
	l := newTestLogger(t, config.SecLogConfig{
		RecentSize:         100,
		SuspicionThreshold: 3,
		SuspicionWindow:    "10m",
	}, WithClock(func() time.Time { return clock }))

	l.Record(EventAuthFailure, "ip:9.9.9.9", "", nil)
	l.Record(EventAuthFailure, "ip:9.9.9.9", "", nil)
	assert.Empty(t, l.Snapshot().Suspicious)

	l.Record(EventAuthFailure, "ip:9.9.9.9", "", nil)
	snap := l.Snapshot()
	assert.Equal(t, []string{"ip:9.9.9.9"}, snap.Suspicious)

	// Crossing the threshold emits a suspicious_activity event.
	recent := l.Recent(1)
	assert.Equal(t, EventSuspiciousActor, recent[0].Type)
	assert.Equal(t, "ip:9.9.9.9", recent[0].Fields["flagged_identity"])

	// The flag expires once the window passes.
	clock = now.Add(11 * time.Minute)
	assert.Empty(t, l.Snapshot().Suspicious)
}

func TestSuspicionWindowSlides(t *testing.T) {
	now := time.Now()
	clock := now
	l := newTestLogger(t, config.SecLogConfig{
		RecentSize:         100,
		SuspicionThreshold: 3,
		SuspicionWindow:    "1m",
	}, WithClock(func() time.Time { return clock }))

	l.Record(EventCORSViolation, "ip:8.8.8.8", "", nil)
	clock = now.Add(2 * time.Minute)
	l.Record(EventCORSViolation, "ip:8.8.8.8", "", nil)
	clock = now.Add(4 * time.Minute)
	l.Record(EventCORSViolation, "ip:8.8.8.8", "", nil)

	// Three events, but never three inside one window.
	assert.Empty(t, l.Snapshot().Suspicious)
}

func TestSnapshotTotals(t *testing.T) {
	l := newTestLogger(t, config.SecLogConfig{RecentSize: 10})

	l.Record(EventSignatureInvalid, "a", "", nil)
	l.Record(EventSignatureInvalid, "b", "", nil)
	l.Record(EventSecretRotation, "", "signing secret rotated", nil)

	snap := l.Snapshot()
	assert.Equal(t, int64(2), snap.TotalByType[EventSignatureInvalid])
	assert.Equal(t, int64(1), snap.TotalByType[EventSecretRotation])
}

func TestExportJSON(t *testing.T) {
	l := newTestLogger(t, config.SecLogConfig{RecentSize: 10})
	l.Record(EventValidationFailure, "user:bob", "bad video id", nil)

	out, err := l.ExportJSON()
	require.NoError(t, err)

	var events []Event
	require.NoError(t, json.Unmarshal(out, &events))
	require.Len(t, events, 1)
	assert.Equal(t, EventValidationFailure, events[0].Type)
}

func TestMissingFileSinkDegrades(t *testing.T) {
	// Directory path cannot be opened as a file: events still recorded.
	l, err := New(config.SecLogConfig{FilePath: t.TempDir(), RecentSize: 5},
		discardLogger(), nil)
	require.NoError(t, err)
	l.Record(EventAuthFailure, "x", "", nil)
	assert.Len(t, l.Recent(0), 1)
}

func TestSinkReceivesEvents(t *testing.T) {
	var got []Event
	l := newTestLogger(t, config.SecLogConfig{RecentSize: 10},
		WithSink(func(ev Event) { got = append(got, ev) }))

	l.Record(EventReplayAttack, "key:abc", "nonce reuse", nil)

	require.Len(t, got, 1)
	assert.Equal(t, EventReplayAttack, got[0].Type)
	assert.Equal(t, "key:abc", got[0].Identity)
}
