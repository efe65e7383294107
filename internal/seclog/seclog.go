// Package seclog records security-relevant events: an append-only JSON-lines
// file sink, an in-memory ring of recent events, rolling per-identity tallies
// with a suspicion threshold, and Prometheus counters. Recording never fails
// the request path; sink errors are logged and dropped.
package seclog

import (
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tubegate/tubegate/internal/config"
	"github.com/tubegate/tubegate/internal/observability"
)

// EventType classifies a security event.
type EventType string

const (
	EventAuthFailure       EventType = "auth_failure"
	EventRateLimitExceeded EventType = "rate_limit_exceeded"
	EventInjectionDetected EventType = "injection_detected"
	EventCORSViolation     EventType = "cors_violation"
	EventSignatureInvalid  EventType = "signature_invalid"
	EventReplayAttack      EventType = "replay_attack"
	EventSuspiciousActor   EventType = "suspicious_activity"
	EventSecretRotation    EventType = "secret_rotation"
	EventCacheCryptError   EventType = "cache_encryption_error"
	EventValidationFailure EventType = "validation_failure"
)

// Severity indicates event urgency.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// defaultSeverity maps each event type to its baseline severity.
var defaultSeverity = map[EventType]Severity{
	EventAuthFailure:       SeverityWarning,
	EventRateLimitExceeded: SeverityWarning,
	EventInjectionDetected: SeverityError,
	EventCORSViolation:     SeverityWarning,
	EventSignatureInvalid:  SeverityError,
	EventReplayAttack:      SeverityCritical,
	EventSuspiciousActor:   SeverityCritical,
	EventSecretRotation:    SeverityInfo,
	EventCacheCryptError:   SeverityError,
	EventValidationFailure: SeverityInfo,
}

// Event is one recorded security event.
type Event struct {
	ID        string            `json:"id"`
	Type      EventType         `json:"type"`
	Severity  Severity          `json:"severity"`
	Identity  string            `json:"identity,omitempty"`
	Detail    string            `json:"detail,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Logger records security events.
type Logger struct {
	logger  *slog.Logger
	metrics *observability.Metrics

	mu     sync.Mutex
	file   *os.File
	ring   []Event
	head   int
	count  int
	total  map[EventType]int64
	actors map[string][]time.Time

	suspicionThreshold int
	suspicionWindow    time.Duration
	suspicious         map[string]time.Time

	sink func(Event)

	now func() time.Time
}

// Option configures a Logger.
type Option func(*Logger)

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Logger) { l.now = now }
}

// WithSink forwards every recorded event to fn, for example a webhook
// exporter. fn must not block; it runs on the recording goroutine.
func WithSink(fn func(Event)) Option {
	return func(l *Logger) { l.sink = fn }
}

// New creates a security event logger. The file sink is optional; an empty
// path disables it. Metrics may be nil.
func New(cfg config.SecLogConfig, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) (*Logger, error) {
	window, err := config.ParseDuration(cfg.SuspicionWindow, 10*time.Minute)
	if err != nil {
		return nil, err
	}
	size := cfg.RecentSize
	if size <= 0 {
		size = 1000
	}
	threshold := cfg.SuspicionThreshold
	if threshold <= 0 {
		threshold = 5
	}

	l := &Logger{
		logger:             logger.With("component", "seclog"),
		metrics:            metrics,
		ring:               make([]Event, size),
		total:              make(map[EventType]int64),
		actors:             make(map[string][]time.Time),
		suspicionThreshold: threshold,
		suspicionWindow:    window,
		suspicious:         make(map[string]time.Time),
		now:                time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}

	if cfg.FilePath != "" {
		f, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			// Degrade to in-memory only rather than refusing to start.
			l.logger.Error("security log file unavailable, events kept in memory only",
				"path", cfg.FilePath, "error", err)
		} else {
			l.file = f
		}
	}

	return l, nil
}

// Close releases the file sink.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

// Record logs a security event. identity may be empty for events without an
// actor (e.g. secret rotation). Detail stays server-side.
func (l *Logger) Record(eventType EventType, identity, detail string, fields map[string]string) Event {
	sev, ok := defaultSeverity[eventType]
	if !ok {
		sev = SeverityWarning
	}

	ev := Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Severity:  sev,
		Identity:  identity,
		Detail:    detail,
		Fields:    fields,
		Timestamp: l.now(),
	}

	l.mu.Lock()
	l.ring[l.head] = ev
	l.head = (l.head + 1) % len(l.ring)
	if l.count < len(l.ring) {
		l.count++
	}
	l.total[eventType]++
	becameSuspicious := l.trackActorLocked(ev)
	l.writeFileLocked(ev)
	l.mu.Unlock()

	l.logger.Warn("security event",
		"event_id", ev.ID,
		"type", string(ev.Type),
		"severity", string(ev.Severity),
		"identity", identity,
		"detail", detail,
	)

	if l.metrics != nil {
		l.metrics.IncSecurityEvent(string(ev.Type), string(ev.Severity))
	}

	if l.sink != nil {
		l.sink(ev)
	}

	if becameSuspicious {
		// Recursion is safe: suspicious_activity events carry no identity
		// and so cannot re-trip the threshold.
		l.Record(EventSuspiciousActor, "", "threshold exceeded", map[string]string{
			"flagged_identity": identity,
		})
	}

	return ev
}

// trackActorLocked updates the rolling per-identity tally and reports
// whether this event newly crossed the suspicion threshold.
func (l *Logger) trackActorLocked(ev Event) bool {
	if ev.Identity == "" {
		return false
	}
	cutoff := ev.Timestamp.Add(-l.suspicionWindow)

	times := l.actors[ev.Identity]
	kept := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, ev.Timestamp)
	l.actors[ev.Identity] = kept

	if len(kept) < l.suspicionThreshold {
		return false
	}
	if flaggedAt, already := l.suspicious[ev.Identity]; already && ev.Timestamp.Sub(flaggedAt) < l.suspicionWindow {
		return false
	}
	l.suspicious[ev.Identity] = ev.Timestamp
	if l.metrics != nil {
		l.metrics.SetSuspiciousIdentities(len(l.suspicious))
	}
	return true
}

func (l *Logger) writeFileLocked(ev Event) {
	if l.file == nil {
		return
	}
	line, err := json.Marshal(ev)
	if err != nil {
		return
	}
	line = append(line, '\n')
	if _, err := l.file.Write(line); err != nil {
		l.logger.Error("security log write failed", "error", err)
	}
}

// Recent returns up to n most recent events, newest first.
func (l *Logger) Recent(n int) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n <= 0 || n > l.count {
		n = l.count
	}
	out := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		idx := (l.head - 1 - i + len(l.ring)) % len(l.ring)
		out = append(out, l.ring[idx])
	}
	return out
}

// Stats is a point-in-time summary for the stats surface.
type Stats struct {
	TotalByType map[EventType]int64 `json:"total_by_type"`
	Suspicious  []string            `json:"suspicious_identities"`
	RecentCount int                 `json:"recent_count"`
}

// Snapshot returns aggregate counters and the currently flagged identities.
func (l *Logger) Snapshot() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	totals := make(map[EventType]int64, len(l.total))
	for k, v := range l.total {
		totals[k] = v
	}

	cutoff := l.now().Add(-l.suspicionWindow)
	flagged := make([]string, 0, len(l.suspicious))
	for id, at := range l.suspicious {
		if at.After(cutoff) {
			flagged = append(flagged, id)
		} else {
			delete(l.suspicious, id)
		}
	}
	if l.metrics != nil {
		l.metrics.SetSuspiciousIdentities(len(l.suspicious))
	}

	return Stats{
		TotalByType: totals,
		Suspicious:  flagged,
		RecentCount: l.count,
	}
}

// ExportJSON serializes the recent-event ring, newest first.
func (l *Logger) ExportJSON() ([]byte, error) {
	return json.Marshal(l.Recent(0))
}
