// Package ratelimit implements sliding-window rate limiting per caller
// identity over minute, hour, and day windows. Each identity scope (user,
// API key, IP) carries its own limits; a call is charged against exactly
// one scope.
package ratelimit

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tubegate/tubegate/internal/config"
	"github.com/tubegate/tubegate/internal/observability"
)

// Scope identifies which limit set applies to an identity.
type Scope string

const (
	ScopeUser   Scope = "user"
	ScopeAPIKey Scope = "api_key"
	ScopeIP     Scope = "ip"
)

// Window names a sliding window.
type Window string

const (
	WindowMinute Window = "minute"
	WindowHour   Window = "hour"
	WindowDay    Window = "day"
)

var windowDurations = map[Window]time.Duration{
	WindowMinute: time.Minute,
	WindowHour:   time.Hour,
	WindowDay:    24 * time.Hour,
}

// Identity is a resolved caller identity. Resolve picks the highest-priority
// populated field.
type Identity struct {
	UserID string
	APIKey string
	IP     string
}

// Resolve returns the scope and key charged for this identity. Priority:
// user > api_key > ip. An entirely empty identity resolves to an IP-scoped
// "unknown" bucket so anonymous floods still share one limit.
func (id Identity) Resolve() (Scope, string) {
	switch {
	case id.UserID != "":
		return ScopeUser, "user:" + id.UserID
	case id.APIKey != "":
		return ScopeAPIKey, "key:" + id.APIKey
	case id.IP != "":
		return ScopeIP, "ip:" + id.IP
	default:
		return ScopeIP, "ip:unknown"
	}
}

// Result describes a rate limit decision.
type Result struct {
	Allowed    bool
	Scope      Scope
	Key        string
	Window     Window        // the window that denied, when !Allowed
	Limit      int           // limit of the tightest window checked
	Remaining  int           // remaining in the tightest window
	RetryAfter time.Duration // when !Allowed: wait until a slot frees
	ResetAfter time.Duration // when the tightest window fully resets
}

// entry tracks request timestamps for one identity.
type entry struct {
	mu       sync.Mutex
	times    []time.Time // ascending
	lastSeen time.Time
}

// Limiter is the sliding-window rate limiter.
type Limiter struct {
	enabled bool
	limits  map[Scope]config.WindowLimits

	mu      sync.RWMutex
	entries map[string]*entry

	maxIdentities int
	sweepInterval time.Duration

	metrics *observability.Metrics
	now     func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New creates a Limiter from config. Metrics may be nil.
func New(cfg config.RateLimitConfig, metrics *observability.Metrics, opts ...Option) (*Limiter, error) {
	sweep, err := config.ParseDuration(cfg.CleanupInterval, time.Hour)
	if err != nil {
		return nil, fmt.Errorf("parsing rate_limit.cleanup_interval: %w", err)
	}
	maxIdentities := cfg.MaxIdentities
	if maxIdentities <= 0 {
		maxIdentities = 10000
	}

	l := &Limiter{
		enabled: cfg.Enabled,
		limits: map[Scope]config.WindowLimits{
			ScopeUser:   cfg.User,
			ScopeAPIKey: cfg.APIKey,
			ScopeIP:     cfg.IP,
		},
		entries:       make(map[string]*entry),
		maxIdentities: maxIdentities,
		sweepInterval: sweep,
		metrics:       metrics,
		now:           time.Now,
		stop:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Start launches the periodic stale-identity sweep. Optional; the limiter
// also prunes lazily on every check.
func (l *Limiter) Start() {
	go func() {
		ticker := time.NewTicker(l.sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-l.stop:
				return
			case <-ticker.C:
				l.sweep()
			}
		}
	}()
}

// Stop terminates the background sweep.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

// Check atomically checks all windows for the identity and, when allowed,
// records the request. Denied requests are not recorded, so a blocked
// caller does not keep pushing its own reset further out.
func (l *Limiter) Check(id Identity) Result {
	scope, key := id.Resolve()

	if !l.enabled {
		return Result{Allowed: true, Scope: scope, Key: key}
	}

	limits := l.limits[scope]
	now := l.now()

	e := l.entryFor(key, now)
	if e == nil {
		// Identity table is full and nothing could be evicted. Fail closed:
		// an attacker flooding identities must not bypass limiting.
		if l.metrics != nil {
			l.metrics.IncRateLimited()
		}
		return Result{Scope: scope, Key: key, Window: WindowDay, RetryAfter: time.Minute}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.lastSeen = now
	e.times = pruneBefore(e.times, now.Add(-windowDurations[WindowDay]))

	res := Result{Allowed: true, Scope: scope, Key: key, Limit: -1}

	for _, w := range []struct {
		window Window
		limit  int
	}{
		{WindowMinute, limits.PerMinute},
		{WindowHour, limits.PerHour},
		{WindowDay, limits.PerDay},
	} {
		if w.limit <= 0 {
			continue
		}
		cutoff := now.Add(-windowDurations[w.window])
		used := countSince(e.times, cutoff)

		if used >= w.limit {
			// Oldest request inside the window determines when a slot frees.
			oldest := oldestSince(e.times, cutoff)
			retry := oldest.Add(windowDurations[w.window]).Sub(now)
			if retry < 0 {
				retry = 0
			}
			return Result{
				Scope:      scope,
				Key:        key,
				Window:     w.window,
				Limit:      w.limit,
				Remaining:  0,
				RetryAfter: retry,
				ResetAfter: retry,
			}
		}

		remaining := w.limit - used - 1
		if res.Limit == -1 || remaining < res.Remaining {
			res.Window = w.window
			res.Limit = w.limit
			res.Remaining = remaining
			res.ResetAfter = windowDurations[w.window]
			if len(e.times) > 0 {
				if oldest := oldestSince(e.times, cutoff); !oldest.IsZero() {
					res.ResetAfter = oldest.Add(windowDurations[w.window]).Sub(now)
				}
			}
		}
	}

	if res.Limit == -1 {
		// No window configured for this scope.
		res.Limit = 0
		res.Remaining = 0
	}

	e.times = append(e.times, now)

	if l.metrics != nil {
		l.metrics.ObserveRemaining(int64(res.Remaining))
	}
	return res
}

// entryFor returns the entry for key, creating it if needed. Returns nil
// when the identity table is at capacity and eviction freed nothing.
func (l *Limiter) entryFor(key string, now time.Time) *entry {
	l.mu.RLock()
	e, ok := l.entries[key]
	l.mu.RUnlock()
	if ok {
		return e
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok = l.entries[key]; ok {
		return e
	}
	if len(l.entries) >= l.maxIdentities {
		l.evictStaleLocked(now)
		if len(l.entries) >= l.maxIdentities {
			return nil
		}
	}
	e = &entry{}
	l.entries[key] = e
	return e
}

// evictStaleLocked drops identities idle for longer than the day window.
func (l *Limiter) evictStaleLocked(now time.Time) {
	cutoff := now.Add(-windowDurations[WindowDay])
	for key, e := range l.entries {
		e.mu.Lock()
		stale := e.lastSeen.Before(cutoff)
		e.mu.Unlock()
		if stale {
			delete(l.entries, key)
		}
	}
}

// sweep is the periodic stale-identity cleanup.
func (l *Limiter) sweep() {
	now := l.now()
	l.mu.Lock()
	l.evictStaleLocked(now)
	l.mu.Unlock()
}

// Usage reports current window usage for one identity.
type Usage struct {
	Scope      Scope               `json:"scope"`
	Key        string              `json:"key"`
	UsedMinute int                 `json:"used_minute"`
	UsedHour   int                 `json:"used_hour"`
	UsedDay    int                 `json:"used_day"`
	Limits     config.WindowLimits `json:"limits"`
}

// Stats returns usage for the given identity without charging it.
func (l *Limiter) Stats(id Identity) Usage {
	scope, key := id.Resolve()
	u := Usage{Scope: scope, Key: key, Limits: l.limits[scope]}

	l.mu.RLock()
	e, ok := l.entries[key]
	l.mu.RUnlock()
	if !ok {
		return u
	}

	now := l.now()
	e.mu.Lock()
	defer e.mu.Unlock()
	u.UsedMinute = countSince(e.times, now.Add(-time.Minute))
	u.UsedHour = countSince(e.times, now.Add(-time.Hour))
	u.UsedDay = countSince(e.times, now.Add(-24*time.Hour))
	return u
}

// TrackedIdentities reports the current identity table size.
func (l *Limiter) TrackedIdentities() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// pruneBefore drops timestamps strictly before cutoff. times is ascending.
func pruneBefore(times []time.Time, cutoff time.Time) []time.Time {
	i := sort.Search(len(times), func(i int) bool { return !times[i].Before(cutoff) })
	if i == 0 {
		return times
	}
	return append(times[:0], times[i:]...)
}

// countSince counts timestamps at or after cutoff.
func countSince(times []time.Time, cutoff time.Time) int {
	i := sort.Search(len(times), func(i int) bool { return !times[i].Before(cutoff) })
	return len(times) - i
}

// oldestSince returns the first timestamp at or after cutoff, or zero.
func oldestSince(times []time.Time, cutoff time.Time) time.Time {
	i := sort.Search(len(times), func(i int) bool { return !times[i].Before(cutoff) })
	if i == len(times) {
		return time.Time{}
	}
	return times[i]
}
