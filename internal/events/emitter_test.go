package events

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tubegate/tubegate/internal/config"
	"github.com/tubegate/tubegate/internal/observability"
	"github.com/tubegate/tubegate/internal/seclog"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type capture struct {
	mu      sync.Mutex
	batches [][]seclog.Event
}

func (c *capture) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Events []seclog.Event `json:"events"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		c.mu.Lock()
		c.batches = append(c.batches, payload.Events)
		c.mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	}
}

func (c *capture) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, b := range c.batches {
		n += len(b)
	}
	return n
}

func newTestEmitter(t *testing.T, url string, mutate func(*config.EventsConfig)) *Emitter {
	t.Helper()
	cfg := config.EventsConfig{
		Enabled:       true,
		WebhookURL:    url,
		BatchSize:     10,
		BufferSize:    100,
		FlushInterval: "1h", // only explicit flushes in tests
		Timeout:       "5s",
	}
	if mutate != nil {
		mutate(&cfg)
	}
	e := NewEmitter(cfg, discardLogger(), observability.NewMetrics(prometheus.NewRegistry()))
	require.NotNil(t, e)
	return e
}

func event(id string) seclog.Event {
	return seclog.Event{
		ID:        id,
		Type:      seclog.EventAuthFailure,
		Severity:  seclog.SeverityWarning,
		Identity:  "ip:203.0.113.9",
		Timestamp: time.Now(),
	}
}

func TestEmitterDisabled(t *testing.T) {
	e := NewEmitter(config.EventsConfig{}, discardLogger(), nil)
	assert.Nil(t, e)
}

func TestEmitterFlushesOnClose(t *testing.T) {
	var c capture
	srv := httptest.NewServer(c.handler())
	defer srv.Close()

	e := newTestEmitter(t, srv.URL, nil)
	e.Emit(event("a"))
	e.Emit(event("b"))
	require.NoError(t, e.Close())

	require.Equal(t, 2, c.total())
	assert.Equal(t, "a", c.batches[0][0].ID)
	assert.Equal(t, "b", c.batches[0][1].ID)
}

func TestEmitterFlushesOnBatchSize(t *testing.T) {
	var c capture
	srv := httptest.NewServer(c.handler())
	defer srv.Close()

	e := newTestEmitter(t, srv.URL, func(cfg *config.EventsConfig) {
		cfg.BatchSize = 3
	})
	defer e.Close()

	e.Emit(event("a"))
	e.Emit(event("b"))
	e.Emit(event("c"))

	require.Eventually(t, func() bool {
		return c.total() == 3
	}, 2*time.Second, 10*time.Millisecond)
}

func TestEmitterFlushesOnInterval(t *testing.T) {
	var c capture
	srv := httptest.NewServer(c.handler())
	defer srv.Close()

	e := newTestEmitter(t, srv.URL, func(cfg *config.EventsConfig) {
		cfg.FlushInterval = "20ms"
	})
	defer e.Close()

	e.Emit(event("a"))

	require.Eventually(t, func() bool {
		return c.total() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestEmitterDropsOldestWhenFull(t *testing.T) {
	var c capture
	srv := httptest.NewServer(c.handler())
	defer srv.Close()

	e := newTestEmitter(t, srv.URL, func(cfg *config.EventsConfig) {
		cfg.BufferSize = 2
		cfg.BatchSize = 100
	})

	e.Emit(event("a"))
	e.Emit(event("b"))
	e.Emit(event("c")) // evicts "a"
	require.NoError(t, e.Close())

	require.Equal(t, 2, c.total())
	assert.Equal(t, "b", c.batches[0][0].ID)
	assert.Equal(t, "c", c.batches[0][1].ID)
}

func TestEmitterSplitsLargeDrainsIntoBatches(t *testing.T) {
	var c capture
	srv := httptest.NewServer(c.handler())
	defer srv.Close()

	e := newTestEmitter(t, srv.URL, func(cfg *config.EventsConfig) {
		cfg.BatchSize = 2
		cfg.FlushInterval = "1h"
	})

	// Fill the ring directly so the batch-size flush trigger cannot race
	// the assertions. Close drains two batches.
	for _, id := range []string{"a", "b", "c"} {
		e.ringMu.Lock()
		e.ring[e.ringTail] = event(id)
		e.ringTail = (e.ringTail + 1) % e.bufferSize
		e.ringLen++
		e.ringMu.Unlock()
	}
	require.NoError(t, e.Close())

	c.mu.Lock()
	defer c.mu.Unlock()
	require.Len(t, c.batches, 2)
	assert.Len(t, c.batches[0], 2)
	assert.Len(t, c.batches[1], 1)
}

func TestEmitterSurvivesUnreachableWebhook(t *testing.T) {
	e := newTestEmitter(t, "http://127.0.0.1:1", func(cfg *config.EventsConfig) {
		cfg.Timeout = "100ms"
	})
	e.Emit(event("a"))
	require.NoError(t, e.Close())
}
