// Package cache implements TubeGate's two-tier response cache: a ristretto
// memory tier in front of a persistent tier (SQLite by default, Redis
// optionally), with deterministic key fingerprinting and optional
// AES-256-GCM encryption of persisted payloads.
//
// Writes never fail the caller: a cache that cannot store simply stores
// nothing. Reads promote persistent-tier hits into the memory tier.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/tubegate/tubegate/internal/config"
	"github.com/tubegate/tubegate/internal/observability"
)

const defaultMemoryMaxCost = 64 << 20 // 64 MiB

// Store is the persistent tier contract. Get reports the entry's remaining
// lifetime so promotion into the memory tier cannot outlive the entry;
// entries at or past expiry are misses.
type Store interface {
	Get(ctx context.Context, key string) (payload []byte, remaining time.Duration, ok bool, err error)
	Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Prune(ctx context.Context) (int64, error)
	Len(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

// OpClass selects which configured TTL applies to an operation.
type OpClass string

const (
	ClassDefault    OpClass = "default"
	ClassSearch     OpClass = "search"
	ClassVideo      OpClass = "video"
	ClassChannel    OpClass = "channel"
	ClassComments   OpClass = "comments"
	ClassTranscript OpClass = "transcript"
	ClassPlaylist   OpClass = "playlist"
)

// Cache is the two-tier cache.
type Cache struct {
	enabled bool
	memory  *ristretto.Cache[string, []byte]
	store   Store // may be nil when only the memory tier is configured
	cryptor *Cryptor // nil disables encryption at rest

	ttls map[OpClass]time.Duration

	logger  *slog.Logger
	metrics *observability.Metrics
}

// New builds the cache from config. store may be nil. Metrics may be nil.
func New(cfg config.CacheConfig, store Store, logger *slog.Logger, metrics *observability.Metrics) (*Cache, error) {
	maxCost := cfg.MemoryMaxCost
	if maxCost <= 0 {
		maxCost = defaultMemoryMaxCost
	}

	memory, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: 100000,
		MaxCost:     maxCost,
		BufferItems: 64,
		Metrics:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("creating memory tier: %w", err)
	}

	ttls, err := parseTTLs(cfg.TTL)
	if err != nil {
		return nil, err
	}

	c := &Cache{
		enabled: cfg.Enabled,
		memory:  memory,
		store:   store,
		ttls:    ttls,
		logger:  logger.With("component", "cache"),
		metrics: metrics,
	}

	if cfg.Encrypt.Enabled {
		cryptor, err := NewCryptor(cfg.Encrypt.Secret.Value())
		if err != nil {
			return nil, fmt.Errorf("creating cache cryptor: %w", err)
		}
		c.cryptor = cryptor
	}

	return c, nil
}

func parseTTLs(cfg config.CacheTTLConfig) (map[OpClass]time.Duration, error) {
	defaults := map[OpClass]struct {
		val string
		def time.Duration
	}{
		ClassDefault:    {cfg.Default, time.Hour},
		ClassSearch:     {cfg.Search, 15 * time.Minute},
		ClassVideo:      {cfg.Video, time.Hour},
		ClassChannel:    {cfg.Channel, 6 * time.Hour},
		ClassComments:   {cfg.Comments, 30 * time.Minute},
		ClassTranscript: {cfg.Transcript, 24 * time.Hour},
		ClassPlaylist:   {cfg.Playlist, 10 * time.Minute},
	}

	ttls := make(map[OpClass]time.Duration, len(defaults))
	for class, d := range defaults {
		ttl, err := config.ParseDuration(d.val, d.def)
		if err != nil {
			return nil, fmt.Errorf("parsing cache.ttl.%s: %w", class, err)
		}
		ttls[class] = ttl
	}
	return ttls, nil
}

// TTL returns the configured TTL for an operation class.
func (c *Cache) TTL(class OpClass) time.Duration {
	if ttl, ok := c.ttls[class]; ok {
		return ttl
	}
	return c.ttls[ClassDefault]
}

// Get looks up a key, checking memory first and promoting persistent hits.
func (c *Cache) Get(ctx context.Context, key string, class OpClass) ([]byte, bool) {
	if !c.enabled {
		return nil, false
	}

	if payload, ok := c.memory.Get(key); ok {
		if c.metrics != nil {
			c.metrics.IncCacheHit("memory")
		}
		return payload, true
	}

	if c.store == nil {
		if c.metrics != nil {
			c.metrics.IncCacheMiss()
		}
		return nil, false
	}

	payload, remaining, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn("persistent tier read failed", "key", key, "error", err)
	}
	if !ok || err != nil || remaining <= 0 {
		if c.metrics != nil {
			c.metrics.IncCacheMiss()
		}
		return nil, false
	}

	if c.cryptor != nil {
		payload, err = c.cryptor.Open(payload)
		if err != nil {
			// Undecryptable payloads (secret rotated, corrupted file) are
			// evicted and treated as a miss.
			c.logger.Warn("cache payload decryption failed, evicting", "key", key)
			if c.metrics != nil {
				c.metrics.IncCacheCryptError()
				c.metrics.IncCacheMiss()
			}
			_ = c.store.Delete(ctx, key)
			return nil, false
		}
	}

	if c.metrics != nil {
		c.metrics.IncCacheHit("persistent")
	}
	// Promote with the entry's remaining lifetime, never a fresh class TTL:
	// the memory copy must expire when the entry does.
	ttl := c.TTL(class)
	if remaining < ttl {
		ttl = remaining
	}
	c.memory.SetWithTTL(key, payload, int64(len(payload)), ttl)
	return payload, true
}

// Put stores a payload in both tiers. Failures are logged, never returned:
// a broken cache degrades to a smaller cache, not a broken request.
func (c *Cache) Put(ctx context.Context, key string, payload []byte, class OpClass) {
	if !c.enabled {
		return
	}
	ttl := c.TTL(class)

	c.memory.SetWithTTL(key, payload, int64(len(payload)), ttl)

	if c.store == nil {
		return
	}

	stored := payload
	if c.cryptor != nil {
		sealed, err := c.cryptor.Seal(payload)
		if err != nil {
			c.logger.Warn("cache payload encryption failed, skipping persistent tier", "key", key, "error", err)
			if c.metrics != nil {
				c.metrics.IncCacheCryptError()
			}
			return
		}
		stored = sealed
	}

	if err := c.store.Set(ctx, key, stored, ttl); err != nil {
		c.logger.Warn("persistent tier write failed", "key", key, "error", err)
	}
}

// Invalidate removes a key from both tiers.
func (c *Cache) Invalidate(ctx context.Context, key string) {
	c.memory.Del(key)
	if c.store != nil {
		if err := c.store.Delete(ctx, key); err != nil {
			c.logger.Warn("persistent tier delete failed", "key", key, "error", err)
		}
	}
}

// Prune removes expired persistent entries.
func (c *Cache) Prune(ctx context.Context) {
	if c.store == nil {
		return
	}
	dropped, err := c.store.Prune(ctx)
	if err != nil {
		c.logger.Warn("cache prune failed", "error", err)
		return
	}
	if dropped > 0 {
		c.logger.Debug("pruned expired cache entries", "count", dropped)
	}
}

// Stats summarizes cache state for the stats surface.
type Stats struct {
	Enabled         bool  `json:"enabled"`
	PersistentCount int64 `json:"persistent_count"`
	MemoryCostAdded int64 `json:"memory_cost_added"`
	MemoryHits      int64 `json:"memory_hits"`
	MemoryMisses    int64 `json:"memory_misses"`
}

// Snapshot returns cache statistics.
func (c *Cache) Snapshot(ctx context.Context) Stats {
	s := Stats{Enabled: c.enabled}
	if m := c.memory.Metrics; m != nil {
		s.MemoryCostAdded = int64(m.CostAdded())
		s.MemoryHits = int64(m.Hits())
		s.MemoryMisses = int64(m.Misses())
	}
	if c.store != nil {
		if n, err := c.store.Len(ctx); err == nil {
			s.PersistentCount = n
		}
	}
	return s
}

// Close releases both tiers.
func (c *Cache) Close() error {
	c.memory.Close()
	if c.store != nil {
		return c.store.Close()
	}
	return nil
}
