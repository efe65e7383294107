package cache

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tubegate/tubegate/internal/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func newTestCache(t *testing.T, cfg config.CacheConfig, store Store) *Cache {
	t.Helper()
	cfg.Enabled = true
	c, err := New(cfg, store, discardLogger(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestMemoryTierRoundTrip(t *testing.T) {
	c := newTestCache(t, config.CacheConfig{}, nil)
	ctx := context.Background()

	key := Fingerprint("get_video_info", map[string]string{"video_id": "dQw4w9WgXcQ"})
	c.Put(ctx, key, []byte("payload"), ClassVideo)
	c.memory.Wait()

	got, ok := c.Get(ctx, key, ClassVideo)
	assert.True(t, ok)
	assert.Equal(t, []byte("payload"), got)
}

func TestPersistentTierPromotion(t *testing.T) {
	store := newTestSQLite(t)
	c := newTestCache(t, config.CacheConfig{}, store)
	ctx := context.Background()

	// Write directly to the persistent tier, bypassing memory.
	require.NoError(t, store.Set(ctx, "k", []byte("cold"), time.Hour))

	got, ok := c.Get(ctx, "k", ClassVideo)
	require.True(t, ok)
	assert.Equal(t, []byte("cold"), got)

	// The hit was promoted into the memory tier.
	c.memory.Wait()
	mem, ok := c.memory.Get("k")
	assert.True(t, ok)
	assert.Equal(t, []byte("cold"), mem)
}

// expiringStore is a persistent tier whose single entry expires at a fixed
// instant, reporting the remaining lifetime on every hit.
type expiringStore struct {
	payload []byte
	expiry  time.Time
}

func (s *expiringStore) Get(context.Context, string) ([]byte, time.Duration, bool, error) {
	remaining := time.Until(s.expiry)
	if remaining <= 0 {
		return nil, 0, false, nil
	}
	return s.payload, remaining, true, nil
}
func (s *expiringStore) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (s *expiringStore) Delete(context.Context, string) error                     { return nil }
func (s *expiringStore) Prune(context.Context) (int64, error)                     { return 0, nil }
func (s *expiringStore) Len(context.Context) (int64, error)                       { return 0, nil }
func (s *expiringStore) Ping(context.Context) error                               { return nil }
func (s *expiringStore) Close() error                                             { return nil }

func TestPromotionHonorsRemainingLifetime(t *testing.T) {
	store := &expiringStore{payload: []byte("v"), expiry: time.Now().Add(75 * time.Millisecond)}
	c := newTestCache(t, config.CacheConfig{}, store)
	ctx := context.Background()

	// A near-expiry persistent hit still serves.
	got, ok := c.Get(ctx, "k", ClassVideo)
	require.True(t, ok)
	assert.Equal(t, []byte("v"), got)

	// The promoted memory copy expires with the entry; it must not live a
	// full class TTL from the moment of promotion.
	require.Eventually(t, func() bool {
		_, ok := c.Get(ctx, "k", ClassVideo)
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPutWritesBothTiers(t *testing.T) {
	store := newTestSQLite(t)
	c := newTestCache(t, config.CacheConfig{}, store)
	ctx := context.Background()

	c.Put(ctx, "k", []byte("v"), ClassSearch)

	payload, _, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), payload)
}

func TestEncryptedPersistentTier(t *testing.T) {
	store := newTestSQLite(t)
	c := newTestCache(t, config.CacheConfig{
		Encrypt: config.CacheCryptConfig{Enabled: true, Secret: "cache-secret"},
	}, store)
	ctx := context.Background()

	c.Put(ctx, "k", []byte("sensitive transcript"), ClassTranscript)

	// Raw persisted bytes are ciphertext.
	raw, _, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotContains(t, string(raw), "sensitive")

	got, ok := c.Get(ctx, "k", ClassTranscript)
	require.True(t, ok)
	assert.Equal(t, []byte("sensitive transcript"), got)
}

func TestDecryptFailureIsMissAndEvicts(t *testing.T) {
	store := newTestSQLite(t)
	c := newTestCache(t, config.CacheConfig{
		Encrypt: config.CacheCryptConfig{Enabled: true, Secret: "cache-secret"},
	}, store)
	ctx := context.Background()

	// Plaintext garbage in the persistent tier (e.g. written before the
	// secret rotated).
	require.NoError(t, store.Set(ctx, "k", []byte("not ciphertext"), time.Hour))

	_, ok := c.Get(ctx, "k", ClassVideo)
	assert.False(t, ok)

	// The bad entry was evicted.
	_, _, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInvalidate(t *testing.T) {
	store := newTestSQLite(t)
	c := newTestCache(t, config.CacheConfig{}, store)
	ctx := context.Background()

	c.Put(ctx, "k", []byte("v"), ClassPlaylist)
	c.memory.Wait()
	c.Invalidate(ctx, "k")

	_, ok := c.Get(ctx, "k", ClassPlaylist)
	assert.False(t, ok)
}

func TestDisabledCacheNeverHits(t *testing.T) {
	c, err := New(config.CacheConfig{Enabled: false}, nil, discardLogger(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	ctx := context.Background()

	c.Put(ctx, "k", []byte("v"), ClassVideo)
	_, ok := c.Get(ctx, "k", ClassVideo)
	assert.False(t, ok)
}

func TestTTLTable(t *testing.T) {
	c := newTestCache(t, config.CacheConfig{
		TTL: config.CacheTTLConfig{Search: "1m", Default: "2h"},
	}, nil)

	assert.Equal(t, time.Minute, c.TTL(ClassSearch))
	assert.Equal(t, 2*time.Hour, c.TTL(ClassDefault))
	// Unset classes use their own defaults, not the config default.
	assert.Equal(t, 24*time.Hour, c.TTL(ClassTranscript))
	// Unknown classes fall back to default.
	assert.Equal(t, 2*time.Hour, c.TTL(OpClass("bogus")))
}

func TestRedisStoreRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)

	store, err := NewRedisStore(config.RedisConfig{Endpoints: []string{mr.Addr()}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", []byte("v"), time.Hour))
	payload, remaining, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), payload)
	assert.Greater(t, remaining, time.Duration(0))
	assert.LessOrEqual(t, remaining, time.Hour)

	// TTL enforced by Redis.
	mr.FastForward(2 * time.Hour)
	_, _, ok, err = store.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStoreAsPersistentTier(t *testing.T) {
	mr := miniredis.RunT(t)
	store, err := NewRedisStore(config.RedisConfig{Endpoints: []string{mr.Addr()}})
	require.NoError(t, err)

	c := newTestCache(t, config.CacheConfig{}, store)
	ctx := context.Background()

	c.Put(ctx, "k", []byte("v"), ClassChannel)
	got, ok := c.Get(ctx, "k", ClassChannel)
	require.True(t, ok)
	assert.Equal(t, []byte("v"), got)

	n, err := store.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSnapshot(t *testing.T) {
	store := newTestSQLite(t)
	c := newTestCache(t, config.CacheConfig{}, store)
	ctx := context.Background()

	c.Put(ctx, "a", []byte("v"), ClassVideo)
	c.Put(ctx, "b", []byte("v"), ClassVideo)

	snap := c.Snapshot(ctx)
	assert.True(t, snap.Enabled)
	assert.Equal(t, int64(2), snap.PersistentCount)
}

func TestSQLiteCachePathReuse(t *testing.T) {
	// Same file across two stores: entries survive a restart.
	path := filepath.Join(t.TempDir(), "cache.db")
	ctx := context.Background()

	s1, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s1.Set(ctx, "k", []byte("v"), time.Hour))
	require.NoError(t, s1.Close())

	s2, err := NewSQLiteStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s2.Close() })
	payload, _, ok, err := s2.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), payload)
}
