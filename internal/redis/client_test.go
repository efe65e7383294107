package redis

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tubegate/tubegate/internal/config"
)

func TestNewClientSingle(t *testing.T) {
	mr := miniredis.RunT(t)

	c, err := NewClient(config.RedisConfig{Endpoints: []string{mr.Addr()}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k", "v", time.Minute).Err())
	got, err := c.Get(ctx, "k").Result()
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestNewClientPingFailure(t *testing.T) {
	// Nothing listens on this port.
	_, err := NewClient(config.RedisConfig{Endpoints: []string{"127.0.0.1:1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "127.0.0.1:1")
}

func TestNewClientAuth(t *testing.T) {
	mr := miniredis.RunT(t)
	mr.RequireAuth("sekrit")

	_, err := NewClient(config.RedisConfig{Endpoints: []string{mr.Addr()}})
	require.Error(t, err)

	c, err := NewClient(config.RedisConfig{
		Endpoints: []string{mr.Addr()},
		Password:  config.RedactedString("sekrit"),
	})
	require.NoError(t, err)
	require.NoError(t, c.Close())
}

func TestInitLogger(t *testing.T) {
	// Smoke test: the adapter must satisfy the go-redis logging interface.
	InitLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}
