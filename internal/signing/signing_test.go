package signing

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tubegate/tubegate/internal/config"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestSigner(t *testing.T, opts ...Option) *Signer {
	t.Helper()
	s, err := New(config.SigningConfig{
		Enabled:   true,
		Secret:    config.RedactedString(testSecret),
		Tolerance: "5m",
		Algorithm: config.SigningSHA256,
	}, opts...)
	require.NoError(t, err)
	return s
}

func TestSignAndVerifyRoundTrip(t *testing.T) {
	s := newTestSigner(t)
	body := []byte(`{"video_id":"dQw4w9WgXcQ"}`)

	sig := s.Sign("POST", "/mcp", body)
	v := s.Verify("POST", "/mcp", body, sig)
	assert.True(t, v.OK)
	assert.Equal(t, StatusValid, v.Status)
}

func TestVerifyRejectsTamperedBody(t *testing.T) {
	s := newTestSigner(t)
	sig := s.Sign("POST", "/mcp", []byte("original"))
	v := s.Verify("POST", "/mcp", []byte("tampered"), sig)
	assert.False(t, v.OK)
	assert.Equal(t, StatusBadDigest, v.Status)
}

func TestVerifyRejectsTamperedPath(t *testing.T) {
	s := newTestSigner(t)
	sig := s.Sign("POST", "/mcp", nil)
	v := s.Verify("POST", "/other", nil, sig)
	assert.Equal(t, StatusBadDigest, v.Status)
}

func TestVerifyRejectsMissingMaterial(t *testing.T) {
	s := newTestSigner(t)
	v := s.Verify("POST", "/mcp", nil, Signature{Timestamp: time.Now().Unix()})
	assert.Equal(t, StatusMalformed, v.Status)
}

func TestVerifyRejectsStaleTimestamp(t *testing.T) {
	now := time.Now()
	clock := now
	s := newTestSigner(t, WithClock(func() time.Time { return clock }))

	sig := s.Sign("GET", "/mcp", nil)

	clock = now.Add(6 * time.Minute)
	v := s.Verify("GET", "/mcp", nil, sig)
	assert.Equal(t, StatusExpired, v.Status)
}

func TestVerifyRejectsFutureTimestamp(t *testing.T) {
	s := newTestSigner(t)
	sig := s.Sign("GET", "/mcp", nil)
	sig.Timestamp = time.Now().Add(10 * time.Minute).Unix()
	// Recompute not needed: expiry is checked before the digest.
	v := s.Verify("GET", "/mcp", nil, sig)
	assert.Equal(t, StatusExpired, v.Status)
}

func TestVerifyRejectsReplay(t *testing.T) {
	s := newTestSigner(t)
	sig := s.Sign("POST", "/mcp", nil)

	assert.True(t, s.Verify("POST", "/mcp", nil, sig).OK)

	v := s.Verify("POST", "/mcp", nil, sig)
	assert.False(t, v.OK)
	assert.Equal(t, StatusReplay, v.Status)
}

func TestInvalidSignatureDoesNotConsumeNonce(t *testing.T) {
	s := newTestSigner(t)
	sig := s.Sign("POST", "/mcp", []byte("body"))

	// Tampered attempt first: must not burn the nonce.
	assert.Equal(t, StatusBadDigest, s.Verify("POST", "/mcp", []byte("evil"), sig).Status)
	// Legitimate request still goes through.
	assert.True(t, s.Verify("POST", "/mcp", []byte("body"), sig).OK)
}

func TestRotationGraceAcceptsOldSecret(t *testing.T) {
	now := time.Now()
	clock := now
	s := newTestSigner(t, WithClock(func() time.Time { return clock }))

	old := s.Sign("POST", "/mcp", nil)
	s.Rotate(strings.Repeat("x", 32))

	// Old-secret signature still valid inside the grace window.
	assert.True(t, s.Verify("POST", "/mcp", nil, old).OK)

	// New-secret signatures work immediately.
	fresh := s.Sign("POST", "/mcp", nil)
	assert.True(t, s.Verify("POST", "/mcp", nil, fresh).OK)
}

func TestRotationGraceExpires(t *testing.T) {
	now := time.Now()
	clock := now
	s, err := New(config.SigningConfig{
		Enabled:       true,
		Secret:        config.RedactedString(testSecret),
		Tolerance:     "1h",
		RotationGrace: "10m",
	}, WithClock(func() time.Time { return clock }))
	require.NoError(t, err)

	old := s.Sign("POST", "/mcp", nil)
	s.Rotate(strings.Repeat("y", 32))

	clock = now.Add(11 * time.Minute)
	// Timestamp still inside tolerance, but the grace window is over.
	v := s.Verify("POST", "/mcp", nil, old)
	assert.Equal(t, StatusBadDigest, v.Status)
}

func TestSHA512Algorithm(t *testing.T) {
	s, err := New(config.SigningConfig{
		Enabled:   true,
		Secret:    config.RedactedString(testSecret),
		Tolerance: "5m",
		Algorithm: config.SigningSHA512,
	})
	require.NoError(t, err)

	sig := s.Sign("GET", "/mcp", nil)
	assert.Len(t, sig.Digest, 128) // hex of 64 bytes
	assert.True(t, s.Verify("GET", "/mcp", nil, sig).OK)
}

func TestNonceStoreCapacityFailsClosed(t *testing.T) {
	now := time.Now()
	store := newNonceStore(2)

	assert.True(t, store.checkAndRecord("a", now, time.Minute))
	assert.True(t, store.checkAndRecord("b", now, time.Minute))
	// Full, nothing prunable: reject.
	assert.False(t, store.checkAndRecord("c", now, time.Minute))

	// After the window passes, old entries prune and new nonces fit.
	later := now.Add(5 * time.Minute)
	assert.True(t, store.checkAndRecord("c", later, time.Minute))
	assert.Equal(t, 1, store.Len())
}
