// Package signing implements HMAC request signatures with replay
// protection. The canonical string binds method, path, timestamp, a
// single-use nonce, and the body digest:
//
//	METHOD "\n" PATH "\n" UNIX_TS "\n" NONCE "\n" hex(sha256(body))
//
// Verification accepts the previous secret during a rotation grace window
// so that clients can be migrated without downtime.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tubegate/tubegate/internal/config"
)

// Verdict classifies a verification outcome. Only Status is safe to expose
// to clients; Detail is for security logs.
type Verdict struct {
	OK     bool
	Status Status
	Detail string
}

// Status is the coarse verification outcome.
type Status string

const (
	StatusValid     Status = "valid"
	StatusMalformed Status = "malformed"
	StatusExpired   Status = "expired"
	StatusReplay    Status = "replay"
	StatusBadDigest Status = "bad_signature"
)

// Signature is the parsed client-supplied signature material.
type Signature struct {
	Timestamp int64
	Nonce     string
	Digest    string // lowercase hex
}

// Signer produces and verifies request signatures.
type Signer struct {
	algorithm config.SigningAlgorithm
	tolerance time.Duration

	mu             sync.RWMutex
	secret         []byte
	previousSecret []byte
	rotationUntil  time.Time
	rotationGrace  time.Duration

	nonces *nonceStore

	now func() time.Time
}

// Option configures a Signer.
type Option func(*Signer)

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Signer) { s.now = now }
}

// New creates a Signer from config. The config has already been validated.
func New(cfg config.SigningConfig, opts ...Option) (*Signer, error) {
	tolerance, err := config.ParseDuration(cfg.Tolerance, 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("parsing signing.tolerance: %w", err)
	}
	grace, err := config.ParseDuration(cfg.RotationGrace, 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("parsing signing.rotation_grace: %w", err)
	}

	maxNonces := cfg.MaxNonces
	if maxNonces <= 0 {
		maxNonces = 100000
	}

	s := &Signer{
		algorithm:     cfg.Algorithm,
		tolerance:     tolerance,
		secret:        []byte(cfg.Secret.Value()),
		rotationGrace: grace,
		nonces:        newNonceStore(maxNonces),
		now:           time.Now,
	}
	if prev := cfg.PreviousSecret.Value(); prev != "" {
		s.previousSecret = []byte(prev)
		s.rotationUntil = s.now().Add(grace)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Rotate swaps in a new secret. The old secret remains valid for the
// rotation grace period.
func (s *Signer) Rotate(newSecret string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.previousSecret = s.secret
	s.secret = []byte(newSecret)
	s.rotationUntil = s.now().Add(s.rotationGrace)
}

// Sign produces signature material for a request. Used by tests and by
// clients embedding this package.
func (s *Signer) Sign(method, path string, body []byte) Signature {
	s.mu.RLock()
	secret := s.secret
	s.mu.RUnlock()

	ts := s.now().Unix()
	nonce := uuid.NewString()
	return Signature{
		Timestamp: ts,
		Nonce:     nonce,
		Digest:    s.compute(secret, method, path, ts, nonce, body),
	}
}

// Verify checks a signature. A valid signature consumes its nonce; any
// reuse within the tolerance window is rejected as a replay.
func (s *Signer) Verify(method, path string, body []byte, sig Signature) Verdict {
	if sig.Nonce == "" || sig.Digest == "" {
		return Verdict{Status: StatusMalformed, Detail: "missing nonce or signature"}
	}

	now := s.now()
	age := now.Sub(time.Unix(sig.Timestamp, 0))
	if age > s.tolerance || age < -s.tolerance {
		return Verdict{Status: StatusExpired, Detail: fmt.Sprintf("timestamp outside tolerance by %s", age)}
	}

	s.mu.RLock()
	secret := s.secret
	prev := s.previousSecret
	rotationActive := len(prev) > 0 && now.Before(s.rotationUntil)
	s.mu.RUnlock()

	want := s.compute(secret, method, path, sig.Timestamp, sig.Nonce, body)
	match := hmac.Equal([]byte(want), []byte(strings.ToLower(sig.Digest)))

	if !match && rotationActive {
		wantPrev := s.compute(prev, method, path, sig.Timestamp, sig.Nonce, body)
		match = hmac.Equal([]byte(wantPrev), []byte(strings.ToLower(sig.Digest)))
	}

	if !match {
		return Verdict{Status: StatusBadDigest, Detail: "signature mismatch"}
	}

	// Record the nonce only after the signature checked out, so attackers
	// cannot exhaust the store with garbage.
	if !s.nonces.checkAndRecord(sig.Nonce, now, s.tolerance) {
		return Verdict{Status: StatusReplay, Detail: "nonce already used"}
	}

	return Verdict{OK: true, Status: StatusValid}
}

func (s *Signer) compute(secret []byte, method, path string, ts int64, nonce string, body []byte) string {
	bodyHash := sha256.Sum256(body)
	canonical := strings.Join([]string{
		strings.ToUpper(method),
		path,
		strconv.FormatInt(ts, 10),
		nonce,
		hex.EncodeToString(bodyHash[:]),
	}, "\n")

	var mac hash.Hash
	if s.algorithm == config.SigningSHA512 {
		mac = hmac.New(sha512.New, secret)
	} else {
		mac = hmac.New(sha256.New, secret)
	}
	mac.Write([]byte(canonical))
	return hex.EncodeToString(mac.Sum(nil))
}

// ---------------------------------------------------------------------------
// Nonce store
// ---------------------------------------------------------------------------

// nonceStore tracks consumed nonces for the replay window. A plain map with
// a mutex, not an admission-based cache: losing a record would re-admit a
// replayed request.
type nonceStore struct {
	mu       sync.Mutex
	seen     map[string]time.Time
	capacity int
}

func newNonceStore(capacity int) *nonceStore {
	return &nonceStore{
		seen:     make(map[string]time.Time),
		capacity: capacity,
	}
}

// checkAndRecord returns false if the nonce was already consumed. Expired
// entries are pruned opportunistically. When the store is full after
// pruning, new nonces are rejected (fail closed).
func (n *nonceStore) checkAndRecord(nonce string, now time.Time, tolerance time.Duration) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	if seenAt, ok := n.seen[nonce]; ok {
		if now.Sub(seenAt) <= 2*tolerance {
			return false
		}
		// Expired record for the same nonce: the timestamp check already
		// rejected anything that old, so reuse is safe to accept.
	}

	if len(n.seen) >= n.capacity {
		n.prune(now, tolerance)
		if len(n.seen) >= n.capacity {
			return false
		}
	}

	n.seen[nonce] = now
	return true
}

// prune removes entries older than twice the tolerance (the widest window
// in which their timestamps could still verify).
func (n *nonceStore) prune(now time.Time, tolerance time.Duration) {
	cutoff := now.Add(-2 * tolerance)
	for nonce, seenAt := range n.seen {
		if seenAt.Before(cutoff) {
			delete(n.seen, nonce)
		}
	}
}

// Len reports the current number of tracked nonces.
func (n *nonceStore) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.seen)
}
