// Package registry implements dynamic client registration backed by SQLite.
// Clients register to obtain credentials for the HTTP surface; each
// registration carries a per-client management token (HS256 JWT) that
// authorizes later updates. Deletion is a soft revoke: revoked clients are
// indistinguishable from unknown ones in every auth path.
package registry

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/tubegate/tubegate/internal/config"
)

var (
	// ErrNotFound covers both unknown and revoked clients.
	ErrNotFound = errors.New("registry: client not found")
	// ErrBootstrapDenied indicates a missing or wrong bootstrap token.
	ErrBootstrapDenied = errors.New("registry: bootstrap token rejected")
	// ErrBadToken indicates an invalid registration access token.
	ErrBadToken = errors.New("registry: invalid registration token")
)

const registrySchema = `
CREATE TABLE IF NOT EXISTS clients (
	client_id      TEXT PRIMARY KEY,
	secret_hash    TEXT NOT NULL,
	name           TEXT NOT NULL,
	redirect_uris  TEXT NOT NULL DEFAULT '',
	scopes         TEXT NOT NULL DEFAULT '',
	created_at     INTEGER NOT NULL,
	secret_expires INTEGER NOT NULL DEFAULT 0,
	revoked_at     INTEGER NOT NULL DEFAULT 0
);
`

// Client is a registered client as returned to callers. The secret appears
// only in the responses of Register and RotateSecret.
type Client struct {
	ClientID      string    `json:"client_id"`
	ClientSecret  string    `json:"client_secret,omitempty"`
	Name          string    `json:"client_name"`
	RedirectURIs  string    `json:"redirect_uris,omitempty"`
	Scopes        string    `json:"scope,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	SecretExpires time.Time `json:"client_secret_expires_at,omitempty"`

	// RegistrationToken authorizes later Update/Rotate/Delete calls.
	// Returned only by Register.
	RegistrationToken string `json:"registration_access_token,omitempty"`
}

// Registry manages client registrations.
type Registry struct {
	db             *sql.DB
	tokenSecret    []byte
	bootstrapToken string
	requireBoot    bool
	secretTTL      time.Duration

	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// Open creates or opens the registry database.
func Open(cfg config.RegistryConfig, logger *slog.Logger, opts ...Option) (*Registry, error) {
	ttl, err := config.ParseDuration(cfg.SecretTTL, 0)
	if err != nil {
		return nil, fmt.Errorf("parsing registry.secret_ttl: %w", err)
	}

	db, err := sql.Open("sqlite", cfg.Path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("opening registry db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(registrySchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating registry schema: %w", err)
	}

	r := &Registry{
		db:             db,
		tokenSecret:    []byte(cfg.TokenSecret.Value()),
		bootstrapToken: cfg.BootstrapToken.Value(),
		requireBoot:    cfg.RequireBootstrap,
		secretTTL:      ttl,
		logger:         logger.With("component", "registry"),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Close releases the database handle.
func (r *Registry) Close() error {
	return r.db.Close()
}

// Ping checks database connectivity.
func (r *Registry) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Register creates a new client. bootstrapToken is checked only when
// require_bootstrap is configured.
func (r *Registry) Register(ctx context.Context, name, redirectURIs, scopes, bootstrapToken string) (*Client, error) {
	if r.requireBoot {
		if subtle.ConstantTimeCompare([]byte(bootstrapToken), []byte(r.bootstrapToken)) != 1 {
			return nil, ErrBootstrapDenied
		}
	}

	clientID := uuid.NewString()
	secret, err := newSecret()
	if err != nil {
		return nil, err
	}

	now := r.now()
	var expires int64
	if r.secretTTL > 0 {
		expires = now.Add(r.secretTTL).Unix()
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO clients (client_id, secret_hash, name, redirect_uris, scopes, created_at, secret_expires)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		clientID, hashSecret(secret), name, redirectURIs, scopes, now.Unix(), expires)
	if err != nil {
		return nil, fmt.Errorf("inserting client: %w", err)
	}

	token, err := r.mintRegistrationToken(clientID)
	if err != nil {
		return nil, err
	}

	r.logger.Info("client registered", "client_id", clientID, "name", name)

	c := &Client{
		ClientID:          clientID,
		ClientSecret:      secret,
		Name:              name,
		RedirectURIs:      redirectURIs,
		Scopes:            scopes,
		CreatedAt:         now,
		RegistrationToken: token,
	}
	if expires > 0 {
		c.SecretExpires = time.Unix(expires, 0)
	}
	return c, nil
}

// Get returns a live (not revoked) client without secret material.
func (r *Registry) Get(ctx context.Context, clientID string) (*Client, error) {
	var c Client
	var createdAt, secretExpires int64
	err := r.db.QueryRowContext(ctx,
		`SELECT client_id, name, redirect_uris, scopes, created_at, secret_expires
		 FROM clients WHERE client_id = ? AND revoked_at = 0`, clientID,
	).Scan(&c.ClientID, &c.Name, &c.RedirectURIs, &c.Scopes, &createdAt, &secretExpires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying client: %w", err)
	}
	c.CreatedAt = time.Unix(createdAt, 0)
	if secretExpires > 0 {
		c.SecretExpires = time.Unix(secretExpires, 0)
	}
	return &c, nil
}

// Authenticate verifies a client_id/client_secret pair. Revoked and unknown
// clients fail identically, and expired secrets are rejected.
func (r *Registry) Authenticate(ctx context.Context, clientID, secret string) error {
	var storedHash string
	var secretExpires, revokedAt int64
	err := r.db.QueryRowContext(ctx,
		`SELECT secret_hash, secret_expires, revoked_at FROM clients WHERE client_id = ?`, clientID,
	).Scan(&storedHash, &secretExpires, &revokedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("querying client: %w", err)
	}

	if revokedAt != 0 {
		return ErrNotFound
	}
	if secretExpires > 0 && r.now().Unix() >= secretExpires {
		return ErrNotFound
	}
	if subtle.ConstantTimeCompare([]byte(storedHash), []byte(hashSecret(secret))) != 1 {
		return ErrNotFound
	}
	return nil
}

// GetAuthorized returns a client after verifying its registration token.
func (r *Registry) GetAuthorized(ctx context.Context, clientID, regToken string) (*Client, error) {
	if err := r.verifyRegistrationToken(regToken, clientID); err != nil {
		return nil, err
	}
	return r.Get(ctx, clientID)
}

// Update modifies a client's metadata. The registration token must target
// this client.
func (r *Registry) Update(ctx context.Context, clientID, regToken, name, redirectURIs, scopes string) (*Client, error) {
	if err := r.verifyRegistrationToken(regToken, clientID); err != nil {
		return nil, err
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE clients SET name = ?, redirect_uris = ?, scopes = ?
		 WHERE client_id = ? AND revoked_at = 0`,
		name, redirectURIs, scopes, clientID)
	if err != nil {
		return nil, fmt.Errorf("updating client: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return r.Get(ctx, clientID)
}

// RotateSecret replaces the client secret. Hard cutover: the previous
// secret stops working immediately.
func (r *Registry) RotateSecret(ctx context.Context, clientID, regToken string) (*Client, error) {
	if err := r.verifyRegistrationToken(regToken, clientID); err != nil {
		return nil, err
	}

	secret, err := newSecret()
	if err != nil {
		return nil, err
	}

	now := r.now()
	var expires int64
	if r.secretTTL > 0 {
		expires = now.Add(r.secretTTL).Unix()
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE clients SET secret_hash = ?, secret_expires = ?
		 WHERE client_id = ? AND revoked_at = 0`,
		hashSecret(secret), expires, clientID)
	if err != nil {
		return nil, fmt.Errorf("rotating secret: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}

	r.logger.Info("client secret rotated", "client_id", clientID)

	c, err := r.Get(ctx, clientID)
	if err != nil {
		return nil, err
	}
	c.ClientSecret = secret
	return c, nil
}

// Delete soft-revokes a client. The row is kept for audit; every auth path
// treats it as unknown.
func (r *Registry) Delete(ctx context.Context, clientID, regToken string) error {
	if err := r.verifyRegistrationToken(regToken, clientID); err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE clients SET revoked_at = ? WHERE client_id = ? AND revoked_at = 0`,
		r.now().Unix(), clientID)
	if err != nil {
		return fmt.Errorf("revoking client: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	r.logger.Info("client revoked", "client_id", clientID)
	return nil
}

// Count returns the number of live registrations.
func (r *Registry) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM clients WHERE revoked_at = 0`).Scan(&n)
	return n, err
}

// mintRegistrationToken issues the per-client management JWT.
func (r *Registry) mintRegistrationToken(clientID string) (string, error) {
	claims := jwt.RegisteredClaims{
		Issuer:   "tubegate-registry",
		Subject:  clientID,
		IssuedAt: jwt.NewNumericDate(r.now()),
		ID:       uuid.NewString(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(r.tokenSecret)
	if err != nil {
		return "", fmt.Errorf("signing registration token: %w", err)
	}
	return token, nil
}

// verifyRegistrationToken checks signature and that the token targets the
// given client.
func (r *Registry) verifyRegistrationToken(token, clientID string) error {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return r.tokenSecret, nil
	}, jwt.WithIssuer("tubegate-registry"))
	if err != nil {
		return ErrBadToken
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject != clientID {
		return ErrBadToken
	}
	return nil
}

func newSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func hashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}
