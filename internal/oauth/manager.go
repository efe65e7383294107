// Package oauth manages the server's own YouTube OAuth2 credential: loading
// it from an encrypted file store, refreshing it before expiry, and
// distinguishing recoverable refresh failures from revoked grants that need
// operator re-authorization.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/sync/singleflight"

	"github.com/tubegate/tubegate/internal/config"
	"github.com/tubegate/tubegate/internal/observability"
)

// ErrReauthRequired indicates the refresh token was revoked or expired and
// the operator must run the authorization flow again. Retrying is pointless.
var ErrReauthRequired = errors.New("oauth: re-authorization required")

// Manager hands out valid access tokens, refreshing them as needed. At most
// one refresh is in flight at a time; concurrent callers share its result.
type Manager struct {
	conf      *oauth2.Config
	store     *TokenStore
	threshold time.Duration

	group   singleflight.Group
	logger  *slog.Logger
	metrics *observability.Metrics

	now func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// New creates a Manager from config. Metrics may be nil.
func New(cfg config.OAuthConfig, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) (*Manager, error) {
	threshold, err := config.ParseDuration(cfg.RefreshThreshold, 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("parsing oauth.refresh_threshold: %w", err)
	}

	store, err := NewTokenStore(cfg.TokenFile, cfg.EncryptionSecret.Value())
	if err != nil {
		return nil, err
	}

	m := &Manager{
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret.Value(),
			Endpoint:     google.Endpoint,
			Scopes:       cfg.Scopes,
		},
		store:     store,
		threshold: threshold,
		logger:    logger.With("component", "oauth"),
		metrics:   metrics,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Credential returns a currently valid access token, refreshing first when
// the stored one expires within the threshold.
func (m *Manager) Credential(ctx context.Context) (*oauth2.Token, error) {
	tok, err := m.store.Load()
	if err != nil {
		if errors.Is(err, ErrNoToken) {
			return nil, ErrReauthRequired
		}
		return nil, err
	}

	if tok.Expiry.IsZero() || tok.Expiry.After(m.now().Add(m.threshold)) {
		return tok, nil
	}

	refreshed, err, _ := m.group.Do("refresh", func() (any, error) {
		return m.refresh(ctx, tok)
	})
	if err != nil {
		return nil, err
	}
	return refreshed.(*oauth2.Token), nil
}

// refresh exchanges the refresh token for a new access token and persists
// the result.
func (m *Manager) refresh(ctx context.Context, stale *oauth2.Token) (*oauth2.Token, error) {
	// Re-read: another caller may have refreshed between our Load and the
	// singleflight admission.
	if current, err := m.store.Load(); err == nil &&
		current.AccessToken != stale.AccessToken &&
		current.Expiry.After(m.now().Add(m.threshold)) {
		return current, nil
	}

	if stale.RefreshToken == "" {
		m.record("reauth")
		return nil, ErrReauthRequired
	}

	fresh, err := m.conf.TokenSource(ctx, stale).Token()
	if err != nil {
		if isInvalidGrant(err) {
			m.record("reauth")
			m.logger.Error("refresh token revoked, re-authorization required")
			return nil, ErrReauthRequired
		}
		m.record("error")
		return nil, fmt.Errorf("refreshing token: %w", err)
	}

	// The provider may omit the refresh token on renewal; keep the old one.
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = stale.RefreshToken
	}

	if err := m.store.Save(fresh); err != nil {
		// The token is still usable this request; persisting it failed.
		m.logger.Error("persisting refreshed token failed", "error", err)
	}

	m.record("ok")
	m.logger.Info("access token refreshed", "expiry", fresh.Expiry)
	return fresh, nil
}

// Authorize stores a token obtained from an external authorization flow.
func (m *Manager) Authorize(tok *oauth2.Token) error {
	return m.store.Save(tok)
}

// AuthURL returns the consent URL for the operator-driven authorization
// flow.
func (m *Manager) AuthURL(state, redirectURL string) string {
	conf := *m.conf
	conf.RedirectURL = redirectURL
	return conf.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange completes the authorization flow and persists the credential.
func (m *Manager) Exchange(ctx context.Context, code, redirectURL string) error {
	conf := *m.conf
	conf.RedirectURL = redirectURL
	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("exchanging authorization code: %w", err)
	}
	return m.store.Save(tok)
}

// Revoke deletes the stored credential.
func (m *Manager) Revoke() error {
	return m.store.Delete()
}

func (m *Manager) record(outcome string) {
	if m.metrics != nil {
		m.metrics.IncOAuthRefresh(outcome)
	}
}

// isInvalidGrant detects the OAuth2 invalid_grant error, which means the
// refresh token itself is dead.
func isInvalidGrant(err error) bool {
	var retrieve *oauth2.RetrieveError
	if errors.As(err, &retrieve) {
		if retrieve.ErrorCode == "invalid_grant" {
			return true
		}
		return strings.Contains(string(retrieve.Body), "invalid_grant")
	}
	return false
}
