// Package auth validates bearer tokens on the HTTP surface and builds the
// WWW-Authenticate challenges and protected-resource metadata required by
// RFC 6750 and RFC 9728.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tubegate/tubegate/internal/config"
)

var (
	// ErrNoToken indicates the Authorization header was absent or not a
	// bearer token.
	ErrNoToken = errors.New("auth: missing bearer token")
	// ErrInvalidToken indicates the token failed validation.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrInsufficientScope indicates a valid token without the required
	// scope.
	ErrInsufficientScope = errors.New("auth: insufficient scope")
)

// Principal is the authenticated caller extracted from a valid token.
type Principal struct {
	Subject  string
	ClientID string
	Scopes   []string
}

// HasScope reports whether the principal carries the given scope.
func (p *Principal) HasScope(scope string) bool {
	for _, s := range p.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

type principalKey struct{}

// WithPrincipal attaches the authenticated principal to ctx.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal on ctx, or nil when unauthenticated.
func PrincipalFrom(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey{}).(*Principal)
	return p
}

// claims is the expected token payload. Scope follows the OAuth2 convention
// of a space-separated list; client_id is RFC 8693 / RFC 9068 style.
type claims struct {
	jwt.RegisteredClaims
	Scope    string `json:"scope,omitempty"`
	ClientID string `json:"client_id,omitempty"`
}

// Validator checks bearer tokens (HS256) against issuer and audience.
type Validator struct {
	secret   []byte
	issuer   string
	audience string

	resource             string
	authorizationServers []string
	scopesSupported      []string
}

// NewValidator creates a Validator from config.
func NewValidator(cfg config.AuthConfig) *Validator {
	return &Validator{
		secret:               []byte(cfg.JWTSecret.Value()),
		issuer:               cfg.Issuer,
		audience:             cfg.Audience,
		resource:             cfg.Resource,
		authorizationServers: cfg.AuthorizationServers,
		scopesSupported:      cfg.ScopesSupported,
	}
}

// FromRequest extracts and validates the bearer token on r.
func (v *Validator) FromRequest(r *http.Request) (*Principal, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, ErrNoToken
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return nil, ErrNoToken
	}
	return v.Validate(token)
}

// Validate checks the raw token string.
func (v *Validator) Validate(raw string) (*Principal, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	parsed, err := jwt.ParseWithClaims(raw, &claims{}, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	c, ok := parsed.Claims.(*claims)
	if !ok {
		return nil, ErrInvalidToken
	}

	p := &Principal{
		Subject:  c.Subject,
		ClientID: c.ClientID,
	}
	if c.Scope != "" {
		p.Scopes = strings.Fields(c.Scope)
	}
	return p, nil
}

// RequireScope returns ErrInsufficientScope when p lacks scope. An empty
// required scope always passes.
func (v *Validator) RequireScope(p *Principal, scope string) error {
	if scope == "" || p.HasScope(scope) {
		return nil
	}
	return ErrInsufficientScope
}

// Challenge writes the 401/403 response for an auth failure, including the
// WWW-Authenticate header per RFC 6750 section 3 and the resource metadata
// pointer per RFC 9728.
func (v *Validator) Challenge(w http.ResponseWriter, err error, requiredScope string) {
	params := []string{fmt.Sprintf("resource_metadata=%q", v.metadataURL())}

	status := http.StatusUnauthorized
	switch {
	case errors.Is(err, ErrNoToken):
		// Bare challenge: no error code when no token was presented.
	case errors.Is(err, ErrInsufficientScope):
		status = http.StatusForbidden
		params = append(params, `error="insufficient_scope"`)
		if requiredScope != "" {
			params = append(params, fmt.Sprintf("scope=%q", requiredScope))
		}
	default:
		params = append(params, `error="invalid_token"`)
	}

	w.Header().Set("WWW-Authenticate", "Bearer "+strings.Join(params, ", "))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if status == http.StatusForbidden {
		_, _ = w.Write([]byte(`{"error":"insufficient_scope"}`))
	} else {
		_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
	}
}

func (v *Validator) metadataURL() string {
	return strings.TrimSuffix(v.resource, "/") + "/.well-known/oauth-protected-resource"
}

// Metadata is the RFC 9728 protected resource metadata document.
type Metadata struct {
	Resource             string   `json:"resource"`
	AuthorizationServers []string `json:"authorization_servers,omitempty"`
	ScopesSupported      []string `json:"scopes_supported,omitempty"`
	BearerMethods        []string `json:"bearer_methods_supported"`
}

// Metadata returns the protected-resource metadata for this server.
func (v *Validator) Metadata() Metadata {
	return Metadata{
		Resource:             v.resource,
		AuthorizationServers: v.authorizationServers,
		ScopesSupported:      v.scopesSupported,
		BearerMethods:        []string{"header"},
	}
}
