package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tubegate/tubegate/internal/config"
)

const testJWTSecret = "auth-test-secret"

func newTestValidator() *Validator {
	return NewValidator(config.AuthConfig{
		Enabled:              true,
		JWTSecret:            config.RedactedString(testJWTSecret),
		Issuer:               "https://issuer.example.com",
		Audience:             "https://mcp.example.com",
		Resource:             "https://mcp.example.com",
		AuthorizationServers: []string{"https://issuer.example.com"},
		ScopesSupported:      []string{"mcp:read", "mcp:write"},
	})
}

func mintToken(t *testing.T, secret string, mutate func(*jwt.MapClaims)) string {
	t.Helper()
	claims := jwt.MapClaims{
		"iss":       "https://issuer.example.com",
		"aud":       "https://mcp.example.com",
		"sub":       "user-1",
		"client_id": "client-1",
		"scope":     "mcp:read mcp:write",
		"exp":       time.Now().Add(time.Hour).Unix(),
		"iat":       time.Now().Unix(),
	}
	if mutate != nil {
		mutate(&claims)
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestValidateAcceptsGoodToken(t *testing.T) {
	v := newTestValidator()
	p, err := v.Validate(mintToken(t, testJWTSecret, nil))
	require.NoError(t, err)
	assert.Equal(t, "user-1", p.Subject)
	assert.Equal(t, "client-1", p.ClientID)
	assert.Equal(t, []string{"mcp:read", "mcp:write"}, p.Scopes)
}

func TestValidateRejections(t *testing.T) {
	v := newTestValidator()

	tests := []struct {
		name  string
		token string
	}{
		{"wrong secret", mintToken(t, "other-secret", nil)},
		{"wrong issuer", mintToken(t, testJWTSecret, func(c *jwt.MapClaims) { (*c)["iss"] = "https://evil.example.com" })},
		{"wrong audience", mintToken(t, testJWTSecret, func(c *jwt.MapClaims) { (*c)["aud"] = "https://other.example.com" })},
		{"expired", mintToken(t, testJWTSecret, func(c *jwt.MapClaims) { (*c)["exp"] = time.Now().Add(-time.Hour).Unix() })},
		{"no expiry", mintToken(t, testJWTSecret, func(c *jwt.MapClaims) { delete(*c, "exp") })},
		{"garbage", "not.a.jwt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Validate(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestValidateRejectsAlgNone(t *testing.T) {
	v := newTestValidator()
	// Unsigned token with alg=none.
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"iss": "https://issuer.example.com",
		"aud": "https://mcp.example.com",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = v.Validate(unsigned)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestFromRequest(t *testing.T) {
	v := newTestValidator()

	r := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	_, err := v.FromRequest(r)
	assert.ErrorIs(t, err, ErrNoToken)

	r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	_, err = v.FromRequest(r)
	assert.ErrorIs(t, err, ErrNoToken)

	r.Header.Set("Authorization", "Bearer "+mintToken(t, testJWTSecret, nil))
	p, err := v.FromRequest(r)
	require.NoError(t, err)
	assert.Equal(t, "user-1", p.Subject)

	// Scheme is case-insensitive.
	r.Header.Set("Authorization", "bearer "+mintToken(t, testJWTSecret, nil))
	_, err = v.FromRequest(r)
	assert.NoError(t, err)
}

func TestRequireScope(t *testing.T) {
	v := newTestValidator()
	p := &Principal{Scopes: []string{"mcp:read"}}

	assert.NoError(t, v.RequireScope(p, ""))
	assert.NoError(t, v.RequireScope(p, "mcp:read"))
	assert.ErrorIs(t, v.RequireScope(p, "mcp:write"), ErrInsufficientScope)
}

func TestChallengeNoToken(t *testing.T) {
	v := newTestValidator()
	rec := httptest.NewRecorder()
	v.Challenge(rec, ErrNoToken, "")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	h := rec.Header().Get("WWW-Authenticate")
	assert.Contains(t, h, "Bearer")
	assert.Contains(t, h, `resource_metadata="https://mcp.example.com/.well-known/oauth-protected-resource"`)
	assert.NotContains(t, h, "error=")
}

func TestChallengeInvalidToken(t *testing.T) {
	v := newTestValidator()
	rec := httptest.NewRecorder()
	v.Challenge(rec, ErrInvalidToken, "")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), `error="invalid_token"`)
}

func TestChallengeInsufficientScope(t *testing.T) {
	v := newTestValidator()
	rec := httptest.NewRecorder()
	v.Challenge(rec, ErrInsufficientScope, "mcp:write")

	assert.Equal(t, http.StatusForbidden, rec.Code)
	h := rec.Header().Get("WWW-Authenticate")
	assert.Contains(t, h, `error="insufficient_scope"`)
	assert.Contains(t, h, `scope="mcp:write"`)
	assert.JSONEq(t, `{"error":"insufficient_scope"}`, rec.Body.String())
}

func TestMetadata(t *testing.T) {
	v := newTestValidator()
	md := v.Metadata()
	assert.Equal(t, "https://mcp.example.com", md.Resource)
	assert.Equal(t, []string{"https://issuer.example.com"}, md.AuthorizationServers)
	assert.Equal(t, []string{"header"}, md.BearerMethods)
}
