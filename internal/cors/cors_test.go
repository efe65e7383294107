package cors

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tubegate/tubegate/internal/config"
)

func policyWith(origins ...string) *Policy {
	return NewPolicy(config.CORSConfig{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         600,
	})
}

func TestOriginAllowedExact(t *testing.T) {
	p := policyWith("https://app.example.com")

	assert.True(t, p.OriginAllowed("https://app.example.com"))
	assert.True(t, p.OriginAllowed("HTTPS://APP.EXAMPLE.COM"))
	assert.False(t, p.OriginAllowed("https://evil.example.com"))
	assert.False(t, p.OriginAllowed("http://app.example.com:8080"))
}

func TestOriginAllowedWildcard(t *testing.T) {
	p := policyWith("*.example.com")

	assert.True(t, p.OriginAllowed("https://api.example.com"))
	assert.True(t, p.OriginAllowed("https://api.example.com:8443"))
	// Single-label only.
	assert.False(t, p.OriginAllowed("https://a.b.example.com"))
	// The apex does not match its own wildcard.
	assert.False(t, p.OriginAllowed("https://example.com"))
	// Suffix tricks.
	assert.False(t, p.OriginAllowed("https://evilexample.com"))
}

func TestOriginAllowedAll(t *testing.T) {
	p := policyWith("*")
	assert.True(t, p.OriginAllowed("https://anything.test"))
	assert.False(t, p.OriginAllowed(""))
	assert.False(t, p.OriginAllowed("null"))
}

func TestEmptyAllowlistDeniesEverything(t *testing.T) {
	p := policyWith()
	assert.False(t, p.OriginAllowed("https://app.example.com"))
}

func TestPreflightIntersection(t *testing.T) {
	p := policyWith("https://app.example.com")

	pf := p.EvaluatePreflight("https://app.example.com", "POST", "Content-Type, X-Custom, Authorization")
	assert.True(t, pf.Allowed)
	assert.Equal(t, []string{"POST"}, pf.Methods)
	// Only configured headers survive the intersection.
	assert.Equal(t, []string{"Content-Type", "Authorization"}, pf.Headers)
	assert.Equal(t, 600, pf.MaxAge)
}

func TestPreflightDisallowedMethod(t *testing.T) {
	p := policyWith("https://app.example.com")
	pf := p.EvaluatePreflight("https://app.example.com", "DELETE", "")
	assert.False(t, pf.Allowed)
}

func TestPreflightDisallowedOrigin(t *testing.T) {
	p := policyWith("https://app.example.com")
	pf := p.EvaluatePreflight("https://evil.example.com", "GET", "")
	assert.False(t, pf.Allowed)
}

func TestApplyHeaders(t *testing.T) {
	p := NewPolicy(config.CORSConfig{
		AllowedOrigins:   []string{"https://app.example.com"},
		AllowedMethods:   []string{"GET"},
		AllowCredentials: true,
	})

	rec := httptest.NewRecorder()
	p.ApplyHeaders(rec, "https://app.example.com")
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	assert.Equal(t, "Origin", rec.Header().Get("Vary"))
}

func TestApplyPreflightHeaders(t *testing.T) {
	p := policyWith("https://app.example.com")
	pf := p.EvaluatePreflight("https://app.example.com", "POST", "Authorization")

	rec := httptest.NewRecorder()
	p.ApplyPreflightHeaders(rec, pf)
	assert.Equal(t, "POST", rec.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "Authorization", rec.Header().Get("Access-Control-Allow-Headers"))
	assert.Equal(t, "600", rec.Header().Get("Access-Control-Max-Age"))
}
