package server

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/tubegate/tubegate/internal/auth"
	"github.com/tubegate/tubegate/internal/dispatch"
	"github.com/tubegate/tubegate/internal/ratelimit"
	"github.com/tubegate/tubegate/internal/seclog"
	"github.com/tubegate/tubegate/internal/signing"
)

// Signature and identity headers on the MCP endpoint.
const (
	headerSignature = "X-Signature"
	headerTimestamp = "X-Timestamp"
	headerNonce     = "X-Nonce"
	headerAPIKey    = "X-API-Key"

	// maxBodyBytes bounds a buffered request body.
	maxBodyBytes = 4 << 20
)

// withCORS enforces the origin allowlist on every route and answers
// preflight requests.
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			pf := s.policy.EvaluatePreflight(origin,
				r.Header.Get("Access-Control-Request-Method"),
				r.Header.Get("Access-Control-Request-Headers"))
			if !pf.Allowed {
				s.denyCORS(w, r, origin)
				return
			}
			s.policy.ApplyPreflightHeaders(w, pf)
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if origin != "" {
			if !s.policy.OriginAllowed(origin) {
				s.denyCORS(w, r, origin)
				return
			}
			s.policy.ApplyHeaders(w, origin)
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) denyCORS(w http.ResponseWriter, r *http.Request, origin string) {
	s.metrics.IncCORSDenied()
	s.seclog.Record(seclog.EventCORSViolation, "ip:"+clientIP(r),
		fmt.Sprintf("origin %q not allowed", origin), map[string]string{"path": r.URL.Path})
	writeJSONError(w, http.StatusForbidden, "origin not allowed")
}

// withAuth gates the MCP endpoint behind bearer token validation.
func (s *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.cfg.Auth.Enabled {
			next.ServeHTTP(w, r)
			return
		}

		principal, err := s.auth.FromRequest(r)
		if err != nil {
			s.seclog.Record(seclog.EventAuthFailure, "ip:"+clientIP(r),
				err.Error(), map[string]string{"path": r.URL.Path})
			s.auth.Challenge(w, err, "")
			return
		}

		if err := s.auth.RequireScope(principal, s.cfg.Auth.RequiredScope); err != nil {
			s.seclog.Record(seclog.EventAuthFailure, "ip:"+clientIP(r),
				"insufficient scope", map[string]string{"path": r.URL.Path})
			s.auth.Challenge(w, err, s.cfg.Auth.RequiredScope)
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), principal)))
	})
}

// withGovernance buffers the body, resolves the caller identity, charges the
// rate limiter, and attaches transport metadata for the dispatch pipeline.
func (s *Server) withGovernance(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
		if err != nil || len(body) > maxBodyBytes {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		identity := ratelimit.Identity{
			APIKey: r.Header.Get(headerAPIKey),
			IP:     clientIP(r),
		}
		if p := auth.PrincipalFrom(r.Context()); p != nil {
			identity.UserID = p.Subject
		}

		res := s.limiter.Check(identity)
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.Itoa(int(res.ResetAfter.Seconds())))
		if !res.Allowed {
			_, key := identity.Resolve()
			s.seclog.Record(seclog.EventRateLimitExceeded, key,
				fmt.Sprintf("%s window limit %d exceeded", res.Window, res.Limit),
				map[string]string{"path": r.URL.Path})
			w.Header().Set("Retry-After", strconv.Itoa(int(res.RetryAfter.Seconds())+1))
			writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		meta := &dispatch.Meta{
			Origin:       r.Header.Get("Origin"),
			Method:       r.Method,
			Path:         r.URL.Path,
			Body:         body,
			Identity:     identity,
			LimitChecked: true,
		}
		if sig := r.Header.Get(headerSignature); sig != "" {
			ts, _ := strconv.ParseInt(r.Header.Get(headerTimestamp), 10, 64)
			meta.Signature = signing.Signature{
				Timestamp: ts,
				Nonce:     r.Header.Get(headerNonce),
				Digest:    sig,
			}
			meta.HasSignature = true
		}

		next.ServeHTTP(w, r.WithContext(dispatch.WithMeta(r.Context(), meta)))
	})
}

// clientIP prefers the first X-Forwarded-For hop, falling back to the
// connection address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"success":false,"error":%q}`, msg)
}
