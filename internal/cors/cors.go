// Package cors validates request origins against the configured allowlist
// and computes preflight responses. An empty allowlist denies every
// cross-origin request.
package cors

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/tubegate/tubegate/internal/config"
)

// Policy evaluates origins against the configured allowlist.
type Policy struct {
	exact     map[string]bool
	wildcards []string // "*.example.com" stored as ".example.com"
	allowAll  bool

	allowedMethods   []string
	allowedHeaders   []string
	allowCredentials bool
	maxAge           int

	methodSet map[string]bool
	headerSet map[string]bool
}

// NewPolicy builds a Policy from config. Config validation has already
// rejected credentialed allow-all, so the combination cannot occur here.
func NewPolicy(cfg config.CORSConfig) *Policy {
	p := &Policy{
		exact:            make(map[string]bool),
		allowedMethods:   cfg.AllowedMethods,
		allowedHeaders:   cfg.AllowedHeaders,
		allowCredentials: cfg.AllowCredentials,
		maxAge:           cfg.MaxAge,
		methodSet:        make(map[string]bool),
		headerSet:        make(map[string]bool),
	}

	for _, origin := range cfg.AllowedOrigins {
		switch {
		case origin == "*":
			p.allowAll = true
		case strings.HasPrefix(origin, "*."):
			p.wildcards = append(p.wildcards, origin[1:]) // keep the dot
		default:
			p.exact[strings.ToLower(origin)] = true
		}
	}

	for _, m := range cfg.AllowedMethods {
		p.methodSet[strings.ToUpper(m)] = true
	}
	for _, h := range cfg.AllowedHeaders {
		p.headerSet[strings.ToLower(h)] = true
	}

	return p
}

// OriginAllowed reports whether the given Origin header value is acceptable.
// An empty configured allowlist denies everything, including "null" origins.
func (p *Policy) OriginAllowed(origin string) bool {
	if origin == "" || origin == "null" {
		return false
	}
	if p.allowAll {
		return true
	}
	lower := strings.ToLower(origin)
	if p.exact[lower] {
		return true
	}

	// Wildcard entries match a single label: *.example.com matches
	// https://api.example.com but not https://a.b.example.com and not
	// https://example.com itself.
	scheme, host, ok := splitOrigin(lower)
	if !ok {
		return false
	}
	_ = scheme
	for _, suffix := range p.wildcards {
		if !strings.HasSuffix(host, suffix) {
			continue
		}
		label := strings.TrimSuffix(host, suffix)
		if label != "" && !strings.Contains(label, ".") {
			return true
		}
	}
	return false
}

// splitOrigin breaks "https://host[:port]" into scheme and host (port
// stripped).
func splitOrigin(origin string) (scheme, host string, ok bool) {
	scheme, rest, found := strings.Cut(origin, "://")
	if !found || rest == "" {
		return "", "", false
	}
	host = rest
	if i := strings.LastIndex(host, ":"); i > 0 {
		if _, err := strconv.Atoi(host[i+1:]); err == nil {
			host = host[:i]
		}
	}
	return scheme, host, true
}

// Preflight describes the computed preflight response. Methods and Headers
// contain only the intersection of what was requested and what is allowed.
type Preflight struct {
	Allowed bool
	Origin  string
	Methods []string
	Headers []string
	MaxAge  int
}

// EvaluatePreflight computes the response for an OPTIONS preflight request.
func (p *Policy) EvaluatePreflight(origin, requestMethod, requestHeaders string) Preflight {
	if !p.OriginAllowed(origin) {
		return Preflight{}
	}

	pf := Preflight{Allowed: true, Origin: origin, MaxAge: p.maxAge}

	if requestMethod != "" {
		m := strings.ToUpper(strings.TrimSpace(requestMethod))
		if !p.methodSet[m] {
			return Preflight{}
		}
		pf.Methods = []string{m}
	} else {
		pf.Methods = p.allowedMethods
	}

	if requestHeaders != "" {
		for _, h := range strings.Split(requestHeaders, ",") {
			h = strings.TrimSpace(h)
			if h == "" {
				continue
			}
			if p.headerSet[strings.ToLower(h)] {
				pf.Headers = append(pf.Headers, h)
			}
		}
	}

	return pf
}

// ApplyHeaders writes CORS response headers for an allowed simple request.
func (p *Policy) ApplyHeaders(w http.ResponseWriter, origin string) {
	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Add("Vary", "Origin")
	if p.allowCredentials {
		w.Header().Set("Access-Control-Allow-Credentials", "true")
	}
}

// ApplyPreflightHeaders writes the headers for an allowed preflight response.
func (p *Policy) ApplyPreflightHeaders(w http.ResponseWriter, pf Preflight) {
	p.ApplyHeaders(w, pf.Origin)
	if len(pf.Methods) > 0 {
		w.Header().Set("Access-Control-Allow-Methods", strings.Join(pf.Methods, ", "))
	}
	if len(pf.Headers) > 0 {
		w.Header().Set("Access-Control-Allow-Headers", strings.Join(pf.Headers, ", "))
	}
	if pf.MaxAge > 0 {
		w.Header().Set("Access-Control-Max-Age", strconv.Itoa(pf.MaxAge))
	}
}
