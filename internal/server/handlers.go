package server

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/tubegate/tubegate/internal/registry"
	"github.com/tubegate/tubegate/internal/seclog"
)

// handleProtectedResourceMetadata serves the RFC 9728 document that points
// clients at the authorization server.
func (s *Server) handleProtectedResourceMetadata(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.auth.Metadata())
}

// ---------------------------------------------------------------------------
// OAuth authorization flow
// ---------------------------------------------------------------------------

// stateTTL bounds how long an issued authorization state stays redeemable.
var stateTTL = 10 * time.Minute

// stateStore tracks pending authorization states.
type stateStore struct {
	mu     sync.Mutex
	states map[string]time.Time
}

func (st *stateStore) issue() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	state := hex.EncodeToString(buf)

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.states == nil {
		st.states = make(map[string]time.Time)
	}
	now := time.Now()
	for k, t := range st.states {
		if now.Sub(t) > stateTTL {
			delete(st.states, k)
		}
	}
	st.states[state] = now
	return state, nil
}

func (st *stateStore) consume(state string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	issued, ok := st.states[state]
	if !ok {
		return false
	}
	delete(st.states, state)
	return time.Since(issued) <= stateTTL
}

// handleOAuthAuthorize starts the delegated authorization flow by
// redirecting the operator to the provider's consent page.
func (s *Server) handleOAuthAuthorize(w http.ResponseWriter, r *http.Request) {
	state, err := s.states.issue()
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}
	http.Redirect(w, r, s.oauth.AuthURL(state, s.callbackURL(r)), http.StatusFound)
}

// handleOAuthCallback exchanges the authorization code and stores the
// resulting credential.
func (s *Server) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if errCode := q.Get("error"); errCode != "" {
		writeJSONError(w, http.StatusBadRequest, "authorization refused: "+errCode)
		return
	}
	if !s.states.consume(q.Get("state")) {
		s.seclog.Record(seclog.EventAuthFailure, "ip:"+clientIP(r),
			"oauth callback with unknown or expired state", nil)
		writeJSONError(w, http.StatusBadRequest, "unknown or expired state")
		return
	}

	code := q.Get("code")
	if code == "" {
		writeJSONError(w, http.StatusBadRequest, "missing authorization code")
		return
	}
	if err := s.oauth.Exchange(r.Context(), code, s.callbackURL(r)); err != nil {
		s.logger.Error("oauth code exchange failed", "error", err)
		writeJSONError(w, http.StatusBadGateway, "code exchange failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "detail": "authorization stored"})
}

func (s *Server) callbackURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil || s.cfg.Server.TLS.Enabled {
		scheme = "https"
	}
	return scheme + "://" + r.Host + "/oauth/callback"
}

// ---------------------------------------------------------------------------
// Dynamic client registration (RFC 7591/7592 style)
// ---------------------------------------------------------------------------

type registrationRequest struct {
	Name         string `json:"client_name"`
	RedirectURIs string `json:"redirect_uris"`
	Scopes       string `json:"scope"`
}

// handleRegister creates a client registration. When bootstrap gating is
// configured, the initial access token travels as a bearer token.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registrationRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid registration request")
		return
	}
	if req.Name == "" {
		writeJSONError(w, http.StatusBadRequest, "client_name is required")
		return
	}

	client, err := s.registry.Register(r.Context(), req.Name, req.RedirectURIs, req.Scopes, bearerToken(r))
	if err != nil {
		s.registrationError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, client)
}

func (s *Server) handleRegistrationGet(w http.ResponseWriter, r *http.Request) {
	client, err := s.registry.GetAuthorized(r.Context(), r.PathValue("client_id"), bearerToken(r))
	if err != nil {
		s.registrationError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, client)
}

func (s *Server) handleRegistrationUpdate(w http.ResponseWriter, r *http.Request) {
	var req registrationRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid registration request")
		return
	}

	client, err := s.registry.Update(r.Context(), r.PathValue("client_id"), bearerToken(r),
		req.Name, req.RedirectURIs, req.Scopes)
	if err != nil {
		s.registrationError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, client)
}

func (s *Server) handleRegistrationDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.Delete(r.Context(), r.PathValue("client_id"), bearerToken(r)); err != nil {
		s.registrationError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRegistrationRotate(w http.ResponseWriter, r *http.Request) {
	client, err := s.registry.RotateSecret(r.Context(), r.PathValue("client_id"), bearerToken(r))
	if err != nil {
		s.registrationError(w, r, err)
		return
	}
	s.seclog.Record(seclog.EventSecretRotation, "", "client secret rotated",
		map[string]string{"client_id": client.ClientID})
	writeJSON(w, http.StatusOK, client)
}

func (s *Server) registrationError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, registry.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, "client not found")
	case errors.Is(err, registry.ErrBadToken):
		s.seclog.Record(seclog.EventAuthFailure, "ip:"+clientIP(r),
			"invalid registration access token", map[string]string{"path": r.URL.Path})
		writeJSONError(w, http.StatusUnauthorized, "invalid registration access token")
	case errors.Is(err, registry.ErrBootstrapDenied):
		s.seclog.Record(seclog.EventAuthFailure, "ip:"+clientIP(r),
			"registration bootstrap token rejected", nil)
		writeJSONError(w, http.StatusUnauthorized, "registration requires a valid initial access token")
	default:
		s.logger.Error("registration operation failed", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "internal error")
	}
}

func bearerToken(r *http.Request) string {
	scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return token
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
