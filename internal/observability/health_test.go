package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func TestHealthzAlwaysAlive(t *testing.T) {
	h := NewHealthChecker()
	rec := httptest.NewRecorder()
	h.HealthzHandler()(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"alive"}`, rec.Body.String())
}

func TestStartzTransitions(t *testing.T) {
	h := NewHealthChecker()

	rec := httptest.NewRecorder()
	h.StartzHandler()(rec, httptest.NewRequest(http.MethodGet, "/startz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	h.SetStarted()
	rec = httptest.NewRecorder()
	h.StartzHandler()(rec, httptest.NewRequest(http.MethodGet, "/startz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzTransitions(t *testing.T) {
	h := NewHealthChecker()

	rec := httptest.NewRecorder()
	h.ReadyzHandler()(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	h.SetReady()
	rec = httptest.NewRecorder()
	h.ReadyzHandler()(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	h.SetNotReady()
	rec = httptest.NewRecorder()
	h.ReadyzHandler()(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestReadyzDeepCheck(t *testing.T) {
	h := NewHealthChecker()
	h.SetReady()

	h.SetStorePinger(fakePinger{})
	rec := httptest.NewRecorder()
	h.ReadyzHandler()(rec, httptest.NewRequest(http.MethodGet, "/readyz?deep=true", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"store":"ok"`)

	h.SetStorePinger(fakePinger{err: errors.New("down")})
	rec = httptest.NewRecorder()
	h.ReadyzHandler()(rec, httptest.NewRequest(http.MethodGet, "/readyz?deep=true", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"store":"unreachable"`)
}
