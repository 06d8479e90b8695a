package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kiranshivaraju/lmsbridge/internal/moodle"
	"github.com/kiranshivaraju/lmsbridge/internal/moodle/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ─── mock dependencies ───────────────────────────────────────────────────────

type testPinger struct {
	pingErr error
}

func (p *testPinger) Ping(_ context.Context) error { return p.pingErr }

func lmsDown() *mock.Client {
	return &mock.Client{
		SiteInfoFunc: func(_ context.Context) (*moodle.SiteInfo, error) {
			return nil, moodle.ErrUnreachable
		},
	}
}

func serveHealth(t *testing.T, h http.HandlerFunc) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	h(w, req)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

// ─── health handler tests ───────────────────────────────────────────────────

func TestHealthHandler_AllOK(t *testing.T) {
	w, body := serveHealth(t, healthHandler(&testPinger{}, &testPinger{}, &mock.Client{}))

	assert.Equal(t, http.StatusOK, w.Code)
	data := body["data"].(map[string]any)
	assert.Equal(t, "ok", data["status"])
	services := data["services"].(map[string]any)
	assert.Equal(t, "ok", services["database"])
	assert.Equal(t, "ok", services["cache"])
	assert.Equal(t, "ok", services["lms"])
}

func TestHealthHandler_DatabaseDegraded(t *testing.T) {
	w, body := serveHealth(t, healthHandler(&testPinger{pingErr: errors.New("connection refused")}, &testPinger{}, &mock.Client{}))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "DEGRADED", errObj["code"])
	assert.Equal(t, "degraded", errObj["details"].(map[string]any)["database"])
}

func TestHealthHandler_CacheDegraded(t *testing.T) {
	w, _ := serveHealth(t, healthHandler(&testPinger{}, &testPinger{pingErr: errors.New("redis down")}, &mock.Client{}))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHealthHandler_LMSDegraded(t *testing.T) {
	w, body := serveHealth(t, healthHandler(&testPinger{}, &testPinger{}, lmsDown()))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	details := body["error"].(map[string]any)["details"].(map[string]any)
	assert.Equal(t, "degraded", details["lms"])
	assert.Equal(t, "ok", details["database"])
}

// ─── run() config validation tests ──────────────────────────────────────────

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"DATABASE_URL", "REDIS_URL", "MOODLE_API_URL", "MOODLE_API_TOKEN",
		"LMSBRIDGE_ENV", "API_KEY_HASHES", "MOODLE_ROLE_IDS", "LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}
}

func TestRun_FailsOnMissingConfig(t *testing.T) {
	clearConfigEnv(t)

	err := run(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
}

func TestRun_FailsOnUnknownFlag(t *testing.T) {
	clearConfigEnv(t)

	err := run([]string{"--bogus"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
}

func TestRun_FailsOnInvalidDatabaseURL(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("DATABASE_URL", "not-a-valid-url")
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("MOODLE_API_URL", "http://localhost:8081")
	t.Setenv("MOODLE_API_TOKEN", "token")

	err := run(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect database")
}

// ─── constants ──────────────────────────────────────────────────────────────

func TestShutdownTimeout(t *testing.T) {
	assert.Equal(t, 30*time.Second, shutdownTimeout)
}
