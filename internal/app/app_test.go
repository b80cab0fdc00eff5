package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokengate/internal/config"
	"tokengate/internal/infrastructure"
	"tokengate/internal/services"
	"tokengate/internal/token"
)

// newTestApplication wires a full application around a temp snapshot file,
// skipping only the real logger and metric provider setup.
func newTestApplication(t *testing.T) *Application {
	t.Helper()

	cfg := config.Default()
	cfg.Persistence.TokensFile = filepath.Join(t.TempDir(), "tokens.json")
	cfg.Security.RateLimit.Enabled = false

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	persister := token.NewPersister(cfg.Persistence.TokensFile, "TOKENGATE_APP_TEST_UNSET", logger)
	manager := token.NewManager(token.NewStore(), persister, logger, nil)

	a := &Application{
		Config:        &cfg,
		Logger:        logger,
		OTelProviders: &infrastructure.OTelProviders{},
		Manager:       manager,
		TokenService:  services.NewTokenService(manager, logger, token.SourceEmpty, cfg.Persistence.TokensFile),
	}
	a.setupRouter()
	return a
}

func TestFullTokenLifecycleOverHTTP(t *testing.T) {
	a := newTestApplication(t)
	srv := httptest.NewServer(a.Router)
	defer srv.Close()

	// Create through the admin API.
	payload, _ := json.Marshal(map[string]any{"days_valid": 7, "description": "weekly"})
	resp, err := http.Post(srv.URL+"/api/tokens", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	resp.Body.Close()
	require.Len(t, created.Token, 32)

	// Validate on both the bare and the /api-prefixed access paths.
	for _, path := range []string{"/activate", "/api/activate", "/heartbeat", "/api/hook_config"} {
		resp, err := http.Get(srv.URL + path + "?token=" + created.Token)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}

	// Usage accounting survived the round trips.
	resp, err = http.Get(srv.URL + "/api/tokens/" + created.Token)
	require.NoError(t, err)
	var info token.Info
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	resp.Body.Close()
	assert.Equal(t, int64(4), info.UsedCount)

	// Deactivate, then access is refused.
	resp, err = http.Post(srv.URL+"/api/tokens/"+created.Token+"/deactivate", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/heartbeat?token=" + created.Token)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestSyncEndpointBothPaths(t *testing.T) {
	a := newTestApplication(t)
	srv := httptest.NewServer(a.Router)
	defer srv.Close()

	for i, path := range []string{"/sync_tokens", "/api/sync_tokens"} {
		payload, _ := json.Marshal(map[string]any{
			"tokens": []map[string]any{{"token": fmt.Sprintf("feed-token-%d", i)}},
		})
		resp, err := http.Post(srv.URL+path, "application/json", bytes.NewReader(payload))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}

func TestRootSummary(t *testing.T) {
	a := newTestApplication(t)
	srv := httptest.NewServer(a.Router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "license", body["service"])
	assert.Equal(t, float64(0), body["total_tokens"])

	resp, err = http.Get(srv.URL + "/api/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRequestIDHeaderSet(t *testing.T) {
	a := newTestApplication(t)
	srv := httptest.NewServer(a.Router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/version")
	require.NoError(t, err)
	resp.Body.Close()
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}
