package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/hillwatch/internal/app"
	"github.com/JakeFAU/hillwatch/internal/config"
)

func setupEnv(t *testing.T, baseURL string) string {
	t.Helper()
	storePath := filepath.Join(t.TempDir(), "bills.json")
	t.Setenv("HILLWATCH_API_KEY", "test-key")
	t.Setenv("CONGRESS_API_KEY", "")
	t.Setenv("HILLWATCH_API_BASE_URL", baseURL)
	t.Setenv("HILLWATCH_STORE_PATH", storePath)
	t.Setenv("HILLWATCH_PIPELINE_QPS", "1000")
	t.Setenv("HILLWATCH_PIPELINE_PAGE_DELAY_MS", "0")
	t.Setenv("HILLWATCH_LOGGING_LEVEL", "error")
	t.Setenv("HILLWATCH_METRICS_ADDR", "")
	t.Setenv("HILLWATCH_DB_DSN", "")

	orig := newApp
	newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app.App, error) {
		return app.New(ctx, cfg, logger, app.WithRegisterer(prometheus.NewRegistry()))
	}
	t.Cleanup(func() { newApp = orig })
	return storePath
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func listUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bill/119/s" && r.URL.Query().Get("offset") == "0" {
			_, _ = w.Write([]byte(`{"bills": [
				{"type": "S", "number": "1", "latestAction": {"actionDate": "2025-01-05", "text": "Introduced."}},
				{"type": "S", "number": "2"}
			]}`))
			return
		}
		_, _ = w.Write([]byte(`{"bills": []}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRunDetailOnEmptyStore(t *testing.T) {
	setupEnv(t, "http://127.0.0.1:1")

	_, err := execute(t, "run", "detail")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run list first")
}

func TestRunUnknownPhase(t *testing.T) {
	setupEnv(t, "http://127.0.0.1:1")

	_, err := execute(t, "run", "votes")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown phase")
}

func TestRunRejectsUnknownType(t *testing.T) {
	setupEnv(t, "http://127.0.0.1:1")

	_, err := execute(t, "run", "list", "--types", "hres")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown bill type")
}

func TestRunRequiresAPIKey(t *testing.T) {
	setupEnv(t, "http://127.0.0.1:1")
	t.Setenv("HILLWATCH_API_KEY", "")

	_, err := execute(t, "run", "list")
	require.ErrorIs(t, err, config.ErrMissingAPIKey)
}

func TestRunListThenStats(t *testing.T) {
	srv := listUpstream(t)
	storePath := setupEnv(t, srv.URL)

	out, err := execute(t, "run", "list", "--types", "s,hr", "--workers", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "list: 2 eligible, 2 succeeded, 0 failed, 2 created")

	raw, err := os.ReadFile(storePath)
	require.NoError(t, err)
	var stored map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &stored))
	assert.Contains(t, stored, "S_1")
	assert.Contains(t, stored, "S_2")

	out, err = execute(t, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "File: "+storePath)
	assert.Contains(t, out, "Past list")
	assert.Contains(t, out, "HCONRES")
}

func TestStatsWithoutStore(t *testing.T) {
	storePath := setupEnv(t, "http://127.0.0.1:1")

	out, err := execute(t, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Store not found: "+storePath)
}

func TestMigrateAnnotations(t *testing.T) {
	storePath := setupEnv(t, "http://127.0.0.1:1")
	require.NoError(t, os.WriteFile(storePath, []byte(`{
  "S_1": {
    "congressGovData": {"billId": "S_1", "congress": 119, "billType": "s", "billNumber": "1"},
    "customData": {"watchlist": true, "Review": {"WatchList": true}}
  }
}`), 0o600))

	out, err := execute(t, "migrate-annotations")
	require.NoError(t, err)
	assert.Contains(t, out, "Upgraded 1 of 1 records")

	raw, err := os.ReadFile(storePath)
	require.NoError(t, err)
	var stored map[string]struct {
		CongressGovData map[string]any            `json:"congressGovData"`
		CustomData      map[string]map[string]any `json:"customData"`
	}
	require.NoError(t, json.Unmarshal(raw, &stored))
	rec := stored["S_1"]
	assert.Equal(t, "S_1", rec.CongressGovData["billId"])
	assert.NotContains(t, rec.CustomData, "watchlist")
	assert.Equal(t, true, rec.CustomData["Review"]["WatchList"])
	assert.Equal(t, false, rec.CustomData["Review"]["Review_Done"])
	assert.Contains(t, rec.CustomData, "Outreach")
	assert.Contains(t, rec.CustomData, "FinalTracking")

	out, err = execute(t, "migrate-annotations")
	require.NoError(t, err)
	assert.Contains(t, out, "Upgraded 0 of 1 records")
}
