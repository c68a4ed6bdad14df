package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devraulu/airank/pkg/app"
	"github.com/devraulu/airank/pkg/config"
	"github.com/devraulu/airank/pkg/server"
	"github.com/devraulu/airank/pkg/storage"
	"github.com/devraulu/airank/pkg/storage/storagetest"
)

func setup(t *testing.T) (*app.App, *httptest.Server) {
	t.Helper()
	cfg := config.Default()
	cfg.Site.URL = "https://example.com"
	cfg.AI.Fixtures = true

	a := app.New(cfg, storagetest.New(t))
	srv := httptest.NewServer(server.New(a))
	t.Cleanup(srv.Close)
	return a, srv
}

func do(t *testing.T, method, url string, dst any) int {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if dst != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	_, srv := setup(t)
	assert.Equal(t, http.StatusOK, do(t, http.MethodGet, srv.URL+"/healthz", nil))
}

func TestScanLifecycle(t *testing.T) {
	a, srv := setup(t)
	ctx := context.Background()
	for range 4 {
		_, err := a.Store.SaveItem(ctx, storage.Item{Title: "t", Body: "<p>words</p>"})
		require.NoError(t, err)
	}

	var idle map[string]any
	require.Equal(t, http.StatusOK, do(t, http.MethodGet, srv.URL+"/api/scan", &idle))
	assert.Equal(t, "idle", idle["status"])
	assert.Nil(t, idle["last_run"])

	var started map[string]any
	require.Equal(t, http.StatusAccepted, do(t, http.MethodPost, srv.URL+"/api/scan/start?types=post", &started))
	assert.EqualValues(t, 4, started["total"])

	var tick map[string]string
	require.Equal(t, http.StatusOK, do(t, http.MethodPost, srv.URL+"/api/scan/tick", &tick))
	assert.Equal(t, "advanced", tick["outcome"])

	var state map[string]any
	require.Equal(t, http.StatusOK, do(t, http.MethodGet, srv.URL+"/api/scan", &state))
	assert.Equal(t, "running", state["status"])
	assert.EqualValues(t, 3, state["progress"])
	assert.EqualValues(t, 4, state["total"])

	var cancel map[string]bool
	require.Equal(t, http.StatusOK, do(t, http.MethodPost, srv.URL+"/api/scan/cancel", &cancel))
	assert.True(t, cancel["cancelled"])

	require.Equal(t, http.StatusOK, do(t, http.MethodPost, srv.URL+"/api/scan/cancel", &cancel))
	assert.False(t, cancel["cancelled"])
}

func TestAnalyzeAndHistory(t *testing.T) {
	a, srv := setup(t)
	id, err := a.Store.SaveItem(context.Background(), storage.Item{Title: "Guide", Body: "<h2>Intro</h2><p>Some words.</p>"})
	require.NoError(t, err)

	var res struct {
		ID      int64 `json:"id"`
		Score   int   `json:"score"`
		Metrics struct {
			H2Count int `json:"h2_count"`
		} `json:"metrics"`
		Signals []map[string]string `json:"signals"`
	}
	require.Equal(t, http.StatusOK, do(t, http.MethodPost, srv.URL+itemPath(id)+"/analyze", &res))
	assert.Equal(t, id, res.ID)
	assert.Equal(t, 1, res.Metrics.H2Count)
	assert.NotEmpty(t, res.Signals)

	var hist struct {
		Entries []map[string]any `json:"entries"`
		Delta   struct {
			SinceLast *int `json:"since_last"`
		} `json:"delta"`
	}
	require.Equal(t, http.StatusOK, do(t, http.MethodGet, srv.URL+itemPath(id)+"/history", &hist))
	assert.Len(t, hist.Entries, 1)
	assert.Nil(t, hist.Delta.SinceLast)
}

func TestAnalyzeErrors(t *testing.T) {
	_, srv := setup(t)
	assert.Equal(t, http.StatusNotFound, do(t, http.MethodPost, srv.URL+"/api/items/999/analyze", nil))
	assert.Equal(t, http.StatusBadRequest, do(t, http.MethodPost, srv.URL+"/api/items/abc/analyze", nil))
}

func TestGenerate(t *testing.T) {
	a, srv := setup(t)
	id, err := a.Store.SaveItem(context.Background(), storage.Item{Title: "Guide", Body: "<p>Body.</p>"})
	require.NoError(t, err)

	var out map[string]string
	require.Equal(t, http.StatusOK, do(t, http.MethodPost, srv.URL+itemPath(id)+"/generate/summary", &out))
	assert.Contains(t, out["html"], "Guide")

	assert.Equal(t, http.StatusNotFound, do(t, http.MethodPost, srv.URL+itemPath(id)+"/generate/poem", nil))
}

func TestSnapshots(t *testing.T) {
	a, srv := setup(t)
	ctx := context.Background()
	for range 3 {
		_, err := a.Recorder.Record(ctx)
		require.NoError(t, err)
	}

	var snaps []map[string]any
	require.Equal(t, http.StatusOK, do(t, http.MethodGet, srv.URL+"/api/snapshots?limit=2", &snaps))
	assert.Len(t, snaps, 2)

	assert.Equal(t, http.StatusBadRequest, do(t, http.MethodGet, srv.URL+"/api/snapshots?limit=x", nil))
}

func itemPath(id int64) string {
	return "/api/items/" + strconv.FormatInt(id, 10)
}
