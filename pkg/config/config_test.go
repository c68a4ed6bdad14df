package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Scan.SliceSize)
	assert.Equal(t, 5*time.Second, cfg.Scan.GetFirstDelay())
	assert.Equal(t, 10*time.Second, cfg.Scan.GetNextDelay())
	assert.Equal(t, 30*time.Second, cfg.Scan.GetLockTTL())
	assert.Equal(t, 60*time.Second, cfg.Enrichment.GetFlagTTL())
	assert.Equal(t, []string{"post", "page"}, cfg.Site.Types)
	assert.Equal(t, "full", cfg.AI.Mode)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
[database]
driver = "postgres"
dsn = "postgres://localhost/airank"

[site]
url = "https://example.com"
types = ["post"]

[scan]
slice_size = 5
next_delay = "2s"

[logging]
level = "debug"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "https://example.com", cfg.Site.URL)
	assert.Equal(t, []string{"post"}, cfg.Site.Types)
	assert.Equal(t, 5, cfg.Scan.SliceSize)
	assert.Equal(t, 2*time.Second, cfg.Scan.GetNextDelay())
	assert.Equal(t, 5*time.Second, cfg.Scan.GetFirstDelay())
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadEnvOverlay(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("AIRANK_DSN", "file.db")

	cfg, err := Load(writeConfig(t, `[ai]
api_key = "from-file"
`))
	require.NoError(t, err)

	assert.Equal(t, "sk-test", cfg.AI.APIKey)
	assert.Equal(t, "file.db", cfg.Database.DSN)
}

func TestInvalidDurationFallsBack(t *testing.T) {
	c := ScanConfig{NextDelay: "soon", LockTTL: "-1s"}
	assert.Equal(t, 10*time.Second, c.GetNextDelay())
	assert.Equal(t, 30*time.Second, c.GetLockTTL())
}

func TestLocationFallsBackToUTC(t *testing.T) {
	s := SiteConfig{Timezone: "Not/AZone"}
	assert.Equal(t, time.UTC, s.Location())
}
