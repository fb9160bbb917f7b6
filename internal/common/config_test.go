package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromFiles_LaterFilesOverride(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.toml")
	local := filepath.Join(dir, "local.toml")

	require.NoError(t, os.WriteFile(base, []byte(`
[server]
port = 9000

[scrape]
workers = 5
detail_endpoint = "/api/detail"
`), 0644))
	require.NoError(t, os.WriteFile(local, []byte(`
[scrape]
workers = 2
`), 0644))

	config, err := LoadFromFiles(base, local)
	require.NoError(t, err)

	assert.Equal(t, 9000, config.Server.Port)
	assert.Equal(t, 2, config.Scrape.Workers)
	assert.Equal(t, "/api/detail", config.Scrape.DetailEndpoint)
	assert.Equal(t, 10, config.Scrape.MaxRetryRounds, "untouched values keep defaults")
}

func TestLoadFromFiles_EnvOverridesFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "harvester.toml")
	require.NoError(t, os.WriteFile(path, []byte("[storage]\ntype = \"memory\"\n"), 0644))

	t.Setenv("HARVESTER_STORAGE_TYPE", "badger")
	t.Setenv("HARVESTER_SCRAPE_WORKERS", "4")

	config, err := LoadFromFiles(path)
	require.NoError(t, err)
	assert.Equal(t, "badger", config.Storage.Type)
	assert.Equal(t, 4, config.Scrape.Workers)
}

func TestLoadFromFiles_InvalidSweepSchedule(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "harvester.toml")
	require.NoError(t, os.WriteFile(path, []byte("[jobs]\nsweep_schedule = \"every minute\"\n"), 0644))

	_, err := LoadFromFiles(path)
	assert.Error(t, err)
}

func TestApplyFlagOverrides(t *testing.T) {
	config := NewDefaultConfig()
	ApplyFlagOverrides(config, 7070, "0.0.0.0")
	assert.Equal(t, 7070, config.Server.Port)
	assert.Equal(t, "0.0.0.0", config.Server.Host)

	ApplyFlagOverrides(config, 0, "")
	assert.Equal(t, 7070, config.Server.Port)
}

func TestParseDurationOr(t *testing.T) {
	assert.Equal(t, 2*time.Second, ParseDurationOr("2s", time.Second))
	assert.Equal(t, time.Second, ParseDurationOr("", time.Second))
	assert.Equal(t, time.Second, ParseDurationOr("soon", time.Second))
}
