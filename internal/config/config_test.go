package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("BQTEST_NONE_", "")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "bunquery.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
storage:
  path: /var/lib/bunquery
server:
  addr: ":9000"
  querycachesize: 8
`), 0644))

	t.Setenv("BQTEST_SERVER_ADDR", ":9100")
	t.Setenv("BQTEST_STORAGE_SYNC_ON_COMMIT", "false")
	t.Setenv("BQTEST_INDEX_WORKERS", "0")

	cfg, err := Load("BQTEST_", file)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/bunquery", cfg.Storage.Path)
	assert.False(t, cfg.Storage.SyncOnCommit)
	assert.Equal(t, ":9100", cfg.Server.Addr)
	assert.Equal(t, 8, cfg.Server.QueryCacheSize)
	assert.Equal(t, 1, cfg.Index.Workers)
	assert.Equal(t, "INFO", cfg.Log.Level)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("BQTEST_", filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
