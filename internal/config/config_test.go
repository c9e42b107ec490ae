package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFromArgs(nil)
	require.NoError(t, err)

	assert.Equal(t, "studyquest.db", cfg.DBPath)
	assert.Equal(t, "studyquest-data", cfg.DataDir)
	assert.Equal(t, "documents.json", cfg.DocFile)
	assert.Equal(t, 500*time.Millisecond, cfg.FlushDelay)
	assert.Equal(t, "dev", cfg.LogMode)
}

func TestLoadFlagsOverride(t *testing.T) {
	cfg, err := LoadFromArgs([]string{
		"--db_path", ":memory:",
		"--flush_delay", "2s",
		"--log_mode", "prod",
	})
	require.NoError(t, err)

	assert.Equal(t, ":memory:", cfg.DBPath)
	assert.Equal(t, 2*time.Second, cfg.FlushDelay)
	assert.Equal(t, "prod", cfg.LogMode)
	assert.Equal(t, "documents.json", cfg.DocFile, "unset fields keep defaults")
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("STUDYQUEST_DB_PATH", "/tmp/env.db")
	t.Setenv("STUDYQUEST_LOG_MODE", "prod")

	cfg, err := LoadFromArgs(nil)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/env.db", cfg.DBPath)
	assert.Equal(t, "prod", cfg.LogMode)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("db_path: /tmp/file.db\ndata_dir: /tmp/data\n"), 0644))

	cfg, err := LoadFromArgs([]string{"--config", path})
	require.NoError(t, err)

	assert.Equal(t, "/tmp/file.db", cfg.DBPath)
	assert.Equal(t, "/tmp/data", cfg.DataDir)
}

func TestFlagsBeatConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("db_path: /tmp/file.db\n"), 0644))

	cfg, err := LoadFromArgs([]string{"--config", path, "--db_path", "/tmp/flag.db"})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/flag.db", cfg.DBPath)
}

func TestLoadRejectsBadLogMode(t *testing.T) {
	_, err := LoadFromArgs([]string{"--log_mode", "verbose"})
	assert.Error(t, err)
}

func TestLoadMissingConfigFile(t *testing.T) {
	_, err := LoadFromArgs([]string{"--config", "/nonexistent/config.yaml"})
	assert.Error(t, err)
}
