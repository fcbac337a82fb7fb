package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, 500, cfg.Ingest.BatchSize)
	require.Equal(t, 5*time.Minute, cfg.FileTimeout())
	require.Equal(t, 50*time.Millisecond, cfg.InterBatchPause())
	require.Equal(t, 10*time.Minute, cfg.SweepInterval())
	require.False(t, cfg.Watch.Enabled)
	require.True(t, cfg.Logging.Development)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
ingest:
  inbox_dir: /data/inbox
  batch_size: 100
db:
  dsn: postgres://localhost/siteingest
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "/data/inbox", cfg.Ingest.InboxDir)
	require.Equal(t, 100, cfg.Ingest.BatchSize)
	require.Equal(t, "postgres://localhost/siteingest", cfg.DB.DSN)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.Server.Port = 0 }},
		{"missing inbox", func(c *Config) { c.Ingest.InboxDir = "" }},
		{"zero batch size", func(c *Config) { c.Ingest.BatchSize = 0 }},
		{"zero file timeout", func(c *Config) { c.Ingest.FileTimeoutSeconds = 0 }},
		{"auth without key", func(c *Config) { c.Auth.Enabled = true }},
		{"watch without debounce", func(c *Config) {
			c.Watch.Enabled = true
			c.Watch.DebounceMs = 0
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Load("")
			require.NoError(t, err)
			tc.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}
