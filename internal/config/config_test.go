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
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, ":8080", cfg.Server.Addr)
	require.Equal(t, 10*time.Second, cfg.Server.Timeout)
	require.Equal(t, 1024, cfg.Cache.Size)
	require.Equal(t, "viewexec", cfg.Otel.Service)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "viewexec.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  driver: pgx
  dsn: postgres://localhost/views
server:
  timeout: 3s
views:
  dir: /srv/views
`), 0o600))
	t.Setenv("VIEWEXEC_SERVER_ADDR", ":9090")
	t.Setenv("VIEWEXEC_METRICS_ENABLED", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "pgx", cfg.Database.Driver)
	require.Equal(t, "postgres://localhost/views", cfg.Database.DSN)
	require.Equal(t, 3*time.Second, cfg.Server.Timeout)
	require.Equal(t, "/srv/views", cfg.Views.Dir)
	require.Equal(t, ":9090", cfg.Server.Addr)
	require.True(t, cfg.Metrics.Enabled)
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("VIEWEXEC_DATABASE_DRIVER", "oracle")
	_, err := Load("")
	require.ErrorContains(t, err, `unsupported database.driver "oracle"`)
}

func TestLoadBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: ["), 0o600))
	_, err := Load(path)
	require.Error(t, err)
}
