package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	require.Equal(t, "127.0.0.1", cfg.Feed.Host)
	require.Equal(t, 3000, cfg.Feed.Port)
	require.Equal(t, "output.json", cfg.Output)
	require.Equal(t, 100*time.Millisecond, cfg.Feed.ResendInterval)
	require.NoError(t, Validate(cfg))
}

func TestLoadTemplateMatchesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "abx.toml")
	require.NoError(t, WriteTemplate(path, false))
	require.Error(t, WriteTemplate(path, false))
	require.NoError(t, WriteTemplate(path, true))

	cfg, err := Load(path)
	require.NoError(t, err)
	def := Default()
	require.Equal(t, def.Feed, cfg.Feed)
	require.Equal(t, def.Output, cfg.Output)
	require.Equal(t, zerolog.InfoLevel, cfg.Log.Level)
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
host = "10.0.0.5"
port = 4000
output = "out/packets.json"
resend_interval = "250ms"
read_timeout = "0s"

[log]
level = "debug"
file = "abx.log"

[metrics]
textfile = "abx.prom"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "10.0.0.5", cfg.Feed.Host)
	require.Equal(t, 4000, cfg.Feed.Port)
	require.Equal(t, "out/packets.json", cfg.Output)
	require.Equal(t, 250*time.Millisecond, cfg.Feed.ResendInterval)
	require.Zero(t, cfg.Feed.Transport.ReadTimeout)
	require.Equal(t, 5*time.Second, cfg.Feed.Transport.ConnectTimeout)
	require.Equal(t, zerolog.DebugLevel, cfg.Log.Level)
	require.Equal(t, "abx.log", cfg.Log.File)
	require.Equal(t, "abx.prom", cfg.MetricsTextfile)
}

func TestLoadBadDuration(t *testing.T) {
	_, err := Load(writeConfig(t, `resend_interval = "soon"`))
	require.Error(t, err)
}

func TestLoadRejectsInvalidPort(t *testing.T) {
	_, err := Load(writeConfig(t, `port = 70000`))
	require.ErrorIs(t, err, ErrInvalid)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	_, err := Load(writeConfig(t, `hostname = "x"`))
	require.ErrorIs(t, err, ErrInvalid)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}
