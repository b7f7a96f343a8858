package commands

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"

	"github.com/photolala/photolala-access/internal/app"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	return path
}

func TestLoadConfig_Precedence(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, `
log_format = "json"
environment = "staging"

[oauth]
client_id = "from-file"
scope = "photos.appendonly"

[credentials]
dir = "`+filepath.ToSlash(filepath.Join(dir, "creds"))+`"

[grants]
dir = "`+filepath.ToSlash(filepath.Join(dir, "grants"))+`"

[refresh]
interval = "30m"
`)

	environ := func() []string {
		return []string{
			"PHOTOLALA_OAUTH__CLIENT_ID=from-env",
			"PHOTOLALA_LIBRARY__ROOTS=/a,/b",
			"UNRELATED=1",
		}
	}

	cfg, err := loadConfig(path, nil, environ)
	require.NoError(t, err)

	assert.Equal(t, app.LogFormatJSON, cfg.LogFormat)
	assert.Equal(t, app.EnvironmentStaging, cfg.Environment)
	assert.Equal(t, "from-env", cfg.OAuth.ClientID)
	assert.Equal(t, "photos.appendonly", cfg.OAuth.Scope)
	assert.Equal(t, []string{"/a", "/b"}, cfg.Library.Roots)
	assert.Equal(t, 30*time.Minute, cfg.Refresh.Interval)
}

func TestLoadConfig_FlagsOverrideEnv(t *testing.T) {
	dir := t.TempDir()
	environ := func() []string {
		return []string{
			"PHOTOLALA_OAUTH__CLIENT_ID=from-env",
			"PHOTOLALA_CREDENTIALS__DIR=" + filepath.Join(dir, "creds"),
			"PHOTOLALA_GRANTS__DIR=" + filepath.Join(dir, "grants"),
		}
	}

	var cfg *app.Config
	cmd := &cli.Command{
		Name:  "test",
		Flags: rootFlags(),
		Action: func(_ context.Context, cmd *cli.Command) error {
			var err error
			cfg, err = loadConfig("", cmd, environ)
			return err
		},
	}

	err := cmd.Run(context.Background(), []string{"test", "--oauth--client-id", "from-flag", "--log-level", "debug"})
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "from-flag", cfg.OAuth.ClientID)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
}

func TestLoadConfig_Invalid(t *testing.T) {
	path := writeConfig(t, `log_format = "xml"`)

	_, err := loadConfig(path, nil, func() []string { return nil })
	assert.ErrorContains(t, err, "invalid config")
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "absent.toml"), nil, func() []string { return nil })
	assert.ErrorContains(t, err, "loading config file")
}

func TestEnvKey(t *testing.T) {
	key, value := envKey("PHOTOLALA_GRANTS__SQLITE_PATH", "/tmp/grants.db")
	assert.Equal(t, "grants.sqlite_path", key)
	assert.Equal(t, "/tmp/grants.db", value)

	key, value = envKey("PHOTOLALA_LIBRARY__ROOTS", "/a,/b")
	assert.Equal(t, "library.roots", key)
	assert.Equal(t, []string{"/a", "/b"}, value)
}
