package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load(zap.NewNop(), "")
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "/produtos/", cfg.Site.ItemPathMarker)
	assert.Equal(t, filepath.Join("media", "audios"), cfg.Media.AudioDir())
	assert.Equal(t, 20, cfg.API.RPSBurst)
	assert.Equal(t, "browser", cfg.Site.ClientProfile)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: debug\nmedia:\n  root: /srv/irdin\n"), 0o644))
	t.Setenv("IRDIN_API_PORT", "9090")

	cfg, err := Load(zap.NewNop(), path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/srv/irdin/audios", cfg.Media.AudioDir())
	assert.Equal(t, "9090", cfg.API.Port)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	chdir(t, t.TempDir())

	_, err := Load(zap.NewNop(), "does-not-exist.yaml")
	assert.Error(t, err)
}

func TestLoad_ClientProfile(t *testing.T) {
	chdir(t, t.TempDir())

	t.Setenv("IRDIN_SITE_CLIENT_PROFILE", "Cloudflare")
	cfg, err := Load(zap.NewNop(), "")
	require.NoError(t, err)
	assert.Equal(t, "cloudflare", cfg.Site.ClientProfile)

	t.Setenv("IRDIN_SITE_CLIENT_PROFILE", "chrome")
	_, err = Load(zap.NewNop(), "")
	assert.Error(t, err)
}

// chdir changes the working directory for the duration of the test,
// matching testing.T.Chdir (Go 1.24+) on older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
