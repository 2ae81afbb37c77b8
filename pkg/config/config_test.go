package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/adrg/xdg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolateConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	xdg.Reload()
	t.Cleanup(xdg.Reload)
	return dir
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Empty(t, cfg.LinkMode)
	assert.Equal(t, "wheelhouse", cfg.Installer)
	assert.Positive(t, cfg.Parallel)
	assert.False(t, cfg.Relocatable)
}

func TestLoadMissingFile(t *testing.T) {
	isolateConfig(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFile(t *testing.T) {
	dir := isolateConfig(t)
	configDir := filepath.Join(dir, "wheelhouse")
	require.NoError(t, os.MkdirAll(configDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "config.toml"),
		[]byte("link_mode = \"copy\"\ninstaller = \"custom\"\nparallel = 2\nrelocatable = true\n"), 0o644))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "copy", cfg.LinkMode)
	assert.Equal(t, "custom", cfg.Installer)
	assert.Equal(t, 2, cfg.Parallel)
	assert.True(t, cfg.Relocatable)
}

func TestLoadInvalidFile(t *testing.T) {
	dir := isolateConfig(t)
	configDir := filepath.Join(dir, "wheelhouse")
	require.NoError(t, os.MkdirAll(configDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "config.toml"),
		[]byte("link_mode = [not toml"), 0o644))

	_, err := Load()
	require.Error(t, err)
}

func TestLoadEnvOverrides(t *testing.T) {
	isolateConfig(t)
	t.Setenv("WHEELHOUSE_LINK_MODE", "symlink")
	t.Setenv("WHEELHOUSE_INSTALLER", "env-installer")
	t.Setenv("WHEELHOUSE_PARALLEL", "3")
	t.Setenv("WHEELHOUSE_RELOCATABLE", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "symlink", cfg.LinkMode)
	assert.Equal(t, "env-installer", cfg.Installer)
	assert.Equal(t, 3, cfg.Parallel)
	assert.True(t, cfg.Relocatable)
}

func TestLoadClampsParallel(t *testing.T) {
	isolateConfig(t)
	t.Setenv("WHEELHOUSE_PARALLEL", "-5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Parallel)
}
