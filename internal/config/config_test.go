package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/reccore/internal/config"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750)) //nolint:mnd
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()

	cfg, sources, err := config.Load(dir, "", config.Config{}, false, nil)
	require.NoError(t, err)
	assert.Equal(t, config.Default().MaxLockCells, cfg.MaxLockCells)
	assert.Equal(t, "US-ASCII", cfg.Charset)
	assert.Empty(t, sources.Global)
	assert.Empty(t, sources.Project)
}

func TestLoad_DefaultDataFileIsEmpty_LoadsFine(t *testing.T) {
	dir := t.TempDir()

	cfg, _, err := config.Load(dir, "", config.Config{}, false, nil)
	require.NoError(t, err, "commands like print-config must work without a data file configured")
	assert.Empty(t, cfg.DataFile)
}

func TestRequireDataFile_EmptyFails(t *testing.T) {
	require.ErrorIs(t, config.RequireDataFile(config.Config{}), config.ErrDataFileEmpty)
}

func TestRequireDataFile_SetSucceeds(t *testing.T) {
	require.NoError(t, config.RequireDataFile(config.Config{DataFile: "hotel.dat"}))
}

func TestLoad_ProjectConfigOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, config.FileName), `{"data_file": "hotel.dat", "max_lock_cells": 50}`)

	cfg, sources, err := config.Load(dir, "", config.Config{}, false, nil)
	require.NoError(t, err)
	assert.Equal(t, "hotel.dat", cfg.DataFile)
	assert.Equal(t, 50, cfg.MaxLockCells)
	assert.Equal(t, filepath.Join(dir, config.FileName), sources.Project)
}

func TestLoad_ProjectConfigWithJSONCComments(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, config.FileName), `{
		// overrides the default block size
		"data_file": "hotel.dat",
		"find_block_size": 250,
	}`)

	cfg, _, err := config.Load(dir, "", config.Config{}, false, nil)
	require.NoError(t, err)
	assert.Equal(t, 250, cfg.FindBlockSize)
}

func TestLoad_ExplicitConfigPathMustExist(t *testing.T) {
	dir := t.TempDir()

	_, _, err := config.Load(dir, "missing.json", config.Config{}, false, nil)
	require.Error(t, err)
}

func TestLoad_CLIOverrideWinsOverProjectConfig(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, config.FileName), `{"data_file": "hotel.dat"}`)

	cfg, _, err := config.Load(dir, "", config.Config{DataFile: "override.dat"}, true, nil)
	require.NoError(t, err)
	assert.Equal(t, "override.dat", cfg.DataFile)
}

func TestLoad_GlobalConfigViaXDGEnv(t *testing.T) {
	xdgDir := t.TempDir()
	writeFile(t, filepath.Join(xdgDir, "reccore", "config.json"), `{"data_file": "global.dat"}`)

	dir := t.TempDir()

	cfg, sources, err := config.Load(dir, "", config.Config{}, false, []string{"XDG_CONFIG_HOME=" + xdgDir})
	require.NoError(t, err)
	assert.Equal(t, "global.dat", cfg.DataFile)
	assert.NotEmpty(t, sources.Global)
}

func TestLoad_ProjectConfigOverridesGlobalConfig(t *testing.T) {
	xdgDir := t.TempDir()
	writeFile(t, filepath.Join(xdgDir, "reccore", "config.json"), `{"data_file": "global.dat", "max_lock_cells": 10}`)

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, config.FileName), `{"data_file": "project.dat"}`)

	cfg, _, err := config.Load(dir, "", config.Config{}, false, []string{"XDG_CONFIG_HOME=" + xdgDir})
	require.NoError(t, err)
	assert.Equal(t, "project.dat", cfg.DataFile)
	assert.Equal(t, 10, cfg.MaxLockCells, "project config doesn't mention max_lock_cells, global value survives")
}

func TestDurationHelpers_ConvertMillisecondFields(t *testing.T) {
	cfg := config.Default()
	assert.Equal(t, int64(60_000), cfg.LockExpiry().Milliseconds()) //nolint:mnd
	assert.Equal(t, int64(10_000), cfg.LockRetryWait().Milliseconds())
	assert.Equal(t, int64(6_000), cfg.WatchdogInterval().Milliseconds())
}

func TestFormat_ProducesIndentedJSON(t *testing.T) {
	out, err := config.Format(config.Default())
	require.NoError(t, err)
	assert.Contains(t, out, "\"max_lock_cells\": 1000")
}
