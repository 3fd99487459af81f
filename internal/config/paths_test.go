package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPaths(t *testing.T) {
	paths := DefaultPaths()

	for name, dir := range map[string]string{
		"config": paths.ConfigDir,
		"state":  paths.StateDir,
		"data":   paths.DataDir,
	} {
		assert.Equal(t, AppName, filepath.Base(dir), "%s dir", name)
		assert.True(t, filepath.IsAbs(dir), "%s dir is absolute", name)
	}

	assert.Equal(t, filepath.Join(paths.ConfigDir, LicenseFileName), paths.LicenseFile)
	assert.Equal(t, filepath.Join(paths.StateDir, AttemptStateFileName), paths.AttemptStateFile)
	assert.Equal(t, filepath.Join(paths.DataDir, BundleFileName), paths.BundleFile)
	assert.Equal(t, filepath.Join(paths.StateDir, LogFileName), paths.LogFile)
}

func TestDefaultPathsCreatesNothing(t *testing.T) {
	paths := DefaultPaths()
	if _, err := os.Stat(paths.StateDir); err == nil {
		t.Skip("state dir already exists on this host")
	}

	DefaultPaths()
	_, err := os.Stat(paths.StateDir)
	assert.True(t, os.IsNotExist(err))
}

func TestFindConfigFileInWorkingDir(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	assert.NotEqual(t, ConfigFileName, findConfigFile())

	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte("logging:\n  level: info\n"), 0600))
	assert.Equal(t, ConfigFileName, findConfigFile())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "present")
	require.NoError(t, os.WriteFile(file, nil, 0600))

	assert.True(t, FileExists(file))
	assert.True(t, FileExists(dir))
	assert.False(t, FileExists(filepath.Join(dir, "absent")))
}
