package config

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

// Paths contains the per-user file locations used by the Pro gate.
// Everything lives under the XDG base directories of the current user.
type Paths struct {
	ConfigDir string
	StateDir  string
	DataDir   string

	LicenseFile      string
	AttemptStateFile string
	BundleFile       string
	LogFile          string
}

// DefaultPaths resolves the default locations without creating anything
func DefaultPaths() *Paths {
	configDir := filepath.Join(xdg.ConfigHome, AppName)
	stateDir := filepath.Join(xdg.StateHome, AppName)
	dataDir := filepath.Join(xdg.DataHome, AppName)

	return &Paths{
		ConfigDir:        configDir,
		StateDir:         stateDir,
		DataDir:          dataDir,
		LicenseFile:      filepath.Join(configDir, LicenseFileName),
		AttemptStateFile: filepath.Join(stateDir, AttemptStateFileName),
		BundleFile:       filepath.Join(dataDir, BundleFileName),
		LogFile:          filepath.Join(stateDir, LogFileName),
	}
}

// findConfigFile looks for costpilot.yaml in the working directory first and
// then in the XDG config search path. Returns "" if none exists.
func findConfigFile() string {
	if FileExists(ConfigFileName) {
		return ConfigFileName
	}

	path, err := xdg.SearchConfigFile(filepath.Join(AppName, ConfigFileName))
	if err != nil {
		return ""
	}

	slog.Debug("Using config file", slog.String("path", path))
	return path
}

// FileExists checks if a file exists
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
