// Package paths resolves where tally keeps its config file and data.
package paths

import (
	"os"
	"path/filepath"
	"runtime"
)

const appName = "tally"

// ConfigFileName is the file read from the config directory.
const ConfigFileName = "config.yaml"

// DefaultDataDirName is created in the working directory when nothing else
// names a data directory.
const DefaultDataDirName = ".tally"

// Environment variable overrides.
const (
	EnvConfigDir = "TALLY_CONFIG_DIR"
	EnvDataDir   = "TALLY_DATA_DIR"
)

// Overridden in tests.
var (
	userHomeDir   = os.UserHomeDir
	userConfigDir = os.UserConfigDir
	getwd         = os.Getwd
)

// DefaultConfigDir returns $XDG_CONFIG_HOME/tally or ~/.config/tally on
// Linux and os.UserConfigDir()/tally elsewhere.
func DefaultConfigDir() (string, error) {
	if runtime.GOOS != "linux" {
		dir, err := userConfigDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(dir, appName), nil
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, appName), nil
	}
	home, err := userHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", appName), nil
}

// ResolveConfigDir applies flag > TALLY_CONFIG_DIR > DefaultConfigDir.
// Explicit values are made absolute.
func ResolveConfigDir(flag string) (string, error) {
	if dir := firstNonEmpty(flag, os.Getenv(EnvConfigDir)); dir != "" {
		return filepath.Abs(dir)
	}
	return DefaultConfigDir()
}

// ResolveDataDir applies flag > config value > TALLY_DATA_DIR > ./.tally.
func ResolveDataDir(flag, configValue string) (string, error) {
	if dir := firstNonEmpty(flag, configValue, os.Getenv(EnvDataDir)); dir != "" {
		return filepath.Abs(dir)
	}
	cwd, err := getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, DefaultDataDirName), nil
}

// ConfigFile returns the config file path inside configDir.
func ConfigFile(configDir string) string {
	return filepath.Join(configDir, ConfigFileName)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
