// Package paths resolves where the board CLI keeps its configuration and its
// data. Each directory is taken from the first source that sets it: command
// line flag, config.yaml (data directory only), environment variable, then
// the platform default.
package paths

import (
	"os"
	"path/filepath"
	"runtime"
)

const appName = "boards"

// ConfigFileName is the config file inside the configuration directory.
const ConfigFileName = "config.yaml"

// Environment variable names for directory overrides.
const (
	EnvConfigDir = "BOARDS_CONFIG_DIR"
	EnvDataDir   = "BOARDS_DATA_DIR"
)

// platformDir holds platform-detection functions that can be overridden in tests.
var platformDir = struct {
	goos          string
	homeDir       func() (string, error)
	userConfigDir func() (string, error)
}{
	goos:          runtime.GOOS,
	homeDir:       os.UserHomeDir,
	userConfigDir: os.UserConfigDir,
}

// xdgDir returns $env/boards, or home/fallback.../boards when env is unset.
func xdgDir(env string, fallback ...string) (string, error) {
	if dir := os.Getenv(env); dir != "" {
		return filepath.Join(dir, appName), nil
	}
	home, err := platformDir.homeDir()
	if err != nil {
		return "", err
	}
	parts := append([]string{home}, fallback...)
	return filepath.Join(append(parts, appName)...), nil
}

// DefaultConfigDir returns the platform-specific configuration directory.
//
// Linux:   $XDG_CONFIG_HOME/boards (fallback ~/.config/boards)
// macOS:   ~/Library/Application Support/boards
// Windows: %APPDATA%/boards
func DefaultConfigDir() (string, error) {
	if platformDir.goos == "linux" {
		return xdgDir("XDG_CONFIG_HOME", ".config")
	}
	dir, err := platformDir.userConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, appName), nil
}

// DefaultDataDir returns the platform-specific data directory. Outside
// Linux it is the configuration directory.
//
// Linux: $XDG_DATA_HOME/boards (fallback ~/.local/share/boards)
func DefaultDataDir() (string, error) {
	if platformDir.goos == "linux" {
		return xdgDir("XDG_DATA_HOME", ".local", "share")
	}
	return DefaultConfigDir()
}

// ResolveConfigDir applies flag > BOARDS_CONFIG_DIR > DefaultConfigDir.
// Explicit values are made absolute.
func ResolveConfigDir(flag string) (string, error) {
	if flag != "" {
		return filepath.Abs(flag)
	}
	if env := os.Getenv(EnvConfigDir); env != "" {
		return filepath.Abs(env)
	}
	return DefaultConfigDir()
}

// ResolveDataDir applies flag > config.yaml data_dir > BOARDS_DATA_DIR >
// DefaultDataDir. Explicit values are made absolute.
func ResolveDataDir(flag, configValue string) (string, error) {
	for _, v := range []string{flag, configValue, os.Getenv(EnvDataDir)} {
		if v != "" {
			return filepath.Abs(v)
		}
	}
	return DefaultDataDir()
}

// ConfigFile returns the path of config.yaml inside configDir.
func ConfigFile(configDir string) string {
	return filepath.Join(configDir, ConfigFileName)
}
