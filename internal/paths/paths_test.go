package paths

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePlatform swaps platform detection for the duration of a test.
func fakePlatform(t *testing.T, goos, home, userConfig string) {
	t.Helper()
	orig := platformDir
	t.Cleanup(func() { platformDir = orig })
	platformDir.goos = goos
	platformDir.homeDir = func() (string, error) { return home, nil }
	platformDir.userConfigDir = func() (string, error) { return userConfig, nil }
}

func TestDefaultDirs_Linux(t *testing.T) {
	fakePlatform(t, "linux", "/home/ada", "")

	t.Run("XDG variables win", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg-config")
		t.Setenv("XDG_DATA_HOME", "/tmp/xdg-data")
		cfg, err := DefaultConfigDir()
		require.NoError(t, err)
		assert.Equal(t, "/tmp/xdg-config/boards", cfg)
		data, err := DefaultDataDir()
		require.NoError(t, err)
		assert.Equal(t, "/tmp/xdg-data/boards", data)
	})

	t.Run("home fallbacks", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "")
		t.Setenv("XDG_DATA_HOME", "")
		cfg, err := DefaultConfigDir()
		require.NoError(t, err)
		assert.Equal(t, filepath.Join("/home/ada", ".config", "boards"), cfg)
		data, err := DefaultDataDir()
		require.NoError(t, err)
		assert.Equal(t, filepath.Join("/home/ada", ".local", "share", "boards"), data)
	})
}

func TestDefaultDirs_Darwin(t *testing.T) {
	fakePlatform(t, "darwin", "/Users/ada", "/Users/ada/Library/Application Support")

	cfg, err := DefaultConfigDir()
	require.NoError(t, err)
	assert.Equal(t, "/Users/ada/Library/Application Support/boards", cfg)
	data, err := DefaultDataDir()
	require.NoError(t, err)
	assert.Equal(t, cfg, data)
}

func TestDefaultConfigDir_HomeError(t *testing.T) {
	fakePlatform(t, "linux", "", "")
	platformDir.homeDir = func() (string, error) { return "", errors.New("no home") }
	t.Setenv("XDG_CONFIG_HOME", "")

	_, err := DefaultConfigDir()
	assert.Error(t, err)
}

func TestResolveConfigDir(t *testing.T) {
	fakePlatform(t, "linux", "/home/ada", "")
	t.Setenv("XDG_CONFIG_HOME", "")

	tests := []struct {
		name   string
		flag   string
		envVal string
		want   string
	}{
		{"flag wins over env", "/explicit/config", "/env/config", "/explicit/config"},
		{"env wins when flag empty", "", "/env/config", "/env/config"},
		{"platform default when both empty", "", "", "/home/ada/.config/boards"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvConfigDir, tt.envVal)
			got, err := ResolveConfigDir(tt.flag)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveDataDir(t *testing.T) {
	fakePlatform(t, "linux", "/home/ada", "")
	t.Setenv("XDG_DATA_HOME", "")

	tests := []struct {
		name        string
		flag        string
		configValue string
		envVal      string
		want        string
	}{
		{"flag wins over all", "/flag/data", "/config/data", "/env/data", "/flag/data"},
		{"config.yaml wins over env", "", "/config/data", "/env/data", "/config/data"},
		{"env wins when flag and config empty", "", "", "/env/data", "/env/data"},
		{"platform default when all empty", "", "", "", "/home/ada/.local/share/boards"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvDataDir, tt.envVal)
			got, err := ResolveDataDir(tt.flag, tt.configValue)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolve_RelativeBecomesAbsolute(t *testing.T) {
	t.Setenv(EnvConfigDir, "relative/env")
	t.Setenv(EnvDataDir, "")

	got, err := ResolveConfigDir("")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(got), "expected absolute path, got %s", got)

	got, err = ResolveDataDir("", "relative/config")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(got), "expected absolute path, got %s", got)
}

func TestConfigFile(t *testing.T) {
	assert.Equal(t, filepath.Join("/etc/boards", "config.yaml"), ConfigFile("/etc/boards"))
}
