package paths

import (
	"errors"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigDirLinux(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("linux-only test")
	}

	t.Run("XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg-config")
		got, err := DefaultConfigDir()
		require.NoError(t, err)
		assert.Equal(t, "/tmp/xdg-config/tally", got)
	})

	t.Run("home fallback", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "")
		orig := userHomeDir
		userHomeDir = func() (string, error) { return "/home/ana", nil }
		t.Cleanup(func() { userHomeDir = orig })

		got, err := DefaultConfigDir()
		require.NoError(t, err)
		assert.Equal(t, "/home/ana/.config/tally", got)
	})

	t.Run("home lookup fails", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "")
		orig := userHomeDir
		userHomeDir = func() (string, error) { return "", errors.New("no home") }
		t.Cleanup(func() { userHomeDir = orig })

		_, err := DefaultConfigDir()
		assert.Error(t, err)
	})
}

func TestResolveConfigDir(t *testing.T) {
	tests := []struct {
		name string
		flag string
		env  string
		want string
	}{
		{"flag wins over env", "/explicit/config", "/env/config", "/explicit/config"},
		{"env when flag empty", "", "/env/config", "/env/config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvConfigDir, tt.env)
			got, err := ResolveConfigDir(tt.flag)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("platform default", func(t *testing.T) {
		t.Setenv(EnvConfigDir, "")
		got, err := ResolveConfigDir("")
		require.NoError(t, err)
		assert.Equal(t, "tally", filepath.Base(got))
	})

	t.Run("relative flag becomes absolute", func(t *testing.T) {
		t.Setenv(EnvConfigDir, "")
		got, err := ResolveConfigDir("relative/path")
		require.NoError(t, err)
		assert.True(t, filepath.IsAbs(got), got)
	})
}

func TestResolveDataDir(t *testing.T) {
	orig := getwd
	getwd = func() (string, error) { return "/work/blog", nil }
	t.Cleanup(func() { getwd = orig })

	tests := []struct {
		name        string
		flag        string
		configValue string
		env         string
		want        string
	}{
		{"flag wins over all", "/flag/data", "/config/data", "/env/data", "/flag/data"},
		{"config wins over env", "", "/config/data", "/env/data", "/config/data"},
		{"env when flag and config empty", "", "", "/env/data", "/env/data"},
		{"working directory default", "", "", "", "/work/blog/.tally"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvDataDir, tt.env)
			got, err := ResolveDataDir(tt.flag, tt.configValue)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConfigFile(t *testing.T) {
	assert.Equal(t, filepath.Join("/etc/tally", "config.yaml"), ConfigFile("/etc/tally"))
}
