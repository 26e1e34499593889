package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 2, cfg.RefreshIntervalSeconds)
	assert.Equal(t, 2*time.Second, cfg.RefreshInterval())
	assert.Equal(t, BackendFile, cfg.Store.Backend)
	assert.True(t, cfg.Notifications)
	assert.False(t, cfg.Tray)
	assert.Empty(t, cfg.HTTPListenAddr)
	assert.Empty(t, cfg.SocketPath)
	require.NoError(t, cfg.Validate())
}

func TestGetPaths(t *testing.T) {
	t.Run("with XDG variables set", func(t *testing.T) {
		configHome := t.TempDir()
		runtimeHome := t.TempDir()
		t.Setenv("XDG_CONFIG_HOME", configHome)
		t.Setenv("XDG_RUNTIME_DIR", runtimeHome)

		paths, err := GetPaths()
		require.NoError(t, err)

		assert.Equal(t, filepath.Join(configHome, AppName), paths.ConfigDir)
		assert.Equal(t, filepath.Join(configHome, AppName, ConfigFileName), paths.ConfigFile)
		assert.Equal(t, filepath.Join(configHome, AppName, EnvFileName), paths.EnvFile)
		assert.Equal(t, filepath.Join(configHome, AppName, StateFileName), paths.StateFile)
		assert.Equal(t, filepath.Join(runtimeHome, AppName, SocketFileName), paths.SocketFile)
	})

	t.Run("without XDG variables", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "")
		t.Setenv("XDG_RUNTIME_DIR", "")

		paths, err := GetPaths()
		require.NoError(t, err)

		homeDir, err := os.UserHomeDir()
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(homeDir, ".config", AppName), paths.ConfigDir)
		assert.Equal(t, os.TempDir(), filepath.Dir(paths.RuntimeDir))
	})
}

func TestLoad(t *testing.T) {
	t.Run("loads existing config over defaults", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.json")
		content := `{
			"http_listen_addr": "127.0.0.1:7891",
			"refresh_interval_seconds": 5,
			"store": {"backend": "redis", "redis_addr": "10.0.0.2:6379", "redis_db": 3},
			"tray": true
		}`
		require.NoError(t, os.WriteFile(configPath, []byte(content), 0600))

		cfg, err := Load(configPath)
		require.NoError(t, err)

		assert.Equal(t, "127.0.0.1:7891", cfg.HTTPListenAddr)
		assert.Equal(t, 5, cfg.RefreshIntervalSeconds)
		assert.Equal(t, BackendRedis, cfg.Store.Backend)
		assert.Equal(t, "10.0.0.2:6379", cfg.Store.RedisAddr)
		assert.Equal(t, 3, cfg.Store.RedisDB)
		assert.True(t, cfg.Tray)
		assert.True(t, cfg.Notifications, "unset fields keep defaults")
	})

	t.Run("returns defaults when file does not exist", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("returns error for invalid JSON", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.json")
		require.NoError(t, os.WriteFile(configPath, []byte("invalid json {{{"), 0600))

		_, err := Load(configPath)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to load config")
	})
}

func TestSave(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.json")
	cfg := DefaultConfig()
	cfg.Tray = true
	cfg.DisconnectCommand = "nmcli connection down vpn0"

	require.NoError(t, Save(configPath, cfg))

	info, err := os.Stat(configPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr string
	}{
		{"valid default config", func(*Config) {}, ""},
		{"zero refresh interval", func(c *Config) { c.RefreshIntervalSeconds = 0 }, "refresh interval must be positive"},
		{"unknown backend", func(c *Config) { c.Store.Backend = "sqlite" }, "unknown store backend"},
		{"redis without address", func(c *Config) {
			c.Store.Backend = BackendRedis
			c.Store.RedisAddr = ""
		}, "requires redis_addr"},
		{"keyring backend", func(c *Config) { c.Store.Backend = BackendKeyring }, ""},
		{"loopback http address", func(c *Config) { c.HTTPListenAddr = "127.0.0.1:7891" }, ""},
		{"localhost http address", func(c *Config) { c.HTTPListenAddr = "localhost:7891" }, ""},
		{"ipv6 loopback http address", func(c *Config) { c.HTTPListenAddr = "[::1]:7891" }, ""},
		{"public http address", func(c *Config) { c.HTTPListenAddr = "0.0.0.0:7891" }, "must be a loopback address"},
		{"http address without port", func(c *Config) { c.HTTPListenAddr = "127.0.0.1" }, "invalid http_listen_addr"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewManagerWithPaths(t *testing.T) {
	dir := t.TempDir()
	paths := &Paths{
		ConfigDir:  filepath.Join(dir, "config"),
		ConfigFile: filepath.Join(dir, "config", ConfigFileName),
		StateFile:  filepath.Join(dir, "config", StateFileName),
		RuntimeDir: filepath.Join(dir, "run"),
		SocketFile: filepath.Join(dir, "run", SocketFileName),
	}

	m, err := NewManagerWithPaths(paths)
	require.NoError(t, err)

	assert.DirExists(t, paths.ConfigDir)
	assert.DirExists(t, paths.RuntimeDir)

	cfg := m.GetConfig()
	assert.Equal(t, paths.SocketFile, cfg.SocketPath)
	assert.Equal(t, paths.StateFile, cfg.Store.Path)

	// Copies are independent of the manager's state.
	cfg.Tray = true
	assert.False(t, m.GetConfig().Tray)
}

func TestNewManagerWithPaths_InvalidConfig(t *testing.T) {
	dir := t.TempDir()
	paths := &Paths{
		ConfigDir:  dir,
		ConfigFile: filepath.Join(dir, ConfigFileName),
		RuntimeDir: filepath.Join(dir, "run"),
	}
	require.NoError(t, os.WriteFile(paths.ConfigFile, []byte(`{"refresh_interval_seconds": -1}`), 0600))

	_, err := NewManagerWithPaths(paths)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refresh interval must be positive")
}

func TestLoadEnvFile(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		require.NoError(t, LoadEnvFile(filepath.Join(t.TempDir(), EnvFileName)))
	})

	t.Run("sets unset variables only", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), EnvFileName)
		content := "N_VPN_TEST_FROM_FILE=file\nN_VPN_TEST_PRESET=file\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0600))

		t.Setenv("N_VPN_TEST_PRESET", "process")
		require.NoError(t, os.Unsetenv("N_VPN_TEST_FROM_FILE"))
		t.Cleanup(func() { _ = os.Unsetenv("N_VPN_TEST_FROM_FILE") })

		require.NoError(t, LoadEnvFile(path))
		assert.Equal(t, "file", os.Getenv("N_VPN_TEST_FROM_FILE"))
		assert.Equal(t, "process", os.Getenv("N_VPN_TEST_PRESET"), "environment wins over the file")
	})

	t.Run("unreadable path", func(t *testing.T) {
		err := LoadEnvFile(t.TempDir())
		assert.Error(t, err, "a directory is not an env file")
	})
}
