// Package config manages configuration of the traffic monitoring service.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/joho/godotenv"

	"github.com/rianphlox/n-vpn/internal/fileutil"
)

const (
	// AppName is the application identifier used for XDG paths.
	AppName = "n-vpn"
	// ConfigFileName is the name of the main configuration file.
	ConfigFileName = "config.json"
	// EnvFileName is the optional dotenv file loaded before logging is configured.
	EnvFileName = "env"
	// SocketFileName is the name of the gateway socket inside the runtime directory.
	SocketFileName = "traffic.sock"
	// StateFileName is the file backend's default file name.
	StateFileName = "vpn_traffic_prefs.json"
)

// Store backend names.
const (
	BackendFile    = "file"
	BackendKeyring = "keyring"
	BackendRedis   = "redis"
	BackendMemory  = "memory"
)

// StoreConfig selects and configures the counter store backend.
type StoreConfig struct {
	Backend        string `json:"backend"`
	Path           string `json:"path,omitempty"`
	KeyringService string `json:"keyring_service,omitempty"`
	RedisAddr      string `json:"redis_addr,omitempty"`
	RedisDB        int    `json:"redis_db"`
	RedisKey       string `json:"redis_key,omitempty"`
}

// Config represents the service configuration.
type Config struct {
	SocketPath             string      `json:"socket_path,omitempty"`
	HTTPListenAddr         string      `json:"http_listen_addr,omitempty"`
	RefreshIntervalSeconds int         `json:"refresh_interval_seconds"`
	Store                  StoreConfig `json:"store"`
	Notifications          bool        `json:"notifications"`
	Tray                   bool        `json:"tray"`
	DisconnectCommand      string      `json:"disconnect_command,omitempty"`
}

// DefaultConfig returns a configuration with sensible defaults.
// Path-dependent fields stay empty until ApplyPaths fills them.
func DefaultConfig() *Config {
	return &Config{
		RefreshIntervalSeconds: 2,
		Store: StoreConfig{
			Backend:        BackendFile,
			KeyringService: "n-vpn-traffic",
			RedisAddr:      "127.0.0.1:6379",
			RedisKey:       "vpn_traffic_prefs",
		},
		Notifications: true,
	}
}

// RefreshInterval returns the status refresh period.
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalSeconds) * time.Second
}

// ApplyPaths fills path fields that were left empty.
func (c *Config) ApplyPaths(p *Paths) {
	if c.SocketPath == "" {
		c.SocketPath = p.SocketFile
	}
	if c.Store.Path == "" {
		c.Store.Path = p.StateFile
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.RefreshIntervalSeconds <= 0 {
		return fmt.Errorf("refresh interval must be positive")
	}
	switch c.Store.Backend {
	case BackendFile, BackendKeyring, BackendMemory:
	case BackendRedis:
		if c.Store.RedisAddr == "" {
			return fmt.Errorf("redis backend requires redis_addr")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.HTTPListenAddr != "" {
		if err := validateLoopback(c.HTTPListenAddr); err != nil {
			return fmt.Errorf("invalid http_listen_addr: %w", err)
		}
	}
	return nil
}

// validateLoopback rejects listen addresses reachable from other hosts.
func validateLoopback(addr string) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	if host == "localhost" {
		return nil
	}
	ip := net.ParseIP(host)
	if ip == nil || !ip.IsLoopback() {
		return errors.New("must be a loopback address")
	}
	return nil
}

// Paths holds the resolved configuration and runtime locations.
type Paths struct {
	ConfigDir  string
	ConfigFile string
	EnvFile    string
	StateFile  string
	RuntimeDir string
	SocketFile string
}

// GetPaths returns the paths following the XDG Base Directory spec.
func GetPaths() (*Paths, error) {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configHome = filepath.Join(homeDir, ".config")
	}

	// Without XDG_RUNTIME_DIR fall back to a per-user directory under the temp dir.
	runtimeDir := filepath.Join(os.TempDir(), AppName+"-"+strconv.Itoa(os.Getuid()))
	if xdgRuntime := os.Getenv("XDG_RUNTIME_DIR"); xdgRuntime != "" {
		runtimeDir = filepath.Join(xdgRuntime, AppName)
	}

	configDir := filepath.Join(configHome, AppName)
	return &Paths{
		ConfigDir:  configDir,
		ConfigFile: filepath.Join(configDir, ConfigFileName),
		EnvFile:    filepath.Join(configDir, EnvFileName),
		StateFile:  filepath.Join(configDir, StateFileName),
		RuntimeDir: runtimeDir,
		SocketFile: filepath.Join(runtimeDir, SocketFileName),
	}, nil
}

// EnsurePaths creates the configuration and runtime directories.
func (p *Paths) EnsurePaths() error {
	if err := os.MkdirAll(p.ConfigDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.MkdirAll(p.RuntimeDir, 0700); err != nil {
		return fmt.Errorf("failed to create runtime directory: %w", err)
	}
	return nil
}

// Load reads the configuration from disk over the defaults.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if _, err := fileutil.ReadJSON(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration to disk atomically.
func Save(path string, cfg *Config) error {
	if err := fileutil.WriteJSON(path, cfg, 0600); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

// LoadEnvFile loads KEY=value pairs from path into the process environment.
// Variables already set take precedence. A missing file is not an error.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// Manager provides the resolved configuration.
// It is safe for concurrent use from multiple goroutines.
type Manager struct {
	paths  *Paths       // Immutable after construction
	config *Config      // Protected by mu
	mu     sync.RWMutex // Protects config only
}

// NewManager resolves paths, ensures directories exist, loads and validates the configuration.
func NewManager() (*Manager, error) {
	paths, err := GetPaths()
	if err != nil {
		return nil, fmt.Errorf("failed to get config paths: %w", err)
	}
	return NewManagerWithPaths(paths)
}

// NewManagerWithPaths is NewManager with explicit paths.
func NewManagerWithPaths(paths *Paths) (*Manager, error) {
	if err := paths.EnsurePaths(); err != nil {
		return nil, fmt.Errorf("failed to create config directories: %w", err)
	}

	cfg, err := Load(paths.ConfigFile)
	if err != nil {
		return nil, err
	}
	cfg.ApplyPaths(paths)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", paths.ConfigFile, err)
	}

	return &Manager{
		paths:  paths,
		config: cfg,
	}, nil
}

// GetConfig returns a copy of the current configuration.
func (m *Manager) GetConfig() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg := *m.config
	return &cfg
}

// Paths returns the resolved paths.
func (m *Manager) Paths() *Paths {
	return m.paths
}
