// Package config loads SDK-wide defaults from a layered source: built-in
// defaults, an optional YAML file, then environment variables, each
// layer overriding the last.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/relaymesh/channelsdk/internal/logging"
)

// Config is the merged set of SDK-wide defaults.
type Config struct {
	APIURL                 string `yaml:"api_url,omitempty"`
	APIKey                 string `yaml:"api_key,omitempty"`
	UDPPort                int    `yaml:"udp_port,omitempty"`
	TCPPort                int    `yaml:"tcp_port,omitempty"`
	WebrtcNativeDir        string `yaml:"webrtc_native_dir,omitempty"`
	DefaultChannelPassword string `yaml:"default_channel_password,omitempty"`
}

func defaults() Config {
	return Config{
		APIURL:  "https://api.messaging.example.com",
		UDPPort: 9999,
		TCPPort: 7071,
	}
}

// Manager owns the merged Config and can reload it when the backing
// file changes.
type Manager struct {
	mu         sync.RWMutex
	configPath string
	merged     Config
}

// NewManager builds a Manager with built-in defaults, before any
// Load call.
func NewManager() *Manager {
	return &Manager{merged: defaults()}
}

// Load reads configPath (if it exists), then applies environment
// variable overrides, and stores the result. configPath may be empty,
// in which case only defaults and environment variables apply.
func (m *Manager) Load(configPath string) error {
	cfg := defaults()

	if configPath != "" {
		if err := applyFile(configPath, &cfg); err != nil {
			return err
		}
	}
	applyEnv(&cfg)

	m.mu.Lock()
	m.configPath = configPath
	m.merged = cfg
	m.mu.Unlock()
	return nil
}

// Get returns the current merged configuration.
func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.merged
}

// reload re-runs Load against the Manager's own configPath; used by
// the fsnotify-driven watcher in watch.go.
func (m *Manager) reload() {
	m.mu.RLock()
	path := m.configPath
	m.mu.RUnlock()
	if path == "" {
		return
	}
	if err := m.Load(path); err != nil {
		logging.Warn("config reload failed", "path", logging.Sanitize(path), "error", err)
		return
	}
	logging.Info("config reloaded", "path", logging.Sanitize(path))
}

func applyFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var fileCfg Config
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return err
	}
	mergeNonZero(cfg, fileCfg)
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("MESSAGING_API_URL"); v != "" {
		cfg.APIURL = v
	}
	if v := os.Getenv("MESSAGING_API_KEY"); v != "" {
		cfg.APIKey = v
	} else if v := os.Getenv("DEFAULT_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("MESSAGING_UDP_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.UDPPort = n
		}
	}
	if v := os.Getenv("MESSAGING_TCP_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.TCPPort = n
		}
	}
	if v := os.Getenv("WEBRTC_NATIVE_DIR"); v != "" {
		cfg.WebrtcNativeDir = v
	}
}

func mergeNonZero(dst *Config, src Config) {
	if src.APIURL != "" {
		dst.APIURL = src.APIURL
	}
	if src.APIKey != "" {
		dst.APIKey = src.APIKey
	}
	if src.UDPPort != 0 {
		dst.UDPPort = src.UDPPort
	}
	if src.TCPPort != 0 {
		dst.TCPPort = src.TCPPort
	}
	if src.WebrtcNativeDir != "" {
		dst.WebrtcNativeDir = src.WebrtcNativeDir
	}
	if src.DefaultChannelPassword != "" {
		dst.DefaultChannelPassword = src.DefaultChannelPassword
	}
}

// Save writes cfg to path as YAML, creating parent directories as
// needed.
func Save(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
