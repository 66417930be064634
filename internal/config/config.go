package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Config holds all daemon and overlay configuration.
type Config struct {
	// InstanceID identifies this installation in logs.
	InstanceID string `json:"instance_id" yaml:"instance_id"`

	// SocketPath is the control socket; empty means the runtime default.
	SocketPath string `json:"socket_path" yaml:"socket_path"`

	// History settings.
	MaxEntries    int `json:"max_entries" yaml:"max_entries"`
	PreviewLength int `json:"preview_length" yaml:"preview_length"`

	// MonitorOnly stops the daemon from taking clipboard ownership after a
	// capture; entries are still recorded.
	MonitorOnly bool `json:"monitor_only" yaml:"monitor_only"`

	// PersistPinned stores pinned entries on disk across restarts.
	PersistPinned bool `json:"persist_pinned" yaml:"persist_pinned"`

	// DataDir holds the pinned-entry database.
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// CaptureTimeoutMillis bounds the overlay's pointer capture.
	CaptureTimeoutMillis int64 `json:"capture_timeout" yaml:"capture_timeout"`

	// LogLevel is a zap level name: debug, info, warn, error.
	LogLevel string `json:"log_level" yaml:"log_level"`
}

// Mockable for tests.
var (
	getConfigPath      = defaultConfigPath
	getDefaultDataDir  = defaultDataDir
	generateInstanceID = func() string { return uuid.New().String() }
)

func defaultConfigPath() (string, error) {
	if dir := os.Getenv("CURSORCLIP_CONFIG_DIR"); dir != "" {
		return filepath.Join(dir, "config.yaml"), nil
	}
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "cursorclip", "config.yaml"), nil
}

func defaultDataDir() string {
	if dir := os.Getenv("CURSORCLIP_DATA_DIR"); dir != "" {
		return dir
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "cursorclip")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".cursorclip"
	}
	return filepath.Join(home, ".local", "share", "cursorclip")
}

// DefaultConfig returns a new Config with default values.
func DefaultConfig() *Config {
	return &Config{
		InstanceID:           generateInstanceID(),
		MaxEntries:           100,
		PreviewLength:        200,
		MonitorOnly:          false,
		PersistPinned:        true,
		DataDir:              getDefaultDataDir(),
		CaptureTimeoutMillis: 5000,
		LogLevel:             "info",
	}
}

// Load reads the configuration from the given file, creating it with defaults
// when missing. An empty path uses the default location. Environment
// variables override file values.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		var err error
		configPath, err = getConfigPath()
		if err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := DefaultConfig()
			if err := cfg.Save(configPath); err != nil {
				return nil, fmt.Errorf("failed to create default config: %w", err)
			}
			overrideFromEnv(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	overrideFromEnv(cfg)
	return cfg, nil
}

// Save writes the configuration to the given file.
func (c *Config) Save(configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// DBPath is the pinned-entry database location.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "cursorclip.db")
}

// CaptureTimeout converts the configured milliseconds to a duration.
func (c *Config) CaptureTimeout() time.Duration {
	if c.CaptureTimeoutMillis <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.CaptureTimeoutMillis) * time.Millisecond
}

func overrideFromEnv(config *Config) {
	if val := os.Getenv("CURSORCLIP_SOCKET"); val != "" {
		config.SocketPath = val
	}
	if val := os.Getenv("CURSORCLIP_MAX_ENTRIES"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			config.MaxEntries = n
		}
	}
	if val := os.Getenv("CURSORCLIP_MONITOR_ONLY"); val != "" {
		config.MonitorOnly = val == "true"
	}
	if val := os.Getenv("CURSORCLIP_DATA_DIR"); val != "" {
		config.DataDir = val
	}
	if val := os.Getenv("CURSORCLIP_CAPTURE_TIMEOUT"); val != "" {
		if ms, err := strconv.ParseInt(val, 10, 64); err == nil {
			config.CaptureTimeoutMillis = ms
		}
	}
	if val := os.Getenv("CURSORCLIP_LOG_LEVEL"); val != "" {
		config.LogLevel = val
	}
}
