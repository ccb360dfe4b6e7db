// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"rpchat/internal/formatting"
)

// EnvBackendURL overrides backend.url when set
const EnvBackendURL = "RPCHAT_BACKEND_URL"

const DefaultBackendURL = "http://127.0.0.1:5000"

type BackendConfig struct {
	URL           string `yaml:"url"`
	Timeout       int    `yaml:"timeout"`        // seconds, for non-streaming requests
	RetryAttempts int    `yaml:"retry_attempts"` // reads and cancel only
	RetryDelay    int    `yaml:"retry_delay"`    // milliseconds
}

// TimeoutDuration converts Timeout to a time.Duration
func (b BackendConfig) TimeoutDuration() time.Duration {
	return time.Duration(b.Timeout) * time.Second
}

// RetryDelayDuration converts RetryDelay to a time.Duration
func (b BackendConfig) RetryDelayDuration() time.Duration {
	return time.Duration(b.RetryDelay) * time.Millisecond
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file,omitempty"`
}

type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path,omitempty"` // empty uses the XDG data dir
}

type ExportConfig struct {
	Dir string `yaml:"dir"`
}

type Config struct {
	Backend BackendConfig `yaml:"backend"`

	// Formatting is the default used when neither the chat session nor the
	// backend's application settings carry one
	Formatting *formatting.Settings `yaml:"formatting,omitempty"`

	Log     LogConfig     `yaml:"log"`
	Journal JournalConfig `yaml:"journal"`
	Export  ExportConfig  `yaml:"export"`
}

// Load reads the config from the default path
func Load() (*Config, error) {
	return LoadFrom(ConfigPath())
}

// LoadFrom reads the config at path. A missing file yields the defaults.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		cfg := defaultConfig()
		applyEnv(cfg)
		return cfg, nil
	}

	// Expand environment variables in config
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	// Apply defaults for unset values
	applyDefaults(&cfg)
	applyEnv(&cfg)

	if err := formatting.Validate(cfg.Formatting); err != nil {
		return nil, fmt.Errorf("invalid formatting rules in %s: %w", path, err)
	}

	return &cfg, nil
}

// Save writes cfg as YAML, creating the directory if needed
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func defaultConfig() *Config {
	cfg := &Config{}
	cfg.Backend.URL = DefaultBackendURL
	cfg.Backend.Timeout = 30
	cfg.Backend.RetryAttempts = 3
	cfg.Backend.RetryDelay = 1000 // 1 second
	cfg.Formatting = formatting.DefaultSettings()
	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	cfg.Log.File = defaultLogFile()
	cfg.Journal.Enabled = true
	cfg.Export.Dir = "."
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Backend.URL == "" {
		cfg.Backend.URL = DefaultBackendURL
	}
	if cfg.Backend.Timeout == 0 {
		cfg.Backend.Timeout = 30
	}
	if cfg.Backend.RetryAttempts == 0 {
		cfg.Backend.RetryAttempts = 3
	}
	if cfg.Backend.RetryDelay == 0 {
		cfg.Backend.RetryDelay = 1000
	}
	if cfg.Formatting == nil {
		cfg.Formatting = formatting.DefaultSettings()
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.Log.File == "" {
		cfg.Log.File = defaultLogFile()
	}
	if cfg.Export.Dir == "" {
		cfg.Export.Dir = "."
	}
}

func applyEnv(cfg *Config) {
	if url := strings.TrimSpace(os.Getenv(EnvBackendURL)); url != "" {
		cfg.Backend.URL = url
	}
}

func configDir() string {
	dir, _ := os.UserConfigDir()
	if dir == "" {
		dir = os.ExpandEnv("$HOME/.config")
	}
	return dir
}

func ConfigPath() string {
	return filepath.Join(configDir(), "rpchat", "config.yaml")
}

// defaultLogFile keeps logs off the terminal the chat screen draws on
func defaultLogFile() string {
	cacheDir, _ := os.UserCacheDir()
	if cacheDir == "" {
		cacheDir = os.ExpandEnv("$HOME/.cache")
	}
	return filepath.Join(cacheDir, "rpchat", "rpchat.log")
}
