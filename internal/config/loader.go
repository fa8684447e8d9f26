package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Error types for configuration validation.
type ConfigError string

func (e ConfigError) Error() string {
	return string(e)
}

const (
	ErrMissingBaseURL ConfigError = "missing api.base_url in configuration"
	ErrMissingFeedURL ConfigError = "missing streams.feed_url in configuration"
)

// Load loads configuration from file and environment variables.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = getConfigPath()
	}
	if path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			// Config file is optional, don't fail if it doesn't exist
			if !os.IsNotExist(err) {
				return nil, err
			}
		}
	}

	loadFromEnv(cfg)

	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = defaultDataDir(path)
	}

	return cfg, nil
}

// getConfigPath returns the path to the config file.
func getConfigPath() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "bunstack", "config.yaml")
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(homeDir, ".config", "bunstack", "config.yaml")
}

// defaultDataDir places the data directory next to the config file.
func defaultDataDir(configPath string) string {
	if configPath != "" {
		return filepath.Join(filepath.Dir(configPath), "data")
	}
	return "data"
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	// Expand environment variables in the config file
	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return nil
}

// loadFromEnv loads configuration from environment variables.
func loadFromEnv(cfg *Config) {
	if v := os.Getenv("BUNSTACK_API_URL"); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv("BUNSTACK_FEED_URL"); v != "" {
		cfg.Streams.FeedURL = v
	}
	if v := os.Getenv("BUNSTACK_HISTORY_URL"); v != "" {
		cfg.Streams.HistoryURL = v
	}
	if v := os.Getenv("BUNSTACK_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("BUNSTACK_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("BUNSTACK_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Streams.PollInterval = d
		}
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.API.BaseURL) == "" {
		return ErrMissingBaseURL
	}
	if strings.TrimSpace(c.Streams.FeedURL) == "" {
		return ErrMissingFeedURL
	}
	return nil
}

// GetConfigPath returns the path to the config file (exported for external use).
func GetConfigPath() string {
	return getConfigPath()
}
