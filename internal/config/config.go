package config

import "time"

// Config represents the main application configuration.
type Config struct {
	API     APIConfig     `yaml:"api"`
	Streams StreamsConfig `yaml:"streams"`
	Storage StorageConfig `yaml:"storage"`
	Breaker BreakerConfig `yaml:"breaker"`
	Logging LoggingConfig `yaml:"logging"`

	// Runtime version information
	Version string `yaml:"-"`
}

// APIConfig holds REST endpoint settings.
type APIConfig struct {
	// BaseURL is the root of the REST API, e.g. https://burgers.example.com/api
	BaseURL string `yaml:"base_url"`

	// HTTPTimeout is the per-request timeout for REST and fallback calls.
	HTTPTimeout time.Duration `yaml:"http_timeout"`
}

// StreamsConfig holds live stream settings.
type StreamsConfig struct {
	// FeedURL is the global order feed websocket endpoint (no credential).
	FeedURL string `yaml:"feed_url"`

	// HistoryURL is the personal order history websocket endpoint. The
	// access token is appended as a query parameter at connect time.
	HistoryURL string `yaml:"history_url"`

	// ProbeTimeout bounds the throwaway availability probe.
	ProbeTimeout time.Duration `yaml:"probe_timeout"`

	// ConnectTimeout bounds the real websocket handshake.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// PollInterval is the fallback polling cadence while a stream is down.
	PollInterval time.Duration `yaml:"poll_interval"`
}

// StorageConfig holds local persistence settings.
type StorageConfig struct {
	// DataDir is where tokens and the builder snapshot are persisted.
	// Defaults to a "data" directory next to the config file.
	DataDir string `yaml:"data_dir"`
}

// BreakerConfig holds circuit breaker settings for the availability probe.
type BreakerConfig struct {
	Threshold    int           `yaml:"threshold"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:     "https://api.bunstack.dev/api",
			HTTPTimeout: 15 * time.Second,
		},
		Streams: StreamsConfig{
			FeedURL:        "wss://api.bunstack.dev/orders/all",
			HistoryURL:     "wss://api.bunstack.dev/orders",
			ProbeTimeout:   3 * time.Second,
			ConnectTimeout: 5 * time.Second,
			PollInterval:   15 * time.Second,
		},
		Storage: StorageConfig{},
		Breaker: BreakerConfig{
			Threshold:    3,
			ResetTimeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "warn",
		},
	}
}
