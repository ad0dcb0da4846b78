package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Cloud    CloudConfig    `toml:"cloud"`
	Sync     SyncConfig     `toml:"sync"`
	Database DatabaseConfig `toml:"database"`
	Server   ServerConfig   `toml:"server"`
	Logging  LoggingConfig  `toml:"logging"`
}

// CloudConfig contains the remote service endpoint and OAuth2 credentials.
type CloudConfig struct {
	BaseURL      string `toml:"base_url"`
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	AuthURL      string `toml:"auth_url"`
	TokenURL     string `toml:"token_url"`
	RedirectURI  string `toml:"redirect_uri"`
	TokenPath    string `toml:"token_path"`
	DeviceName   string `toml:"device_name"`
}

// SyncConfig contains the timing and throughput settings of the synchronization engine.
type SyncConfig struct {
	FlushDelayMS          int     `toml:"flush_delay_ms"`
	ListenDelayMS         int     `toml:"listen_delay_ms"`
	MinListenSeconds      int     `toml:"min_listen_seconds"`
	RetryStepsSeconds     []int   `toml:"retry_steps_seconds"`
	RequestTimeoutSeconds int     `toml:"request_timeout_seconds"`
	MaxConcurrent         int     `toml:"max_concurrent"`
	RequestsPerSecond     float64 `toml:"requests_per_second"`
	ResyncSchedule        string  `toml:"resync_schedule"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains the settings of the local HTTP listener (OAuth callback and push notifications).
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// LoggingConfig contains log level and file rotation settings.
type LoggingConfig struct {
	Level       string `toml:"level"`
	Path        string `toml:"path"`
	MaxFileSize int    `toml:"max_file_size"`
	MaxBackups  int    `toml:"max_backups"`
}

// FlushDelay is the debounce delay of the outgoing sync buffer.
func (c SyncConfig) FlushDelay() time.Duration {
	return millisOr(c.FlushDelayMS, 500)
}

// ListenDelay is the debounce delay before a listen is submitted.
func (c SyncConfig) ListenDelay() time.Duration {
	return millisOr(c.ListenDelayMS, 2000)
}

// MinListen is the minimum listen time for a play to be recorded.
func (c SyncConfig) MinListen() time.Duration {
	if c.MinListenSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.MinListenSeconds) * time.Second
}

// RetrySteps returns the backoff schedule of the retry scheduler.
func (c SyncConfig) RetrySteps() []time.Duration {
	secs := c.RetryStepsSeconds
	if len(secs) == 0 {
		secs = []int{10, 30, 60, 180, 300}
	}
	steps := make([]time.Duration, 0, len(secs))
	for _, s := range secs {
		steps = append(steps, time.Duration(s)*time.Second)
	}
	return steps
}

// RequestTimeout is the per-request timeout after which a call counts as a transport failure.
func (c SyncConfig) RequestTimeout() time.Duration {
	if c.RequestTimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// Addr returns the host:port the local listener binds to.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func millisOr(ms, def int) time.Duration {
	if ms <= 0 {
		ms = def
	}
	return time.Duration(ms) * time.Millisecond
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep their default values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrInvalidConfig, err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
