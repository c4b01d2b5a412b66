package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all engine configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Worker   WorkerConfig   `yaml:"worker"`
	Download DownloadConfig `yaml:"download"`
	License  LicenseConfig  `yaml:"license"`
}

// ServerConfig holds the status API server configuration.
type ServerConfig struct {
	Host         string        `yaml:"host" envconfig:"SERVER_HOST" default:"127.0.0.1"`
	Port         int           `yaml:"port" envconfig:"SERVER_PORT" default:"9412"`
	APIKey       string        `yaml:"api_key" envconfig:"API_KEY"`
	ReadTimeout  time.Duration `yaml:"read_timeout" envconfig:"SERVER_READ_TIMEOUT" default:"30s"`
	WriteTimeout time.Duration `yaml:"write_timeout" envconfig:"SERVER_WRITE_TIMEOUT" default:"1m"`
}

// StorageConfig holds filesystem layout configuration.
type StorageConfig struct {
	// StateDir holds one SQLite database per course.
	StateDir string `yaml:"state_dir" envconfig:"STATE_DIR" default:"/data/state"`

	// OutputDir is the default root for downloaded course files.
	OutputDir string `yaml:"output_dir" envconfig:"OUTPUT_DIR" default:"/data/courses"`

	// CredentialsPath is the encrypted provider credentials file.
	CredentialsPath string `yaml:"credentials_path" envconfig:"CREDENTIALS_PATH"`

	// MinFreeBytes fails a run up front when the output volume has less
	// free space than this.
	MinFreeBytes int64 `yaml:"min_free_bytes" envconfig:"MIN_FREE_BYTES" default:"1073741824"` // 1GB
}

// WorkerConfig holds download queue configuration.
type WorkerConfig struct {
	// Concurrency is the fixed worker pool size.
	Concurrency int `yaml:"concurrency" envconfig:"WORKER_CONCURRENCY" default:"3"`

	// MaxRetries is the total number of attempts per queue item,
	// including the first.
	MaxRetries int `yaml:"max_retries" envconfig:"WORKER_MAX_RETRIES" default:"3"`
}

// DownloadConfig holds HTTP fetch configuration.
type DownloadConfig struct {
	Timeout       time.Duration `yaml:"timeout" envconfig:"DOWNLOAD_TIMEOUT" default:"60s"`
	ReadTimeout   time.Duration `yaml:"read_timeout" envconfig:"DOWNLOAD_READ_TIMEOUT" default:"2m"`
	RetryDelay    time.Duration `yaml:"retry_delay" envconfig:"DOWNLOAD_RETRY_DELAY" default:"2s"`
	MaxRetryDelay time.Duration `yaml:"max_retry_delay" envconfig:"DOWNLOAD_MAX_RETRY_DELAY" default:"30s"`
	UserAgent     string        `yaml:"user_agent" envconfig:"DOWNLOAD_USER_AGENT" default:"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"`
}

// LicenseConfig holds the DRM license exchange configuration.
type LicenseConfig struct {
	Endpoint string        `yaml:"endpoint" envconfig:"LICENSE_ENDPOINT"`
	Timeout  time.Duration `yaml:"timeout" envconfig:"LICENSE_TIMEOUT" default:"15s"`
}

// Load reads configuration from file and environment variables.
// Environment variables override file values.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set.
func (c *Config) Validate() error {
	if c.Storage.StateDir == "" {
		return fmt.Errorf("STATE_DIR is required")
	}
	if c.Storage.OutputDir == "" {
		return fmt.Errorf("OUTPUT_DIR is required")
	}
	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("WORKER_CONCURRENCY must be at least 1")
	}
	if c.Worker.MaxRetries < 1 {
		return fmt.Errorf("WORKER_MAX_RETRIES must be at least 1")
	}
	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
