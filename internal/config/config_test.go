package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Worker.Concurrency != 3 {
		t.Errorf("Concurrency = %d, want 3", cfg.Worker.Concurrency)
	}
	if cfg.Worker.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", cfg.Worker.MaxRetries)
	}
	if cfg.Download.Timeout != 60*time.Second {
		t.Errorf("Download.Timeout = %v, want 60s", cfg.Download.Timeout)
	}
	if cfg.Storage.MinFreeBytes != 1073741824 {
		t.Errorf("MinFreeBytes = %d, want 1GB", cfg.Storage.MinFreeBytes)
	}
}

func TestLoad_FileWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := `
storage:
  state_dir: /tmp/state
  output_dir: /tmp/out
worker:
  concurrency: 5
  max_retries: 2
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("WORKER_CONCURRENCY", "7")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Storage.StateDir != "/tmp/state" {
		t.Errorf("StateDir = %q, want /tmp/state", cfg.Storage.StateDir)
	}
	// Environment wins over file.
	if cfg.Worker.Concurrency != 7 {
		t.Errorf("Concurrency = %d, want 7", cfg.Worker.Concurrency)
	}
	if cfg.Worker.MaxRetries != 2 {
		t.Errorf("MaxRetries = %d, want 2", cfg.Worker.MaxRetries)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing state dir", func(c *Config) { c.Storage.StateDir = "" }, true},
		{"missing output dir", func(c *Config) { c.Storage.OutputDir = "" }, true},
		{"zero concurrency", func(c *Config) { c.Worker.Concurrency = 0 }, true},
		{"zero retries", func(c *Config) { c.Worker.MaxRetries = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Storage: StorageConfig{StateDir: "/s", OutputDir: "/o"},
				Worker:  WorkerConfig{Concurrency: 2, MaxRetries: 3},
			}
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestServerConfig_Address(t *testing.T) {
	c := ServerConfig{Host: "127.0.0.1", Port: 9412}
	if got := c.Address(); got != "127.0.0.1:9412" {
		t.Errorf("Address() = %q", got)
	}
}
