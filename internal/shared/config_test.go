package shared

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfig(t *testing.T) {
	t.Run("DefaultConfig", func(t *testing.T) {
		config := DefaultConfig()

		if config.Database.Path != "./playsync.db" {
			t.Errorf("expected database path ./playsync.db, got %s", config.Database.Path)
		}

		if config.Server.Port != 3000 {
			t.Errorf("expected server port 3000, got %d", config.Server.Port)
		}

		if config.Cloud.BaseURL != "https://cloud.example.com" {
			t.Errorf("expected base url https://cloud.example.com, got %s", config.Cloud.BaseURL)
		}

		if config.Sync.FlushDelay() != 500*time.Millisecond {
			t.Errorf("expected flush delay 500ms, got %v", config.Sync.FlushDelay())
		}

		if config.Sync.ResyncSchedule != "@every 30m" {
			t.Errorf("expected resync schedule @every 30m, got %q", config.Sync.ResyncSchedule)
		}
	})

	t.Run("CreateConfigFile", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		if err := CreateConfigFile(configPath); err != nil {
			t.Fatalf("failed to create config file: %v", err)
		}

		if _, err := os.Stat(configPath); err != nil {
			t.Fatalf("config file should exist: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load created config: %v", err)
		}

		defaultConfig := DefaultConfig()
		if config.Database.Path != defaultConfig.Database.Path {
			t.Errorf("created config database path doesn't match default")
		}

		if err := CreateConfigFile(configPath); err == nil {
			t.Error("creating config file again should fail")
		}
	})

	t.Run("LoadConfig", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		testConfig := `[database]
path = "/custom/path.db"

[server]
host = "0.0.0.0"
port = 8080

[cloud]
base_url = "http://localhost:9000"
client_id = "test_client_id"

[sync]
retry_steps_seconds = [1, 2]
`
		if err := os.WriteFile(configPath, []byte(testConfig), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load config: %v", err)
		}

		if config.Database.Path != "/custom/path.db" {
			t.Errorf("expected database path /custom/path.db, got %s", config.Database.Path)
		}

		if config.Server.Addr() != "0.0.0.0:8080" {
			t.Errorf("expected addr 0.0.0.0:8080, got %s", config.Server.Addr())
		}

		if config.Cloud.ClientID != "test_client_id" {
			t.Errorf("expected client_id test_client_id, got %s", config.Cloud.ClientID)
		}

		if config.Database.MaxOpenConns != 4 {
			t.Errorf("expected unset keys to keep defaults, got max_open_conns %d", config.Database.MaxOpenConns)
		}

		steps := config.Sync.RetrySteps()
		if len(steps) != 2 || steps[0] != time.Second || steps[1] != 2*time.Second {
			t.Errorf("unexpected retry steps %v", steps)
		}
	})

	t.Run("LoadConfig Invalid", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.toml")
		if err := os.WriteFile(configPath, []byte("[server\nport = "), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		if _, err := LoadConfig(configPath); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})
}

func TestSyncConfigDefaults(t *testing.T) {
	var c SyncConfig

	if c.FlushDelay() != 500*time.Millisecond {
		t.Errorf("FlushDelay() = %v", c.FlushDelay())
	}
	if c.ListenDelay() != 2*time.Second {
		t.Errorf("ListenDelay() = %v", c.ListenDelay())
	}
	if c.MinListen() != 15*time.Second {
		t.Errorf("MinListen() = %v", c.MinListen())
	}
	if c.RequestTimeout() != 30*time.Second {
		t.Errorf("RequestTimeout() = %v", c.RequestTimeout())
	}

	want := []time.Duration{10 * time.Second, 30 * time.Second, time.Minute, 3 * time.Minute, 5 * time.Minute}
	got := c.RetrySteps()
	if len(got) != len(want) {
		t.Fatalf("RetrySteps() = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("RetrySteps()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}
