package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	return logger, &buf
}

func writeTestConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "test-config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

const validConfig = `
circuit_breakers:
  instances:
    payments:
      failure_rate_threshold: 50
`

const validConfigUpdated = `
circuit_breakers:
  instances:
    payments:
      failure_rate_threshold: 30
    search:
      failure_rate_threshold: 70
`

const invalidConfig = `
circuit_breakers:
  instances:
    payments:
      failure_rate_threshold: 150
`

func TestReloader_Current(t *testing.T) {
	logger, _ := newTestLogger()
	dir := t.TempDir()
	path := writeTestConfig(t, dir, validConfig)

	initial, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load initial config: %v", err)
	}

	r := NewReloader(path, initial, logger)
	cfg := r.Current()
	if len(cfg.CircuitBreakers.Instances) != 1 {
		t.Errorf("expected 1 breaker instance, got %d", len(cfg.CircuitBreakers.Instances))
	}
}

func TestReloader_Reload_ValidConfig(t *testing.T) {
	logger, _ := newTestLogger()
	dir := t.TempDir()
	path := writeTestConfig(t, dir, validConfig)

	initial, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load initial config: %v", err)
	}

	r := NewReloader(path, initial, logger)

	var got *Config
	r.OnReload(func(cfg *Config) { got = cfg })

	writeTestConfig(t, dir, validConfigUpdated)
	if !r.Reload() {
		t.Fatal("expected reload to succeed")
	}

	if got == nil {
		t.Fatal("expected reload callback to be invoked")
	}
	if len(got.CircuitBreakers.Instances) != 2 {
		t.Errorf("expected 2 breaker instances after reload, got %d", len(got.CircuitBreakers.Instances))
	}
	if r.Current() != got {
		t.Error("expected Current to return the reloaded config")
	}
}

func TestReloader_Reload_InvalidConfigKeepsCurrent(t *testing.T) {
	logger, _ := newTestLogger()
	dir := t.TempDir()
	path := writeTestConfig(t, dir, validConfig)

	initial, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load initial config: %v", err)
	}

	r := NewReloader(path, initial, logger)

	writeTestConfig(t, dir, invalidConfig)
	if r.Reload() {
		t.Fatal("expected reload to fail on invalid config")
	}
	if r.Current() != initial {
		t.Error("expected current config to be unchanged after failed reload")
	}
}

func TestReloader_FileWatcher(t *testing.T) {
	logger, _ := newTestLogger()
	dir := t.TempDir()
	path := writeTestConfig(t, dir, validConfig)

	initial, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load initial config: %v", err)
	}

	r := NewReloader(path, initial, logger)

	reloaded := make(chan *Config, 1)
	r.OnReload(func(cfg *Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	})

	r.Start()
	defer r.Stop()

	writeTestConfig(t, dir, validConfigUpdated)

	select {
	case cfg := <-reloaded:
		if len(cfg.CircuitBreakers.Instances) != 2 {
			t.Errorf("expected 2 instances, got %d", len(cfg.CircuitBreakers.Instances))
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for file watcher reload")
	}
}
