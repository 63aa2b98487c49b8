package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Rate.MaxRequests != 10 || cfg.Rate.WindowSeconds != 3600 {
		t.Fatalf("unexpected rate defaults: %+v", cfg.Rate)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadJSONOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := `{"rate":{"maxRequests":99},"forward":{"url":"http://localhost:9000/hook"}}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Rate.MaxRequests != 99 {
		t.Fatalf("maxRequests not overlaid: %d", cfg.Rate.MaxRequests)
	}
	if cfg.Rate.WindowSeconds != 3600 {
		t.Fatalf("untouched default changed: %d", cfg.Rate.WindowSeconds)
	}
	if cfg.Forward.URL != "http://localhost:9000/hook" {
		t.Fatalf("forward url not overlaid: %q", cfg.Forward.URL)
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "debounce:\n  windowMs: 250\n  maxEvents: 3\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Debounce.WindowMs != 250 || cfg.Debounce.MaxEvents != 3 {
		t.Fatalf("yaml not applied: %+v", cfg.Debounce)
	}
}

func TestFromEnvOverlay(t *testing.T) {
	t.Setenv("INFLOW_RATE_MAX_REQUESTS", "42")
	t.Setenv("INFLOW_ARCHIVE_ENABLED", "false")
	t.Setenv("INFLOW_WORKER_POLL_MS", "bogus")
	cfg := Default()
	FromEnv(&cfg)
	if cfg.Rate.MaxRequests != 42 {
		t.Fatalf("env int not applied: %d", cfg.Rate.MaxRequests)
	}
	if cfg.Archive.Enabled {
		t.Fatalf("env bool not applied")
	}
	if cfg.Worker.PollMs != 1000 {
		t.Fatalf("invalid env value should be ignored: %d", cfg.Worker.PollMs)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.Worker.Concurrency = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error for zero concurrency")
	}
}
