package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8080" || cfg.InlineThreshold != 65536 || cfg.ObjectStore.Backend != ObjectStoreBadger {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Live.QueueDepth != 32 || cfg.Compiler.Timeout != 10*time.Second {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if !cfg.IsDevelopment() {
		t.Fatal("empty FRONTEND_URL should be development")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "codespace.yaml")
	yml := `
port: "9000"
inline_threshold: 1024
object_store:
  backend: memory
compiler:
  url: http://compiler:3000/compile
  timeout: 3s
live:
  queue_depth: 4
`
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "9100")
	t.Setenv("SUBSCRIBER_QUEUE_DEPTH", "8")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "9100" {
		t.Errorf("env should win over file, got port %s", cfg.Port)
	}
	if cfg.InlineThreshold != 1024 || cfg.ObjectStore.Backend != ObjectStoreMemory {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.Compiler.URL != "http://compiler:3000/compile" || cfg.Compiler.Timeout != 3*time.Second {
		t.Errorf("compiler config not applied: %+v", cfg.Compiler)
	}
	if cfg.Live.QueueDepth != 8 {
		t.Errorf("expected queue depth 8, got %d", cfg.Live.QueueDepth)
	}
	if cfg.SlogLevel() != slog.LevelDebug {
		t.Errorf("expected debug level, got %v", cfg.SlogLevel())
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty port", func(c *Config) { c.Port = "" }},
		{"zero threshold", func(c *Config) { c.InlineThreshold = 0 }},
		{"unknown backend", func(c *Config) { c.ObjectStore.Backend = "s3" }},
		{"gcs without bucket", func(c *Config) { c.ObjectStore.Backend = ObjectStoreGCS }},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }},
		{"zero queue", func(c *Config) { c.Live.QueueDepth = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
	if err := Default().Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestMissingConfigFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
