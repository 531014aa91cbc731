package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Addr != ":8080" {
		t.Errorf("Expected addr ':8080', got '%s'", cfg.Server.Addr)
	}
	if cfg.HTTP.Timeout != 30*time.Second {
		t.Errorf("Expected 30s HTTP timeout, got %s", cfg.HTTP.Timeout)
	}
	if cfg.Sync.DeleteLimit != 100 {
		t.Errorf("Expected delete limit 100, got %d", cfg.Sync.DeleteLimit)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should be valid: %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.GitHub.APIBase != "https://api.github.com/" {
		t.Errorf("Expected default GitHub base, got '%s'", cfg.GitHub.APIBase)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Expected log level info, got '%s'", cfg.Log.Level)
	}
}

func TestWriteDefaultRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".helpt", FileName)
	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault failed: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.ReadTimeout != 10*time.Second {
		t.Errorf("Expected 10s read timeout, got %s", cfg.Server.ReadTimeout)
	}
	if cfg.Trello.APIBase != "https://api.trello.com/1/" {
		t.Errorf("Expected default Trello base, got '%s'", cfg.Trello.APIBase)
	}
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	content := `server:
  addr: "127.0.0.1:9000"
sync:
  delete_limit: 5
  deactivate_unseen_users: true
http:
  timeout: 2m
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	t.Setenv("HELPT_SERVER_ADDR", ":7000")
	t.Setenv("HELPT_LOG_FORMAT", "json")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Addr != ":7000" {
		t.Errorf("Environment should override file, got '%s'", cfg.Server.Addr)
	}
	if cfg.Sync.DeleteLimit != 5 || !cfg.Sync.DeactivateUnseenUsers {
		t.Errorf("Sync settings not read from file: %+v", cfg.Sync)
	}
	if cfg.HTTP.Timeout != 2*time.Minute {
		t.Errorf("Expected 2m timeout, got %s", cfg.HTTP.Timeout)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("Expected json log format, got '%s'", cfg.Log.Format)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"negative delete limit", "sync:\n  delete_limit: -1\n"},
		{"unknown log format", "log:\n  format: xml\n"},
		{"malformed yaml", "server: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), FileName)
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatalf("Failed to write config: %v", err)
			}
			if _, err := Load(path); err == nil {
				t.Error("Load should fail")
			}
		})
	}
}
