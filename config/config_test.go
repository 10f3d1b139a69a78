package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  base_url: https://api.example.com
  socket_url: wss://api.example.com/ws
pipeline:
  stall_timeout: 45
  context_window: 10
monitor:
  enabled: true
  addr: localhost:7070
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("loading config: %v", err)
	}

	if cfg.Server.BaseURL != "https://api.example.com" {
		t.Errorf("base_url not applied, got %q", cfg.Server.BaseURL)
	}
	if cfg.Pipeline.GetStallTimeout() != 45*time.Second {
		t.Errorf("stall_timeout not applied, got %s", cfg.Pipeline.GetStallTimeout())
	}
	if cfg.Pipeline.ContextWindow != 10 {
		t.Errorf("context_window not applied, got %d", cfg.Pipeline.ContextWindow)
	}
	if !cfg.Monitor.Enabled || cfg.Monitor.Addr != "localhost:7070" {
		t.Errorf("monitor section not applied: %+v", cfg.Monitor)
	}

	// Untouched sections keep their defaults.
	if cfg.Audio.SampleRate != 44100 {
		t.Errorf("expected default sample rate, got %d", cfg.Audio.SampleRate)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "missing socket url",
			content: `
server:
  base_url: http://localhost:8080
  socket_url: ""
`,
			wantErr: "socket_url",
		},
		{
			name: "stereo capture",
			content: `
audio:
  channels: 2
`,
			wantErr: "mono",
		},
		{
			name: "zero stall timeout",
			content: `
pipeline:
  stall_timeout: 0
`,
			wantErr: "stall_timeout",
		},
		{
			name: "bad log level",
			content: `
logging:
  level: verbose
`,
			wantErr: "level",
		},
		{
			name: "recognition enabled without command",
			content: `
recognition:
  enabled: true
`,
			wantErr: "command",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.content)
			_, err := Load(path)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error mentioning %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
