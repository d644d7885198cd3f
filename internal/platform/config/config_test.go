package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Gateway.RequestTimeout != 8*time.Second {
		t.Errorf("Gateway.RequestTimeout = %v, want 8s", cfg.Gateway.RequestTimeout)
	}
	if len(cfg.Webhooks.Backoff) != 5 || cfg.Webhooks.Backoff[0] != 10*time.Second {
		t.Errorf("Webhooks.Backoff = %v", cfg.Webhooks.Backoff)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
gateway:
  webhook_token: from-file
  request_timeout: 5s
webhooks:
  url: http://n8n.local/hook
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("ZAPGATE_GATEWAY_WEBHOOK_TOKEN", "from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Gateway.WebhookToken != "from-env" {
		t.Errorf("WebhookToken = %q, want from-env", cfg.Gateway.WebhookToken)
	}
	if cfg.Gateway.RequestTimeout != 5*time.Second {
		t.Errorf("RequestTimeout = %v, want 5s", cfg.Gateway.RequestTimeout)
	}
	if cfg.Webhooks.URL != "http://n8n.local/hook" {
		t.Errorf("Webhooks.URL = %q", cfg.Webhooks.URL)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"https url", func(c *Config) { c.Webhooks.URL = "https://n8n.example.com/webhook" }, false},
		{"ftp url", func(c *Config) { c.Webhooks.URL = "ftp://n8n.example.com" }, true},
		{"no host", func(c *Config) { c.Webhooks.URL = "http://" }, true},
		{"zero backoff", func(c *Config) { c.Webhooks.Backoff = []time.Duration{time.Second, 0} }, true},
		{"unknown provider", func(c *Config) { c.Email.Provider = "sendgrid" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
