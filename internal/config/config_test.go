package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_ValidConfigFile(t *testing.T) {
	cfg, err := Load("../../config")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.API.Port != 8080 {
		t.Errorf("expected API port 8080, got %d", cfg.API.Port)
	}
	if cfg.API.Addr() != "0.0.0.0:8080" {
		t.Errorf("expected addr 0.0.0.0:8080, got %s", cfg.API.Addr())
	}
	if cfg.API.ShutdownTimeout != 30*time.Second {
		t.Errorf("expected shutdown timeout 30s, got %v", cfg.API.ShutdownTimeout)
	}
	if cfg.Database.PoolMax != 10 {
		t.Errorf("expected pool max 10, got %d", cfg.Database.PoolMax)
	}
	if cfg.Database.ConnectTimeout != 5*time.Second {
		t.Errorf("expected connect timeout 5s, got %v", cfg.Database.ConnectTimeout)
	}
	if cfg.MailerSend.Endpoint != "https://api.mailersend.com" {
		t.Errorf("unexpected mailersend endpoint %s", cfg.MailerSend.Endpoint)
	}
	if cfg.MailerSend.Timeout != 30*time.Second {
		t.Errorf("expected mailersend timeout 30s, got %v", cfg.MailerSend.Timeout)
	}
	if cfg.Webhook.Path != "/webhooks/mailersend" {
		t.Errorf("unexpected webhook path %s", cfg.Webhook.Path)
	}
	if cfg.Webhook.SignatureHeader != "Mailersend-Signature" {
		t.Errorf("unexpected signature header %s", cfg.Webhook.SignatureHeader)
	}
	if cfg.Webhook.MaxBodyBytes != 1048576 {
		t.Errorf("expected max body 1048576, got %d", cfg.Webhook.MaxBodyBytes)
	}
	if cfg.Store.Collection != "email_requests" {
		t.Errorf("unexpected collection %s", cfg.Store.Collection)
	}
	if cfg.Trigger.Mode != TriggerNotify || cfg.Trigger.Channel != "email_requests_created" {
		t.Errorf("unexpected trigger %+v", cfg.Trigger)
	}
	if cfg.Trigger.SQSWaitTime != 20 {
		t.Errorf("expected sqs wait time 20, got %d", cfg.Trigger.SQSWaitTime)
	}
	if cfg.Archive.Type != "local" || cfg.Archive.S3Prefix != "webhooks/" {
		t.Errorf("unexpected archive %+v", cfg.Archive)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("unexpected logging %+v", cfg.Logging)
	}
}

func TestLoad_EnvironmentVariableOverride(t *testing.T) {
	t.Setenv("MAILBRIDGE_MAILERSEND_API_KEY", "mlsn.test")
	t.Setenv("MAILBRIDGE_WEBHOOK_SIGNING_SECRET", "whsec")
	t.Setenv("MAILBRIDGE_MAILERSEND_HEALTH_CHECK", "true")
	t.Setenv("MAILBRIDGE_TRIGGER_BLOCK_TIMEOUT", "2s")

	cfg, err := Load("../../config")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.MailerSend.APIKey != "mlsn.test" {
		t.Errorf("expected api key from env, got %q", cfg.MailerSend.APIKey)
	}
	if cfg.Webhook.SigningSecret != "whsec" {
		t.Errorf("expected signing secret from env, got %q", cfg.Webhook.SigningSecret)
	}
	if !cfg.MailerSend.HealthCheck {
		t.Error("expected health check enabled from env")
	}
	if cfg.Trigger.BlockTimeout != 2*time.Second {
		t.Errorf("expected block timeout 2s, got %v", cfg.Trigger.BlockTimeout)
	}
	if cfg.API.Port != 8080 {
		t.Errorf("expected API port from file, got %d", cfg.API.Port)
	}
}

func TestLoad_PartialConfigUsesDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	partial := `
logging:
  level: debug
`
	if err := os.WriteFile(filepath.Join(tmpDir, "config.yaml"), []byte(partial), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level debug, got %s", cfg.Logging.Level)
	}
	if cfg.API.Port != 8080 {
		t.Errorf("expected default API port 8080, got %d", cfg.API.Port)
	}
	if cfg.Webhook.Path != "" {
		t.Errorf("expected no default webhook path, got %q", cfg.Webhook.Path)
	}
	if cfg.Webhook.SignatureHeader != "Mailersend-Signature" {
		t.Errorf("expected default signature header, got %q", cfg.Webhook.SignatureHeader)
	}
	if !cfg.Trigger.InstallTrigger || cfg.Trigger.Channel != DefaultChannel {
		t.Errorf("expected notify trigger managed on %s by default, got %+v", DefaultChannel, cfg.Trigger)
	}
}

func TestLoad_EnvOverridesKeyMissingFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(tmpDir, "config.yaml"), []byte("api:\n  port: 9090\n"), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	t.Setenv("MAILBRIDGE_WEBHOOK_PATH", "/hooks/ms")

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Webhook.Path != "/hooks/ms" {
		t.Errorf("expected webhook path from env, got %q", cfg.Webhook.Path)
	}
}

func TestLoad_MissingConfigFile(t *testing.T) {
	if _, err := Load("/nonexistent/path"); err == nil {
		t.Error("expected error for missing config file, got nil")
	}
}

func validConfig() *Config {
	return &Config{
		Database:   DatabaseConfig{URL: "postgres://localhost/db"},
		MailerSend: MailerSendConfig{APIKey: "key"},
		Webhook:    WebhookConfig{Path: "/webhooks/mailersend", SignatureHeader: "Mailersend-Signature"},
		Trigger:    TriggerConfig{Mode: TriggerNotify, Channel: "email_requests_created"},
		Archive:    ArchiveConfig{Type: "none"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "missing database url", mutate: func(c *Config) { c.Database.URL = "" }, wantErr: "database.url"},
		{name: "missing api key", mutate: func(c *Config) { c.MailerSend.APIKey = "" }, wantErr: "mailersend.api_key"},
		{name: "empty webhook path", mutate: func(c *Config) { c.Webhook.Path = "" }, wantErr: "webhook.path is required"},
		{name: "relative webhook path", mutate: func(c *Config) { c.Webhook.Path = "hooks" }, wantErr: "must start with /"},
		{name: "unknown trigger", mutate: func(c *Config) { c.Trigger.Mode = "kafka" }, wantErr: "trigger.mode"},
		{name: "stream without group", mutate: func(c *Config) {
			c.Trigger = TriggerConfig{Mode: TriggerStream, Stream: "s"}
			c.Redis.Addr = "localhost:6379"
		}, wantErr: "trigger.group"},
		{name: "sqs without queue", mutate: func(c *Config) { c.Trigger = TriggerConfig{Mode: TriggerSQS} }, wantErr: "sqs_queue_url"},
		{name: "none trigger", mutate: func(c *Config) { c.Trigger = TriggerConfig{Mode: TriggerNone} }},
		{name: "local archive without path", mutate: func(c *Config) { c.Archive.Type = "local" }, wantErr: "archive.path"},
		{name: "s3 archive without bucket", mutate: func(c *Config) { c.Archive.Type = "s3" }, wantErr: "archive.s3_bucket"},
		{name: "unknown archive", mutate: func(c *Config) { c.Archive.Type = "ftp" }, wantErr: "archive.type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("expected no error, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	err := (&Config{}).Validate()
	if err == nil {
		t.Fatal("expected error for empty config")
	}
	for _, want := range []string{"database.url", "mailersend.api_key", "webhook.path", "trigger.mode"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in %v", want, err)
		}
	}
}
