// Formworks - Field Service Forms, Audit and Compliance
// Copyright 2026 Formworks Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/formworks/formworks

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := defaultConfig()
	cfg.Security.JWTSecret = strings.Repeat("x", 32)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := defaultConfig()
		cfg.Security.JWTSecret = strings.Repeat("x", 32)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "valid",
			mutate:  func(*Config) {},
			wantErr: "",
		},
		{
			name:    "port too low",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: "port",
		},
		{
			name:    "port too high",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "port",
		},
		{
			name:    "negative timeout",
			mutate:  func(c *Config) { c.Server.Timeout = -time.Second },
			wantErr: "timeout",
		},
		{
			name:    "empty database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: "database",
		},
		{
			name:    "zero failure alert threshold",
			mutate:  func(c *Config) { c.Audit.FailureAlertThreshold = 0 },
			wantErr: "failure_alert_threshold",
		},
		{
			name:    "zero detection window",
			mutate:  func(c *Config) { c.Detection.WindowHours = 0 },
			wantErr: "window_hours",
		},
		{
			name:    "retention enabled without archive dir",
			mutate:  func(c *Config) { c.Retention.ArchiveDir = "" },
			wantErr: "archive_dir",
		},
		{
			name:    "sweep interval below minimum",
			mutate:  func(c *Config) { c.Retention.SweepInterval = 30 * time.Second },
			wantErr: "sweep_interval",
		},
		{
			name:    "short jwt secret",
			mutate:  func(c *Config) { c.Security.JWTSecret = "short" },
			wantErr: "jwt_secret",
		},
		{
			name: "retention disabled allows empty archive dir",
			mutate: func(c *Config) {
				c.Retention.Enabled = false
				c.Retention.ArchiveDir = ""
			},
			wantErr: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %q", tt.wantErr, err.Error())
			}
		})
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := []struct {
		env  string
		want string
	}{
		{"FORMWORKS_SERVER_PORT", "server.port"},
		{"FORMWORKS_SERVER_HOST", "server.host"},
		{"FORMWORKS_DATABASE_MAX_MEMORY", "database.max_memory"},
		{"FORMWORKS_AUDIT_FAILURE_ALERT_THRESHOLD", "audit.failure_alert_threshold"},
		{"FORMWORKS_RETENTION_ARCHIVE_DIR", "retention.archive_dir"},
		{"FORMWORKS_SECURITY_JWT_SECRET", "security.jwt_secret"},
		{"FORMWORKS_LOGGING_LEVEL", "logging.level"},
	}
	for _, tt := range tests {
		if got := envTransformFunc(tt.env); got != tt.want {
			t.Errorf("envTransformFunc(%q) = %q, want %q", tt.env, got, tt.want)
		}
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("FORMWORKS_SERVER_PORT", "9000")
	t.Setenv("FORMWORKS_LOGGING_LEVEL", "debug")
	t.Setenv("FORMWORKS_SECURITY_JWT_SECRET", strings.Repeat("s", 32))
	t.Setenv("FORMWORKS_SECURITY_CORS_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected level debug, got %s", cfg.Logging.Level)
	}
	want := []string{"https://a.example.com", "https://b.example.com"}
	if len(cfg.Security.CORSOrigins) != len(want) {
		t.Fatalf("expected %d CORS origins, got %v", len(want), cfg.Security.CORSOrigins)
	}
	for i, origin := range want {
		if cfg.Security.CORSOrigins[i] != origin {
			t.Errorf("CORS origin %d: got %q, want %q", i, cfg.Security.CORSOrigins[i], origin)
		}
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 8555
audit:
  failure_alert_threshold: 10
retention:
  sweep_interval: 2h
security:
  jwt_secret: "` + strings.Repeat("k", 32) + `"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 8555 {
		t.Errorf("expected port 8555, got %d", cfg.Server.Port)
	}
	if cfg.Audit.FailureAlertThreshold != 10 {
		t.Errorf("expected threshold 10, got %d", cfg.Audit.FailureAlertThreshold)
	}
	if cfg.Retention.SweepInterval != 2*time.Hour {
		t.Errorf("expected sweep interval 2h, got %s", cfg.Retention.SweepInterval)
	}
	// Defaults survive partial file overrides.
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("expected default host, got %s", cfg.Server.Host)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 8555
security:
  jwt_secret: "` + strings.Repeat("k", 32) + `"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("FORMWORKS_SERVER_PORT", "9999")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("env should override file: got port %d", cfg.Server.Port)
	}
}
