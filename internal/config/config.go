// Formworks - Field Service Forms, Audit and Compliance
// Copyright 2026 Formworks Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/formworks/formworks

package config

import (
	"fmt"
	"time"
)

// Config holds all application configuration.
//
// Configuration loading order (Koanf v2):
//  1. Defaults: built-in sensible defaults for all optional settings
//  2. Config file: optional YAML config file (config.yaml)
//  3. Environment variables: FORMWORKS_-prefixed overrides
//
// Config is immutable after Load() and safe for concurrent read access.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Audit     AuditConfig     `koanf:"audit"`
	Detection DetectionConfig `koanf:"detection"`
	Retention RetentionConfig `koanf:"retention"`
	Security  SecurityConfig  `koanf:"security"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`
}

// DatabaseConfig holds DuckDB settings.
type DatabaseConfig struct {
	// Path is the DuckDB database file. Empty means in-memory,
	// which is only suitable for tests.
	Path string `koanf:"path"`

	// MaxMemory caps DuckDB memory usage (e.g. "2GB").
	MaxMemory string `koanf:"max_memory"`

	// Threads limits DuckDB worker threads. 0 = runtime.NumCPU().
	Threads int `koanf:"threads"`
}

// AuditConfig holds audit ingestion settings.
type AuditConfig struct {
	// Enabled controls whether audit events are persisted at all.
	Enabled bool `koanf:"enabled"`

	// StoreTimeout bounds each audit store call; a timed-out call is
	// treated as a persistence failure.
	StoreTimeout time.Duration `koanf:"store_timeout"`

	// FailureAlertThreshold is the number of failed events from one
	// source address within FailureAlertWindow that triggers a
	// security audit event from the post-write check.
	FailureAlertThreshold int           `koanf:"failure_alert_threshold"`
	FailureAlertWindow    time.Duration `koanf:"failure_alert_window"`

	// MaxAgeDays is the platform-wide backstop for audit event expiry,
	// applied by the maintenance tick across all tenants. 0 keeps
	// events until a retention policy removes them.
	MaxAgeDays int `koanf:"max_age_days"`
}

// DetectionConfig holds threat detection settings.
type DetectionConfig struct {
	Enabled bool `koanf:"enabled"`

	// WindowHours is the default trailing window for sweeps.
	WindowHours int `koanf:"window_hours"`

	// ReadinessInterval is the cadence of the scheduler readiness tick.
	ReadinessInterval time.Duration `koanf:"readiness_interval"`

	// EvidenceLimit bounds the number of sample events attached to an alert.
	EvidenceLimit int `koanf:"evidence_limit"`
}

// RetentionConfig holds retention engine settings.
type RetentionConfig struct {
	Enabled bool `koanf:"enabled"`

	// SweepInterval is the cadence of the scheduled policy sweep.
	SweepInterval time.Duration `koanf:"sweep_interval"`

	// ArchiveDir is the root directory for archive files. Archives are
	// written under {archive_dir}/{tenant_id}/.
	ArchiveDir string `koanf:"archive_dir"`

	// HistoryPath is the badger directory for execution history.
	HistoryPath string `koanf:"history_path"`

	// HistoryRetentionDays is how long execution history entries live.
	HistoryRetentionDays int `koanf:"history_retention_days"`

	// MaintenanceInterval is the cadence of the maintenance tick
	// (stale temp archive cleanup, history compaction).
	MaintenanceInterval time.Duration `koanf:"maintenance_interval"`
}

// SecurityConfig holds authentication and rate limiting settings.
type SecurityConfig struct {
	// JWTSecret signs admin API tokens. Required outside development.
	JWTSecret string `koanf:"jwt_secret"`

	// AdminUsername and AdminPasswordHash (bcrypt) gate the login endpoint.
	AdminUsername     string `koanf:"admin_username"`
	AdminPasswordHash string `koanf:"admin_password_hash"`

	// TokenTTL is the lifetime of issued JWTs.
	TokenTTL time.Duration `koanf:"token_ttl"`

	// RateLimitReqs requests per RateLimitWindow per client IP.
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`

	CORSOrigins []string `koanf:"cors_origins"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Validate checks the configuration for inconsistencies that would
// surface as confusing runtime failures.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1..65535, got %d", c.Server.Port)
	}
	if c.Audit.StoreTimeout <= 0 {
		return fmt.Errorf("audit.store_timeout must be positive")
	}
	if c.Audit.FailureAlertThreshold < 1 {
		return fmt.Errorf("audit.failure_alert_threshold must be at least 1")
	}
	if c.Detection.WindowHours < 1 {
		return fmt.Errorf("detection.window_hours must be at least 1")
	}
	if c.Detection.EvidenceLimit < 1 {
		return fmt.Errorf("detection.evidence_limit must be at least 1")
	}
	if c.Retention.Enabled && c.Retention.ArchiveDir == "" {
		return fmt.Errorf("retention.archive_dir is required when retention is enabled")
	}
	if c.Retention.SweepInterval < time.Minute {
		return fmt.Errorf("retention.sweep_interval must be at least 1m")
	}
	if c.Security.JWTSecret != "" && len(c.Security.JWTSecret) < 32 {
		return fmt.Errorf("security.jwt_secret must be at least 32 bytes")
	}
	return nil
}
