// Formworks - Field Service Forms, Audit and Compliance
// Copyright 2026 Formworks Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/formworks/formworks

/*
schema.go - Database Schema Management

Tables:
  - audit_events: tenant-partitioned audit trail (classification, actor,
    target, context, payload, outcome)
  - retention_policies: per-tenant data retention rules with schedule
    and lifetime statistics
  - entity_records: tenant-scoped records for the retention-managed
    entity types (form, report, user, template, dashboard); the entity
    payload is stored as JSON and filtered in Go

Schema Strategy:
All columns are defined in the initial CREATE TABLE statements. Single
source of truth, no migrations to run at startup.

Index Strategy:
Indexes cover the tenant-scoped query paths: audit queries filter by
tenant + timestamp, threat sweeps by tenant + category, retention
sweeps by tenant + entity_type + created_at.
*/

//nolint:staticcheck // File documentation, not package doc
package database

import (
	"context"
	"fmt"
	"time"
)

// schemaContext returns a context with timeout for schema operations
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// createTables creates the core database tables
func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range tableCreationQueries() {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %s: %w", query, err)
		}
	}
	return nil
}

// tableCreationQueries returns the table creation SQL statements
func tableCreationQueries() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS audit_events (
			id UUID PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			timestamp TIMESTAMP NOT NULL,

			-- Classification
			event_type TEXT NOT NULL,
			action TEXT NOT NULL,
			category TEXT NOT NULL,
			severity TEXT NOT NULL,
			risk_level TEXT NOT NULL,
			compliance_tags TEXT,
			data_classification TEXT,

			-- Actor
			user_id TEXT,
			user_email TEXT,
			user_name TEXT,
			user_role TEXT,
			session_id TEXT,

			-- Target
			entity_type TEXT,
			entity_id TEXT,
			entity_name TEXT,

			-- Request context
			ip_address TEXT,
			user_agent TEXT,
			http_method TEXT,
			http_path TEXT,
			correlation_id TEXT,

			-- Payload (JSON)
			description TEXT NOT NULL,
			details TEXT,
			before_state TEXT,
			after_state TEXT,

			-- Outcome
			status TEXT NOT NULL,
			error_message TEXT,
			duration_ms BIGINT,

			parent_event_id TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS retention_policies (
			id UUID PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT,
			entity_type TEXT NOT NULL,
			enabled BOOLEAN NOT NULL DEFAULT true,

			-- Legal hold
			legal_hold_enabled BOOLEAN NOT NULL DEFAULT false,
			legal_hold_exempt BOOLEAN NOT NULL DEFAULT false,
			legal_hold_reason TEXT,

			-- Retention period
			period_value INTEGER NOT NULL,
			period_unit TEXT NOT NULL,

			-- Conditions (JSON array)
			conditions TEXT,

			-- Archival
			archive_enabled BOOLEAN NOT NULL DEFAULT true,
			archive_format TEXT NOT NULL DEFAULT 'json',

			-- Schedule
			frequency TEXT NOT NULL,
			day_of_week INTEGER,
			day_of_month INTEGER,
			hour INTEGER NOT NULL DEFAULT 2,
			timezone TEXT NOT NULL DEFAULT 'UTC',

			-- Statistics
			last_run_at TIMESTAMP,
			total_archived BIGINT NOT NULL DEFAULT 0,
			total_deleted BIGINT NOT NULL DEFAULT 0,
			total_archived_bytes BIGINT NOT NULL DEFAULT 0,
			error_count BIGINT NOT NULL DEFAULT 0,
			last_error TEXT,

			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS entity_records (
			id UUID PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			entity_type TEXT NOT NULL,
			fields TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
	}
}

// createIndexes creates indexes for the common query paths
func (db *DB) createIndexes() error {
	ctx, cancel := schemaContext()
	defer cancel()

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_audit_tenant_timestamp ON audit_events(tenant_id, timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_tenant_category ON audit_events(tenant_id, category)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_tenant_severity ON audit_events(tenant_id, severity)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_user ON audit_events(tenant_id, user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_correlation ON audit_events(correlation_id)`,
		`CREATE INDEX IF NOT EXISTS idx_policies_tenant ON retention_policies(tenant_id)`,
		`CREATE INDEX IF NOT EXISTS idx_records_tenant_type_created ON entity_records(tenant_id, entity_type, created_at)`,
	}

	for _, query := range indexes {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to create index: %s: %w", query, err)
		}
	}
	return nil
}

// TableCounts returns row counts for the main tables, used by the
// health endpoint and maintenance logging.
func (db *DB) TableCounts(ctx context.Context) (events, policies, records int64, err error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	if err = db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_events").Scan(&events); err != nil {
		return 0, 0, 0, fmt.Errorf("failed to count audit events: %w", err)
	}
	if err = db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM retention_policies").Scan(&policies); err != nil {
		return events, 0, 0, fmt.Errorf("failed to count retention policies: %w", err)
	}
	if err = db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM entity_records").Scan(&records); err != nil {
		return events, policies, 0, fmt.Errorf("failed to count entity records: %w", err)
	}
	return events, policies, records, nil
}
