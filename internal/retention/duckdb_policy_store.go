// Formworks - Field Service Forms, Audit and Compliance
// Copyright 2026 Formworks Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/formworks/formworks

package retention

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/formworks/formworks/internal/logging"
)

// DuckDBPolicyStore implements PolicyStore using DuckDB.
// The retention_policies table is created by the database package.
type DuckDBPolicyStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewDuckDBPolicyStore creates a new DuckDB-backed policy store.
func NewDuckDBPolicyStore(db *sql.DB) *DuckDBPolicyStore {
	return &DuckDBPolicyStore{db: db}
}

const insertPolicyQuery = `
	INSERT OR REPLACE INTO retention_policies (
		id, tenant_id, name, description, entity_type, enabled,
		legal_hold_enabled, legal_hold_exempt, legal_hold_reason,
		period_value, period_unit, conditions,
		archive_enabled, archive_format,
		frequency, day_of_week, day_of_month, hour, timezone,
		last_run_at, total_archived, total_deleted, total_archived_bytes,
		error_count, last_error,
		created_at, updated_at
	) VALUES (
		?, ?, ?, ?, ?, ?,
		?, ?, ?,
		?, ?, ?,
		?, ?,
		?, ?, ?, ?, ?,
		?, ?, ?, ?,
		?, ?,
		?, ?
	)
`

const selectPolicyColumns = `
	id, tenant_id, name, description, entity_type, enabled,
	legal_hold_enabled, legal_hold_exempt, legal_hold_reason,
	period_value, period_unit, conditions,
	archive_enabled, archive_format,
	frequency, day_of_week, day_of_month, hour, timezone,
	last_run_at, total_archived, total_deleted, total_archived_bytes,
	error_count, last_error,
	created_at, updated_at
`

// Save inserts or updates a policy. A missing ID is assigned.
func (s *DuckDBPolicyStore) Save(ctx context.Context, policy *Policy) error {
	if policy == nil {
		return fmt.Errorf("policy cannot be nil")
	}
	if err := policy.Validate(); err != nil {
		return err
	}

	if policy.ID == "" {
		policy.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if policy.CreatedAt.IsZero() {
		policy.CreatedAt = now
	}
	policy.UpdatedAt = now

	conditions := "[]"
	if len(policy.Conditions) > 0 {
		if data, err := json.Marshal(policy.Conditions); err == nil {
			conditions = string(data)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Writes are serialized by the store mutex, so check-then-insert
	// cannot race within this process.
	var existingID string
	err := s.db.QueryRowContext(ctx,
		"SELECT id FROM retention_policies WHERE tenant_id = ? AND name = ? AND id <> ?",
		policy.TenantID, policy.Name, policy.ID).Scan(&existingID)
	switch {
	case err == nil:
		return fmt.Errorf("%w: %s", ErrDuplicateName, policy.Name)
	case err != sql.ErrNoRows:
		return fmt.Errorf("failed to check policy name: %w", err)
	}

	_, err = s.db.ExecContext(ctx, insertPolicyQuery,
		policy.ID,
		policy.TenantID,
		policy.Name,
		policy.Description,
		string(policy.EntityType),
		policy.Enabled,
		policy.LegalHold.Enabled,
		policy.LegalHold.ExemptFromDeletion,
		policy.LegalHold.Reason,
		policy.Period.Value,
		string(policy.Period.Unit),
		conditions,
		policy.ArchiveBeforeDelete,
		string(policy.ArchiveFormat),
		string(policy.Schedule.Frequency),
		policy.Schedule.DayOfWeek,
		policy.Schedule.DayOfMonth,
		policy.Schedule.Hour,
		policy.Schedule.Timezone,
		nullableTime(policy.Stats.LastRunAt),
		policy.Stats.TotalArchived,
		policy.Stats.TotalDeleted,
		policy.Stats.TotalArchivedBytes,
		policy.Stats.ErrorCount,
		policy.Stats.LastError,
		policy.CreatedAt,
		policy.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save retention policy: %w", err)
	}
	return nil
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}

// Get retrieves a policy by ID within a tenant.
func (s *DuckDBPolicyStore) Get(ctx context.Context, tenantID, id string) (*Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := fmt.Sprintf("SELECT %s FROM retention_policies WHERE tenant_id = ? AND id = ?", selectPolicyColumns)
	policy, err := scanPolicy(s.db.QueryRowContext(ctx, query, tenantID, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("retention policy not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get retention policy: %w", err)
	}
	return policy, nil
}

// List returns a tenant's policies, ordered by name.
func (s *DuckDBPolicyStore) List(ctx context.Context, tenantID string) ([]Policy, error) {
	query := fmt.Sprintf("SELECT %s FROM retention_policies WHERE tenant_id = ? ORDER BY name", selectPolicyColumns)
	return s.queryPolicies(ctx, query, tenantID)
}

// ListAll returns every policy across tenants, ordered by name.
func (s *DuckDBPolicyStore) ListAll(ctx context.Context) ([]Policy, error) {
	query := fmt.Sprintf("SELECT %s FROM retention_policies ORDER BY name", selectPolicyColumns)
	return s.queryPolicies(ctx, query)
}

func (s *DuckDBPolicyStore) queryPolicies(ctx context.Context, query string, args ...interface{}) ([]Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query retention policies: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			logging.Warn().Err(cerr).Msg("Failed to close policy rows")
		}
	}()

	var out []Policy
	for rows.Next() {
		policy, err := scanPolicy(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan retention policy: %w", err)
		}
		out = append(out, *policy)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("policy iteration failed: %w", err)
	}
	return out, nil
}

// Delete removes a policy.
func (s *DuckDBPolicyStore) Delete(ctx context.Context, tenantID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx,
		"DELETE FROM retention_policies WHERE tenant_id = ? AND id = ?", tenantID, id)
	if err != nil {
		return fmt.Errorf("failed to delete retention policy: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to confirm policy deletion: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("retention policy not found: %s", id)
	}
	return nil
}

// UpdateStats replaces a policy's statistics block.
func (s *DuckDBPolicyStore) UpdateStats(ctx context.Context, tenantID, id string, stats Stats) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `
		UPDATE retention_policies SET
			last_run_at = ?, total_archived = ?, total_deleted = ?,
			total_archived_bytes = ?, error_count = ?, last_error = ?,
			updated_at = ?
		WHERE tenant_id = ? AND id = ?`,
		nullableTime(stats.LastRunAt),
		stats.TotalArchived,
		stats.TotalDeleted,
		stats.TotalArchivedBytes,
		stats.ErrorCount,
		stats.LastError,
		time.Now().UTC(),
		tenantID, id)
	if err != nil {
		return fmt.Errorf("failed to update policy stats: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to confirm stats update: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("retention policy not found: %s", id)
	}
	return nil
}

// rowScanner abstracts sql.Row and sql.Rows for shared scan logic.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanPolicy scans one row in selectPolicyColumns order.
func scanPolicy(row rowScanner) (*Policy, error) {
	var (
		policy         Policy
		description    sql.NullString
		entityType     string
		legalReason    sql.NullString
		periodUnit     string
		conditionsJSON sql.NullString
		archiveFormat  sql.NullString
		frequency      string
		dayOfWeek      sql.NullInt64
		dayOfMonth     sql.NullInt64
		timezone       sql.NullString
		lastRunAt      sql.NullTime
		lastError      sql.NullString
	)

	if err := row.Scan(
		&policy.ID,
		&policy.TenantID,
		&policy.Name,
		&description,
		&entityType,
		&policy.Enabled,
		&policy.LegalHold.Enabled,
		&policy.LegalHold.ExemptFromDeletion,
		&legalReason,
		&policy.Period.Value,
		&periodUnit,
		&conditionsJSON,
		&policy.ArchiveBeforeDelete,
		&archiveFormat,
		&frequency,
		&dayOfWeek,
		&dayOfMonth,
		&policy.Schedule.Hour,
		&timezone,
		&lastRunAt,
		&policy.Stats.TotalArchived,
		&policy.Stats.TotalDeleted,
		&policy.Stats.TotalArchivedBytes,
		&policy.Stats.ErrorCount,
		&lastError,
		&policy.CreatedAt,
		&policy.UpdatedAt,
	); err != nil {
		return nil, err
	}

	policy.Description = description.String
	policy.EntityType = EntityType(entityType)
	policy.LegalHold.Reason = legalReason.String
	policy.Period.Unit = PeriodUnit(periodUnit)
	policy.ArchiveFormat = ArchiveFormat(archiveFormat.String)
	policy.Schedule.Frequency = Frequency(frequency)
	policy.Schedule.DayOfWeek = int(dayOfWeek.Int64)
	policy.Schedule.DayOfMonth = int(dayOfMonth.Int64)
	policy.Schedule.Timezone = timezone.String
	policy.Stats.LastError = lastError.String
	if lastRunAt.Valid {
		t := lastRunAt.Time
		policy.Stats.LastRunAt = &t
	}

	if conditionsJSON.Valid && conditionsJSON.String != "" && conditionsJSON.String != "[]" {
		if err := json.Unmarshal([]byte(conditionsJSON.String), &policy.Conditions); err != nil {
			logging.Warn().Err(err).Str("policy_id", policy.ID).Msg("Failed to decode policy conditions")
		}
	}

	return &policy, nil
}
