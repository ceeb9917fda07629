// Formworks - Field Service Forms, Audit and Compliance
// Copyright 2026 Formworks Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/formworks/formworks

package records

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/formworks/formworks/internal/logging"
)

// DuckDBStore implements Store using DuckDB for persistent storage.
// The entity_records table is created by the database package.
type DuckDBStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewDuckDBStore creates a new DuckDB-backed record store.
func NewDuckDBStore(db *sql.DB) *DuckDBStore {
	return &DuckDBStore{db: db}
}

const insertRecordQuery = `
	INSERT OR REPLACE INTO entity_records (
		id, tenant_id, entity_type, fields, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?)
`

const selectRecordColumns = `id, tenant_id, entity_type, fields, created_at, updated_at`

// Save inserts or replaces a record.
func (s *DuckDBStore) Save(ctx context.Context, record *Record) error {
	if record == nil {
		return fmt.Errorf("record cannot be nil")
	}
	if record.ID == "" || record.TenantID == "" {
		return fmt.Errorf("record ID and tenant ID are required")
	}
	if !ValidEntityType(record.EntityType) {
		return fmt.Errorf("invalid entity type: %s", record.EntityType)
	}

	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, insertRecordQuery,
		record.ID,
		record.TenantID,
		string(record.EntityType),
		marshalFields(record.Fields),
		createdAt.UTC(),
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}
	return nil
}

// marshalFields marshals the entity payload to a JSON object string.
func marshalFields(fields map[string]interface{}) string {
	if len(fields) == 0 {
		return "{}"
	}
	if data, err := json.Marshal(fields); err == nil {
		return string(data)
	}
	return "{}"
}

// Get retrieves a record by ID within a tenant.
func (s *DuckDBStore) Get(ctx context.Context, tenantID, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := fmt.Sprintf("SELECT %s FROM entity_records WHERE tenant_id = ? AND id = ?", selectRecordColumns)
	record, err := scanRecord(s.db.QueryRowContext(ctx, query, tenantID, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("record not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return record, nil
}

// FindOlderThan returns a tenant's records of one entity type created
// strictly before the cutoff, oldest first.
func (s *DuckDBStore) FindOlderThan(ctx context.Context, tenantID string, entityType EntityType, cutoff time.Time) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := fmt.Sprintf(`SELECT %s FROM entity_records
		WHERE tenant_id = ? AND entity_type = ? AND created_at < ?
		ORDER BY created_at ASC`, selectRecordColumns)

	rows, err := s.db.QueryContext(ctx, query, tenantID, string(entityType), cutoff.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			logging.Warn().Err(cerr).Msg("Failed to close record rows")
		}
	}()

	var results []Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		results = append(results, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("record iteration failed: %w", err)
	}
	return results, nil
}

// DeleteByIDs removes the identified records for a tenant.
func (s *DuckDBStore) DeleteByIDs(ctx context.Context, tenantID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, tenantID)
	for _, id := range ids {
		args = append(args, id)
	}

	query := fmt.Sprintf("DELETE FROM entity_records WHERE tenant_id = ? AND id IN (%s)", placeholders)
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete records: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted records: %w", err)
	}
	return deleted, nil
}

// CountByType returns the number of records a tenant holds for an
// entity type.
func (s *DuckDBStore) CountByType(ctx context.Context, tenantID string, entityType EntityType) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM entity_records WHERE tenant_id = ? AND entity_type = ?",
		tenantID, string(entityType)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return count, nil
}

// rowScanner abstracts sql.Row and sql.Rows for shared scan logic.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanRecord scans one row in selectRecordColumns order.
func scanRecord(row rowScanner) (*Record, error) {
	var (
		record     Record
		entityType string
		fieldsJSON sql.NullString
	)

	if err := row.Scan(
		&record.ID,
		&record.TenantID,
		&entityType,
		&fieldsJSON,
		&record.CreatedAt,
		&record.UpdatedAt,
	); err != nil {
		return nil, err
	}

	record.EntityType = EntityType(entityType)
	if fieldsJSON.Valid && fieldsJSON.String != "" {
		if err := json.Unmarshal([]byte(fieldsJSON.String), &record.Fields); err != nil {
			logging.Warn().Err(err).Str("record_id", record.ID).Msg("Failed to decode record fields")
		}
	}
	return &record, nil
}
