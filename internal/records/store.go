// Formworks - Field Service Forms, Audit and Compliance
// Copyright 2026 Formworks Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/formworks/formworks

package records

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore implements Store using in-memory storage.
// Suitable for development and testing. Data is lost on restart.
type MemoryStore struct {
	records map[string]Record
	mu      sync.RWMutex
}

// NewMemoryStore creates a new in-memory record store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

// Save inserts or replaces a record.
func (s *MemoryStore) Save(ctx context.Context, record *Record) error {
	if record == nil {
		return fmt.Errorf("record cannot be nil")
	}
	if record.ID == "" || record.TenantID == "" {
		return fmt.Errorf("record ID and tenant ID are required")
	}
	if !ValidEntityType(record.EntityType) {
		return fmt.Errorf("invalid entity type: %s", record.EntityType)
	}

	stored := *record
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	stored.UpdatedAt = time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.ID] = stored
	return nil
}

// Get retrieves a record by ID within a tenant.
func (s *MemoryStore) Get(ctx context.Context, tenantID, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[id]
	if !ok || record.TenantID != tenantID {
		return nil, fmt.Errorf("record not found: %s", id)
	}
	return &record, nil
}

// FindOlderThan returns a tenant's records of one entity type created
// strictly before the cutoff, oldest first.
func (s *MemoryStore) FindOlderThan(ctx context.Context, tenantID string, entityType EntityType, cutoff time.Time) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []Record
	for _, record := range s.records {
		if record.TenantID != tenantID || record.EntityType != entityType {
			continue
		}
		if !record.CreatedAt.Before(cutoff) {
			continue
		}
		results = append(results, record)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].CreatedAt.Before(results[j].CreatedAt)
	})
	return results, nil
}

// DeleteByIDs removes the identified records for a tenant.
func (s *MemoryStore) DeleteByIDs(ctx context.Context, tenantID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for _, id := range ids {
		record, ok := s.records[id]
		if !ok || record.TenantID != tenantID {
			continue
		}
		delete(s.records, id)
		deleted++
	}
	return deleted, nil
}

// CountByType returns the number of records a tenant holds for an
// entity type.
func (s *MemoryStore) CountByType(ctx context.Context, tenantID string, entityType EntityType) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, record := range s.records {
		if record.TenantID == tenantID && record.EntityType == entityType {
			count++
		}
	}
	return count, nil
}

// Len returns the total number of records in the store.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
