// Formworks - Field Service Forms, Audit and Compliance
// Copyright 2026 Formworks Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/formworks/formworks

package audit

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore implements Store using in-memory storage.
// Suitable for development and testing. Data is lost on restart.
type MemoryStore struct {
	events []Event
	mu     sync.RWMutex
	maxLen int
}

// NewMemoryStore creates a new in-memory audit store.
func NewMemoryStore(maxLen int) *MemoryStore {
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &MemoryStore{
		events: make([]Event, 0, maxLen),
		maxLen: maxLen,
	}
}

// Save persists an audit event.
func (s *MemoryStore) Save(ctx context.Context, event *Event) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Enforce max length by dropping the oldest 10%
	if len(s.events) >= s.maxLen {
		removeCount := s.maxLen / 10
		if removeCount == 0 {
			removeCount = 1
		}
		s.events = s.events[removeCount:]
	}

	s.events = append(s.events, *event)
	return nil
}

// Get retrieves an event by ID within a tenant.
func (s *MemoryStore) Get(ctx context.Context, tenantID, id string) (*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.events {
		if s.events[i].TenantID == tenantID && s.events[i].ID == id {
			event := s.events[i]
			return &event, nil
		}
	}

	return nil, fmt.Errorf("event not found: %s", id)
}

// Query retrieves events matching the filter, ordered per OrderBy and
// OrderDesc the same way the DuckDB store orders them.
func (s *MemoryStore) Query(ctx context.Context, filter QueryFilter) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []Event
	for i := range s.events {
		if matchesFilter(&s.events[i], &filter) {
			results = append(results, s.events[i])
		}
	}

	sortEvents(results, filter.OrderBy, filter.OrderDesc)

	if filter.Offset > 0 {
		if filter.Offset >= len(results) {
			return nil, nil
		}
		results = results[filter.Offset:]
	}
	if filter.Limit > 0 && len(results) > filter.Limit {
		results = results[:filter.Limit]
	}

	return results, nil
}

// sortEvents orders events by the requested field. Unknown fields fall
// back to timestamp, matching the DuckDB store.
func sortEvents(events []Event, orderBy string, desc bool) {
	var less func(a, b *Event) bool
	switch orderBy {
	case "event_type":
		less = func(a, b *Event) bool { return a.Type < b.Type }
	case "category":
		less = func(a, b *Event) bool { return a.Category < b.Category }
	case "severity":
		less = func(a, b *Event) bool { return a.Severity < b.Severity }
	case "status":
		less = func(a, b *Event) bool { return a.Status < b.Status }
	case "user_id":
		less = func(a, b *Event) bool { return a.Actor.UserID < b.Actor.UserID }
	default:
		less = func(a, b *Event) bool { return a.Timestamp.Before(b.Timestamp) }
	}
	sort.SliceStable(events, func(i, j int) bool {
		if desc {
			return less(&events[j], &events[i])
		}
		return less(&events[i], &events[j])
	})
}

// matchesFilter returns true if the event matches all filter criteria.
//
//nolint:gocyclo // complexity inherent to multi-criteria filter matching
func matchesFilter(event *Event, filter *QueryFilter) bool {
	if filter.TenantID != "" && event.TenantID != filter.TenantID {
		return false
	}

	if len(filter.Types) > 0 && !containsValue(filter.Types, event.Type) {
		return false
	}
	if len(filter.Categories) > 0 && !containsValue(filter.Categories, event.Category) {
		return false
	}
	if len(filter.Severities) > 0 && !containsValue(filter.Severities, event.Severity) {
		return false
	}
	if len(filter.Statuses) > 0 && !containsValue(filter.Statuses, event.Status) {
		return false
	}

	if filter.UserID != "" && event.Actor.UserID != filter.UserID {
		return false
	}
	if filter.UserEmail != "" && event.Actor.UserEmail != filter.UserEmail {
		return false
	}

	if filter.EntityType != "" {
		if event.Target == nil || event.Target.EntityType != filter.EntityType {
			return false
		}
	}
	if filter.EntityID != "" {
		if event.Target == nil || event.Target.EntityID != filter.EntityID {
			return false
		}
	}

	if filter.IPAddress != "" && event.Context.IPAddress != filter.IPAddress {
		return false
	}
	if filter.CorrelationID != "" && event.CorrelationID != filter.CorrelationID {
		return false
	}
	if filter.ComplianceTag != "" && !event.HasTag(filter.ComplianceTag) {
		return false
	}

	if filter.StartTime != nil && event.Timestamp.Before(*filter.StartTime) {
		return false
	}
	if filter.EndTime != nil && event.Timestamp.After(*filter.EndTime) {
		return false
	}

	if filter.SearchText != "" {
		searchLower := strings.ToLower(filter.SearchText)
		if !strings.Contains(strings.ToLower(event.Description), searchLower) &&
			!strings.Contains(strings.ToLower(event.Action), searchLower) {
			return false
		}
	}

	return true
}

// containsValue reports whether a slice of string-typed values includes v.
func containsValue[T ~string](values []T, v T) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

// Count returns the number of events matching the filter.
func (s *MemoryStore) Count(ctx context.Context, filter QueryFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for i := range s.events {
		if matchesFilter(&s.events[i], &filter) {
			count++
		}
	}

	return count, nil
}

// Summarize aggregates event counts by category, type, status, and
// severity over a time range.
func (s *MemoryStore) Summarize(ctx context.Context, tenantID string, start, end time.Time) (*Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := &Summary{
		TenantID:   tenantID,
		StartTime:  start,
		EndTime:    end,
		ByCategory: make(map[string]int64),
		ByType:     make(map[string]int64),
		ByStatus:   make(map[string]int64),
		BySeverity: make(map[string]int64),
	}

	for i := range s.events {
		event := &s.events[i]
		if event.TenantID != tenantID {
			continue
		}
		if event.Timestamp.Before(start) || event.Timestamp.After(end) {
			continue
		}
		summary.TotalEvents++
		summary.ByCategory[string(event.Category)]++
		summary.ByType[string(event.Type)]++
		summary.ByStatus[string(event.Status)]++
		summary.BySeverity[string(event.Severity)]++
	}

	return summary, nil
}

// DeleteByIDs removes the identified events for a tenant.
func (s *MemoryStore) DeleteByIDs(ctx context.Context, tenantID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	idSet := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		idSet[id] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var kept []Event
	var deleted int64
	for idx := range s.events {
		event := &s.events[idx]
		if event.TenantID == tenantID {
			if _, ok := idSet[event.ID]; ok {
				deleted++
				continue
			}
		}
		kept = append(kept, *event)
	}

	s.events = kept
	return deleted, nil
}

// DeleteOlderThan removes events older than the given time across all
// tenants.
func (s *MemoryStore) DeleteOlderThan(ctx context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var kept []Event
	var deleted int64
	for idx := range s.events {
		if s.events[idx].Timestamp.Before(olderThan) {
			deleted++
		} else {
			kept = append(kept, s.events[idx])
		}
	}

	s.events = kept
	return deleted, nil
}

// Clear removes all events (for testing).
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = s.events[:0]
}

// Len returns the number of events in the store.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}
