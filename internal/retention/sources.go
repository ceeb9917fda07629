// Formworks - Field Service Forms, Audit and Compliance
// Copyright 2026 Formworks Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/formworks/formworks

package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/formworks/formworks/internal/audit"
	"github.com/formworks/formworks/internal/records"
)

// Source exposes one entity type's records to the retention engine.
type Source interface {
	// EntityType returns the type this source serves.
	EntityType() EntityType

	// FindExpired returns a tenant's records created strictly before
	// the cutoff, in entity-neutral form.
	FindExpired(ctx context.Context, tenantID string, cutoff time.Time) ([]ArchiveRecord, error)

	// Delete removes the identified records and returns the number
	// removed.
	Delete(ctx context.Context, tenantID string, ids []string) (int64, error)
}

// recordSource adapts the records store for one platform entity type.
type recordSource struct {
	store      records.Store
	entityType records.EntityType
}

// NewRecordSource creates a source over the records store.
func NewRecordSource(store records.Store, entityType records.EntityType) Source {
	return &recordSource{store: store, entityType: entityType}
}

func (s *recordSource) EntityType() EntityType {
	return EntityType(s.entityType)
}

func (s *recordSource) FindExpired(ctx context.Context, tenantID string, cutoff time.Time) ([]ArchiveRecord, error) {
	found, err := s.store.FindOlderThan(ctx, tenantID, s.entityType, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to load expired %s records: %w", s.entityType, err)
	}

	out := make([]ArchiveRecord, 0, len(found))
	for i := range found {
		out = append(out, ArchiveRecord{
			ID:         found[i].ID,
			TenantID:   found[i].TenantID,
			EntityType: EntityType(found[i].EntityType),
			CreatedAt:  found[i].CreatedAt,
			Fields:     found[i].Fields,
		})
	}
	return out, nil
}

func (s *recordSource) Delete(ctx context.Context, tenantID string, ids []string) (int64, error) {
	return s.store.DeleteByIDs(ctx, tenantID, ids)
}

// auditSource adapts the audit event store so retention policies can
// age out the audit trail itself.
type auditSource struct {
	store audit.Store
}

// NewAuditSource creates a source over the audit event store.
func NewAuditSource(store audit.Store) Source {
	return &auditSource{store: store}
}

func (s *auditSource) EntityType() EntityType {
	return EntityAuditLog
}

func (s *auditSource) FindExpired(ctx context.Context, tenantID string, cutoff time.Time) ([]ArchiveRecord, error) {
	// EndTime is inclusive; back off one tick for a strict cutoff.
	end := cutoff.Add(-time.Nanosecond)
	events, err := s.store.Query(ctx, audit.QueryFilter{
		TenantID: tenantID,
		EndTime:  &end,
		OrderBy:  "timestamp",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load expired audit events: %w", err)
	}

	out := make([]ArchiveRecord, 0, len(events))
	for i := range events {
		out = append(out, ArchiveRecord{
			ID:         events[i].ID,
			TenantID:   events[i].TenantID,
			EntityType: EntityAuditLog,
			CreatedAt:  events[i].Timestamp,
			Fields:     auditEventFields(&events[i]),
		})
	}
	return out, nil
}

func (s *auditSource) Delete(ctx context.Context, tenantID string, ids []string) (int64, error) {
	return s.store.DeleteByIDs(ctx, tenantID, ids)
}

// auditEventFields flattens an audit event for condition matching and
// archival.
func auditEventFields(e *audit.Event) map[string]interface{} {
	fields := map[string]interface{}{
		"event_type":  string(e.Type),
		"action":      e.Action,
		"category":    string(e.Category),
		"severity":    string(e.Severity),
		"risk_level":  string(e.RiskLevel),
		"status":      string(e.Status),
		"description": e.Description,
	}
	if e.Actor.UserID != "" {
		fields["user_id"] = e.Actor.UserID
	}
	if e.Actor.UserEmail != "" {
		fields["user_email"] = e.Actor.UserEmail
	}
	if e.Context.IPAddress != "" {
		fields["ip_address"] = e.Context.IPAddress
	}
	if e.CorrelationID != "" {
		fields["correlation_id"] = e.CorrelationID
	}
	return fields
}

// NewSourceSet builds the standard source registry over the two stores.
func NewSourceSet(recordStore records.Store, auditStore audit.Store) map[EntityType]Source {
	set := make(map[EntityType]Source)
	for _, et := range records.ConcreteEntityTypes() {
		src := NewRecordSource(recordStore, et)
		set[src.EntityType()] = src
	}
	auditSrc := NewAuditSource(auditStore)
	set[auditSrc.EntityType()] = auditSrc
	return set
}
