// Formworks - Field Service Forms, Audit and Compliance
// Copyright 2026 Formworks Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/formworks/formworks

// Package records stores the tenant-scoped platform entities that the
// retention engine manages: forms, reports, users, templates, and
// dashboards. Entity payloads are schemaless field maps; retention
// conditions are evaluated against them in Go rather than in SQL.
package records

import (
	"context"
	"time"
)

// EntityType identifies a retention-managed platform entity.
type EntityType string

const (
	EntityForm      EntityType = "form"
	EntityReport    EntityType = "report"
	EntityUser      EntityType = "user"
	EntityTemplate  EntityType = "template"
	EntityDashboard EntityType = "dashboard"
)

// ConcreteEntityTypes lists every concrete entity type, in the order
// an "all" retention sweep visits them.
func ConcreteEntityTypes() []EntityType {
	return []EntityType{EntityForm, EntityReport, EntityUser, EntityTemplate, EntityDashboard}
}

// ValidEntityType reports whether t names a concrete entity type.
func ValidEntityType(t EntityType) bool {
	switch t {
	case EntityForm, EntityReport, EntityUser, EntityTemplate, EntityDashboard:
		return true
	default:
		return false
	}
}

// Record is one tenant-scoped platform entity.
type Record struct {
	ID         string                 `json:"id"`
	TenantID   string                 `json:"tenant_id"`
	EntityType EntityType             `json:"entity_type"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
	UpdatedAt  time.Time              `json:"updated_at"`
}

// Store persists platform entity records.
type Store interface {
	// Save inserts or replaces a record.
	Save(ctx context.Context, record *Record) error

	// Get retrieves a record by ID within a tenant.
	Get(ctx context.Context, tenantID, id string) (*Record, error)

	// FindOlderThan returns a tenant's records of one entity type
	// created strictly before the cutoff, oldest first.
	FindOlderThan(ctx context.Context, tenantID string, entityType EntityType, cutoff time.Time) ([]Record, error)

	// DeleteByIDs removes the identified records for a tenant and
	// returns the number removed.
	DeleteByIDs(ctx context.Context, tenantID string, ids []string) (int64, error)

	// CountByType returns the number of records a tenant holds for an
	// entity type.
	CountByType(ctx context.Context, tenantID string, entityType EntityType) (int64, error)
}
