// Formworks - Field Service Forms, Audit and Compliance
// Copyright 2026 Formworks Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/formworks/formworks

// Package audit provides the append-only audit trail for every
// sensitive action in the platform. Events are classified at ingestion
// (severity, risk level, compliance tags), sanitized, and persisted to
// a tenant-partitioned store. The threat detection and retention
// engines read from the same store.
package audit

import (
	"context"
	"time"
)

// EventType categorizes the kind of action an event records.
type EventType string

const (
	EventTypeCreate EventType = "create"
	EventTypeRead   EventType = "read"
	EventTypeUpdate EventType = "update"
	EventTypeDelete EventType = "delete"
	EventTypeLogin  EventType = "login"
	EventTypeLogout EventType = "logout"
	EventTypeAccess EventType = "access"
	EventTypeExport EventType = "export"
	EventTypeImport EventType = "import"
	EventTypeAdmin  EventType = "admin"
	EventTypeSystem EventType = "system"
)

// Category groups events into functional areas.
type Category string

const (
	CategoryAuthentication Category = "authentication"
	CategoryAuthorization  Category = "authorization"
	CategoryData           Category = "data"
	CategoryUserManagement Category = "user_management"
	CategorySystem         Category = "system"
	CategorySecurity       Category = "security"
	CategoryCompliance     Category = "compliance"
	CategoryIntegration    Category = "integration"
)

// Severity indicates the severity level of an audit event.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// RiskLevel indicates the assessed risk of the recorded action.
type RiskLevel string

const (
	RiskNone     RiskLevel = "none"
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// ComplianceTag labels an event for regulatory reporting.
type ComplianceTag string

const (
	TagGDPR     ComplianceTag = "GDPR"
	TagSOX      ComplianceTag = "SOX"
	TagISO27001 ComplianceTag = "ISO27001"
)

// DataClassification indicates the sensitivity of the data involved.
type DataClassification string

const (
	ClassificationPublic       DataClassification = "public"
	ClassificationInternal     DataClassification = "internal"
	ClassificationConfidential DataClassification = "confidential"
	ClassificationRestricted   DataClassification = "restricted"
)

// Status indicates the outcome of the recorded action.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
	StatusWarning Status = "warning"
	StatusPending Status = "pending"
)

// Actor identifies who performed an action. All fields are optional;
// system-generated events have no actor.
type Actor struct {
	UserID    string `json:"user_id,omitempty"`
	UserEmail string `json:"user_email,omitempty"`
	UserName  string `json:"user_name,omitempty"`
	UserRole  string `json:"user_role,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// Target identifies the resource an action operated on.
type Target struct {
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id,omitempty"`
	EntityName string `json:"entity_name,omitempty"`
}

// RequestContext carries metadata about the originating request.
type RequestContext struct {
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	Endpoint  string `json:"endpoint,omitempty"`
	Method    string `json:"method,omitempty"`
}

// Event is one immutable audit record. Events are never mutated after
// creation; sanitization is applied once at write time.
type Event struct {
	// ID is a unique identifier for this event.
	ID string `json:"id"`

	// TenantID is the owning organization. Always set.
	TenantID string `json:"tenant_id"`

	// Timestamp is the event time, not the wall-clock of the write.
	Timestamp time.Time `json:"timestamp"`

	// Type categorizes the action.
	Type EventType `json:"event_type"`

	// Action is a free-text verb describing what was done.
	Action string `json:"action"`

	// Category groups the event into a functional area.
	Category Category `json:"category"`

	// Actor who performed the action.
	Actor Actor `json:"actor"`

	// Target of the action (optional).
	Target *Target `json:"target,omitempty"`

	// Context of the originating request.
	Context RequestContext `json:"context"`

	// Description is a required human-readable summary.
	Description string `json:"description"`

	// Details carries arbitrary structured payload, sanitized at write.
	Details map[string]interface{} `json:"details,omitempty"`

	// OldValues and NewValues are optional before/after snapshots for
	// updates, sanitized at write.
	OldValues map[string]interface{} `json:"old_values,omitempty"`
	NewValues map[string]interface{} `json:"new_values,omitempty"`

	// Classification outputs.
	Severity           Severity           `json:"severity"`
	RiskLevel          RiskLevel          `json:"risk_level"`
	ComplianceTags     []ComplianceTag    `json:"compliance_tags,omitempty"`
	DataClassification DataClassification `json:"data_classification,omitempty"`

	// Outcome.
	Status       Status `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
	DurationMS   int64  `json:"duration_ms,omitempty"`

	// CorrelationID links causally related events into one chain.
	CorrelationID string `json:"correlation_id,omitempty"`

	// ParentEventID references the event that caused this one.
	ParentEventID string `json:"parent_event_id,omitempty"`
}

// Store defines the interface for audit event persistence. All query
// and delete operations are scoped to a tenant.
type Store interface {
	// Save persists an audit event.
	Save(ctx context.Context, event *Event) error

	// Get retrieves an event by ID within a tenant.
	Get(ctx context.Context, tenantID, id string) (*Event, error)

	// Query retrieves events matching the filter.
	Query(ctx context.Context, filter QueryFilter) ([]Event, error)

	// Count returns the number of events matching the filter.
	Count(ctx context.Context, filter QueryFilter) (int64, error)

	// Summarize aggregates event counts by category, type, and status
	// over a time range.
	Summarize(ctx context.Context, tenantID string, start, end time.Time) (*Summary, error)

	// DeleteByIDs removes the identified events for a tenant and
	// returns the number removed. Used by the retention engine so the
	// deleted set is exactly the archived set.
	DeleteByIDs(ctx context.Context, tenantID string, ids []string) (int64, error)

	// DeleteOlderThan removes events older than the given time across
	// all tenants. Used by store-level expiry maintenance.
	DeleteOlderThan(ctx context.Context, olderThan time.Time) (int64, error)
}

// QueryFilter defines filtering options for audit queries. TenantID is
// required for all queries.
type QueryFilter struct {
	TenantID string `json:"tenant_id"`

	Types      []EventType `json:"types,omitempty"`
	Categories []Category  `json:"categories,omitempty"`
	Severities []Severity  `json:"severities,omitempty"`
	Statuses   []Status    `json:"statuses,omitempty"`

	UserID    string `json:"user_id,omitempty"`
	UserEmail string `json:"user_email,omitempty"`

	EntityType string `json:"entity_type,omitempty"`
	EntityID   string `json:"entity_id,omitempty"`

	IPAddress     string `json:"ip_address,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`

	// ComplianceTag filters events carrying the given tag.
	ComplianceTag ComplianceTag `json:"compliance_tag,omitempty"`

	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`

	// SearchText performs a case-insensitive search on description
	// and action.
	SearchText string `json:"search_text,omitempty"`

	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`

	OrderBy   string `json:"order_by,omitempty"`
	OrderDesc bool   `json:"order_desc,omitempty"`
}

// DefaultQueryFilter returns a sensible default filter for a tenant.
func DefaultQueryFilter(tenantID string) QueryFilter {
	return QueryFilter{
		TenantID:  tenantID,
		Limit:     100,
		OrderBy:   "timestamp",
		OrderDesc: true,
	}
}

// Summary aggregates event counts over a time range.
type Summary struct {
	TenantID    string           `json:"tenant_id"`
	StartTime   time.Time        `json:"start_time"`
	EndTime     time.Time        `json:"end_time"`
	TotalEvents int64            `json:"total_events"`
	ByCategory  map[string]int64 `json:"by_category"`
	ByType      map[string]int64 `json:"by_type"`
	ByStatus    map[string]int64 `json:"by_status"`
	BySeverity  map[string]int64 `json:"by_severity"`
}

// HasTag reports whether the event carries the given compliance tag.
func (e *Event) HasTag(tag ComplianceTag) bool {
	for _, t := range e.ComplianceTags {
		if t == tag {
			return true
		}
	}
	return false
}
