// Formworks - Field Service Forms, Audit and Compliance
// Copyright 2026 Formworks Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/formworks/formworks

// Package retention implements policy-driven archival and deletion of
// tenant data: platform entity records and the audit trail itself.
//
// A policy names an entity type (or "all"), a retention period, optional
// field conditions, an archive format, and a schedule. Execution archives
// expired records before deleting them; a legal hold exempts a policy's
// records from deletion entirely.
package retention

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// EntityType identifies what a policy applies to. The concrete platform
// entity types live in the records package; retention adds the audit
// trail and the "all" pseudo-type on top.
type EntityType string

const (
	EntityAll      EntityType = "all"
	EntityAuditLog EntityType = "audit_log"

	EntityForm      EntityType = "form"
	EntityReport    EntityType = "report"
	EntityUser      EntityType = "user"
	EntityTemplate  EntityType = "template"
	EntityDashboard EntityType = "dashboard"
)

// PeriodUnit is the unit a retention period is expressed in.
type PeriodUnit string

const (
	UnitDays   PeriodUnit = "days"
	UnitMonths PeriodUnit = "months"
	UnitYears  PeriodUnit = "years"
)

// Period is how long records are kept before becoming eligible for
// archival and deletion.
type Period struct {
	Value int        `json:"value" validate:"required,gt=0"`
	Unit  PeriodUnit `json:"unit" validate:"required,oneof=days months years"`
}

// CutoffFrom returns the eligibility cutoff relative to now. Records
// created strictly before the cutoff are eligible.
func (p Period) CutoffFrom(now time.Time) time.Time {
	switch p.Unit {
	case UnitDays:
		return now.AddDate(0, 0, -p.Value)
	case UnitMonths:
		return now.AddDate(0, -p.Value, 0)
	case UnitYears:
		return now.AddDate(-p.Value, 0, 0)
	default:
		return now.AddDate(0, 0, -p.Value)
	}
}

// Operator compares a record field against a condition value.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
	OpContains    Operator = "contains"
	OpExists      Operator = "exists"
)

// Condition narrows a policy to records whose fields match.
type Condition struct {
	Field    string      `json:"field" validate:"required"`
	Operator Operator    `json:"operator" validate:"required,oneof=equals not_equals greater_than less_than contains exists"`
	Value    interface{} `json:"value,omitempty"`
}

// LegalHold exempts a policy's records from deletion.
type LegalHold struct {
	Enabled            bool   `json:"enabled"`
	ExemptFromDeletion bool   `json:"exempt_from_deletion"`
	Reason             string `json:"reason,omitempty"`
}

// Blocks reports whether the hold prevents any deletion.
func (h LegalHold) Blocks() bool {
	return h.Enabled && h.ExemptFromDeletion
}

// Frequency is how often a policy's schedule fires.
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// Schedule determines when a policy is due to run.
type Schedule struct {
	Frequency Frequency `json:"frequency" validate:"required,oneof=daily weekly monthly"`

	// DayOfWeek applies to weekly schedules: 0 (Sunday) through 6.
	DayOfWeek int `json:"day_of_week,omitempty" validate:"gte=0,lte=6"`

	// DayOfMonth applies to monthly schedules: 1 through 28.
	DayOfMonth int `json:"day_of_month,omitempty" validate:"gte=0,lte=28"`

	// Hour is the wall-clock hour the policy runs at, 0 through 23.
	Hour int `json:"hour" validate:"gte=0,lte=23"`

	// Timezone is an IANA zone name the schedule is evaluated in.
	Timezone string `json:"timezone,omitempty"`
}

// Stats accumulates a policy's lifetime execution results.
type Stats struct {
	LastRunAt          *time.Time `json:"last_run_at,omitempty"`
	TotalArchived      int64      `json:"total_archived"`
	TotalDeleted       int64      `json:"total_deleted"`
	TotalArchivedBytes int64      `json:"total_archived_bytes"`
	ErrorCount         int64      `json:"error_count"`
	LastError          string     `json:"last_error,omitempty"`
}

// Policy is one tenant's retention rule for one entity type.
type Policy struct {
	ID          string      `json:"id"`
	TenantID    string      `json:"tenant_id" validate:"required"`
	Name        string      `json:"name" validate:"required,max=200"`
	Description string      `json:"description,omitempty"`
	EntityType  EntityType  `json:"entity_type" validate:"required"`
	Enabled     bool        `json:"enabled"`
	LegalHold   LegalHold   `json:"legal_hold"`
	Period      Period      `json:"period"`
	Conditions  []Condition `json:"conditions,omitempty"`

	// ArchiveBeforeDelete controls whether matching records are written
	// to an archive file before deletion.
	ArchiveBeforeDelete bool          `json:"archive_before_delete"`
	ArchiveFormat       ArchiveFormat `json:"archive_format,omitempty"`

	Schedule Schedule `json:"schedule"`
	Stats    Stats    `json:"stats"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the policy's structural invariants.
func (p *Policy) Validate() error {
	if p.TenantID == "" {
		return fmt.Errorf("tenant ID is required")
	}
	if p.Name == "" {
		return fmt.Errorf("policy name is required")
	}
	if !ValidPolicyEntityType(p.EntityType) {
		return fmt.Errorf("invalid entity type: %s", p.EntityType)
	}
	if p.Period.Value <= 0 {
		return fmt.Errorf("retention period must be positive")
	}
	switch p.Period.Unit {
	case UnitDays, UnitMonths, UnitYears:
	default:
		return fmt.Errorf("invalid period unit: %s", p.Period.Unit)
	}
	switch p.Schedule.Frequency {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
	default:
		return fmt.Errorf("invalid schedule frequency: %s", p.Schedule.Frequency)
	}
	if p.Schedule.Hour < 0 || p.Schedule.Hour > 23 {
		return fmt.Errorf("schedule hour must be 0-23")
	}
	if p.ArchiveBeforeDelete {
		switch p.ArchiveFormat {
		case FormatJSON, FormatCSV, FormatJSONGzip:
		default:
			return fmt.Errorf("invalid archive format: %s", p.ArchiveFormat)
		}
	}
	for _, c := range p.Conditions {
		if c.Field == "" {
			return fmt.Errorf("condition field is required")
		}
		switch c.Operator {
		case OpEquals, OpNotEquals, OpGreaterThan, OpLessThan, OpContains, OpExists:
		default:
			return fmt.Errorf("invalid condition operator: %s", c.Operator)
		}
	}
	return nil
}

// ValidPolicyEntityType reports whether t is usable in a policy,
// including the "all" pseudo-type.
func ValidPolicyEntityType(t EntityType) bool {
	switch t {
	case EntityAll, EntityAuditLog, EntityForm, EntityReport, EntityUser, EntityTemplate, EntityDashboard:
		return true
	default:
		return false
	}
}

// ConcreteEntityTypes lists the types an "all" policy expands to.
func ConcreteEntityTypes() []EntityType {
	return []EntityType{EntityForm, EntityReport, EntityUser, EntityTemplate, EntityDashboard, EntityAuditLog}
}

// ArchiveResult summarizes one policy execution.
type ArchiveResult struct {
	PolicyID         string     `json:"policy_id"`
	EntityType       EntityType `json:"entity_type"`
	RecordsProcessed int64      `json:"records_processed"`
	RecordsArchived  int64      `json:"records_archived"`
	RecordsDeleted   int64      `json:"records_deleted"`
	ArchiveSize      int64      `json:"archive_size"`
	ArchiveLocation  string     `json:"archive_location,omitempty"`
	Error            string     `json:"error,omitempty"`
	ExecutedAt       time.Time  `json:"executed_at"`
	DryRun           bool       `json:"dry_run,omitempty"`
}

// merge folds a per-entity-type result into an aggregate, used by "all"
// policies.
func (r *ArchiveResult) merge(other *ArchiveResult) {
	r.RecordsProcessed += other.RecordsProcessed
	r.RecordsArchived += other.RecordsArchived
	r.RecordsDeleted += other.RecordsDeleted
	r.ArchiveSize += other.ArchiveSize
	if other.ArchiveLocation != "" {
		if r.ArchiveLocation != "" {
			r.ArchiveLocation += ";"
		}
		r.ArchiveLocation += other.ArchiveLocation
	}
}

// ErrDuplicateName is returned by Save when another policy in the same
// tenant already uses the name. Policy names are unique per tenant.
var ErrDuplicateName = errors.New("retention: policy name already in use for tenant")

// PolicyStore persists retention policies.
type PolicyStore interface {
	// Save inserts or updates a policy. Saving a policy whose name is
	// already taken by a different policy of the same tenant returns
	// ErrDuplicateName.
	Save(ctx context.Context, policy *Policy) error

	// Get retrieves a policy by ID within a tenant.
	Get(ctx context.Context, tenantID, id string) (*Policy, error)

	// List returns a tenant's policies.
	List(ctx context.Context, tenantID string) ([]Policy, error)

	// ListAll returns every policy across tenants, for scheduled runs.
	ListAll(ctx context.Context) ([]Policy, error)

	// Delete removes a policy.
	Delete(ctx context.Context, tenantID, id string) error

	// UpdateStats replaces a policy's statistics block.
	UpdateStats(ctx context.Context, tenantID, id string, stats Stats) error
}
