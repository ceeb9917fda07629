// Formworks - Field Service Forms, Audit and Compliance
// Copyright 2026 Formworks Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/formworks/formworks

// Package threat mines the recent audit trail for attack patterns. Five
// independent rules run over a trailing time window; alerts are computed
// fresh on every sweep, re-logged as security audit events, and returned
// to the caller. A rule failure never aborts the sweep.
package threat

import (
	"context"
	"time"

	"github.com/formworks/formworks/internal/audit"
)

// AlertType identifies the detection rule that produced an alert.
type AlertType string

const (
	AlertBruteForce          AlertType = "brute_force"
	AlertAnomalousAccess     AlertType = "anomalous_access"
	AlertSuspiciousActivity  AlertType = "suspicious_activity"
	AlertDataExfiltration    AlertType = "data_exfiltration"
	AlertPrivilegeEscalation AlertType = "privilege_escalation"
)

// Alert is a transient analytical output. Alerts are not persisted in
// their own store; each is re-expressed as an audit event of category
// security before being returned.
type Alert struct {
	ID          string         `json:"id"`
	TenantID    string         `json:"tenant_id"`
	Type        AlertType      `json:"type"`
	Severity    audit.Severity `json:"severity"`
	Confidence  int            `json:"confidence"`
	Title       string         `json:"title"`
	Description string         `json:"description"`

	// Indicators are the IPs and emails implicated by the rule.
	Indicators []string `json:"indicators,omitempty"`

	AffectedUser string    `json:"affected_user,omitempty"`
	SourceIP     string    `json:"source_ip,omitempty"`
	DetectedAt   time.Time `json:"detected_at"`

	// Evidence is a bounded sample of contributing events.
	Evidence []EvidenceEvent `json:"evidence,omitempty"`
}

// EvidenceEvent is a condensed view of one contributing audit event.
type EvidenceEvent struct {
	EventID   string    `json:"event_id"`
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	IPAddress string    `json:"ip_address,omitempty"`
	UserEmail string    `json:"user_email,omitempty"`
}

// Window is the trailing time range one sweep analyzes.
type Window struct {
	Start time.Time
	End   time.Time
}

// EventSource provides read access to the audit trail. The engine hands
// rules a circuit-breaker wrapped source so a struggling store trips
// fast instead of hanging every rule.
type EventSource interface {
	Query(ctx context.Context, filter audit.QueryFilter) ([]audit.Event, error)
}

// Rule is one detection rule. Rules are order-independent and must not
// mutate the events they read.
type Rule interface {
	// Type returns the alert type this rule produces.
	Type() AlertType

	// Detect runs the rule over the window and returns zero or more
	// alerts.
	Detect(ctx context.Context, source EventSource, tenantID string, window Window) ([]*Alert, error)

	// Enabled returns whether this rule is active.
	Enabled() bool

	// SetEnabled enables or disables the rule.
	SetEnabled(enabled bool)
}

// boundEvidence samples the first and last events of a contributing set
// so alert payload size stays predictable.
func boundEvidence(events []audit.Event, limit int) []EvidenceEvent {
	if limit <= 0 || len(events) == 0 {
		return nil
	}

	sample := events
	if len(events) > limit {
		head := limit / 2
		tail := limit - head
		sample = make([]audit.Event, 0, limit)
		sample = append(sample, events[:head]...)
		sample = append(sample, events[len(events)-tail:]...)
	}

	evidence := make([]EvidenceEvent, 0, len(sample))
	for i := range sample {
		e := &sample[i]
		evidence = append(evidence, EvidenceEvent{
			EventID:   e.ID,
			Timestamp: e.Timestamp,
			Action:    e.Action,
			IPAddress: e.Context.IPAddress,
			UserEmail: e.Actor.UserEmail,
		})
	}
	return evidence
}

// actorKey identifies an actor for grouping, preferring the user id.
func actorKey(e *audit.Event) string {
	if e.Actor.UserID != "" {
		return e.Actor.UserID
	}
	return e.Actor.UserEmail
}

// actorLabel returns a human-readable actor identifier for alerts.
func actorLabel(e *audit.Event) string {
	if e.Actor.UserEmail != "" {
		return e.Actor.UserEmail
	}
	return e.Actor.UserID
}
