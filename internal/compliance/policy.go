// Formworks - Field Service Forms, Audit and Compliance
// Copyright 2026 Formworks Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/formworks/formworks

// Package compliance scores batches of audit events against per-tenant
// rule sets and produces violation lists. The ingestion service calls
// into it after every write via the Checker.
package compliance

import (
	"time"

	"github.com/formworks/formworks/internal/audit"
)

// Rule flags audit events that indicate a compliance problem.
// Zero-valued scope fields match everything; a rule fires when all set
// scope fields match and the event's status or risk trips the limits.
type Rule struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// Scope. Empty values match any event.
	Category  audit.Category      `json:"category,omitempty"`
	EventType audit.EventType     `json:"event_type,omitempty"`
	Tag       audit.ComplianceTag `json:"tag,omitempty"`

	// Limits. An event violates the rule when its status equals
	// DisallowedStatus, or its risk level is at or above MaxRiskLevel.
	DisallowedStatus audit.Status    `json:"disallowed_status,omitempty"`
	MaxRiskLevel     audit.RiskLevel `json:"max_risk_level,omitempty"`

	// Weight is subtracted from the score per violation. Defaults by
	// event severity when zero.
	Weight int `json:"weight,omitempty"`
}

// Policy is a per-tenant compliance rule set.
type Policy struct {
	TenantID string `json:"tenant_id"`
	Name     string `json:"name"`
	Rules    []Rule `json:"rules"`
}

// Violation records one rule firing on one event.
type Violation struct {
	RuleName string         `json:"rule_name"`
	EventID  string         `json:"event_id"`
	Severity audit.Severity `json:"severity"`
	Reason   string         `json:"reason"`
}

// Report is the outcome of evaluating a batch of events.
type Report struct {
	TenantID        string      `json:"tenant_id"`
	PolicyName      string      `json:"policy_name"`
	Score           int         `json:"score"`
	EventsEvaluated int         `json:"events_evaluated"`
	Violations      []Violation `json:"violations"`
	GeneratedAt     time.Time   `json:"generated_at"`
}

// riskOrder ranks risk levels for threshold comparison.
var riskOrder = map[audit.RiskLevel]int{
	audit.RiskNone:     0,
	audit.RiskLow:      1,
	audit.RiskMedium:   2,
	audit.RiskHigh:     3,
	audit.RiskCritical: 4,
}

// severityWeight is the default score penalty per violation.
var severityWeight = map[audit.Severity]int{
	audit.SeverityLow:      2,
	audit.SeverityMedium:   5,
	audit.SeverityHigh:     10,
	audit.SeverityCritical: 15,
}

// DefaultPolicy returns the baseline rule set applied when a tenant has
// not configured its own.
func DefaultPolicy(tenantID string) *Policy {
	return &Policy{
		TenantID: tenantID,
		Name:     "baseline",
		Rules: []Rule{
			{
				Name:             "no-failed-authentication",
				Description:      "Failed authentication attempts indicate credential problems or attacks",
				Category:         audit.CategoryAuthentication,
				DisallowedStatus: audit.StatusFailure,
			},
			{
				Name:             "no-failed-security-events",
				Description:      "Failed security events must be investigated",
				Category:         audit.CategorySecurity,
				DisallowedStatus: audit.StatusFailure,
			},
			{
				Name:         "restricted-data-exports",
				Description:  "Exports of GDPR-tagged data carry elevated risk",
				EventType:    audit.EventTypeExport,
				Tag:          audit.TagGDPR,
				MaxRiskLevel: audit.RiskHigh,
			},
			{
				Name:             "no-failed-deletions",
				Description:      "Failed deletions may leave data past its retention period",
				EventType:        audit.EventTypeDelete,
				DisallowedStatus: audit.StatusFailure,
			},
		},
	}
}

// Evaluate scores a batch of events against the policy. The score
// starts at 100 and each violation subtracts its rule weight (or a
// severity-based default), floored at zero.
func (p *Policy) Evaluate(events []audit.Event) *Report {
	report := &Report{
		TenantID:        p.TenantID,
		PolicyName:      p.Name,
		Score:           100,
		EventsEvaluated: len(events),
		GeneratedAt:     time.Now().UTC(),
	}

	for i := range events {
		event := &events[i]
		for r := range p.Rules {
			rule := &p.Rules[r]
			if violation, ok := rule.check(event); ok {
				report.Violations = append(report.Violations, violation)
				report.Score -= rule.penalty(event.Severity)
			}
		}
	}

	if report.Score < 0 {
		report.Score = 0
	}
	return report
}

// check reports whether the event violates the rule.
func (r *Rule) check(event *audit.Event) (Violation, bool) {
	if r.Category != "" && event.Category != r.Category {
		return Violation{}, false
	}
	if r.EventType != "" && event.Type != r.EventType {
		return Violation{}, false
	}
	if r.Tag != "" && !event.HasTag(r.Tag) {
		return Violation{}, false
	}

	if r.DisallowedStatus != "" && event.Status == r.DisallowedStatus {
		return Violation{
			RuleName: r.Name,
			EventID:  event.ID,
			Severity: event.Severity,
			Reason:   "disallowed status " + string(event.Status),
		}, true
	}
	if r.MaxRiskLevel != "" && riskOrder[event.RiskLevel] >= riskOrder[r.MaxRiskLevel] {
		return Violation{
			RuleName: r.Name,
			EventID:  event.ID,
			Severity: event.Severity,
			Reason:   "risk level " + string(event.RiskLevel) + " at or above " + string(r.MaxRiskLevel),
		}, true
	}

	return Violation{}, false
}

// penalty returns the score deduction for one violation.
func (r *Rule) penalty(severity audit.Severity) int {
	if r.Weight > 0 {
		return r.Weight
	}
	if w, ok := severityWeight[severity]; ok {
		return w
	}
	return 2
}
