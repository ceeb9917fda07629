// Formworks - Field Service Forms, Audit and Compliance
// Copyright 2026 Formworks Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/formworks/formworks

package threat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/formworks/formworks/internal/audit"
)

// PrivilegeEscalationConfig tunes the escalation-attempt rule.
type PrivilegeEscalationConfig struct {
	// Threshold is the denied-authorization count per actor that
	// triggers an alert.
	Threshold int `json:"threshold"`

	// WatchedRoles are the non-administrative roles whose denials are
	// considered escalation attempts.
	WatchedRoles []string `json:"watched_roles"`

	// EvidenceLimit bounds the evidence sample per alert.
	EvidenceLimit int `json:"evidence_limit"`
}

// DefaultPrivilegeEscalationConfig returns sensible defaults.
func DefaultPrivilegeEscalationConfig() PrivilegeEscalationConfig {
	return PrivilegeEscalationConfig{
		Threshold:     3,
		WatchedRoles:  []string{"technician", "manager"},
		EvidenceLimit: 6,
	}
}

// PrivilegeEscalationRule flags low-privilege actors that repeatedly
// fail authorization checks within the window.
type PrivilegeEscalationRule struct {
	config  PrivilegeEscalationConfig
	enabled bool
	mu      sync.RWMutex
}

// NewPrivilegeEscalationRule creates the rule with default configuration.
func NewPrivilegeEscalationRule() *PrivilegeEscalationRule {
	return &PrivilegeEscalationRule{
		config:  DefaultPrivilegeEscalationConfig(),
		enabled: true,
	}
}

// Type returns the alert type.
func (r *PrivilegeEscalationRule) Type() AlertType {
	return AlertPrivilegeEscalation
}

// Detect groups failed authorization events by actor and flags watched
// roles at or above the threshold.
func (r *PrivilegeEscalationRule) Detect(ctx context.Context, source EventSource, tenantID string, window Window) ([]*Alert, error) {
	r.mu.RLock()
	if !r.enabled {
		r.mu.RUnlock()
		return nil, nil
	}
	config := r.config
	r.mu.RUnlock()

	events, err := source.Query(ctx, audit.QueryFilter{
		TenantID:   tenantID,
		Categories: []audit.Category{audit.CategoryAuthorization},
		Statuses:   []audit.Status{audit.StatusFailure},
		StartTime:  &window.Start,
		EndTime:    &window.End,
		OrderBy:    "timestamp",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query authorization failures: %w", err)
	}

	watched := make(map[string]bool, len(config.WatchedRoles))
	for _, role := range config.WatchedRoles {
		watched[role] = true
	}

	byActor := make(map[string][]audit.Event)
	for i := range events {
		if !watched[events[i].Actor.UserRole] {
			continue
		}
		key := actorKey(&events[i])
		if key == "" {
			continue
		}
		byActor[key] = append(byActor[key], events[i])
	}

	var alerts []*Alert
	for _, group := range byActor {
		count := len(group)
		if count < config.Threshold {
			continue
		}

		actor := actorLabel(&group[0])
		alerts = append(alerts, &Alert{
			ID:         uuid.NewString(),
			TenantID:   tenantID,
			Type:       AlertPrivilegeEscalation,
			Severity:   audit.SeverityHigh,
			Confidence: 85,
			Title:      "Possible privilege escalation attempt",
			Description: fmt.Sprintf("%s (role %s) was denied authorization %d times within the analysis window",
				actor, group[0].Actor.UserRole, count),
			Indicators:   buildIndicators(group[0].Context.IPAddress, group[0].Actor.UserEmail),
			AffectedUser: actor,
			SourceIP:     group[0].Context.IPAddress,
			DetectedAt:   time.Now().UTC(),
			Evidence:     boundEvidence(group, config.EvidenceLimit),
		})
	}

	return alerts, nil
}

// Enabled returns whether this rule is enabled.
func (r *PrivilegeEscalationRule) Enabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.enabled
}

// SetEnabled enables or disables the rule.
func (r *PrivilegeEscalationRule) SetEnabled(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = enabled
}

// SetEvidenceLimit bounds the evidence sample per alert.
func (r *PrivilegeEscalationRule) SetEvidenceLimit(limit int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.config.EvidenceLimit = limit
}
