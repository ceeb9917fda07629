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

// DataExfiltrationConfig tunes the bulk-export rule.
type DataExfiltrationConfig struct {
	// Threshold is the export count per actor that triggers an alert.
	Threshold int `json:"threshold"`

	// HighSeverityCount escalates the alert to high severity.
	HighSeverityCount int `json:"high_severity_count"`

	// EvidenceLimit bounds the evidence sample per alert.
	EvidenceLimit int `json:"evidence_limit"`
}

// DefaultDataExfiltrationConfig returns sensible defaults.
func DefaultDataExfiltrationConfig() DataExfiltrationConfig {
	return DataExfiltrationConfig{
		Threshold:         10,
		HighSeverityCount: 20,
		EvidenceLimit:     6,
	}
}

// DataExfiltrationRule flags actors performing an unusual volume of
// exports within the window.
type DataExfiltrationRule struct {
	config  DataExfiltrationConfig
	enabled bool
	mu      sync.RWMutex
}

// NewDataExfiltrationRule creates the rule with default configuration.
func NewDataExfiltrationRule() *DataExfiltrationRule {
	return &DataExfiltrationRule{
		config:  DefaultDataExfiltrationConfig(),
		enabled: true,
	}
}

// Type returns the alert type.
func (r *DataExfiltrationRule) Type() AlertType {
	return AlertDataExfiltration
}

// Detect groups export events by actor and flags actors at or above the
// threshold.
func (r *DataExfiltrationRule) Detect(ctx context.Context, source EventSource, tenantID string, window Window) ([]*Alert, error) {
	r.mu.RLock()
	if !r.enabled {
		r.mu.RUnlock()
		return nil, nil
	}
	config := r.config
	r.mu.RUnlock()

	events, err := source.Query(ctx, audit.QueryFilter{
		TenantID:  tenantID,
		Types:     []audit.EventType{audit.EventTypeExport},
		StartTime: &window.Start,
		EndTime:   &window.End,
		OrderBy:   "timestamp",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query export events: %w", err)
	}

	byActor := make(map[string][]audit.Event)
	for i := range events {
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

		severity := audit.SeverityMedium
		if count >= config.HighSeverityCount {
			severity = audit.SeverityHigh
		}

		actor := actorLabel(&group[0])
		alerts = append(alerts, &Alert{
			ID:         uuid.NewString(),
			TenantID:   tenantID,
			Type:       AlertDataExfiltration,
			Severity:   severity,
			Confidence: minInt(90, count*5),
			Title:      "Possible data exfiltration",
			Description: fmt.Sprintf("%s performed %d exports within the analysis window",
				actor, count),
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
func (r *DataExfiltrationRule) Enabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.enabled
}

// SetEnabled enables or disables the rule.
func (r *DataExfiltrationRule) SetEnabled(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = enabled
}

// SetEvidenceLimit bounds the evidence sample per alert.
func (r *DataExfiltrationRule) SetEvidenceLimit(limit int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.config.EvidenceLimit = limit
}
