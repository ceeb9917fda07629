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

// AnomalousAccessConfig tunes the off-hours access rule.
type AnomalousAccessConfig struct {
	// Threshold is the off-hours event count per actor that triggers
	// an alert.
	Threshold int `json:"threshold"`

	// BusinessStartHour and BusinessEndHour bound the working day
	// (inclusive start, exclusive end).
	BusinessStartHour int `json:"business_start_hour"`
	BusinessEndHour   int `json:"business_end_hour"`

	// EvidenceLimit bounds the evidence sample per alert.
	EvidenceLimit int `json:"evidence_limit"`
}

// DefaultAnomalousAccessConfig returns sensible defaults.
func DefaultAnomalousAccessConfig() AnomalousAccessConfig {
	return AnomalousAccessConfig{
		Threshold:         3,
		BusinessStartHour: 8,
		BusinessEndHour:   18,
		EvidenceLimit:     6,
	}
}

// AnomalousAccessRule flags actors reading or exporting data outside
// business hours. Each event is judged by its own timestamp, so a sweep
// running at noon still catches last night's activity.
type AnomalousAccessRule struct {
	config   AnomalousAccessConfig
	location *time.Location
	enabled  bool
	mu       sync.RWMutex
}

// NewAnomalousAccessRule creates the rule. location determines the
// business-hours clock; nil means UTC.
func NewAnomalousAccessRule(location *time.Location) *AnomalousAccessRule {
	if location == nil {
		location = time.UTC
	}
	return &AnomalousAccessRule{
		config:   DefaultAnomalousAccessConfig(),
		location: location,
		enabled:  true,
	}
}

// Type returns the alert type.
func (r *AnomalousAccessRule) Type() AlertType {
	return AlertAnomalousAccess
}

// Detect groups off-hours read/export data events by actor and flags
// actors at or above the threshold.
func (r *AnomalousAccessRule) Detect(ctx context.Context, source EventSource, tenantID string, window Window) ([]*Alert, error) {
	r.mu.RLock()
	if !r.enabled {
		r.mu.RUnlock()
		return nil, nil
	}
	config := r.config
	location := r.location
	r.mu.RUnlock()

	events, err := source.Query(ctx, audit.QueryFilter{
		TenantID:   tenantID,
		Categories: []audit.Category{audit.CategoryData},
		Types:      []audit.EventType{audit.EventTypeRead, audit.EventTypeAccess, audit.EventTypeExport},
		StartTime:  &window.Start,
		EndTime:    &window.End,
		OrderBy:    "timestamp",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query data access events: %w", err)
	}

	offHours := make(map[string][]audit.Event)
	for i := range events {
		event := &events[i]
		key := actorKey(event)
		if key == "" {
			continue
		}
		if isBusinessHours(event.Timestamp.In(location), config.BusinessStartHour, config.BusinessEndHour) {
			continue
		}
		offHours[key] = append(offHours[key], *event)
	}

	var alerts []*Alert
	for _, group := range offHours {
		count := len(group)
		if count < config.Threshold {
			continue
		}

		actor := actorLabel(&group[0])
		alerts = append(alerts, &Alert{
			ID:         uuid.NewString(),
			TenantID:   tenantID,
			Type:       AlertAnomalousAccess,
			Severity:   audit.SeverityMedium,
			Confidence: 75,
			Title:      "Anomalous off-hours data access",
			Description: fmt.Sprintf("%s accessed or exported data %d times outside business hours within the analysis window",
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

// isBusinessHours reports whether t falls inside the working day:
// startHour <= hour < endHour, Monday through Friday.
func isBusinessHours(t time.Time, startHour, endHour int) bool {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	hour := t.Hour()
	return hour >= startHour && hour < endHour
}

// Enabled returns whether this rule is enabled.
func (r *AnomalousAccessRule) Enabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.enabled
}

// SetEnabled enables or disables the rule.
func (r *AnomalousAccessRule) SetEnabled(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = enabled
}

// SetEvidenceLimit bounds the evidence sample per alert.
func (r *AnomalousAccessRule) SetEvidenceLimit(limit int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.config.EvidenceLimit = limit
}
