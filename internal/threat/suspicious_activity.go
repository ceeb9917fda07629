// Formworks - Field Service Forms, Audit and Compliance
// Copyright 2026 Formworks Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/formworks/formworks

package threat

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/formworks/formworks/internal/audit"
)

// SuspiciousActivityConfig tunes the rapid-fire activity rule.
type SuspiciousActivityConfig struct {
	// RapidPairThreshold is the number of adjacent event pairs closer
	// than PairGap that triggers an alert.
	RapidPairThreshold int `json:"rapid_pair_threshold"`

	// PairGap is the maximum gap for a pair to count as rapid.
	PairGap time.Duration `json:"pair_gap"`

	// EvidenceLimit bounds the evidence sample per alert.
	EvidenceLimit int `json:"evidence_limit"`
}

// DefaultSuspiciousActivityConfig returns sensible defaults.
func DefaultSuspiciousActivityConfig() SuspiciousActivityConfig {
	return SuspiciousActivityConfig{
		RapidPairThreshold: 5,
		PairGap:            time.Second,
		EvidenceLimit:      6,
	}
}

// SuspiciousActivityRule flags actors generating events faster than a
// human plausibly could, indicating scripted access.
type SuspiciousActivityRule struct {
	config  SuspiciousActivityConfig
	enabled bool
	mu      sync.RWMutex
}

// NewSuspiciousActivityRule creates the rule with default configuration.
func NewSuspiciousActivityRule() *SuspiciousActivityRule {
	return &SuspiciousActivityRule{
		config:  DefaultSuspiciousActivityConfig(),
		enabled: true,
	}
}

// Type returns the alert type.
func (r *SuspiciousActivityRule) Type() AlertType {
	return AlertSuspiciousActivity
}

// Detect sorts each actor's events by timestamp and counts adjacent
// pairs closer than the configured gap.
func (r *SuspiciousActivityRule) Detect(ctx context.Context, source EventSource, tenantID string, window Window) ([]*Alert, error) {
	r.mu.RLock()
	if !r.enabled {
		r.mu.RUnlock()
		return nil, nil
	}
	config := r.config
	r.mu.RUnlock()

	events, err := source.Query(ctx, audit.QueryFilter{
		TenantID:  tenantID,
		StartTime: &window.Start,
		EndTime:   &window.End,
		OrderBy:   "timestamp",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
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
		sort.Slice(group, func(i, j int) bool {
			return group[i].Timestamp.Before(group[j].Timestamp)
		})

		rapidPairs := 0
		for i := 1; i < len(group); i++ {
			if group[i].Timestamp.Sub(group[i-1].Timestamp) < config.PairGap {
				rapidPairs++
			}
		}
		if rapidPairs < config.RapidPairThreshold {
			continue
		}

		actor := actorLabel(&group[0])
		alerts = append(alerts, &Alert{
			ID:         uuid.NewString(),
			TenantID:   tenantID,
			Type:       AlertSuspiciousActivity,
			Severity:   audit.SeverityMedium,
			Confidence: 70,
			Title:      "Suspicious rapid-fire activity",
			Description: fmt.Sprintf("%s produced %d event pairs under %s apart, suggesting scripted access",
				actor, rapidPairs, config.PairGap),
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
func (r *SuspiciousActivityRule) Enabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.enabled
}

// SetEnabled enables or disables the rule.
func (r *SuspiciousActivityRule) SetEnabled(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = enabled
}

// SetEvidenceLimit bounds the evidence sample per alert.
func (r *SuspiciousActivityRule) SetEvidenceLimit(limit int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.config.EvidenceLimit = limit
}
