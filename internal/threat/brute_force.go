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

// BruteForceConfig tunes the brute force rule.
type BruteForceConfig struct {
	// Threshold is the failure count per (source IP, email) pair that
	// triggers an alert.
	Threshold int `json:"threshold"`

	// EvidenceLimit bounds the evidence sample per alert.
	EvidenceLimit int `json:"evidence_limit"`
}

// DefaultBruteForceConfig returns sensible defaults.
func DefaultBruteForceConfig() BruteForceConfig {
	return BruteForceConfig{
		Threshold:     5,
		EvidenceLimit: 6,
	}
}

// BruteForceRule flags repeated failed authentication attempts from the
// same source address against the same account.
type BruteForceRule struct {
	config  BruteForceConfig
	enabled bool
	mu      sync.RWMutex
}

// NewBruteForceRule creates the rule with default configuration.
func NewBruteForceRule() *BruteForceRule {
	return &BruteForceRule{
		config:  DefaultBruteForceConfig(),
		enabled: true,
	}
}

// Type returns the alert type.
func (r *BruteForceRule) Type() AlertType {
	return AlertBruteForce
}

// Detect groups failed authentication events by (source IP, actor
// email) and flags groups at or above the threshold.
func (r *BruteForceRule) Detect(ctx context.Context, source EventSource, tenantID string, window Window) ([]*Alert, error) {
	r.mu.RLock()
	if !r.enabled {
		r.mu.RUnlock()
		return nil, nil
	}
	config := r.config
	r.mu.RUnlock()

	events, err := source.Query(ctx, audit.QueryFilter{
		TenantID:   tenantID,
		Categories: []audit.Category{audit.CategoryAuthentication},
		Statuses:   []audit.Status{audit.StatusFailure},
		StartTime:  &window.Start,
		EndTime:    &window.End,
		OrderBy:    "timestamp",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query authentication failures: %w", err)
	}

	type groupKey struct {
		ip    string
		email string
	}
	groups := make(map[groupKey][]audit.Event)
	for i := range events {
		key := groupKey{ip: events[i].Context.IPAddress, email: events[i].Actor.UserEmail}
		groups[key] = append(groups[key], events[i])
	}

	var alerts []*Alert
	for key, group := range groups {
		count := len(group)
		if count < config.Threshold {
			continue
		}

		alerts = append(alerts, &Alert{
			ID:         uuid.NewString(),
			TenantID:   tenantID,
			Type:       AlertBruteForce,
			Severity:   bruteForceSeverity(count),
			Confidence: minInt(95, count*10),
			Title:      "Brute force attack suspected",
			Description: fmt.Sprintf("%d failed authentication attempts from %s against %s within the analysis window",
				count, key.ip, key.email),
			Indicators:   buildIndicators(key.ip, key.email),
			AffectedUser: key.email,
			SourceIP:     key.ip,
			DetectedAt:   time.Now().UTC(),
			Evidence:     boundEvidence(group, config.EvidenceLimit),
		})
	}

	return alerts, nil
}

// bruteForceSeverity escalates with the failure count.
func bruteForceSeverity(count int) audit.Severity {
	switch {
	case count >= 50:
		return audit.SeverityCritical
	case count >= 20:
		return audit.SeverityHigh
	case count >= 10:
		return audit.SeverityMedium
	default:
		return audit.SeverityLow
	}
}

// buildIndicators collects the non-empty indicators.
func buildIndicators(values ...string) []string {
	var out []string
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// minInt returns the smaller of two ints.
func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// Enabled returns whether this rule is enabled.
func (r *BruteForceRule) Enabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.enabled
}

// SetEnabled enables or disables the rule.
func (r *BruteForceRule) SetEnabled(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = enabled
}

// SetEvidenceLimit bounds the evidence sample per alert.
func (r *BruteForceRule) SetEvidenceLimit(limit int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.config.EvidenceLimit = limit
}
