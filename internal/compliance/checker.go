// Formworks - Field Service Forms, Audit and Compliance
// Copyright 2026 Formworks Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/formworks/formworks

package compliance

import (
	"context"
	"sync"

	"github.com/formworks/formworks/internal/audit"
	"github.com/formworks/formworks/internal/logging"
)

// Checker evaluates individual audit events against the owning
// tenant's policy. It implements the audit ingestion service's
// post-write compliance hook; violations are logged, never returned as
// ingestion failures.
type Checker struct {
	mu       sync.RWMutex
	policies map[string]*Policy
}

// NewChecker creates a checker with no tenant-specific policies; every
// tenant starts on the baseline policy.
func NewChecker() *Checker {
	return &Checker{
		policies: make(map[string]*Policy),
	}
}

// SetPolicy installs a tenant-specific policy.
func (c *Checker) SetPolicy(policy *Policy) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.policies[policy.TenantID] = policy
}

// PolicyFor returns the tenant's policy, falling back to the baseline.
func (c *Checker) PolicyFor(tenantID string) *Policy {
	c.mu.RLock()
	policy, ok := c.policies[tenantID]
	c.mu.RUnlock()
	if ok {
		return policy
	}
	return DefaultPolicy(tenantID)
}

// CheckEvent evaluates one event against the tenant's policy and logs
// any violations. It never returns an error for violations, only for
// infrastructure failures (of which there are currently none).
func (c *Checker) CheckEvent(ctx context.Context, event *audit.Event) error {
	policy := c.PolicyFor(event.TenantID)
	report := policy.Evaluate([]audit.Event{*event})

	for _, v := range report.Violations {
		logging.Warn().
			Str("tenant_id", event.TenantID).
			Str("event_id", v.EventID).
			Str("rule", v.RuleName).
			Str("severity", string(v.Severity)).
			Str("reason", v.Reason).
			Msg("Compliance violation detected")
	}

	return nil
}
