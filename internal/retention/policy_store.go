// Formworks - Field Service Forms, Audit and Compliance
// Copyright 2026 Formworks Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/formworks/formworks

package retention

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryPolicyStore implements PolicyStore in memory.
// Suitable for development and testing. Data is lost on restart.
type MemoryPolicyStore struct {
	policies map[string]Policy
	mu       sync.RWMutex
}

// NewMemoryPolicyStore creates a new in-memory policy store.
func NewMemoryPolicyStore() *MemoryPolicyStore {
	return &MemoryPolicyStore{policies: make(map[string]Policy)}
}

// Save inserts or updates a policy. A missing ID is assigned.
func (s *MemoryPolicyStore) Save(ctx context.Context, policy *Policy) error {
	if policy == nil {
		return fmt.Errorf("policy cannot be nil")
	}
	if err := policy.Validate(); err != nil {
		return err
	}

	if policy.ID == "" {
		policy.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if policy.CreatedAt.IsZero() {
		policy.CreatedAt = now
	}
	policy.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.policies {
		if existing.TenantID == policy.TenantID && existing.Name == policy.Name && existing.ID != policy.ID {
			return fmt.Errorf("%w: %s", ErrDuplicateName, policy.Name)
		}
	}
	s.policies[policy.ID] = *policy
	return nil
}

// Get retrieves a policy by ID within a tenant.
func (s *MemoryPolicyStore) Get(ctx context.Context, tenantID, id string) (*Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	policy, ok := s.policies[id]
	if !ok || policy.TenantID != tenantID {
		return nil, fmt.Errorf("retention policy not found: %s", id)
	}
	return &policy, nil
}

// List returns a tenant's policies, ordered by name.
func (s *MemoryPolicyStore) List(ctx context.Context, tenantID string) ([]Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Policy
	for _, policy := range s.policies {
		if policy.TenantID == tenantID {
			out = append(out, policy)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ListAll returns every policy across tenants, ordered by name.
func (s *MemoryPolicyStore) ListAll(ctx context.Context) ([]Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Policy, 0, len(s.policies))
	for _, policy := range s.policies {
		out = append(out, policy)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Delete removes a policy.
func (s *MemoryPolicyStore) Delete(ctx context.Context, tenantID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	policy, ok := s.policies[id]
	if !ok || policy.TenantID != tenantID {
		return fmt.Errorf("retention policy not found: %s", id)
	}
	delete(s.policies, id)
	return nil
}

// UpdateStats replaces a policy's statistics block.
func (s *MemoryPolicyStore) UpdateStats(ctx context.Context, tenantID, id string, stats Stats) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	policy, ok := s.policies[id]
	if !ok || policy.TenantID != tenantID {
		return fmt.Errorf("retention policy not found: %s", id)
	}
	policy.Stats = stats
	policy.UpdatedAt = time.Now().UTC()
	s.policies[id] = policy
	return nil
}
