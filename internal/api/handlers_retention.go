// Formworks - Field Service Forms, Audit and Compliance
// Copyright 2026 Formworks Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/formworks/formworks

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/formworks/formworks/internal/retention"
)

// HistoryLister reads execution history for a policy, newest first.
// Satisfied by retention.BadgerHistory.
type HistoryLister interface {
	List(policyID string, limit int) ([]retention.ArchiveResult, error)
}

// RetentionHandlers provides HTTP handlers for retention policy
// management and execution.
type RetentionHandlers struct {
	policies retention.PolicyStore
	engine   *retention.Engine
	history  HistoryLister
}

// NewRetentionHandlers creates retention handlers. history may be nil;
// the history endpoint then returns an empty list.
func NewRetentionHandlers(policies retention.PolicyStore, engine *retention.Engine, history HistoryLister) *RetentionHandlers {
	return &RetentionHandlers{policies: policies, engine: engine, history: history}
}

// ListPolicies handles GET /api/v1/retention/policies.
func (h *RetentionHandlers) ListPolicies(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantFromRequest(r)
	if tenantID == "" {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Tenant ID is required", nil)
		return
	}

	policies, err := h.policies.List(r.Context(), tenantID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", "Failed to list retention policies", err)
		return
	}

	respondData(w, http.StatusOK, map[string]interface{}{
		"policies": policies,
		"count":    len(policies),
	})
}

// CreatePolicy handles POST /api/v1/retention/policies.
func (h *RetentionHandlers) CreatePolicy(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantFromRequest(r)
	if tenantID == "" {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Tenant ID is required", nil)
		return
	}

	var policy retention.Policy
	if err := decodeBody(r, &policy); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body", nil)
		return
	}

	// The URL tenant wins over whatever the body claims.
	policy.TenantID = tenantID
	policy.ID = ""

	if err := policy.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		return
	}

	if err := h.policies.Save(r.Context(), &policy); err != nil {
		if errors.Is(err, retention.ErrDuplicateName) {
			respondError(w, http.StatusConflict, "CONFLICT", "A policy with this name already exists for the tenant", err)
			return
		}
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", "Failed to save retention policy", err)
		return
	}

	respondData(w, http.StatusCreated, policy)
}

// GetPolicy handles GET /api/v1/retention/policies/{id}.
func (h *RetentionHandlers) GetPolicy(w http.ResponseWriter, r *http.Request) {
	policy, ok := h.loadPolicy(w, r)
	if !ok {
		return
	}
	respondData(w, http.StatusOK, policy)
}

// UpdatePolicy handles PUT /api/v1/retention/policies/{id}. The body
// replaces the stored policy except for identity and accumulated
// stats, which survive updates.
func (h *RetentionHandlers) UpdatePolicy(w http.ResponseWriter, r *http.Request) {
	existing, ok := h.loadPolicy(w, r)
	if !ok {
		return
	}

	var updated retention.Policy
	if err := decodeBody(r, &updated); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body", nil)
		return
	}

	updated.ID = existing.ID
	updated.TenantID = existing.TenantID
	updated.Stats = existing.Stats
	updated.CreatedAt = existing.CreatedAt

	if err := updated.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		return
	}

	if err := h.policies.Save(r.Context(), &updated); err != nil {
		if errors.Is(err, retention.ErrDuplicateName) {
			respondError(w, http.StatusConflict, "CONFLICT", "A policy with this name already exists for the tenant", err)
			return
		}
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", "Failed to save retention policy", err)
		return
	}

	respondData(w, http.StatusOK, updated)
}

// DeletePolicy handles DELETE /api/v1/retention/policies/{id}.
func (h *RetentionHandlers) DeletePolicy(w http.ResponseWriter, r *http.Request) {
	policy, ok := h.loadPolicy(w, r)
	if !ok {
		return
	}

	if err := h.policies.Delete(r.Context(), policy.TenantID, policy.ID); err != nil {
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", "Failed to delete retention policy", err)
		return
	}

	respondData(w, http.StatusOK, map[string]interface{}{"deleted": policy.ID})
}

// ExecutePolicy handles POST /api/v1/retention/policies/{id}/execute.
// Runs the policy immediately regardless of its schedule.
func (h *RetentionHandlers) ExecutePolicy(w http.ResponseWriter, r *http.Request) {
	if h.engine == nil {
		respondError(w, http.StatusServiceUnavailable, "RETENTION_ERROR", "Retention engine is disabled", nil)
		return
	}
	policy, ok := h.loadPolicy(w, r)
	if !ok {
		return
	}

	result, err := h.engine.ExecutePolicy(r.Context(), policy)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "RETENTION_ERROR", "Policy execution failed", err)
		return
	}

	respondData(w, http.StatusOK, result)
}

// DryRunPolicy handles POST /api/v1/retention/policies/{id}/dry-run.
// Reports what the policy would do without mutating anything.
func (h *RetentionHandlers) DryRunPolicy(w http.ResponseWriter, r *http.Request) {
	if h.engine == nil {
		respondError(w, http.StatusServiceUnavailable, "RETENTION_ERROR", "Retention engine is disabled", nil)
		return
	}
	policy, ok := h.loadPolicy(w, r)
	if !ok {
		return
	}

	result, err := h.engine.DryRun(r.Context(), policy)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "RETENTION_ERROR", "Policy dry run failed", err)
		return
	}

	respondData(w, http.StatusOK, result)
}

// togglePolicyRequest is the body of POST .../{id}/toggle.
type togglePolicyRequest struct {
	Enabled bool `json:"enabled"`
}

// TogglePolicy handles POST /api/v1/retention/policies/{id}/toggle.
func (h *RetentionHandlers) TogglePolicy(w http.ResponseWriter, r *http.Request) {
	policy, ok := h.loadPolicy(w, r)
	if !ok {
		return
	}

	var req togglePolicyRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body", nil)
		return
	}

	policy.Enabled = req.Enabled
	if err := h.policies.Save(r.Context(), policy); err != nil {
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", "Failed to save retention policy", err)
		return
	}

	respondData(w, http.StatusOK, policy)
}

// PolicyHistory handles GET /api/v1/retention/policies/{id}/history.
func (h *RetentionHandlers) PolicyHistory(w http.ResponseWriter, r *http.Request) {
	policy, ok := h.loadPolicy(w, r)
	if !ok {
		return
	}

	limit := getIntParam(r, "limit", 50)

	var (
		runs []retention.ArchiveResult
		err  error
	)
	if h.history != nil {
		runs, err = h.history.List(policy.ID, limit)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "STORE_ERROR", "Failed to read execution history", err)
			return
		}
	}
	if runs == nil {
		runs = []retention.ArchiveResult{}
	}

	respondData(w, http.StatusOK, map[string]interface{}{
		"policy_id": policy.ID,
		"runs":      runs,
		"count":     len(runs),
	})
}

// loadPolicy resolves the tenant and policy ID from the request and
// fetches the policy, writing the error response itself on failure.
func (h *RetentionHandlers) loadPolicy(w http.ResponseWriter, r *http.Request) (*retention.Policy, bool) {
	tenantID := tenantFromRequest(r)
	if tenantID == "" {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Tenant ID is required", nil)
		return nil, false
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Policy ID is required", nil)
		return nil, false
	}

	policy, err := h.policies.Get(r.Context(), tenantID, id)
	if err != nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Retention policy not found", nil)
		return nil, false
	}
	return policy, true
}
