// Formworks - Field Service Forms, Audit and Compliance
// Copyright 2026 Formworks Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/formworks/formworks

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/formworks/formworks/internal/threat"
)

// ThreatHandlers provides HTTP handlers for the detection engine.
type ThreatHandlers struct {
	engine *threat.Engine
}

// NewThreatHandlers creates threat detection handlers.
func NewThreatHandlers(engine *threat.Engine) *ThreatHandlers {
	return &ThreatHandlers{engine: engine}
}

// Analyze handles POST /api/v1/threat/analyze. Runs a full detection
// sweep for the tenant over the trailing window and returns the fresh
// alerts.
func (h *ThreatHandlers) Analyze(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantFromRequest(r)
	if tenantID == "" {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Tenant ID is required", nil)
		return
	}

	windowHours := getIntParam(r, "window_hours", 0)

	alerts, err := h.engine.Analyze(r.Context(), tenantID, windowHours)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "DETECTION_ERROR", "Threat analysis failed", err)
		return
	}

	respondData(w, http.StatusOK, map[string]interface{}{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// RecentAlerts handles GET /api/v1/threat/alerts. Returns alerts from
// recent sweeps for the tenant, newest first.
func (h *ThreatHandlers) RecentAlerts(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantFromRequest(r)
	if tenantID == "" {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Tenant ID is required", nil)
		return
	}

	limit := getIntParam(r, "limit", 50)
	alerts := h.engine.RecentAlerts(tenantID, limit)

	respondData(w, http.StatusOK, map[string]interface{}{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// ruleView is the wire shape of one detection rule.
type ruleView struct {
	Type    threat.AlertType `json:"type"`
	Enabled bool             `json:"enabled"`
}

// ListRules handles GET /api/v1/threat/rules.
func (h *ThreatHandlers) ListRules(w http.ResponseWriter, _ *http.Request) {
	rules := h.engine.Rules()
	views := make([]ruleView, 0, len(rules))
	for _, rule := range rules {
		views = append(views, ruleView{Type: rule.Type(), Enabled: rule.Enabled()})
	}

	respondData(w, http.StatusOK, map[string]interface{}{"rules": views})
}

// setRuleRequest is the body of POST /api/v1/threat/rules/{type}/enable.
type setRuleRequest struct {
	Enabled bool `json:"enabled"`
}

// SetRuleEnabled handles POST /api/v1/threat/rules/{type}/enable.
func (h *ThreatHandlers) SetRuleEnabled(w http.ResponseWriter, r *http.Request) {
	ruleType := chi.URLParam(r, "type")
	if ruleType == "" {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Rule type is required", nil)
		return
	}

	var req setRuleRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body", nil)
		return
	}

	if !h.engine.SetRuleEnabled(threat.AlertType(ruleType), req.Enabled) {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Unknown rule type", nil)
		return
	}

	respondData(w, http.StatusOK, ruleView{
		Type:    threat.AlertType(ruleType),
		Enabled: req.Enabled,
	})
}
