// Formworks - Field Service Forms, Audit and Compliance
// Copyright 2026 Formworks Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/formworks/formworks

package api

import (
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/formworks/formworks/internal/audit"
	"github.com/formworks/formworks/internal/compliance"
	"github.com/formworks/formworks/internal/models"
)

// AuditHandlers provides HTTP handlers for the audit trail endpoints.
type AuditHandlers struct {
	service    *audit.Service
	store      audit.Store
	compliance *compliance.Checker
}

// NewAuditHandlers creates audit handlers. The compliance checker may
// be nil; the compliance report endpoint then evaluates the default
// policy for each tenant.
func NewAuditHandlers(service *audit.Service, store audit.Store, checker *compliance.Checker) *AuditHandlers {
	if checker == nil {
		checker = compliance.NewChecker()
	}
	return &AuditHandlers{service: service, store: store, compliance: checker}
}

// CreateEventRequest is the body of POST /api/v1/audit/events. Actor
// fields ride alongside the event input because callers are trusted
// internal services that already authenticated the acting user.
type CreateEventRequest struct {
	Event audit.EventInput `json:"event"`

	UserID    string `json:"user_id,omitempty"`
	UserEmail string `json:"user_email,omitempty"`
	UserName  string `json:"user_name,omitempty"`
	UserRole  string `json:"user_role,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// CreateEvent handles POST /api/v1/audit/events.
func (h *AuditHandlers) CreateEvent(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantFromRequest(r)
	if tenantID == "" {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Tenant ID is required", nil)
		return
	}

	var req CreateEventRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body", nil)
		return
	}

	auditCtx := audit.ContextFromRequest(r, tenantID).
		WithActor(req.UserID, req.UserEmail, req.UserName, req.UserRole, req.SessionID)

	event, err := h.service.LogEvent(r.Context(), auditCtx, req.Event)
	if err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Failed to record event", err)
		return
	}

	respondData(w, http.StatusCreated, event)
}

// ListEvents handles GET /api/v1/audit/events.
func (h *AuditHandlers) ListEvents(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantFromRequest(r)
	if tenantID == "" {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Tenant ID is required", nil)
		return
	}

	filter := h.filterFromQuery(r, tenantID)

	events, err := h.store.Query(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", "Failed to fetch audit events", err)
		return
	}

	total, err := h.store.Count(r.Context(), filter)
	if err != nil {
		total = int64(len(events))
	}

	respondData(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"page": models.PageInfo{
			Limit:  filter.Limit,
			Offset: filter.Offset,
			Total:  total,
		},
	})
}

// filterFromQuery builds a tenant-scoped QueryFilter from the request
// query string.
func (h *AuditHandlers) filterFromQuery(r *http.Request, tenantID string) audit.QueryFilter {
	filter := audit.DefaultQueryFilter(tenantID)

	if limit := getIntParam(r, "limit", filter.Limit); limit > 0 {
		filter.Limit = limit
	}
	if offset := getIntParam(r, "offset", 0); offset >= 0 {
		filter.Offset = offset
	}

	q := r.URL.Query()
	for _, t := range q["type"] {
		filter.Types = append(filter.Types, audit.EventType(t))
	}
	for _, c := range q["category"] {
		filter.Categories = append(filter.Categories, audit.Category(c))
	}
	for _, s := range q["severity"] {
		filter.Severities = append(filter.Severities, audit.Severity(s))
	}
	for _, s := range q["status"] {
		filter.Statuses = append(filter.Statuses, audit.Status(s))
	}

	filter.UserID = q.Get("user_id")
	filter.UserEmail = q.Get("user_email")
	filter.EntityType = q.Get("entity_type")
	filter.EntityID = q.Get("entity_id")
	filter.IPAddress = q.Get("ip_address")
	filter.CorrelationID = q.Get("correlation_id")
	filter.SearchText = q.Get("search")

	if tag := q.Get("compliance_tag"); tag != "" {
		filter.ComplianceTag = audit.ComplianceTag(tag)
	}

	filter.StartTime = getTimeParam(r, "start_time")
	filter.EndTime = getTimeParam(r, "end_time")

	if orderBy := q.Get("order_by"); orderBy != "" {
		filter.OrderBy = orderBy
	}
	filter.OrderDesc = q.Get("order_direction") != "asc"

	return filter
}

// GetEvent handles GET /api/v1/audit/events/{id}.
func (h *AuditHandlers) GetEvent(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantFromRequest(r)
	if tenantID == "" {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Tenant ID is required", nil)
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Event ID is required", nil)
		return
	}

	event, err := h.store.Get(r.Context(), tenantID, id)
	if err != nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Event not found", nil)
		return
	}

	respondData(w, http.StatusOK, event)
}

// Summary handles GET /api/v1/audit/summary. Aggregates counts by
// category, type, status and severity over a date range that defaults
// to the trailing 30 days.
func (h *AuditHandlers) Summary(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantFromRequest(r)
	if tenantID == "" {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Tenant ID is required", nil)
		return
	}

	end := time.Now()
	start := end.AddDate(0, 0, -30)
	if t := getTimeParam(r, "start_time"); t != nil {
		start = *t
	}
	if t := getTimeParam(r, "end_time"); t != nil {
		end = *t
	}

	summary, err := h.store.Summarize(r.Context(), tenantID, start, end)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", "Failed to summarize audit events", err)
		return
	}

	respondData(w, http.StatusOK, summary)
}

// SecurityAlerts handles GET /api/v1/audit/security-alerts. Returns
// recent high-severity and failed events over a trailing window
// (default 24 hours).
func (h *AuditHandlers) SecurityAlerts(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantFromRequest(r)
	if tenantID == "" {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Tenant ID is required", nil)
		return
	}

	hours := getIntParam(r, "hours", 24)
	if hours <= 0 {
		hours = 24
	}
	limit := getIntParam(r, "limit", 100)
	start := time.Now().Add(-time.Duration(hours) * time.Hour)

	severe := audit.DefaultQueryFilter(tenantID)
	severe.StartTime = &start
	severe.Severities = []audit.Severity{audit.SeverityHigh, audit.SeverityCritical}
	severe.Limit = limit

	failed := audit.DefaultQueryFilter(tenantID)
	failed.StartTime = &start
	failed.Statuses = []audit.Status{audit.StatusFailure}
	failed.Limit = limit

	severeEvents, err := h.store.Query(r.Context(), severe)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", "Failed to fetch security alerts", err)
		return
	}
	failedEvents, err := h.store.Query(r.Context(), failed)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", "Failed to fetch security alerts", err)
		return
	}

	merged := mergeEvents(severeEvents, failedEvents, limit)

	respondData(w, http.StatusOK, map[string]interface{}{
		"alerts":       merged,
		"window_hours": hours,
		"count":        len(merged),
	})
}

// mergeEvents de-duplicates two event sets by ID, newest first,
// bounded to limit.
func mergeEvents(a, b []audit.Event, limit int) []audit.Event {
	seen := make(map[string]struct{}, len(a)+len(b))
	merged := make([]audit.Event, 0, len(a)+len(b))
	for _, set := range [][]audit.Event{a, b} {
		for _, e := range set {
			if _, ok := seen[e.ID]; ok {
				continue
			}
			seen[e.ID] = struct{}{}
			merged = append(merged, e)
		}
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp.After(merged[j].Timestamp)
	})
	if limit > 0 && len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}

// ComplianceReport handles GET /api/v1/audit/compliance-report. Events
// carrying the named compliance tag over a date range are grouped by
// severity and status and scored against the tenant's policy.
func (h *AuditHandlers) ComplianceReport(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantFromRequest(r)
	if tenantID == "" {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Tenant ID is required", nil)
		return
	}

	tag := r.URL.Query().Get("tag")
	if tag == "" {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Compliance tag is required", nil)
		return
	}

	filter := audit.DefaultQueryFilter(tenantID)
	filter.ComplianceTag = audit.ComplianceTag(tag)
	filter.Limit = audit.ExportCap
	filter.StartTime = getTimeParam(r, "start_time")
	filter.EndTime = getTimeParam(r, "end_time")

	events, err := h.store.Query(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", "Failed to fetch compliance events", err)
		return
	}

	report := h.compliance.PolicyFor(tenantID).Evaluate(events)

	bySeverity := make(map[string]int64)
	byStatus := make(map[string]int64)
	for i := range events {
		bySeverity[string(events[i].Severity)]++
		byStatus[string(events[i].Status)]++
	}

	respondData(w, http.StatusOK, map[string]interface{}{
		"tag":         tag,
		"total":       len(events),
		"by_severity": bySeverity,
		"by_status":   byStatus,
		"report":      report,
	})
}

// Export handles GET /api/v1/audit/export. Dumps filtered events as
// JSON or CSV, capped at 10,000 records.
func (h *AuditHandlers) Export(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantFromRequest(r)
	if tenantID == "" {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Tenant ID is required", nil)
		return
	}

	format := audit.ExportFormat(r.URL.Query().Get("format"))
	if format == "" {
		format = audit.ExportJSON
	}

	filter := h.filterFromQuery(r, tenantID)
	filter.Limit = audit.ExportCap

	data, err := audit.Export(r.Context(), h.store, filter, format)
	if err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Failed to export events", err)
		return
	}

	contentType := "application/json"
	filename := "audit-events.json"
	if format == audit.ExportCSV {
		contentType = "text/csv"
		filename = "audit-events.csv"
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // response write errors are not recoverable
	w.Write(data)
}
