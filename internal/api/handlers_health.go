// Formworks - Field Service Forms, Audit and Compliance
// Copyright 2026 Formworks Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/formworks/formworks

package api

import (
	"context"
	"net/http"
	"time"
)

// Pinger checks the liveness of a backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandlers provides liveness and readiness endpoints.
type HealthHandlers struct {
	db      Pinger
	version string
	started time.Time
}

// NewHealthHandlers creates health handlers. db may be nil when
// running storeless (tests).
func NewHealthHandlers(db Pinger, version string) *HealthHandlers {
	return &HealthHandlers{db: db, version: version, started: time.Now()}
}

// Live handles GET /api/v1/health/live. Always returns 200 while the
// process is serving.
func (h *HealthHandlers) Live(w http.ResponseWriter, _ *http.Request) {
	respondData(w, http.StatusOK, map[string]interface{}{"status": "alive"})
}

// Ready handles GET /api/v1/health/ready. Fails when the database is
// unreachable.
func (h *HealthHandlers) Ready(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			respondError(w, http.StatusServiceUnavailable, "STORE_ERROR", "Database is not reachable", err)
			return
		}
	}
	respondData(w, http.StatusOK, map[string]interface{}{"status": "ready"})
}

// Health handles GET /api/v1/health. Reports version and uptime.
func (h *HealthHandlers) Health(w http.ResponseWriter, _ *http.Request) {
	respondData(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"version":        h.version,
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
	})
}
