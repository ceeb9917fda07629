// Formworks - Field Service Forms, Audit and Compliance
// Copyright 2026 Formworks Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/formworks/formworks

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router wires handlers and middleware into the HTTP surface.
type Router struct {
	chiMiddleware *ChiMiddleware
	authenticator *Authenticator

	health    *HealthHandlers
	audit     *AuditHandlers
	threat    *ThreatHandlers
	retention *RetentionHandlers
}

// NewRouter assembles a router from its handler sets. Any handler set
// may be nil; its routes are then not registered.
func NewRouter(
	mw *ChiMiddleware,
	authenticator *Authenticator,
	health *HealthHandlers,
	auditHandlers *AuditHandlers,
	threatHandlers *ThreatHandlers,
	retentionHandlers *RetentionHandlers,
) *Router {
	if mw == nil {
		mw = NewChiMiddleware(nil)
	}
	return &Router{
		chiMiddleware: mw,
		authenticator: authenticator,
		health:        health,
		audit:         auditHandlers,
		threat:        threatHandlers,
		retention:     retentionHandlers,
	}
}

// Setup configures all routes and returns the root handler.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied to every route in order.
	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS())

	// Health endpoints. Permissive rate limiting so monitors can poll
	// frequently; no auth.
	if router.health != nil {
		r.Route("/api/v1/health", func(r chi.Router) {
			r.Use(router.chiMiddleware.RateLimitHealth())
			r.Use(APISecurityHeaders())
			r.Get("/", router.health.Health)
			r.Get("/live", router.health.Live)
			r.Get("/ready", router.health.Ready)
		})
	}

	// Login carries the strictest rate limit to slow brute force.
	if router.authenticator != nil {
		r.Route("/api/v1/auth", func(r chi.Router) {
			r.Use(router.chiMiddleware.RateLimitLogin())
			r.Use(APISecurityHeaders())
			r.Post("/login", router.authenticator.Login)
		})
	}

	// Audit trail endpoints.
	if router.audit != nil {
		r.Route("/api/v1/audit", func(r chi.Router) {
			r.Use(router.chiMiddleware.RateLimit())
			r.Use(APISecurityHeaders())
			r.Use(PrometheusMetrics())
			r.Use(router.requireAuth)

			r.Post("/events", router.audit.CreateEvent)
			r.Get("/events", router.audit.ListEvents)
			r.Get("/events/{id}", router.audit.GetEvent)
			r.Get("/summary", router.audit.Summary)
			r.Get("/security-alerts", router.audit.SecurityAlerts)
			r.Get("/compliance-report", router.audit.ComplianceReport)

			// Exports are resource intensive and get their own limit.
			r.With(router.chiMiddleware.RateLimitExport()).Get("/export", router.audit.Export)
		})
	}

	// Threat detection endpoints.
	if router.threat != nil {
		r.Route("/api/v1/threat", func(r chi.Router) {
			r.Use(router.chiMiddleware.RateLimit())
			r.Use(APISecurityHeaders())
			r.Use(PrometheusMetrics())
			r.Use(router.requireAuth)

			r.Post("/analyze", router.threat.Analyze)
			r.Get("/alerts", router.threat.RecentAlerts)
			r.Get("/rules", router.threat.ListRules)
			r.Post("/rules/{type}/enable", router.threat.SetRuleEnabled)
		})
	}

	// Retention policy management and execution.
	if router.retention != nil {
		r.Route("/api/v1/retention/policies", func(r chi.Router) {
			r.Use(router.chiMiddleware.RateLimit())
			r.Use(APISecurityHeaders())
			r.Use(PrometheusMetrics())
			r.Use(router.requireAuth)

			r.Get("/", router.retention.ListPolicies)
			r.Post("/", router.retention.CreatePolicy)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", router.retention.GetPolicy)
				r.Put("/", router.retention.UpdatePolicy)
				r.Delete("/", router.retention.DeletePolicy)
				r.Post("/execute", router.retention.ExecutePolicy)
				r.Post("/dry-run", router.retention.DryRunPolicy)
				r.Post("/toggle", router.retention.TogglePolicy)
				r.Get("/history", router.retention.PolicyHistory)
			})
		})
	}

	// Observability.
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// requireAuth applies bearer-token auth when an authenticator is
// configured, and is a pass-through otherwise.
func (router *Router) requireAuth(next http.Handler) http.Handler {
	if router.authenticator == nil {
		return next
	}
	return router.authenticator.RequireAuth(next)
}
