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

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/formworks/formworks/internal/audit"
	"github.com/formworks/formworks/internal/logging"
	"github.com/formworks/formworks/internal/metrics"
)

// maxRetainedAlerts bounds the in-memory alert history.
const maxRetainedAlerts = 1000

// AlertLogger persists generated alerts to the audit trail.
type AlertLogger interface {
	LogSecurityEvent(ctx context.Context, auditCtx *audit.Context, action, description string, severity audit.Severity, details map[string]interface{}) (*audit.Event, error)
}

// Engine runs the detection rules over a tenant's audit trail.
//
// Store reads go through a circuit breaker so a degraded store trips
// fast instead of stalling every rule in a sweep.
type Engine struct {
	source  EventSource
	alerter AlertLogger
	rules   []Rule

	mu     sync.RWMutex
	recent []*Alert
}

// breakerSource wraps an audit store's query path with a circuit breaker.
type breakerSource struct {
	store   audit.Store
	breaker *gobreaker.CircuitBreaker[[]audit.Event]
}

func (b *breakerSource) Query(ctx context.Context, filter audit.QueryFilter) ([]audit.Event, error) {
	return b.breaker.Execute(func() ([]audit.Event, error) {
		return b.store.Query(ctx, filter)
	})
}

// NewEngine creates an engine with the standard rule set. The alerter
// may be nil, in which case alerts are not written back to the audit
// trail. businessHours controls the timezone the anomalous-access rule
// evaluates event timestamps in; nil means UTC.
func NewEngine(store audit.Store, alerter AlertLogger, businessHours *time.Location) *Engine {
	breaker := gobreaker.NewCircuitBreaker[[]audit.Event](gobreaker.Settings{
		Name:    "threat-event-source",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Threat event source circuit breaker state changed")
		},
	})

	return &Engine{
		source:  &breakerSource{store: store, breaker: breaker},
		alerter: alerter,
		rules: []Rule{
			NewBruteForceRule(),
			NewAnomalousAccessRule(businessHours),
			NewSuspiciousActivityRule(),
			NewDataExfiltrationRule(),
			NewPrivilegeEscalationRule(),
		},
	}
}

// NewEngineWithRules creates an engine over an explicit rule set and
// event source. Used by tests and callers that manage their own rules.
func NewEngineWithRules(source EventSource, alerter AlertLogger, rules ...Rule) *Engine {
	return &Engine{source: source, alerter: alerter, rules: rules}
}

// Analyze runs every enabled rule over the trailing window ending now.
// A single rule's failure is logged and counted but never aborts the
// sweep; the remaining rules still run.
func (e *Engine) Analyze(ctx context.Context, tenantID string, windowHours int) ([]*Alert, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant ID is required")
	}
	if windowHours <= 0 {
		windowHours = 24
	}

	start := time.Now()
	end := start.UTC()
	window := Window{Start: end.Add(-time.Duration(windowHours) * time.Hour), End: end}

	var alerts []*Alert
	for _, rule := range e.rules {
		ruleAlerts, err := rule.Detect(ctx, e.source, tenantID, window)
		if err != nil {
			metrics.ThreatRuleErrors.WithLabelValues(string(rule.Type())).Inc()
			logging.Error().
				Err(err).
				Str("rule", string(rule.Type())).
				Str("tenant_id", tenantID).
				Msg("Threat detection rule failed")
			continue
		}
		alerts = append(alerts, ruleAlerts...)
	}

	for _, alert := range alerts {
		metrics.ThreatAlertsGenerated.WithLabelValues(string(alert.Type), string(alert.Severity)).Inc()
		e.logAlert(ctx, alert)
	}
	e.retain(alerts)

	metrics.ThreatSweepDuration.Observe(time.Since(start).Seconds())

	logging.Info().
		Str("tenant_id", tenantID).
		Int("window_hours", windowHours).
		Int("alerts", len(alerts)).
		Dur("duration", time.Since(start)).
		Msg("Threat analysis completed")

	return alerts, nil
}

// logAlert writes the alert back into the audit trail as a security
// event so alerts survive restarts and show up in compliance reports.
func (e *Engine) logAlert(ctx context.Context, alert *Alert) {
	if e.alerter == nil {
		return
	}

	details := map[string]interface{}{
		"alert_id":   alert.ID,
		"alert_type": string(alert.Type),
		"confidence": alert.Confidence,
		"indicators": alert.Indicators,
	}
	if alert.AffectedUser != "" {
		details["affected_user"] = alert.AffectedUser
	}
	if alert.SourceIP != "" {
		details["source_ip"] = alert.SourceIP
	}

	auditCtx := &audit.Context{TenantID: alert.TenantID}
	if _, err := e.alerter.LogSecurityEvent(ctx, auditCtx, "threat_detected", alert.Description, alert.Severity, details); err != nil {
		logging.Error().
			Err(err).
			Str("alert_id", alert.ID).
			Str("alert_type", string(alert.Type)).
			Msg("Failed to record threat alert in audit trail")
	}
}

// retain appends alerts to the bounded in-memory history.
func (e *Engine) retain(alerts []*Alert) {
	if len(alerts) == 0 {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.recent = append(e.recent, alerts...)
	if len(e.recent) > maxRetainedAlerts {
		e.recent = e.recent[len(e.recent)-maxRetainedAlerts:]
	}
}

// RecentAlerts returns the most recent alerts for a tenant, newest
// last, up to limit. A limit of zero or less returns all retained
// alerts for the tenant.
func (e *Engine) RecentAlerts(tenantID string, limit int) []*Alert {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var out []*Alert
	for _, alert := range e.recent {
		if alert.TenantID == tenantID {
			out = append(out, alert)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// Rules returns the engine's rules for inspection and toggling.
func (e *Engine) Rules() []Rule {
	return e.rules
}

// evidenceBounded is implemented by rules with a tunable evidence
// sample size.
type evidenceBounded interface {
	SetEvidenceLimit(limit int)
}

// SetEvidenceLimit applies the configured evidence bound to every rule
// that supports it. Limits below 1 are ignored.
func (e *Engine) SetEvidenceLimit(limit int) {
	if limit < 1 {
		return
	}
	for _, rule := range e.rules {
		if bounded, ok := rule.(evidenceBounded); ok {
			bounded.SetEvidenceLimit(limit)
		}
	}
}

// SetRuleEnabled toggles a rule by alert type. Returns false when no
// rule matches.
func (e *Engine) SetRuleEnabled(alertType AlertType, enabled bool) bool {
	for _, rule := range e.rules {
		if rule.Type() == alertType {
			rule.SetEnabled(enabled)
			return true
		}
	}
	return false
}
