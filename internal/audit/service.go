// Formworks - Field Service Forms, Audit and Compliance
// Copyright 2026 Formworks Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/formworks/formworks

package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/formworks/formworks/internal/logging"
	"github.com/formworks/formworks/internal/metrics"
)

// ErrMissingTenant is returned when an ingestion call carries no tenant
// id. This is a caller-contract violation; nothing is written.
var ErrMissingTenant = errors.New("audit: tenant id is required")

// ErrInvalidInput is returned when an event input is missing one of the
// required fields (type, action, category, description).
var ErrInvalidInput = errors.New("audit: invalid event input")

// ComplianceChecker evaluates a freshly written event against the
// tenant's compliance policies. Implemented by the compliance package.
type ComplianceChecker interface {
	CheckEvent(ctx context.Context, event *Event) error
}

// Config holds configuration for the ingestion service.
type Config struct {
	// Enabled controls whether events are persisted.
	Enabled bool

	// StoreTimeout bounds each store write.
	StoreTimeout time.Duration

	// FailureAlertThreshold is the number of failed events within
	// FailureAlertWindow that triggers a security event.
	FailureAlertThreshold int
	FailureAlertWindow    time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:               true,
		StoreTimeout:          5 * time.Second,
		FailureAlertThreshold: 5,
		FailureAlertWindow:    15 * time.Minute,
	}
}

// Service is the audit ingestion service. It enriches submissions via
// the classifier, persists them, and runs best-effort post-write
// compliance and alert-threshold checks.
type Service struct {
	store      Store
	compliance ComplianceChecker
	cfg        Config
	wg         sync.WaitGroup
}

// NewService creates an ingestion service. compliance may be nil, in
// which case the post-write compliance check is skipped.
func NewService(store Store, compliance ComplianceChecker, cfg Config) *Service {
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 5 * time.Second
	}
	return &Service{
		store:      store,
		compliance: compliance,
		cfg:        cfg,
	}
}

// EventInput is the caller-facing shape of an event submission. Type,
// Action, Category, and Description are required; every classifier
// output may be overridden and then takes precedence over derivation.
type EventInput struct {
	Type        EventType `json:"event_type"`
	Action      string    `json:"action"`
	Category    Category  `json:"category"`
	Description string    `json:"description"`

	// Timestamp defaults to now when zero.
	Timestamp time.Time `json:"timestamp,omitempty"`

	Target *Target `json:"target,omitempty"`

	Details   map[string]interface{} `json:"details,omitempty"`
	OldValues map[string]interface{} `json:"old_values,omitempty"`
	NewValues map[string]interface{} `json:"new_values,omitempty"`

	// Manual classification overrides.
	Severity           Severity           `json:"severity,omitempty"`
	RiskLevel          RiskLevel          `json:"risk_level,omitempty"`
	ComplianceTags     []ComplianceTag    `json:"compliance_tags,omitempty"`
	DataClassification DataClassification `json:"data_classification,omitempty"`

	Status       Status `json:"status,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	DurationMS   int64  `json:"duration_ms,omitempty"`

	CorrelationID string `json:"correlation_id,omitempty"`
	ParentEventID string `json:"parent_event_id,omitempty"`
}

// LogEvent records one audit event. Exactly one record is persisted per
// successful call. Post-write compliance and alert-threshold checks run
// in the background and never surface errors to the caller.
func (s *Service) LogEvent(ctx context.Context, auditCtx *Context, input EventInput) (*Event, error) {
	if auditCtx == nil || auditCtx.TenantID == "" {
		return nil, ErrMissingTenant
	}
	if input.Type == "" || input.Action == "" || input.Category == "" || input.Description == "" {
		return nil, fmt.Errorf("%w: event_type, action, category and description are required", ErrInvalidInput)
	}

	event := s.buildEvent(auditCtx, input)

	if !s.cfg.Enabled {
		return event, nil
	}

	writeCtx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	if err := s.store.Save(writeCtx, event); err != nil {
		metrics.AuditIngestErrors.Inc()
		return nil, fmt.Errorf("failed to save audit event: %w", err)
	}
	metrics.AuditEventsIngested.WithLabelValues(string(event.Category), string(event.Severity)).Inc()

	// Post-write checks are best-effort and decoupled from the caller.
	s.wg.Add(1)
	go s.runPostWriteChecks(event)

	return event, nil
}

// buildEvent assembles the immutable event record, applying the
// classifier-fallback rule: manual values always win over derivation.
func (s *Service) buildEvent(auditCtx *Context, input EventInput) *Event {
	status := input.Status
	if status == "" {
		status = StatusSuccess
	}

	timestamp := input.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	severity := input.Severity
	if severity == "" {
		severity = DeriveSeverity(input.Type, input.Category, status)
	}
	riskLevel := input.RiskLevel
	if riskLevel == "" {
		riskLevel = DeriveRiskLevel(input.Type, input.Category, status)
	}
	tags := input.ComplianceTags
	if tags == nil {
		tags = DeriveComplianceTags(input.Type, input.Category, input.Target)
	}
	classification := input.DataClassification
	if classification == "" {
		classification = DeriveDataClassification(input.Category, input.Target)
	}

	correlationID := input.CorrelationID
	if correlationID == "" {
		correlationID = auditCtx.CorrelationID
	}
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	return &Event{
		ID:        uuid.NewString(),
		TenantID:  auditCtx.TenantID,
		Timestamp: timestamp,
		Type:      input.Type,
		Action:    input.Action,
		Category:  input.Category,
		Actor: Actor{
			UserID:    auditCtx.UserID,
			UserEmail: auditCtx.UserEmail,
			UserName:  auditCtx.UserName,
			UserRole:  auditCtx.UserRole,
			SessionID: auditCtx.SessionID,
		},
		Target: input.Target,
		Context: RequestContext{
			IPAddress: auditCtx.IPAddress,
			UserAgent: auditCtx.UserAgent,
			Endpoint:  auditCtx.Endpoint,
			Method:    auditCtx.Method,
		},
		Description:        input.Description,
		Details:            Sanitize(input.Details),
		OldValues:          Sanitize(input.OldValues),
		NewValues:          Sanitize(input.NewValues),
		Severity:           severity,
		RiskLevel:          riskLevel,
		ComplianceTags:     tags,
		DataClassification: classification,
		Status:             status,
		ErrorMessage:       input.ErrorMessage,
		DurationMS:         input.DurationMS,
		CorrelationID:      correlationID,
		ParentEventID:      input.ParentEventID,
	}
}

// runPostWriteChecks performs the best-effort compliance and alert
// threshold checks for a freshly written event. Errors are logged and
// counted, never propagated.
func (s *Service) runPostWriteChecks(event *Event) {
	defer s.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.StoreTimeout)
	defer cancel()

	if s.compliance != nil {
		if err := s.compliance.CheckEvent(ctx, event); err != nil {
			metrics.AuditPostWriteCheckErrors.Inc()
			logging.Warn().Err(err).
				Str("event_id", event.ID).
				Str("tenant_id", event.TenantID).
				Msg("Compliance check failed for audit event")
		}
	}

	if event.Status == StatusFailure {
		if err := s.checkFailureThreshold(ctx, event); err != nil {
			metrics.AuditPostWriteCheckErrors.Inc()
			logging.Warn().Err(err).
				Str("event_id", event.ID).
				Str("tenant_id", event.TenantID).
				Msg("Alert threshold check failed for audit event")
		}
	}
}

// checkFailureThreshold counts recent failed events for the tenant and
// logs a security event when the configured threshold is reached.
func (s *Service) checkFailureThreshold(ctx context.Context, event *Event) error {
	since := time.Now().UTC().Add(-s.cfg.FailureAlertWindow)
	count, err := s.store.Count(ctx, QueryFilter{
		TenantID:  event.TenantID,
		Statuses:  []Status{StatusFailure},
		StartTime: &since,
	})
	if err != nil {
		return fmt.Errorf("failed to count recent failures: %w", err)
	}

	if count < int64(s.cfg.FailureAlertThreshold) {
		return nil
	}

	alert := &Event{
		ID:        uuid.NewString(),
		TenantID:  event.TenantID,
		Timestamp: time.Now().UTC(),
		Type:      EventTypeSystem,
		Action:    "failure_threshold_exceeded",
		Category:  CategorySecurity,
		Description: fmt.Sprintf("%d failed events within %s exceeded the alert threshold of %d",
			count, s.cfg.FailureAlertWindow, s.cfg.FailureAlertThreshold),
		Details: map[string]interface{}{
			"failure_count":    count,
			"window":           s.cfg.FailureAlertWindow.String(),
			"threshold":        s.cfg.FailureAlertThreshold,
			"triggering_event": event.ID,
		},
		Severity:           SeverityHigh,
		RiskLevel:          RiskHigh,
		ComplianceTags:     []ComplianceTag{TagISO27001},
		DataClassification: ClassificationRestricted,
		Status:             StatusWarning,
		CorrelationID:      event.CorrelationID,
		ParentEventID:      event.ID,
	}
	if err := s.store.Save(ctx, alert); err != nil {
		return fmt.Errorf("failed to save threshold alert event: %w", err)
	}
	metrics.AuditEventsIngested.WithLabelValues(string(alert.Category), string(alert.Severity)).Inc()
	return nil
}

// Wait blocks until all in-flight post-write checks complete. Used
// during shutdown and in tests.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Store exposes the backing store for read-side collaborators.
func (s *Service) Store() Store {
	return s.store
}

// Convenience wrappers fixing category and defaults for common call
// sites. They do not change the core LogEvent contract.

// LogAuthentication records a login or logout event.
func (s *Service) LogAuthentication(ctx context.Context, auditCtx *Context, eventType EventType, action, description string, status Status, errMsg string) (*Event, error) {
	return s.LogEvent(ctx, auditCtx, EventInput{
		Type:         eventType,
		Action:       action,
		Category:     CategoryAuthentication,
		Description:  description,
		Status:       status,
		ErrorMessage: errMsg,
	})
}

// LogDataAccess records a read or export of tenant data.
func (s *Service) LogDataAccess(ctx context.Context, auditCtx *Context, eventType EventType, action, description string, target *Target) (*Event, error) {
	return s.LogEvent(ctx, auditCtx, EventInput{
		Type:        eventType,
		Action:      action,
		Category:    CategoryData,
		Description: description,
		Target:      target,
	})
}

// LogDataModification records a create, update, or delete with optional
// before/after snapshots.
func (s *Service) LogDataModification(ctx context.Context, auditCtx *Context, eventType EventType, action, description string, target *Target, oldValues, newValues map[string]interface{}) (*Event, error) {
	return s.LogEvent(ctx, auditCtx, EventInput{
		Type:        eventType,
		Action:      action,
		Category:    CategoryData,
		Description: description,
		Target:      target,
		OldValues:   oldValues,
		NewValues:   newValues,
	})
}

// LogAdminAction records an administrative action.
func (s *Service) LogAdminAction(ctx context.Context, auditCtx *Context, action, description string, details map[string]interface{}) (*Event, error) {
	return s.LogEvent(ctx, auditCtx, EventInput{
		Type:        EventTypeAdmin,
		Action:      action,
		Category:    CategorySystem,
		Description: description,
		Details:     details,
	})
}

// LogSecurityEvent records a security-relevant event.
func (s *Service) LogSecurityEvent(ctx context.Context, auditCtx *Context, action, description string, severity Severity, details map[string]interface{}) (*Event, error) {
	return s.LogEvent(ctx, auditCtx, EventInput{
		Type:        EventTypeSystem,
		Action:      action,
		Category:    CategorySecurity,
		Description: description,
		Severity:    severity,
		Details:     details,
	})
}

// LogSystemEvent records a system-generated event with no actor.
func (s *Service) LogSystemEvent(ctx context.Context, tenantID, action, description string, details map[string]interface{}) (*Event, error) {
	return s.LogEvent(ctx, &Context{TenantID: tenantID}, EventInput{
		Type:        EventTypeSystem,
		Action:      action,
		Category:    CategorySystem,
		Description: description,
		Details:     details,
	})
}
