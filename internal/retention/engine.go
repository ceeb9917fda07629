// Formworks - Field Service Forms, Audit and Compliance
// Copyright 2026 Formworks Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/formworks/formworks

package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/formworks/formworks/internal/audit"
	"github.com/formworks/formworks/internal/logging"
	"github.com/formworks/formworks/internal/metrics"
)

// largeDeletionThreshold escalates the run-summary audit event to high
// severity.
const largeDeletionThreshold = 1000

// storeCallTimeout bounds each store and archive operation so a hung
// backend fails the policy run instead of wedging the scheduler tick.
const storeCallTimeout = 2 * time.Minute

// RunAuditor records retention run summaries in the audit trail.
type RunAuditor interface {
	LogEvent(ctx context.Context, auditCtx *audit.Context, input audit.EventInput) (*audit.Event, error)
}

// HistoryRecorder persists per-run execution results.
type HistoryRecorder interface {
	Record(result *ArchiveResult) error
}

// Engine executes retention policies: archive expired records, delete
// them, keep per-policy statistics.
type Engine struct {
	policies PolicyStore
	sources  map[EntityType]Source
	archiver *Archiver
	auditor  RunAuditor
	history  HistoryRecorder
}

// NewEngine creates a retention engine. auditor and history may be nil;
// run summaries and history entries are then skipped.
func NewEngine(policies PolicyStore, sources map[EntityType]Source, archiver *Archiver, auditor RunAuditor, history HistoryRecorder) *Engine {
	return &Engine{
		policies: policies,
		sources:  sources,
		archiver: archiver,
		auditor:  auditor,
		history:  history,
	}
}

// ExecutePolicy runs one policy to completion and updates its stats.
// The returned result carries any per-run error in its Error field; the
// error return covers invalid input only.
func (e *Engine) ExecutePolicy(ctx context.Context, policy *Policy) (*ArchiveResult, error) {
	if policy == nil {
		return nil, fmt.Errorf("policy cannot be nil")
	}
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}

	start := time.Now()
	result := e.runPolicy(ctx, policy, false)
	metrics.RetentionSweepDuration.Observe(time.Since(start).Seconds())

	e.updateStats(ctx, policy, result)
	e.emitRunSummary(ctx, policy, result)
	e.recordHistory(result)

	outcome := "success"
	if result.Error != "" {
		outcome = "failure"
	}
	metrics.RetentionRunsTotal.WithLabelValues(string(policy.EntityType), outcome).Inc()

	logging.Info().
		Str("policy_id", policy.ID).
		Str("tenant_id", policy.TenantID).
		Str("entity_type", string(policy.EntityType)).
		Int64("processed", result.RecordsProcessed).
		Int64("archived", result.RecordsArchived).
		Int64("deleted", result.RecordsDeleted).
		Str("error", result.Error).
		Msg("Retention policy executed")

	return result, nil
}

// DryRun evaluates a policy without archiving, deleting, or updating
// stats. The result reports how many records a real run would process.
func (e *Engine) DryRun(ctx context.Context, policy *Policy) (*ArchiveResult, error) {
	if policy == nil {
		return nil, fmt.Errorf("policy cannot be nil")
	}
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}
	return e.runPolicy(ctx, policy, true), nil
}

// runPolicy performs steps 1-6 of a policy execution. Stats, audit, and
// history are the caller's concern.
func (e *Engine) runPolicy(ctx context.Context, policy *Policy, dryRun bool) *ArchiveResult {
	result := &ArchiveResult{
		PolicyID:   policy.ID,
		EntityType: policy.EntityType,
		ExecutedAt: time.Now().UTC(),
		DryRun:     dryRun,
	}

	// A blocking legal hold short-circuits before any store access.
	if policy.LegalHold.Blocks() {
		logging.Debug().
			Str("policy_id", policy.ID).
			Str("reason", policy.LegalHold.Reason).
			Msg("Retention policy under legal hold, skipping")
		return result
	}

	cutoff := policy.Period.CutoffFrom(time.Now().UTC())

	types := []EntityType{policy.EntityType}
	if policy.EntityType == EntityAll {
		types = ConcreteEntityTypes()
	}

	for _, entityType := range types {
		sub, err := e.runForEntityType(ctx, policy, entityType, cutoff, dryRun)
		if err != nil {
			result.Error = err.Error()
			return result
		}
		result.merge(sub)
	}
	return result
}

func (e *Engine) runForEntityType(ctx context.Context, policy *Policy, entityType EntityType, cutoff time.Time, dryRun bool) (*ArchiveResult, error) {
	result := &ArchiveResult{PolicyID: policy.ID, EntityType: entityType}

	source, ok := e.sources[entityType]
	if !ok {
		return nil, fmt.Errorf("no source registered for entity type %s", entityType)
	}

	findCtx, cancel := context.WithTimeout(ctx, storeCallTimeout)
	expired, err := source.FindExpired(findCtx, policy.TenantID, cutoff)
	cancel()
	if err != nil {
		return nil, err
	}

	var matching []ArchiveRecord
	for i := range expired {
		if matchesConditions(expired[i].Fields, policy.Conditions) {
			matching = append(matching, expired[i])
		}
	}
	result.RecordsProcessed = int64(len(matching))

	if len(matching) == 0 || dryRun {
		return result, nil
	}

	// Archive must complete before any deletion.
	if policy.ArchiveBeforeDelete {
		location, size, err := e.archiver.Write(policy.TenantID, entityType, policy.ArchiveFormat, matching)
		if err != nil {
			return nil, fmt.Errorf("archive failed for %s, skipping deletion: %w", entityType, err)
		}
		result.RecordsArchived = int64(len(matching))
		result.ArchiveSize = size
		result.ArchiveLocation = location
		metrics.RetentionRecordsArchived.Add(float64(len(matching)))
		metrics.RetentionArchiveBytes.Add(float64(size))
	}

	ids := make([]string, 0, len(matching))
	for i := range matching {
		ids = append(ids, matching[i].ID)
	}

	deleteCtx, cancel := context.WithTimeout(ctx, storeCallTimeout)
	deleted, err := source.Delete(deleteCtx, policy.TenantID, ids)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("deletion failed for %s: %w", entityType, err)
	}
	result.RecordsDeleted = deleted
	metrics.RetentionRecordsDeleted.Add(float64(deleted))

	return result, nil
}

// updateStats folds a run result into the policy's cumulative stats.
func (e *Engine) updateStats(ctx context.Context, policy *Policy, result *ArchiveResult) {
	now := result.ExecutedAt
	stats := policy.Stats
	stats.LastRunAt = &now

	if result.Error != "" {
		stats.ErrorCount++
		stats.LastError = result.Error
	} else {
		stats.TotalArchived += result.RecordsArchived
		stats.TotalDeleted += result.RecordsDeleted
		stats.TotalArchivedBytes += result.ArchiveSize
	}

	policy.Stats = stats
	if err := e.policies.UpdateStats(ctx, policy.TenantID, policy.ID, stats); err != nil {
		logging.Error().
			Err(err).
			Str("policy_id", policy.ID).
			Msg("Failed to persist retention policy stats")
	}
}

// emitRunSummary writes one audit event describing the run.
func (e *Engine) emitRunSummary(ctx context.Context, policy *Policy, result *ArchiveResult) {
	if e.auditor == nil {
		return
	}

	severity := audit.SeverityLow
	if result.RecordsDeleted > largeDeletionThreshold {
		severity = audit.SeverityHigh
	}
	status := audit.StatusSuccess
	if result.Error != "" {
		status = audit.StatusFailure
	}

	input := audit.EventInput{
		Type:        audit.EventTypeSystem,
		Action:      "retention_policy_executed",
		Category:    audit.CategoryData,
		Description: fmt.Sprintf("Retention policy %q processed %d, archived %d, deleted %d records", policy.Name, result.RecordsProcessed, result.RecordsArchived, result.RecordsDeleted),
		Severity:    severity,
		Status:      status,
		Target: &audit.Target{
			EntityType: "retention_policy",
			EntityID:   policy.ID,
			EntityName: policy.Name,
		},
		Details: map[string]interface{}{
			"entity_type":       string(policy.EntityType),
			"records_processed": result.RecordsProcessed,
			"records_archived":  result.RecordsArchived,
			"records_deleted":   result.RecordsDeleted,
			"archive_size":      result.ArchiveSize,
		},
		ErrorMessage: result.Error,
	}
	if result.ArchiveLocation != "" {
		input.Details["archive_location"] = result.ArchiveLocation
	}

	auditCtx := &audit.Context{TenantID: policy.TenantID}
	if _, err := e.auditor.LogEvent(ctx, auditCtx, input); err != nil {
		logging.Error().
			Err(err).
			Str("policy_id", policy.ID).
			Msg("Failed to record retention run in audit trail")
	}
}

func (e *Engine) recordHistory(result *ArchiveResult) {
	if e.history == nil {
		return
	}
	if err := e.history.Record(result); err != nil {
		logging.Error().
			Err(err).
			Str("policy_id", result.PolicyID).
			Msg("Failed to record retention run history")
	}
}

// ExecuteReadyPolicies runs every enabled policy whose schedule is due
// at the given instant, serially. One policy's failure never blocks the
// others; failures land in that policy's stats.
func (e *Engine) ExecuteReadyPolicies(ctx context.Context, now time.Time) ([]ArchiveResult, error) {
	policies, err := e.policies.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load retention policies: %w", err)
	}

	var results []ArchiveResult
	for i := range policies {
		policy := policies[i]
		if !IsDue(&policy, now) {
			continue
		}

		result, err := e.ExecutePolicy(ctx, &policy)
		if err != nil {
			logging.Error().
				Err(err).
				Str("policy_id", policy.ID).
				Msg("Retention policy rejected during scheduled run")
			continue
		}
		results = append(results, *result)
	}
	return results, nil
}
