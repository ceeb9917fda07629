// Formworks - Field Service Forms, Audit and Compliance
// Copyright 2026 Formworks Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/formworks/formworks

package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/formworks/formworks/internal/logging"
	"github.com/formworks/formworks/internal/retention"
	"github.com/formworks/formworks/internal/threat"
)

// RetentionSweepJob executes due retention policies on each tick.
type RetentionSweepJob struct {
	engine *retention.Engine
}

// NewRetentionSweepJob creates the scheduled retention sweep.
func NewRetentionSweepJob(engine *retention.Engine) *RetentionSweepJob {
	return &RetentionSweepJob{engine: engine}
}

// Name identifies the job in logs.
func (j *RetentionSweepJob) Name() string { return "retention-sweep" }

// Run executes every policy due at the tick instant.
func (j *RetentionSweepJob) Run(ctx context.Context) error {
	results, err := j.engine.ExecuteReadyPolicies(ctx, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("retention sweep failed: %w", err)
	}
	if len(results) > 0 {
		var deleted, archived int64
		for _, r := range results {
			deleted += r.RecordsDeleted
			archived += r.RecordsArchived
		}
		logging.Info().
			Int("policies", len(results)).
			Int64("archived", archived).
			Int64("deleted", deleted).
			Msg("Scheduled retention sweep completed")
	}
	return nil
}

// TenantLister enumerates tenants for the detection readiness sweep.
type TenantLister func(ctx context.Context) ([]string, error)

// DetectionReadinessJob runs the threat engine over each known tenant.
// With no tenant lister configured the tick is a readiness no-op and
// sweeps stay on-demand through the API.
type DetectionReadinessJob struct {
	engine      *threat.Engine
	tenants     TenantLister
	windowHours int
}

// NewDetectionReadinessJob creates the scheduled detection tick.
func NewDetectionReadinessJob(engine *threat.Engine, tenants TenantLister, windowHours int) *DetectionReadinessJob {
	return &DetectionReadinessJob{engine: engine, tenants: tenants, windowHours: windowHours}
}

// Name identifies the job in logs.
func (j *DetectionReadinessJob) Name() string { return "detection-readiness" }

// Run sweeps every listed tenant. Per-tenant failures are logged and do
// not abort the remaining tenants.
func (j *DetectionReadinessJob) Run(ctx context.Context) error {
	if j.tenants == nil {
		logging.Debug().Msg("Detection readiness tick, no tenant lister configured")
		return nil
	}

	tenantIDs, err := j.tenants(ctx)
	if err != nil {
		return fmt.Errorf("failed to list tenants for detection sweep: %w", err)
	}

	for _, tenantID := range tenantIDs {
		if _, err := j.engine.Analyze(ctx, tenantID, j.windowHours); err != nil {
			logging.Error().
				Err(err).
				Str("tenant_id", tenantID).
				Msg("Scheduled threat sweep failed for tenant")
		}
	}
	return nil
}

// MaintenanceJob performs daily housekeeping: orphaned archive temp
// files, history value-log garbage collection, and a database
// checkpoint.
type MaintenanceJob struct {
	archiver    *retention.Archiver
	history     *retention.BadgerHistory
	checkpoint  func(ctx context.Context) error
	auditExpiry func(ctx context.Context) (int64, error)
}

// NewMaintenanceJob creates the daily maintenance tick. Any dependency
// may be nil; its step is skipped.
func NewMaintenanceJob(archiver *retention.Archiver, history *retention.BadgerHistory, checkpoint func(ctx context.Context) error) *MaintenanceJob {
	return &MaintenanceJob{archiver: archiver, history: history, checkpoint: checkpoint}
}

// WithAuditExpiry adds a global audit expiry step to the tick. This is
// the platform-wide backstop; tenant-level audit retention stays with
// retention policies.
func (j *MaintenanceJob) WithAuditExpiry(expiry func(ctx context.Context) (int64, error)) *MaintenanceJob {
	j.auditExpiry = expiry
	return j
}

// Name identifies the job in logs.
func (j *MaintenanceJob) Name() string { return "maintenance" }

// Run executes the housekeeping steps. Each step's failure is logged
// and the remaining steps still run.
func (j *MaintenanceJob) Run(ctx context.Context) error {
	if j.archiver != nil {
		removed, err := j.archiver.CleanupTempFiles(24 * time.Hour)
		if err != nil {
			logging.Warn().Err(err).Msg("Archive temp file cleanup failed")
		} else if removed > 0 {
			logging.Info().Int("removed", removed).Msg("Removed orphaned archive temp files")
		}
	}

	if j.history != nil {
		j.history.RunGC()
	}

	if j.auditExpiry != nil {
		deleted, err := j.auditExpiry(ctx)
		if err != nil {
			logging.Warn().Err(err).Msg("Audit event expiry failed")
		} else if deleted > 0 {
			logging.Info().Int64("deleted", deleted).Msg("Expired old audit events")
		}
	}

	if j.checkpoint != nil {
		if err := j.checkpoint(ctx); err != nil {
			logging.Warn().Err(err).Msg("Database checkpoint failed")
		}
	}
	return nil
}
