// Formworks - Field Service Forms, Audit and Compliance
// Copyright 2026 Formworks Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/formworks/formworks

// Package main is the entry point for the Formworks compliance server.
//
// Formworks records a tenant-scoped audit trail for a field-service
// form platform, detects threats in that trail, and enforces data
// retention policies with archival and legal holds.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: Koanf v2 layered loading (defaults, config.yaml,
//     FORMWORKS_-prefixed environment variables)
//  2. Database: DuckDB with the audit, retention, and records schemas
//  3. Audit service: classification, persistence, post-write
//     compliance and failure-threshold checks
//  4. Threat engine: rule-based detection over the audit trail
//  5. Retention engine: policy evaluation, archival, deletion, with
//     BadgerDB-backed execution history
//  6. Scheduler: Suture supervisor tree running the retention sweep,
//     detection readiness tick, maintenance tick, and the HTTP server
//  7. HTTP server: Chi REST API with JWT admin authentication
//
// # Configuration
//
// See .env.example for the full list. The essentials:
//
//	FORMWORKS_SERVER_PORT=8484
//	FORMWORKS_DATABASE_PATH=/data/formworks.db
//	FORMWORKS_RETENTION_ARCHIVE_DIR=/data/archives
//	FORMWORKS_RETENTION_HISTORY_PATH=/data/history
//	FORMWORKS_SECURITY_JWT_SECRET=$(openssl rand -base64 32)
//	FORMWORKS_SECURITY_ADMIN_USERNAME=admin
//	FORMWORKS_SECURITY_ADMIN_PASSWORD_HASH=$2a$10$...   # bcrypt
//
// Leaving FORMWORKS_SECURITY_JWT_SECRET unset disables authentication;
// that mode is for local development only.
//
// # Signal Handling
//
// SIGINT and SIGTERM trigger graceful shutdown: the HTTP server stops
// accepting connections and drains in-flight requests, background jobs
// finish their current tick, and the database and history stores close.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/formworks/formworks/internal/api"
	"github.com/formworks/formworks/internal/audit"
	"github.com/formworks/formworks/internal/compliance"
	"github.com/formworks/formworks/internal/config"
	"github.com/formworks/formworks/internal/database"
	"github.com/formworks/formworks/internal/logging"
	"github.com/formworks/formworks/internal/records"
	"github.com/formworks/formworks/internal/retention"
	"github.com/formworks/formworks/internal/scheduler"
	"github.com/formworks/formworks/internal/threat"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Config not yet available; the default logger has to do.
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("version", version).
		Str("db_path", cfg.Database.Path).
		Bool("auth_enabled", cfg.Security.JWTSecret != "").
		Bool("retention_enabled", cfg.Retention.Enabled).
		Bool("detection_enabled", cfg.Detection.Enabled).
		Msg("Starting Formworks")

	if cfg.Security.JWTSecret == "" {
		logging.Warn().Msg("Authentication is DISABLED (no JWT secret configured)")
		logging.Warn().Msg("All endpoints are publicly accessible. Development use only!")
	}

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()
	logging.Info().Msg("Database initialized")

	// Stores share the single DuckDB connection pool.
	auditStore := audit.NewDuckDBStore(db.Conn())
	recordStore := records.NewDuckDBStore(db.Conn())
	policyStore := retention.NewDuckDBPolicyStore(db.Conn())

	checker := compliance.NewChecker()

	auditService := audit.NewService(auditStore, checker, audit.Config{
		Enabled:               cfg.Audit.Enabled,
		StoreTimeout:          cfg.Audit.StoreTimeout,
		FailureAlertThreshold: cfg.Audit.FailureAlertThreshold,
		FailureAlertWindow:    cfg.Audit.FailureAlertWindow,
	})
	defer auditService.Wait()

	threatEngine := threat.NewEngine(auditStore, auditService, time.Local)
	threatEngine.SetEvidenceLimit(cfg.Detection.EvidenceLimit)

	// Execution history survives restarts in BadgerDB. A missing or
	// broken history store degrades to history-less operation.
	var history *retention.BadgerHistory
	if cfg.Retention.HistoryPath != "" {
		history, err = retention.OpenBadgerHistory(cfg.Retention.HistoryPath, cfg.Retention.HistoryRetentionDays)
		if err != nil {
			logging.Warn().Err(err).Str("path", cfg.Retention.HistoryPath).
				Msg("Failed to open retention history store, continuing without history")
		} else {
			defer func() {
				if err := history.Close(); err != nil {
					logging.Error().Err(err).Msg("Error closing retention history store")
				}
			}()
		}
	}

	var retentionEngine *retention.Engine
	var archiver *retention.Archiver
	if cfg.Retention.Enabled {
		archiver = retention.NewArchiver(cfg.Retention.ArchiveDir)
		sources := retention.NewSourceSet(recordStore, auditStore)
		var recorder retention.HistoryRecorder
		if history != nil {
			recorder = history
		}
		retentionEngine = retention.NewEngine(policyStore, sources, archiver, auditService, recorder)
		logging.Info().Str("archive_dir", cfg.Retention.ArchiveDir).Msg("Retention engine initialized")
	} else {
		logging.Info().Msg("Retention engine disabled (FORMWORKS_RETENTION_ENABLED=false)")
	}

	// === SUPERVISOR TREE ===

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tree := scheduler.NewTree(logging.NewSlogLogger(), scheduler.DefaultTreeConfig())

	if cfg.Retention.Enabled && retentionEngine != nil {
		tree.AddJob(scheduler.NewIntervalService(
			scheduler.NewRetentionSweepJob(retentionEngine),
			cfg.Retention.SweepInterval,
			false,
		))
		logging.Info().Dur("interval", cfg.Retention.SweepInterval).Msg("Retention sweep scheduled")
	}

	if cfg.Detection.Enabled {
		// Tenants with a retention policy are the tenants worth
		// sweeping; tenants without policies still get on-demand
		// analysis through the API.
		tenants := func(ctx context.Context) ([]string, error) {
			policies, err := policyStore.ListAll(ctx)
			if err != nil {
				return nil, err
			}
			seen := make(map[string]struct{}, len(policies))
			var ids []string
			for _, p := range policies {
				if _, ok := seen[p.TenantID]; ok {
					continue
				}
				seen[p.TenantID] = struct{}{}
				ids = append(ids, p.TenantID)
			}
			return ids, nil
		}
		tree.AddJob(scheduler.NewIntervalService(
			scheduler.NewDetectionReadinessJob(threatEngine, tenants, cfg.Detection.WindowHours),
			cfg.Detection.ReadinessInterval,
			false,
		))
		logging.Info().Dur("interval", cfg.Detection.ReadinessInterval).Msg("Detection readiness tick scheduled")
	}

	maintenance := scheduler.NewMaintenanceJob(archiver, history, db.Checkpoint)
	if cfg.Audit.MaxAgeDays > 0 {
		maxAge := time.Duration(cfg.Audit.MaxAgeDays) * 24 * time.Hour
		maintenance.WithAuditExpiry(func(ctx context.Context) (int64, error) {
			return auditStore.DeleteOlderThan(ctx, time.Now().UTC().Add(-maxAge))
		})
	}
	tree.AddJob(scheduler.NewIntervalService(maintenance, cfg.Retention.MaintenanceInterval, false))

	// === HTTP API ===

	chiMiddleware := api.NewChiMiddleware(&api.ChiMiddlewareConfig{
		CORSAllowedOrigins: cfg.Security.CORSOrigins,
		RateLimitRequests:  cfg.Security.RateLimitReqs,
		RateLimitWindow:    cfg.Security.RateLimitWindow,
	})

	authenticator := api.NewAuthenticator(cfg.Security, auditService)

	var historyLister api.HistoryLister
	if history != nil {
		historyLister = history
	}

	router := api.NewRouter(
		chiMiddleware,
		authenticator,
		api.NewHealthHandlers(db, version),
		api.NewAuditHandlers(auditService, auditStore, checker),
		api.NewThreatHandlers(threatEngine),
		api.NewRetentionHandlers(policyStore, retentionEngine, historyLister),
	)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}
	tree.AddAPIService(scheduler.NewHTTPServerService(server, 10*time.Second))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	// === RUN ===

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Formworks stopped")
}
