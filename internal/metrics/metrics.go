// Formworks - Field Service Forms, Audit and Compliance
// Copyright 2026 Formworks Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/formworks/formworks

// Package metrics provides Prometheus metrics for the audit, threat
// detection and retention core. Metrics are registered with the default
// registry and exposed at /metrics by the HTTP layer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	// Audit ingestion metrics
	AuditEventsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_events_ingested_total",
			Help: "Total number of audit events persisted",
		},
		[]string{"category", "severity"},
	)

	AuditIngestErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_ingest_errors_total",
			Help: "Total number of failed audit event writes",
		},
	)

	AuditPostWriteCheckErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_post_write_check_errors_total",
			Help: "Total number of failed fire-and-forget compliance/alert checks",
		},
	)

	// Threat detection metrics
	ThreatSweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "threat_sweep_duration_seconds",
			Help:    "Duration of threat detection sweeps in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	ThreatAlertsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threat_alerts_generated_total",
			Help: "Total number of threat alerts generated",
		},
		[]string{"rule", "severity"},
	)

	ThreatRuleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threat_rule_errors_total",
			Help: "Total number of detection rule failures",
		},
		[]string{"rule"},
	)

	// Retention engine metrics
	RetentionRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retention_runs_total",
			Help: "Total number of retention policy executions",
		},
		[]string{"entity_type", "outcome"},
	)

	RetentionRecordsArchived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "retention_records_archived_total",
			Help: "Total number of records written to archives",
		},
	)

	RetentionRecordsDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "retention_records_deleted_total",
			Help: "Total number of records deleted by retention sweeps",
		},
	)

	RetentionArchiveBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "retention_archive_bytes_total",
			Help: "Total bytes written to archive files",
		},
	)

	RetentionSweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "retention_sweep_duration_seconds",
			Help:    "Duration of retention sweeps in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
	)
)
