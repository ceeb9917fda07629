// Formworks - Field Service Forms, Audit and Compliance
// Copyright 2026 Formworks Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/formworks/formworks

package audit

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// ExportFormat selects the bulk export serialization.
type ExportFormat string

const (
	ExportJSON ExportFormat = "json"
	ExportCSV  ExportFormat = "csv"
)

// ExportCap is the maximum number of records one export may return.
const ExportCap = 10000

// Export dumps events matching the filter in the requested format.
// The result is capped at ExportCap records regardless of the filter's
// limit.
func Export(ctx context.Context, store Store, filter QueryFilter, format ExportFormat) ([]byte, error) {
	if filter.Limit <= 0 || filter.Limit > ExportCap {
		filter.Limit = ExportCap
	}

	events, err := store.Query(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query events for export: %w", err)
	}

	switch format {
	case ExportJSON:
		return exportJSON(events)
	case ExportCSV:
		return exportCSV(events)
	default:
		return nil, fmt.Errorf("unsupported export format: %s", format)
	}
}

// exportJSON serializes events as indented JSON.
func exportJSON(events []Event) ([]byte, error) {
	data, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal events: %w", err)
	}
	return data, nil
}

// csvHeader defines the flattened column layout for CSV exports.
var csvHeader = []string{
	"id", "tenant_id", "timestamp",
	"event_type", "action", "category",
	"severity", "risk_level", "compliance_tags", "data_classification",
	"user_id", "user_email", "user_name", "user_role",
	"entity_type", "entity_id", "entity_name",
	"ip_address", "description",
	"status", "error_message", "duration_ms",
	"correlation_id",
}

// exportCSV serializes events as delimited tabular text.
func exportCSV(events []Event) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}

	for i := range events {
		if err := w.Write(csvRow(&events[i])); err != nil {
			return nil, fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush CSV: %w", err)
	}
	return buf.Bytes(), nil
}

// csvRow flattens one event into the csvHeader column order.
func csvRow(event *Event) []string {
	tags := make([]string, len(event.ComplianceTags))
	for i, t := range event.ComplianceTags {
		tags[i] = string(t)
	}

	var entityType, entityID, entityName string
	if event.Target != nil {
		entityType = event.Target.EntityType
		entityID = event.Target.EntityID
		entityName = event.Target.EntityName
	}

	return []string{
		event.ID,
		event.TenantID,
		event.Timestamp.UTC().Format("2006-01-02T15:04:05Z"),
		string(event.Type),
		event.Action,
		string(event.Category),
		string(event.Severity),
		string(event.RiskLevel),
		strings.Join(tags, ";"),
		string(event.DataClassification),
		event.Actor.UserID,
		event.Actor.UserEmail,
		event.Actor.UserName,
		event.Actor.UserRole,
		entityType,
		entityID,
		entityName,
		event.Context.IPAddress,
		event.Description,
		string(event.Status),
		event.ErrorMessage,
		strconv.FormatInt(event.DurationMS, 10),
		event.CorrelationID,
	}
}
