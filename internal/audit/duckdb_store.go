// Formworks - Field Service Forms, Audit and Compliance
// Copyright 2026 Formworks Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/formworks/formworks

package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/formworks/formworks/internal/logging"
)

// DuckDBStore implements Store using DuckDB for persistent storage.
// The audit_events table is created by the database package.
type DuckDBStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewDuckDBStore creates a new DuckDB-backed audit store.
func NewDuckDBStore(db *sql.DB) *DuckDBStore {
	return &DuckDBStore{db: db}
}

// Save persists an audit event to DuckDB.
func (s *DuckDBStore) Save(ctx context.Context, event *Event) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, insertEventQuery, eventInsertParams(event)...)
	if err != nil {
		return fmt.Errorf("failed to save audit event: %w", err)
	}
	return nil
}

const insertEventQuery = `
	INSERT INTO audit_events (
		id, tenant_id, timestamp,
		event_type, action, category, severity, risk_level, compliance_tags, data_classification,
		user_id, user_email, user_name, user_role, session_id,
		entity_type, entity_id, entity_name,
		ip_address, user_agent, http_method, http_path, correlation_id,
		description, details, before_state, after_state,
		status, error_message, duration_ms,
		parent_event_id, created_at
	) VALUES (
		?, ?, ?,
		?, ?, ?, ?, ?, ?, ?,
		?, ?, ?, ?, ?,
		?, ?, ?,
		?, ?, ?, ?, ?,
		?, ?, ?, ?,
		?, ?, ?,
		?, ?
	)
`

// eventInsertParams prepares all parameters for event insertion.
func eventInsertParams(event *Event) []interface{} {
	targetType, targetID, targetName := extractTargetFields(event.Target)

	return []interface{}{
		event.ID,
		event.TenantID,
		event.Timestamp.UTC(),
		string(event.Type),
		event.Action,
		string(event.Category),
		string(event.Severity),
		string(event.RiskLevel),
		marshalTags(event.ComplianceTags),
		string(event.DataClassification),
		nullable(event.Actor.UserID),
		nullable(event.Actor.UserEmail),
		nullable(event.Actor.UserName),
		nullable(event.Actor.UserRole),
		nullable(event.Actor.SessionID),
		targetType,
		targetID,
		targetName,
		nullable(event.Context.IPAddress),
		nullable(event.Context.UserAgent),
		nullable(event.Context.Method),
		nullable(event.Context.Endpoint),
		nullable(event.CorrelationID),
		event.Description,
		marshalPayload(event.Details),
		marshalPayload(event.OldValues),
		marshalPayload(event.NewValues),
		string(event.Status),
		nullable(event.ErrorMessage),
		event.DurationMS,
		nullable(event.ParentEventID),
		time.Now().UTC(),
	}
}

// marshalTags marshals compliance tags to a JSON array string.
func marshalTags(tags []ComplianceTag) string {
	if len(tags) == 0 {
		return "[]"
	}
	if data, err := json.Marshal(tags); err == nil {
		return string(data)
	}
	return "[]"
}

// marshalPayload marshals a payload map to a JSON string (if present).
func marshalPayload(payload map[string]interface{}) *string {
	if payload == nil {
		return nil
	}
	if data, err := json.Marshal(payload); err == nil {
		s := string(data)
		return &s
	}
	return nil
}

// extractTargetFields extracts target fields for database insertion.
func extractTargetFields(target *Target) (*string, *string, *string) {
	if target == nil {
		return nil, nil, nil
	}
	return &target.EntityType, &target.EntityID, &target.EntityName
}

// nullable converts an empty string to a SQL NULL.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

const selectEventColumns = `
	SELECT
		id, tenant_id, timestamp,
		event_type, action, category, severity, risk_level, compliance_tags, data_classification,
		user_id, user_email, user_name, user_role, session_id,
		entity_type, entity_id, entity_name,
		ip_address, user_agent, http_method, http_path, correlation_id,
		description, details, before_state, after_state,
		status, error_message, duration_ms,
		parent_event_id
	FROM audit_events
`

// Get retrieves an event by ID within a tenant.
func (s *DuckDBStore) Get(ctx context.Context, tenantID, id string) (*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, selectEventColumns+" WHERE tenant_id = ? AND id = ?", tenantID, id)

	var data scannedEventData
	if err := row.Scan(data.scanDestinations()...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("event not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get audit event: %w", err)
	}
	return data.toEvent(), nil
}

// Query retrieves events matching the filter.
func (s *DuckDBStore) Query(ctx context.Context, filter QueryFilter) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query, args := buildEventQuery(filter, false)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var data scannedEventData
		if err := rows.Scan(data.scanDestinations()...); err != nil {
			logging.Warn().Err(err).Msg("Failed to scan audit event row")
			continue
		}
		events = append(events, *data.toEvent())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit events: %w", err)
	}

	return events, nil
}

// Count returns the number of events matching the filter.
func (s *DuckDBStore) Count(ctx context.Context, filter QueryFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query, args := buildEventQuery(filter, true)

	var count int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count audit events: %w", err)
	}
	return count, nil
}

// Summarize aggregates event counts by category, type, status, and
// severity over a time range.
func (s *DuckDBStore) Summarize(ctx context.Context, tenantID string, start, end time.Time) (*Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := &Summary{
		TenantID:   tenantID,
		StartTime:  start,
		EndTime:    end,
		ByCategory: make(map[string]int64),
		ByType:     make(map[string]int64),
		ByStatus:   make(map[string]int64),
		BySeverity: make(map[string]int64),
	}

	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM audit_events WHERE tenant_id = ? AND timestamp >= ? AND timestamp <= ?",
		tenantID, start.UTC(), end.UTC()).Scan(&summary.TotalEvents)
	if err != nil {
		return nil, fmt.Errorf("failed to get total count: %w", err)
	}

	groupings := map[string]map[string]int64{
		"category":   summary.ByCategory,
		"event_type": summary.ByType,
		"status":     summary.ByStatus,
		"severity":   summary.BySeverity,
	}
	for column, dest := range groupings {
		if err := s.countByColumn(ctx, tenantID, start, end, column, dest); err != nil {
			return nil, err
		}
	}

	return summary, nil
}

// countByColumn executes a GROUP BY query over the time range and fills
// counts per value.
func (s *DuckDBStore) countByColumn(ctx context.Context, tenantID string, start, end time.Time, column string, dest map[string]int64) error {
	query := fmt.Sprintf(
		"SELECT %s, COUNT(*) FROM audit_events WHERE tenant_id = ? AND timestamp >= ? AND timestamp <= ? GROUP BY %s",
		column, column)
	rows, err := s.db.QueryContext(ctx, query, tenantID, start.UTC(), end.UTC())
	if err != nil {
		return fmt.Errorf("failed to get %s counts: %w", column, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var count int64
		if err := rows.Scan(&key, &count); err == nil {
			dest[key] = count
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating %s counts: %w", column, err)
	}
	return nil
}

// DeleteByIDs removes the identified events for a tenant.
func (s *DuckDBStore) DeleteByIDs(ctx context.Context, tenantID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	placeholders := make([]string, len(ids))
	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, tenantID)
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}

	query := fmt.Sprintf("DELETE FROM audit_events WHERE tenant_id = ? AND id IN (%s)",
		strings.Join(placeholders, ","))

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete audit events: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get deleted count: %w", err)
	}
	return count, nil
}

// DeleteOlderThan removes events older than the given time across all
// tenants.
func (s *DuckDBStore) DeleteOlderThan(ctx context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, "DELETE FROM audit_events WHERE timestamp < ?", olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete old audit events: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get deleted count: %w", err)
	}

	if count > 0 {
		logging.Info().Int64("deleted", count).Time("older_than", olderThan).Msg("Deleted expired audit events")
	}
	return count, nil
}

// buildEventQuery constructs the SQL query based on the filter.
func buildEventQuery(filter QueryFilter, countOnly bool) (string, []interface{}) {
	conditions, args := buildFilterConditions(filter)

	query := selectEventColumns
	if countOnly {
		query = "SELECT COUNT(*) FROM audit_events"
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	if !countOnly {
		query = appendOrderAndLimit(query, filter)
	}

	return query, args
}

// buildFilterConditions builds WHERE clause conditions from a QueryFilter.
func buildFilterConditions(filter QueryFilter) ([]string, []interface{}) {
	var conditions []string
	var args []interface{}

	conditions, args = appendStringCondition(conditions, args, "tenant_id", filter.TenantID)

	if cond := buildSliceCondition("event_type", filter.Types, &args); cond != "" {
		conditions = append(conditions, cond)
	}
	if cond := buildSliceCondition("category", filter.Categories, &args); cond != "" {
		conditions = append(conditions, cond)
	}
	if cond := buildSliceCondition("severity", filter.Severities, &args); cond != "" {
		conditions = append(conditions, cond)
	}
	if cond := buildSliceCondition("status", filter.Statuses, &args); cond != "" {
		conditions = append(conditions, cond)
	}

	conditions, args = appendStringCondition(conditions, args, "user_id", filter.UserID)
	conditions, args = appendStringCondition(conditions, args, "user_email", filter.UserEmail)
	conditions, args = appendStringCondition(conditions, args, "entity_type", filter.EntityType)
	conditions, args = appendStringCondition(conditions, args, "entity_id", filter.EntityID)
	conditions, args = appendStringCondition(conditions, args, "ip_address", filter.IPAddress)
	conditions, args = appendStringCondition(conditions, args, "correlation_id", filter.CorrelationID)

	if filter.ComplianceTag != "" {
		conditions = append(conditions, "compliance_tags LIKE ?")
		args = append(args, "%\""+string(filter.ComplianceTag)+"\"%")
	}

	if filter.StartTime != nil {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, filter.StartTime.UTC())
	}
	if filter.EndTime != nil {
		conditions = append(conditions, "timestamp <= ?")
		args = append(args, filter.EndTime.UTC())
	}

	if filter.SearchText != "" {
		conditions = append(conditions, "(LOWER(description) LIKE ? OR LOWER(action) LIKE ?)")
		pattern := "%" + strings.ToLower(filter.SearchText) + "%"
		args = append(args, pattern, pattern)
	}

	return conditions, args
}

// buildSliceCondition creates a SQL IN condition for a slice of string values.
func buildSliceCondition[T ~string](column string, values []T, args *[]interface{}) string {
	if len(values) == 0 {
		return ""
	}
	placeholders := make([]string, len(values))
	for i, v := range values {
		placeholders[i] = "?"
		*args = append(*args, string(v))
	}
	return fmt.Sprintf("%s IN (%s)", column, strings.Join(placeholders, ","))
}

// appendStringCondition adds a string equality condition if value is non-empty.
func appendStringCondition(conditions []string, args []interface{}, column, value string) ([]string, []interface{}) {
	if value != "" {
		conditions = append(conditions, column+" = ?")
		args = append(args, value)
	}
	return conditions, args
}

// appendOrderAndLimit adds ORDER BY, LIMIT, and OFFSET clauses.
func appendOrderAndLimit(query string, filter QueryFilter) string {
	orderBy := "timestamp"
	validFields := map[string]bool{
		"timestamp": true, "event_type": true, "category": true,
		"severity": true, "status": true, "user_id": true,
	}
	if filter.OrderBy != "" && validFields[filter.OrderBy] {
		orderBy = filter.OrderBy
	}

	if filter.OrderDesc {
		query += fmt.Sprintf(" ORDER BY %s DESC", orderBy)
	} else {
		query += fmt.Sprintf(" ORDER BY %s ASC", orderBy)
	}

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	return query
}

// scannedEventData holds raw scanned values from the database.
type scannedEventData struct {
	event          Event
	eventType      string
	category       string
	severity       string
	riskLevel      string
	tags           sql.NullString
	classification sql.NullString
	userID         sql.NullString
	userEmail      sql.NullString
	userRole       sql.NullString
	ipAddress      sql.NullString
	userAgent      sql.NullString
	sessionID      sql.NullString
	entityType     sql.NullString
	entityID       sql.NullString
	entityName     sql.NullString
	correlationID  sql.NullString
	userName       sql.NullString
	httpMethod     sql.NullString
	httpPath       sql.NullString
	details        sql.NullString
	beforeState    sql.NullString
	afterState     sql.NullString
	status         string
	errorMessage   sql.NullString
	durationMS     sql.NullInt64
	parentEventID  sql.NullString
}

// scanDestinations returns pointers to all fields for scanning, in
// selectEventColumns order.
func (d *scannedEventData) scanDestinations() []interface{} {
	return []interface{}{
		&d.event.ID,
		&d.event.TenantID,
		&d.event.Timestamp,
		&d.eventType,
		&d.event.Action,
		&d.category,
		&d.severity,
		&d.riskLevel,
		&d.tags,
		&d.classification,
		&d.userID,
		&d.userEmail,
		&d.userName,
		&d.userRole,
		&d.sessionID,
		&d.entityType,
		&d.entityID,
		&d.entityName,
		&d.ipAddress,
		&d.userAgent,
		&d.httpMethod,
		&d.httpPath,
		&d.correlationID,
		&d.event.Description,
		&d.details,
		&d.beforeState,
		&d.afterState,
		&d.status,
		&d.errorMessage,
		&d.durationMS,
		&d.parentEventID,
	}
}

// toEvent converts scanned data to a fully populated Event.
func (d *scannedEventData) toEvent() *Event {
	d.event.Type = EventType(d.eventType)
	d.event.Category = Category(d.category)
	d.event.Severity = Severity(d.severity)
	d.event.RiskLevel = RiskLevel(d.riskLevel)
	d.event.Status = Status(d.status)
	d.event.DataClassification = DataClassification(d.classification.String)

	d.event.Actor = Actor{
		UserID:    d.userID.String,
		UserEmail: d.userEmail.String,
		UserName:  d.userName.String,
		UserRole:  d.userRole.String,
		SessionID: d.sessionID.String,
	}
	d.event.Context = RequestContext{
		IPAddress: d.ipAddress.String,
		UserAgent: d.userAgent.String,
		Endpoint:  d.httpPath.String,
		Method:    d.httpMethod.String,
	}

	if d.entityType.Valid {
		d.event.Target = &Target{
			EntityType: d.entityType.String,
			EntityID:   d.entityID.String,
			EntityName: d.entityName.String,
		}
	}

	d.event.CorrelationID = d.correlationID.String
	d.event.ErrorMessage = d.errorMessage.String
	d.event.ParentEventID = d.parentEventID.String
	if d.durationMS.Valid {
		d.event.DurationMS = d.durationMS.Int64
	}

	if d.tags.Valid && d.tags.String != "" && d.tags.String != "[]" {
		if err := json.Unmarshal([]byte(d.tags.String), &d.event.ComplianceTags); err != nil {
			logging.Debug().Err(err).Str("tags", d.tags.String).Msg("Failed to parse compliance tags JSON")
		}
	}
	d.event.Details = unmarshalPayload(d.details)
	d.event.OldValues = unmarshalPayload(d.beforeState)
	d.event.NewValues = unmarshalPayload(d.afterState)

	return &d.event
}

// unmarshalPayload parses a JSON payload column (if present).
func unmarshalPayload(col sql.NullString) map[string]interface{} {
	if !col.Valid || col.String == "" {
		return nil
	}
	var out map[string]interface{}
	if err := json.Unmarshal([]byte(col.String), &out); err != nil {
		logging.Debug().Err(err).Msg("Failed to parse payload JSON")
		return nil
	}
	return out
}
