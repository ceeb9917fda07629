// Formworks - Field Service Forms, Audit and Compliance
// Copyright 2026 Formworks Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/formworks/formworks

package audit

import "strings"

// RedactionMarker replaces sensitive field values at write time.
const RedactionMarker = "[REDACTED]"

// sensitiveFields are field names whose values are redacted from event
// payloads before persistence. Matching is case-insensitive.
var sensitiveFields = []string{
	"password",
	"token",
	"apikey",
	"api_key",
	"key",
	"secret",
	"ssn",
	"creditcard",
	"credit_card",
}

// DeriveSeverity classifies an event's severity from its shape.
// A failed security event is always critical.
func DeriveSeverity(eventType EventType, category Category, status Status) Severity {
	if status == StatusFailure && category == CategorySecurity {
		return SeverityCritical
	}
	if eventType == EventTypeDelete || category == CategorySecurity {
		return SeverityHigh
	}
	if eventType == EventTypeUpdate || category == CategoryUserManagement {
		return SeverityMedium
	}
	return SeverityLow
}

// DeriveRiskLevel classifies an event's risk from its shape.
func DeriveRiskLevel(eventType EventType, category Category, status Status) RiskLevel {
	if category == CategoryAuthentication && status == StatusFailure {
		return RiskHigh
	}
	if eventType == EventTypeDelete || category == CategorySecurity {
		return RiskHigh
	}
	if eventType == EventTypeExport {
		return RiskMedium
	}
	if category == CategoryData && (eventType == EventTypeRead || eventType == EventTypeAccess) {
		return RiskMedium
	}
	if eventType == EventTypeUpdate {
		return RiskLow
	}
	return RiskNone
}

// DeriveComplianceTags assigns regulatory tags. Tags are additive; a
// single event may carry several.
func DeriveComplianceTags(eventType EventType, category Category, target *Target) []ComplianceTag {
	var tags []ComplianceTag

	if category == CategoryData || (target != nil && target.EntityType == "user") {
		tags = append(tags, TagGDPR)
	}
	if category == CategoryAuthentication || category == CategorySecurity {
		tags = append(tags, TagISO27001)
	}
	if category == CategoryUserManagement || eventType == EventTypeAdmin {
		tags = append(tags, TagSOX)
	}

	return tags
}

// DeriveDataClassification assigns a data sensitivity level from the
// event shape. Caller-provided values always take precedence.
func DeriveDataClassification(category Category, target *Target) DataClassification {
	switch {
	case category == CategorySecurity || category == CategoryAuthentication:
		return ClassificationRestricted
	case category == CategoryUserManagement || (target != nil && target.EntityType == "user"):
		return ClassificationConfidential
	case category == CategorySystem:
		return ClassificationPublic
	default:
		return ClassificationInternal
	}
}

// Sanitize returns a copy of the payload with sensitive field values
// replaced by the redaction marker. Nested maps are sanitized
// recursively. A nil input is returned unchanged.
func Sanitize(payload map[string]interface{}) map[string]interface{} {
	if payload == nil {
		return nil
	}

	out := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		if isSensitiveField(k) {
			out[k] = RedactionMarker
			continue
		}
		if nested, ok := v.(map[string]interface{}); ok {
			out[k] = Sanitize(nested)
			continue
		}
		out[k] = v
	}
	return out
}

// isSensitiveField reports whether a field name is on the redaction list.
func isSensitiveField(name string) bool {
	lower := strings.ToLower(name)
	for _, f := range sensitiveFields {
		if lower == f {
			return true
		}
	}
	return false
}
