// Formworks - Field Service Forms, Audit and Compliance
// Copyright 2026 Formworks Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/formworks/formworks

package audit

import "testing"

func TestDeriveSeverity(t *testing.T) {
	tests := []struct {
		name      string
		eventType EventType
		category  Category
		status    Status
		want      Severity
	}{
		{"failed security event is critical", EventTypeSystem, CategorySecurity, StatusFailure, SeverityCritical},
		{"successful security event is high", EventTypeSystem, CategorySecurity, StatusSuccess, SeverityHigh},
		{"delete is high", EventTypeDelete, CategoryData, StatusSuccess, SeverityHigh},
		{"failed delete is high", EventTypeDelete, CategoryData, StatusFailure, SeverityHigh},
		{"update is medium", EventTypeUpdate, CategoryData, StatusSuccess, SeverityMedium},
		{"user management is medium", EventTypeCreate, CategoryUserManagement, StatusSuccess, SeverityMedium},
		{"plain read is low", EventTypeRead, CategoryData, StatusSuccess, SeverityLow},
		{"login success is low", EventTypeLogin, CategoryAuthentication, StatusSuccess, SeverityLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeriveSeverity(tt.eventType, tt.category, tt.status); got != tt.want {
				t.Errorf("DeriveSeverity(%s, %s, %s) = %s, want %s",
					tt.eventType, tt.category, tt.status, got, tt.want)
			}
		})
	}
}

// Every failed security event must classify as critical, for any event type.
func TestFailedSecurityEventsAlwaysCritical(t *testing.T) {
	types := []EventType{
		EventTypeCreate, EventTypeRead, EventTypeUpdate, EventTypeDelete,
		EventTypeLogin, EventTypeLogout, EventTypeAccess, EventTypeExport,
		EventTypeImport, EventTypeAdmin, EventTypeSystem,
	}
	for _, et := range types {
		if got := DeriveSeverity(et, CategorySecurity, StatusFailure); got != SeverityCritical {
			t.Errorf("DeriveSeverity(%s, security, failure) = %s, want critical", et, got)
		}
	}
}

func TestDeriveRiskLevel(t *testing.T) {
	tests := []struct {
		name      string
		eventType EventType
		category  Category
		status    Status
		want      RiskLevel
	}{
		{"failed authentication is high", EventTypeLogin, CategoryAuthentication, StatusFailure, RiskHigh},
		{"delete is high", EventTypeDelete, CategoryData, StatusSuccess, RiskHigh},
		{"security category is high", EventTypeSystem, CategorySecurity, StatusSuccess, RiskHigh},
		{"export is medium", EventTypeExport, CategoryData, StatusSuccess, RiskMedium},
		{"data read is medium", EventTypeRead, CategoryData, StatusSuccess, RiskMedium},
		{"data access is medium", EventTypeAccess, CategoryData, StatusSuccess, RiskMedium},
		{"update is low", EventTypeUpdate, CategorySystem, StatusSuccess, RiskLow},
		{"system event is none", EventTypeSystem, CategorySystem, StatusSuccess, RiskNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeriveRiskLevel(tt.eventType, tt.category, tt.status); got != tt.want {
				t.Errorf("DeriveRiskLevel(%s, %s, %s) = %s, want %s",
					tt.eventType, tt.category, tt.status, got, tt.want)
			}
		})
	}
}

func TestDeriveComplianceTags(t *testing.T) {
	tests := []struct {
		name      string
		eventType EventType
		category  Category
		target    *Target
		want      []ComplianceTag
	}{
		{"data category gets GDPR", EventTypeRead, CategoryData, nil, []ComplianceTag{TagGDPR}},
		{"user target gets GDPR", EventTypeUpdate, CategorySystem, &Target{EntityType: "user"}, []ComplianceTag{TagGDPR}},
		{"authentication gets ISO27001", EventTypeLogin, CategoryAuthentication, nil, []ComplianceTag{TagISO27001}},
		{"security gets ISO27001", EventTypeSystem, CategorySecurity, nil, []ComplianceTag{TagISO27001}},
		{"user management gets SOX", EventTypeCreate, CategoryUserManagement, nil, []ComplianceTag{TagSOX}},
		{"admin event gets SOX", EventTypeAdmin, CategorySystem, nil, []ComplianceTag{TagSOX}},
		{"plain system event has no tags", EventTypeSystem, CategorySystem, nil, nil},
		{
			"tags are additive",
			EventTypeAdmin, CategoryUserManagement, &Target{EntityType: "user"},
			[]ComplianceTag{TagGDPR, TagSOX},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeriveComplianceTags(tt.eventType, tt.category, tt.target)
			if len(got) != len(tt.want) {
				t.Fatalf("DeriveComplianceTags returned %v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("tag %d: got %s, want %s", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestSanitize(t *testing.T) {
	t.Run("redacts sensitive fields and keeps others", func(t *testing.T) {
		in := map[string]interface{}{
			"password": "x",
			"notes":    "y",
		}
		out := Sanitize(in)
		if out["password"] != RedactionMarker {
			t.Errorf("password = %v, want redaction marker", out["password"])
		}
		if out["notes"] != "y" {
			t.Errorf("notes = %v, want unchanged", out["notes"])
		}
	})

	t.Run("nil input returns nil", func(t *testing.T) {
		if out := Sanitize(nil); out != nil {
			t.Errorf("Sanitize(nil) = %v, want nil", out)
		}
	})

	t.Run("matching is case-insensitive", func(t *testing.T) {
		in := map[string]interface{}{"Password": "x", "APIKey": "y", "SSN": "z"}
		out := Sanitize(in)
		for k, v := range out {
			if v != RedactionMarker {
				t.Errorf("%s = %v, want redaction marker", k, v)
			}
		}
	})

	t.Run("redacts all listed field names", func(t *testing.T) {
		in := map[string]interface{}{
			"password": "a", "token": "b", "apiKey": "c", "api_key": "d",
			"key": "e", "secret": "f", "ssn": "g", "creditCard": "h", "credit_card": "i",
		}
		out := Sanitize(in)
		for k, v := range out {
			if v != RedactionMarker {
				t.Errorf("%s = %v, want redaction marker", k, v)
			}
		}
	})

	t.Run("recurses into nested maps", func(t *testing.T) {
		in := map[string]interface{}{
			"profile": map[string]interface{}{
				"secret": "x",
				"name":   "y",
			},
		}
		out := Sanitize(in)
		nested, ok := out["profile"].(map[string]interface{})
		if !ok {
			t.Fatalf("profile is not a map: %T", out["profile"])
		}
		if nested["secret"] != RedactionMarker {
			t.Errorf("nested secret = %v, want redaction marker", nested["secret"])
		}
		if nested["name"] != "y" {
			t.Errorf("nested name = %v, want unchanged", nested["name"])
		}
	})

	t.Run("does not mutate the input", func(t *testing.T) {
		in := map[string]interface{}{"password": "x"}
		_ = Sanitize(in)
		if in["password"] != "x" {
			t.Errorf("input mutated: password = %v", in["password"])
		}
	})
}

func TestDeriveDataClassification(t *testing.T) {
	tests := []struct {
		name     string
		category Category
		target   *Target
		want     DataClassification
	}{
		{"security is restricted", CategorySecurity, nil, ClassificationRestricted},
		{"authentication is restricted", CategoryAuthentication, nil, ClassificationRestricted},
		{"user management is confidential", CategoryUserManagement, nil, ClassificationConfidential},
		{"user target is confidential", CategoryData, &Target{EntityType: "user"}, ClassificationConfidential},
		{"system is public", CategorySystem, nil, ClassificationPublic},
		{"data defaults to internal", CategoryData, &Target{EntityType: "form"}, ClassificationInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeriveDataClassification(tt.category, tt.target); got != tt.want {
				t.Errorf("DeriveDataClassification(%s) = %s, want %s", tt.category, got, tt.want)
			}
		})
	}
}
