// Formworks - Field Service Forms, Audit and Compliance
// Copyright 2026 Formworks Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/formworks/formworks

package validation

import (
	"strings"
	"testing"
)

type testPolicyRequest struct {
	Name      string `validate:"required,min=1,max=64"`
	Frequency string `validate:"required,oneof=daily weekly monthly"`
	Timezone  string `validate:"omitempty,timezone_name"`
	Hour      int    `validate:"gte=0,lte=23"`
}

func TestValidateStructPasses(t *testing.T) {
	req := testPolicyRequest{
		Name:      "expire-audit-logs",
		Frequency: "daily",
		Timezone:  "America/Chicago",
		Hour:      2,
	}

	if err := ValidateStruct(&req); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}

func TestValidateStructFailures(t *testing.T) {
	tests := []struct {
		name      string
		req       testPolicyRequest
		wantField string
	}{
		{
			name:      "missing name",
			req:       testPolicyRequest{Frequency: "daily", Hour: 2},
			wantField: "Name",
		},
		{
			name:      "invalid frequency",
			req:       testPolicyRequest{Name: "p", Frequency: "hourly", Hour: 2},
			wantField: "Frequency",
		},
		{
			name:      "invalid timezone",
			req:       testPolicyRequest{Name: "p", Frequency: "daily", Timezone: "Mars/Olympus", Hour: 2},
			wantField: "Timezone",
		},
		{
			name:      "hour out of range",
			req:       testPolicyRequest{Name: "p", Frequency: "daily", Hour: 24},
			wantField: "Hour",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(&tt.req)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if err.Errors()[0].Field() != tt.wantField {
				t.Errorf("failed field = %s, want %s", err.Errors()[0].Field(), tt.wantField)
			}
		})
	}
}

func TestToAPIErrorSingleAndMultiple(t *testing.T) {
	single := ValidateStruct(&testPolicyRequest{Name: "p", Frequency: "bad", Hour: 2})
	if single == nil {
		t.Fatal("expected error")
	}
	apiErr := single.ToAPIError()
	if apiErr.Code != "VALIDATION_ERROR" {
		t.Errorf("code = %s, want VALIDATION_ERROR", apiErr.Code)
	}
	if apiErr.Details["field"] != "Frequency" {
		t.Errorf("details field = %v, want Frequency", apiErr.Details["field"])
	}

	multi := ValidateStruct(&testPolicyRequest{Hour: 99})
	if multi == nil {
		t.Fatal("expected errors")
	}
	multiErr := multi.ToAPIError()
	if !strings.Contains(multiErr.Message, ";") {
		t.Errorf("expected combined message, got %q", multiErr.Message)
	}
	if _, ok := multiErr.Details["fields"]; !ok {
		t.Error("expected fields detail for multiple errors")
	}
}
