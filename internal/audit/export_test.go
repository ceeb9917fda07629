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
	"testing"
	"time"

	"github.com/goccy/go-json"
)

func TestExportJSON(t *testing.T) {
	store := NewMemoryStore(0)
	ctx := context.Background()
	now := time.Now().UTC()

	for i := 0; i < 3; i++ {
		if err := store.Save(ctx, makeEvent("t1", fmt.Sprintf("e%d", i), now, nil)); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	data, err := Export(ctx, store, DefaultQueryFilter("t1"), ExportJSON)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	var events []Event
	if err := json.Unmarshal(data, &events); err != nil {
		t.Fatalf("export is not valid JSON: %v", err)
	}
	if len(events) != 3 {
		t.Errorf("exported %d events, want 3", len(events))
	}
}

func TestExportCSV(t *testing.T) {
	store := NewMemoryStore(0)
	ctx := context.Background()
	now := time.Now().UTC()

	event := makeEvent("t1", "e1", now, func(e *Event) {
		e.Actor.UserEmail = "alice@example.com"
		e.ComplianceTags = []ComplianceTag{TagGDPR, TagISO27001}
		e.Target = &Target{EntityType: "form", EntityID: "f1", EntityName: "Site Survey"}
	})
	if err := store.Save(ctx, event); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	data, err := Export(ctx, store, DefaultQueryFilter("t1"), ExportCSV)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		t.Fatalf("export is not valid CSV: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d CSV rows, want header + 1", len(records))
	}
	header, row := records[0], records[1]
	if len(header) != len(row) {
		t.Fatalf("row width %d does not match header width %d", len(row), len(header))
	}

	byColumn := make(map[string]string, len(header))
	for i, col := range header {
		byColumn[col] = row[i]
	}
	if byColumn["user_email"] != "alice@example.com" {
		t.Errorf("user_email = %q", byColumn["user_email"])
	}
	if byColumn["compliance_tags"] != "GDPR;ISO27001" {
		t.Errorf("compliance_tags = %q", byColumn["compliance_tags"])
	}
	if byColumn["entity_name"] != "Site Survey" {
		t.Errorf("entity_name = %q", byColumn["entity_name"])
	}
}

func TestExportCapped(t *testing.T) {
	store := NewMemoryStore(ExportCap + 100)
	ctx := context.Background()
	now := time.Now().UTC()

	// A filter asking for more than the cap is clamped.
	filter := DefaultQueryFilter("t1")
	filter.Limit = ExportCap + 50

	for i := 0; i < 20; i++ {
		if err := store.Save(ctx, makeEvent("t1", fmt.Sprintf("e%d", i), now, nil)); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	data, err := Export(ctx, store, filter, ExportJSON)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	var events []Event
	if err := json.Unmarshal(data, &events); err != nil {
		t.Fatalf("export is not valid JSON: %v", err)
	}
	if len(events) != 20 {
		t.Errorf("exported %d events, want 20", len(events))
	}
}

func TestExportUnsupportedFormat(t *testing.T) {
	store := NewMemoryStore(0)
	if _, err := Export(context.Background(), store, DefaultQueryFilter("t1"), ExportFormat("xml")); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}
