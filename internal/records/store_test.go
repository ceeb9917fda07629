// Formworks - Field Service Forms, Audit and Compliance
// Copyright 2026 Formworks Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/formworks/formworks

package records

import (
	"context"
	"testing"
	"time"
)

func newRecord(id, tenantID string, entityType EntityType, createdAt time.Time) *Record {
	return &Record{
		ID:         id,
		TenantID:   tenantID,
		EntityType: entityType,
		Fields:     map[string]interface{}{"name": "record-" + id},
		CreatedAt:  createdAt,
	}
}

func TestMemoryStoreSaveValidation(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	tests := []struct {
		name    string
		record  *Record
		wantErr bool
	}{
		{name: "nil_record", record: nil, wantErr: true},
		{name: "missing_id", record: &Record{TenantID: "t1", EntityType: EntityForm}, wantErr: true},
		{name: "missing_tenant", record: &Record{ID: "r1", EntityType: EntityForm}, wantErr: true},
		{name: "invalid_entity_type", record: &Record{ID: "r1", TenantID: "t1", EntityType: "widget"}, wantErr: true},
		{name: "valid", record: newRecord("r1", "t1", EntityForm, time.Now()), wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.Save(ctx, tt.record)
			if (err != nil) != tt.wantErr {
				t.Errorf("Save() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMemoryStoreGetIsTenantScoped(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Save(ctx, newRecord("r1", "tenant-a", EntityForm, time.Now())); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if _, err := store.Get(ctx, "tenant-a", "r1"); err != nil {
		t.Errorf("Get() within tenant error = %v", err)
	}
	if _, err := store.Get(ctx, "tenant-b", "r1"); err == nil {
		t.Error("Get() across tenants should fail")
	}
}

func TestMemoryStoreFindOlderThan(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()
	cutoff := now.Add(-30 * 24 * time.Hour)

	seed := []*Record{
		newRecord("old-1", "t1", EntityForm, cutoff.Add(-48*time.Hour)),
		newRecord("old-2", "t1", EntityForm, cutoff.Add(-24*time.Hour)),
		newRecord("fresh", "t1", EntityForm, cutoff.Add(24*time.Hour)),
		newRecord("old-report", "t1", EntityReport, cutoff.Add(-24*time.Hour)),
		newRecord("old-other-tenant", "t2", EntityForm, cutoff.Add(-24*time.Hour)),
	}
	for _, r := range seed {
		if err := store.Save(ctx, r); err != nil {
			t.Fatalf("Save(%s) error = %v", r.ID, err)
		}
	}

	results, err := store.FindOlderThan(ctx, "t1", EntityForm, cutoff)
	if err != nil {
		t.Fatalf("FindOlderThan() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d records, want 2", len(results))
	}
	// Oldest first.
	if results[0].ID != "old-1" || results[1].ID != "old-2" {
		t.Errorf("got order [%s, %s], want [old-1, old-2]", results[0].ID, results[1].ID)
	}
}

func TestMemoryStoreDeleteByIDs(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	if err := store.Save(ctx, newRecord("r1", "t1", EntityForm, now)); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := store.Save(ctx, newRecord("r2", "t2", EntityForm, now)); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	// Deleting from t1 must not touch t2's record with a listed ID.
	deleted, err := store.DeleteByIDs(ctx, "t1", []string{"r1", "r2", "missing"})
	if err != nil {
		t.Fatalf("DeleteByIDs() error = %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}
	if _, err := store.Get(ctx, "t2", "r2"); err != nil {
		t.Errorf("other tenant's record should survive: %v", err)
	}

	deleted, err = store.DeleteByIDs(ctx, "t1", nil)
	if err != nil {
		t.Fatalf("DeleteByIDs(nil) error = %v", err)
	}
	if deleted != 0 {
		t.Errorf("deleted = %d for empty ID list, want 0", deleted)
	}
}

func TestMemoryStoreCountByType(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	for i, et := range []EntityType{EntityForm, EntityForm, EntityReport} {
		r := newRecord(string(rune('a'+i)), "t1", et, now)
		if err := store.Save(ctx, r); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	count, err := store.CountByType(ctx, "t1", EntityForm)
	if err != nil {
		t.Fatalf("CountByType() error = %v", err)
	}
	if count != 2 {
		t.Errorf("form count = %d, want 2", count)
	}
}

func TestConcreteEntityTypesAreValid(t *testing.T) {
	for _, et := range ConcreteEntityTypes() {
		if !ValidEntityType(et) {
			t.Errorf("ValidEntityType(%s) = false, want true", et)
		}
	}
	if ValidEntityType("all") {
		t.Error(`ValidEntityType("all") = true; "all" is policy sugar, not a concrete type`)
	}
}
