// Formworks - Field Service Forms, Audit and Compliance
// Copyright 2026 Formworks Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/formworks/formworks

package retention

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryPolicyStoreCRUD(t *testing.T) {
	store := NewMemoryPolicyStore()
	ctx := context.Background()

	policy := basePolicy(EntityForm)
	if err := store.Save(ctx, policy); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if policy.ID == "" {
		t.Fatal("Save() should assign an ID")
	}

	got, err := store.Get(ctx, "t1", policy.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Name != policy.Name {
		t.Errorf("name = %s, want %s", got.Name, policy.Name)
	}

	if _, err := store.Get(ctx, "other-tenant", policy.ID); err == nil {
		t.Error("Get() across tenants should fail")
	}

	second := basePolicy(EntityReport)
	second.Name = "another-policy"
	if err := store.Save(ctx, second); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	listed, err := store.List(ctx, "t1")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("got %d policies, want 2", len(listed))
	}
	// Ordered by name.
	if listed[0].Name != "another-policy" {
		t.Errorf("first policy = %s, want another-policy", listed[0].Name)
	}

	if err := store.Delete(ctx, "t1", policy.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Get(ctx, "t1", policy.ID); err == nil {
		t.Error("deleted policy should be gone")
	}
	if err := store.Delete(ctx, "t1", policy.ID); err == nil {
		t.Error("deleting twice should fail")
	}
}

func TestMemoryPolicyStoreNameUniquePerTenant(t *testing.T) {
	store := NewMemoryPolicyStore()
	ctx := context.Background()

	first := basePolicy(EntityForm)
	if err := store.Save(ctx, first); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	duplicate := basePolicy(EntityReport)
	err := store.Save(ctx, duplicate)
	if !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("Save() with duplicate name error = %v, want ErrDuplicateName", err)
	}

	// The same name in another tenant is fine.
	otherTenant := basePolicy(EntityForm)
	otherTenant.TenantID = "t2"
	if err := store.Save(ctx, otherTenant); err != nil {
		t.Fatalf("Save() in other tenant error = %v", err)
	}

	// Re-saving the policy itself keeps its own name.
	first.Description = "updated"
	if err := store.Save(ctx, first); err != nil {
		t.Fatalf("Save() update error = %v", err)
	}

	listed, err := store.List(ctx, "t1")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("got %d policies for t1, want 1", len(listed))
	}
}

func TestMemoryPolicyStoreUpdateStats(t *testing.T) {
	store := NewMemoryPolicyStore()
	ctx := context.Background()

	policy := basePolicy(EntityForm)
	if err := store.Save(ctx, policy); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	now := time.Now().UTC()
	stats := Stats{LastRunAt: &now, TotalArchived: 5, TotalDeleted: 5, TotalArchivedBytes: 1024}
	if err := store.UpdateStats(ctx, "t1", policy.ID, stats); err != nil {
		t.Fatalf("UpdateStats() error = %v", err)
	}

	got, err := store.Get(ctx, "t1", policy.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Stats.TotalArchived != 5 || got.Stats.TotalArchivedBytes != 1024 {
		t.Errorf("stats = %+v, want archived 5 bytes 1024", got.Stats)
	}

	if err := store.UpdateStats(ctx, "t1", "missing", stats); err == nil {
		t.Error("updating a missing policy should fail")
	}
}

func TestMemoryPolicyStoreRejectsInvalid(t *testing.T) {
	store := NewMemoryPolicyStore()
	ctx := context.Background()

	tests := []struct {
		name   string
		modify func(*Policy)
	}{
		{name: "missing_tenant", modify: func(p *Policy) { p.TenantID = "" }},
		{name: "missing_name", modify: func(p *Policy) { p.Name = "" }},
		{name: "bad_entity_type", modify: func(p *Policy) { p.EntityType = "widget" }},
		{name: "zero_period", modify: func(p *Policy) { p.Period.Value = 0 }},
		{name: "bad_period_unit", modify: func(p *Policy) { p.Period.Unit = "fortnights" }},
		{name: "bad_frequency", modify: func(p *Policy) { p.Schedule.Frequency = "hourly" }},
		{name: "bad_hour", modify: func(p *Policy) { p.Schedule.Hour = 24 }},
		{name: "bad_archive_format", modify: func(p *Policy) { p.ArchiveFormat = "xml" }},
		{name: "bad_condition_operator", modify: func(p *Policy) {
			p.Conditions = []Condition{{Field: "status", Operator: "between"}}
		}},
		{name: "empty_condition_field", modify: func(p *Policy) {
			p.Conditions = []Condition{{Operator: OpExists}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := basePolicy(EntityForm)
			tt.modify(policy)
			if err := store.Save(ctx, policy); err == nil {
				t.Error("Save() should reject invalid policy")
			}
		})
	}
}

func TestPeriodCutoff(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		period Period
		want   time.Time
	}{
		{Period{Value: 30, Unit: UnitDays}, time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)},
		{Period{Value: 2, Unit: UnitMonths}, time.Date(2026, 6, 30, 12, 0, 0, 0, time.UTC)},
		{Period{Value: 2, Unit: UnitYears}, time.Date(2024, 8, 30, 12, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		if got := tt.period.CutoffFrom(now); !got.Equal(tt.want) {
			t.Errorf("CutoffFrom(%d %s) = %v, want %v", tt.period.Value, tt.period.Unit, got, tt.want)
		}
	}
}

func TestLegalHoldBlocks(t *testing.T) {
	if (LegalHold{Enabled: true, ExemptFromDeletion: false}).Blocks() {
		t.Error("hold without deletion exemption should not block")
	}
	if (LegalHold{Enabled: false, ExemptFromDeletion: true}).Blocks() {
		t.Error("disabled hold should not block")
	}
	if !(LegalHold{Enabled: true, ExemptFromDeletion: true}).Blocks() {
		t.Error("enabled exempting hold should block")
	}
}
