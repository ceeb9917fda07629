// Formworks - Field Service Forms, Audit and Compliance
// Copyright 2026 Formworks Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/formworks/formworks

package retention

import (
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
)

func newTestHistory(t *testing.T) *BadgerHistory {
	t.Helper()

	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		t.Fatalf("Failed to open badger: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Failed to close badger: %v", err)
		}
	})

	return NewBadgerHistory(db)
}

func TestHistoryTTL(t *testing.T) {
	tests := []struct {
		name string
		days int
		want time.Duration
	}{
		{"configured days", 90, 90 * 24 * time.Hour},
		{"single day", 1, 24 * time.Hour},
		{"zero falls back to default", 0, defaultHistoryTTL},
		{"negative falls back to default", -7, defaultHistoryTTL},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := historyTTL(tt.days); got != tt.want {
				t.Errorf("historyTTL(%d) = %v, want %v", tt.days, got, tt.want)
			}
		})
	}
}

func TestHistoryRecordAndList(t *testing.T) {
	history := newTestHistory(t)
	base := time.Date(2026, 8, 1, 2, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		err := history.Record(&ArchiveResult{
			PolicyID:       "policy-1",
			EntityType:     EntityForm,
			RecordsDeleted: int64(i),
			ExecutedAt:     base.AddDate(0, 0, i),
		})
		if err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}
	// Another policy's runs must not leak in.
	err := history.Record(&ArchiveResult{
		PolicyID:   "policy-2",
		EntityType: EntityReport,
		ExecutedAt: base,
	})
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	runs, err := history.List("policy-1", 10)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("got %d runs, want 3", len(runs))
	}

	// Newest first.
	for i := 1; i < len(runs); i++ {
		if runs[i].ExecutedAt.After(runs[i-1].ExecutedAt) {
			t.Errorf("runs out of order: %v before %v", runs[i-1].ExecutedAt, runs[i].ExecutedAt)
		}
	}
}

func TestHistoryListLimit(t *testing.T) {
	history := newTestHistory(t)
	base := time.Date(2026, 8, 1, 2, 0, 0, 0, time.UTC)

	for i := 0; i < 10; i++ {
		err := history.Record(&ArchiveResult{
			PolicyID:   "policy-1",
			ExecutedAt: base.Add(time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	runs, err := history.List("policy-1", 4)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(runs) != 4 {
		t.Errorf("got %d runs, want 4", len(runs))
	}
}

func TestHistoryPrune(t *testing.T) {
	history := newTestHistory(t)

	err := history.Record(&ArchiveResult{PolicyID: "policy-1", ExecutedAt: time.Now().UTC()})
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	if err := history.Prune("policy-1"); err != nil {
		t.Fatalf("Prune() error = %v", err)
	}

	runs, err := history.List("policy-1", 10)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("got %d runs after prune, want 0", len(runs))
	}
}

func TestHistoryRejectsNilResult(t *testing.T) {
	history := newTestHistory(t)
	if err := history.Record(nil); err == nil {
		t.Error("nil result should be rejected")
	}
}
