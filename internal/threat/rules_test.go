// Formworks - Field Service Forms, Audit and Compliance
// Copyright 2026 Formworks Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/formworks/formworks

package threat

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/formworks/formworks/internal/audit"
)

const testTenant = "tenant-1"

// seedStore builds an in-memory audit store preloaded with events.
func seedStore(t *testing.T, events ...audit.Event) *audit.MemoryStore {
	t.Helper()
	store := audit.NewMemoryStore(0)
	for i := range events {
		if err := store.Save(context.Background(), &events[i]); err != nil {
			t.Fatalf("failed to seed event: %v", err)
		}
	}
	return store
}

func testWindow(now time.Time) Window {
	return Window{Start: now.Add(-24 * time.Hour), End: now}
}

func failedLogin(id string, ts time.Time, ip, email string) audit.Event {
	return audit.Event{
		ID:        id,
		TenantID:  testTenant,
		Timestamp: ts,
		Type:      audit.EventTypeLogin,
		Action:    "login",
		Category:  audit.CategoryAuthentication,
		Status:    audit.StatusFailure,
		Actor:     audit.Actor{UserEmail: email},
		Context:   audit.RequestContext{IPAddress: ip},
	}
}

func exportEvent(id string, ts time.Time, userID string) audit.Event {
	return audit.Event{
		ID:        id,
		TenantID:  testTenant,
		Timestamp: ts,
		Type:      audit.EventTypeExport,
		Action:    "export",
		Category:  audit.CategoryData,
		Status:    audit.StatusSuccess,
		Actor:     audit.Actor{UserID: userID, UserEmail: userID + "@example.com"},
	}
}

func readEvent(id string, ts time.Time, userID string) audit.Event {
	return audit.Event{
		ID:        id,
		TenantID:  testTenant,
		Timestamp: ts,
		Type:      audit.EventTypeRead,
		Action:    "read",
		Category:  audit.CategoryData,
		Status:    audit.StatusSuccess,
		Actor:     audit.Actor{UserID: userID},
	}
}

func authzFailure(id string, ts time.Time, userID, role string) audit.Event {
	return audit.Event{
		ID:        id,
		TenantID:  testTenant,
		Timestamp: ts,
		Type:      audit.EventTypeAccess,
		Action:    "permission_denied",
		Category:  audit.CategoryAuthorization,
		Status:    audit.StatusFailure,
		Actor:     audit.Actor{UserID: userID, UserRole: role},
	}
}

func TestBruteForceRuleThreshold(t *testing.T) {
	now := time.Now().UTC()

	tests := []struct {
		name       string
		failures   int
		wantAlerts int
	}{
		{name: "below_threshold", failures: 4, wantAlerts: 0},
		{name: "at_threshold", failures: 5, wantAlerts: 1},
		{name: "above_threshold", failures: 9, wantAlerts: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var events []audit.Event
			for i := 0; i < tt.failures; i++ {
				events = append(events, failedLogin(
					fmt.Sprintf("evt-%d", i),
					now.Add(-time.Duration(i)*time.Minute),
					"203.0.113.7", "victim@example.com"))
			}
			store := seedStore(t, events...)

			rule := NewBruteForceRule()
			alerts, err := rule.Detect(context.Background(), store, testTenant, testWindow(now))
			if err != nil {
				t.Fatalf("Detect() error = %v", err)
			}
			if len(alerts) != tt.wantAlerts {
				t.Fatalf("got %d alerts, want %d", len(alerts), tt.wantAlerts)
			}
			if tt.wantAlerts == 0 {
				return
			}

			alert := alerts[0]
			if alert.Type != AlertBruteForce {
				t.Errorf("alert type = %s, want %s", alert.Type, AlertBruteForce)
			}
			if alert.Confidence < 50 {
				t.Errorf("confidence = %d, want >= 50", alert.Confidence)
			}
			if alert.SourceIP != "203.0.113.7" {
				t.Errorf("source IP = %s, want 203.0.113.7", alert.SourceIP)
			}
		})
	}
}

func TestBruteForceRuleGroupsBySourceAndAccount(t *testing.T) {
	now := time.Now().UTC()

	// 3 failures from each of two sources against the same account.
	// Neither group reaches the threshold on its own.
	var events []audit.Event
	for i := 0; i < 3; i++ {
		events = append(events, failedLogin(fmt.Sprintf("a-%d", i), now.Add(-time.Minute), "198.51.100.1", "victim@example.com"))
		events = append(events, failedLogin(fmt.Sprintf("b-%d", i), now.Add(-time.Minute), "198.51.100.2", "victim@example.com"))
	}
	store := seedStore(t, events...)

	rule := NewBruteForceRule()
	alerts, err := rule.Detect(context.Background(), store, testTenant, testWindow(now))
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if len(alerts) != 0 {
		t.Fatalf("got %d alerts, want 0", len(alerts))
	}
}

func TestBruteForceRuleIgnoresSuccesses(t *testing.T) {
	now := time.Now().UTC()

	var events []audit.Event
	for i := 0; i < 10; i++ {
		e := failedLogin(fmt.Sprintf("evt-%d", i), now.Add(-time.Minute), "203.0.113.7", "user@example.com")
		e.Status = audit.StatusSuccess
		events = append(events, e)
	}
	store := seedStore(t, events...)

	rule := NewBruteForceRule()
	alerts, err := rule.Detect(context.Background(), store, testTenant, testWindow(now))
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if len(alerts) != 0 {
		t.Fatalf("got %d alerts for successful logins, want 0", len(alerts))
	}
}

func TestDataExfiltrationRuleThreshold(t *testing.T) {
	now := time.Now().UTC()

	tests := []struct {
		name         string
		exports      int
		wantAlerts   int
		wantSeverity audit.Severity
	}{
		{name: "few_exports", exports: 3, wantAlerts: 0},
		{name: "at_threshold", exports: 10, wantAlerts: 1, wantSeverity: audit.SeverityMedium},
		{name: "bulk_exports", exports: 20, wantAlerts: 1, wantSeverity: audit.SeverityHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var events []audit.Event
			for i := 0; i < tt.exports; i++ {
				events = append(events, exportEvent(
					fmt.Sprintf("exp-%d", i),
					now.Add(-time.Duration(i)*time.Minute),
					"user-42"))
			}
			store := seedStore(t, events...)

			rule := NewDataExfiltrationRule()
			alerts, err := rule.Detect(context.Background(), store, testTenant, testWindow(now))
			if err != nil {
				t.Fatalf("Detect() error = %v", err)
			}
			if len(alerts) != tt.wantAlerts {
				t.Fatalf("got %d alerts, want %d", len(alerts), tt.wantAlerts)
			}
			if tt.wantAlerts == 0 {
				return
			}

			alert := alerts[0]
			if alert.Type != AlertDataExfiltration {
				t.Errorf("alert type = %s, want %s", alert.Type, AlertDataExfiltration)
			}
			if alert.Severity != tt.wantSeverity {
				t.Errorf("severity = %s, want %s", alert.Severity, tt.wantSeverity)
			}
		})
	}
}

func TestAnomalousAccessRuleUsesEventTimestamps(t *testing.T) {
	// Saturday 03:00 UTC: well outside business hours.
	offHours := time.Date(2026, 8, 29, 3, 0, 0, 0, time.UTC)
	// Wednesday 10:00 UTC: inside business hours.
	onHours := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)
	windowEnd := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	window := Window{Start: windowEnd.Add(-7 * 24 * time.Hour), End: windowEnd}

	t.Run("off_hours_reads_alert", func(t *testing.T) {
		store := seedStore(t,
			readEvent("r-1", offHours, "user-1"),
			readEvent("r-2", offHours.Add(time.Minute), "user-1"),
			readEvent("r-3", offHours.Add(2*time.Minute), "user-1"),
		)

		rule := NewAnomalousAccessRule(time.UTC)
		alerts, err := rule.Detect(context.Background(), store, testTenant, window)
		if err != nil {
			t.Fatalf("Detect() error = %v", err)
		}
		if len(alerts) != 1 {
			t.Fatalf("got %d alerts, want 1", len(alerts))
		}
		if alerts[0].Type != AlertAnomalousAccess {
			t.Errorf("alert type = %s, want %s", alerts[0].Type, AlertAnomalousAccess)
		}
	})

	t.Run("business_hours_reads_no_alert", func(t *testing.T) {
		store := seedStore(t,
			readEvent("r-1", onHours, "user-1"),
			readEvent("r-2", onHours.Add(time.Minute), "user-1"),
			readEvent("r-3", onHours.Add(2*time.Minute), "user-1"),
		)

		rule := NewAnomalousAccessRule(time.UTC)
		alerts, err := rule.Detect(context.Background(), store, testTenant, window)
		if err != nil {
			t.Fatalf("Detect() error = %v", err)
		}
		if len(alerts) != 0 {
			t.Fatalf("got %d alerts for business-hours access, want 0", len(alerts))
		}
	})

	t.Run("mixed_timestamps_judged_individually", func(t *testing.T) {
		// Two on-hours plus two off-hours: below the threshold of
		// three off-hours events, so no alert.
		store := seedStore(t,
			readEvent("r-1", onHours, "user-1"),
			readEvent("r-2", onHours.Add(time.Minute), "user-1"),
			readEvent("r-3", offHours, "user-1"),
			readEvent("r-4", offHours.Add(time.Minute), "user-1"),
		)

		rule := NewAnomalousAccessRule(time.UTC)
		alerts, err := rule.Detect(context.Background(), store, testTenant, window)
		if err != nil {
			t.Fatalf("Detect() error = %v", err)
		}
		if len(alerts) != 0 {
			t.Fatalf("got %d alerts, want 0", len(alerts))
		}
	})
}

func TestSuspiciousActivityRuleRapidSequences(t *testing.T) {
	now := time.Now().UTC()

	t.Run("rapid_bursts_alert", func(t *testing.T) {
		// Seven events 100ms apart: six adjacent sub-second pairs.
		var events []audit.Event
		base := now.Add(-time.Hour)
		for i := 0; i < 7; i++ {
			events = append(events, readEvent(
				fmt.Sprintf("r-%d", i),
				base.Add(time.Duration(i)*100*time.Millisecond),
				"user-1"))
		}
		store := seedStore(t, events...)

		rule := NewSuspiciousActivityRule()
		alerts, err := rule.Detect(context.Background(), store, testTenant, testWindow(now))
		if err != nil {
			t.Fatalf("Detect() error = %v", err)
		}
		if len(alerts) != 1 {
			t.Fatalf("got %d alerts, want 1", len(alerts))
		}
		if alerts[0].Type != AlertSuspiciousActivity {
			t.Errorf("alert type = %s, want %s", alerts[0].Type, AlertSuspiciousActivity)
		}
	})

	t.Run("human_paced_events_no_alert", func(t *testing.T) {
		var events []audit.Event
		base := now.Add(-time.Hour)
		for i := 0; i < 20; i++ {
			events = append(events, readEvent(
				fmt.Sprintf("r-%d", i),
				base.Add(time.Duration(i)*10*time.Second),
				"user-1"))
		}
		store := seedStore(t, events...)

		rule := NewSuspiciousActivityRule()
		alerts, err := rule.Detect(context.Background(), store, testTenant, testWindow(now))
		if err != nil {
			t.Fatalf("Detect() error = %v", err)
		}
		if len(alerts) != 0 {
			t.Fatalf("got %d alerts for human-paced activity, want 0", len(alerts))
		}
	})
}

func TestPrivilegeEscalationRule(t *testing.T) {
	now := time.Now().UTC()

	tests := []struct {
		name       string
		role       string
		denials    int
		wantAlerts int
	}{
		{name: "technician_repeated_denials", role: "technician", denials: 3, wantAlerts: 1},
		{name: "manager_repeated_denials", role: "manager", denials: 4, wantAlerts: 1},
		{name: "technician_below_threshold", role: "technician", denials: 2, wantAlerts: 0},
		{name: "admin_not_watched", role: "admin", denials: 10, wantAlerts: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var events []audit.Event
			for i := 0; i < tt.denials; i++ {
				events = append(events, authzFailure(
					fmt.Sprintf("d-%d", i),
					now.Add(-time.Duration(i)*time.Minute),
					"user-7", tt.role))
			}
			store := seedStore(t, events...)

			rule := NewPrivilegeEscalationRule()
			alerts, err := rule.Detect(context.Background(), store, testTenant, testWindow(now))
			if err != nil {
				t.Fatalf("Detect() error = %v", err)
			}
			if len(alerts) != tt.wantAlerts {
				t.Fatalf("got %d alerts, want %d", len(alerts), tt.wantAlerts)
			}
			if tt.wantAlerts == 0 {
				return
			}

			alert := alerts[0]
			if alert.Severity != audit.SeverityHigh {
				t.Errorf("severity = %s, want %s", alert.Severity, audit.SeverityHigh)
			}
			if alert.Confidence != 85 {
				t.Errorf("confidence = %d, want 85", alert.Confidence)
			}
		})
	}
}

func TestDisabledRuleReturnsNothing(t *testing.T) {
	now := time.Now().UTC()

	var events []audit.Event
	for i := 0; i < 10; i++ {
		events = append(events, failedLogin(fmt.Sprintf("evt-%d", i), now.Add(-time.Minute), "203.0.113.7", "victim@example.com"))
	}
	store := seedStore(t, events...)

	rule := NewBruteForceRule()
	rule.SetEnabled(false)

	alerts, err := rule.Detect(context.Background(), store, testTenant, testWindow(now))
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if alerts != nil {
		t.Fatalf("disabled rule returned %d alerts, want none", len(alerts))
	}

	rule.SetEnabled(true)
	if !rule.Enabled() {
		t.Error("rule should be enabled after SetEnabled(true)")
	}
}

func TestEvidenceIsBounded(t *testing.T) {
	now := time.Now().UTC()

	var events []audit.Event
	for i := 0; i < 50; i++ {
		events = append(events, failedLogin(fmt.Sprintf("evt-%d", i), now.Add(-time.Duration(i)*time.Second), "203.0.113.7", "victim@example.com"))
	}
	store := seedStore(t, events...)

	rule := NewBruteForceRule()
	alerts, err := rule.Detect(context.Background(), store, testTenant, testWindow(now))
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("got %d alerts, want 1", len(alerts))
	}

	limit := DefaultBruteForceConfig().EvidenceLimit
	if len(alerts[0].Evidence) > limit {
		t.Errorf("evidence length = %d, want <= %d", len(alerts[0].Evidence), limit)
	}
	if len(alerts[0].Evidence) == 0 {
		t.Error("evidence should not be empty")
	}
}
