// Formworks - Field Service Forms, Audit and Compliance
// Copyright 2026 Formworks Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/formworks/formworks

package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/formworks/formworks/internal/audit"
	"github.com/formworks/formworks/internal/threat"
)

// seedFailedLoginsFromIP writes n failed logins from one source
// address through the ingestion service.
func seedFailedLoginsFromIP(t *testing.T, env *testEnv, ip string, n int) {
	t.Helper()
	ctx := &audit.Context{TenantID: testTenant, IPAddress: ip, UserEmail: "tech@example.com"}
	for i := 0; i < n; i++ {
		if _, err := env.service.LogEvent(context.Background(), ctx, audit.EventInput{
			Type:        audit.EventTypeLogin,
			Action:      "user_login",
			Category:    audit.CategoryAuthentication,
			Description: fmt.Sprintf("Failed login attempt %d", i),
			Status:      audit.StatusFailure,
			Timestamp:   time.Now().Add(-time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatalf("seed failed login: %v", err)
		}
	}
	env.service.Wait()
}

func TestAnalyzeDetectsBruteForce(t *testing.T) {
	env := newTestEnv(t)
	seedFailedLoginsFromIP(t, env, "203.0.113.7", 6)

	rec := env.do(t, http.MethodPost, "/api/v1/threat/analyze?window_hours=24", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200\nbody: %s", rec.Code, rec.Body.String())
	}

	data := dataMap(t, decodeEnvelope(t, rec))
	alerts, _ := data["alerts"].([]interface{})

	found := false
	for _, raw := range alerts {
		alert, _ := raw.(map[string]interface{})
		if alert["type"] == string(threat.AlertBruteForce) {
			found = true
			if conf, _ := alert["confidence"].(float64); conf < 50 {
				t.Errorf("brute force confidence = %v, want >= 50", conf)
			}
		}
	}
	if !found {
		t.Fatalf("no brute_force alert in %d alerts", len(alerts))
	}
}

func TestAnalyzeBelowThresholdReturnsNoBruteForce(t *testing.T) {
	env := newTestEnv(t)
	seedFailedLoginsFromIP(t, env, "203.0.113.7", 4)

	rec := env.do(t, http.MethodPost, "/api/v1/threat/analyze", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	data := dataMap(t, decodeEnvelope(t, rec))
	alerts, _ := data["alerts"].([]interface{})
	for _, raw := range alerts {
		alert, _ := raw.(map[string]interface{})
		if alert["type"] == string(threat.AlertBruteForce) {
			t.Fatal("brute_force alert fired below threshold")
		}
	}
}

func TestRecentAlertsAfterAnalyze(t *testing.T) {
	env := newTestEnv(t)
	seedFailedLoginsFromIP(t, env, "203.0.113.7", 6)

	if rec := env.do(t, http.MethodPost, "/api/v1/threat/analyze", nil); rec.Code != http.StatusOK {
		t.Fatalf("analyze status = %d", rec.Code)
	}

	rec := env.do(t, http.MethodGet, "/api/v1/threat/alerts?limit=10", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	data := dataMap(t, decodeEnvelope(t, rec))
	if count, _ := data["count"].(float64); count < 1 {
		t.Fatalf("count = %v, want >= 1", data["count"])
	}
}

func TestListRules(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/threat/rules", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	data := dataMap(t, decodeEnvelope(t, rec))
	rules, _ := data["rules"].([]interface{})
	if len(rules) != 5 {
		t.Fatalf("rules = %d, want 5", len(rules))
	}
	for _, raw := range rules {
		rule, _ := raw.(map[string]interface{})
		if enabled, _ := rule["enabled"].(bool); !enabled {
			t.Errorf("rule %v disabled by default", rule["type"])
		}
	}
}

func TestSetRuleEnabled(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost,
		"/api/v1/threat/rules/brute_force/enable",
		setRuleRequest{Enabled: false})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200\nbody: %s", rec.Code, rec.Body.String())
	}

	// Disabled rule stays silent even over the threshold.
	seedFailedLoginsFromIP(t, env, "203.0.113.7", 8)
	rec = env.do(t, http.MethodPost, "/api/v1/threat/analyze", nil)
	data := dataMap(t, decodeEnvelope(t, rec))
	alerts, _ := data["alerts"].([]interface{})
	for _, raw := range alerts {
		alert, _ := raw.(map[string]interface{})
		if alert["type"] == string(threat.AlertBruteForce) {
			t.Fatal("disabled brute_force rule produced an alert")
		}
	}

	rec = env.do(t, http.MethodPost,
		"/api/v1/threat/rules/no_such_rule/enable",
		setRuleRequest{Enabled: true})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown rule status = %d, want 404", rec.Code)
	}
}

func TestAnalyzeRequiresTenant(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/threat/analyze", nil)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
