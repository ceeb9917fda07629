// Formworks - Field Service Forms, Audit and Compliance
// Copyright 2026 Formworks Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/formworks/formworks

package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/formworks/formworks/internal/audit"
	"github.com/formworks/formworks/internal/models"
	"github.com/formworks/formworks/internal/records"
	"github.com/formworks/formworks/internal/retention"
	"github.com/formworks/formworks/internal/threat"
)

const testTenant = "tenant-1"

// testEnv bundles the stores behind a fully wired router so handler
// tests exercise the same middleware chain as production.
type testEnv struct {
	handler     http.Handler
	auditStore  *audit.MemoryStore
	recordStore *records.MemoryStore
	policies    *retention.MemoryPolicyStore
	service     *audit.Service

	build func(history HistoryLister) http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	auditStore := audit.NewMemoryStore(10000)
	recordStore := records.NewMemoryStore()
	policies := retention.NewMemoryPolicyStore()
	service := audit.NewService(auditStore, nil, audit.DefaultConfig())

	threatEngine := threat.NewEngine(auditStore, service, time.UTC)
	retentionEngine := retention.NewEngine(
		policies,
		retention.NewSourceSet(recordStore, auditStore),
		retention.NewArchiver(t.TempDir()),
		nil,
		nil,
	)

	build := func(history HistoryLister) http.Handler {
		router := NewRouter(
			NewChiMiddleware(&ChiMiddlewareConfig{RateLimitDisabled: true}),
			nil, // no auth in handler tests
			NewHealthHandlers(nil, "test"),
			NewAuditHandlers(service, auditStore, nil),
			NewThreatHandlers(threatEngine),
			NewRetentionHandlers(policies, retentionEngine, history),
		)
		return router.Setup()
	}

	return &testEnv{
		handler:     build(nil),
		auditStore:  auditStore,
		recordStore: recordStore,
		policies:    policies,
		service:     service,
		build:       build,
	}
}

// setRetentionHistory swaps in a history lister and rebuilds the
// handler around the same stores.
func (env *testEnv) setRetentionHistory(t *testing.T, history HistoryLister) {
	t.Helper()
	env.handler = env.build(history)
}

// do performs a request against the router with the test tenant header.
func (env *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("X-Tenant-ID", testTenant)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	return rec
}

// doWithoutTenant performs a request with no tenant header or query.
func (env *testEnv) doWithoutTenant(t *testing.T, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	return rec
}

// decodeEnvelope unmarshals a response envelope, failing the test on
// malformed JSON.
func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) models.APIResponse {
	t.Helper()
	var resp models.APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response envelope: %v\nbody: %s", err, rec.Body.String())
	}
	return resp
}

// dataMap extracts the data field as a map.
func dataMap(t *testing.T, resp models.APIResponse) map[string]interface{} {
	t.Helper()
	m, ok := resp.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("response data is not an object: %T", resp.Data)
	}
	return m
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/api/v1/health", "/api/v1/health/live", "/api/v1/health/ready"} {
		rec := env.do(t, http.MethodGet, path, nil)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want 200", path, rec.Code)
		}
		resp := decodeEnvelope(t, rec)
		if resp.Status != "success" {
			t.Errorf("%s: envelope status = %q, want success", path, resp.Status)
		}
	}
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

func TestHealthReadyFailsWhenDatabaseDown(t *testing.T) {
	router := NewRouter(
		NewChiMiddleware(&ChiMiddlewareConfig{RateLimitDisabled: true}),
		nil,
		NewHealthHandlers(failingPinger{}, "test"),
		nil, nil, nil,
	)
	handler := router.Setup()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health/ready", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	resp := decodeEnvelope(t, rec)
	if resp.Error == nil || resp.Error.Code != "STORE_ERROR" {
		t.Fatalf("error = %+v, want STORE_ERROR", resp.Error)
	}
}

func TestMetricsEndpointIsExposed(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.Len() == 0 {
		t.Fatal("metrics body is empty")
	}
}

func TestRequestIDHeaderIsSet(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/health/live", nil)
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("X-Request-ID header not set")
	}
}

func TestSecurityHeadersOnAPIRoutes(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/audit/events", nil)
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q, want DENY", got)
	}
}

func TestUnknownRouteReturns404(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/nonsense", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
