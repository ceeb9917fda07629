// Formworks - Field Service Forms, Audit and Compliance
// Copyright 2026 Formworks Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/formworks/formworks

package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimitLoginBlocksAfterBudget(t *testing.T) {
	mw := NewChiMiddleware(&ChiMiddlewareConfig{
		RateLimitRequests: 100,
		RateLimitWindow:   time.Minute,
	})
	handler := mw.RateLimitLogin()(okHandler())

	var last int
	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
		req.RemoteAddr = "198.51.100.10:4000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("6th login attempt status = %d, want 429", last)
	}
}

func TestRateLimitDisabledIsPassThrough(t *testing.T) {
	mw := NewChiMiddleware(&ChiMiddlewareConfig{RateLimitDisabled: true})
	handler := mw.RateLimitLogin()(okHandler())

	for i := 0; i < 20; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
		req.RemoteAddr = "198.51.100.10:4000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i, rec.Code)
		}
	}
}

func TestCORSPreflightBlockedForUnknownOrigin(t *testing.T) {
	mw := NewChiMiddleware(&ChiMiddlewareConfig{
		CORSAllowedOrigins: []string{"https://app.example.com"},
	})
	handler := mw.CORS()(okHandler())

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/audit/events", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	req.Header.Set("Access-Control-Request-Method", "GET")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("Access-Control-Allow-Origin = %q for unlisted origin", got)
	}
}

func TestCORSPreflightAllowsListedOrigin(t *testing.T) {
	mw := NewChiMiddleware(&ChiMiddlewareConfig{
		CORSAllowedOrigins: []string{"https://app.example.com"},
	})
	handler := mw.CORS()(okHandler())

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/audit/events", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "GET")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Fatalf("Access-Control-Allow-Origin = %q, want listed origin", got)
	}
}

func TestSanitizeLogValue(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"with\nnewline", "with\\x0anewline"},
		{"tab\there", "tab\\x09here"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := sanitizeLogValue(tt.in); got != tt.want {
			t.Errorf("sanitizeLogValue(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestGetIntParam(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=25&bad=abc", nil)

	if got := getIntParam(req, "limit", 10); got != 25 {
		t.Errorf("limit = %d, want 25", got)
	}
	if got := getIntParam(req, "bad", 10); got != 10 {
		t.Errorf("bad = %d, want default 10", got)
	}
	if got := getIntParam(req, "absent", 7); got != 7 {
		t.Errorf("absent = %d, want default 7", got)
	}
}

func TestGetTimeParam(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?at=2026-08-30T12:00:00Z&bad=yesterday", nil)

	if got := getTimeParam(req, "at"); got == nil || got.Hour() != 12 {
		t.Errorf("at = %v, want parsed RFC3339", got)
	}
	if got := getTimeParam(req, "bad"); got != nil {
		t.Errorf("bad = %v, want nil", got)
	}
	if got := getTimeParam(req, "absent"); got != nil {
		t.Errorf("absent = %v, want nil", got)
	}
}
