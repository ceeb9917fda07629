// Formworks - Field Service Forms, Audit and Compliance
// Copyright 2026 Formworks Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/formworks/formworks

package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"
)

// mockHTTPServer simulates http.Server lifecycle for supervisor tests.
type mockHTTPServer struct {
	serveErr    error
	shutdownErr error
	done        chan struct{}
	shutdowns   int
}

func newMockHTTPServer() *mockHTTPServer {
	return &mockHTTPServer{done: make(chan struct{})}
}

func (m *mockHTTPServer) ListenAndServe() error {
	if m.serveErr != nil {
		return m.serveErr
	}
	<-m.done
	return nil
}

func (m *mockHTTPServer) Shutdown(_ context.Context) error {
	m.shutdowns++
	close(m.done)
	return m.shutdownErr
}

func TestHTTPServerServiceGracefulShutdown(t *testing.T) {
	mock := newMockHTTPServer()
	svc := NewHTTPServerService(mock, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Serve(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Serve returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}
	if mock.shutdowns != 1 {
		t.Fatalf("Shutdown called %d times, want 1", mock.shutdowns)
	}
}

func TestHTTPServerServiceStartFailure(t *testing.T) {
	mock := newMockHTTPServer()
	mock.serveErr = errors.New("listen tcp :80: bind: permission denied")
	svc := NewHTTPServerService(mock, time.Second)

	err := svc.Serve(context.Background())
	if err == nil {
		t.Fatal("Serve returned nil for a failed listener")
	}
	if !errors.Is(err, mock.serveErr) {
		t.Fatalf("Serve error = %v, want wrapped %v", err, mock.serveErr)
	}
}

func TestHTTPServerServiceString(t *testing.T) {
	svc := NewHTTPServerService(newMockHTTPServer(), 0)
	if svc.String() != "http-server" {
		t.Fatalf("String() = %q", svc.String())
	}
}
