// Formworks - Field Service Forms, Audit and Compliance
// Copyright 2026 Formworks Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/formworks/formworks

package audit

import (
	"net/http"

	"github.com/formworks/formworks/internal/logging"
)

// Context carries the tenant and request metadata for one ingestion
// call. TenantID is the only required field.
type Context struct {
	TenantID string

	// Actor metadata, all optional.
	UserID    string
	UserEmail string
	UserName  string
	UserRole  string
	SessionID string

	// Request metadata, all optional.
	IPAddress string
	UserAgent string
	Endpoint  string
	Method    string

	// CorrelationID, when set, is inherited by the logged event so
	// related events form one causal chain.
	CorrelationID string
}

// ContextFromRequest builds an audit Context from an inbound HTTP
// request. Actor fields are left for the caller to fill in after
// authentication.
func ContextFromRequest(r *http.Request, tenantID string) *Context {
	return &Context{
		TenantID:      tenantID,
		IPAddress:     clientIP(r),
		UserAgent:     r.UserAgent(),
		Endpoint:      r.URL.Path,
		Method:        r.Method,
		CorrelationID: logging.CorrelationIDFromContext(r.Context()),
	}
}

// clientIP resolves the originating client address, preferring proxy
// headers over the socket peer.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}

// WithActor returns a copy of the context with actor fields set.
func (c *Context) WithActor(userID, email, name, role, sessionID string) *Context {
	out := *c
	out.UserID = userID
	out.UserEmail = email
	out.UserName = name
	out.UserRole = role
	out.SessionID = sessionID
	return &out
}
