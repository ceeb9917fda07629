// Formworks - Field Service Forms, Audit and Compliance
// Copyright 2026 Formworks Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/formworks/formworks

// Package api provides the HTTP surface of the audit, threat-detection
// and retention core using the Chi router.
//
// All endpoints respond with the models.APIResponse envelope. Tenant
// scoping is mandatory: every data endpoint resolves the tenant from
// the X-Tenant-ID header (or tenant_id query parameter) and rejects
// requests without one. Admin authentication is a bcrypt-checked login
// that issues an HS256 JWT bearer token.
package api
