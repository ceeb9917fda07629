// Formworks - Field Service Forms, Audit and Compliance
// Copyright 2026 Formworks Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/formworks/formworks

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/formworks/formworks/internal/audit"
	"github.com/formworks/formworks/internal/config"
	"github.com/formworks/formworks/internal/logging"
)

// ErrInvalidCredentials is returned for any login failure. The message
// is identical for unknown-user and wrong-password so responses do not
// leak which half failed.
var ErrInvalidCredentials = errors.New("invalid username or password")

type subjectKey struct{}

// SubjectFromContext returns the authenticated subject stored by
// RequireAuth, or empty when the request is unauthenticated.
func SubjectFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(subjectKey{}).(string); ok {
		return s
	}
	return ""
}

// Authenticator issues and verifies admin bearer tokens. A single
// admin identity (bcrypt hash from configuration) gates every data
// endpoint; tenancy is a data-scoping concern, not an identity one.
type Authenticator struct {
	secret       []byte
	username     string
	passwordHash string
	tokenTTL     time.Duration
	auditor      *audit.Service

	// now is injectable for expiry tests.
	now func() time.Time
}

// NewAuthenticator builds an Authenticator from security config. The
// auditor may be nil; login attempts are then not recorded.
func NewAuthenticator(cfg config.SecurityConfig, auditor *audit.Service) *Authenticator {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Authenticator{
		secret:       []byte(cfg.JWTSecret),
		username:     cfg.AdminUsername,
		passwordHash: cfg.AdminPasswordHash,
		tokenTTL:     ttl,
		auditor:      auditor,
		now:          time.Now,
	}
}

// Enabled reports whether authentication is configured. When no JWT
// secret is set (development mode) the auth middleware passes every
// request through.
func (a *Authenticator) Enabled() bool {
	return len(a.secret) > 0
}

// IssueToken verifies the credentials and returns a signed JWT.
func (a *Authenticator) IssueToken(username, password string) (string, time.Time, error) {
	if a.username == "" || a.passwordHash == "" {
		return "", time.Time{}, fmt.Errorf("admin credentials are not configured")
	}
	if username != a.username {
		// Burn comparable time so username probing is not measurably
		// faster than a wrong password.
		_ = bcrypt.CompareHashAndPassword([]byte(a.passwordHash), []byte("formworks"))
		return "", time.Time{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.passwordHash), []byte(password)); err != nil {
		return "", time.Time{}, ErrInvalidCredentials
	}

	expiresAt := a.now().Add(a.tokenTTL)
	claims := jwt.RegisteredClaims{
		Subject:   username,
		IssuedAt:  jwt.NewNumericDate(a.now()),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		Issuer:    "formworks",
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// VerifyToken validates a bearer token and returns its subject.
func (a *Authenticator) VerifyToken(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithTimeFunc(a.now))
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid || claims.Subject == "" {
		return "", fmt.Errorf("invalid token claims")
	}
	return claims.Subject, nil
}

// LoginRequest is the body of POST /api/v1/auth/login.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse carries the issued bearer token.
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Login handles POST /api/v1/auth/login.
func (a *Authenticator) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body", nil)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
		return
	}

	token, expiresAt, err := a.IssueToken(req.Username, req.Password)
	if err != nil {
		a.recordLogin(r, req.Username, false, err)
		respondError(w, http.StatusUnauthorized, "AUTH_ERROR", "Invalid username or password", nil)
		return
	}

	a.recordLogin(r, req.Username, true, nil)
	respondData(w, http.StatusOK, LoginResponse{Token: token, ExpiresAt: expiresAt})
}

// recordLogin writes an authentication audit event for the attempt.
// Login happens before tenant scoping, so events land under the
// platform tenant.
func (a *Authenticator) recordLogin(r *http.Request, username string, success bool, cause error) {
	if a.auditor == nil {
		return
	}

	auditCtx := audit.ContextFromRequest(r, "platform")
	auditCtx.UserName = username

	status := audit.StatusSuccess
	description := "Admin login succeeded"
	errMsg := ""
	if !success {
		status = audit.StatusFailure
		description = "Admin login failed"
		if cause != nil {
			errMsg = cause.Error()
		}
	}

	if _, err := a.auditor.LogAuthentication(r.Context(), auditCtx, audit.EventTypeLogin, "admin_login", description, status, errMsg); err != nil {
		logging.Warn().Err(err).Msg("Failed to audit login attempt")
	}
}

// RequireAuth rejects requests without a valid bearer token. When
// authentication is not configured the middleware is a pass-through.
func (a *Authenticator) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(header, prefix) {
			respondError(w, http.StatusUnauthorized, "AUTH_ERROR", "Missing bearer token", nil)
			return
		}

		subject, err := a.VerifyToken(strings.TrimPrefix(header, prefix))
		if err != nil {
			logging.Warn().
				Str("path", r.URL.Path).
				Str("remote_addr", r.RemoteAddr).
				Msg("Rejected request with invalid token")
			respondError(w, http.StatusUnauthorized, "AUTH_ERROR", "Invalid or expired token", nil)
			return
		}

		ctx := context.WithValue(r.Context(), subjectKey{}, subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
