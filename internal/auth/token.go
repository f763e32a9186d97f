// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Stockroom Contributors

package auth

import (
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/oops"
)

// SessionCookieName is the cookie carrying the signed session token.
const SessionCookieName = "jwt"

// DefaultSessionValidity applies when neither a day-count nor a minute-count
// is configured.
const DefaultSessionValidity = 48 * time.Hour

// SessionClaims is the claim set of a bearer session token. The account ID
// rides in the registered Subject claim.
type SessionClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

// SessionConfig configures the TokenIssuer. ExpiryDays and ExpiryMinutes are
// kept as raw strings so that absent, empty and unparseable configuration
// values all fall through the resolution chain the same way.
type SessionConfig struct {
	Secret        string
	ExpiryDays    string
	ExpiryMinutes string
	SecureCookie  bool
}

// TokenIssuer builds and signs bearer session tokens and owns their cookie
// transport. The signing secret is read once at construction and never
// mutated; re-keying requires a restart.
type TokenIssuer struct {
	secret       []byte
	validity     time.Duration
	secureCookie bool
	now          func() time.Time
}

// NewTokenIssuer creates a TokenIssuer. A missing secret is a configuration
// error; callers treat it as fatal at startup, not as a per-request failure.
func NewTokenIssuer(cfg SessionConfig) (*TokenIssuer, error) {
	return NewTokenIssuerWithClock(cfg, time.Now)
}

// NewTokenIssuerWithClock creates a TokenIssuer with an explicit clock.
func NewTokenIssuerWithClock(cfg SessionConfig, now func() time.Time) (*TokenIssuer, error) {
	if cfg.Secret == "" {
		return nil, oops.Code("CONFIG_INVALID").Errorf("session signing secret is not configured")
	}
	if now == nil {
		return nil, oops.Errorf("clock is required")
	}
	return &TokenIssuer{
		secret:       []byte(cfg.Secret),
		validity:     resolveSessionValidity(cfg.ExpiryDays, cfg.ExpiryMinutes),
		secureCookie: cfg.SecureCookie,
		now:          now,
	}, nil
}

// resolveSessionValidity resolves the expiry fallback chain: an explicit
// positive day-count wins, else an explicit positive minute-count, else the
// 2-day default. Empty and unparseable values fall through.
func resolveSessionValidity(days, minutes string) time.Duration {
	if days != "" {
		if d, err := strconv.Atoi(days); err == nil && d > 0 {
			return time.Duration(d) * 24 * time.Hour
		}
	}
	if minutes != "" {
		if m, err := strconv.Atoi(minutes); err == nil && m > 0 {
			return time.Duration(m) * time.Minute
		}
	}
	return DefaultSessionValidity
}

// Validity returns the resolved session lifetime.
func (i *TokenIssuer) Validity() time.Duration {
	return i.validity
}

// Issue builds and signs a session token for the account.
func (i *TokenIssuer) Issue(account *Account) (token string, expiresAt time.Time, err error) {
	now := i.now()
	expiresAt = now.Add(i.validity)

	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   account.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Email: account.Email,
	}

	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, oops.Code("SESSION_SIGN_FAILED").Wrap(err)
	}
	return token, expiresAt, nil
}

// Verify parses and validates a signed session token.
func (i *TokenIssuer) Verify(token string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, oops.Code("SESSION_INVALID").Wrap(err)
	}
	if !parsed.Valid {
		return nil, oops.Code("SESSION_INVALID").Errorf("invalid session token")
	}
	return claims, nil
}

// Cookie wraps a signed token in the session cookie. HttpOnly and SameSite
// Lax always; Secure is deployment-controlled.
func (i *TokenIssuer) Cookie(token string, expiresAt time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   i.secureCookie,
	}
}

// RevokeCookie returns a deletion cookie for the session. No signature
// blacklist exists: an issued token stays cryptographically valid until its
// natural expiry, logout only removes the client's ambient credential.
func (i *TokenIssuer) RevokeCookie() *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   i.secureCookie,
	}
}
