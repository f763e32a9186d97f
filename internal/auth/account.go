// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Stockroom Contributors

package auth

import (
	"context"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Role is a member of the closed role set. Role strings arriving from the
// outside world go through ParseRole; a Role value is never free-form.
type Role string

// The enumerated roles, highest privilege first.
const (
	RoleAdmin     Role = "Admin"
	RoleStaff     Role = "Staff"
	RoleCandidate Role = "Candidate"
)

// DefaultRole is assigned when registration supplies no role.
const DefaultRole = RoleCandidate

var roleNames = map[string]Role{
	"admin":     RoleAdmin,
	"staff":     RoleStaff,
	"candidate": RoleCandidate,
}

// ParseRole resolves a role string case-insensitively against the enumerated
// set. An empty string is not a valid role; callers that want the silent
// default must check for absence themselves.
func ParseRole(s string) (Role, error) {
	role, ok := roleNames[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", oops.Code("AUTH_INVALID_ROLE").
			With("role", s).
			Errorf("invalid role: must be one of the defined system roles")
	}
	return role, nil
}

// Roles returns the full enumerated role set.
func Roles() []Role {
	return []Role{RoleAdmin, RoleStaff, RoleCandidate}
}

func (r Role) String() string { return string(r) }

// MinPasswordLength mirrors the registration contract: shorter passwords are
// rejected as weak before they reach the hasher.
const MinPasswordLength = 6

// ValidatePasswordStrength rejects passwords the directory would refuse to
// store. Directory implementations call this from Create and UpdatePassword;
// the reset flow calls it before consuming a token so a weak password never
// burns a single-use token.
func ValidatePasswordStrength(password string) error {
	if password == "" {
		return oops.Code("AUTH_WEAK_PASSWORD").Errorf("password cannot be empty")
	}
	if len(password) < MinPasswordLength {
		return oops.Code("AUTH_WEAK_PASSWORD").
			With("min", MinPasswordLength).
			Errorf("password must be at least %d characters", MinPasswordLength)
	}
	return nil
}

// Account is an identity record. The password credential is opaque to the
// core: it is verified through the Directory, never read.
type Account struct {
	ID             ulid.ULID
	Email          string
	FullName       string
	EmailConfirmed bool
	Active         bool
	Reset          *ResetToken // nil until a reset has been requested
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Profile is the public view of an account returned on login.
type Profile struct {
	Email          string `json:"email"`
	FullName       string `json:"fullName"`
	Role           Role   `json:"role"`
	EmailConfirmed bool   `json:"emailConfirmed"`
}

// Directory is the user-directory port: account storage, credential
// verification and role assignment live behind it. All operations return
// ErrNotFound-style sentinels wrapped with context, never panics.
//
// ClaimResetToken and ConsumeResetToken are conditional writes: each must be
// atomic with respect to other writers on the same account so that two
// concurrent reset requests cannot both create a live token and two
// concurrent reset submissions cannot both consume one.
type Directory interface {
	// FindByEmail retrieves an account by email (case-insensitive).
	FindByEmail(ctx context.Context, email string) (*Account, error)

	// Create stores a new account with the given credential. Fails with
	// ErrAlreadyExists on a duplicate email and with a weak-password error
	// when the credential does not meet policy.
	Create(ctx context.Context, email, password, fullName string) (*Account, error)

	// VerifyPassword checks the credential for an account.
	VerifyPassword(ctx context.Context, account *Account, password string) (bool, error)

	// UpdatePassword replaces the credential for an account.
	UpdatePassword(ctx context.Context, id ulid.ULID, newPassword string) error

	// Save persists mutations to an account's attribute fields.
	Save(ctx context.Context, account *Account) error

	// AddRole assigns a role to an account. Idempotent.
	AddRole(ctx context.Context, id ulid.ULID, role Role) error

	// ListRoles returns the roles assigned to an account.
	ListRoles(ctx context.Context, id ulid.ULID) ([]Role, error)

	// ClaimResetToken installs a fresh pending reset token, but only when no
	// live token exists. Returns ErrResetPending when one does.
	ClaimResetToken(ctx context.Context, id ulid.ULID, tokenHash string, expiresAt time.Time) error

	// ConsumeResetToken marks the stored token used, but only while it is
	// pending and its hash matches. Returns ErrResetNotPending otherwise.
	ConsumeResetToken(ctx context.Context, id ulid.ULID, tokenHash string) error
}
