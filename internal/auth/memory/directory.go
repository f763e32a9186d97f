// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Stockroom Contributors

// Package memory provides an in-memory auth.Directory, used by tests and by
// the race-condition trials on the reset flow. All operations, including the
// conditional reset-token writes, run under a single mutex so the
// check-and-write sequences are atomic exactly like their SQL counterparts.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/stockroom/stockroom/internal/auth"
)

type record struct {
	account      auth.Account
	passwordHash string
	roles        []auth.Role
	reset        *auth.ResetToken
}

// Directory implements auth.Directory backed by a map.
type Directory struct {
	mu       sync.Mutex
	hasher   auth.PasswordHasher
	now      func() time.Time
	accounts map[string]*record // keyed by lowercased email
}

// NewDirectory creates an in-memory directory.
func NewDirectory(hasher auth.PasswordHasher) *Directory {
	return NewDirectoryWithClock(hasher, time.Now)
}

// NewDirectoryWithClock creates an in-memory directory with an explicit
// clock, used by tests to drive reset-token expiry.
func NewDirectoryWithClock(hasher auth.PasswordHasher, now func() time.Time) *Directory {
	return &Directory{
		hasher:   hasher,
		now:      now,
		accounts: make(map[string]*record),
	}
}

// FindByEmail retrieves an account by email (case-insensitive).
func (d *Directory) FindByEmail(_ context.Context, email string) (*auth.Account, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec, ok := d.accounts[keyFor(email)]
	if !ok {
		return nil, oops.Code("AUTH_NOT_FOUND").
			With("email", email).
			Wrap(auth.ErrNotFound)
	}
	return rec.snapshot(), nil
}

// Create stores a new account with a hashed credential.
func (d *Directory) Create(_ context.Context, email, password, fullName string) (*auth.Account, error) {
	hash, err := d.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	key := keyFor(email)
	if _, ok := d.accounts[key]; ok {
		return nil, oops.Code("AUTH_ALREADY_EXISTS").
			With("email", email).
			Wrap(auth.ErrAlreadyExists)
	}

	now := d.now()
	rec := &record{
		account: auth.Account{
			ID:        ulid.Make(),
			Email:     email,
			FullName:  fullName,
			Active:    true,
			CreatedAt: now,
			UpdatedAt: now,
		},
		passwordHash: hash,
	}
	d.accounts[key] = rec
	return rec.snapshot(), nil
}

// VerifyPassword checks the credential for an account. The stored hash is
// copied under the lock; hashing itself is slow and runs outside it.
func (d *Directory) VerifyPassword(_ context.Context, account *auth.Account, password string) (bool, error) {
	d.mu.Lock()
	rec := d.byID(account.ID)
	var hash string
	if rec != nil {
		hash = rec.passwordHash
	}
	d.mu.Unlock()

	if rec == nil {
		return false, oops.Code("AUTH_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	return d.hasher.Verify(password, hash)
}

// UpdatePassword replaces the credential for an account.
func (d *Directory) UpdatePassword(_ context.Context, id ulid.ULID, newPassword string) error {
	hash, err := d.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	rec := d.byID(id)
	if rec == nil {
		return oops.Code("AUTH_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	rec.passwordHash = hash
	rec.account.UpdatedAt = d.now()
	return nil
}

// Save persists mutations to an account's attribute fields. Reset-token
// state is written only through the conditional operations.
func (d *Directory) Save(_ context.Context, account *auth.Account) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec := d.byID(account.ID)
	if rec == nil {
		return oops.Code("AUTH_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	rec.account.FullName = account.FullName
	rec.account.EmailConfirmed = account.EmailConfirmed
	rec.account.Active = account.Active
	rec.account.UpdatedAt = d.now()
	return nil
}

// AddRole assigns a role to an account. Idempotent.
func (d *Directory) AddRole(_ context.Context, id ulid.ULID, role auth.Role) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec := d.byID(id)
	if rec == nil {
		return oops.Code("AUTH_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if !slices.Contains(rec.roles, role) {
		rec.roles = append(rec.roles, role)
	}
	return nil
}

// ListRoles returns the roles assigned to an account.
func (d *Directory) ListRoles(_ context.Context, id ulid.ULID) ([]auth.Role, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec := d.byID(id)
	if rec == nil {
		return nil, oops.Code("AUTH_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	return slices.Clone(rec.roles), nil
}

// ClaimResetToken installs a fresh pending token unless a live one exists.
func (d *Directory) ClaimResetToken(_ context.Context, id ulid.ULID, tokenHash string, expiresAt time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec := d.byID(id)
	if rec == nil {
		return oops.Code("AUTH_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if rec.reset != nil && rec.reset.IsLiveAt(d.now()) {
		return oops.Code("RESET_ALREADY_PENDING").Wrap(auth.ErrResetPending)
	}
	rec.reset = &auth.ResetToken{TokenHash: tokenHash, ExpiresAt: expiresAt}
	rec.account.UpdatedAt = d.now()
	return nil
}

// ConsumeResetToken marks the stored token used while it is still pending
// and its hash matches.
func (d *Directory) ConsumeResetToken(_ context.Context, id ulid.ULID, tokenHash string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec := d.byID(id)
	if rec == nil {
		return oops.Code("AUTH_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	reset := rec.reset
	if reset == nil || reset.TokenHash != tokenHash || !reset.IsLiveAt(d.now()) {
		return oops.Code("RESET_NOT_PENDING").Wrap(auth.ErrResetNotPending)
	}
	reset.Used = true
	rec.account.UpdatedAt = d.now()
	return nil
}

// byID must be called with d.mu held.
func (d *Directory) byID(id ulid.ULID) *record {
	for _, rec := range d.accounts {
		if rec.account.ID == id {
			return rec
		}
	}
	return nil
}

// snapshot returns a detached copy safe to hand to callers.
func (r *record) snapshot() *auth.Account {
	account := r.account
	if r.reset != nil {
		reset := *r.reset
		account.Reset = &reset
	}
	return &account
}

func keyFor(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Compile-time interface check.
var _ auth.Directory = (*Directory)(nil)
