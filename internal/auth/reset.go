// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Stockroom Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"time"

	"github.com/samber/oops"
)

// Reset token configuration.
const (
	ResetTokenBytes    = 32               // 32 bytes = 64 hex chars
	ResetTokenValidity = 20 * time.Minute // fixed validity window
)

// ResetToken is the per-account reset state embedded in the Account record.
// Lifecycle: None -> Pending -> {Used | Expired}. Used is terminal; Expired
// tokens are inert and replaced by the next Generate.
type ResetToken struct {
	TokenHash string
	ExpiresAt time.Time
	Used      bool
}

// IsExpiredAt reports whether the token is past its window at the given time.
func (t *ResetToken) IsExpiredAt(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// IsLiveAt reports whether the token is pending (unexpired and unused) at the
// given time. Only a live token blocks re-issuance and only a live token may
// be consumed.
func (t *ResetToken) IsLiveAt(now time.Time) bool {
	return !t.Used && !t.IsExpiredAt(now)
}

// GenerateResetToken creates a secure random token and its hash.
// The plaintext token goes into the reset link; only the hash is stored.
func GenerateResetToken() (token, hash string, err error) {
	raw := make([]byte, ResetTokenBytes)
	if _, err = rand.Read(raw); err != nil {
		return "", "", oops.Code("RESET_TOKEN_GENERATE_FAILED").Wrap(err)
	}

	token = hex.EncodeToString(raw)
	hash = HashResetToken(token)

	return token, hash, nil
}

// HashResetToken computes the SHA-256 hash of a reset token value.
func HashResetToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// VerifyResetToken checks a plaintext token against the stored hash in
// constant time.
func VerifyResetToken(token, hash string) bool {
	if token == "" || hash == "" {
		return false
	}
	computed := HashResetToken(token)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(hash)) == 1
}

// ResetTokenManager enforces the time-boxed single-use reset token contract.
// The at-most-one-live-token and exactly-once-consumption guarantees come
// from the Directory's conditional writes; the manager sequences them and
// maps their outcomes onto the reset taxonomy.
type ResetTokenManager struct {
	directory Directory
	now       func() time.Time
}

// NewResetTokenManager creates a ResetTokenManager.
func NewResetTokenManager(directory Directory) (*ResetTokenManager, error) {
	return NewResetTokenManagerWithClock(directory, time.Now)
}

// NewResetTokenManagerWithClock creates a ResetTokenManager with an explicit
// clock. Tests use this to simulate window expiry deterministically.
func NewResetTokenManagerWithClock(directory Directory, now func() time.Time) (*ResetTokenManager, error) {
	if directory == nil {
		return nil, oops.Errorf("directory is required")
	}
	if now == nil {
		return nil, oops.Errorf("clock is required")
	}
	return &ResetTokenManager{directory: directory, now: now}, nil
}

// Generate mints a pending reset token for the account and persists it,
// overwriting any expired or used predecessor. When a live token already
// exists the claim is refused with RESET_ALREADY_PENDING; under concurrent
// requests exactly one caller wins the claim.
func (m *ResetTokenManager) Generate(ctx context.Context, account *Account) (token string, expiresAt time.Time, err error) {
	token, hash, err := GenerateResetToken()
	if err != nil {
		return "", time.Time{}, err
	}

	expiresAt = m.now().Add(ResetTokenValidity)
	if err := m.directory.ClaimResetToken(ctx, account.ID, hash, expiresAt); err != nil {
		if errors.Is(err, ErrResetPending) {
			return "", time.Time{}, oops.Code("RESET_ALREADY_PENDING").Wrap(err)
		}
		return "", time.Time{}, err
	}

	account.Reset = &ResetToken{TokenHash: hash, ExpiresAt: expiresAt}
	return token, expiresAt, nil
}

// Validate checks a submitted token against the account's stored reset state.
// Check order is fixed: existence, expiry, used, value equality; the first
// failing check determines the reported reason.
func (m *ResetTokenManager) Validate(account *Account, token string) error {
	reset := account.Reset
	if reset == nil || reset.TokenHash == "" {
		return oops.Code("RESET_TOKEN_INVALID").Errorf("no reset was requested for this account")
	}
	if reset.IsExpiredAt(m.now()) {
		return oops.Code("RESET_TOKEN_EXPIRED").Errorf("reset link expired")
	}
	if reset.Used {
		return oops.Code("RESET_TOKEN_USED").Errorf("reset link has already been used")
	}
	if !VerifyResetToken(token, reset.TokenHash) {
		return oops.Code("RESET_TOKEN_INVALID").Errorf("reset token does not match")
	}
	return nil
}

// Consume marks the account's pending token used, exactly once. The
// conditional write in the directory makes the validate-then-consume sequence
// safe under concurrent submissions: the loser observes the token as already
// used (or expired, when the window lapsed in between).
func (m *ResetTokenManager) Consume(ctx context.Context, account *Account) error {
	reset := account.Reset
	if reset == nil {
		return oops.Code("RESET_TOKEN_INVALID").Errorf("no reset was requested for this account")
	}

	err := m.directory.ConsumeResetToken(ctx, account.ID, reset.TokenHash)
	if err != nil {
		if errors.Is(err, ErrResetNotPending) {
			if reset.IsExpiredAt(m.now()) {
				return oops.Code("RESET_TOKEN_EXPIRED").Errorf("reset link expired")
			}
			return oops.Code("RESET_TOKEN_USED").Errorf("reset link has already been used")
		}
		return err
	}

	reset.Used = true
	return nil
}
