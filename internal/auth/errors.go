// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Stockroom Contributors

package auth

import "errors"

// Sentinel errors returned by Directory implementations, always wrapped with
// an oops code at the return site. Callers branch on them with errors.Is;
// the HTTP layer maps the codes to statuses.
var (
	// ErrNotFound is returned when a requested account does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned when creating an account whose email is
	// already taken.
	ErrAlreadyExists = errors.New("already exists")

	// ErrResetPending is returned by ClaimResetToken when a live (unexpired,
	// unused) reset token already exists for the account.
	ErrResetPending = errors.New("reset token already pending")

	// ErrResetNotPending is returned by ConsumeResetToken when the stored
	// token is no longer in the pending state, or never matched.
	ErrResetNotPending = errors.New("reset token not pending")
)
