// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Stockroom Contributors

// Package postgres provides the PostgreSQL implementation of auth.Directory.
//
// The reset-token state is embedded in the accounts row, so the
// at-most-one-live-token and exactly-once-consumption guarantees reduce to
// single conditional UPDATE statements: the WHERE clause carries the state
// check and a zero row count means another writer got there first.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/stockroom/stockroom/internal/auth"
)

// DB is the subset of pgxpool.Pool the directory uses. pgxmock satisfies it
// for unit tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Directory implements auth.Directory using PostgreSQL.
type Directory struct {
	db     DB
	hasher auth.PasswordHasher
}

// NewDirectory creates a Directory.
func NewDirectory(db DB, hasher auth.PasswordHasher) *Directory {
	return &Directory{db: db, hasher: hasher}
}

const accountColumns = `id, email, full_name, email_confirmed, active,
		       reset_token_hash, reset_expires_at, reset_used,
		       created_at, updated_at`

// FindByEmail retrieves an account by email (case-insensitive).
func (d *Directory) FindByEmail(ctx context.Context, email string) (*auth.Account, error) {
	row := d.db.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE LOWER(email) = LOWER($1)
	`, email)

	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("AUTH_NOT_FOUND").
			With("email", email).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		// scanAccount errors already carry a code; re-coding here would be
		// ignored, the innermost code wins.
		return nil, err
	}
	return account, nil
}

// Create stores a new account with a hashed credential. A duplicate email
// surfaces as auth.ErrAlreadyExists via the unique index on LOWER(email).
func (d *Directory) Create(ctx context.Context, email, password, fullName string) (*auth.Account, error) {
	hash, err := d.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	account := &auth.Account{
		ID:        ulid.Make(),
		Email:     email,
		FullName:  fullName,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err = d.db.Exec(ctx, `
		INSERT INTO accounts (id, email, full_name, password_hash, email_confirmed, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		account.ID.String(),
		account.Email,
		account.FullName,
		hash,
		account.EmailConfirmed,
		account.Active,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil, oops.Code("AUTH_ALREADY_EXISTS").
				With("email", email).
				Wrap(auth.ErrAlreadyExists)
		}
		return nil, oops.Code("ACCOUNT_CREATE_FAILED").
			With("operation", "insert account").
			With("email", email).
			Wrap(err)
	}
	return account, nil
}

// VerifyPassword checks the credential for an account. The hash never leaves
// this package.
func (d *Directory) VerifyPassword(ctx context.Context, account *auth.Account, password string) (bool, error) {
	var hash string
	err := d.db.QueryRow(ctx, `
		SELECT password_hash FROM accounts WHERE id = $1
	`, account.ID.String()).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, oops.Code("AUTH_NOT_FOUND").
			With("id", account.ID.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return false, oops.Code("ACCOUNT_VERIFY_FAILED").
			With("operation", "load password hash").
			Wrap(err)
	}
	return d.hasher.Verify(password, hash)
}

// UpdatePassword replaces the credential for an account.
func (d *Directory) UpdatePassword(ctx context.Context, id ulid.ULID, newPassword string) error {
	hash, err := d.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	result, err := d.db.Exec(ctx, `
		UPDATE accounts SET password_hash = $2, updated_at = $3
		WHERE id = $1
	`, id.String(), hash, time.Now())
	if err != nil {
		return oops.Code("ACCOUNT_UPDATE_PASSWORD_FAILED").
			With("operation", "update password").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("AUTH_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// Save persists mutations to an account's attribute fields. Reset-token
// state is written only through the conditional operations below.
func (d *Directory) Save(ctx context.Context, account *auth.Account) error {
	result, err := d.db.Exec(ctx, `
		UPDATE accounts SET
			email = $2,
			full_name = $3,
			email_confirmed = $4,
			active = $5,
			updated_at = $6
		WHERE id = $1
	`,
		account.ID.String(),
		account.Email,
		account.FullName,
		account.EmailConfirmed,
		account.Active,
		time.Now(),
	)
	if err != nil {
		return oops.Code("ACCOUNT_SAVE_FAILED").
			With("operation", "update account").
			With("id", account.ID.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("AUTH_NOT_FOUND").
			With("id", account.ID.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// AddRole assigns a role to an account. Idempotent.
func (d *Directory) AddRole(ctx context.Context, id ulid.ULID, role auth.Role) error {
	_, err := d.db.Exec(ctx, `
		INSERT INTO account_roles (account_id, role)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, id.String(), role.String())
	if err != nil {
		return oops.Code("ROLE_ADD_FAILED").
			With("operation", "insert account role").
			With("id", id.String()).
			With("role", role.String()).
			Wrap(err)
	}
	return nil
}

// ListRoles returns the roles assigned to an account.
func (d *Directory) ListRoles(ctx context.Context, id ulid.ULID) ([]auth.Role, error) {
	rows, err := d.db.Query(ctx, `
		SELECT role FROM account_roles
		WHERE account_id = $1
		ORDER BY role
	`, id.String())
	if err != nil {
		return nil, oops.Code("ROLE_LIST_FAILED").
			With("operation", "list account roles").
			With("id", id.String()).
			Wrap(err)
	}
	defer rows.Close()

	var roles []auth.Role
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, oops.Code("ROLE_SCAN_FAILED").Wrap(err)
		}
		role, err := auth.ParseRole(name)
		if err != nil {
			// Already coded AUTH_INVALID_ROLE with the offending name.
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("ROLE_LIST_FAILED").Wrap(err)
	}
	return roles, nil
}

// ClaimResetToken installs a fresh pending token unless a live one exists.
// The liveness check and the write are a single statement, so concurrent
// claims on the same account cannot both succeed.
func (d *Directory) ClaimResetToken(ctx context.Context, id ulid.ULID, tokenHash string, expiresAt time.Time) error {
	now := time.Now()
	result, err := d.db.Exec(ctx, `
		UPDATE accounts SET reset_token_hash = $2, reset_expires_at = $3, reset_used = FALSE, updated_at = $4
		WHERE id = $1
		  AND (reset_token_hash IS NULL OR reset_used OR reset_expires_at <= $4)
	`, id.String(), tokenHash, expiresAt, now)
	if err != nil {
		return oops.Code("RESET_CLAIM_FAILED").
			With("operation", "claim reset token").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return d.resolveConditionalMiss(ctx, id, auth.ErrResetPending, "RESET_ALREADY_PENDING")
	}
	return nil
}

// ConsumeResetToken marks the stored token used while it is still pending
// and its hash matches.
func (d *Directory) ConsumeResetToken(ctx context.Context, id ulid.ULID, tokenHash string) error {
	now := time.Now()
	result, err := d.db.Exec(ctx, `
		UPDATE accounts SET reset_used = TRUE, updated_at = $3
		WHERE id = $1
		  AND reset_token_hash = $2
		  AND NOT reset_used
		  AND reset_expires_at > $3
	`, id.String(), tokenHash, now)
	if err != nil {
		return oops.Code("RESET_CONSUME_FAILED").
			With("operation", "consume reset token").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return d.resolveConditionalMiss(ctx, id, auth.ErrResetNotPending, "RESET_NOT_PENDING")
	}
	return nil
}

// resolveConditionalMiss decides whether a zero-row conditional update means
// the account is missing or the state check failed.
func (d *Directory) resolveConditionalMiss(ctx context.Context, id ulid.ULID, stateErr error, code string) error {
	var exists bool
	err := d.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)
	`, id.String()).Scan(&exists)
	if err != nil {
		return oops.Code("ACCOUNT_LOOKUP_FAILED").
			With("id", id.String()).
			Wrap(err)
	}
	if !exists {
		return oops.Code("AUTH_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return oops.Code(code).
		With("id", id.String()).
		Wrap(stateErr)
}

// scanAccount scans a single row into an Account.
// Callers are responsible for handling pgx.ErrNoRows.
func scanAccount(row pgx.Row) (*auth.Account, error) {
	var (
		idStr          string
		email          string
		fullName       string
		emailConfirmed bool
		active         bool
		resetHash      *string
		resetExpiresAt *time.Time
		resetUsed      bool
		createdAt      time.Time
		updatedAt      time.Time
	)

	err := row.Scan(
		&idStr,
		&email,
		&fullName,
		&emailConfirmed,
		&active,
		&resetHash,
		&resetExpiresAt,
		&resetUsed,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		// Propagate pgx.ErrNoRows unchanged for callers to handle with context.
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // Callers wrap with context-specific info
		}
		return nil, oops.Code("ACCOUNT_SCAN_FAILED").
			With("operation", "scan account").
			Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("ACCOUNT_INVALID_ID").
			With("operation", "parse account id").
			With("id", idStr).
			Wrap(err)
	}

	account := &auth.Account{
		ID:             id,
		Email:          email,
		FullName:       fullName,
		EmailConfirmed: emailConfirmed,
		Active:         active,
		CreatedAt:      createdAt,
		UpdatedAt:      updatedAt,
	}
	if resetHash != nil && resetExpiresAt != nil {
		account.Reset = &auth.ResetToken{
			TokenHash: *resetHash,
			ExpiresAt: *resetExpiresAt,
			Used:      resetUsed,
		}
	}
	return account, nil
}

// Compile-time interface check.
var _ auth.Directory = (*Directory)(nil)
