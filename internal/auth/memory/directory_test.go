// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Stockroom Contributors

package memory_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockroom/stockroom/internal/auth"
	"github.com/stockroom/stockroom/internal/auth/memory"
)

type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) {
	if err := auth.ValidatePasswordStrength(password); err != nil {
		return "", err
	}
	return "plain:" + password, nil
}

func (plainHasher) Verify(password, hash string) (bool, error) {
	return hash == "plain:"+password, nil
}

func newDirectory() *memory.Directory {
	return memory.NewDirectory(plainHasher{})
}

func mustCreate(t *testing.T, d *memory.Directory, email string) *auth.Account {
	t.Helper()
	account, err := d.Create(context.Background(), email, "secret123", "Kim Reyes")
	require.NoError(t, err)
	return account
}

func TestDirectory_CreateAndFind(t *testing.T) {
	ctx := context.Background()

	t.Run("round trip", func(t *testing.T) {
		d := newDirectory()
		created := mustCreate(t, d, "kim@example.com")

		found, err := d.FindByEmail(ctx, "kim@example.com")
		require.NoError(t, err)
		assert.Equal(t, created.ID, found.ID)
		assert.Equal(t, "Kim Reyes", found.FullName)
		assert.True(t, found.Active)
		assert.Nil(t, found.Reset)
	})

	t.Run("find is case-insensitive", func(t *testing.T) {
		d := newDirectory()
		mustCreate(t, d, "kim@example.com")

		_, err := d.FindByEmail(ctx, "KIM@EXAMPLE.COM")
		require.NoError(t, err)
	})

	t.Run("missing account", func(t *testing.T) {
		d := newDirectory()
		_, err := d.FindByEmail(ctx, "nobody@example.com")
		require.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("duplicate email", func(t *testing.T) {
		d := newDirectory()
		mustCreate(t, d, "kim@example.com")

		_, err := d.Create(ctx, "Kim@Example.com", "secret123", "Other")
		require.ErrorIs(t, err, auth.ErrAlreadyExists)
	})

	t.Run("weak password", func(t *testing.T) {
		d := newDirectory()
		_, err := d.Create(ctx, "kim@example.com", "abc", "Kim Reyes")
		require.Error(t, err)
	})
}

func TestDirectory_Passwords(t *testing.T) {
	ctx := context.Background()

	t.Run("verify and update", func(t *testing.T) {
		d := newDirectory()
		account := mustCreate(t, d, "kim@example.com")

		ok, err := d.VerifyPassword(ctx, account, "secret123")
		require.NoError(t, err)
		assert.True(t, ok)

		require.NoError(t, d.UpdatePassword(ctx, account.ID, "newsecret456"))

		ok, err = d.VerifyPassword(ctx, account, "secret123")
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = d.VerifyPassword(ctx, account, "newsecret456")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("concurrent verify and update", func(t *testing.T) {
		const workers = 16
		d := newDirectory()
		account := mustCreate(t, d, "kim@example.com")

		var wg sync.WaitGroup
		for i := range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if i%2 == 0 {
					_, err := d.VerifyPassword(ctx, account, "secret123")
					assert.NoError(t, err)
					return
				}
				assert.NoError(t, d.UpdatePassword(ctx, account.ID, "newsecret456"))
			}()
		}
		wg.Wait()

		ok, err := d.VerifyPassword(ctx, account, "newsecret456")
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestDirectory_SaveAndRoles(t *testing.T) {
	ctx := context.Background()

	t.Run("save persists attribute fields", func(t *testing.T) {
		d := newDirectory()
		account := mustCreate(t, d, "kim@example.com")

		account.EmailConfirmed = true
		account.FullName = "Kim A. Reyes"
		require.NoError(t, d.Save(ctx, account))

		found, err := d.FindByEmail(ctx, "kim@example.com")
		require.NoError(t, err)
		assert.True(t, found.EmailConfirmed)
		assert.Equal(t, "Kim A. Reyes", found.FullName)
	})

	t.Run("add role is idempotent", func(t *testing.T) {
		d := newDirectory()
		account := mustCreate(t, d, "kim@example.com")

		require.NoError(t, d.AddRole(ctx, account.ID, auth.RoleStaff))
		require.NoError(t, d.AddRole(ctx, account.ID, auth.RoleStaff))
		require.NoError(t, d.AddRole(ctx, account.ID, auth.RoleAdmin))

		roles, err := d.ListRoles(ctx, account.ID)
		require.NoError(t, err)
		assert.Equal(t, []auth.Role{auth.RoleStaff, auth.RoleAdmin}, roles)
	})
}

func TestDirectory_ResetTokenConditionals(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	t.Run("claim installs a pending token", func(t *testing.T) {
		d := newDirectory()
		account := mustCreate(t, d, "kim@example.com")

		require.NoError(t, d.ClaimResetToken(ctx, account.ID, "hash-1", time.Now().Add(20*time.Minute)))

		found, err := d.FindByEmail(ctx, "kim@example.com")
		require.NoError(t, err)
		require.NotNil(t, found.Reset)
		assert.Equal(t, "hash-1", found.Reset.TokenHash)
		assert.False(t, found.Reset.Used)
	})

	t.Run("claim refuses while a live token exists", func(t *testing.T) {
		d := newDirectory()
		account := mustCreate(t, d, "kim@example.com")

		require.NoError(t, d.ClaimResetToken(ctx, account.ID, "hash-1", time.Now().Add(20*time.Minute)))
		err := d.ClaimResetToken(ctx, account.ID, "hash-2", time.Now().Add(20*time.Minute))
		require.ErrorIs(t, err, auth.ErrResetPending)
	})

	t.Run("claim overwrites an expired token", func(t *testing.T) {
		now := base
		d := memory.NewDirectoryWithClock(plainHasher{}, func() time.Time { return now })
		account, err := d.Create(ctx, "kim@example.com", "secret123", "Kim Reyes")
		require.NoError(t, err)

		require.NoError(t, d.ClaimResetToken(ctx, account.ID, "hash-1", now.Add(20*time.Minute)))
		now = now.Add(21 * time.Minute)
		require.NoError(t, d.ClaimResetToken(ctx, account.ID, "hash-2", now.Add(20*time.Minute)))

		found, err := d.FindByEmail(ctx, "kim@example.com")
		require.NoError(t, err)
		assert.Equal(t, "hash-2", found.Reset.TokenHash)
	})

	t.Run("consume marks the token used once", func(t *testing.T) {
		d := newDirectory()
		account := mustCreate(t, d, "kim@example.com")

		require.NoError(t, d.ClaimResetToken(ctx, account.ID, "hash-1", time.Now().Add(20*time.Minute)))
		require.NoError(t, d.ConsumeResetToken(ctx, account.ID, "hash-1"))

		err := d.ConsumeResetToken(ctx, account.ID, "hash-1")
		require.ErrorIs(t, err, auth.ErrResetNotPending)
	})

	t.Run("consume refuses a mismatched hash", func(t *testing.T) {
		d := newDirectory()
		account := mustCreate(t, d, "kim@example.com")

		require.NoError(t, d.ClaimResetToken(ctx, account.ID, "hash-1", time.Now().Add(20*time.Minute)))
		err := d.ConsumeResetToken(ctx, account.ID, "other-hash")
		require.ErrorIs(t, err, auth.ErrResetNotPending)
	})

	t.Run("concurrent claims elect one winner", func(t *testing.T) {
		const workers = 16
		d := newDirectory()
		account := mustCreate(t, d, "kim@example.com")

		var wg sync.WaitGroup
		errs := make([]error, workers)
		for i := range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs[i] = d.ClaimResetToken(ctx, account.ID, "hash", time.Now().Add(20*time.Minute))
			}()
		}
		wg.Wait()

		var wins int
		for _, err := range errs {
			if err == nil {
				wins++
			}
		}
		assert.Equal(t, 1, wins)
	})
}
