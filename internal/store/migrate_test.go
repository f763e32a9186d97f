// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Stockroom Contributors

package store

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockroom/stockroom/pkg/errutil"
)

func TestNewMigrator_InvalidURL(t *testing.T) {
	_, err := NewMigrator("invalid://url")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "MIGRATION_INIT_FAILED")
}

// postgres:// and postgresql:// URLs must be rewritten to the pgx5:// scheme
// golang-migrate's pgx/v5 driver registers. A wrong scheme would surface as
// an "unknown driver" error rather than a connection failure.
func TestNewMigrator_SchemeRewrite(t *testing.T) {
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		t.Run(scheme, func(t *testing.T) {
			_, err := NewMigrator(scheme + "localhost:1/testdb")
			require.Error(t, err, "should fail due to connection, not URL scheme")
			assert.NotContains(t, err.Error(), "unknown driver")
		})
	}
}

func TestMigrationsFS_EmbeddedFiles(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	require.NoError(t, err, "should read embedded migrations directory")

	fileNames := make(map[string]bool)
	for _, entry := range entries {
		fileNames[entry.Name()] = true
	}

	assert.True(t, fileNames["000001_accounts.up.sql"])
	assert.True(t, fileNames["000001_accounts.down.sql"])

	pattern := regexp.MustCompile(`^\d{6}_\w+\.(up|down)\.sql$`)
	for _, entry := range entries {
		assert.True(t, pattern.MatchString(entry.Name()),
			"file %s should match pattern NNNNNN_name.(up|down).sql", entry.Name())
	}
}
