//go:build integration

package migrations

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/bugsneak/pkg/testhelpers"
)

// Test_001_ErrorLogs verifies the error log table, its unique constraints, and its indexes.
func Test_001_ErrorLogs(t *testing.T) {
	testDB := testhelpers.GetTestDB(t)
	ctx := context.Background()

	columns := map[string]string{
		"error_hash":       "character",
		"occurrence_count": "bigint",
		"stack_trace":      "jsonb",
		"code_snippet":     "jsonb",
		"request_context":  "jsonb",
		"status":           "text",
		"last_seen":        "timestamp with time zone",
	}
	for column, wantType := range columns {
		var dataType string
		err := testDB.DB.QueryRow(ctx, `
			SELECT data_type FROM information_schema.columns
			WHERE table_name = 'bugsneak_error_logs' AND column_name = $1
		`, column).Scan(&dataType)
		require.NoError(t, err, "column %s should exist", column)
		assert.Equal(t, wantType, dataType, "column %s type", column)
	}

	var uniqueCount int
	err := testDB.DB.QueryRow(ctx, `
		SELECT COUNT(*) FROM information_schema.table_constraints
		WHERE table_name = 'bugsneak_error_logs' AND constraint_type = 'UNIQUE'
	`).Scan(&uniqueCount)
	require.NoError(t, err)
	assert.Equal(t, 2, uniqueCount, "error_hash and share_token should be unique")

	var indexExists bool
	err = testDB.DB.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM pg_indexes
			WHERE tablename = 'bugsneak_error_logs'
			AND indexname = 'idx_bugsneak_error_logs_last_seen'
		)
	`).Scan(&indexExists)
	require.NoError(t, err)
	assert.True(t, indexExists, "last_seen index should exist")
}

// Test_001_StatusCheck verifies that unknown statuses are rejected by the database.
func Test_001_StatusCheck(t *testing.T) {
	testDB := testhelpers.GetTestDB(t)
	testDB.ResetErrorLogs(t)
	ctx := context.Background()

	_, err := testDB.DB.Exec(ctx, `
		INSERT INTO bugsneak_error_logs (error_type, error_message, share_token, error_hash, status)
		VALUES ('Warning', 'boom', 'tok-1', repeat('a', 64), 'archived')
	`)
	assert.Error(t, err)
}
