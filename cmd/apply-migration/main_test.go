package main

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitStatements_CommentsDoNotSwallowStatements(t *testing.T) {
	sqlText := `-- file header
-- more header

CREATE TABLE a (
    id INT PRIMARY KEY
);

-- explains the index
CREATE UNIQUE INDEX uq_a ON a (id);
`
	statements := splitStatements(sqlText)
	require.Len(t, statements, 2)
	assert.True(t, strings.HasPrefix(statements[0], "CREATE TABLE a"))
	assert.True(t, strings.HasPrefix(statements[1], "CREATE UNIQUE INDEX uq_a"))
}

func TestSplitStatements_InitMigration(t *testing.T) {
	sqlContent, err := os.ReadFile("../../migrations/001_init.sql")
	require.NoError(t, err)

	statements := splitStatements(string(sqlContent))

	// every DDL statement must survive the split, comments included
	ddlCount := strings.Count(string(sqlContent), ";")
	require.Len(t, statements, ddlCount)
	for _, stmt := range statements {
		assert.True(t, strings.HasPrefix(stmt, "CREATE"), "unexpected statement: %.60s", stmt)
		assert.NotContains(t, stmt, "--")
	}

	joined := strings.Join(statements, "\n")
	assert.Contains(t, joined, "CREATE TABLE IF NOT EXISTS name_parts")
	assert.Contains(t, joined, "CREATE TABLE IF NOT EXISTS name_part_revisions")
	assert.Contains(t, joined, "CREATE TABLE IF NOT EXISTS devices")
	assert.Contains(t, joined, "CREATE TABLE IF NOT EXISTS device_revisions")
	assert.Contains(t, joined, "uq_name_part_single_pending")
}
