package postgresql

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsAreContiguous(t *testing.T) {
	set := migrations()
	require.NotEmpty(t, set)

	for version := 1; version <= len(set); version++ {
		ddl, ok := set[version]
		assert.True(t, ok, "migration version %d is missing", version)
		assert.NotEmpty(t, strings.TrimSpace(ddl))
	}
}

func TestMigrationsCreateExpectedTables(t *testing.T) {
	var all strings.Builder
	for _, ddl := range migrations() {
		all.WriteString(ddl)
	}

	for _, table := range []string{"workflows", "workflow_nodes", "workflow_edges", "workflow_runs"} {
		assert.Contains(t, all.String(), "CREATE TABLE "+table)
	}
}

func TestSortColumnsAllowlist(t *testing.T) {
	for _, allowed := range []string{"created_at", "updated_at", "name", "status"} {
		_, ok := sortColumns[allowed]
		assert.True(t, ok, "%s should be sortable", allowed)
	}

	_, ok := sortColumns["name; DROP TABLE workflows; --"]
	assert.False(t, ok)
}
