package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSetterPragmaer(t *testing.T) {
	conn, err := Open(Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	var foreignKeys int
	require.NoError(t, conn.QueryRow(`PRAGMA foreign_keys`).Scan(&foreignKeys))
	assert.Equal(t, 1, foreignKeys)

	var busyTimeout int
	require.NoError(t, conn.QueryRow(`PRAGMA busy_timeout`).Scan(&busyTimeout))
	assert.Equal(t, busyTimeoutMs, busyTimeout, "uten busy_timeout feiler samtidige skrivere med SQLITE_BUSY")
}

func TestPathLiggerIWorkspace(t *testing.T) {
	workspace := t.TempDir()
	sti := Path(workspace)
	assert.Contains(t, sti, workspace)
	assert.Contains(t, sti, ".saksflyt")
}
