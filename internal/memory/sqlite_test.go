package memory

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildLibsqlDSN(t *testing.T) {
	t.Run("URLUsesRawValue", func(t *testing.T) {
		dsn, err := buildLibsqlDSN(SQLiteConfig{URL: "libsql://example.turso.io", AuthToken: "token123"})
		require.NoError(t, err)
		require.Equal(t, "libsql://example.turso.io?authToken=token123", dsn)
	})

	t.Run("URLKeepsExistingToken", func(t *testing.T) {
		dsn, err := buildLibsqlDSN(SQLiteConfig{URL: "libsql://example.turso.io?authToken=abc", AuthToken: "token123"})
		require.NoError(t, err)
		require.Equal(t, "libsql://example.turso.io?authToken=abc", dsn)
	})

	t.Run("MemoryPathPassesThrough", func(t *testing.T) {
		dsn, err := buildLibsqlDSN(SQLiteConfig{Path: ":memory:"})
		require.NoError(t, err)
		require.Equal(t, ":memory:", dsn)
	})

	t.Run("PlainPathGetsFileScheme", func(t *testing.T) {
		dir := t.TempDir()
		dsn, err := buildLibsqlDSN(SQLiteConfig{Path: dir + "/chat.db"})
		require.NoError(t, err)
		require.Equal(t, "file:"+dir+"/chat.db", dsn)
	})

	t.Run("EmptyConfigErrors", func(t *testing.T) {
		_, err := buildLibsqlDSN(SQLiteConfig{})
		require.Error(t, err)
	})
}
