package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteDSNAddsPragmas(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"/tmp/forum.db", "/tmp/forum.db?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL"},
		{"file:x?mode=memory&cache=shared", "file:x?mode=memory&cache=shared&_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL"},
		{"forum.db?_busy_timeout=100", "forum.db?_busy_timeout=100&_foreign_keys=on&_journal_mode=WAL"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, sqliteDSN(tc.in), tc.in)
	}
}

func TestSQLiteForeignKeysOnEveryConnection(t *testing.T) {
	ctx := context.Background()
	db, _, err := Open(ctx, "sqlite3", filepath.Join(t.TempDir(), "forum.db"))
	require.NoError(t, err)
	defer db.Close()
	db.SetMaxOpenConns(2)

	first, err := db.Connx(ctx)
	require.NoError(t, err)
	defer first.Close()
	second, err := db.Connx(ctx)
	require.NoError(t, err)
	defer second.Close()

	for _, conn := range []*sqlx.Conn{first, second} {
		var enabled int
		require.NoError(t, conn.GetContext(ctx, &enabled, `PRAGMA foreign_keys`))
		assert.Equal(t, 1, enabled)
	}
}
