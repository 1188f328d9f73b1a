package storage

import (
	"context"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAppliesMigrations(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "gridduel.db")

	db, err := Open(ctx, path)
	require.NoError(t, err)

	for _, table := range []string{"sessions", "participants", "users", "friendships"} {
		var name string
		err := db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
		assert.NoError(t, err, "table %s should exist", table)
	}

	var applied int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&applied))
	assert.Equal(t, 2, applied)
	require.NoError(t, db.Close())

	// Reopening must not re-run anything.
	db, err = Open(ctx, path)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&applied))
	assert.Equal(t, 2, applied)
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(context.Background(), "  ")
	assert.Error(t, err)
}

func TestMigrateFromCustomFS(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, filepath.Join(t.TempDir(), "custom.db"))
	require.NoError(t, err)
	defer db.Close()

	fsys := fstest.MapFS{
		"0100_extra.sql": {Data: []byte("-- +migrate Up\nCREATE TABLE extra (id INTEGER);\n-- +migrate Down\nDROP TABLE extra;\n")},
		"notes.txt":      {Data: []byte("ignored")},
	}
	require.NoError(t, Migrate(ctx, db, fsys))
	require.NoError(t, Migrate(ctx, db, fsys))

	_, err = db.ExecContext(ctx, "INSERT INTO extra (id) VALUES (1)")
	assert.NoError(t, err)
}

func TestMigrateRejectsBrokenSQL(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, filepath.Join(t.TempDir(), "broken.db"))
	require.NoError(t, err)
	defer db.Close()

	fsys := fstest.MapFS{"0100_bad.sql": {Data: []byte("CREATE TABLEX nope;")}}
	assert.Error(t, Migrate(ctx, db, fsys))

	var count int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE name = '0100_bad.sql'").Scan(&count))
	assert.Zero(t, count)
}

func TestUpSection(t *testing.T) {
	assert.Equal(t, "\nA\n", UpSection("-- +migrate Up\nA\n-- +migrate Down\nB"))
	assert.Equal(t, "\nA", UpSection("-- +migrate Up\nA"))
	assert.Equal(t, "plain", UpSection("plain"))
}

func TestMillisRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 123_000_000, time.FixedZone("x", 3600))
	got := FromMillis(ToMillis(now))
	assert.True(t, now.Equal(got))
	assert.Equal(t, time.UTC, got.Location())
}
