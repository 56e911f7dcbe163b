package migrate

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

var testFS = fstest.MapFS{
	"m/001_create_a.up.sql":   {Data: []byte("CREATE TABLE a (id INTEGER)")},
	"m/001_create_a.down.sql": {Data: []byte("DROP TABLE a")},
	"m/002_create_b.up.sql":   {Data: []byte("CREATE TABLE b (id INTEGER)")},
	"m/002_create_b.down.sql": {Data: []byte("DROP TABLE b")},
	"m/README.md":             {Data: []byte("ignored")},
}

func TestFSProviderMigrations(t *testing.T) {
	migrations, err := NewFSProvider(testFS, "m", "").GetMigrations()
	require.NoError(t, err)
	require.Len(t, migrations, 2)
	assert.Equal(t, 1, migrations[0].Version)
	assert.Equal(t, "create a", migrations[0].Name)
	assert.Equal(t, "DROP TABLE b", migrations[1].Down)
}

func TestMigrateUpAndDown(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "m.sdb"))
	require.NoError(t, err)
	defer db.Close()

	m := NewMigrator(db, NewFSProvider(testFS, "m", ""), nil)
	require.NoError(t, m.MigrateUp(ctx))

	v, err := m.GetCurrentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	pending, err := m.GetPendingMigrations(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	// Running again is a no-op.
	require.NoError(t, m.MigrateUp(ctx))

	require.NoError(t, m.MigrateTo(ctx, 1))
	v, err = m.GetCurrentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	_, err = db.ExecContext(ctx, "INSERT INTO b (id) VALUES (1)")
	assert.Error(t, err, "table b should be gone")

	pending, err = m.GetPendingMigrations(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 2, pending[0].Version)
}
