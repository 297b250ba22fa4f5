package migration

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(embeddedMigrations, migrationsDir)
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Fatalf("unexpected migration file %s", name)
		}
	}
	assert.Equal(t, ups, downs)
}

func TestEmbeddedMigrationsCreateEveryTable(t *testing.T) {
	var sql strings.Builder
	err := fs.WalkDir(embeddedMigrations, migrationsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".up.sql") {
			return err
		}
		b, err := fs.ReadFile(embeddedMigrations, path)
		sql.Write(b)
		return err
	})
	require.NoError(t, err)

	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: gormlogger.Discard})
	require.NoError(t, err)
	for _, m := range Models() {
		stmt := &gorm.Statement{DB: conn}
		require.NoError(t, stmt.Parse(m))
		assert.Contains(t, sql.String(), "CREATE TABLE IF NOT EXISTS "+stmt.Schema.Table+" (")
	}
}

func TestRunAutoMigratesSqlite(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file:migration_run?mode=memory&cache=shared"), &gorm.Config{Logger: gormlogger.Discard})
	require.NoError(t, err)

	require.NoError(t, Run(conn, "sqlite"))
	assert.True(t, conn.Migrator().HasTable("boq_projects"))
	assert.True(t, conn.Migrator().HasTable("boq_events"))
}
