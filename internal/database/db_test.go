package database

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAndMigrate(t *testing.T) {
	db, err := New(Config{Path: filepath.Join(t.TempDir(), "nested", "runs.db"), Name: "runs"})
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Migrate())
	// Idempotent
	require.NoError(t, db.Migrate())

	var count int
	err = db.Conn().QueryRow("SELECT COUNT(*) FROM runs").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestMigrateUnknownSchemaIsNoop(t *testing.T) {
	db, err := New(Config{Path: filepath.Join(t.TempDir(), "scratch.db"), Name: "scratch", Profile: ProfileCache})
	require.NoError(t, err)
	defer db.Close()

	assert.NoError(t, db.Migrate())
}

func TestWithTransactionRollsBack(t *testing.T) {
	db, err := New(Config{Path: filepath.Join(t.TempDir(), "tx.db"), Name: "tx"})
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Conn().Exec("CREATE TABLE items (v INTEGER)")
	require.NoError(t, err)

	err = WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		if _, err := tx.Exec("INSERT INTO items VALUES (1)"); err != nil {
			return err
		}
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	assert.Error(t, WithTransaction(nil, func(*sql.Tx) error { return nil }))

	err = WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		_, err := tx.Exec("INSERT INTO items VALUES (2)")
		return err
	})
	require.NoError(t, err)

	var sum int
	require.NoError(t, db.Conn().QueryRow("SELECT COALESCE(SUM(v), 0) FROM items").Scan(&sum))
	assert.Equal(t, 2, sum)
}

func TestHealthAndStats(t *testing.T) {
	db, err := New(Config{Path: filepath.Join(t.TempDir(), "runs.db"), Name: "runs"})
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Migrate())

	assert.NoError(t, db.HealthCheck(context.Background()))
	assert.NoError(t, db.WALCheckpoint(""))

	stats, err := db.GetStats()
	require.NoError(t, err)
	assert.Greater(t, stats.PageSize, int64(0))
	assert.Greater(t, stats.PageCount, int64(0))
}
