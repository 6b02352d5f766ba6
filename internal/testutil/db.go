// Package testutil holds helpers shared by package tests.
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/facturia/invoice-pipeline/internal/infrastructure/persistence/sqldb"
	"github.com/facturia/invoice-pipeline/migrations"
	"github.com/facturia/invoice-pipeline/pkg/database"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// NewTestDB opens a migrated SQLite database in the test's temp dir
func NewTestDB(t *testing.T) *sqldb.DB {
	t.Helper()

	logger := zap.NewNop()
	db, err := database.New(database.Config{
		Driver:          string(database.DialectSQLite),
		Path:            filepath.Join(t.TempDir(), "test.db"),
		MaxOpenConns:    8,
		MaxIdleConns:    8,
		ConnMaxLifetime: time.Hour,
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.NewMigrator(db, logger).RunMigrations(context.Background(), migrations.FS))
	return sqldb.NewDB(db, logger)
}

// PostgresDSNEnv names the variable that enables Postgres-backed tests
const PostgresDSNEnv = "TEST_DATABASE_DSN"

// NewPostgresTestDB opens the Postgres database named by TEST_DATABASE_DSN,
// migrates it and empties the job and invoice tables. The test is skipped
// when the variable is unset.
func NewPostgresTestDB(t *testing.T) *sqldb.DB {
	t.Helper()

	dsn := os.Getenv(PostgresDSNEnv)
	if dsn == "" {
		t.Skipf("%s not set", PostgresDSNEnv)
	}

	logger := zap.NewNop()
	db, err := database.New(database.Config{
		Driver:          string(database.DialectPostgres),
		DSN:             dsn,
		MaxOpenConns:    8,
		ConnMaxLifetime: time.Hour,
		DialTimeout:     5 * time.Second,
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	require.NoError(t, database.NewMigrator(db, logger).RunMigrations(ctx, migrations.FS))
	_, err = db.ExecContext(ctx, "TRUNCATE line_items, invoices, jobs")
	require.NoError(t, err)
	return sqldb.NewDB(db, logger)
}
