package postgres

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"royalty-ledger/internal/storage/migrations"
)

// setupTestDB creates a PostgreSQL container for testing and applies migrations.
// Returns a cleanup function that must be called after tests complete.
func setupTestDB(t *testing.T) (*Pool, func()) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "failed to get connection string")

	err = migrations.RunPostgres(ctx, slog.New(slog.DiscardHandler), dsn, migrations.CommandUp)
	require.NoError(t, err, "failed to apply migrations")

	pool, err := NewPool(ctx, dsn)
	require.NoError(t, err, "failed to create pool")

	cleanup := func() {
		pool.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}

	return pool, cleanup
}

// truncateAll clears every table between subtests. Test-only: the ledger
// tables reject DELETE, and TRUNCATE bypasses row triggers.
func truncateAll(t *testing.T, pool *Pool) {
	t.Helper()

	_, err := pool.Exec(context.Background(), `
		TRUNCATE ledger_entries, fee_snapshots, royalty_agreement_shares,
			royalty_agreement_versions, job_runs, tokens, reconciliation_results
	`)
	require.NoError(t, err, "failed to truncate tables")
}

// ptr is a helper to create pointers to values.
func ptr[T any](v T) *T {
	return &v
}
