package clickhouse

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
	tcch "github.com/testcontainers/testcontainers-go/modules/clickhouse"

	"royalty-ledger/internal/storage/migrations"
)

// setupTestDB creates a ClickHouse container and returns a connection.
// Returns a cleanup function that must be called when done.
func setupTestDB(t *testing.T) (*Conn, func()) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	container, err := tcch.Run(ctx,
		"clickhouse/clickhouse-server:24.1-alpine",
		tcch.WithDatabase("test"),
		tcch.WithUsername("default"),
		tcch.WithPassword("test"),
	)
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "9000/tcp")
	require.NoError(t, err)

	dsn := fmt.Sprintf("clickhouse://default:test@%s:%s/test", host, port.Port())

	err = migrations.RunClickhouse(ctx, slog.New(slog.DiscardHandler), dsn, migrations.CommandUp)
	require.NoError(t, err)

	conn, err := NewConn(ctx, dsn)
	require.NoError(t, err)

	cleanup := func() {
		conn.Close()
		_ = container.Terminate(ctx)
	}

	return conn, cleanup
}
