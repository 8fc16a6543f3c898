package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx driver with database/sql
)

// RunPostgres applies cmd to the embedded PostgreSQL migrations.
func RunPostgres(ctx context.Context, log *slog.Logger, dsn string, cmd Command) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}

	log.Info("running PostgreSQL migrations", "command", cmd)
	if err := run(ctx, log, db, "postgres", cmd); err != nil {
		return err
	}
	log.Info("PostgreSQL migrations completed", "command", cmd)
	return nil
}
