// Command migrate applies the embedded schema migrations.
//
//	migrate [--target postgres|clickhouse|all] up|down|status
package main

import (
	"context"
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"royalty-ledger/internal/config"
	"royalty-ledger/internal/logger"
	"royalty-ledger/internal/storage/migrations"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flags := flag.NewFlagSet("migrate", flag.ExitOnError)
	config.RegisterFlags(flags)
	target := flags.String("target", "all", "database to migrate: postgres, clickhouse or all")
	_ = flags.Parse(os.Args[1:])

	name := "up"
	if flags.NArg() > 0 {
		name = flags.Arg(0)
	}
	cmd, err := migrations.ParseCommand(name)
	if err != nil {
		return err
	}

	switch *target {
	case "postgres", "all":
	case "clickhouse":
		// Skips the postgres dsn requirement in config validation.
		_ = flags.Set("use-memory", "true")
	default:
		return fmt.Errorf("unknown target %q", *target)
	}

	cfg, err := config.Load(flags)
	if err != nil {
		return err
	}
	log := logger.New(cfg.Verbose)
	ctx := context.Background()

	if *target != "clickhouse" {
		if cfg.Postgres.DSN == "" {
			return fmt.Errorf("--postgres-dsn is required to migrate postgres")
		}
		if err := migrations.RunPostgres(ctx, log, cfg.Postgres.DSN, cmd); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}
	if *target != "postgres" {
		if cfg.ClickHouse.DSN == "" {
			if *target == "clickhouse" {
				return fmt.Errorf("--clickhouse-dsn is required to migrate clickhouse")
			}
			log.Warn("no clickhouse dsn, skipping audit history migrations")
			return nil
		}
		if err := migrations.RunClickhouse(ctx, log, cfg.ClickHouse.DSN, cmd); err != nil {
			return fmt.Errorf("clickhouse: %w", err)
		}
	}
	return nil
}
