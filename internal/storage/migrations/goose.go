package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/pressly/goose/v3"
)

// Command is a migration action.
type Command string

const (
	CommandUp     Command = "up"
	CommandDown   Command = "down"
	CommandStatus Command = "status"
)

// ParseCommand validates a command name.
func ParseCommand(s string) (Command, error) {
	switch c := Command(strings.ToLower(s)); c {
	case CommandUp, CommandDown, CommandStatus:
		return c, nil
	}
	return "", fmt.Errorf("unknown migration command %q (want up, down or status)", s)
}

// goose keeps its dialect and base FS in package globals.
var gooseMu sync.Mutex

// slogGooseLogger adapts slog.Logger to goose.Logger interface
type slogGooseLogger struct {
	log *slog.Logger
}

func (l *slogGooseLogger) Fatalf(format string, v ...any) {
	l.log.Error(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l *slogGooseLogger) Printf(format string, v ...any) {
	l.log.Info(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

// run executes cmd against the embedded directory named after dialect.
func run(ctx context.Context, log *slog.Logger, db *sql.DB, dialect string, cmd Command) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetLogger(&slogGooseLogger{log: log})
	goose.SetBaseFS(FS)

	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	var err error
	switch cmd {
	case CommandUp:
		err = goose.UpContext(ctx, db, dialect)
	case CommandDown:
		err = goose.DownContext(ctx, db, dialect)
	case CommandStatus:
		err = goose.StatusContext(ctx, db, dialect)
	default:
		return fmt.Errorf("unknown migration command %q", cmd)
	}
	if err != nil {
		return fmt.Errorf("goose %s (%s): %w", cmd, dialect, err)
	}
	return nil
}
