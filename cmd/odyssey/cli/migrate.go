package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// MigrateFunc applies schema migrations.
type MigrateFunc func(dsn, direction string) (db.MigrationResult, error)

// MigrateOptions defines the flags of the migrate command.
type MigrateOptions struct {
	DSN       string
	Direction string
	Migrate   MigrateFunc
	Stdout    io.Writer
	Stderr    io.Writer
}

// MigrateCommand runs the embedded migrations and prints the resulting
// version.
func MigrateCommand(opts MigrateOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Migrate == nil {
		opts.Migrate = db.Migrate
	}
	if opts.DSN == "" {
		_, _ = fmt.Fprintln(opts.Stderr, "migrate: PG_DSN is required")
		return 1
	}
	direction := opts.Direction
	if direction == "" {
		direction = "up"
	}
	if direction != "up" && direction != "down" {
		_, _ = fmt.Fprintf(opts.Stderr, "migrate: unknown direction %q (expected up or down)\n", direction)
		return 1
	}
	res, err := opts.Migrate(opts.DSN, direction)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "migrate: %v\n", err)
		return 1
	}
	state := "unchanged"
	if res.Changed {
		state = "applied"
	}
	_, _ = fmt.Fprintf(opts.Stdout, "migrate %s: %s, version=%d dirty=%t\n", direction, state, res.Version, res.Dirty)
	if res.Dirty {
		return 2
	}
	return 0
}
