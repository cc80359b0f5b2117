package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// IntegrityCLI runs the ledger integrity checks on demand.
type IntegrityCLI struct {
	GL        func(ctx context.Context, periodID int64) (int, error)
	Inventory func(ctx context.Context, parallelism int) (int, error)
}

// IntegrityOptions defines the flags of the integrity command.
type IntegrityOptions struct {
	PeriodID    int64
	Parallelism int
	JSONOutput  bool
	Stdout      io.Writer
	Stderr      io.Writer
}

// IntegritySummary is the JSON output of the integrity command.
type IntegritySummary struct {
	OK                  bool `json:"ok"`
	GLViolations        int  `json:"gl_violations"`
	InventoryViolations int  `json:"inventory_violations"`
}

// Command runs both checks. It exits 10 when violations were found.
func (c *IntegrityCLI) Command(ctx context.Context, opts IntegrityOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.PeriodID < 0 {
		_, _ = fmt.Fprintln(opts.Stderr, "integrity: --period must not be negative")
		return 1
	}
	glCount, err := c.GL(ctx, opts.PeriodID)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "integrity: gl check: %v\n", err)
		return 1
	}
	invCount, err := c.Inventory(ctx, opts.Parallelism)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "integrity: inventory check: %v\n", err)
		return 1
	}
	summary := IntegritySummary{
		OK:                  glCount == 0 && invCount == 0,
		GLViolations:        glCount,
		InventoryViolations: invCount,
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "integrity: encode json: %v\n", err)
			return 1
		}
	} else {
		_, _ = fmt.Fprintf(opts.Stdout, "unbalanced journal entries: %d\n", glCount)
		_, _ = fmt.Fprintf(opts.Stdout, "inconsistent stock keys:    %d\n", invCount)
	}
	if !summary.OK {
		return 10
	}
	return 0
}
