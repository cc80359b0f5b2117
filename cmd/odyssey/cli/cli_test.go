package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

func TestTaskForBuildsLedgerTasks(t *testing.T) {
	task, err := TaskFor(TriggerParams{Name: jobs.TaskGLIntegrity, PeriodID: 4})
	require.NoError(t, err)
	require.Equal(t, jobs.TaskGLIntegrity, task.Type())
	require.JSONEq(t, `{"period_id":4}`, string(task.Payload()))

	task, err = TaskFor(TriggerParams{Name: jobs.TaskDepreciationRun, PeriodID: 2, ActorID: 9})
	require.NoError(t, err)
	require.Equal(t, jobs.TaskDepreciationRun, task.Type())

	task, err = TaskFor(TriggerParams{Name: jobs.TaskOutboxRelay})
	require.NoError(t, err)
	require.Equal(t, jobs.TaskOutboxRelay, task.Type())

	_, err = TaskFor(TriggerParams{Name: "analytics:warmup"})
	require.ErrorContains(t, err, "unsupported job")
}

func TestJobsCLIWithoutClient(t *testing.T) {
	var c *JobsCLI
	_, err := c.Trigger(context.Background(), TriggerParams{Name: jobs.TaskOutboxRelay})
	require.Error(t, err)
	_, err = c.InspectQueues(context.Background())
	require.Error(t, err)
}

func TestMigrateCommand(t *testing.T) {
	var gotDir string
	stdout := &bytes.Buffer{}
	code := MigrateCommand(MigrateOptions{
		DSN: "postgres://localhost/ledger",
		Migrate: func(dsn, direction string) (db.MigrationResult, error) {
			gotDir = direction
			return db.MigrationResult{Version: 7, Changed: true}, nil
		},
		Stdout: stdout,
		Stderr: &bytes.Buffer{},
	})
	require.Equal(t, 0, code)
	require.Equal(t, "up", gotDir)
	require.Contains(t, stdout.String(), "applied, version=7 dirty=false")
}

func TestMigrateCommandFailures(t *testing.T) {
	stderr := &bytes.Buffer{}
	require.Equal(t, 1, MigrateCommand(MigrateOptions{Stdout: &bytes.Buffer{}, Stderr: stderr}))
	require.Contains(t, stderr.String(), "PG_DSN is required")

	stderr.Reset()
	require.Equal(t, 1, MigrateCommand(MigrateOptions{DSN: "x", Direction: "sideways", Stdout: &bytes.Buffer{}, Stderr: stderr}))
	require.Contains(t, stderr.String(), "unknown direction")

	dirty := func(string, string) (db.MigrationResult, error) {
		return db.MigrationResult{Version: 3, Dirty: true}, nil
	}
	require.Equal(t, 2, MigrateCommand(MigrateOptions{DSN: "x", Direction: "down", Migrate: dirty, Stdout: &bytes.Buffer{}, Stderr: stderr}))

	broken := func(string, string) (db.MigrationResult, error) {
		return db.MigrationResult{}, errors.New("no route to host")
	}
	stderr.Reset()
	require.Equal(t, 1, MigrateCommand(MigrateOptions{DSN: "x", Migrate: broken, Stdout: &bytes.Buffer{}, Stderr: stderr}))
	require.Contains(t, stderr.String(), "no route to host")
}

func TestIntegrityCommandJSON(t *testing.T) {
	var gotPeriod int64
	var gotParallel int
	c := &IntegrityCLI{
		GL: func(_ context.Context, periodID int64) (int, error) {
			gotPeriod = periodID
			return 2, nil
		},
		Inventory: func(_ context.Context, parallelism int) (int, error) {
			gotParallel = parallelism
			return 0, nil
		},
	}
	stdout := &bytes.Buffer{}
	code := c.Command(context.Background(), IntegrityOptions{PeriodID: 5, Parallelism: 3, JSONOutput: true, Stdout: stdout, Stderr: &bytes.Buffer{}})
	require.Equal(t, 10, code)
	require.EqualValues(t, 5, gotPeriod)
	require.Equal(t, 3, gotParallel)

	var summary IntegritySummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	require.Equal(t, IntegritySummary{OK: false, GLViolations: 2}, summary)
}

func TestIntegrityCommandClean(t *testing.T) {
	clean := &IntegrityCLI{
		GL:        func(context.Context, int64) (int, error) { return 0, nil },
		Inventory: func(context.Context, int) (int, error) { return 0, nil },
	}
	stdout := &bytes.Buffer{}
	require.Equal(t, 0, clean.Command(context.Background(), IntegrityOptions{Stdout: stdout, Stderr: &bytes.Buffer{}}))
	require.Contains(t, stdout.String(), "unbalanced journal entries: 0")

	failing := &IntegrityCLI{
		GL:        func(context.Context, int64) (int, error) { return 0, nil },
		Inventory: func(context.Context, int) (int, error) { return 0, errors.New("pool closed") },
	}
	stderr := &bytes.Buffer{}
	require.Equal(t, 1, failing.Command(context.Background(), IntegrityOptions{Stdout: stdout, Stderr: stderr}))
	require.Contains(t, stderr.String(), "pool closed")
}
