package shared

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

type recordingExecer struct {
	sql  string
	args []any
}

func (r *recordingExecer) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	r.sql = sql
	r.args = args
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func TestAuditLoggerRecord(t *testing.T) {
	exec := &recordingExecer{}
	logger := NewAuditLogger(exec)
	at := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)

	err := logger.Record(context.Background(), AuditLog{
		ActorID:  7,
		Action:   "journal.post",
		Entity:   "gl_entry",
		EntityID: "42",
		Meta:     map[string]any{"entry_number": "JV-1"},
		At:       at,
	})
	require.NoError(t, err)
	require.Contains(t, exec.sql, "INSERT INTO audit_logs")
	require.Equal(t, int64(7), exec.args[0])
	require.JSONEq(t, `{"entry_number":"JV-1"}`, string(exec.args[4].([]byte)))
	require.Equal(t, at, exec.args[5])
}

func TestAuditLoggerRejectsIncompleteLog(t *testing.T) {
	logger := NewAuditLogger(&recordingExecer{})
	require.Error(t, logger.Record(context.Background(), AuditLog{Action: "x"}))

	var nilLogger *AuditLogger
	require.Error(t, nilLogger.Record(context.Background(), AuditLog{}))
}

func TestLockKeys(t *testing.T) {
	require.Equal(t, "finance:period:3:lock", FinanceLockKey(3))
	require.Equal(t, "finance:period:3:lock:depreciation", DepreciationRunLockKey(3))
}
