package sqlstore

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/leave"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	s, err := New(db, DriverPostgres)
	require.NoError(t, err)
	return s, mock
}

func TestRebind(t *testing.T) {
	pg := dialect{name: DriverPostgres, dollar: true}
	lite := dialect{name: DriverSQLite}
	query := "SELECT id FROM leave_requests WHERE user_id IN (?, ?) AND status = ?"

	assert.Equal(t, "SELECT id FROM leave_requests WHERE user_id IN ($1, $2) AND status = $3", pg.rebind(query))
	assert.Equal(t, query, lite.rebind(query))
	assert.Equal(t, "?, ?, ?", placeholders(3))
	assert.Equal(t, "", placeholders(0))
}

func TestDialectFor_Unknown(t *testing.T) {
	_, err := dialectFor("oracle")
	assert.Error(t, err)
}

func TestPostgres_SaveBalance_InsertConflict(t *testing.T) {
	// GIVEN: Another writer inserted the row first
	// WHEN: Inserting a version 0 balance
	// THEN: The unique violation surfaces as a concurrent modification

	s, mock := newMockStore(t)
	key := leave.BalanceKey{UserID: "alice", LeaveTypeID: "cp", Year: 2025}
	mock.ExpectExec(`INSERT INTO leave_balances .* VALUES \(\$1, \$2, \$3, \$4, \$5, \$6, \$7, \$8\)`).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value"})

	_, err := s.SaveBalance(context.Background(), leave.NewLeaveBalance(key, decimal.NewFromInt(25)))

	assert.ErrorIs(t, err, leave.ErrConcurrentModification)
	assert.True(t, leave.IsRetryable(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SaveBalance_StaleVersion(t *testing.T) {
	s, mock := newMockStore(t)
	b := leave.NewLeaveBalance(leave.BalanceKey{UserID: "alice", LeaveTypeID: "cp", Year: 2025}, decimal.NewFromInt(25))
	b.Version = 3
	mock.ExpectExec(`UPDATE leave_balances`).
		WithArgs("25", "0", "0", "25", int64(4), "alice", "cp", 2025, int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := s.SaveBalance(context.Background(), b)

	assert.ErrorIs(t, err, leave.ErrConcurrentModification)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SaveBalance_Updated(t *testing.T) {
	s, mock := newMockStore(t)
	b := leave.NewLeaveBalance(leave.BalanceKey{UserID: "alice", LeaveTypeID: "cp", Year: 2025}, decimal.NewFromInt(25))
	b.Version = 3
	mock.ExpectExec(`UPDATE leave_balances .* WHERE user_id = \$6 AND leave_type_id = \$7 AND year = \$8 AND version = \$9`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	got, err := s.SaveBalance(context.Background(), b)

	require.NoError(t, err)
	assert.Equal(t, int64(4), got.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_WithTx_RollsBackOnFailure(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO audit_log`).WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := s.WithTx(context.Background(), func(tx leave.Store) error {
		return tx.AppendAudit(context.Background(), leave.AuditEntry{ID: "e1", RequestID: "r1", ActorID: "alice",
			Action: leave.AuditRequestSubmitted})
	})

	assert.Error(t, err)
	assert.Equal(t, leave.KindInternal, leave.KindOf(err))
	assert.ErrorIs(t, leave.Persistence("submit", err), leave.ErrPersistenceFailure)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetRequest_NotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT .* FROM leave_requests WHERE id = \$1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := s.GetRequest(context.Background(), "missing")

	assert.ErrorIs(t, err, leave.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetRequest_CorruptTimestamp(t *testing.T) {
	// GIVEN: A stored request whose created_at is not a timestamp
	// WHEN: Loading it
	// THEN: A decode error naming the request, not a zero time

	s, mock := newMockStore(t)
	rows := sqlmock.NewRows([]string{"id", "user_id", "company_id", "leave_type_id", "start_date", "end_date",
		"is_half_day", "half_day_period", "days_count", "reason", "status", "fiscal_year",
		"created_at", "updated_at", "cancelled_at"}).
		AddRow("r1", "alice", "acme", "cp", "2025-03-10", "2025-03-11", 0, "", "2", "", "pending", 2025,
			"yesterday", "2025-03-03T09:00:00Z", nil)
	mock.ExpectQuery(`SELECT .* FROM leave_requests WHERE id = \$1`).WithArgs("r1").WillReturnRows(rows)

	_, err := s.GetRequest(context.Background(), "r1")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode request r1")
	assert.Contains(t, err.Error(), `"yesterday"`)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ListApprovals_CorruptDecidedAt(t *testing.T) {
	s, mock := newMockStore(t)
	rows := sqlmock.NewRows([]string{"id", "request_id", "level", "sequence", "approver_id", "status", "comment", "decided_at"}).
		AddRow("a1", "r1", "manager", 1, "manny", "approved", "", "03/03/2025")
	mock.ExpectQuery(`SELECT .* FROM request_approvals WHERE request_id = \$1`).WithArgs("r1").WillReturnRows(rows)

	_, err := s.ListApprovals(context.Background(), "r1")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode approval a1")
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "40001"}))
	assert.False(t, isUniqueViolation(errors.New("other")))
	assert.False(t, isUniqueViolation(nil))
}
