package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// LEAVE REQUESTS
// =============================================================================

const requestColumns = `id, user_id, company_id, leave_type_id, start_date, end_date, is_half_day,
	half_day_period, days_count, reason, status, fiscal_year, created_at, updated_at, cancelled_at`

func (x *queries) GetRequest(ctx context.Context, id string) (leave.LeaveRequest, error) {
	r, err := scanRequest(x.queryRow(ctx, `SELECT `+requestColumns+` FROM leave_requests WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return leave.LeaveRequest{}, fmt.Errorf("request %s: %w", id, leave.ErrNotFound)
	}
	return r, err
}

func (x *queries) ListRequests(ctx context.Context, f leave.RequestFilter) ([]leave.LeaveRequest, error) {
	var (
		where []string
		args  []any
	)
	if f.CompanyID != "" {
		where = append(where, "company_id = ?")
		args = append(args, f.CompanyID)
	}
	if len(f.UserIDs) > 0 {
		where = append(where, "user_id IN ("+placeholders(len(f.UserIDs))+")")
		for _, id := range f.UserIDs {
			args = append(args, id)
		}
	}
	if len(f.Statuses) > 0 {
		where = append(where, "status IN ("+placeholders(len(f.Statuses))+")")
		for _, s := range f.Statuses {
			args = append(args, string(s))
		}
	}
	if !f.From.IsZero() && !f.To.IsZero() {
		where = append(where, "start_date <= ? AND end_date >= ?")
		args = append(args, f.To.String(), f.From.String())
	}

	query := `SELECT ` + requestColumns + ` FROM leave_requests`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY start_date, id"

	rows, err := x.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()

	var out []leave.LeaveRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (x *queries) SaveRequest(ctx context.Context, r leave.LeaveRequest) error {
	_, err := x.exec(ctx, `
		INSERT INTO leave_requests (`+requestColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			updated_at = excluded.updated_at,
			cancelled_at = excluded.cancelled_at`,
		r.ID, r.UserID, r.CompanyID, r.LeaveTypeID, r.StartDate.String(), r.EndDate.String(), boolInt(r.IsHalfDay),
		string(r.HalfDayPeriod), r.DaysCount.String(), r.Reason, string(r.Status), r.FiscalYear,
		formatTime(r.CreatedAt), formatTime(r.UpdatedAt), nullTime(r.CancelledAt),
	)
	if err != nil {
		return fmt.Errorf("save request %s: %w", r.ID, err)
	}
	return nil
}

func scanRequest(sc scanner) (leave.LeaveRequest, error) {
	var (
		r                leave.LeaveRequest
		start, end, days string
		period, status   string
		created, updated string
		halfDay          int
		cancelled        sql.NullString
	)
	err := sc.Scan(&r.ID, &r.UserID, &r.CompanyID, &r.LeaveTypeID, &start, &end, &halfDay,
		&period, &days, &r.Reason, &status, &r.FiscalYear, &created, &updated, &cancelled)
	if err != nil {
		return leave.LeaveRequest{}, err
	}

	r.IsHalfDay = halfDay != 0
	r.HalfDayPeriod = leave.HalfDayPeriod(period)
	r.Status = leave.RequestStatus(status)
	if r.StartDate, err = leave.ParseDate(start); err != nil {
		return r, fmt.Errorf("decode request %s: %w", r.ID, err)
	}
	if r.EndDate, err = leave.ParseDate(end); err != nil {
		return r, fmt.Errorf("decode request %s: %w", r.ID, err)
	}
	if r.DaysCount, err = decimal.NewFromString(days); err != nil {
		return r, fmt.Errorf("decode request %s: %w", r.ID, err)
	}
	if r.CreatedAt, err = parseTime(created); err != nil {
		return r, fmt.Errorf("decode request %s: %w", r.ID, err)
	}
	if r.UpdatedAt, err = parseTime(updated); err != nil {
		return r, fmt.Errorf("decode request %s: %w", r.ID, err)
	}
	if r.CancelledAt, err = parseNullTime(cancelled); err != nil {
		return r, fmt.Errorf("decode request %s: %w", r.ID, err)
	}
	return r, nil
}

// =============================================================================
// APPROVALS
// =============================================================================

func (x *queries) ListApprovals(ctx context.Context, requestID string) ([]leave.RequestApproval, error) {
	rows, err := x.query(ctx, `
		SELECT id, request_id, level, sequence, approver_id, status, comment, decided_at
		FROM request_approvals WHERE request_id = ? ORDER BY sequence`, requestID)
	if err != nil {
		return nil, fmt.Errorf("list approvals: %w", err)
	}
	defer rows.Close()

	var out []leave.RequestApproval
	for rows.Next() {
		var (
			a             leave.RequestApproval
			level, status string
			decided       sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.RequestID, &level, &a.Sequence, &a.ApproverID, &status, &a.Comment, &decided); err != nil {
			return nil, err
		}
		a.Level = leave.ApprovalLevel(level)
		a.Status = leave.ApprovalStatus(status)
		if a.DecidedAt, err = parseNullTime(decided); err != nil {
			return nil, fmt.Errorf("decode approval %s: %w", a.ID, err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (x *queries) SaveApproval(ctx context.Context, a leave.RequestApproval) error {
	_, err := x.exec(ctx, `
		INSERT INTO request_approvals (id, request_id, level, sequence, approver_id, status, comment, decided_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			approver_id = excluded.approver_id,
			status = excluded.status,
			comment = excluded.comment,
			decided_at = excluded.decided_at`,
		a.ID, a.RequestID, string(a.Level), a.Sequence, a.ApproverID, string(a.Status), a.Comment, nullTime(a.DecidedAt),
	)
	if err != nil {
		return fmt.Errorf("save approval %s: %w", a.ID, err)
	}
	return nil
}

// =============================================================================
// BALANCES - Version check-and-set
// =============================================================================

const balanceColumns = `user_id, leave_type_id, year, initial_balance, used_days, pending_days, remaining_days, version`

func (x *queries) GetBalance(ctx context.Context, key leave.BalanceKey) (leave.LeaveBalance, error) {
	b, err := scanBalance(x.queryRow(ctx, `SELECT `+balanceColumns+` FROM leave_balances
		WHERE user_id = ? AND leave_type_id = ? AND year = ?`, key.UserID, key.LeaveTypeID, key.Year))
	if errors.Is(err, sql.ErrNoRows) {
		return leave.LeaveBalance{}, fmt.Errorf("balance %s: %w", key, leave.ErrNotFound)
	}
	return b, err
}

func (x *queries) ListBalances(ctx context.Context, userID string, year int) ([]leave.LeaveBalance, error) {
	rows, err := x.query(ctx, `SELECT `+balanceColumns+` FROM leave_balances
		WHERE user_id = ? AND year = ? ORDER BY leave_type_id`, userID, year)
	if err != nil {
		return nil, fmt.Errorf("list balances: %w", err)
	}
	defer rows.Close()

	var out []leave.LeaveBalance
	for rows.Next() {
		b, err := scanBalance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (x *queries) SaveBalance(ctx context.Context, b leave.LeaveBalance) (leave.LeaveBalance, error) {
	next := b
	next.Version = b.Version + 1

	if b.Version == 0 {
		_, err := x.exec(ctx, `INSERT INTO leave_balances (`+balanceColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			b.UserID, b.LeaveTypeID, b.Year, b.InitialBalance.String(), b.UsedDays.String(),
			b.PendingDays.String(), b.RemainingDays.String(), next.Version)
		if isUniqueViolation(err) {
			return leave.LeaveBalance{}, fmt.Errorf("balance %s created concurrently: %w", b.Key(), leave.ErrConcurrentModification)
		}
		if err != nil {
			return leave.LeaveBalance{}, fmt.Errorf("insert balance %s: %w", b.Key(), err)
		}
		return next, nil
	}

	res, err := x.exec(ctx, `
		UPDATE leave_balances
		SET initial_balance = ?, used_days = ?, pending_days = ?, remaining_days = ?, version = ?
		WHERE user_id = ? AND leave_type_id = ? AND year = ? AND version = ?`,
		b.InitialBalance.String(), b.UsedDays.String(), b.PendingDays.String(), b.RemainingDays.String(), next.Version,
		b.UserID, b.LeaveTypeID, b.Year, b.Version)
	if err != nil {
		return leave.LeaveBalance{}, fmt.Errorf("update balance %s: %w", b.Key(), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return leave.LeaveBalance{}, fmt.Errorf("update balance %s: %w", b.Key(), err)
	}
	if n == 0 {
		return leave.LeaveBalance{}, fmt.Errorf("balance %s version %d is stale: %w", b.Key(), b.Version, leave.ErrConcurrentModification)
	}
	return next, nil
}

func scanBalance(sc scanner) (leave.LeaveBalance, error) {
	var (
		b                                 leave.LeaveBalance
		initial, used, pending, remaining string
	)
	if err := sc.Scan(&b.UserID, &b.LeaveTypeID, &b.Year, &initial, &used, &pending, &remaining, &b.Version); err != nil {
		return leave.LeaveBalance{}, err
	}
	var err error
	for _, f := range []struct {
		dst *decimal.Decimal
		src string
	}{{&b.InitialBalance, initial}, {&b.UsedDays, used}, {&b.PendingDays, pending}, {&b.RemainingDays, remaining}} {
		if *f.dst, err = decimal.NewFromString(f.src); err != nil {
			return leave.LeaveBalance{}, fmt.Errorf("decode balance %s: %w", b.Key(), err)
		}
	}
	return b, nil
}

// =============================================================================
// RESERVATIONS
// =============================================================================

func (x *queries) GetReservation(ctx context.Context, requestID string) (leave.Reservation, error) {
	var (
		r                    leave.Reservation
		days, state, created string
		finalized            sql.NullString
	)
	err := x.queryRow(ctx, `
		SELECT id, request_id, user_id, leave_type_id, year, days, state, created_at, finalized_at
		FROM reservations WHERE request_id = ?`, requestID).
		Scan(&r.ID, &r.RequestID, &r.Key.UserID, &r.Key.LeaveTypeID, &r.Key.Year, &days, &state, &created, &finalized)
	if errors.Is(err, sql.ErrNoRows) {
		return leave.Reservation{}, fmt.Errorf("reservation for request %s: %w", requestID, leave.ErrNotFound)
	}
	if err != nil {
		return leave.Reservation{}, err
	}
	if r.Days, err = decimal.NewFromString(days); err != nil {
		return leave.Reservation{}, fmt.Errorf("decode reservation %s: %w", r.ID, err)
	}
	r.State = leave.ReservationState(state)
	if r.CreatedAt, err = parseTime(created); err != nil {
		return leave.Reservation{}, fmt.Errorf("decode reservation %s: %w", r.ID, err)
	}
	if r.FinalizedAt, err = parseNullTime(finalized); err != nil {
		return leave.Reservation{}, fmt.Errorf("decode reservation %s: %w", r.ID, err)
	}
	return r, nil
}

func (x *queries) SaveReservation(ctx context.Context, r leave.Reservation) error {
	_, err := x.exec(ctx, `
		INSERT INTO reservations (id, request_id, user_id, leave_type_id, year, days, state, created_at, finalized_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			state = excluded.state,
			finalized_at = excluded.finalized_at`,
		r.ID, r.RequestID, r.Key.UserID, r.Key.LeaveTypeID, r.Key.Year, r.Days.String(), string(r.State),
		formatTime(r.CreatedAt), nullTime(r.FinalizedAt),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("reservation for request %s: %w", r.RequestID, leave.ErrConcurrentModification)
	}
	if err != nil {
		return fmt.Errorf("save reservation %s: %w", r.ID, err)
	}
	return nil
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func (x *queries) AppendAudit(ctx context.Context, e leave.AuditEntry) error {
	var payload sql.NullString
	if len(e.Payload) > 0 {
		raw, err := json.Marshal(e.Payload)
		if err != nil {
			return fmt.Errorf("encode audit payload: %w", err)
		}
		payload = sql.NullString{String: string(raw), Valid: true}
	}
	_, err := x.exec(ctx, `INSERT INTO audit_log (id, request_id, actor_id, action, at, payload) VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.RequestID, e.ActorID, string(e.Action), formatTime(e.At), payload)
	if err != nil {
		return fmt.Errorf("append audit: %w", err)
	}
	return nil
}

func (x *queries) ListAudit(ctx context.Context, requestID string) ([]leave.AuditEntry, error) {
	rows, err := x.query(ctx, `SELECT id, request_id, actor_id, action, at, payload
		FROM audit_log WHERE request_id = ? ORDER BY at, id`, requestID)
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	defer rows.Close()

	var out []leave.AuditEntry
	for rows.Next() {
		var (
			e          leave.AuditEntry
			action, at string
			payload    sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.RequestID, &e.ActorID, &action, &at, &payload); err != nil {
			return nil, err
		}
		e.Action = leave.AuditAction(action)
		if e.At, err = parseTime(at); err != nil {
			return nil, fmt.Errorf("decode audit entry %s: %w", e.ID, err)
		}
		if payload.Valid {
			if err := json.Unmarshal([]byte(payload.String), &e.Payload); err != nil {
				return nil, fmt.Errorf("decode audit payload %s: %w", e.ID, err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

type scanner interface {
	Scan(dest ...any) error
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
