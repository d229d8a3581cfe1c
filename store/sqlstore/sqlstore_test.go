package sqlstore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/store/sqlstore"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var d = leave.MustParseDate

func openMemory(t *testing.T) *sqlstore.Store {
	t.Helper()
	s, err := sqlstore.Open(context.Background(), sqlstore.DriverSQLite, ":memory:", sqlstore.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRequest(id, userID string, start, end string, status leave.RequestStatus) leave.LeaveRequest {
	at := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	return leave.LeaveRequest{
		ID:          id,
		UserID:      userID,
		CompanyID:   "acme",
		LeaveTypeID: "cp",
		StartDate:   d(start),
		EndDate:     d(end),
		DaysCount:   decimal.RequireFromString("2.5"),
		Status:      status,
		FiscalYear:  2025,
		CreatedAt:   at,
		UpdatedAt:   at,
	}
}

// =============================================================================
// REQUESTS AND APPROVALS
// =============================================================================

func TestRequests_SaveGetAndUpdate(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	r := sampleRequest("r1", "alice", "2025-03-10", "2025-03-12", leave.StatusPending)
	r.IsHalfDay = true
	r.HalfDayPeriod = leave.HalfDayAfternoon
	r.Reason = "family"
	require.NoError(t, s.SaveRequest(ctx, r))

	got, err := s.GetRequest(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.UserID)
	assert.True(t, got.StartDate.Equal(d("2025-03-10")))
	assert.True(t, got.DaysCount.Equal(decimal.RequireFromString("2.5")))
	assert.True(t, got.IsHalfDay)
	assert.Equal(t, leave.HalfDayAfternoon, got.HalfDayPeriod)
	assert.Nil(t, got.CancelledAt)

	cancelledAt := r.CreatedAt.Add(time.Hour)
	r.Status = leave.StatusCancelled
	r.CancelledAt = &cancelledAt
	r.UpdatedAt = cancelledAt
	require.NoError(t, s.SaveRequest(ctx, r))

	got, err = s.GetRequest(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, leave.StatusCancelled, got.Status)
	require.NotNil(t, got.CancelledAt)
	assert.True(t, got.CancelledAt.Equal(cancelledAt))
}

func TestRequests_GetUnknown_NotFound(t *testing.T) {
	s := openMemory(t)

	_, err := s.GetRequest(context.Background(), "nope")

	assert.ErrorIs(t, err, leave.ErrNotFound)
}

func TestListRequests_Filters(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()
	require.NoError(t, s.SaveRequest(ctx, sampleRequest("r1", "alice", "2025-03-10", "2025-03-12", leave.StatusPending)))
	require.NoError(t, s.SaveRequest(ctx, sampleRequest("r2", "alice", "2025-04-01", "2025-04-02", leave.StatusApproved)))
	require.NoError(t, s.SaveRequest(ctx, sampleRequest("r3", "bob", "2025-03-12", "2025-03-14", leave.StatusRejected)))

	tests := []struct {
		name   string
		filter leave.RequestFilter
		want   []string
	}{
		{"no filter", leave.RequestFilter{}, []string{"r1", "r3", "r2"}},
		{"by user", leave.RequestFilter{UserIDs: []string{"bob"}}, []string{"r3"}},
		{"blocking statuses", leave.RequestFilter{Statuses: []leave.RequestStatus{leave.StatusPending, leave.StatusApproved}}, []string{"r1", "r2"}},
		{"overlapping window", leave.RequestFilter{From: d("2025-03-12"), To: d("2025-03-31")}, []string{"r1", "r3"}},
		{"combined", leave.RequestFilter{CompanyID: "acme", UserIDs: []string{"alice", "bob"},
			Statuses: []leave.RequestStatus{leave.StatusPending}, From: d("2025-03-01"), To: d("2025-03-31")}, []string{"r1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListRequests(ctx, tt.filter)
			require.NoError(t, err)
			var ids []string
			for _, r := range got {
				ids = append(ids, r.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestApprovals_OrderedBySequence(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()
	decided := time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveApproval(ctx, leave.RequestApproval{ID: "a2", RequestID: "r1", Level: leave.LevelHR, Sequence: 2, Status: leave.ApprovalPending}))
	require.NoError(t, s.SaveApproval(ctx, leave.RequestApproval{ID: "a1", RequestID: "r1", Level: leave.LevelManager, Sequence: 1, ApproverID: "manny", Status: leave.ApprovalPending}))
	require.NoError(t, s.SaveApproval(ctx, leave.RequestApproval{ID: "a1", RequestID: "r1", Level: leave.LevelManager, Sequence: 1, ApproverID: "manny",
		Status: leave.ApprovalApproved, Comment: "ok", DecidedAt: &decided}))

	got, err := s.ListApprovals(ctx, "r1")

	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, leave.LevelManager, got[0].Level)
	assert.Equal(t, leave.ApprovalApproved, got[0].Status)
	assert.Equal(t, "ok", got[0].Comment)
	require.NotNil(t, got[0].DecidedAt)
	assert.Equal(t, leave.LevelHR, got[1].Level)
	assert.Nil(t, got[1].DecidedAt)
}

// =============================================================================
// BALANCES - Check-and-set
// =============================================================================

func TestSaveBalance_VersionCheckAndSet(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()
	key := leave.BalanceKey{UserID: "alice", LeaveTypeID: "cp", Year: 2025}

	// GIVEN: A new row stored at version 1
	created, err := s.SaveBalance(ctx, leave.NewLeaveBalance(key, decimal.NewFromInt(25)))
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.Version)

	// WHEN: Inserting it again as new
	_, err = s.SaveBalance(ctx, leave.NewLeaveBalance(key, decimal.NewFromInt(25)))
	// THEN: The second creator loses
	assert.ErrorIs(t, err, leave.ErrConcurrentModification)

	// WHEN: Updating from version 1, then again from the stale version 1
	created.PendingDays = decimal.NewFromInt(3)
	created.RemainingDays = decimal.NewFromInt(22)
	updated, err := s.SaveBalance(ctx, created)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)

	_, err = s.SaveBalance(ctx, created)
	// THEN: The stale writer loses and the stored row is unchanged
	assert.ErrorIs(t, err, leave.ErrConcurrentModification)

	got, err := s.GetBalance(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
	assert.True(t, got.RemainingDays.Equal(decimal.NewFromInt(22)))
	assert.True(t, got.Consistent())
}

func TestListBalances_ByUserAndYear(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()
	for _, key := range []leave.BalanceKey{
		{UserID: "alice", LeaveTypeID: "rtt", Year: 2025},
		{UserID: "alice", LeaveTypeID: "cp", Year: 2025},
		{UserID: "alice", LeaveTypeID: "cp", Year: 2024},
		{UserID: "bob", LeaveTypeID: "cp", Year: 2025},
	} {
		_, err := s.SaveBalance(ctx, leave.NewLeaveBalance(key, decimal.NewFromInt(10)))
		require.NoError(t, err)
	}

	got, err := s.ListBalances(ctx, "alice", 2025)

	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "cp", got[0].LeaveTypeID)
	assert.Equal(t, "rtt", got[1].LeaveTypeID)

	_, err = s.GetBalance(ctx, leave.BalanceKey{UserID: "carol", LeaveTypeID: "cp", Year: 2025})
	assert.ErrorIs(t, err, leave.ErrNotFound)
}

// =============================================================================
// RESERVATIONS AND AUDIT
// =============================================================================

func TestReservations_SaveAndFinalize(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()
	at := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	res := leave.Reservation{
		ID:        "res1",
		RequestID: "r1",
		Key:       leave.BalanceKey{UserID: "alice", LeaveTypeID: "cp", Year: 2025},
		Days:      decimal.RequireFromString("0.5"),
		State:     leave.ReservationHeld,
		CreatedAt: at,
	}
	require.NoError(t, s.SaveReservation(ctx, res))

	finalized := at.Add(time.Hour)
	res.State = leave.ReservationCommitted
	res.FinalizedAt = &finalized
	require.NoError(t, s.SaveReservation(ctx, res))

	got, err := s.GetReservation(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, leave.ReservationCommitted, got.State)
	assert.Equal(t, res.Key, got.Key)
	assert.True(t, got.Days.Equal(decimal.RequireFromString("0.5")))
	require.NotNil(t, got.FinalizedAt)

	// A second reservation for the same request is refused.
	dup := res
	dup.ID = "res2"
	assert.ErrorIs(t, s.SaveReservation(ctx, dup), leave.ErrConcurrentModification)

	_, err = s.GetReservation(ctx, "r2")
	assert.ErrorIs(t, err, leave.ErrNotFound)
}

func TestAudit_AppendAndList(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()
	at := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)

	require.NoError(t, s.AppendAudit(ctx, leave.AuditEntry{ID: "e1", RequestID: "r1", ActorID: "alice",
		Action: leave.AuditRequestSubmitted, At: at, Payload: map[string]any{"days": "2"}}))
	require.NoError(t, s.AppendAudit(ctx, leave.AuditEntry{ID: "e2", RequestID: "r1", ActorID: "manny",
		Action: leave.AuditRequestApproved, At: at.Add(time.Minute)}))

	got, err := s.ListAudit(ctx, "r1")

	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, leave.AuditRequestSubmitted, got[0].Action)
	assert.Equal(t, "2", got[0].Payload["days"])
	assert.Equal(t, leave.AuditRequestApproved, got[1].Action)
	assert.Nil(t, got[1].Payload)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestWithTx_RollsBackOnError(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx leave.Store) error {
		require.NoError(t, tx.SaveRequest(ctx, sampleRequest("r1", "alice", "2025-03-10", "2025-03-10", leave.StatusPending)))
		return boom
	})

	assert.ErrorIs(t, err, boom)
	_, err = s.GetRequest(ctx, "r1")
	assert.ErrorIs(t, err, leave.ErrNotFound)
}

func TestWithTx_CommitsOnSuccess(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	err := s.WithTx(ctx, func(tx leave.Store) error {
		if err := tx.SaveRequest(ctx, sampleRequest("r1", "alice", "2025-03-10", "2025-03-10", leave.StatusPending)); err != nil {
			return err
		}
		_, err := tx.GetRequest(ctx, "r1")
		return err
	})

	require.NoError(t, err)
	_, err = s.GetRequest(ctx, "r1")
	assert.NoError(t, err)
}

// =============================================================================
// DIRECTORY
// =============================================================================

func TestDirectory_RoundTrip(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	require.NoError(t, s.SaveUser(ctx, leave.User{ID: "alice", CompanyID: "acme", TeamID: "t1", Email: "alice@acme.test",
		Role: leave.RoleEmployee, HireDate: d("2020-01-06"), IsActive: true}))
	require.NoError(t, s.SaveUser(ctx, leave.User{ID: "gone", CompanyID: "acme", TeamID: "t1", Email: "gone@acme.test",
		Role: leave.RoleEmployee}))
	require.NoError(t, s.SaveUser(ctx, leave.User{ID: "manny", CompanyID: "acme", Email: "manny@acme.test", Role: leave.RoleManager, IsActive: true}))
	require.NoError(t, s.SaveTeam(ctx, leave.Team{ID: "t1", CompanyID: "acme", Name: "Support", ManagerID: "manny", MinStaffRequired: 1,
		Rule: &leave.TeamRule{MaxAbsentSameDay: 2, BlockedPeriods: []leave.BlockedPeriod{{Start: d("2025-12-15"), End: d("2025-12-31"), Reason: "closing"}}}}))

	u, err := s.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "t1", u.TeamID)
	assert.True(t, u.HireDate.Equal(d("2020-01-06")))

	m, err := s.GetUser(ctx, "manny")
	require.NoError(t, err)
	assert.Empty(t, m.TeamID)
	assert.True(t, m.HireDate.IsZero())

	members, err := s.ListTeamMembers(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, members, 1, "inactive users are not members")
	assert.Equal(t, "alice", members[0].ID)

	team, err := s.GetTeam(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "manny", team.ManagerID)
	require.NotNil(t, team.Rule)
	assert.Equal(t, 2, team.Rule.MaxAbsentSameDay)
	require.Len(t, team.Rule.BlockedPeriods, 1)
	assert.Equal(t, "closing", team.Rule.BlockedPeriods[0].Reason)

	// Saving again replaces the blocked periods.
	team.Rule = nil
	require.NoError(t, s.SaveTeam(ctx, team))
	team, err = s.GetTeam(ctx, "t1")
	require.NoError(t, err)
	assert.Nil(t, team.Rule)

	_, err = s.GetUser(ctx, "nobody")
	assert.ErrorIs(t, err, leave.ErrNotFound)
	_, err = s.GetTeam(ctx, "nobody")
	assert.ErrorIs(t, err, leave.ErrNotFound)
}

func TestSeedDefaults(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	require.NoError(t, s.SeedDefaults(ctx, "acme", 2025))
	require.NoError(t, s.SeedDefaults(ctx, "acme", 2025), "seeding twice is an upsert")

	settings, err := s.GetCompanySettings(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}, settings.DefaultWorkDays)
	assert.Equal(t, time.January, settings.FiscalYearStartMonth)
	assert.True(t, settings.RequireManagerApproval)

	types, err := s.ListLeaveTypes(ctx, "acme")
	require.NoError(t, err)
	assert.Len(t, types, len(leave.DefaultLeaveTypes("acme")))

	cp, err := s.GetLeaveType(ctx, "acme-CP")
	require.NoError(t, err)
	assert.True(t, cp.DefaultDaysPerYear.Equal(decimal.NewFromInt(25)))
	assert.True(t, cp.RequiresApproval)

	holidays, err := s.ListHolidays(ctx, "acme", 2025, 2025)
	require.NoError(t, err)
	assert.Len(t, holidays, 11)

	// Recurring entries are returned for any year, movable feasts only for theirs.
	later, err := s.ListHolidays(ctx, "acme", 2030, 2030)
	require.NoError(t, err)
	assert.Len(t, later, 8)

	_, err = s.GetCompanySettings(ctx, "globex")
	assert.ErrorIs(t, err, leave.ErrNotFound)
}
