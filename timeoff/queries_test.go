package timeoff_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/leave/store"
)

func TestGetRequest_Visibility(t *testing.T) {
	f := newFixture(t, func(dir *store.Directory) {
		dir.PutUser(leave.User{ID: "outsider", CompanyID: "globex", Role: leave.RoleHR, IsActive: true})
	})
	detail := f.submit(t, submitIn("alice", "cp", "2025-03-13", "2025-03-13"))
	ctx := context.Background()

	for _, viewer := range []string{"alice", "manny", "harriet"} {
		got, err := f.svc.GetRequest(ctx, viewer, detail.ID)
		require.NoError(t, err, viewer)
		assert.Equal(t, detail.ID, got.ID)
		assert.Len(t, got.Approvals, 1)
	}
	for _, viewer := range []string{"bob", "outsider"} {
		_, err := f.svc.GetRequest(ctx, viewer, detail.ID)
		assert.ErrorIs(t, err, leave.ErrNotFound, viewer)
	}
}

func TestListRequests_FiltersByStatus(t *testing.T) {
	f := newFixture(t)
	first := f.submit(t, submitIn("alice", "cp", "2025-03-13", "2025-03-13"))
	f.submit(t, submitIn("alice", "cp", "2025-03-20", "2025-03-20"))
	f.submit(t, submitIn("bob", "cp", "2025-03-13", "2025-03-13"))
	_, err := f.decide(first.ID, "manny", leave.DecisionApprove)
	require.NoError(t, err)

	all, err := f.svc.ListRequests(context.Background(), "alice")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	approved, err := f.svc.ListRequests(context.Background(), "alice", leave.StatusApproved)
	require.NoError(t, err)
	require.Len(t, approved, 1)
	assert.Equal(t, first.ID, approved[0].ID)
}

func TestPendingApprovals(t *testing.T) {
	// GIVEN: Manager then HR approval, two pending requests, one already past
	//        the manager level
	// WHEN: Listing pending approvals for manny, harriet and bob
	// THEN: Each sees exactly the requests whose current level is theirs

	f := newFixture(t, withSettings(func(s *leave.CompanySettings) { s.RequireHRApproval = true }))
	atManager := f.submit(t, submitIn("alice", "cp", "2025-03-13", "2025-03-13"))
	atHR := f.submit(t, submitIn("bob", "cp", "2025-03-14", "2025-03-14"))
	_, err := f.decide(atHR.ID, "manny", leave.DecisionApprove)
	require.NoError(t, err)
	ctx := context.Background()

	forManager, err := f.svc.PendingApprovals(ctx, "manny")
	require.NoError(t, err)
	require.Len(t, forManager, 1)
	assert.Equal(t, atManager.ID, forManager[0].ID)

	forHR, err := f.svc.PendingApprovals(ctx, "harriet")
	require.NoError(t, err)
	require.Len(t, forHR, 1)
	assert.Equal(t, atHR.ID, forHR[0].ID)

	forEmployee, err := f.svc.PendingApprovals(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, forEmployee)
}

func TestBalances_ProjectsUnmaterializedRows(t *testing.T) {
	f := newFixture(t, func(dir *store.Directory) {
		retired := leaveType("old", 5, true)
		retired.IsActive = false
		dir.PutLeaveType(retired)
	})
	f.submit(t, submitIn("alice", "cp", "2025-03-13", "2025-03-14"))

	summary, err := f.svc.Balances(context.Background(), "alice", 2025)

	require.NoError(t, err)
	assert.Equal(t, 2025, summary.Year)
	balances := summary.Balances
	require.Len(t, balances, 2, "inactive types are skipped")
	assert.Equal(t, "cp", balances[0].LeaveTypeID)
	assert.True(t, balances[0].RemainingDays.Equal(decimal.NewFromInt(8)))
	assert.Equal(t, "rtt", balances[1].LeaveTypeID)
	assert.True(t, balances[1].RemainingDays.Equal(decimal.NewFromInt(2)))
	assert.Zero(t, balances[1].Version, "projected rows are not stored")

	_, err = f.store.GetBalance(context.Background(), leave.BalanceKey{UserID: "alice", LeaveTypeID: "rtt", Year: 2025})
	assert.ErrorIs(t, err, leave.ErrNotFound)
}

func TestBalances_DefaultsToCurrentFiscalYear(t *testing.T) {
	// GIVEN: A fiscal year starting in June and today 2025-03-03
	// WHEN: Asking for balances without a year
	// THEN: The fiscal year 2024 (June 2024 to May 2025) is used, not the calendar year

	f := newFixture(t, withSettings(func(s *leave.CompanySettings) { s.FiscalYearStartMonth = time.June }))
	f.submit(t, submitIn("alice", "cp", "2025-03-13", "2025-03-14"))

	summary, err := f.svc.Balances(context.Background(), "alice", 0)

	require.NoError(t, err)
	assert.Equal(t, "alice", summary.UserID)
	assert.Equal(t, 2024, summary.Year)
	require.Len(t, summary.Balances, 2)
	assert.Equal(t, 2024, summary.Balances[0].Year)
	assert.True(t, summary.Balances[0].PendingDays.Equal(decimal.NewFromInt(2)))
}

func TestTeamAbsences(t *testing.T) {
	f := newFixture(t)
	f.submit(t, submitIn("alice", "cp", "2025-03-13", "2025-03-14"))
	f.submit(t, submitIn("bob", "cp", "2025-03-14", "2025-03-14"))

	days, err := f.svc.TeamAbsences(context.Background(), "manny", "t1", d("2025-03-13"), d("2025-03-17"))

	require.NoError(t, err)
	require.Len(t, days, 3, "Thursday, Friday and Monday")
	assert.Equal(t, []string{"alice"}, days[0].Users)
	assert.Equal(t, []string{"alice", "bob"}, days[1].Users)
	assert.Empty(t, days[2].Users)
}

func TestTeamAbsences_Visibility(t *testing.T) {
	// GIVEN: Team t1 and viewers inside and outside it
	// WHEN: Each reads t1's calendar
	// THEN: Members, its manager and HR see it; other teams and companies get NotFound

	f := newFixture(t, func(dir *store.Directory) {
		dir.PutTeam(leave.Team{ID: "t2", CompanyID: "acme", Name: "Ops", ManagerID: "olga"})
		dir.PutUser(user("olga", leave.RoleManager, "t2"))
		dir.PutUser(user("otto", leave.RoleEmployee, "t2"))
		dir.PutUser(leave.User{ID: "outsider", CompanyID: "globex", Role: leave.RoleHR, IsActive: true})
	})
	f.submit(t, submitIn("alice", "cp", "2025-03-13", "2025-03-13"))
	ctx := context.Background()

	for _, viewer := range []string{"alice", "bob", "manny", "harriet"} {
		days, err := f.svc.TeamAbsences(ctx, viewer, "t1", d("2025-03-13"), d("2025-03-13"))
		require.NoError(t, err, viewer)
		require.Len(t, days, 1)
		assert.Equal(t, []string{"alice"}, days[0].Users)
	}
	for _, viewer := range []string{"otto", "olga", "outsider"} {
		_, err := f.svc.TeamAbsences(ctx, viewer, "t1", d("2025-03-13"), d("2025-03-13"))
		assert.ErrorIs(t, err, leave.ErrNotFound, viewer)
	}
}

func TestTeamAbsences_InvalidWindow(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.TeamAbsences(context.Background(), "manny", "t1", d("2025-03-17"), d("2025-03-13"))
	assert.ErrorIs(t, err, leave.ErrInvalidRange)

	_, err = f.svc.TeamAbsences(context.Background(), "manny", "t1", d("2025-01-01"), d("2026-06-01"))
	assert.ErrorIs(t, err, leave.ErrInvalidRange)
}
