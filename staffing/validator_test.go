package staffing_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/calendar"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/staffing"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var d = leave.MustParseDate

func cp() leave.LeaveType {
	return leave.LeaveType{ID: "cp", Code: "CP", DefaultDaysPerYear: decimal.NewFromInt(25), RequiresApproval: true, IsActive: true}
}

func request(id, user, start, end string, status leave.RequestStatus) leave.LeaveRequest {
	return leave.LeaveRequest{ID: id, UserID: user, LeaveTypeID: "cp", StartDate: d(start), EndDate: d(end), Status: status}
}

func baseInput(candidate leave.LeaveRequest) staffing.Input {
	return staffing.Input{
		Candidate: candidate,
		LeaveType: cp(),
		Settings:  leave.DefaultCompanySettings("acme"),
		WorkWeek:  calendar.MondayToFriday(),
		Holidays:  calendar.NewHolidaySet(calendar.FrenchPublicHolidays("acme", 2025), 2025, 2025),
		Today:     d("2025-03-01"),
	}
}

func requireKinds(t *testing.T, err error, want ...leave.Kind) {
	t.Helper()
	var verr *leave.ValidationError
	require.True(t, errors.As(err, &verr), "expected a validation error, got %v", err)
	assert.ElementsMatch(t, want, verr.Kinds())
}

// =============================================================================
// HAPPY PATH
// =============================================================================

func TestValidate_CleanRequest(t *testing.T) {
	in := baseInput(request("new", "alice", "2025-03-10", "2025-03-14", leave.StatusDraft))
	assert.NoError(t, staffing.Validate(in))
}

// =============================================================================
// OVERLAP
// =============================================================================

func TestValidate_Overlap(t *testing.T) {
	tests := []struct {
		name     string
		existing leave.LeaveRequest
		overlaps bool
	}{
		{"pending intersecting", request("r1", "alice", "2025-03-12", "2025-03-20", leave.StatusPending), true},
		{"approved touching last day", request("r1", "alice", "2025-03-14", "2025-03-14", leave.StatusApproved), true},
		{"rejected ignored", request("r1", "alice", "2025-03-12", "2025-03-12", leave.StatusRejected), false},
		{"cancelled ignored", request("r1", "alice", "2025-03-12", "2025-03-12", leave.StatusCancelled), false},
		{"adjacent", request("r1", "alice", "2025-03-17", "2025-03-18", leave.StatusApproved), false},
		{"other user", request("r1", "bob", "2025-03-12", "2025-03-12", leave.StatusApproved), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := baseInput(request("new", "alice", "2025-03-10", "2025-03-14", leave.StatusDraft))
			in.Existing = []leave.LeaveRequest{tt.existing}

			err := staffing.Validate(in)

			if tt.overlaps {
				assert.ErrorIs(t, err, leave.ErrOverlap)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidate_ComplementaryHalfDaysDoNotOverlap(t *testing.T) {
	// GIVEN: An approved morning half-day on Monday
	// WHEN: Requesting the afternoon of the same Monday, then the morning again
	// THEN: The afternoon passes and the second morning overlaps

	morning := request("r1", "alice", "2025-03-10", "2025-03-10", leave.StatusApproved)
	morning.IsHalfDay, morning.HalfDayPeriod = true, leave.HalfDayMorning

	afternoon := request("new", "alice", "2025-03-10", "2025-03-10", leave.StatusDraft)
	afternoon.IsHalfDay, afternoon.HalfDayPeriod = true, leave.HalfDayAfternoon
	in := baseInput(afternoon)
	in.Existing = []leave.LeaveRequest{morning}
	assert.NoError(t, staffing.Validate(in))

	again := afternoon
	again.HalfDayPeriod = leave.HalfDayMorning
	in.Candidate = again
	assert.ErrorIs(t, staffing.Validate(in), leave.ErrOverlap)
}

// =============================================================================
// TEAM RULES
// =============================================================================

func TestValidate_BlockedPeriod(t *testing.T) {
	in := baseInput(request("new", "alice", "2025-03-10", "2025-03-14", leave.StatusDraft))
	in.Team = &leave.Team{ID: "t1", Name: "Support", Rule: &leave.TeamRule{
		BlockedPeriods: []leave.BlockedPeriod{{Start: d("2025-03-14"), End: d("2025-03-31"), Reason: "quarter close"}},
	}}
	in.TeamSize = 10

	err := staffing.Validate(in)

	require.ErrorIs(t, err, leave.ErrBlockedPeriod)
	assert.Contains(t, err.Error(), "quarter close")
}

func TestValidate_Understaffed_MinStaffReached(t *testing.T) {
	// GIVEN: Team of 5, min_staff_required 3, two colleagues approved on 2025-03-10
	// WHEN: A third member requests 2025-03-10
	// THEN: Understaffed

	in := baseInput(request("new", "carol", "2025-03-10", "2025-03-10", leave.StatusDraft))
	in.Team = &leave.Team{ID: "t1", Name: "Support", MinStaffRequired: 3}
	in.TeamSize = 5
	in.TeamOnLeave = []leave.LeaveRequest{
		request("r1", "alice", "2025-03-10", "2025-03-10", leave.StatusApproved),
		request("r2", "bob", "2025-03-07", "2025-03-11", leave.StatusPending),
	}

	err := staffing.Validate(in)

	requireKinds(t, err, leave.KindUnderstaffed)
	assert.Contains(t, err.Error(), "2025-03-10")
}

func TestValidate_Understaffed_IgnoresNonBlockingAndNonWorkingDays(t *testing.T) {
	// GIVEN: Team of 5, min 3, one approved and one rejected colleague on Monday,
	//        two colleagues away on Saturday
	// WHEN: Requesting Saturday to Monday
	// THEN: Saturday is not checked and Monday has room for one more

	in := baseInput(request("new", "carol", "2025-03-08", "2025-03-10", leave.StatusDraft))
	in.Team = &leave.Team{ID: "t1", Name: "Support", MinStaffRequired: 3}
	in.TeamSize = 5
	in.TeamOnLeave = []leave.LeaveRequest{
		request("r1", "alice", "2025-03-10", "2025-03-10", leave.StatusApproved),
		request("r2", "bob", "2025-03-10", "2025-03-10", leave.StatusRejected),
		request("r3", "dan", "2025-03-08", "2025-03-08", leave.StatusApproved),
		request("r4", "erin", "2025-03-08", "2025-03-08", leave.StatusApproved),
	}

	assert.NoError(t, staffing.Validate(in))
}

func TestValidate_MaxAbsentSameDay(t *testing.T) {
	in := baseInput(request("new", "carol", "2025-03-10", "2025-03-10", leave.StatusDraft))
	in.Team = &leave.Team{ID: "t1", Name: "Support", Rule: &leave.TeamRule{MaxAbsentSameDay: 1}}
	in.TeamSize = 8
	in.TeamOnLeave = []leave.LeaveRequest{request("r1", "alice", "2025-03-10", "2025-03-10", leave.StatusApproved)}

	assert.ErrorIs(t, staffing.Validate(in), leave.ErrUnderstaffed)
}

func TestAbsenceLimit(t *testing.T) {
	tests := []struct {
		name string
		team leave.Team
		size int
		want int
	}{
		{"no rule", leave.Team{}, 4, 4},
		{"min staff", leave.Team{MinStaffRequired: 3}, 5, 2},
		{"cap stricter", leave.Team{MinStaffRequired: 1, Rule: &leave.TeamRule{MaxAbsentSameDay: 2}}, 10, 2},
		{"min staff stricter", leave.Team{MinStaffRequired: 9, Rule: &leave.TeamRule{MaxAbsentSameDay: 2}}, 10, 1},
		{"team smaller than minimum", leave.Team{MinStaffRequired: 6}, 5, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, staffing.AbsenceLimit(tt.team, tt.size))
		})
	}
}

// =============================================================================
// CALENDAR AND COMPANY RULES
// =============================================================================

func TestValidate_HalfDayOnWeekend_InvalidRange(t *testing.T) {
	c := request("new", "alice", "2025-03-08", "2025-03-08", leave.StatusDraft)
	c.IsHalfDay, c.HalfDayPeriod = true, leave.HalfDayMorning

	requireKinds(t, staffing.Validate(baseInput(c)), leave.KindInvalidRange)
}

func TestValidate_OnlyHolidays_InvalidRange(t *testing.T) {
	// 2025-05-01 (Thursday) is Labour Day
	in := baseInput(request("new", "alice", "2025-05-01", "2025-05-01", leave.StatusDraft))

	assert.ErrorIs(t, staffing.Validate(in), leave.ErrInvalidRange)
}

func TestValidate_AdvanceLimit(t *testing.T) {
	in := baseInput(request("new", "alice", "2025-06-02", "2025-06-03", leave.StatusDraft))
	in.Settings.MaxDaysInAdvance = 30

	assert.ErrorIs(t, staffing.Validate(in), leave.ErrAdvanceLimitExceeded)

	in.Settings.MaxDaysInAdvance = 0
	assert.NoError(t, staffing.Validate(in), "zero disables the horizon")
}

func TestValidate_LeaveTypeFlags(t *testing.T) {
	in := baseInput(request("new", "alice", "2025-03-10", "2025-03-10", leave.StatusDraft))
	in.LeaveType.IsActive = false
	in.LeaveType.RequiresJustification = true
	in.Candidate.Reason = "   "

	requireKinds(t, staffing.Validate(in), leave.KindInactiveLeaveType, leave.KindJustificationRequired)
}

func TestValidate_ReportsEveryViolation(t *testing.T) {
	// GIVEN: A request that overlaps, hits a blocked period and exceeds the horizon
	// WHEN: Validating
	// THEN: All three kinds come back in one error

	in := baseInput(request("new", "alice", "2025-12-22", "2025-12-24", leave.StatusDraft))
	in.Settings.MaxDaysInAdvance = 60
	in.Existing = []leave.LeaveRequest{request("r1", "alice", "2025-12-24", "2025-12-24", leave.StatusPending)}
	in.Team = &leave.Team{ID: "t1", Name: "Support", Rule: &leave.TeamRule{
		BlockedPeriods: []leave.BlockedPeriod{{Start: d("2025-12-15"), End: d("2025-12-31"), Reason: "freeze"}},
	}}
	in.TeamSize = 10

	err := staffing.Validate(in)

	requireKinds(t, err, leave.KindOverlap, leave.KindBlockedPeriod, leave.KindAdvanceLimitExceeded)
	assert.Equal(t, leave.KindValidation, leave.KindOf(err))
}

// =============================================================================
// TEAM ABSENCES
// =============================================================================

func TestTeamAbsences(t *testing.T) {
	team := leave.Team{ID: "t1", MinStaffRequired: 2}
	requests := []leave.LeaveRequest{
		request("r1", "alice", "2025-03-10", "2025-03-11", leave.StatusApproved),
		request("r2", "bob", "2025-03-11", "2025-03-11", leave.StatusPending),
		request("r3", "carol", "2025-03-11", "2025-03-11", leave.StatusCancelled),
	}

	got := staffing.TeamAbsences(team, 3, requests, d("2025-03-08"), d("2025-03-12"),
		calendar.MondayToFriday(), calendar.HolidaySet{})

	require.Len(t, got, 3, "the weekend is skipped")
	assert.Equal(t, []string{"alice"}, got[0].Users)
	assert.False(t, got[0].IsUnderstaffed)
	assert.Equal(t, []string{"alice", "bob"}, got[1].Users)
	assert.True(t, got[1].IsUnderstaffed)
	assert.Empty(t, got[2].Users)
}
