/*
validator.go - Admission rules for a candidate leave request

PURPOSE:
  Decides whether a sized request may enter the ledger. Every rule runs and
  every violation is reported in one *leave.ValidationError, so the caller
  sees the complete picture at once. Nothing here performs I/O; the
  orchestrator loads the inputs inside its transaction.

RULES:
  Overlap:              the user's pending/approved requests intersecting the range
  BlockedPeriod:        the team's blocked periods intersecting the range
  Understaffed:         on some working date, absent colleagues + 1 > limit, where
                        limit = min(team size - min_staff_required, max_absent_same_day)
  AdvanceLimitExceeded: start date beyond company max_days_in_advance from today
  InvalidRange:         half-day on a non-working date; range without a working date
  InactiveLeaveType, JustificationRequired: leave type flags

KNOWN LIMITATION:
  Staffing counts are read at submission. Two colleagues submitting for the
  same day concurrently can both pass; the ledger lock is per user, not per
  team. Decisions do not re-check staffing.

SEE ALSO:
  - absences.go: the same staffing limit applied to a calendar view
  - timeoff/request.go: builds Input
*/
package staffing

import (
	"sort"
	"strings"

	"github.com/warp/leave-engine/calendar"
	"github.com/warp/leave-engine/leave"
)

// Input is everything Validate looks at.
type Input struct {
	Candidate leave.LeaveRequest
	LeaveType leave.LeaveType

	// Existing holds the requester's own requests around the candidate range.
	Existing []leave.LeaveRequest

	// Team is nil when the requester belongs to no team; staffing rules are
	// then skipped.
	Team *leave.Team
	// TeamSize counts the team's active members, requester included.
	TeamSize int
	// TeamOnLeave holds colleagues' requests around the candidate range.
	TeamOnLeave []leave.LeaveRequest

	Settings leave.CompanySettings
	WorkWeek calendar.WorkWeek
	Holidays calendar.HolidaySet
	Today    leave.Date
}

// Validate returns nil or a *leave.ValidationError listing every violation.
func Validate(in Input) error {
	verr := &leave.ValidationError{}
	c := in.Candidate

	checkLeaveType(verr, in)

	working := calendar.ChargeableDates(c.StartDate, c.EndDate, in.WorkWeek, in.Holidays)
	switch {
	case c.IsHalfDay && len(working) == 0:
		verr.Add(leave.ErrInvalidRange, "half-day requested on non-working day %s", c.StartDate)
	case len(working) == 0:
		verr.Add(leave.ErrInvalidRange, "range %s contains no working day", c.Period())
	}

	checkOverlap(verr, c, in.Existing)
	checkBlockedPeriods(verr, c, in.Team)
	checkStaffing(verr, c, working, in)
	checkAdvance(verr, c, in.Settings, in.Today)

	return verr.OrNil()
}

func checkLeaveType(verr *leave.ValidationError, in Input) {
	if !in.LeaveType.IsActive {
		verr.Add(leave.ErrInactiveLeaveType, "leave type %s is not active", in.LeaveType.Code)
	}
	if in.LeaveType.RequiresJustification && strings.TrimSpace(in.Candidate.Reason) == "" {
		verr.Add(leave.ErrJustificationRequired, "leave type %s requires a justification", in.LeaveType.Code)
	}
}

// checkOverlap treats a morning and an afternoon half-day on the same date
// as disjoint; any other intersection overlaps.
func checkOverlap(verr *leave.ValidationError, c leave.LeaveRequest, existing []leave.LeaveRequest) {
	for _, r := range existing {
		if r.ID == c.ID || r.UserID != c.UserID || !r.Status.Blocking() {
			continue
		}
		if !r.Period().Overlaps(c.Period()) {
			continue
		}
		if c.IsHalfDay && r.IsHalfDay && c.HalfDayPeriod != r.HalfDayPeriod {
			continue
		}
		verr.Add(leave.ErrOverlap, "overlaps request %s (%s, %s)", r.ID, r.Period(), r.Status)
	}
}

func checkBlockedPeriods(verr *leave.ValidationError, c leave.LeaveRequest, team *leave.Team) {
	if team == nil || team.Rule == nil {
		return
	}
	for _, bp := range team.Rule.BlockedPeriods {
		if bp.Period().Overlaps(c.Period()) {
			verr.Add(leave.ErrBlockedPeriod, "falls in blocked period %s: %s", bp.Period(), bp.Reason)
		}
	}
}

func checkStaffing(verr *leave.ValidationError, c leave.LeaveRequest, working []leave.Date, in Input) {
	if in.Team == nil || len(working) == 0 {
		return
	}
	limit := AbsenceLimit(*in.Team, in.TeamSize)

	var short []string
	for _, day := range working {
		absent := len(absentOn(day, in.TeamOnLeave, c.UserID))
		if absent+1 > limit {
			short = append(short, day.String())
		}
	}
	if len(short) > 0 {
		verr.Add(leave.ErrUnderstaffed, "team %s would be understaffed on %s", in.Team.Name, strings.Join(short, ", "))
	}
}

func checkAdvance(verr *leave.ValidationError, c leave.LeaveRequest, s leave.CompanySettings, today leave.Date) {
	if s.MaxDaysInAdvance <= 0 || today.IsZero() {
		return
	}
	if ahead := leave.DaysBetween(today, c.StartDate); ahead > s.MaxDaysInAdvance {
		verr.Add(leave.ErrAdvanceLimitExceeded, "starts %d days ahead, limit is %d", ahead, s.MaxDaysInAdvance)
	}
}

// =============================================================================
// STAFFING LIMIT
// =============================================================================

// AbsenceLimit is how many members may be absent on the same day: the
// stricter of team size minus the minimum staff and the team rule's cap.
func AbsenceLimit(team leave.Team, teamSize int) int {
	limit := teamSize
	if team.MinStaffRequired > 0 {
		limit = teamSize - team.MinStaffRequired
	}
	if team.Rule != nil && team.Rule.MaxAbsentSameDay > 0 && team.Rule.MaxAbsentSameDay < limit {
		limit = team.Rule.MaxAbsentSameDay
	}
	if limit < 0 {
		limit = 0
	}
	return limit
}

// absentOn returns the distinct users, other than exclude, whose pending or
// approved request covers day.
func absentOn(day leave.Date, requests []leave.LeaveRequest, exclude string) []string {
	seen := make(map[string]bool)
	for _, r := range requests {
		if r.UserID == exclude || !r.Status.Blocking() || !r.Period().Contains(day) {
			continue
		}
		seen[r.UserID] = true
	}
	users := make([]string, 0, len(seen))
	for u := range seen {
		users = append(users, u)
	}
	sort.Strings(users)
	return users
}
