package staffing

import (
	"github.com/warp/leave-engine/calendar"
	"github.com/warp/leave-engine/leave"
)

// TeamAbsence is one working date of a team calendar.
type TeamAbsence struct {
	Date           leave.Date `json:"date"`
	Users          []string   `json:"users"`
	IsUnderstaffed bool       `json:"is_understaffed"`
}

// TeamAbsences lists, for each working date of [from, to], who in the team is
// on pending or approved leave and whether that exceeds the absence limit.
func TeamAbsences(team leave.Team, teamSize int, requests []leave.LeaveRequest, from, to leave.Date,
	ww calendar.WorkWeek, hs calendar.HolidaySet) []TeamAbsence {

	limit := AbsenceLimit(team, teamSize)
	var out []TeamAbsence
	for _, day := range calendar.ChargeableDates(from, to, ww, hs) {
		users := absentOn(day, requests, "")
		out = append(out, TeamAbsence{
			Date:           day,
			Users:          users,
			IsUnderstaffed: len(users) > limit,
		})
	}
	return out
}
