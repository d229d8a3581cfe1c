package timeoff

import (
	"context"
	"fmt"
	"sort"

	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/ledger"
	"github.com/warp/leave-engine/staffing"
	"github.com/warp/leave-engine/workflow"
)

// maxCalendarSpan bounds the team absence window.
const maxCalendarSpan = 366

// =============================================================================
// REQUESTS
// =============================================================================

// GetRequest returns a request visible to viewerID: the requester, the
// manager of the requester's team, or HR and admins of the same company.
func (s *RequestService) GetRequest(ctx context.Context, viewerID, requestID string) (RequestDetail, error) {
	req, err := s.store.GetRequest(ctx, requestID)
	if err != nil {
		return RequestDetail{}, leave.Persistence("load request", err)
	}
	if req.UserID != viewerID {
		viewer, err := s.directory.GetUser(ctx, viewerID)
		if err != nil {
			return RequestDetail{}, leave.Persistence("load viewer", err)
		}
		requester, err := s.directory.GetUser(ctx, req.UserID)
		if err != nil {
			return RequestDetail{}, leave.Persistence("load requester", err)
		}
		team, _, err := s.teamOf(ctx, requester)
		if err != nil {
			return RequestDetail{}, err
		}
		if !canView(viewer, requester, team) {
			// Same answer as an unknown id.
			return RequestDetail{}, fmt.Errorf("request %s: %w", requestID, leave.ErrNotFound)
		}
	}

	approvals, err := s.store.ListApprovals(ctx, requestID)
	if err != nil {
		return RequestDetail{}, leave.Persistence("load approvals", err)
	}
	wf := workflow.Load(req, approvals)
	return RequestDetail{LeaveRequest: wf.LeaveRequest, Approvals: wf.Approvals}, nil
}

func canView(viewer, requester leave.User, team *leave.Team) bool {
	if viewer.CompanyID != requester.CompanyID {
		return false
	}
	switch viewer.Role {
	case leave.RoleHR, leave.RoleAdmin:
		return true
	case leave.RoleManager:
		return team != nil && team.ManagerID == viewer.ID
	case leave.RoleEmployee:
		return false
	default:
		return false
	}
}

func canViewTeam(viewer leave.User, team leave.Team) bool {
	if viewer.CompanyID != team.CompanyID {
		return false
	}
	switch viewer.Role {
	case leave.RoleHR, leave.RoleAdmin:
		return true
	default:
		return viewer.TeamID == team.ID || team.ManagerID == viewer.ID
	}
}

// ListRequests returns the user's own requests, optionally filtered by status.
func (s *RequestService) ListRequests(ctx context.Context, userID string, statuses ...leave.RequestStatus) ([]leave.LeaveRequest, error) {
	reqs, err := s.store.ListRequests(ctx, leave.RequestFilter{UserIDs: []string{userID}, Statuses: statuses})
	if err != nil {
		return nil, leave.Persistence("list requests", err)
	}
	return reqs, nil
}

// PendingApprovals lists the requests whose current level approverID may
// decide right now.
func (s *RequestService) PendingApprovals(ctx context.Context, approverID string) ([]RequestDetail, error) {
	actor, err := s.directory.GetUser(ctx, approverID)
	if err != nil {
		return nil, leave.Persistence("load approver", err)
	}
	if actor.Role == leave.RoleEmployee || !actor.IsActive {
		return []RequestDetail{}, nil
	}

	pending, err := s.store.ListRequests(ctx, leave.RequestFilter{
		CompanyID: actor.CompanyID,
		Statuses:  []leave.RequestStatus{leave.StatusPending},
	})
	if err != nil {
		return nil, leave.Persistence("list pending requests", err)
	}

	users := map[string]leave.User{}
	teams := map[string]*leave.Team{}
	out := []RequestDetail{}
	for _, req := range pending {
		requester, ok := users[req.UserID]
		if !ok {
			if requester, err = s.directory.GetUser(ctx, req.UserID); err != nil {
				return nil, leave.Persistence("load requester", err)
			}
			users[req.UserID] = requester
		}
		team, ok := teams[requester.TeamID]
		if !ok {
			if team, _, err = s.teamOf(ctx, requester); err != nil {
				return nil, err
			}
			teams[requester.TeamID] = team
		}

		approvals, err := s.store.ListApprovals(ctx, req.ID)
		if err != nil {
			return nil, leave.Persistence("load approvals", err)
		}
		wf := workflow.Load(req, approvals)
		if wf.CanDecide(actor, requester, team) {
			out = append(out, RequestDetail{LeaveRequest: wf.LeaveRequest, Approvals: wf.Approvals})
		}
	}
	return out, nil
}

// =============================================================================
// BALANCES
// =============================================================================

// BalanceSummary is a user's balance per active leave type for one fiscal
// year.
type BalanceSummary struct {
	UserID   string               `json:"user_id"`
	Year     int                  `json:"year"`
	Balances []leave.LeaveBalance `json:"balances"`
}

// Balances returns one row per active leave type of the user's company for
// the given fiscal year, or for the fiscal year containing today when year
// is 0. Rows not yet materialized are projected from the allotment policy
// without being written.
func (s *RequestService) Balances(ctx context.Context, userID string, year int) (BalanceSummary, error) {
	user, err := s.directory.GetUser(ctx, userID)
	if err != nil {
		return BalanceSummary{}, leave.Persistence("load user", err)
	}
	settings, err := s.directory.GetCompanySettings(ctx, user.CompanyID)
	if err != nil {
		return BalanceSummary{}, leave.Persistence("load company settings", err)
	}
	types, err := s.directory.ListLeaveTypes(ctx, user.CompanyID)
	if err != nil {
		return BalanceSummary{}, leave.Persistence("list leave types", err)
	}

	if year == 0 {
		year, _ = leave.FiscalYear(leave.DateOf(s.now().UTC()), settings.FiscalYearStartMonth)
	}
	period := leave.FiscalYearPeriod(year, settings.FiscalYearStartMonth)
	out := []leave.LeaveBalance{}
	for _, lt := range types {
		if !lt.IsActive {
			continue
		}
		key := leave.BalanceKey{UserID: user.ID, LeaveTypeID: lt.ID, Year: year}
		b, err := s.ledger.Balance(ctx, s.store, key, ledger.Allotment{LeaveType: lt, User: user, Period: period})
		if err != nil {
			return BalanceSummary{}, leave.Persistence("load balance", err)
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LeaveTypeID < out[j].LeaveTypeID })
	return BalanceSummary{UserID: user.ID, Year: year, Balances: out}, nil
}

// =============================================================================
// TEAM CALENDAR
// =============================================================================

// TeamAbsences returns the team's absences over [from, to], one entry per
// working date. Only team members, the team's manager and hr/admin of the
// same company can read it; anyone else gets NotFound.
func (s *RequestService) TeamAbsences(ctx context.Context, viewerID, teamID string, from, to leave.Date) ([]staffing.TeamAbsence, error) {
	if from.IsZero() || to.IsZero() || to.Before(from) {
		return nil, fmt.Errorf("%w: invalid calendar window %s..%s", leave.ErrInvalidRange, from, to)
	}
	if leave.DaysBetween(from, to) >= maxCalendarSpan {
		return nil, fmt.Errorf("%w: calendar window exceeds %d days", leave.ErrInvalidRange, maxCalendarSpan)
	}

	viewer, err := s.directory.GetUser(ctx, viewerID)
	if err != nil {
		return nil, leave.Persistence("load viewer", err)
	}
	team, err := s.directory.GetTeam(ctx, teamID)
	if err != nil {
		return nil, leave.Persistence("load team", err)
	}
	if !canViewTeam(viewer, team) {
		return nil, fmt.Errorf("team %s: %w", teamID, leave.ErrNotFound)
	}

	members, err := s.directory.ListTeamMembers(ctx, teamID)
	if err != nil {
		return nil, leave.Persistence("load team members", err)
	}
	settings, err := s.directory.GetCompanySettings(ctx, team.CompanyID)
	if err != nil {
		return nil, leave.Persistence("load company settings", err)
	}
	ww, hs, err := s.calendarFor(ctx, settings, from.Year(), to.Year())
	if err != nil {
		return nil, err
	}

	var requests []leave.LeaveRequest
	if len(members) > 0 {
		ids := make([]string, 0, len(members))
		for _, m := range members {
			ids = append(ids, m.ID)
		}
		requests, err = s.store.ListRequests(ctx, leave.RequestFilter{UserIDs: ids, Statuses: blocking, From: from, To: to})
		if err != nil {
			return nil, leave.Persistence("list team requests", err)
		}
	}
	return staffing.TeamAbsences(team, len(members), requests, from, to, ww, hs), nil
}
