package timeoff

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/warp/leave-engine/calendar"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/ledger"
	"github.com/warp/leave-engine/metrics"
	"github.com/warp/leave-engine/staffing"
	"github.com/warp/leave-engine/workflow"
)

var blocking = []leave.RequestStatus{leave.StatusPending, leave.StatusApproved}

// =============================================================================
// SUBMIT
// =============================================================================

// SubmitInput is an employee's leave intent.
type SubmitInput struct {
	UserID        string
	LeaveTypeID   string
	StartDate     leave.Date
	EndDate       leave.Date
	IsHalfDay     bool
	HalfDayPeriod leave.HalfDayPeriod
	Reason        string
}

// Submit sizes, validates and reserves a request, then opens its approval
// chain. A request needing no approval is committed immediately.
//
// The range shape is checked before anything is loaded, so a malformed
// half-day fails with leave.ErrInvalidRange without touching the validator
// or the ledger.
func (s *RequestService) Submit(ctx context.Context, in SubmitInput) (detail RequestDetail, err error) {
	started := time.Now()
	defer func() { s.observe("submit", started, err) }()

	if err := calendar.CheckRange(in.StartDate, in.EndDate, in.IsHalfDay, in.HalfDayPeriod); err != nil {
		return RequestDetail{}, err
	}

	sc, err := s.loadSubmitContext(ctx, in)
	if err != nil {
		return RequestDetail{}, err
	}

	days, err := calendar.ComputeDays(in.StartDate, in.EndDate, in.IsHalfDay, in.HalfDayPeriod, sc.workWeek, sc.holidays)
	if err != nil {
		return RequestDetail{}, err
	}

	now := s.now().UTC()
	draft := leave.LeaveRequest{
		ID:            s.newID(),
		UserID:        sc.user.ID,
		CompanyID:     sc.user.CompanyID,
		LeaveTypeID:   sc.leaveType.ID,
		StartDate:     in.StartDate,
		EndDate:       in.EndDate,
		IsHalfDay:     in.IsHalfDay,
		HalfDayPeriod: in.HalfDayPeriod,
		DaysCount:     days,
		Reason:        in.Reason,
		Status:        leave.StatusDraft,
		FiscalYear:    sc.fiscalYear,
	}
	if !in.IsHalfDay {
		draft.HalfDayPeriod = leave.HalfDayNone
	}
	key := draft.BalanceKey()

	var out workflow.Outcome
	err = s.inTx(ctx, "submit", key, func(tx leave.Store) error {
		if err := s.validate(ctx, tx, draft, sc, now); err != nil {
			return err
		}

		if _, err := s.ledger.Reserve(ctx, tx, ledger.ReserveInput{
			Key:           key,
			RequestID:     draft.ID,
			Days:          days,
			AllowNegative: sc.settings.AllowNegativeBalance || sc.leaveType.Uncapped(),
			Allotment:     ledger.Allotment{LeaveType: sc.leaveType, User: sc.user, Period: sc.fiscalPeriod},
		}); err != nil {
			return err
		}

		wf, o, err := workflow.Start(draft, workflow.Levels(sc.settings, sc.leaveType), sc.team, now)
		if err != nil {
			return err
		}
		out = o
		if out.Effect == workflow.EffectCommit {
			if _, err := s.ledger.Commit(ctx, tx, draft.ID); err != nil {
				return err
			}
		}

		if err := s.persist(ctx, tx, wf, wf.Approvals...); err != nil {
			return err
		}
		if err := s.audit(ctx, tx, draft.ID, sc.user.ID, leave.AuditRequestSubmitted, now, map[string]any{
			"days":   days.String(),
			"status": string(wf.Status),
			"levels": len(wf.Approvals),
		}); err != nil {
			return err
		}

		detail = RequestDetail{LeaveRequest: wf.LeaveRequest, Approvals: wf.Approvals}
		return nil
	})
	if err != nil {
		return RequestDetail{}, err
	}

	daysF := days.InexactFloat64()
	metrics.RecordReservation(daysF)
	metrics.RecordTransition(string(detail.Status))
	if out.Effect == workflow.EffectCommit {
		metrics.RecordLedgerDays("commit", daysF)
	}
	s.log.Info().Str("request_id", detail.ID).Str("user_id", detail.UserID).Str("leave_type", sc.leaveType.Code).
		Str("days", days.String()).Str("status", string(detail.Status)).Msg("Leave request submitted")
	return detail, nil
}

// submitContext is the reference data a submission is evaluated against,
// loaded once and immutable for the operation.
type submitContext struct {
	user         leave.User
	leaveType    leave.LeaveType
	settings     leave.CompanySettings
	workWeek     calendar.WorkWeek
	holidays     calendar.HolidaySet
	team         *leave.Team
	teamMembers  []string
	fiscalYear   int
	fiscalPeriod leave.Period
}

func (s *RequestService) loadSubmitContext(ctx context.Context, in SubmitInput) (submitContext, error) {
	var sc submitContext

	user, err := s.directory.GetUser(ctx, in.UserID)
	if err != nil {
		return sc, leave.Persistence("load user", err)
	}
	if !user.IsActive {
		return sc, fmt.Errorf("%w: user %s is not active", leave.ErrForbidden, user.ID)
	}
	sc.user = user

	lt, err := s.directory.GetLeaveType(ctx, in.LeaveTypeID)
	if err != nil {
		return sc, leave.Persistence("load leave type", err)
	}
	if lt.CompanyID != user.CompanyID {
		return sc, fmt.Errorf("leave type %s: %w", in.LeaveTypeID, leave.ErrNotFound)
	}
	sc.leaveType = lt

	if sc.settings, err = s.directory.GetCompanySettings(ctx, user.CompanyID); err != nil {
		return sc, leave.Persistence("load company settings", err)
	}
	sc.workWeek, sc.holidays, err = s.calendarFor(ctx, sc.settings, in.StartDate.Year(), in.EndDate.Year())
	if err != nil {
		return sc, err
	}
	sc.fiscalYear, sc.fiscalPeriod = leave.FiscalYear(in.StartDate, sc.settings.FiscalYearStartMonth)

	if sc.team, sc.teamMembers, err = s.teamOf(ctx, user); err != nil {
		return sc, err
	}
	return sc, nil
}

// validate loads the requests around the candidate range inside tx and runs
// the admission rules.
func (s *RequestService) validate(ctx context.Context, tx leave.Store, draft leave.LeaveRequest, sc submitContext, now time.Time) error {
	existing, err := tx.ListRequests(ctx, leave.RequestFilter{
		UserIDs:  []string{draft.UserID},
		Statuses: blocking,
		From:     draft.StartDate,
		To:       draft.EndDate,
	})
	if err != nil {
		return fmt.Errorf("list own requests: %w", err)
	}

	in := staffing.Input{
		Candidate: draft,
		LeaveType: sc.leaveType,
		Existing:  existing,
		Settings:  sc.settings,
		WorkWeek:  sc.workWeek,
		Holidays:  sc.holidays,
		Today:     leave.DateOf(now),
	}
	if sc.team != nil {
		in.Team = sc.team
		in.TeamSize = len(sc.teamMembers)
		if colleagues := without(sc.teamMembers, draft.UserID); len(colleagues) > 0 {
			in.TeamOnLeave, err = tx.ListRequests(ctx, leave.RequestFilter{
				UserIDs:  colleagues,
				Statuses: blocking,
				From:     draft.StartDate,
				To:       draft.EndDate,
			})
			if err != nil {
				return fmt.Errorf("list team requests: %w", err)
			}
		}
	}
	return staffing.Validate(in)
}

// =============================================================================
// DECIDE
// =============================================================================

type DecideInput struct {
	RequestID  string
	ApproverID string
	Decision   leave.Decision
	Comment    string
}

// Decide records an approver's decision on the request's current level and,
// on a terminal status, commits or releases the reservation.
//
// A decision on a request that is no longer pending returns the current
// state together with leave.ErrAlreadyFinalized.
func (s *RequestService) Decide(ctx context.Context, in DecideInput) (detail RequestDetail, err error) {
	started := time.Now()
	defer func() { s.observe("decide", started, err) }()

	req, err := s.store.GetRequest(ctx, in.RequestID)
	if err != nil {
		return RequestDetail{}, leave.Persistence("load request", err)
	}
	actor, err := s.directory.GetUser(ctx, in.ApproverID)
	if err != nil {
		if errors.Is(err, leave.ErrNotFound) {
			return RequestDetail{}, fmt.Errorf("%w: unknown approver %s", leave.ErrForbidden, in.ApproverID)
		}
		return RequestDetail{}, leave.Persistence("load approver", err)
	}
	requester, err := s.directory.GetUser(ctx, req.UserID)
	if err != nil {
		return RequestDetail{}, leave.Persistence("load requester", err)
	}
	team, _, err := s.teamOf(ctx, requester)
	if err != nil {
		return RequestDetail{}, err
	}

	now := s.now().UTC()
	var out workflow.Outcome
	err = s.inTx(ctx, "decide", req.BalanceKey(), func(tx leave.Store) error {
		wf, err := s.loadAggregate(ctx, tx, in.RequestID)
		if err != nil {
			return err
		}

		out, err = wf.Decide(actor, requester, team, in.Decision, in.Comment, now)
		if errors.Is(err, leave.ErrAlreadyFinalized) {
			detail = RequestDetail{LeaveRequest: wf.LeaveRequest, Approvals: wf.Approvals}
		}
		if err != nil {
			return err
		}

		if err := s.applyEffect(ctx, tx, out.Effect, wf.ID); err != nil {
			return err
		}
		if err := s.persist(ctx, tx, wf, *out.Approval); err != nil {
			return err
		}

		action := leave.AuditLevelApproved
		switch out.Status {
		case leave.StatusApproved:
			action = leave.AuditRequestApproved
		case leave.StatusRejected:
			action = leave.AuditRequestRejected
		}
		if err := s.audit(ctx, tx, wf.ID, actor.ID, action, now, map[string]any{
			"level":    string(out.Approval.Level),
			"decision": string(in.Decision),
			"comment":  in.Comment,
		}); err != nil {
			return err
		}

		detail = RequestDetail{LeaveRequest: wf.LeaveRequest, Approvals: wf.Approvals}
		return nil
	})
	if err != nil {
		if errors.Is(err, leave.ErrAlreadyFinalized) {
			return detail, err
		}
		return RequestDetail{}, err
	}

	metrics.RecordDecision(string(out.Approval.Level), string(in.Decision))
	s.recordEffect(out, detail)
	s.log.Info().Str("request_id", detail.ID).Str("approver_id", actor.ID).Str("level", string(out.Approval.Level)).
		Str("decision", string(in.Decision)).Str("status", string(detail.Status)).Msg("Decision recorded")
	return detail, nil
}

// =============================================================================
// CANCEL
// =============================================================================

// Cancel withdraws a pending request on behalf of its requester and releases
// its reservation.
func (s *RequestService) Cancel(ctx context.Context, requestID, actorID string) (detail RequestDetail, err error) {
	started := time.Now()
	defer func() { s.observe("cancel", started, err) }()

	req, err := s.store.GetRequest(ctx, requestID)
	if err != nil {
		return RequestDetail{}, leave.Persistence("load request", err)
	}

	now := s.now().UTC()
	var out workflow.Outcome
	err = s.inTx(ctx, "cancel", req.BalanceKey(), func(tx leave.Store) error {
		wf, err := s.loadAggregate(ctx, tx, requestID)
		if err != nil {
			return err
		}

		out, err = wf.Cancel(actorID, now)
		if errors.Is(err, leave.ErrAlreadyFinalized) {
			detail = RequestDetail{LeaveRequest: wf.LeaveRequest, Approvals: wf.Approvals}
		}
		if err != nil {
			return err
		}

		if err := s.applyEffect(ctx, tx, out.Effect, wf.ID); err != nil {
			return err
		}
		if err := s.persist(ctx, tx, wf); err != nil {
			return err
		}
		if err := s.audit(ctx, tx, wf.ID, actorID, leave.AuditRequestCancelled, now, map[string]any{
			"days": wf.DaysCount.String(),
		}); err != nil {
			return err
		}

		detail = RequestDetail{LeaveRequest: wf.LeaveRequest, Approvals: wf.Approvals}
		return nil
	})
	if err != nil {
		if errors.Is(err, leave.ErrAlreadyFinalized) {
			return detail, err
		}
		return RequestDetail{}, err
	}

	s.recordEffect(out, detail)
	s.log.Info().Str("request_id", detail.ID).Str("user_id", actorID).Msg("Leave request cancelled")
	return detail, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *RequestService) loadAggregate(ctx context.Context, tx leave.Store, requestID string) (*workflow.Request, error) {
	req, err := tx.GetRequest(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("load request: %w", err)
	}
	approvals, err := tx.ListApprovals(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("load approvals: %w", err)
	}
	return workflow.Load(req, approvals), nil
}

func (s *RequestService) applyEffect(ctx context.Context, tx leave.Store, effect workflow.Effect, requestID string) error {
	var err error
	switch effect {
	case workflow.EffectCommit:
		_, err = s.ledger.Commit(ctx, tx, requestID)
	case workflow.EffectRelease:
		_, err = s.ledger.Release(ctx, tx, requestID)
	}
	return err
}

// persist writes the request row and the given approval rows.
func (s *RequestService) persist(ctx context.Context, tx leave.Store, wf *workflow.Request, approvals ...leave.RequestApproval) error {
	if err := tx.SaveRequest(ctx, wf.LeaveRequest); err != nil {
		return fmt.Errorf("save request: %w", err)
	}
	for _, a := range approvals {
		if err := tx.SaveApproval(ctx, a); err != nil {
			return fmt.Errorf("save approval: %w", err)
		}
	}
	return nil
}

func (s *RequestService) recordEffect(out workflow.Outcome, detail RequestDetail) {
	days := detail.DaysCount.InexactFloat64()
	switch out.Effect {
	case workflow.EffectCommit:
		metrics.RecordLedgerDays("commit", days)
	case workflow.EffectRelease:
		metrics.RecordLedgerDays("release", days)
	}
	if out.Status.IsTerminal() {
		metrics.RecordTransition(string(out.Status))
	}
}

// calendarFor builds the work week and holiday set covering [fromYear, toYear].
// A company without configured work days falls back to Monday to Friday.
func (s *RequestService) calendarFor(ctx context.Context, settings leave.CompanySettings, fromYear, toYear int) (calendar.WorkWeek, calendar.HolidaySet, error) {
	ww := calendar.NewWorkWeek(settings.DefaultWorkDays)
	if ww.Empty() {
		ww = calendar.MondayToFriday()
	}
	holidays, err := s.directory.ListHolidays(ctx, settings.CompanyID, fromYear, toYear)
	if err != nil {
		return ww, calendar.HolidaySet{}, leave.Persistence("load holidays", err)
	}
	return ww, calendar.NewHolidaySet(holidays, fromYear, toYear), nil
}

// teamOf returns the user's team and its active member IDs, or nil for a
// user without a team.
func (s *RequestService) teamOf(ctx context.Context, user leave.User) (*leave.Team, []string, error) {
	if user.TeamID == "" {
		return nil, nil, nil
	}
	team, err := s.directory.GetTeam(ctx, user.TeamID)
	if err != nil {
		return nil, nil, leave.Persistence("load team", err)
	}
	members, err := s.directory.ListTeamMembers(ctx, team.ID)
	if err != nil {
		return nil, nil, leave.Persistence("load team members", err)
	}
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ID)
	}
	return &team, ids, nil
}

func without(ids []string, exclude string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != exclude {
			out = append(out, id)
		}
	}
	return out
}
