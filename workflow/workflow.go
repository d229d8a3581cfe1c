/*
workflow.go - Multi-level approval state machine

PURPOSE:
  Drives a leave request from submission to a terminal state. The request
  and its approval rows form one aggregate; the overall status is recomputed
  from the approval sub-states after every transition and never set on its
  own.

STATES:
  Draft -> Pending(level) -> Approved | Rejected
           Pending(level) -> Cancelled   (requester only)

  Levels are fixed at Start: [manager, hr], one of them, or none. With no
  level the request is Approved immediately. A requester without an
  eligible manager (no team, no team manager, or the manager themselves)
  has the manager level escalated to hr.

DECISION ORDER:
  1. Authorization      actor may decide for this requester at all   -> Forbidden
  2. State              request is still pending                     -> AlreadyFinalized
  3. Level ordering     actor's level is the current one             -> WrongApprover
  4. Apply              approve advances or completes, reject ends

  The Outcome tells the caller which ledger step the transition needs:
  commit on final approval, release on rejection or cancellation.

SEE ALSO:
  - timeoff/request.go: persists the aggregate and drives the ledger
*/
package workflow

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/warp/leave-engine/leave"
)

// Levels returns the approval chain a new request needs, in order.
func Levels(settings leave.CompanySettings, lt leave.LeaveType) []leave.ApprovalLevel {
	if !lt.RequiresApproval {
		return nil
	}
	var levels []leave.ApprovalLevel
	if settings.RequireManagerApproval {
		levels = append(levels, leave.LevelManager)
	}
	if settings.RequireHRApproval {
		levels = append(levels, leave.LevelHR)
	}
	return levels
}

// escalate replaces the manager level by hr when the requester has no
// eligible manager: no team, a team without a manager, or a requester who
// manages the team. An hr level already in the chain is not duplicated.
func escalate(levels []leave.ApprovalLevel, team *leave.Team, requesterID string) []leave.ApprovalLevel {
	if team != nil && team.ManagerID != "" && team.ManagerID != requesterID {
		return levels
	}
	out := make([]leave.ApprovalLevel, 0, len(levels))
	seen := make(map[leave.ApprovalLevel]bool, len(levels))
	for _, level := range levels {
		if level == leave.LevelManager {
			level = leave.LevelHR
		}
		if !seen[level] {
			seen[level] = true
			out = append(out, level)
		}
	}
	return out
}

// =============================================================================
// AGGREGATE
// =============================================================================

// Request is a leave request together with its ordered approval chain.
type Request struct {
	leave.LeaveRequest
	Approvals []leave.RequestApproval
}

// Effect is the ledger step a transition requires.
type Effect string

const (
	EffectNone    Effect = "none"
	EffectCommit  Effect = "commit"
	EffectRelease Effect = "release"
)

// Outcome describes an applied transition.
type Outcome struct {
	Status   leave.RequestStatus
	Effect   Effect
	Approval *leave.RequestApproval // the decided row, nil for Start and Cancel
}

// Load rebuilds the aggregate from stored rows.
func Load(req leave.LeaveRequest, approvals []leave.RequestApproval) *Request {
	r := &Request{LeaveRequest: req, Approvals: append([]leave.RequestApproval(nil), approvals...)}
	sort.SliceStable(r.Approvals, func(i, j int) bool { return r.Approvals[i].Sequence < r.Approvals[j].Sequence })
	r.refresh()
	return r
}

// Start opens the approval chain of a draft request. Manager rows are
// pre-assigned to the team's manager when there is one. A manager level
// nobody can decide is escalated to hr.
func Start(req leave.LeaveRequest, levels []leave.ApprovalLevel, team *leave.Team, now time.Time) (*Request, Outcome, error) {
	if req.Status != leave.StatusDraft && req.Status != "" {
		return nil, Outcome{}, fmt.Errorf("%w: cannot start a %s request", leave.ErrInvalidTransition, req.Status)
	}

	r := &Request{LeaveRequest: req}
	for i, level := range escalate(levels, team, req.UserID) {
		a := leave.RequestApproval{
			ID:        uuid.NewString(),
			RequestID: req.ID,
			Level:     level,
			Sequence:  i + 1,
			Status:    leave.ApprovalPending,
		}
		if level == leave.LevelManager && team != nil {
			a.ApproverID = team.ManagerID
		}
		r.Approvals = append(r.Approvals, a)
	}
	r.CreatedAt = now
	r.UpdatedAt = now
	r.refresh()

	out := Outcome{Status: r.Status, Effect: EffectNone}
	if r.Status == leave.StatusApproved {
		out.Effect = EffectCommit
	}
	return r, out, nil
}

// Current returns the one actionable approval row of a pending request.
func (r *Request) Current() (*leave.RequestApproval, bool) {
	if r.Status != leave.StatusPending {
		return nil, false
	}
	for i := range r.Approvals {
		if r.Approvals[i].Status == leave.ApprovalPending {
			return &r.Approvals[i], true
		}
	}
	return nil, false
}

// =============================================================================
// TRANSITIONS
// =============================================================================

// Decide records actor's decision on the level matching the actor's role.
func (r *Request) Decide(actor, requester leave.User, team *leave.Team, decision leave.Decision, comment string, now time.Time) (Outcome, error) {
	if decision != leave.DecisionApprove && decision != leave.DecisionReject {
		return Outcome{}, fmt.Errorf("%w: unknown decision %q", leave.ErrInvalidTransition, decision)
	}
	level, err := authorize(actor, requester, team, r.CompanyID)
	if err != nil {
		return Outcome{}, err
	}
	if r.Status != leave.StatusPending {
		return Outcome{Status: r.Status, Effect: EffectNone},
			fmt.Errorf("%w: request %s is %s", leave.ErrAlreadyFinalized, r.ID, r.Status)
	}

	target := r.level(level)
	if target == nil {
		return Outcome{}, fmt.Errorf("%w: request %s needs no %s approval", leave.ErrForbidden, r.ID, level)
	}
	current, _ := r.Current()
	if current == nil || current.ID != target.ID {
		return Outcome{}, fmt.Errorf("%w: %s level is not open on request %s", leave.ErrWrongApprover, level, r.ID)
	}

	target.ApproverID = actor.ID
	target.Comment = comment
	decidedAt := now
	target.DecidedAt = &decidedAt
	if decision == leave.DecisionApprove {
		target.Status = leave.ApprovalApproved
	} else {
		target.Status = leave.ApprovalRejected
	}
	r.UpdatedAt = now
	r.refresh()

	decided := *target
	out := Outcome{Status: r.Status, Effect: EffectNone, Approval: &decided}
	switch r.Status {
	case leave.StatusApproved:
		out.Effect = EffectCommit
	case leave.StatusRejected:
		out.Effect = EffectRelease
	}
	return out, nil
}

// Cancel withdraws a pending request on its requester's behalf.
func (r *Request) Cancel(actorID string, now time.Time) (Outcome, error) {
	if actorID != r.UserID {
		return Outcome{}, fmt.Errorf("%w: only the requester may cancel request %s", leave.ErrForbidden, r.ID)
	}
	switch r.Status {
	case leave.StatusPending:
	case leave.StatusCancelled:
		return Outcome{Status: r.Status, Effect: EffectNone},
			fmt.Errorf("%w: request %s is already cancelled", leave.ErrAlreadyFinalized, r.ID)
	default:
		return Outcome{}, fmt.Errorf("%w: cannot cancel a %s request", leave.ErrInvalidTransition, r.Status)
	}

	cancelledAt := now
	r.CancelledAt = &cancelledAt
	r.UpdatedAt = now
	r.refresh()
	return Outcome{Status: r.Status, Effect: EffectRelease}, nil
}

// =============================================================================
// DERIVATION
// =============================================================================

func (r *Request) refresh() {
	r.Status = deriveStatus(r.CancelledAt, r.Approvals)
}

// deriveStatus is the single source of the overall status.
func deriveStatus(cancelledAt *time.Time, approvals []leave.RequestApproval) leave.RequestStatus {
	if cancelledAt != nil {
		return leave.StatusCancelled
	}
	allApproved := true
	for _, a := range approvals {
		switch a.Status {
		case leave.ApprovalRejected:
			return leave.StatusRejected
		case leave.ApprovalPending:
			allApproved = false
		}
	}
	if allApproved {
		return leave.StatusApproved
	}
	return leave.StatusPending
}

func (r *Request) level(l leave.ApprovalLevel) *leave.RequestApproval {
	for i := range r.Approvals {
		if r.Approvals[i].Level == l {
			return &r.Approvals[i]
		}
	}
	return nil
}

// =============================================================================
// AUTHORIZATION
// =============================================================================

// authorize returns the level actor decides at, or ErrForbidden.
func authorize(actor, requester leave.User, team *leave.Team, companyID string) (leave.ApprovalLevel, error) {
	forbidden := func(why string) (leave.ApprovalLevel, error) {
		return "", fmt.Errorf("%w: %s", leave.ErrForbidden, why)
	}
	if !actor.IsActive {
		return forbidden("approver is not active")
	}
	if actor.CompanyID != companyID {
		return forbidden("approver belongs to another company")
	}
	if actor.ID == requester.ID {
		return forbidden("requesters cannot decide on their own request")
	}

	switch actor.Role {
	case leave.RoleEmployee:
		return forbidden("employees cannot decide on requests")
	case leave.RoleManager:
		if team == nil || team.ManagerID != actor.ID {
			return forbidden("approver does not manage the requester's team")
		}
		return leave.LevelManager, nil
	case leave.RoleHR, leave.RoleAdmin:
		return leave.LevelHR, nil
	default:
		return forbidden(fmt.Sprintf("unknown role %q", actor.Role))
	}
}

// CanDecide reports whether actor would currently be allowed to decide on r.
// It backs the pending approvals listing.
func (r *Request) CanDecide(actor, requester leave.User, team *leave.Team) bool {
	level, err := authorize(actor, requester, team, r.CompanyID)
	if err != nil {
		return false
	}
	current, ok := r.Current()
	return ok && current.Level == level
}
