/*
types.go - Core entities of the leave accounting and approval engine

PURPOSE:
  Plain data shapes shared by every component. Reference data (users, teams,
  companies, leave types, holidays) is owned by the Directory and read-only
  here. Transactional data (requests, approvals, balances, reservations) is
  owned by the Store and mutated only through the orchestrator.

KEY CONCEPTS:
  LeaveRequest:    what the employee asked for, sized in decimal days
  RequestApproval: one row per required level, ordered by Sequence
  LeaveBalance:    per user/type/fiscal-year ledger row
  Reservation:     the pending hold a request places on its balance row

SEE ALSO:
  - errors.go: error kinds
  - store.go: Directory and Store contracts
  - workflow/: derives LeaveRequest.Status from approvals
*/
package leave

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ROLE - Closed enumeration
// =============================================================================

// Role is a user's business classification. Capability checks switch over it
// exhaustively; it is not a permission list.
type Role string

const (
	RoleEmployee Role = "employee"
	RoleManager  Role = "manager"
	RoleHR       Role = "hr"
	RoleAdmin    Role = "admin"
)

// ParseRole validates a stored or transported role string.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	switch r {
	case RoleEmployee, RoleManager, RoleHR, RoleAdmin:
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// =============================================================================
// REFERENCE DATA
// =============================================================================

type User struct {
	ID        string `json:"id"`
	CompanyID string `json:"company_id"`
	TeamID    string `json:"team_id,omitempty"`
	Email     string `json:"email"`
	FullName  string `json:"full_name"`
	Role      Role   `json:"role"`
	HireDate  Date   `json:"hire_date"`
	IsActive  bool   `json:"is_active"`
}

// CompanySettings parameterizes the calculator, validator and workflow for a
// tenant. It is loaded once per operation and not re-read mid-operation.
type CompanySettings struct {
	CompanyID              string         `json:"company_id"`
	DefaultWorkDays        []time.Weekday `json:"default_work_days"`
	FiscalYearStartMonth   time.Month     `json:"fiscal_year_start_month"`
	RequireManagerApproval bool           `json:"require_manager_approval"`
	RequireHRApproval      bool           `json:"require_hr_approval"`
	AllowNegativeBalance   bool           `json:"allow_negative_balance"`
	MaxDaysInAdvance       int            `json:"max_days_in_advance"` // 0 = no horizon
}

// DefaultCompanySettings mirrors a new tenant: Monday to Friday, calendar
// fiscal year, manager approval only, one year booking horizon.
func DefaultCompanySettings(companyID string) CompanySettings {
	return CompanySettings{
		CompanyID:              companyID,
		DefaultWorkDays:        []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
		FiscalYearStartMonth:   time.January,
		RequireManagerApproval: true,
		MaxDaysInAdvance:       365,
	}
}

type BlockedPeriod struct {
	Start  Date   `json:"start_date"`
	End    Date   `json:"end_date"`
	Reason string `json:"reason"`
}

func (b BlockedPeriod) Period() Period { return Period{Start: b.Start, End: b.End} }

type TeamRule struct {
	MaxAbsentSameDay int             `json:"max_absent_same_day"` // 0 = no cap
	BlockedPeriods   []BlockedPeriod `json:"blocked_periods"`
}

type Team struct {
	ID               string    `json:"id"`
	CompanyID        string    `json:"company_id"`
	Name             string    `json:"name"`
	ManagerID        string    `json:"manager_id,omitempty"`
	MinStaffRequired int       `json:"min_staff_required"`
	Rule             *TeamRule `json:"rule,omitempty"`
}

type LeaveType struct {
	ID                    string          `json:"id"`
	CompanyID             string          `json:"company_id"`
	Code                  string          `json:"code"`
	Name                  string          `json:"name"`
	DefaultDaysPerYear    decimal.Decimal `json:"default_days_per_year"`
	RequiresApproval      bool            `json:"requires_approval"`
	RequiresJustification bool            `json:"requires_justification"`
	Color                 string          `json:"color"`
	IsActive              bool            `json:"is_active"`
}

// Uncapped reports whether the type has no yearly allotment. Bookings of an
// uncapped type are still tracked in the ledger but never refused for balance.
func (lt LeaveType) Uncapped() bool { return lt.DefaultDaysPerYear.IsZero() }

// Holiday is a company non-working day. Recurring holidays repeat on the same
// month and day every year; the year of Date is ignored for them.
type Holiday struct {
	ID          string `json:"id"`
	CompanyID   string `json:"company_id"`
	Name        string `json:"name"`
	Date        Date   `json:"date"`
	IsRecurring bool   `json:"is_recurring"`
}

// =============================================================================
// REQUESTS AND APPROVALS
// =============================================================================

type RequestStatus string

const (
	StatusDraft     RequestStatus = "draft"
	StatusPending   RequestStatus = "pending"
	StatusApproved  RequestStatus = "approved"
	StatusRejected  RequestStatus = "rejected"
	StatusCancelled RequestStatus = "cancelled"
)

// IsTerminal reports whether no further transition is possible.
func (s RequestStatus) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusCancelled
}

// Blocking reports whether a request in this status still occupies its dates.
func (s RequestStatus) Blocking() bool {
	return s == StatusPending || s == StatusApproved
}

type HalfDayPeriod string

const (
	HalfDayNone      HalfDayPeriod = ""
	HalfDayMorning   HalfDayPeriod = "morning"
	HalfDayAfternoon HalfDayPeriod = "afternoon"
)

func (p HalfDayPeriod) Valid() bool {
	return p == HalfDayMorning || p == HalfDayAfternoon
}

type LeaveRequest struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	CompanyID     string          `json:"company_id"`
	LeaveTypeID   string          `json:"leave_type_id"`
	StartDate     Date            `json:"start_date"`
	EndDate       Date            `json:"end_date"`
	IsHalfDay     bool            `json:"is_half_day"`
	HalfDayPeriod HalfDayPeriod   `json:"half_day_period,omitempty"`
	DaysCount     decimal.Decimal `json:"days_count"`
	Reason        string          `json:"reason,omitempty"`
	Status        RequestStatus   `json:"status"`
	FiscalYear    int             `json:"fiscal_year"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	CancelledAt   *time.Time      `json:"cancelled_at,omitempty"`
}

func (r LeaveRequest) Period() Period { return Period{Start: r.StartDate, End: r.EndDate} }

// BalanceKey addresses the balance row a request is charged against.
func (r LeaveRequest) BalanceKey() BalanceKey {
	return BalanceKey{UserID: r.UserID, LeaveTypeID: r.LeaveTypeID, Year: r.FiscalYear}
}

type ApprovalLevel string

const (
	LevelManager ApprovalLevel = "manager"
	LevelHR      ApprovalLevel = "hr"
)

type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// RequestApproval is one level of a request's approval chain. ApproverID is
// pre-assigned for manager levels when the team has a manager and is set to
// the deciding user once decided.
type RequestApproval struct {
	ID         string         `json:"id"`
	RequestID  string         `json:"request_id"`
	Level      ApprovalLevel  `json:"level"`
	Sequence   int            `json:"sequence"`
	ApproverID string         `json:"approver_id,omitempty"`
	Status     ApprovalStatus `json:"status"`
	Comment    string         `json:"comment,omitempty"`
	DecidedAt  *time.Time     `json:"decided_at,omitempty"`
}

// Decision is what an approver records on the current level.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// =============================================================================
// BALANCES AND RESERVATIONS
// =============================================================================

// BalanceKey is the unit of serialization for the ledger.
type BalanceKey struct {
	UserID      string
	LeaveTypeID string
	Year        int
}

func (k BalanceKey) String() string {
	return fmt.Sprintf("%s/%s/%d", k.UserID, k.LeaveTypeID, k.Year)
}

// LeaveBalance holds remaining == initial - used - pending. Version is the
// optimistic concurrency token; zero means the row has not been stored yet.
type LeaveBalance struct {
	UserID         string          `json:"user_id"`
	LeaveTypeID    string          `json:"leave_type_id"`
	Year           int             `json:"year"`
	InitialBalance decimal.Decimal `json:"initial_balance"`
	UsedDays       decimal.Decimal `json:"used_days"`
	PendingDays    decimal.Decimal `json:"pending_days"`
	RemainingDays  decimal.Decimal `json:"remaining_days"`
	Version        int64           `json:"version"`
}

// NewLeaveBalance opens an unsaved balance row with nothing used or pending.
func NewLeaveBalance(key BalanceKey, initial decimal.Decimal) LeaveBalance {
	return LeaveBalance{
		UserID:         key.UserID,
		LeaveTypeID:    key.LeaveTypeID,
		Year:           key.Year,
		InitialBalance: initial,
		UsedDays:       decimal.Zero,
		PendingDays:    decimal.Zero,
		RemainingDays:  initial,
	}
}

func (b LeaveBalance) Key() BalanceKey {
	return BalanceKey{UserID: b.UserID, LeaveTypeID: b.LeaveTypeID, Year: b.Year}
}

// Consistent reports whether the ledger invariant holds for this row.
func (b LeaveBalance) Consistent() bool {
	return b.RemainingDays.Equal(b.InitialBalance.Sub(b.UsedDays).Sub(b.PendingDays))
}

type ReservationState string

const (
	ReservationHeld      ReservationState = "held"
	ReservationCommitted ReservationState = "committed"
	ReservationReleased  ReservationState = "released"
)

// Reservation is the pending hold of one request on one balance row.
type Reservation struct {
	ID          string           `json:"id"`
	RequestID   string           `json:"request_id"`
	Key         BalanceKey       `json:"-"`
	Days        decimal.Decimal  `json:"days"`
	State       ReservationState `json:"state"`
	CreatedAt   time.Time        `json:"created_at"`
	FinalizedAt *time.Time       `json:"finalized_at,omitempty"`
}
