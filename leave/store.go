/*
store.go - Collaborator contracts: Directory (reference data) and Store (transactional data)

PURPOSE:
  The engine is a stateless service over externally owned records. The
  Directory supplies users, teams, company settings, leave types and
  holidays, read-only. The Store persists requests, approvals, balances,
  reservations and audit entries, and TxStore makes a compound lifecycle
  operation land as one atomic unit.

CONCURRENCY:
  SaveBalance is an optimistic check-and-set on LeaveBalance.Version:
  - Version 0 inserts, and fails if the row already exists
  - Version n updates only if the stored version is still n
  A lost race surfaces as ErrConcurrentModification; callers retry the
  whole transaction.

IMPLEMENTATIONS:
  - store/sqlstore: SQLite and PostgreSQL
  - leave/store: in-memory, for tests and demos

SEE ALSO:
  - ledger/ledger.go: the only writer of balances and reservations
  - timeoff/request.go: the only caller of WithTx
*/
package leave

import (
	"context"
	"time"
)

// =============================================================================
// DIRECTORY - Reference data, read-only from the engine's perspective
// =============================================================================

// Directory returns ErrNotFound (possibly wrapped) for unknown identifiers.
type Directory interface {
	GetUser(ctx context.Context, id string) (User, error)
	GetTeam(ctx context.Context, id string) (Team, error)
	ListTeamMembers(ctx context.Context, teamID string) ([]User, error)
	GetCompanySettings(ctx context.Context, companyID string) (CompanySettings, error)
	ListHolidays(ctx context.Context, companyID string, fromYear, toYear int) ([]Holiday, error)
	GetLeaveType(ctx context.Context, id string) (LeaveType, error)
	ListLeaveTypes(ctx context.Context, companyID string) ([]LeaveType, error)
}

// =============================================================================
// STORE - Transactional data
// =============================================================================

// RequestFilter selects requests. Zero fields do not filter. When both From
// and To are set, only requests whose range overlaps [From, To] match.
type RequestFilter struct {
	CompanyID string
	UserIDs   []string
	Statuses  []RequestStatus
	From      Date
	To        Date
}

type Store interface {
	GetRequest(ctx context.Context, id string) (LeaveRequest, error)
	ListRequests(ctx context.Context, filter RequestFilter) ([]LeaveRequest, error)
	SaveRequest(ctx context.Context, r LeaveRequest) error

	// ListApprovals returns the request's approval chain ordered by Sequence.
	ListApprovals(ctx context.Context, requestID string) ([]RequestApproval, error)
	SaveApproval(ctx context.Context, a RequestApproval) error

	GetBalance(ctx context.Context, key BalanceKey) (LeaveBalance, error)
	ListBalances(ctx context.Context, userID string, year int) ([]LeaveBalance, error)
	// SaveBalance stores b if its Version matches the stored one and returns
	// the row with the incremented Version.
	SaveBalance(ctx context.Context, b LeaveBalance) (LeaveBalance, error)

	GetReservation(ctx context.Context, requestID string) (Reservation, error)
	SaveReservation(ctx context.Context, r Reservation) error

	AppendAudit(ctx context.Context, e AuditEntry) error
	ListAudit(ctx context.Context, requestID string) ([]AuditEntry, error)
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, or ctx is done, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// AUDIT LOG - Who did what when
// =============================================================================

type AuditAction string

const (
	AuditRequestSubmitted AuditAction = "request_submitted"
	AuditRequestApproved  AuditAction = "request_approved"
	AuditLevelApproved    AuditAction = "level_approved"
	AuditRequestRejected  AuditAction = "request_rejected"
	AuditRequestCancelled AuditAction = "request_cancelled"
)

type AuditEntry struct {
	ID        string         `json:"id"`
	RequestID string         `json:"request_id"`
	ActorID   string         `json:"actor_id"`
	Action    AuditAction    `json:"action"`
	At        time.Time      `json:"at"`
	Payload   map[string]any `json:"payload,omitempty"`
}
