/*
errors.go - Error kinds of the leave engine

PURPOSE:
  All domain error kinds in one place. Kinds are domain-level, not
  transport-level: the HTTP adapter and the metrics labels derive from
  KindOf(err), never from error strings.

ERROR CATEGORIES:
  1. Validation - InvalidRange, Overlap, BlockedPeriod, Understaffed,
     AdvanceLimitExceeded, InactiveLeaveType, JustificationRequired
  2. Ledger - InsufficientBalance, AlreadyFinalized, ConcurrentModification
  3. Authorization - WrongApprover, Forbidden
  4. Infrastructure - PersistenceFailure, NotFound

USAGE:
  Validation failures are collected in a *ValidationError that unwraps to
  every violated sentinel, so both of these hold for a request that overlaps
  and lands in a blocked period:

    errors.Is(err, leave.ErrOverlap)
    errors.Is(err, leave.ErrBlockedPeriod)

SEE ALSO:
  - staffing/validator.go: builds ValidationError
  - ledger/ledger.go: InsufficientBalanceError
  - api/errors.go: Kind to HTTP status mapping
*/
package leave

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrInvalidRange           = errors.New("invalid range")
	ErrInsufficientBalance    = errors.New("insufficient balance")
	ErrAlreadyFinalized       = errors.New("already finalized")
	ErrOverlap                = errors.New("overlaps an existing request")
	ErrBlockedPeriod          = errors.New("falls in a blocked period")
	ErrUnderstaffed           = errors.New("team would be understaffed")
	ErrAdvanceLimitExceeded   = errors.New("too far in advance")
	ErrWrongApprover          = errors.New("level is not open for decision")
	ErrForbidden              = errors.New("forbidden")
	ErrPersistenceFailure     = errors.New("persistence failure")
	ErrNotFound               = errors.New("not found")
	ErrConcurrentModification = errors.New("concurrent modification detected")
	ErrInvalidTransition      = errors.New("invalid status transition")
	ErrInactiveLeaveType      = errors.New("leave type is not active")
	ErrJustificationRequired  = errors.New("justification required")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientBalanceError details a refused reservation.
type InsufficientBalanceError struct {
	Key       BalanceKey
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientBalanceError) Shortfall() decimal.Decimal {
	return e.Requested.Sub(e.Available)
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: available %s, requested %s, shortfall %s",
		e.Available, e.Requested, e.Shortfall())
}

func (e *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}

// Violation is one failed admission rule.
type Violation struct {
	Err     error  `json:"-"`
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

// ValidationError reports every violated rule of a candidate request.
type ValidationError struct {
	Violations []Violation
}

// Add records a violation of the given sentinel.
func (e *ValidationError) Add(sentinel error, format string, args ...any) {
	e.Violations = append(e.Violations, Violation{
		Err:     sentinel,
		Kind:    KindOf(sentinel),
		Message: fmt.Sprintf(format, args...),
	})
}

// OrNil returns nil when nothing was recorded so callers can return it as an
// error without the typed-nil trap.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Violations) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Unwrap exposes each distinct violated sentinel.
func (e *ValidationError) Unwrap() []error {
	seen := make(map[error]bool, len(e.Violations))
	var errs []error
	for _, v := range e.Violations {
		if !seen[v.Err] {
			seen[v.Err] = true
			errs = append(errs, v.Err)
		}
	}
	return errs
}

// Kinds lists the distinct violated kinds in first-seen order.
func (e *ValidationError) Kinds() []Kind {
	var kinds []Kind
	seen := make(map[Kind]bool)
	for _, v := range e.Violations {
		if !seen[v.Kind] {
			seen[v.Kind] = true
			kinds = append(kinds, v.Kind)
		}
	}
	return kinds
}

// =============================================================================
// KINDS - Stable names for observability and transport mapping
// =============================================================================

type Kind string

const (
	KindNone                   Kind = ""
	KindValidation             Kind = "validation"
	KindInvalidRange           Kind = "invalid_range"
	KindInsufficientBalance    Kind = "insufficient_balance"
	KindAlreadyFinalized       Kind = "already_finalized"
	KindOverlap                Kind = "overlap"
	KindBlockedPeriod          Kind = "blocked_period"
	KindUnderstaffed           Kind = "understaffed"
	KindAdvanceLimitExceeded   Kind = "advance_limit_exceeded"
	KindWrongApprover          Kind = "wrong_approver"
	KindForbidden              Kind = "forbidden"
	KindPersistenceFailure     Kind = "persistence_failure"
	KindNotFound               Kind = "not_found"
	KindConcurrentModification Kind = "concurrent_modification"
	KindInvalidTransition      Kind = "invalid_transition"
	KindInactiveLeaveType      Kind = "inactive_leave_type"
	KindJustificationRequired  Kind = "justification_required"
	KindCanceled               Kind = "canceled"
	KindInternal               Kind = "internal"
)

var sentinelKinds = []struct {
	err  error
	kind Kind
}{
	{ErrInvalidRange, KindInvalidRange},
	{ErrInsufficientBalance, KindInsufficientBalance},
	{ErrAlreadyFinalized, KindAlreadyFinalized},
	{ErrOverlap, KindOverlap},
	{ErrBlockedPeriod, KindBlockedPeriod},
	{ErrUnderstaffed, KindUnderstaffed},
	{ErrAdvanceLimitExceeded, KindAdvanceLimitExceeded},
	{ErrWrongApprover, KindWrongApprover},
	{ErrForbidden, KindForbidden},
	{ErrNotFound, KindNotFound},
	{ErrConcurrentModification, KindConcurrentModification},
	{ErrInvalidTransition, KindInvalidTransition},
	{ErrInactiveLeaveType, KindInactiveLeaveType},
	{ErrJustificationRequired, KindJustificationRequired},
	{ErrPersistenceFailure, KindPersistenceFailure},
}

// KindOf classifies err. A validation error with a single violated kind
// reports that kind; with several it reports KindValidation.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		if kinds := verr.Kinds(); len(kinds) == 1 {
			return kinds[0]
		}
		return KindValidation
	}
	for _, sk := range sentinelKinds {
		if errors.Is(err, sk.err) {
			return sk.kind
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCanceled
	}
	return KindInternal
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the whole operation may succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification) || errors.Is(err, ErrPersistenceFailure)
}

// IsValidation returns true for admission failures that caused no mutation.
func IsValidation(err error) bool {
	switch KindOf(err) {
	case KindValidation, KindInvalidRange, KindOverlap, KindBlockedPeriod, KindUnderstaffed,
		KindAdvanceLimitExceeded, KindInactiveLeaveType, KindJustificationRequired:
		return true
	}
	return false
}

// Persistence wraps a collaborator fault as ErrPersistenceFailure, leaving
// domain errors and cancellations untouched.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	switch KindOf(err) {
	case KindInternal:
		return fmt.Errorf("%s: %w: %w", op, ErrPersistenceFailure, err)
	default:
		return err
	}
}
