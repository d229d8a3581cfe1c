/*
ledger.go - Balance ledger: reserve, commit, release

PURPOSE:
  Owns every mutation of LeaveBalance rows and keeps
  remaining == initial - used - pending after each step.

LIFECYCLE:
  Submit:   Reserve  -> pending += days, remaining -= days  (reservation held)
  Approved: Commit   -> pending -= days, used += days       (reservation committed)
  Rejected/
  Cancelled: Release -> pending -= days, remaining += days  (reservation released)

  A reservation is finalized exactly once. A second Commit or Release fails
  with leave.ErrAlreadyFinalized and leaves the balance untouched, so a
  retried approval can never double-count.

CONCURRENCY:
  Two layers, both required:
  1. Lock(ctx, key) serializes operations on one (user, type, year) row for
     the duration of the caller's transaction
  2. SaveBalance is a version check-and-set, so a writer that bypassed the
     lock (another process without the shared locker) loses with
     leave.ErrConcurrentModification instead of overwriting

LAZY ROWS:
  A row that does not exist yet is opened from the AllotmentPolicy the
  Ledger was built with.

SEE ALSO:
  - allotment.go: FullAllotment, ProRataAllotment
  - locker.go: KeyedMutex; store/redislock for multi-instance deployments
  - timeoff/request.go: drives the ledger inside Store.WithTx
*/
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/leave"
)

// Store is the slice of leave.Store the ledger reads and writes.
type Store interface {
	GetBalance(ctx context.Context, key leave.BalanceKey) (leave.LeaveBalance, error)
	SaveBalance(ctx context.Context, b leave.LeaveBalance) (leave.LeaveBalance, error)
	GetReservation(ctx context.Context, requestID string) (leave.Reservation, error)
	SaveReservation(ctx context.Context, r leave.Reservation) error
}

// =============================================================================
// LEDGER
// =============================================================================

type Ledger struct {
	policy AllotmentPolicy
	locker Locker
	now    func() time.Time
}

// Option customizes a Ledger.
type Option func(*Ledger)

// WithClock overrides the time source used for reservation timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// New builds a ledger. A nil locker means an in-process KeyedMutex.
func New(policy AllotmentPolicy, locker Locker, opts ...Option) (*Ledger, error) {
	if policy == nil {
		return nil, errors.New("ledger: allotment policy is required")
	}
	if locker == nil {
		locker = NewKeyedMutex()
	}
	l := &Ledger{policy: policy, locker: locker, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Policy returns the allotment policy the ledger opens rows with.
func (l *Ledger) Policy() AllotmentPolicy { return l.policy }

// Lock acquires the per-key lock. Hold it across the whole transaction that
// reads and writes the key's balance.
func (l *Ledger) Lock(ctx context.Context, key leave.BalanceKey) (func(), error) {
	return l.locker.Lock(ctx, "balance:"+key.String())
}

// =============================================================================
// RESERVE
// =============================================================================

// ReserveInput describes one reservation.
type ReserveInput struct {
	Key           leave.BalanceKey
	RequestID     string
	Days          decimal.Decimal
	AllowNegative bool
	Allotment     Allotment // used only when the row does not exist yet
}

// Reserve places a pending hold of in.Days on the key's balance. On
// insufficient balance it returns *leave.InsufficientBalanceError and writes
// nothing.
func (l *Ledger) Reserve(ctx context.Context, s Store, in ReserveInput) (leave.Reservation, error) {
	if in.Days.IsNegative() {
		return leave.Reservation{}, fmt.Errorf("%w: cannot reserve %s days", leave.ErrInvalidRange, in.Days)
	}

	existing, err := s.GetReservation(ctx, in.RequestID)
	switch {
	case err == nil:
		return leave.Reservation{}, fmt.Errorf("%w: request %s already holds reservation %s (%s)",
			leave.ErrInvalidTransition, in.RequestID, existing.ID, existing.State)
	case !errors.Is(err, leave.ErrNotFound):
		return leave.Reservation{}, fmt.Errorf("load reservation: %w", err)
	}

	balance, err := l.load(ctx, s, in.Key, in.Allotment)
	if err != nil {
		return leave.Reservation{}, err
	}

	if !in.AllowNegative && balance.RemainingDays.LessThan(in.Days) {
		return leave.Reservation{}, &leave.InsufficientBalanceError{
			Key:       in.Key,
			Available: balance.RemainingDays,
			Requested: in.Days,
		}
	}

	balance.PendingDays = balance.PendingDays.Add(in.Days)
	balance.RemainingDays = balance.RemainingDays.Sub(in.Days)
	if _, err := l.save(ctx, s, balance); err != nil {
		return leave.Reservation{}, err
	}

	r := leave.Reservation{
		ID:        uuid.NewString(),
		RequestID: in.RequestID,
		Key:       in.Key,
		Days:      in.Days,
		State:     leave.ReservationHeld,
		CreatedAt: l.now().UTC(),
	}
	if err := s.SaveReservation(ctx, r); err != nil {
		return leave.Reservation{}, fmt.Errorf("save reservation: %w", err)
	}
	return r, nil
}

// =============================================================================
// COMMIT / RELEASE
// =============================================================================

// Commit turns the request's held reservation into used days.
func (l *Ledger) Commit(ctx context.Context, s Store, requestID string) (leave.Reservation, error) {
	return l.finalize(ctx, s, requestID, leave.ReservationCommitted, func(b *leave.LeaveBalance, days decimal.Decimal) {
		b.PendingDays = b.PendingDays.Sub(days)
		b.UsedDays = b.UsedDays.Add(days)
	})
}

// Release returns the request's held days to the balance.
func (l *Ledger) Release(ctx context.Context, s Store, requestID string) (leave.Reservation, error) {
	return l.finalize(ctx, s, requestID, leave.ReservationReleased, func(b *leave.LeaveBalance, days decimal.Decimal) {
		b.PendingDays = b.PendingDays.Sub(days)
		b.RemainingDays = b.RemainingDays.Add(days)
	})
}

func (l *Ledger) finalize(ctx context.Context, s Store, requestID string, to leave.ReservationState,
	apply func(*leave.LeaveBalance, decimal.Decimal)) (leave.Reservation, error) {

	r, err := s.GetReservation(ctx, requestID)
	if err != nil {
		return leave.Reservation{}, fmt.Errorf("load reservation: %w", err)
	}
	if r.State != leave.ReservationHeld {
		return r, fmt.Errorf("%w: reservation %s is %s", leave.ErrAlreadyFinalized, r.ID, r.State)
	}

	balance, err := s.GetBalance(ctx, r.Key)
	if err != nil {
		return leave.Reservation{}, fmt.Errorf("load balance %s: %w", r.Key, err)
	}
	apply(&balance, r.Days)
	if _, err := l.save(ctx, s, balance); err != nil {
		return leave.Reservation{}, err
	}

	now := l.now().UTC()
	r.State = to
	r.FinalizedAt = &now
	if err := s.SaveReservation(ctx, r); err != nil {
		return leave.Reservation{}, fmt.Errorf("save reservation: %w", err)
	}
	return r, nil
}

// =============================================================================
// READS
// =============================================================================

// Balance returns the stored row, or the row the policy would open, without
// writing anything.
func (l *Ledger) Balance(ctx context.Context, s Store, key leave.BalanceKey, a Allotment) (leave.LeaveBalance, error) {
	return l.load(ctx, s, key, a)
}

func (l *Ledger) load(ctx context.Context, s Store, key leave.BalanceKey, a Allotment) (leave.LeaveBalance, error) {
	b, err := s.GetBalance(ctx, key)
	switch {
	case err == nil:
		return b, nil
	case errors.Is(err, leave.ErrNotFound):
		return leave.NewLeaveBalance(key, l.policy.Initial(a)), nil
	default:
		return leave.LeaveBalance{}, fmt.Errorf("load balance %s: %w", key, err)
	}
}

func (l *Ledger) save(ctx context.Context, s Store, b leave.LeaveBalance) (leave.LeaveBalance, error) {
	if !b.Consistent() {
		return leave.LeaveBalance{}, fmt.Errorf("ledger invariant broken for %s: remaining %s != %s - %s - %s",
			b.Key(), b.RemainingDays, b.InitialBalance, b.UsedDays, b.PendingDays)
	}
	saved, err := s.SaveBalance(ctx, b)
	if err != nil {
		return leave.LeaveBalance{}, fmt.Errorf("save balance %s: %w", b.Key(), err)
	}
	return saved, nil
}
