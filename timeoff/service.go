/*
service.go - RequestService: the leave request orchestrator

PURPOSE:
  Coordinates calendar, validator, ledger and workflow for each lifecycle
  operation. Every mutating operation is one logical transaction: either the
  ledger rows, the approval rows, the request row and the audit entry all
  land, or none does.

TRANSACTION SHAPE:
  lock(balance key) -> Store.WithTx(fn) -> unlock

  The lock serializes writers of one balance row across the whole
  transaction. A version conflict (leave.ErrConcurrentModification) reruns
  the whole attempt up to maxRetries times.

ERROR BOUNDARY:
  Domain errors pass through unchanged. Anything else coming out of the
  store, the directory or the locker is wrapped as
  leave.ErrPersistenceFailure and the transaction is rolled back.

SEE ALSO:
  - request.go: Submit, Decide, Cancel
  - queries.go: read operations
*/
package timeoff

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/ledger"
	"github.com/warp/leave-engine/logger"
	"github.com/warp/leave-engine/metrics"
)

// DefaultMaxRetries bounds reruns after optimistic conflicts.
const DefaultMaxRetries = 3

// =============================================================================
// REQUEST SERVICE
// =============================================================================

type RequestService struct {
	store      leave.TxStore
	directory  leave.Directory
	ledger     *ledger.Ledger
	log        *logger.Logger
	now        func() time.Time
	newID      func() string
	maxRetries int
}

type Option func(*RequestService)

func WithLogger(l *logger.Logger) Option {
	return func(s *RequestService) { s.log = l.Component("timeoff") }
}

// WithClock fixes the time source; "today" for the advance-booking horizon
// is the UTC date of now().
func WithClock(now func() time.Time) Option {
	return func(s *RequestService) { s.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(s *RequestService) { s.newID = newID }
}

func WithMaxRetries(n int) Option {
	return func(s *RequestService) {
		if n >= 0 {
			s.maxRetries = n
		}
	}
}

func NewRequestService(store leave.TxStore, dir leave.Directory, l *ledger.Ledger, opts ...Option) *RequestService {
	s := &RequestService{
		store:      store,
		directory:  dir,
		ledger:     l,
		log:        logger.Nop(),
		now:        time.Now,
		newID:      uuid.NewString,
		maxRetries: DefaultMaxRetries,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RequestDetail is a request with its approval chain.
type RequestDetail struct {
	leave.LeaveRequest
	Approvals []leave.RequestApproval `json:"approvals"`
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// inTx runs fn in a transaction holding the lock of key, retrying on
// optimistic conflicts.
func (s *RequestService) inTx(ctx context.Context, op string, key leave.BalanceKey, fn func(tx leave.Store) error) error {
	for attempt := 0; ; attempt++ {
		err := s.attempt(ctx, key, fn)
		if errors.Is(err, leave.ErrConcurrentModification) && attempt < s.maxRetries {
			metrics.RecordRetry(op)
			s.log.Debug().Str("operation", op).Str("key", key.String()).Int("attempt", attempt+1).
				Msg("Concurrent modification, retrying")
			continue
		}
		return leave.Persistence(op, err)
	}
}

func (s *RequestService) attempt(ctx context.Context, key leave.BalanceKey, fn func(tx leave.Store) error) error {
	unlock, err := s.ledger.Lock(ctx, key)
	if err != nil {
		return err
	}
	defer unlock()
	return s.store.WithTx(ctx, fn)
}

// audit appends an entry inside the caller's transaction.
func (s *RequestService) audit(ctx context.Context, tx leave.Store, requestID, actorID string, action leave.AuditAction,
	at time.Time, payload map[string]any) error {

	return tx.AppendAudit(ctx, leave.AuditEntry{
		ID:        s.newID(),
		RequestID: requestID,
		ActorID:   actorID,
		Action:    action,
		At:        at,
		Payload:   payload,
	})
}

// =============================================================================
// OBSERVABILITY
// =============================================================================

func (s *RequestService) observe(op string, started time.Time, err error) {
	kind := "ok"
	if err != nil {
		kind = string(leave.KindOf(err))
	}
	metrics.RecordOperation(op, kind, time.Since(started))

	switch {
	case err == nil:
	case leave.IsValidation(err):
		s.log.Info().Err(err).Str("operation", op).Str("kind", kind).Msg("Request refused by admission rules")
	case leave.IsRetryable(err):
		s.log.Warn().Err(err).Str("operation", op).Str("kind", kind).Msg("Operation failed, safe to retry")
	case leave.KindOf(err) == leave.KindInternal:
		s.log.Error().Err(err).Str("operation", op).Str("kind", kind).Msg("Operation failed")
	default:
		s.log.Info().Err(err).Str("operation", op).Str("kind", kind).Msg("Operation refused")
	}
}
