// Package store provides in-memory Store and Directory implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu         sync.RWMutex
	data       memoryData
	failOnSave error
}

type memoryData struct {
	requests     map[string]leave.LeaveRequest
	approvals    map[string][]leave.RequestApproval
	balances     map[leave.BalanceKey]leave.LeaveBalance
	reservations map[string]leave.Reservation
	audit        []leave.AuditEntry
}

func newMemoryData() memoryData {
	return memoryData{
		requests:     make(map[string]leave.LeaveRequest),
		approvals:    make(map[string][]leave.RequestApproval),
		balances:     make(map[leave.BalanceKey]leave.LeaveBalance),
		reservations: make(map[string]leave.Reservation),
	}
}

func NewMemory() *Memory {
	return &Memory{data: newMemoryData()}
}

// FailSavesWith makes every subsequent write fail with err until reset with
// nil. Tests use it to exercise rollback.
func (m *Memory) FailSavesWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failOnSave = err
}

func (m *Memory) GetRequest(ctx context.Context, id string) (leave.LeaveRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view().GetRequest(ctx, id)
}

func (m *Memory) ListRequests(ctx context.Context, f leave.RequestFilter) ([]leave.LeaveRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view().ListRequests(ctx, f)
}

func (m *Memory) SaveRequest(ctx context.Context, r leave.LeaveRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().SaveRequest(ctx, r)
}

func (m *Memory) ListApprovals(ctx context.Context, requestID string) ([]leave.RequestApproval, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view().ListApprovals(ctx, requestID)
}

func (m *Memory) SaveApproval(ctx context.Context, a leave.RequestApproval) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().SaveApproval(ctx, a)
}

func (m *Memory) GetBalance(ctx context.Context, key leave.BalanceKey) (leave.LeaveBalance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view().GetBalance(ctx, key)
}

func (m *Memory) ListBalances(ctx context.Context, userID string, year int) ([]leave.LeaveBalance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view().ListBalances(ctx, userID, year)
}

func (m *Memory) SaveBalance(ctx context.Context, b leave.LeaveBalance) (leave.LeaveBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().SaveBalance(ctx, b)
}

func (m *Memory) GetReservation(ctx context.Context, requestID string) (leave.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view().GetReservation(ctx, requestID)
}

func (m *Memory) SaveReservation(ctx context.Context, r leave.Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().SaveReservation(ctx, r)
}

func (m *Memory) AppendAudit(ctx context.Context, e leave.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().AppendAudit(ctx, e)
}

func (m *Memory) ListAudit(ctx context.Context, requestID string) ([]leave.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view().ListAudit(ctx, requestID)
}

// view returns an unlocked accessor; the caller holds mu.
func (m *Memory) view() *memoryView {
	return &memoryView{parent: m}
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
// Transactions are serialized by the store mutex.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(leave.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	snapshot := tm.data.clone()
	view := &memoryView{parent: tm.Memory, ctxBound: true}

	if err := fn(view); err != nil {
		tm.data = snapshot
		return err
	}
	if err := ctx.Err(); err != nil {
		tm.data = snapshot
		return err
	}
	return nil
}

func (d memoryData) clone() memoryData {
	c := newMemoryData()
	for k, v := range d.requests {
		c.requests[k] = v
	}
	for k, v := range d.approvals {
		c.approvals[k] = append([]leave.RequestApproval(nil), v...)
	}
	for k, v := range d.balances {
		c.balances[k] = v
	}
	for k, v := range d.reservations {
		c.reservations[k] = v
	}
	c.audit = append([]leave.AuditEntry(nil), d.audit...)
	return c
}

// =============================================================================
// VIEW - Operations over the data with the lock already held
// =============================================================================

type memoryView struct {
	parent   *Memory
	ctxBound bool
}

func (v *memoryView) check(ctx context.Context) error {
	if v.ctxBound {
		return ctx.Err()
	}
	return nil
}

func (v *memoryView) write(ctx context.Context) error {
	if err := v.check(ctx); err != nil {
		return err
	}
	return v.parent.failOnSave
}

func (v *memoryView) GetRequest(ctx context.Context, id string) (leave.LeaveRequest, error) {
	if err := v.check(ctx); err != nil {
		return leave.LeaveRequest{}, err
	}
	r, ok := v.parent.data.requests[id]
	if !ok {
		return leave.LeaveRequest{}, fmt.Errorf("request %s: %w", id, leave.ErrNotFound)
	}
	return r, nil
}

func (v *memoryView) ListRequests(ctx context.Context, f leave.RequestFilter) ([]leave.LeaveRequest, error) {
	if err := v.check(ctx); err != nil {
		return nil, err
	}
	var out []leave.LeaveRequest
	for _, r := range v.parent.data.requests {
		if matches(r, f) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartDate.Equal(out[j].StartDate) {
			return out[i].StartDate.Before(out[j].StartDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func matches(r leave.LeaveRequest, f leave.RequestFilter) bool {
	if f.CompanyID != "" && r.CompanyID != f.CompanyID {
		return false
	}
	if len(f.UserIDs) > 0 && !contains(f.UserIDs, r.UserID) {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if r.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !f.From.IsZero() && r.EndDate.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && r.StartDate.After(f.To) {
		return false
	}
	return true
}

func contains(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

func (v *memoryView) SaveRequest(ctx context.Context, r leave.LeaveRequest) error {
	if err := v.write(ctx); err != nil {
		return err
	}
	v.parent.data.requests[r.ID] = r
	return nil
}

func (v *memoryView) ListApprovals(ctx context.Context, requestID string) ([]leave.RequestApproval, error) {
	if err := v.check(ctx); err != nil {
		return nil, err
	}
	out := append([]leave.RequestApproval(nil), v.parent.data.approvals[requestID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

func (v *memoryView) SaveApproval(ctx context.Context, a leave.RequestApproval) error {
	if err := v.write(ctx); err != nil {
		return err
	}
	rows := v.parent.data.approvals[a.RequestID]
	for i := range rows {
		if rows[i].ID == a.ID {
			rows[i] = a
			return nil
		}
	}
	v.parent.data.approvals[a.RequestID] = append(rows, a)
	return nil
}

func (v *memoryView) GetBalance(ctx context.Context, key leave.BalanceKey) (leave.LeaveBalance, error) {
	if err := v.check(ctx); err != nil {
		return leave.LeaveBalance{}, err
	}
	b, ok := v.parent.data.balances[key]
	if !ok {
		return leave.LeaveBalance{}, fmt.Errorf("balance %s: %w", key, leave.ErrNotFound)
	}
	return b, nil
}

func (v *memoryView) ListBalances(ctx context.Context, userID string, year int) ([]leave.LeaveBalance, error) {
	if err := v.check(ctx); err != nil {
		return nil, err
	}
	var out []leave.LeaveBalance
	for k, b := range v.parent.data.balances {
		if k.UserID == userID && k.Year == year {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LeaveTypeID < out[j].LeaveTypeID })
	return out, nil
}

func (v *memoryView) SaveBalance(ctx context.Context, b leave.LeaveBalance) (leave.LeaveBalance, error) {
	if err := v.write(ctx); err != nil {
		return leave.LeaveBalance{}, err
	}
	key := b.Key()
	stored, exists := v.parent.data.balances[key]
	switch {
	case b.Version == 0 && exists:
		return leave.LeaveBalance{}, fmt.Errorf("balance %s already exists: %w", key, leave.ErrConcurrentModification)
	case b.Version != 0 && (!exists || stored.Version != b.Version):
		return leave.LeaveBalance{}, fmt.Errorf("balance %s version %d is stale: %w", key, b.Version, leave.ErrConcurrentModification)
	}
	b.Version++
	v.parent.data.balances[key] = b
	return b, nil
}

func (v *memoryView) GetReservation(ctx context.Context, requestID string) (leave.Reservation, error) {
	if err := v.check(ctx); err != nil {
		return leave.Reservation{}, err
	}
	r, ok := v.parent.data.reservations[requestID]
	if !ok {
		return leave.Reservation{}, fmt.Errorf("reservation for %s: %w", requestID, leave.ErrNotFound)
	}
	return r, nil
}

func (v *memoryView) SaveReservation(ctx context.Context, r leave.Reservation) error {
	if err := v.write(ctx); err != nil {
		return err
	}
	v.parent.data.reservations[r.RequestID] = r
	return nil
}

func (v *memoryView) AppendAudit(ctx context.Context, e leave.AuditEntry) error {
	if err := v.write(ctx); err != nil {
		return err
	}
	v.parent.data.audit = append(v.parent.data.audit, e)
	return nil
}

func (v *memoryView) ListAudit(ctx context.Context, requestID string) ([]leave.AuditEntry, error) {
	if err := v.check(ctx); err != nil {
		return nil, err
	}
	var out []leave.AuditEntry
	for _, e := range v.parent.data.audit {
		if e.RequestID == requestID {
			out = append(out, e)
		}
	}
	return out, nil
}
