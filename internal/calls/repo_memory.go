package calls

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory ActiveCallStore, TransferStore and HistoryStore with the same
// conditional-update semantics as PostgresRepo. Useful for tests and local runs.
type MemoryRepo struct {
	mu        sync.Mutex
	active    map[string]ActiveCall
	transfers map[string]TransferAttempt // by id
	history   map[string]CallRecord      // by provider leg id

	failures map[string]error

	// IgnoreUpserts makes UpsertActiveCall behave like an insert that silently
	// ignores conflicts, to exercise ErrConflictIgnored.
	IgnoreUpserts bool
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		active:    map[string]ActiveCall{},
		transfers: map[string]TransferAttempt{},
		history:   map[string]CallRecord{},
		failures:  map[string]error{},
	}
}

// FailOn makes the named method (e.g. "FinishTransfer") return err until cleared with a nil err.
func (r *MemoryRepo) FailOn(method string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		delete(r.failures, method)
		return
	}
	r.failures[method] = err
}

func (r *MemoryRepo) fail(method string) error {
	if err, ok := r.failures[method]; ok {
		return fmt.Errorf("%w: %s: %w", ErrStorage, method, err)
	}
	return nil
}

func (r *MemoryRepo) UpsertActiveCall(ctx context.Context, c ActiveCall) (ActiveCall, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("UpsertActiveCall"); err != nil {
		return ActiveCall{}, err
	}
	if _, exists := r.active[c.AgentID]; exists && r.IgnoreUpserts {
		return ActiveCall{}, ErrConflictIgnored
	}
	r.active[c.AgentID] = c
	return c, nil
}

func (r *MemoryRepo) GetActiveCall(ctx context.Context, agentID string) (ActiveCall, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("GetActiveCall"); err != nil {
		return ActiveCall{}, false, err
	}
	c, ok := r.active[agentID]
	return c, ok, nil
}

func (r *MemoryRepo) FindActiveCallByLeg(ctx context.Context, legID string) (ActiveCall, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("FindActiveCallByLeg"); err != nil {
		return ActiveCall{}, false, err
	}
	for _, c := range r.active {
		if c.AgentLegID == legID || c.CustomerLegID == legID || c.ConsultLegID == legID {
			return c, true, nil
		}
	}
	return ActiveCall{}, false, nil
}

func (r *MemoryRepo) mutate(method, agentID string, at time.Time, fn func(*ActiveCall)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail(method); err != nil {
		return err
	}
	c, ok := r.active[agentID]
	if !ok {
		return ErrNoActiveCall
	}
	fn(&c)
	c.UpdatedAt = at
	r.active[agentID] = c
	return nil
}

func (r *MemoryRepo) SetCustomerLeg(ctx context.Context, agentID, customerLegID string, at time.Time) error {
	return r.mutate("SetCustomerLeg", agentID, at, func(c *ActiveCall) { c.CustomerLegID = customerLegID })
}

func (r *MemoryRepo) SetConsultLeg(ctx context.Context, agentID, consultLegID string, at time.Time) error {
	return r.mutate("SetConsultLeg", agentID, at, func(c *ActiveCall) { c.ConsultLegID = consultLegID })
}

func (r *MemoryRepo) SetHoldState(ctx context.Context, agentID string, hold HoldState, playback PlaybackState, at time.Time) error {
	return r.mutate("SetHoldState", agentID, at, func(c *ActiveCall) {
		c.HoldState = hold
		c.PlaybackState = playback
	})
}

func (r *MemoryRepo) ClearConsultLeg(ctx context.Context, agentID, consultLegID string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("ClearConsultLeg"); err != nil {
		return false, err
	}
	return r.clearConsultLocked(agentID, consultLegID, at), nil
}

func (r *MemoryRepo) clearConsultLocked(agentID, consultLegID string, at time.Time) bool {
	c, ok := r.active[agentID]
	if !ok || c.ConsultLegID != consultLegID {
		return false
	}
	c.ConsultLegID = ""
	c.UpdatedAt = at
	r.active[agentID] = c
	return true
}

func (r *MemoryRepo) DeleteActiveCall(ctx context.Context, agentID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("DeleteActiveCall"); err != nil {
		return false, err
	}
	_, ok := r.active[agentID]
	delete(r.active, agentID)
	return ok, nil
}

func (r *MemoryRepo) DeleteActiveCallByAgentLeg(ctx context.Context, agentLegID string) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("DeleteActiveCallByAgentLeg"); err != nil {
		return "", false, err
	}
	for id, c := range r.active {
		if c.AgentLegID == agentLegID {
			delete(r.active, id)
			return id, true, nil
		}
	}
	return "", false, nil
}

func (r *MemoryRepo) findTransferLocked(consultLegID string) (TransferAttempt, bool) {
	for _, t := range r.transfers {
		if consultLegID != "" && t.ConsultLegID == consultLegID {
			return t, true
		}
	}
	return TransferAttempt{}, false
}

func (r *MemoryRepo) StartConsult(ctx context.Context, t TransferAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("StartConsult"); err != nil {
		return err
	}
	if _, dup := r.findTransferLocked(t.ConsultLegID); dup {
		return fmt.Errorf("%w: consult leg %s already recorded", ErrInvalidState, t.ConsultLegID)
	}
	c, ok := r.active[t.AgentID]
	if !ok {
		return ErrNoActiveCall
	}
	c.ConsultLegID = t.ConsultLegID
	c.UpdatedAt = t.InitiatedAt
	r.active[t.AgentID] = c
	r.transfers[t.ID] = t
	return nil
}

func (r *MemoryRepo) RecordTransfer(ctx context.Context, t TransferAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("RecordTransfer"); err != nil {
		return err
	}
	r.transfers[t.ID] = t
	return nil
}

func (r *MemoryRepo) GetTransferByConsultLeg(ctx context.Context, consultLegID string) (TransferAttempt, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("GetTransferByConsultLeg"); err != nil {
		return TransferAttempt{}, false, err
	}
	t, ok := r.findTransferLocked(consultLegID)
	return t, ok, nil
}

func (r *MemoryRepo) markConsulting(method, consultLegID string, fn func(*TransferAttempt)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail(method); err != nil {
		return err
	}
	t, ok := r.findTransferLocked(consultLegID)
	if !ok {
		return ErrNotFound
	}
	if t.Status != TransferConsulting {
		return fmt.Errorf("%w: transfer is %s", ErrInvalidState, t.Status)
	}
	fn(&t)
	r.transfers[t.ID] = t
	return nil
}

func (r *MemoryRepo) MarkAnswered(ctx context.Context, consultLegID string, at time.Time) error {
	return r.markConsulting("MarkAnswered", consultLegID, func(t *TransferAttempt) {
		if t.AnsweredAt == nil {
			t.AnsweredAt = &at
		}
	})
}

func (r *MemoryRepo) MarkAgentBridged(ctx context.Context, consultLegID string, at time.Time) error {
	return r.markConsulting("MarkAgentBridged", consultLegID, func(t *TransferAttempt) {
		if t.AgentBridgedAt == nil {
			t.AgentBridgedAt = &at
		}
	})
}

func (r *MemoryRepo) FinishTransfer(ctx context.Context, consultLegID string, status TransferStatus, at time.Time) (TransferAttempt, error) {
	if !status.Terminal() {
		return TransferAttempt{}, fmt.Errorf("%w: %q is not a terminal status", ErrInvalidInput, status)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("FinishTransfer"); err != nil {
		return TransferAttempt{}, err
	}
	t, ok := r.findTransferLocked(consultLegID)
	if !ok {
		return TransferAttempt{}, ErrNotFound
	}
	if t.Status != TransferConsulting {
		return TransferAttempt{}, fmt.Errorf("%w: transfer is %s", ErrInvalidState, t.Status)
	}
	t.Status = status
	t.CompletedAt = &at
	r.transfers[t.ID] = t
	r.clearConsultLocked(t.AgentID, consultLegID, at)
	return t, nil
}

func (r *MemoryRepo) ListTransfersByAgent(ctx context.Context, agentID string, from, to time.Time) ([]TransferAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("ListTransfersByAgent"); err != nil {
		return nil, err
	}
	var out []TransferAttempt
	for _, t := range r.transfers {
		if t.AgentID != agentID || t.InitiatedAt.Before(from) || !t.InitiatedAt.Before(to) {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InitiatedAt.Before(out[j].InitiatedAt) })
	return out, nil
}

func (r *MemoryRepo) UpsertCallRecord(ctx context.Context, c CallRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("UpsertCallRecord"); err != nil {
		return err
	}
	if prev, ok := r.history[c.ProviderLegID]; ok {
		prev.Status = c.Status
		prev.EndedAt = c.EndedAt
		prev.UpdatedAt = c.UpdatedAt
		r.history[c.ProviderLegID] = prev
		return nil
	}
	r.history[c.ProviderLegID] = c
	return nil
}

func (r *MemoryRepo) EndCallRecord(ctx context.Context, agentLegID string, status CallStatus, endedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("EndCallRecord"); err != nil {
		return err
	}
	c, ok := r.history[agentLegID]
	if !ok {
		return nil
	}
	switch c.Status {
	case CallStatusQueued, CallStatusRinging, CallStatusInProgress:
	default:
		return nil
	}
	c.Status = status
	if c.EndedAt == nil {
		c.EndedAt = &endedAt
	}
	c.UpdatedAt = endedAt
	r.history[agentLegID] = c
	return nil
}

// CallRecord returns the history row for a provider leg.
func (r *MemoryRepo) CallRecord(legID string) (CallRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.history[legID]
	return c, ok
}
