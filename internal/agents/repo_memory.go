package agents

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryRepo is an in-memory presence store for tests and local runs.
type MemoryRepo struct {
	mu     sync.Mutex
	agents map[string]Agent
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{agents: map[string]Agent{}} }

func (r *MemoryRepo) SetStatus(ctx context.Context, agentID string, status Status, at time.Time) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[agentID] = Agent{ID: agentID, Status: status, LastStatusAt: at}
	return nil
}

func (r *MemoryRepo) SetAvailable(ctx context.Context, agentID string, at time.Time) error {
	return r.SetStatus(ctx, agentID, StatusAvailable, at)
}

func (r *MemoryRepo) SetOnCall(ctx context.Context, agentID string, at time.Time) error {
	return r.SetStatus(ctx, agentID, StatusOnCall, at)
}

func (r *MemoryRepo) Get(ctx context.Context, agentID string) (Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[agentID]
	if !ok {
		return Agent{}, ErrNotFound
	}
	return a, nil
}
