package calls

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Registry owns the per-agent active-call records. It never talks to the provider.
type Registry struct {
	store ActiveCallStore
	clock func() time.Time
}

func NewRegistry(store ActiveCallStore) *Registry {
	return &Registry{store: store, clock: time.Now}
}

// Create upserts the agent's active call. An existing record for the agent is replaced,
// so a newly answered call always wins over a stale one.
func (r *Registry) Create(ctx context.Context, agentID, agentLegID string) (ActiveCall, error) {
	if strings.TrimSpace(agentID) == "" || strings.TrimSpace(agentLegID) == "" {
		return ActiveCall{}, fmt.Errorf("%w: agent id and agent leg id are required", ErrInvalidInput)
	}
	now := r.clock().UTC()
	out, err := r.store.UpsertActiveCall(ctx, ActiveCall{
		AgentID:       agentID,
		AgentLegID:    agentLegID,
		HoldState:     HoldStateActive,
		PlaybackState: PlaybackIdle,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		return ActiveCall{}, storageErr(err)
	}
	return out, nil
}

func (r *Registry) Get(ctx context.Context, agentID string) (ActiveCall, bool, error) {
	if strings.TrimSpace(agentID) == "" {
		return ActiveCall{}, false, fmt.Errorf("%w: agent id is required", ErrInvalidInput)
	}
	c, ok, err := r.store.GetActiveCall(ctx, agentID)
	return c, ok, storageErr(err)
}

// FindByLeg returns the active call any of whose legs equals legID.
func (r *Registry) FindByLeg(ctx context.Context, legID string) (ActiveCall, bool, error) {
	if strings.TrimSpace(legID) == "" {
		return ActiveCall{}, false, fmt.Errorf("%w: leg id is required", ErrInvalidInput)
	}
	c, ok, err := r.store.FindActiveCallByLeg(ctx, legID)
	return c, ok, storageErr(err)
}

func (r *Registry) AttachCustomerLeg(ctx context.Context, agentID, customerLegID string) error {
	if agentID == "" || customerLegID == "" {
		return fmt.Errorf("%w: agent id and customer leg id are required", ErrInvalidInput)
	}
	return storageErr(r.store.SetCustomerLeg(ctx, agentID, customerLegID, r.clock().UTC()))
}

// UpdateConsultLeg sets the consult leg on the agent's record. StartTransfer
// records the leg in its own transaction; answered-consult events use this to
// repair a record that lost it.
func (r *Registry) UpdateConsultLeg(ctx context.Context, agentID, consultLegID string) error {
	if agentID == "" || consultLegID == "" {
		return fmt.Errorf("%w: agent id and consult leg id are required", ErrInvalidInput)
	}
	return storageErr(r.store.SetConsultLeg(ctx, agentID, consultLegID, r.clock().UTC()))
}

// ClearConsultLeg empties the consult leg only if it is still consultLegID.
func (r *Registry) ClearConsultLeg(ctx context.Context, agentID, consultLegID string) (bool, error) {
	if agentID == "" || consultLegID == "" {
		return false, fmt.Errorf("%w: agent id and consult leg id are required", ErrInvalidInput)
	}
	ok, err := r.store.ClearConsultLeg(ctx, agentID, consultLegID, r.clock().UTC())
	return ok, storageErr(err)
}

func (r *Registry) SetHoldState(ctx context.Context, agentID string, hold HoldState, playback PlaybackState) error {
	if agentID == "" {
		return fmt.Errorf("%w: agent id is required", ErrInvalidInput)
	}
	return storageErr(r.store.SetHoldState(ctx, agentID, hold, playback, r.clock().UTC()))
}

// Delete removes the agent's record. Deleting a missing record is not an error.
func (r *Registry) Delete(ctx context.Context, agentID string) error {
	if agentID == "" {
		return fmt.Errorf("%w: agent id is required", ErrInvalidInput)
	}
	_, err := r.store.DeleteActiveCall(ctx, agentID)
	return storageErr(err)
}
