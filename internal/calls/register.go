package calls

import (
	"context"
	"fmt"
	"strings"

	"dispo-crm/pkg/logger"
)

const OpRegister = "register_call"

// RegisterCallRequest announces a call the agent has just been connected to.
type RegisterCallRequest struct {
	AgentID    string
	AgentLegID string
	// CustomerLegID may be unknown at connect time and attached later.
	CustomerLegID string
	From          string
	To            string
}

// RegisterCall creates the agent's active-call record, replacing any stale one,
// marks the agent on a call and opens a history row for the agent leg.
func (s *Service) RegisterCall(ctx context.Context, req RegisterCallRequest) (out ActiveCall, err error) {
	defer func() { s.finish(OpRegister, err) }()

	if strings.TrimSpace(req.AgentID) == "" || strings.TrimSpace(req.AgentLegID) == "" {
		return ActiveCall{}, fmt.Errorf("%w: agent id and agent leg id are required", ErrInvalidInput)
	}
	ctx = logger.With(ctx, logger.From(ctx).With("agent_id", req.AgentID, "agent_leg_id", req.AgentLegID))

	err = s.withAgentLock(ctx, req.AgentID, func(ctx context.Context) error {
		return s.runSteps(ctx, OpRegister, []step{
			{name: "create_record", policy: Abort, run: func(ctx context.Context) error {
				c, err := s.registry.Create(ctx, req.AgentID, req.AgentLegID)
				out = c
				return err
			}},
			{name: "attach_customer_leg", policy: Abort, skip: func() bool { return req.CustomerLegID == "" }, run: func(ctx context.Context) error {
				if err := s.registry.AttachCustomerLeg(ctx, req.AgentID, req.CustomerLegID); err != nil {
					return err
				}
				out.CustomerLegID = req.CustomerLegID
				return nil
			}},
			{name: "mark_on_call", policy: BestEffort, run: func(ctx context.Context) error {
				return storageErr(s.presence.SetOnCall(ctx, req.AgentID, s.now()))
			}},
			{name: "open_history", policy: BestEffort, skip: func() bool { return s.history == nil }, run: func(ctx context.Context) error {
				now := s.now()
				return storageErr(s.history.UpsertCallRecord(ctx, CallRecord{
					ID:            s.newID(),
					AgentID:       req.AgentID,
					ProviderLegID: req.AgentLegID,
					From:          req.From,
					To:            req.To,
					Status:        CallStatusInProgress,
					StartedAt:     now,
					UpdatedAt:     now,
				}))
			}},
		})
	})
	if err != nil {
		return ActiveCall{}, err
	}
	return out, nil
}
