package calls

import (
	"context"
	"errors"
	"time"

	"dispo-crm/pkg/logger"
)

const (
	EventCallAnswered = "call.answered"
	EventCallHangup   = "call.hangup"
)

// ProviderEvent is a decoded call-control webhook.
type ProviderEvent struct {
	ID          string
	Type        string
	LegID       string
	ClientState string
	OccurredAt  time.Time
}

type EventOutcome string

const (
	EventHandled EventOutcome = "handled"
	EventIgnored EventOutcome = "ignored"
)

// HandleEvent folds one asynchronous provider event into local state.
//
//   - call.answered carrying a consult token marks the transfer answered.
//   - call.hangup of a consulting leg fails its transfer and clears the consult leg.
//   - call.hangup of an agent leg drops the active call and frees the agent.
//
// Events arrive at least once and in any order; every update is conditional, so
// replays and late events are ignored.
func (s *Service) HandleEvent(ctx context.Context, ev ProviderEvent) (outcome EventOutcome, err error) {
	defer func() {
		label := string(outcome)
		if err != nil {
			label = string(KindOf(err))
		}
		s.metrics.ObserveProviderEvent(ev.Type, label)
	}()
	if ev.LegID == "" {
		return EventIgnored, nil
	}
	at := ev.OccurredAt.UTC()
	if ev.OccurredAt.IsZero() {
		at = s.now()
	}
	ctx = logger.With(ctx, logger.From(ctx).With("event_type", ev.Type, "leg_id", ev.LegID))

	switch ev.Type {
	case EventCallAnswered:
		return s.consultAnswered(ctx, ev, at)
	case EventCallHangup:
		return s.legHungUp(ctx, ev, at)
	default:
		return EventIgnored, nil
	}
}

func (s *Service) consultAnswered(ctx context.Context, ev ProviderEvent, at time.Time) (EventOutcome, error) {
	if ev.ClientState == "" {
		return EventIgnored, nil
	}
	tok, err := DecodeCorrelationToken(ev.ClientState)
	if err != nil {
		logger.From(ctx).Debug("answered leg carries foreign client state", "err", err)
		return EventIgnored, nil
	}
	err = s.transfers.MarkAnswered(ctx, ev.LegID, at)
	switch {
	case err == nil:
		s.pinConsultLeg(ctx, tok, ev.LegID)
		return EventHandled, nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrInvalidState):
		// The consult may still be recording, or already finished.
		logger.From(ctx).Info("consult answered for no consulting transfer", "err", err)
		return EventIgnored, nil
	default:
		return "", storageErr(err)
	}
}

// pinConsultLeg points the agent's active call back at an answered consult leg
// when the record lost it (re-registered mid-consult) but still holds the
// same customer leg.
func (s *Service) pinConsultLeg(ctx context.Context, tok CorrelationToken, consultLegID string) {
	rec, ok, err := s.registry.Get(ctx, tok.AgentID)
	if err != nil || !ok || rec.ConsultLegID == consultLegID || rec.CustomerLegID != tok.CustomerLegID {
		return
	}
	if err := s.registry.UpdateConsultLeg(ctx, tok.AgentID, consultLegID); err != nil {
		logger.From(ctx).Warn("consult leg repair failed", "agent_id", tok.AgentID, "err", err)
	}
}

func (s *Service) legHungUp(ctx context.Context, ev ProviderEvent, at time.Time) (EventOutcome, error) {
	outcome := EventIgnored

	t, ok, err := s.transfers.GetTransferByConsultLeg(ctx, ev.LegID)
	if err != nil {
		return "", storageErr(err)
	}
	if ok && t.Status == TransferConsulting {
		_, err := s.transfers.FinishTransfer(ctx, ev.LegID, TransferFailed, at)
		switch {
		case err == nil:
			outcome = EventHandled
			logger.From(ctx).Info("consult leg hung up during transfer", "agent_id", t.AgentID)
		case errors.Is(err, ErrInvalidState), errors.Is(err, ErrNotFound):
		default:
			return "", storageErr(err)
		}
	}

	agentID, deleted, err := s.calls.DeleteActiveCallByAgentLeg(ctx, ev.LegID)
	if err != nil {
		return "", storageErr(err)
	}
	if deleted {
		outcome = EventHandled
		if err := s.presence.SetAvailable(ctx, agentID, at); err != nil {
			return "", storageErr(err)
		}
		if s.history != nil {
			if err := s.history.EndCallRecord(ctx, ev.LegID, CallStatusCompleted, at); err != nil {
				logger.From(ctx).Warn("history update failed", "agent_id", agentID, "err", err)
			}
		}
	}
	return outcome, nil
}
