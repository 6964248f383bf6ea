package calls

import (
	"context"
	"fmt"
	"strings"

	"dispo-crm/internal/audit"
	"dispo-crm/internal/callcontrol"
	"dispo-crm/pkg/logger"
)

const (
	OpTransferStart    = "attended_transfer_start"
	OpTransferBridge   = "attended_transfer_bridge"
	OpTransferComplete = "attended_transfer_complete"
	OpTransferCancel   = "attended_transfer_cancel"
)

type StartTransferRequest struct {
	AgentID       string
	CustomerLegID string
	AgentLegID    string
	// Destination is dialed as given.
	Destination string
}

// ConsultRequest addresses an in-flight attended transfer. Leg ids that are left empty
// are taken from the recorded attempt; ids that are set must match it.
type ConsultRequest struct {
	AgentID       string
	CustomerLegID string
	AgentLegID    string
	ConsultLegID  string
}

// StartTransfer puts the customer on hold music and dials the consult destination.
//
// Steps: start hold music, dial the consult leg with a correlation token, record the
// attempt together with the consult leg on the agent's active call. A dial failure
// leaves hold music running; the caller cancels to recover.
func (s *Service) StartTransfer(ctx context.Context, req StartTransferRequest) (out TransferAttempt, err error) {
	defer func() { s.finish(OpTransferStart, err) }()

	if req.AgentID == "" || req.CustomerLegID == "" || req.AgentLegID == "" {
		return TransferAttempt{}, fmt.Errorf("%w: agent id, customer leg id and agent leg id are required", ErrInvalidInput)
	}
	if strings.TrimSpace(req.Destination) == "" {
		return TransferAttempt{}, fmt.Errorf("%w: destination is required", ErrInvalidInput)
	}
	ctx = logger.With(ctx, logger.From(ctx).With("agent_id", req.AgentID, "leg_id", req.CustomerLegID))

	err = s.withAgentLock(ctx, req.AgentID, func(ctx context.Context) error {
		rec, ok, err := s.calls.GetActiveCall(ctx, req.AgentID)
		if err != nil {
			return storageErr(err)
		}
		if !ok {
			return ErrNoActiveCall
		}
		if rec.AgentLegID != req.AgentLegID {
			return fmt.Errorf("%w: agent leg %s is not the agent's active call", ErrInvalidState, req.AgentLegID)
		}
		if rec.ConsultLegID != "" {
			return fmt.Errorf("%w: consult leg %s already in progress", ErrInvalidState, rec.ConsultLegID)
		}

		playLeg, target := s.playbackTarget(req.CustomerLegID, req.AgentLegID)
		var consultLegID string
		attempt := TransferAttempt{
			ID:            s.newID(),
			AgentID:       req.AgentID,
			CallControlID: req.CustomerLegID,
			AgentLegID:    req.AgentLegID,
			TransferType:  TransferAttended,
			Destination:   strings.TrimSpace(req.Destination),
			Status:        TransferConsulting,
		}

		err = s.runSteps(ctx, OpTransferStart, []step{
			{name: "start_hold_music", policy: Abort, skip: func() bool { return s.opts.HoldMusicURL == "" }, run: func(ctx context.Context) error {
				return providerErr(s.provider.PlaybackStart(ctx, playLeg, callcontrol.PlaybackRequest{
					AudioURL:   s.opts.HoldMusicURL,
					Loop:       callcontrol.LoopInfinity,
					TargetLegs: target,
				}))
			}},
			{name: "dial_consult", policy: Abort, run: func(ctx context.Context) error {
				if s.opts.ConnectionID == "" || s.opts.CallerID == "" {
					return fmt.Errorf("%w: call-control connection id and caller id are required to dial", ErrMissingConfiguration)
				}
				token, err := NewConsultToken(req.AgentID, req.CustomerLegID, req.AgentLegID).Encode()
				if err != nil {
					return err
				}
				leg, err := s.provider.Dial(ctx, callcontrol.DialRequest{
					ConnectionID: s.opts.ConnectionID,
					To:           attempt.Destination,
					From:         s.opts.CallerID,
					ClientState:  token,
				})
				if err != nil {
					return fmt.Errorf("%w: %w", ErrProviderDialFailed, err)
				}
				consultLegID = leg
				return nil
			}},
			{name: "record_attempt", policy: Abort, run: func(ctx context.Context) error {
				attempt.ConsultLegID = consultLegID
				attempt.InitiatedAt = s.now()
				return storageErr(s.transfers.StartConsult(ctx, attempt))
			}},
			{name: "attach_customer_leg", policy: BestEffort, skip: func() bool { return rec.CustomerLegID == req.CustomerLegID }, run: func(ctx context.Context) error {
				return s.registry.AttachCustomerLeg(ctx, req.AgentID, req.CustomerLegID)
			}},
		})
		if err != nil {
			if FailedStep(err) == "record_attempt" {
				// Nothing references the dialed leg; drop it rather than leave it ringing.
				if herr := s.provider.Hangup(ctx, consultLegID); herr != nil {
					logger.From(ctx).Warn("orphaned consult leg hangup failed", "consult_leg_id", consultLegID, "err", herr)
				}
			}
			return err
		}
		out = attempt
		return nil
	})
	if err != nil {
		return TransferAttempt{}, err
	}

	s.record(ctx, audit.Event{
		AgentID:       out.AgentID,
		Type:          audit.EventTransferStarted,
		CustomerLegID: out.CallControlID,
		AgentLegID:    out.AgentLegID,
		ConsultLegID:  out.ConsultLegID,
		Destination:   out.Destination,
		Message:       "attended transfer started",
	})
	return out, nil
}

// loadConsult fetches the caller's consulting attempt and fills request legs from it.
func (s *Service) loadConsult(ctx context.Context, req *ConsultRequest) (TransferAttempt, error) {
	if req.AgentID == "" || req.ConsultLegID == "" {
		return TransferAttempt{}, fmt.Errorf("%w: agent id and consult leg id are required", ErrInvalidInput)
	}
	t, ok, err := s.transfers.GetTransferByConsultLeg(ctx, req.ConsultLegID)
	if err != nil {
		return TransferAttempt{}, storageErr(err)
	}
	if !ok || t.AgentID != req.AgentID {
		return TransferAttempt{}, fmt.Errorf("%w: no transfer for consult leg %s", ErrNotFound, req.ConsultLegID)
	}
	if t.Status.Terminal() {
		return TransferAttempt{}, fmt.Errorf("%w: transfer is already %s", ErrInvalidState, t.Status)
	}
	if err := matchLeg(&req.CustomerLegID, t.CallControlID, "customer"); err != nil {
		return TransferAttempt{}, err
	}
	if err := matchLeg(&req.AgentLegID, t.AgentLegID, "agent"); err != nil {
		return TransferAttempt{}, err
	}
	return t, nil
}

func matchLeg(got *string, recorded, role string) error {
	if *got == "" {
		*got = recorded
		return nil
	}
	if recorded != "" && *got != recorded {
		return fmt.Errorf("%w: %s leg %s does not belong to this transfer", ErrInvalidInput, role, *got)
	}
	return nil
}

// BridgeAgentToConsult connects the agent with the consult leg so they can talk privately
// while the customer listens to hold music.
func (s *Service) BridgeAgentToConsult(ctx context.Context, req ConsultRequest) (out TransferAttempt, err error) {
	defer func() { s.finish(OpTransferBridge, err) }()
	ctx = logger.With(ctx, logger.From(ctx).With("agent_id", req.AgentID, "leg_id", req.ConsultLegID))

	err = s.withAgentLock(ctx, req.AgentID, func(ctx context.Context) error {
		t, err := s.loadConsult(ctx, &req)
		if err != nil {
			return err
		}
		err = s.runSteps(ctx, OpTransferBridge, []step{
			{name: "bridge_agent_to_consult", policy: Abort, run: func(ctx context.Context) error {
				return providerErr(s.provider.Bridge(ctx, req.AgentLegID, req.ConsultLegID))
			}},
			{name: "mark_agent_bridged", policy: Abort, run: func(ctx context.Context) error {
				now := s.now()
				if err := s.transfers.MarkAgentBridged(ctx, req.ConsultLegID, now); err != nil {
					return storageErr(err)
				}
				if t.AgentBridgedAt == nil {
					t.AgentBridgedAt = &now
				}
				return nil
			}},
		})
		out = t
		return err
	})
	if err != nil {
		return TransferAttempt{}, err
	}
	return out, nil
}

// CompleteTransfer hands the customer to the consult party and drops the agent.
//
// The customer is bridged to the consult leg before the agent leg is hung up, so the
// customer is never left alone. If the bridge fails nothing is hung up and the attempt
// stays consulting. Only a consult-active attempt can complete.
func (s *Service) CompleteTransfer(ctx context.Context, req ConsultRequest) (out TransferAttempt, err error) {
	defer func() { s.finish(OpTransferComplete, err) }()
	ctx = logger.With(ctx, logger.From(ctx).With("agent_id", req.AgentID, "leg_id", req.ConsultLegID))

	err = s.withAgentLock(ctx, req.AgentID, func(ctx context.Context) error {
		t, err := s.loadConsult(ctx, &req)
		if err != nil {
			return err
		}
		if t.Phase() != PhaseConsultActive {
			return fmt.Errorf("%w: consult leg has not been answered", ErrInvalidState)
		}
		if req.CustomerLegID == "" || req.AgentLegID == "" {
			return fmt.Errorf("%w: customer and agent legs are required", ErrInvalidInput)
		}

		err = s.runSteps(ctx, OpTransferComplete, []step{
			{name: "stop_hold_music", policy: BestEffort, skip: func() bool { return s.opts.HoldPlaybackLeg != PlaybackOnCustomer || s.opts.HoldMusicURL == "" }, run: func(ctx context.Context) error {
				return providerErr(s.provider.PlaybackStop(ctx, req.CustomerLegID))
			}},
			{name: "bridge_customer_to_consult", policy: Abort, run: func(ctx context.Context) error {
				return providerErr(s.provider.Bridge(ctx, req.CustomerLegID, req.ConsultLegID))
			}},
			{name: "hangup_agent_leg", policy: Abort, run: func(ctx context.Context) error {
				return providerErr(s.provider.Hangup(ctx, req.AgentLegID))
			}},
			{name: "finish_attempt", policy: Abort, run: func(ctx context.Context) error {
				done, err := s.transfers.FinishTransfer(ctx, req.ConsultLegID, TransferCompleted, s.now())
				if err != nil {
					return storageErr(err)
				}
				t = done
				return nil
			}},
			{name: "release_agent", policy: BestEffort, run: func(ctx context.Context) error {
				return s.releaseAgentLeg(ctx, req.AgentLegID)
			}},
		})
		out = t
		return err
	})
	if err != nil {
		return TransferAttempt{}, err
	}

	s.record(ctx, audit.Event{
		AgentID:       out.AgentID,
		Type:          audit.EventTransferCompleted,
		CustomerLegID: out.CallControlID,
		AgentLegID:    out.AgentLegID,
		ConsultLegID:  out.ConsultLegID,
		Destination:   out.Destination,
		Message:       "attended transfer completed",
	})
	return out, nil
}

// CancelTransfer abandons the consult and reconnects the customer with the agent.
//
// Works in either consult phase, and without a recorded attempt when the consult dial
// never succeeded (ConsultLegID empty). If the re-bridge fails the consult leg is not hung up.
func (s *Service) CancelTransfer(ctx context.Context, req ConsultRequest) (out TransferAttempt, err error) {
	defer func() { s.finish(OpTransferCancel, err) }()
	if req.AgentID == "" {
		return TransferAttempt{}, fmt.Errorf("%w: agent id is required", ErrInvalidInput)
	}
	ctx = logger.With(ctx, logger.From(ctx).With("agent_id", req.AgentID, "leg_id", req.CustomerLegID))

	err = s.withAgentLock(ctx, req.AgentID, func(ctx context.Context) error {
		var (
			t     TransferAttempt
			found bool
		)
		if req.ConsultLegID != "" {
			recorded, ok, err := s.transfers.GetTransferByConsultLeg(ctx, req.ConsultLegID)
			if err != nil {
				return storageErr(err)
			}
			switch {
			case !ok:
				logger.From(ctx).Warn("cancel without a recorded transfer attempt", "consult_leg_id", req.ConsultLegID)
			case recorded.AgentID != req.AgentID:
				// Another agent's consult leg is never touched.
				return fmt.Errorf("%w: no transfer for consult leg %s", ErrNotFound, req.ConsultLegID)
			default:
				if t, err = s.loadConsult(ctx, &req); err != nil {
					return err
				}
				found = true
			}
		}
		if req.CustomerLegID == "" || req.AgentLegID == "" {
			return fmt.Errorf("%w: customer and agent legs are required", ErrInvalidInput)
		}
		playLeg, _ := s.playbackTarget(req.CustomerLegID, req.AgentLegID)

		err := s.runSteps(ctx, OpTransferCancel, []step{
			{name: "stop_hold_music", policy: Abort, skip: func() bool { return s.opts.HoldMusicURL == "" }, run: func(ctx context.Context) error {
				return providerErr(s.provider.PlaybackStop(ctx, playLeg))
			}},
			{name: "rebridge_customer_to_agent", policy: Abort, run: func(ctx context.Context) error {
				return providerErr(s.provider.Bridge(ctx, req.CustomerLegID, req.AgentLegID))
			}},
			{name: "hangup_consult_leg", policy: Abort, skip: func() bool { return req.ConsultLegID == "" }, run: func(ctx context.Context) error {
				return providerErr(s.provider.Hangup(ctx, req.ConsultLegID))
			}},
			{name: "finish_attempt", policy: Abort, skip: func() bool { return !found }, run: func(ctx context.Context) error {
				done, err := s.transfers.FinishTransfer(ctx, req.ConsultLegID, TransferCanceled, s.now())
				if err != nil {
					return storageErr(err)
				}
				t = done
				return nil
			}},
			{name: "clear_consult_leg", policy: BestEffort, skip: func() bool { return found || req.ConsultLegID == "" }, run: func(ctx context.Context) error {
				_, err := s.registry.ClearConsultLeg(ctx, req.AgentID, req.ConsultLegID)
				return err
			}},
		})
		out = t
		return err
	})
	if err != nil {
		return TransferAttempt{}, err
	}

	s.record(ctx, audit.Event{
		AgentID:       req.AgentID,
		Type:          audit.EventTransferCanceled,
		CustomerLegID: req.CustomerLegID,
		AgentLegID:    req.AgentLegID,
		ConsultLegID:  req.ConsultLegID,
		Message:       "attended transfer canceled",
	})
	return out, nil
}

// GetTransfer returns the agent's attempt for a consult leg.
func (s *Service) GetTransfer(ctx context.Context, agentID, consultLegID string) (TransferAttempt, error) {
	if agentID == "" || consultLegID == "" {
		return TransferAttempt{}, fmt.Errorf("%w: agent id and consult leg id are required", ErrInvalidInput)
	}
	t, ok, err := s.transfers.GetTransferByConsultLeg(ctx, consultLegID)
	if err != nil {
		return TransferAttempt{}, storageErr(err)
	}
	if !ok || t.AgentID != agentID {
		return TransferAttempt{}, ErrNotFound
	}
	return t, nil
}

// releaseAgentLeg drops the active call owned by agentLegID and makes its agent available.
func (s *Service) releaseAgentLeg(ctx context.Context, agentLegID string) error {
	agentID, deleted, err := s.calls.DeleteActiveCallByAgentLeg(ctx, agentLegID)
	if err != nil {
		return storageErr(err)
	}
	if !deleted {
		return nil
	}
	now := s.now()
	if s.history != nil {
		if err := s.history.EndCallRecord(ctx, agentLegID, CallStatusCompleted, now); err != nil {
			logger.From(ctx).Warn("history update failed", "agent_id", agentID, "err", err)
		}
	}
	return storageErr(s.presence.SetAvailable(ctx, agentID, now))
}
