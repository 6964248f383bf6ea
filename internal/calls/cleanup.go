package calls

import (
	"context"
	"errors"
	"sync"

	"dispo-crm/internal/audit"
	"dispo-crm/pkg/logger"

	"golang.org/x/sync/errgroup"
)

const OpCleanup = "cleanup"

// CleanupResult describes a torn-down call. FailedHangups lists legs the provider
// refused to hang up; they are usually already gone.
type CleanupResult struct {
	Call          ActiveCall `json:"call"`
	FailedHangups []string   `json:"failed_hangups,omitempty"`
}

// CancelActiveCall hangs up every leg of the agent's call and resets local state.
//
// Hangups are best-effort and run concurrently. The local steps always run: the record
// is deleted, the agent is made available, and call history is marked canceled.
func (s *Service) CancelActiveCall(ctx context.Context, agentID string) (res CleanupResult, err error) {
	defer func() { s.finish(OpCleanup, err) }()
	if agentID == "" {
		return CleanupResult{}, ErrInvalidInput
	}
	ctx = logger.With(ctx, logger.From(ctx).With("agent_id", agentID))

	err = s.withAgentLock(ctx, agentID, func(ctx context.Context) error {
		rec, ok, err := s.calls.GetActiveCall(ctx, agentID)
		if err != nil {
			return storageErr(err)
		}
		if !ok {
			return ErrNoActiveCall
		}
		res.Call = rec

		return s.runSteps(ctx, OpCleanup, []step{
			{name: "hangup_legs", policy: BestEffort, run: func(ctx context.Context) error {
				res.FailedHangups = s.hangupAll(ctx, rec.AgentLegID, rec.CustomerLegID, rec.ConsultLegID)
				if len(res.FailedHangups) > 0 {
					return errors.New("one or more leg hangups failed")
				}
				return nil
			}},
			{name: "delete_active_call", policy: Abort, run: func(ctx context.Context) error {
				_, err := s.calls.DeleteActiveCall(ctx, agentID)
				return storageErr(err)
			}},
			{name: "cancel_transfer_attempt", policy: BestEffort, skip: func() bool { return rec.ConsultLegID == "" }, run: func(ctx context.Context) error {
				_, err := s.transfers.FinishTransfer(ctx, rec.ConsultLegID, TransferCanceled, s.now())
				if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidState) {
					return nil
				}
				return err
			}},
			{name: "reset_presence", policy: Deferred, run: func(ctx context.Context) error {
				return storageErr(s.presence.SetAvailable(ctx, agentID, s.now()))
			}},
			{name: "mark_history_canceled", policy: Deferred, skip: func() bool { return s.history == nil || rec.AgentLegID == "" }, run: func(ctx context.Context) error {
				return storageErr(s.history.EndCallRecord(ctx, rec.AgentLegID, CallStatusCanceled, s.now()))
			}},
		})
	})
	if err != nil {
		return CleanupResult{}, err
	}

	s.record(ctx, audit.Event{
		AgentID:       agentID,
		Type:          audit.EventCallReset,
		CustomerLegID: res.Call.CustomerLegID,
		AgentLegID:    res.Call.AgentLegID,
		ConsultLegID:  res.Call.ConsultLegID,
		Message:       "active call canceled",
		Metadata:      cleanupMetadata(res.FailedHangups),
	})
	return res, nil
}

func cleanupMetadata(failed []string) string {
	if len(failed) == 0 {
		return ""
	}
	return audit.Metadata(map[string]any{"failed_hangups": failed})
}

// hangupAll hangs up the non-empty legs concurrently and returns the ones that failed.
func (s *Service) hangupAll(ctx context.Context, legs ...string) []string {
	var (
		mu     sync.Mutex
		failed []string
	)
	g, gctx := errgroup.WithContext(context.WithoutCancel(ctx))
	for _, leg := range legs {
		if leg == "" {
			continue
		}
		g.Go(func() error {
			if err := s.provider.Hangup(gctx, leg); err != nil {
				logger.From(ctx).Warn("leg hangup failed", "leg_id", leg, "err", err)
				mu.Lock()
				failed = append(failed, leg)
				mu.Unlock()
			}
			// Never cancel sibling hangups.
			return nil
		})
	}
	_ = g.Wait()
	return failed
}
