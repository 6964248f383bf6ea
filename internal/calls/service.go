package calls

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dispo-crm/internal/audit"
	"dispo-crm/internal/callcontrol"
	"dispo-crm/internal/metrics"
	"dispo-crm/pkg/logger"

	"github.com/google/uuid"
)

// Options carries the provider-facing settings the operations need.
type Options struct {
	// ConnectionID and CallerID are required for consult dials.
	ConnectionID string
	CallerID     string

	HoldMusicURL string
	// HoldPlaybackLeg selects where hold music is started: "agent" plays on the agent leg
	// toward its opposite, "customer" plays on the customer leg itself.
	HoldPlaybackLeg string

	// SIPDomain turns short extensions into SIP URIs for blind transfers.
	SIPDomain string

	LockTTL time.Duration
}

const (
	PlaybackOnAgent    = "agent"
	PlaybackOnCustomer = "customer"
)

// Deps are the collaborators of Service. Provider, ActiveCalls, Transfers and Presence are required.
type Deps struct {
	Provider    Provider
	ActiveCalls ActiveCallStore
	Transfers   TransferStore
	History     HistoryStore
	Presence    Presence
	Audit       Auditor
	Locker      Locker
	Metrics     *metrics.Metrics
}

// Service runs the call-control operations: hold/resume, blind and attended transfers,
// conference commands, cleanup, and provider event handling.
type Service struct {
	provider  Provider
	registry  *Registry
	calls     ActiveCallStore
	transfers TransferStore
	history   HistoryStore
	presence  Presence
	audit     Auditor
	locker    Locker
	metrics   *metrics.Metrics

	opts  Options
	clock func() time.Time
	newID func() string
}

func NewService(d Deps, opts Options) (*Service, error) {
	if d.Provider == nil || d.ActiveCalls == nil || d.Transfers == nil || d.Presence == nil {
		return nil, errors.New("calls: provider, active call store, transfer store and presence are required")
	}
	if opts.HoldPlaybackLeg == "" {
		opts.HoldPlaybackLeg = PlaybackOnAgent
	}
	if opts.HoldPlaybackLeg != PlaybackOnAgent && opts.HoldPlaybackLeg != PlaybackOnCustomer {
		return nil, fmt.Errorf("calls: unknown hold playback leg %q", opts.HoldPlaybackLeg)
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 15 * time.Second
	}
	return &Service{
		provider:  d.Provider,
		registry:  NewRegistry(d.ActiveCalls),
		calls:     d.ActiveCalls,
		transfers: d.Transfers,
		history:   d.History,
		presence:  d.Presence,
		audit:     d.Audit,
		locker:    d.Locker,
		metrics:   d.Metrics,
		opts:      opts,
		clock:     time.Now,
		newID:     uuid.NewString,
	}, nil
}

// Registry exposes the active-call registry the service writes through.
func (s *Service) Registry() *Registry { return s.registry }

func (s *Service) now() time.Time { return s.clock().UTC() }

// withAgentLock runs fn while holding the agent's operation lock.
func (s *Service) withAgentLock(ctx context.Context, agentID string, fn func(context.Context) error) error {
	if s.locker == nil || agentID == "" {
		return fn(ctx)
	}
	release, ok, err := s.locker.Lock(ctx, "agent-call:"+agentID, s.opts.LockTTL)
	if err != nil {
		return fmt.Errorf("%w: agent lock: %w", ErrStorage, err)
	}
	if !ok {
		return ErrAgentBusy
	}
	defer func() {
		// The caller's context may already be done; release on a fresh one.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := release(rctx); err != nil {
			logger.From(ctx).Warn("agent lock release failed", "agent_id", agentID, "err", err)
		}
	}()
	return fn(ctx)
}

// playbackTarget returns the leg that carries hold music and the target_legs value for it.
func (s *Service) playbackTarget(customerLegID, agentLegID string) (string, string) {
	if s.opts.HoldPlaybackLeg == PlaybackOnCustomer {
		return customerLegID, callcontrol.TargetSelf
	}
	return agentLegID, callcontrol.TargetOpposite
}

func (s *Service) record(ctx context.Context, e audit.Event) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Append(ctx, e); err != nil {
		logger.From(ctx).Warn("audit append failed", "type", e.Type, "agent_id", e.AgentID, "err", err)
	}
}
