package calls

import (
	"context"
	"fmt"
	"strings"

	"dispo-crm/internal/callcontrol"
	"dispo-crm/pkg/logger"
)

const (
	OpHold   = "hold"
	OpResume = "resume"
)

type HoldRequest struct {
	// AgentID is optional. When set, the agent's active-call record tracks the hold state.
	AgentID string
	LegID   string
	// HoldMusicURL overrides the configured hold music for this request.
	HoldMusicURL string
}

type ResumeRequest struct {
	AgentID string
	LegID   string
}

type HoldResult struct {
	LegID     string        `json:"leg_id"`
	HoldState HoldState     `json:"hold_state"`
	Playback  PlaybackState `json:"playback_state"`
}

// Hold puts the leg on hold, then starts looping hold music toward the opposite side.
// A playback failure does not undo the hold; the error names the step.
func (s *Service) Hold(ctx context.Context, req HoldRequest) (res HoldResult, err error) {
	defer func() { s.finish(OpHold, err) }()

	if strings.TrimSpace(req.LegID) == "" {
		return HoldResult{}, fmt.Errorf("%w: leg id is required", ErrInvalidInput)
	}
	musicURL := req.HoldMusicURL
	if musicURL == "" {
		musicURL = s.opts.HoldMusicURL
	}
	ctx = logger.With(ctx, logger.From(ctx).With("agent_id", req.AgentID, "leg_id", req.LegID))

	res = HoldResult{LegID: req.LegID, HoldState: HoldStateHeld, Playback: PlaybackIdle}
	if musicURL != "" {
		res.Playback = PlaybackPlaying
	}

	err = s.withAgentLock(ctx, req.AgentID, func(ctx context.Context) error {
		return s.runSteps(ctx, OpHold, []step{
			{name: "hold", policy: Abort, run: func(ctx context.Context) error {
				return providerErr(s.provider.Hold(ctx, req.LegID))
			}},
			{name: "start_hold_music", policy: Abort, skip: func() bool { return musicURL == "" }, run: func(ctx context.Context) error {
				return providerErr(s.provider.PlaybackStart(ctx, req.LegID, callcontrol.PlaybackRequest{
					AudioURL:   musicURL,
					Loop:       callcontrol.LoopInfinity,
					TargetLegs: callcontrol.TargetOpposite,
				}))
			}},
			{name: "record_hold_state", policy: Abort, skip: func() bool { return req.AgentID == "" }, run: func(ctx context.Context) error {
				return s.registry.SetHoldState(ctx, req.AgentID, res.HoldState, res.Playback)
			}},
		})
	})
	if err != nil {
		return HoldResult{}, err
	}
	return res, nil
}

// Resume stops hold music, then takes the leg off hold. The stop is always
// issued first, but a failure there (no playback running, for one) does not
// keep the leg on hold.
func (s *Service) Resume(ctx context.Context, req ResumeRequest) (res HoldResult, err error) {
	defer func() { s.finish(OpResume, err) }()

	if strings.TrimSpace(req.LegID) == "" {
		return HoldResult{}, fmt.Errorf("%w: leg id is required", ErrInvalidInput)
	}
	ctx = logger.With(ctx, logger.From(ctx).With("agent_id", req.AgentID, "leg_id", req.LegID))

	err = s.withAgentLock(ctx, req.AgentID, func(ctx context.Context) error {
		return s.runSteps(ctx, OpResume, []step{
			{name: "stop_hold_music", policy: BestEffort, run: func(ctx context.Context) error {
				return providerErr(s.provider.PlaybackStop(ctx, req.LegID))
			}},
			{name: "unhold", policy: Abort, run: func(ctx context.Context) error {
				return providerErr(s.provider.Unhold(ctx, req.LegID))
			}},
			{name: "record_hold_state", policy: Abort, skip: func() bool { return req.AgentID == "" }, run: func(ctx context.Context) error {
				return s.registry.SetHoldState(ctx, req.AgentID, HoldStateActive, PlaybackIdle)
			}},
		})
	})
	if err != nil {
		return HoldResult{}, err
	}
	return HoldResult{LegID: req.LegID, HoldState: HoldStateActive, Playback: PlaybackIdle}, nil
}
