package calls

import (
	"context"
	"fmt"
	"strings"

	"dispo-crm/internal/callcontrol"
	"dispo-crm/pkg/logger"
)

const OpConference = "conference"

type ConferenceCommand string

const (
	ConferenceJoin   ConferenceCommand = "join"
	ConferenceLeave  ConferenceCommand = "leave"
	ConferenceHold   ConferenceCommand = "hold"
	ConferenceUnhold ConferenceCommand = "unhold"
	ConferenceMute   ConferenceCommand = "mute"
	ConferenceUnmute ConferenceCommand = "unmute"
)

// ParseConferenceCommand rejects anything outside the known command set.
func ParseConferenceCommand(s string) (ConferenceCommand, error) {
	switch c := ConferenceCommand(strings.ToLower(strings.TrimSpace(s))); c {
	case ConferenceJoin, ConferenceLeave, ConferenceHold, ConferenceUnhold, ConferenceMute, ConferenceUnmute:
		return c, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidCommand, s)
	}
}

var supervisorRoles = map[string]bool{"": true, "barge": true, "monitor": true, "whisper": true, "none": true}

type ConferenceRequest struct {
	LegID   string
	Command string
	// ConferenceID names the conference to join, or the one whose participants are changed.
	// Not needed for leave.
	ConferenceID string

	EndConferenceOnExit bool
	Mute                bool
	SupervisorRole      string
	HoldMusicURL        string
}

type ConferenceResult struct {
	LegID        string            `json:"leg_id"`
	Command      ConferenceCommand `json:"command"`
	ConferenceID string            `json:"conference_id,omitempty"`
}

// Conference dispatches one conference command to the provider. Unknown commands fail
// before any request is sent.
func (s *Service) Conference(ctx context.Context, req ConferenceRequest) (res ConferenceResult, err error) {
	defer func() { s.finish(OpConference, err) }()

	cmd, err := ParseConferenceCommand(req.Command)
	if err != nil {
		return ConferenceResult{}, err
	}
	if strings.TrimSpace(req.LegID) == "" {
		return ConferenceResult{}, fmt.Errorf("%w: leg id is required", ErrInvalidInput)
	}
	if cmd != ConferenceLeave && strings.TrimSpace(req.ConferenceID) == "" {
		return ConferenceResult{}, fmt.Errorf("%w: conference id is required for %s", ErrInvalidInput, cmd)
	}
	if !supervisorRoles[req.SupervisorRole] {
		return ConferenceResult{}, fmt.Errorf("%w: unknown supervisor role %q", ErrInvalidInput, req.SupervisorRole)
	}
	ctx = logger.With(ctx, logger.From(ctx).With("leg_id", req.LegID, "conference_id", req.ConferenceID))

	err = s.runSteps(ctx, OpConference, []step{{name: string(cmd), policy: Abort, run: func(ctx context.Context) error {
		switch cmd {
		case ConferenceJoin:
			music := req.HoldMusicURL
			if music == "" {
				music = s.opts.HoldMusicURL
			}
			return providerErr(s.provider.JoinConference(ctx, req.LegID, callcontrol.JoinConferenceRequest{
				Name:                   req.ConferenceID,
				HoldAudioURL:           music,
				StartConferenceOnEnter: true,
				EndConferenceOnExit:    req.EndConferenceOnExit,
				Mute:                   req.Mute,
				SupervisorRole:         req.SupervisorRole,
			}))
		case ConferenceLeave:
			return providerErr(s.provider.LeaveConference(ctx, req.LegID))
		default:
			return providerErr(s.provider.ConferenceParticipantAction(ctx, req.ConferenceID, callcontrol.ConferenceAction(cmd), req.LegID))
		}
	}}})
	if err != nil {
		return ConferenceResult{}, err
	}
	return ConferenceResult{LegID: req.LegID, Command: cmd, ConferenceID: req.ConferenceID}, nil
}

// GetConference returns conference metadata from the provider.
func (s *Service) GetConference(ctx context.Context, conferenceID string) (callcontrol.Conference, error) {
	if strings.TrimSpace(conferenceID) == "" {
		return callcontrol.Conference{}, fmt.Errorf("%w: conference id is required", ErrInvalidInput)
	}
	c, err := s.provider.GetConference(ctx, conferenceID)
	if err != nil {
		return callcontrol.Conference{}, providerErr(err)
	}
	return c, nil
}
