package calls

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"dispo-crm/internal/audit"
	"dispo-crm/pkg/logger"
)

const OpBlindTransfer = "blind_transfer"

var (
	e164Pattern      = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)
	sipURIPattern    = regexp.MustCompile(`^sips?:[^\s@:]+@[A-Za-z0-9.\-]+(:\d{1,5})?(;[^\s]*)?$`)
	extensionPattern = regexp.MustCompile(`^\d{3,5}$`)
)

// NormalizeDestination validates a transfer destination. E.164 numbers and SIP URIs pass
// through unchanged; 3-5 digit extensions become sip:<ext>@<sipDomain>.
func NormalizeDestination(dest, sipDomain string) (string, error) {
	d := strings.TrimSpace(dest)
	switch {
	case e164Pattern.MatchString(d), sipURIPattern.MatchString(d):
		return d, nil
	case extensionPattern.MatchString(d):
		if sipDomain == "" {
			return "", fmt.Errorf("%w: SIP domain is required to dial extension %s", ErrMissingConfiguration, d)
		}
		return "sip:" + d + "@" + sipDomain, nil
	default:
		return "", ErrInvalidDestination
	}
}

type BlindTransferRequest struct {
	AgentID     string
	LegID       string
	Destination string
}

type BlindTransferResult struct {
	LegID       string         `json:"leg_id"`
	Destination string         `json:"destination"`
	Status      TransferStatus `json:"status"`
}

// BlindTransfer redirects the leg to a validated destination with a single provider action.
// The active-call registry is left untouched; the leg's hangup event cleans up later.
func (s *Service) BlindTransfer(ctx context.Context, req BlindTransferRequest) (res BlindTransferResult, err error) {
	defer func() { s.finish(OpBlindTransfer, err) }()

	if strings.TrimSpace(req.LegID) == "" {
		return BlindTransferResult{}, fmt.Errorf("%w: leg id is required", ErrInvalidInput)
	}
	dest, err := NormalizeDestination(req.Destination, s.opts.SIPDomain)
	if err != nil {
		return BlindTransferResult{}, err
	}
	ctx = logger.With(ctx, logger.From(ctx).With("agent_id", req.AgentID, "leg_id", req.LegID))

	err = s.runSteps(ctx, OpBlindTransfer, []step{
		{name: "transfer", policy: Abort, run: func(ctx context.Context) error {
			return providerErr(s.provider.Transfer(ctx, req.LegID, dest))
		}},
		{name: "record_attempt", policy: BestEffort, skip: func() bool { return req.AgentID == "" }, run: func(ctx context.Context) error {
			now := s.now()
			return s.transfers.RecordTransfer(ctx, TransferAttempt{
				ID:            s.newID(),
				AgentID:       req.AgentID,
				CallControlID: req.LegID,
				TransferType:  TransferBlind,
				Destination:   dest,
				Status:        TransferCompleted,
				InitiatedAt:   now,
				CompletedAt:   &now,
			})
		}},
	})
	if err != nil {
		return BlindTransferResult{}, err
	}

	if req.AgentID != "" {
		s.record(ctx, audit.Event{
			AgentID:       req.AgentID,
			Type:          audit.EventBlindTransfer,
			CustomerLegID: req.LegID,
			Destination:   dest,
			Message:       "blind transfer",
		})
	}
	return BlindTransferResult{LegID: req.LegID, Destination: dest, Status: TransferCompleted}, nil
}
