package reporting

import (
	"context"
	"errors"
	"time"

	"dispo-crm/internal/calls"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository abstracts data access for reporting. calls.PostgresRepo and calls.MemoryRepo satisfy it.
type Repository interface {
	ListTransfersByAgent(ctx context.Context, agentID string, from, to time.Time) ([]calls.TransferAttempt, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func (s *Service) TransfersSummary(ctx context.Context, req TransfersSummaryRequest) (TransfersSummary, error) {
	if req.AgentID == "" {
		return TransfersSummary{}, ErrInvalidRequest
	}
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return TransfersSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return TransfersSummary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.ListTransfersByAgent(ctx, req.AgentID, req.Range.From, req.Range.To)
	if err != nil {
		return TransfersSummary{}, err
	}

	out := TransfersSummary{AgentID: req.AgentID}
	var (
		finishedAttended  int
		completedAttended int
		consultTotal      time.Duration
	)
	for _, t := range rows {
		out.Total++
		switch t.TransferType {
		case calls.TransferBlind:
			out.Blind++
		case calls.TransferAttended:
			out.Attended++
			if t.AnsweredAt != nil {
				out.AnsweredConsults++
			}
		}
		switch t.Status {
		case calls.TransferCompleted:
			out.Completed++
		case calls.TransferCanceled:
			out.Canceled++
		case calls.TransferFailed:
			out.Failed++
		case calls.TransferConsulting:
			out.Consulting++
		}

		if t.TransferType != calls.TransferAttended || !t.Status.Terminal() || t.CompletedAt == nil {
			continue
		}
		finishedAttended++
		consultTotal += t.CompletedAt.Sub(t.InitiatedAt)
		if t.Status == calls.TransferCompleted {
			completedAttended++
		}
	}
	if finishedAttended > 0 {
		out.CompletionRate = float64(completedAttended) / float64(finishedAttended)
		out.AverageConsultSeconds = int((consultTotal / time.Duration(finishedAttended)).Seconds())
	}
	return out, nil
}
