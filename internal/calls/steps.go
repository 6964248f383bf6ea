package calls

import (
	"context"
	"errors"

	"dispo-crm/pkg/logger"
)

// Policy decides what a step failure does to the rest of its operation.
type Policy int

const (
	// Abort stops the operation and reports the step.
	Abort Policy = iota
	// BestEffort logs the failure and carries on.
	BestEffort
	// Deferred carries on but the operation still fails with the first deferred step error.
	Deferred
)

func (p Policy) String() string {
	switch p {
	case Abort:
		return "abort"
	case BestEffort:
		return "best_effort"
	case Deferred:
		return "deferred"
	default:
		return "unknown"
	}
}

type step struct {
	name   string
	policy Policy
	// skip reports true when the step does not apply to this invocation.
	skip func() bool
	run  func(ctx context.Context) error
}

// runSteps executes steps in order under their policies.
func (s *Service) runSteps(ctx context.Context, op string, steps []step) error {
	log := logger.From(ctx).With("op", op)

	var deferred error
	for _, st := range steps {
		if st.skip != nil && st.skip() {
			continue
		}
		err := st.run(ctx)
		if err == nil {
			continue
		}

		switch st.policy {
		case BestEffort:
			log.Warn("best-effort step failed", "step", st.name, "err", err)
			s.metrics.ObserveBestEffortFailure(op, st.name)
		case Deferred:
			log.Error("step failed, continuing", "step", st.name, "err", err)
			if deferred == nil {
				deferred = &StepError{Op: op, Step: st.name, Err: err}
			}
		default:
			log.Error("step failed", "step", st.name, "err", err)
			return &StepError{Op: op, Step: st.name, Err: err}
		}
	}
	return deferred
}

// finish records the outcome of an operation in metrics.
func (s *Service) finish(op string, err error) {
	result := "ok"
	if err != nil {
		result = string(KindOf(err))
	}
	s.metrics.ObserveOperation(op, result)
}

// FailedStep returns the name of the step that failed, if err came from one.
func FailedStep(err error) string {
	var se *StepError
	if errors.As(err, &se) {
		return se.Step
	}
	return ""
}
