package calls

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrMissingConfiguration = errors.New("missing configuration")
	ErrProvider             = errors.New("provider error")
	ErrStorage              = errors.New("storage error")
	ErrNoActiveCall         = errors.New("no active call")
	ErrNotFound             = errors.New("not found")
	ErrInvalidState         = errors.New("invalid state")
	ErrAgentBusy            = errors.New("agent has an operation in progress")

	ErrInvalidDestination = fmt.Errorf("%w: destination must be an E.164 number, SIP URI or 3-5 digit extension", ErrInvalidInput)
	ErrInvalidCommand     = fmt.Errorf("%w: unknown conference command", ErrInvalidInput)
	ErrInvalidToken       = fmt.Errorf("%w: unrecognized correlation token", ErrInvalidInput)
	ErrProviderDialFailed = fmt.Errorf("%w: consult dial failed", ErrProvider)
	// ErrConflictIgnored means the store silently dropped an upsert. Stores must replace on
	// conflict, so seeing this is a storage misconfiguration.
	ErrConflictIgnored = fmt.Errorf("%w: upsert ignored on conflict", ErrStorage)
)

// Kind is the machine-readable error category returned to callers.
type Kind string

const (
	KindInvalidInput         Kind = "invalid_input"
	KindMissingConfiguration Kind = "missing_configuration"
	KindProvider             Kind = "provider_error"
	KindStorage              Kind = "storage_error"
	KindNoActiveCall         Kind = "no_active_call"
	KindNotFound             Kind = "not_found"
	KindInvalidState         Kind = "invalid_state"
	KindConflict             Kind = "conflict"
	KindInternal             Kind = "internal"
)

// KindOf classifies err. Order matters: the more specific sentinels come first.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, ErrMissingConfiguration):
		return KindMissingConfiguration
	case errors.Is(err, ErrNoActiveCall):
		return KindNoActiveCall
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidState):
		return KindInvalidState
	case errors.Is(err, ErrAgentBusy):
		return KindConflict
	case errors.Is(err, ErrProvider):
		return KindProvider
	case errors.Is(err, ErrStorage):
		return KindStorage
	default:
		return KindInternal
	}
}

// StepError reports which step of an operation failed.
type StepError struct {
	Op   string
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("calls: %s: %s: %v", e.Op, e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

func providerErr(err error) error {
	if err == nil || errors.Is(err, ErrProvider) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrProvider, err)
}

// storageErr tags err as a storage failure unless a store already returned one of our sentinels.
func storageErr(err error) error {
	if err == nil {
		return nil
	}
	for _, s := range []error{ErrStorage, ErrNoActiveCall, ErrNotFound, ErrInvalidState, ErrInvalidInput} {
		if errors.Is(err, s) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", ErrStorage, err)
}
