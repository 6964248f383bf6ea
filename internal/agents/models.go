package agents

import (
	"errors"
	"time"
)

// Status is the agent's dialer presence.
type Status string

const (
	StatusAvailable Status = "available"
	StatusOnCall    Status = "on_call"
	StatusOffline   Status = "offline"
)

func (s Status) Valid() bool {
	return s == StatusAvailable || s == StatusOnCall || s == StatusOffline
}

type Agent struct {
	ID     string `json:"id" db:"id"`
	Status Status `json:"status" db:"status"`

	// LastStatusAt is when Status last changed.
	LastStatusAt time.Time `json:"last_status_at" db:"last_status_at"`
}

var (
	ErrNotFound      = errors.New("agent not found")
	ErrInvalidStatus = errors.New("invalid agent status")
)
