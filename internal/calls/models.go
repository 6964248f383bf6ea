package calls

import "time"

// ActiveCall is the authoritative local snapshot of one agent's in-progress call.
//
// Invariant: at most one row per agent. Creation is an upsert keyed by AgentID,
// so a second create for the same agent replaces the first.
// Leg ids are opaque provider values; empty means "not known / not present".
type ActiveCall struct {
	AgentID       string        `json:"agent_id" db:"agent_id"`
	CustomerLegID string        `json:"customer_leg_id,omitempty" db:"customer_leg_id"`
	AgentLegID    string        `json:"agent_leg_id,omitempty" db:"agent_leg_id"`
	ConsultLegID  string        `json:"consult_leg_id,omitempty" db:"consult_leg_id"`
	HoldState     HoldState     `json:"hold_state" db:"hold_state"`
	PlaybackState PlaybackState `json:"playback_state" db:"playback_state"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type HoldState string

const (
	HoldStateActive HoldState = "active"
	HoldStateHeld   HoldState = "held"
)

type PlaybackState string

const (
	PlaybackIdle    PlaybackState = "idle"
	PlaybackPlaying PlaybackState = "playing"
)

// TransferAttempt records one transfer. Attended attempts are keyed by their consult leg.
//
// Lifecycle: created as consulting; moves once to completed, canceled or failed.
// Terminal rows are never mutated again; a retry creates a new attempt.
type TransferAttempt struct {
	ID      string `json:"id" db:"id"`
	AgentID string `json:"agent_id" db:"agent_id"`

	// CallControlID is the customer leg at the time the transfer started.
	CallControlID string         `json:"call_control_id" db:"call_control_id"`
	AgentLegID    string         `json:"agent_leg_id,omitempty" db:"agent_leg_id"`
	TransferType  TransferType   `json:"transfer_type" db:"transfer_type"`
	Destination   string         `json:"destination" db:"destination"`
	ConsultLegID  string         `json:"consult_leg_id,omitempty" db:"consult_leg_id"`
	Status        TransferStatus `json:"status" db:"status"`

	InitiatedAt    time.Time  `json:"initiated_at" db:"initiated_at"`
	AnsweredAt     *time.Time `json:"answered_at,omitempty" db:"answered_at"`
	AgentBridgedAt *time.Time `json:"agent_bridged_at,omitempty" db:"agent_bridged_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

type TransferType string

const (
	TransferBlind    TransferType = "blind"
	TransferAttended TransferType = "attended"
)

type TransferStatus string

const (
	TransferConsulting TransferStatus = "consulting"
	TransferCompleted  TransferStatus = "completed"
	TransferCanceled   TransferStatus = "canceled"
	TransferFailed     TransferStatus = "failed"
)

func (s TransferStatus) Terminal() bool {
	return s == TransferCompleted || s == TransferCanceled || s == TransferFailed
}

// Phase is the attended-transfer orchestrator state derived from an attempt.
type Phase string

const (
	PhaseIdle           Phase = "idle"
	PhaseConsultDialing Phase = "consult-dialing"
	PhaseConsultActive  Phase = "consult-active"
	PhaseDone           Phase = "done"
	PhaseError          Phase = "error"
)

// Phase derives where the orchestrator stands for this attempt. The consult leg
// counts as active once the provider reported it answered or the agent was bridged onto it.
func (t TransferAttempt) Phase() Phase {
	switch t.Status {
	case TransferConsulting:
		if t.AnsweredAt != nil || t.AgentBridgedAt != nil {
			return PhaseConsultActive
		}
		return PhaseConsultDialing
	case TransferCompleted, TransferCanceled:
		return PhaseDone
	case TransferFailed:
		return PhaseError
	default:
		return PhaseIdle
	}
}

// CallRecord is a call history row, keyed by the agent's provider leg id.
//
// Provider-specific ids are stored as ProviderLegID, never mixed into the status model.
type CallRecord struct {
	ID            string `json:"id" db:"id"`
	AgentID       string `json:"agent_id" db:"agent_id"`
	ProviderLegID string `json:"provider_leg_id" db:"provider_leg_id"`

	From string `json:"from" db:"from_number"`
	To   string `json:"to" db:"to_number"`

	Status CallStatus `json:"status" db:"status"`

	StartedAt time.Time  `json:"started_at" db:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty" db:"ended_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

type CallStatus string

const (
	CallStatusQueued     CallStatus = "queued"
	CallStatusRinging    CallStatus = "ringing"
	CallStatusInProgress CallStatus = "in_progress"
	CallStatusCompleted  CallStatus = "completed"
	CallStatusFailed     CallStatus = "failed"
	CallStatusNoAnswer   CallStatus = "no_answer"
	CallStatusBusy       CallStatus = "busy"
	CallStatusCanceled   CallStatus = "canceled"
)
