package audit

import "time"

// Event is an immutable, append-only audit log record of a call-control action.
//
// Invariants:
// - Events are never updated or deleted.
// - agent_id is required; every call-control action is taken on behalf of an agent.
// - Recording is best-effort; callers never fail an operation on audit errors.
type Event struct {
	ID      string    `json:"id" db:"id"`
	AgentID string    `json:"agent_id" db:"agent_id"`
	Type    EventType `json:"type" db:"type"`

	// ActorUserID is the authenticated user causing the event, when it differs from the agent.
	ActorUserID string `json:"actor_user_id,omitempty" db:"actor_user_id"`
	ActorRole   string `json:"actor_role,omitempty" db:"actor_role"`

	CustomerLegID string `json:"customer_leg_id,omitempty" db:"customer_leg_id"`
	AgentLegID    string `json:"agent_leg_id,omitempty" db:"agent_leg_id"`
	ConsultLegID  string `json:"consult_leg_id,omitempty" db:"consult_leg_id"`
	Destination   string `json:"destination,omitempty" db:"destination"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTransferStarted   EventType = "transfer_started"
	EventTransferCompleted EventType = "transfer_completed"
	EventTransferCanceled  EventType = "transfer_canceled"
	EventBlindTransfer     EventType = "blind_transfer"
	EventCallReset         EventType = "call_reset"
)
