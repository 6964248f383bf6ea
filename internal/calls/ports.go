package calls

import (
	"context"
	"time"

	"dispo-crm/internal/audit"
	"dispo-crm/internal/callcontrol"
)

// Provider is the subset of the call-control client the orchestration layer drives.
// *callcontrol.Client satisfies it.
type Provider interface {
	Hold(ctx context.Context, legID string) error
	Unhold(ctx context.Context, legID string) error
	Hangup(ctx context.Context, legID string) error
	PlaybackStart(ctx context.Context, legID string, req callcontrol.PlaybackRequest) error
	PlaybackStop(ctx context.Context, legID string) error
	Bridge(ctx context.Context, legID, otherLegID string) error
	Dial(ctx context.Context, req callcontrol.DialRequest) (string, error)
	Transfer(ctx context.Context, legID, to string) error
	JoinConference(ctx context.Context, legID string, req callcontrol.JoinConferenceRequest) error
	LeaveConference(ctx context.Context, legID string) error
	ConferenceParticipantAction(ctx context.Context, conferenceID string, action callcontrol.ConferenceAction, legIDs ...string) error
	GetConference(ctx context.Context, conferenceID string) (callcontrol.Conference, error)
}

// ActiveCallStore persists active-call rows. Every mutation is a single atomic statement
// keyed by agent or leg; callers never read-modify-write.
type ActiveCallStore interface {
	// UpsertActiveCall inserts or replaces the agent's row and returns what was stored.
	UpsertActiveCall(ctx context.Context, c ActiveCall) (ActiveCall, error)
	GetActiveCall(ctx context.Context, agentID string) (ActiveCall, bool, error)
	FindActiveCallByLeg(ctx context.Context, legID string) (ActiveCall, bool, error)

	// The Set* methods return ErrNoActiveCall when the agent has no row.
	SetCustomerLeg(ctx context.Context, agentID, customerLegID string, at time.Time) error
	SetConsultLeg(ctx context.Context, agentID, consultLegID string, at time.Time) error
	SetHoldState(ctx context.Context, agentID string, hold HoldState, playback PlaybackState, at time.Time) error

	// ClearConsultLeg empties consult_leg_id only while it still equals consultLegID.
	ClearConsultLeg(ctx context.Context, agentID, consultLegID string, at time.Time) (bool, error)

	DeleteActiveCall(ctx context.Context, agentID string) (bool, error)
	// DeleteActiveCallByAgentLeg removes the row owning agentLegID and returns its agent.
	DeleteActiveCallByAgentLeg(ctx context.Context, agentLegID string) (string, bool, error)
}

// TransferStore persists transfer attempts.
type TransferStore interface {
	// StartConsult records a consulting attempt and points the agent's active call at its
	// consult leg, atomically. ErrNoActiveCall if the agent's row is gone.
	StartConsult(ctx context.Context, t TransferAttempt) error
	// RecordTransfer stores an attempt that needs no active-call update (blind transfers).
	RecordTransfer(ctx context.Context, t TransferAttempt) error

	GetTransferByConsultLeg(ctx context.Context, consultLegID string) (TransferAttempt, bool, error)

	// MarkAnswered and MarkAgentBridged only touch consulting attempts.
	MarkAnswered(ctx context.Context, consultLegID string, at time.Time) error
	MarkAgentBridged(ctx context.Context, consultLegID string, at time.Time) error

	// FinishTransfer moves a consulting attempt to a terminal status and clears the consult
	// leg from the owning active call, atomically. ErrNotFound if no attempt exists,
	// ErrInvalidState if it is already terminal.
	FinishTransfer(ctx context.Context, consultLegID string, status TransferStatus, at time.Time) (TransferAttempt, error)

	ListTransfersByAgent(ctx context.Context, agentID string, from, to time.Time) ([]TransferAttempt, error)
}

// HistoryStore holds call history rows.
type HistoryStore interface {
	UpsertCallRecord(ctx context.Context, r CallRecord) error
	// EndCallRecord moves a still-open row to a final status. It is a no-op when no open
	// row exists for agentLegID.
	EndCallRecord(ctx context.Context, agentLegID string, status CallStatus, endedAt time.Time) error
}

// Presence tracks whether an agent is on a call.
type Presence interface {
	SetAvailable(ctx context.Context, agentID string, at time.Time) error
	SetOnCall(ctx context.Context, agentID string, at time.Time) error
}

// Auditor appends audit events. Failures never fail an operation.
type Auditor interface {
	Append(ctx context.Context, e audit.Event) error
}

// Locker serializes operations per agent across processes.
// acquired=false with a nil error means another holder has the key.
type Locker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, acquired bool, err error)
}
