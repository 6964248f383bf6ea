package callcontrol

import "time"

// Action names, used for error reporting and metrics labels.
const (
	ActionHold            = "hold"
	ActionUnhold          = "unhold"
	ActionHangup          = "hangup"
	ActionReject          = "reject"
	ActionPlaybackStart   = "playback_start"
	ActionPlaybackStop    = "playback_stop"
	ActionBridge          = "bridge"
	ActionDial            = "dial"
	ActionTransfer        = "transfer"
	ActionJoinConference  = "join_conference"
	ActionLeaveConference = "leave_conference"
	ActionGetConference   = "get_conference"
)

// Playback targets for PlaybackStart.
const (
	TargetSelf     = "self"
	TargetOpposite = "opposite"
	TargetBoth     = "both"
)

// LoopInfinity repeats the audio until playback_stop.
const LoopInfinity = "infinity"

// ConferenceAction is a participant-level action inside an existing conference.
type ConferenceAction string

const (
	ConferenceHold   ConferenceAction = "hold"
	ConferenceUnhold ConferenceAction = "unhold"
	ConferenceMute   ConferenceAction = "mute"
	ConferenceUnmute ConferenceAction = "unmute"
)

type PlaybackRequest struct {
	AudioURL   string `json:"audio_url"`
	Loop       string `json:"loop,omitempty"`
	TargetLegs string `json:"target_legs,omitempty"`
}

// DialRequest creates a new outbound leg.
type DialRequest struct {
	ConnectionID string `json:"connection_id"`
	To           string `json:"to"`
	From         string `json:"from"`
	CommandID    string `json:"command_id,omitempty"`
	// ClientState is an opaque, already-encoded token echoed back on every event for the leg.
	ClientState string `json:"client_state,omitempty"`
}

type JoinConferenceRequest struct {
	Name                   string `json:"name"`
	HoldAudioURL           string `json:"hold_audio_url,omitempty"`
	StartConferenceOnEnter bool   `json:"start_conference_on_enter"`
	EndConferenceOnExit    bool   `json:"end_conference_on_exit"`
	Mute                   bool   `json:"mute"`
	SupervisorRole         string `json:"supervisor_role,omitempty"`
}

// Conference is the read-only conference metadata returned by GetConference.
type Conference struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Status       string        `json:"status"`
	CreatedAt    time.Time     `json:"created_at"`
	ExpiresAt    time.Time     `json:"expires_at"`
	Participants []Participant `json:"participants,omitempty"`
}

type Participant struct {
	CallControlID string `json:"call_control_id"`
	Status        string `json:"status"`
	Muted         bool   `json:"muted"`
	OnHold        bool   `json:"on_hold"`
}

type bridgeBody struct {
	CallControlID string `json:"call_control_id"`
	CommandID     string `json:"command_id"`
}

type transferBody struct {
	To        string `json:"to"`
	From      string `json:"from,omitempty"`
	CommandID string `json:"command_id,omitempty"`
}

type rejectBody struct {
	Cause string `json:"cause"`
}

type conferenceActionBody struct {
	CallControlIDs []string `json:"call_control_ids"`
}

type commandBody struct {
	CommandID string `json:"command_id,omitempty"`
}

type dialResponse struct {
	Data struct {
		CallControlID string `json:"call_control_id"`
	} `json:"data"`
	CallControlID string `json:"call_control_id"`
}

type conferenceResponse struct {
	Data Conference `json:"data"`
}

type errorBody struct {
	Errors []struct {
		Code   string `json:"code"`
		Title  string `json:"title"`
		Detail string `json:"detail"`
	} `json:"errors"`
}
