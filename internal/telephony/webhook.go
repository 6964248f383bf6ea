package telephony

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"dispo-crm/internal/calls"
)

// maxWebhookBody caps what we read from a single provider callback.
const maxWebhookBody = 1 << 20

var ErrInvalidWebhook = errors.New("telephony: invalid webhook")

// CallControlWebhook is the envelope the call-control provider posts for every call event.
//
//	{"data": {"id": "...", "event_type": "call.answered", "occurred_at": "...",
//	          "payload": {"call_control_id": "...", "client_state": "...", "from": "...", "to": "..."}}}
type CallControlWebhook struct {
	Data WebhookData `json:"data"`
}

type WebhookData struct {
	ID         string         `json:"id"`
	EventType  string         `json:"event_type"`
	OccurredAt string         `json:"occurred_at"`
	Payload    WebhookPayload `json:"payload"`
}

type WebhookPayload struct {
	CallControlID string `json:"call_control_id"`
	CallLegID     string `json:"call_leg_id"`
	ClientState   string `json:"client_state"`
	From          string `json:"from"`
	To            string `json:"to"`
	HangupCause   string `json:"hangup_cause"`
}

// ParseCallControlWebhook decodes a webhook body. Unknown fields are tolerated;
// a missing event type is not.
func ParseCallControlWebhook(r io.Reader) (CallControlWebhook, error) {
	var w CallControlWebhook
	dec := json.NewDecoder(io.LimitReader(r, maxWebhookBody))
	if err := dec.Decode(&w); err != nil {
		return CallControlWebhook{}, fmt.Errorf("%w: %v", ErrInvalidWebhook, err)
	}
	if strings.TrimSpace(w.Data.EventType) == "" {
		return CallControlWebhook{}, fmt.Errorf("%w: missing event_type", ErrInvalidWebhook)
	}
	return w, nil
}

// ToProviderEvent converts the envelope into the engine's event. Timestamps that
// do not parse fall back to receivedAt.
func (w CallControlWebhook) ToProviderEvent(receivedAt time.Time) calls.ProviderEvent {
	at := receivedAt
	if ts := strings.TrimSpace(w.Data.OccurredAt); ts != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			at = parsed
		}
	}
	return calls.ProviderEvent{
		ID:          w.Data.ID,
		Type:        strings.TrimSpace(w.Data.EventType),
		LegID:       strings.TrimSpace(w.Data.Payload.CallControlID),
		ClientState: w.Data.Payload.ClientState,
		OccurredAt:  at.UTC(),
	}
}
