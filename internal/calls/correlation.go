package calls

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

const (
	correlationVersion = 1

	PurposeAttendedTransferConsult = "attended_transfer_consult"
)

// CorrelationToken rides along on a consult dial as provider client state, so asynchronous
// events for the consult leg can be tied back to the transfer that created it.
type CorrelationToken struct {
	Version       int    `json:"v"`
	Purpose       string `json:"purpose"`
	AgentID       string `json:"agent_id"`
	CustomerLegID string `json:"customer_leg_id"`
	AgentLegID    string `json:"agent_leg_id"`
}

func NewConsultToken(agentID, customerLegID, agentLegID string) CorrelationToken {
	return CorrelationToken{
		Version:       correlationVersion,
		Purpose:       PurposeAttendedTransferConsult,
		AgentID:       agentID,
		CustomerLegID: customerLegID,
		AgentLegID:    agentLegID,
	}
}

// Encode returns the base64 JSON form sent as client_state.
func (t CorrelationToken) Encode() (string, error) {
	raw, err := json.Marshal(t)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodeCorrelationToken parses a client_state value. Unknown versions or purposes are rejected.
func DecodeCorrelationToken(s string) (CorrelationToken, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return CorrelationToken{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	var t CorrelationToken
	if err := json.Unmarshal(raw, &t); err != nil {
		return CorrelationToken{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if t.Version != correlationVersion || t.Purpose != PurposeAttendedTransferConsult {
		return CorrelationToken{}, ErrInvalidToken
	}
	if t.AgentID == "" || t.CustomerLegID == "" || t.AgentLegID == "" {
		return CorrelationToken{}, fmt.Errorf("%w: missing leg reference", ErrInvalidToken)
	}
	return t, nil
}
