package callcontrol

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
)

func (c *Client) legAction(ctx context.Context, legID, action string, body any) error {
	if strings.TrimSpace(legID) == "" {
		return ErrInvalidLeg
	}
	if body == nil {
		body = commandBody{CommandID: c.newID()}
	}
	return c.do(ctx, action, http.MethodPost, legPath(legID, action), body, nil)
}

func (c *Client) Hold(ctx context.Context, legID string) error {
	return c.legAction(ctx, legID, ActionHold, nil)
}

func (c *Client) Unhold(ctx context.Context, legID string) error {
	return c.legAction(ctx, legID, ActionUnhold, nil)
}

func (c *Client) Hangup(ctx context.Context, legID string) error {
	return c.legAction(ctx, legID, ActionHangup, nil)
}

// Reject declines a ringing inbound leg. cause defaults to USER_BUSY.
func (c *Client) Reject(ctx context.Context, legID, cause string) error {
	if cause == "" {
		cause = "USER_BUSY"
	}
	return c.legAction(ctx, legID, ActionReject, rejectBody{Cause: cause})
}

func (c *Client) PlaybackStart(ctx context.Context, legID string, req PlaybackRequest) error {
	if strings.TrimSpace(req.AudioURL) == "" {
		return errors.New("callcontrol: audio url required")
	}
	return c.legAction(ctx, legID, ActionPlaybackStart, req)
}

func (c *Client) PlaybackStop(ctx context.Context, legID string) error {
	return c.legAction(ctx, legID, ActionPlaybackStop, nil)
}

// Bridge connects legID with otherLegID.
func (c *Client) Bridge(ctx context.Context, legID, otherLegID string) error {
	if strings.TrimSpace(otherLegID) == "" {
		return ErrInvalidLeg
	}
	return c.legAction(ctx, legID, ActionBridge, bridgeBody{CallControlID: otherLegID, CommandID: c.newID()})
}

// Dial creates a new outbound leg and returns its call control id.
func (c *Client) Dial(ctx context.Context, req DialRequest) (string, error) {
	if req.CommandID == "" {
		req.CommandID = c.newID()
	}
	var resp dialResponse
	if err := c.do(ctx, ActionDial, http.MethodPost, "/calls", req, &resp); err != nil {
		return "", err
	}
	id := resp.Data.CallControlID
	if id == "" {
		id = resp.CallControlID
	}
	if id == "" {
		return "", &Error{Action: ActionDial, StatusCode: http.StatusOK, Detail: "response missing call_control_id"}
	}
	return id, nil
}

// Transfer redirects legID to a new destination (blind transfer).
func (c *Client) Transfer(ctx context.Context, legID, to string) error {
	if strings.TrimSpace(to) == "" {
		return errors.New("callcontrol: transfer destination required")
	}
	return c.legAction(ctx, legID, ActionTransfer, transferBody{To: to, CommandID: c.newID()})
}

func (c *Client) JoinConference(ctx context.Context, legID string, req JoinConferenceRequest) error {
	if strings.TrimSpace(req.Name) == "" {
		return errors.New("callcontrol: conference name required")
	}
	return c.legAction(ctx, legID, ActionJoinConference, req)
}

func (c *Client) LeaveConference(ctx context.Context, legID string) error {
	return c.legAction(ctx, legID, ActionLeaveConference, nil)
}

// ConferenceParticipantAction applies a hold/unhold/mute/unmute to participant legs.
func (c *Client) ConferenceParticipantAction(ctx context.Context, conferenceID string, action ConferenceAction, legIDs ...string) error {
	if strings.TrimSpace(conferenceID) == "" {
		return errors.New("callcontrol: conference id required")
	}
	if len(legIDs) == 0 {
		return ErrInvalidLeg
	}
	path := "/conferences/" + url.PathEscape(conferenceID) + "/actions/" + string(action)
	return c.do(ctx, "conference_"+string(action), http.MethodPost, path, conferenceActionBody{CallControlIDs: legIDs}, nil)
}

func (c *Client) GetConference(ctx context.Context, conferenceID string) (Conference, error) {
	if strings.TrimSpace(conferenceID) == "" {
		return Conference{}, errors.New("callcontrol: conference id required")
	}
	var resp conferenceResponse
	if err := c.do(ctx, ActionGetConference, http.MethodGet, "/conferences/"+url.PathEscape(conferenceID), nil, &resp); err != nil {
		return Conference{}, err
	}
	return resp.Data, nil
}
