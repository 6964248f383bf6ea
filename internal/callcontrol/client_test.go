package callcontrol

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	Method string
	Path   string
	Auth   string
	Body   map[string]any
}

type providerStub struct {
	mu       sync.Mutex
	requests []recordedRequest
	handler  func(w http.ResponseWriter, r *http.Request)
}

func (p *providerStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	rec := recordedRequest{Method: r.Method, Path: r.URL.EscapedPath(), Auth: r.Header.Get("Authorization")}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &rec.Body)
	}
	p.mu.Lock()
	p.requests = append(p.requests, rec)
	p.mu.Unlock()

	if p.handler != nil {
		p.handler(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"data":{"result":"ok"}}`))
}

func (p *providerStub) last(t *testing.T) recordedRequest {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	require.NotEmpty(t, p.requests)
	return p.requests[len(p.requests)-1]
}

func newTestClient(t *testing.T, stub *providerStub) *Client {
	t.Helper()
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL + "/v2/", APIKey: "KEY123", Timeout: 2 * time.Second, RPS: 1000, Burst: 1000}, func() string { return "cmd-1" })
	require.NoError(t, err)
	return c
}

func TestNew_RequiresBaseURLAndKey(t *testing.T) {
	_, err := New(Config{APIKey: "k"}, func() string { return "x" })
	require.Error(t, err)
	_, err = New(Config{BaseURL: "http://x"}, func() string { return "x" })
	require.Error(t, err)
}

func TestClient_LegActionsUseExpectedPaths(t *testing.T) {
	stub := &providerStub{}
	c := newTestClient(t, stub)
	ctx := context.Background()

	cases := []struct {
		name string
		call func() error
		path string
	}{
		{"hold", func() error { return c.Hold(ctx, "C1") }, "/v2/calls/C1/actions/hold"},
		{"unhold", func() error { return c.Unhold(ctx, "C1") }, "/v2/calls/C1/actions/unhold"},
		{"hangup", func() error { return c.Hangup(ctx, "A1") }, "/v2/calls/A1/actions/hangup"},
		{"playback_stop", func() error { return c.PlaybackStop(ctx, "A1") }, "/v2/calls/A1/actions/playback_stop"},
		{"leave_conference", func() error { return c.LeaveConference(ctx, "A1") }, "/v2/calls/A1/actions/leave_conference"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.NoError(t, tc.call())
			req := stub.last(t)
			assert.Equal(t, http.MethodPost, req.Method)
			assert.Equal(t, tc.path, req.Path)
			assert.Equal(t, "Bearer KEY123", req.Auth)
		})
	}
}

func TestClient_PlaybackStartPayload(t *testing.T) {
	stub := &providerStub{}
	c := newTestClient(t, stub)

	err := c.PlaybackStart(context.Background(), "A1", PlaybackRequest{AudioURL: "https://cdn.example.com/hold.mp3", Loop: LoopInfinity, TargetLegs: TargetOpposite})
	require.NoError(t, err)

	req := stub.last(t)
	assert.Equal(t, "/v2/calls/A1/actions/playback_start", req.Path)
	assert.Equal(t, "https://cdn.example.com/hold.mp3", req.Body["audio_url"])
	assert.Equal(t, "infinity", req.Body["loop"])
	assert.Equal(t, "opposite", req.Body["target_legs"])
}

func TestNew_DoesNotMutateCallerHTTPClient(t *testing.T) {
	shared := &http.Client{Timeout: time.Minute}
	c, err := New(Config{BaseURL: "https://api.example.com/v2", APIKey: "k", HTTPClient: shared, Timeout: 3 * time.Second}, func() string { return "cmd" })
	require.NoError(t, err)

	assert.Equal(t, time.Minute, shared.Timeout)
	assert.Equal(t, 3*time.Second, c.httpClient.Timeout)
	assert.NotSame(t, shared, c.httpClient)
}

func TestClient_RejectDefaultsCause(t *testing.T) {
	stub := &providerStub{}
	c := newTestClient(t, stub)

	require.NoError(t, c.Reject(context.Background(), "C9", ""))
	req := stub.last(t)
	assert.Equal(t, "/v2/calls/C9/actions/reject", req.Path)
	assert.Equal(t, "USER_BUSY", req.Body["cause"])

	require.NoError(t, c.Reject(context.Background(), "C9", "CALL_REJECTED"))
	assert.Equal(t, "CALL_REJECTED", stub.last(t).Body["cause"])
}

func TestClient_BridgeSendsOtherLegAndCommandID(t *testing.T) {
	stub := &providerStub{}
	c := newTestClient(t, stub)

	require.NoError(t, c.Bridge(context.Background(), "C1", "Q1"))
	req := stub.last(t)
	assert.Equal(t, "/v2/calls/C1/actions/bridge", req.Path)
	assert.Equal(t, "Q1", req.Body["call_control_id"])
	assert.Equal(t, "cmd-1", req.Body["command_id"])
}

func TestClient_DialReturnsLegID(t *testing.T) {
	stub := &providerStub{handler: func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"call_control_id":"Q1","call_leg_id":"x"}}`))
	}}
	c := newTestClient(t, stub)

	leg, err := c.Dial(context.Background(), DialRequest{ConnectionID: "conn", To: "+15551234567", From: "+15550001111", ClientState: "e30="})
	require.NoError(t, err)
	assert.Equal(t, "Q1", leg)

	req := stub.last(t)
	assert.Equal(t, "/v2/calls", req.Path)
	assert.Equal(t, "conn", req.Body["connection_id"])
	assert.Equal(t, "+15551234567", req.Body["to"])
	assert.Equal(t, "+15550001111", req.Body["from"])
	assert.Equal(t, "e30=", req.Body["client_state"])
	assert.Equal(t, "cmd-1", req.Body["command_id"])
}

func TestClient_DialMissingIDIsError(t *testing.T) {
	stub := &providerStub{}
	c := newTestClient(t, stub)

	_, err := c.Dial(context.Background(), DialRequest{ConnectionID: "conn", To: "+1555", From: "+1666"})
	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ActionDial, perr.Action)
}

func TestClient_ParsesProviderErrors(t *testing.T) {
	stub := &providerStub{handler: func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"errors":[{"code":"90018","title":"Call has already ended","detail":"This call is no longer active"}]}`))
	}}
	c := newTestClient(t, stub)

	err := c.Hangup(context.Background(), "A1")
	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, http.StatusUnprocessableEntity, perr.StatusCode)
	assert.Equal(t, "90018", perr.Code)
	assert.Equal(t, "This call is no longer active", perr.Detail)
	assert.False(t, perr.Temporary())
}

func TestClient_TimeoutIsAnError(t *testing.T) {
	stub := &providerStub{handler: func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}}
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL, APIKey: "k", Timeout: 20 * time.Millisecond}, func() string { return "x" })
	require.NoError(t, err)

	err = c.Hold(context.Background(), "C1")
	require.Error(t, err)
	var perr *Error
	assert.False(t, errors.As(err, &perr))
}

func TestClient_EmptyLegFailsWithoutRequest(t *testing.T) {
	stub := &providerStub{}
	c := newTestClient(t, stub)

	require.ErrorIs(t, c.Hold(context.Background(), " "), ErrInvalidLeg)
	require.ErrorIs(t, c.Bridge(context.Background(), "C1", ""), ErrInvalidLeg)
	assert.Empty(t, stub.requests)
}

func TestClient_ConferenceEndpoints(t *testing.T) {
	stub := &providerStub{handler: func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodGet {
			_, _ = w.Write([]byte(`{"data":{"id":"conf-1","name":"sales-room","status":"in_progress"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"data":{"result":"ok"}}`))
	}}
	c := newTestClient(t, stub)
	ctx := context.Background()

	require.NoError(t, c.JoinConference(ctx, "A1", JoinConferenceRequest{Name: "sales-room", StartConferenceOnEnter: true, Mute: true, SupervisorRole: "barge"}))
	req := stub.last(t)
	assert.Equal(t, "/v2/calls/A1/actions/join_conference", req.Path)
	assert.Equal(t, "sales-room", req.Body["name"])
	assert.Equal(t, true, req.Body["start_conference_on_enter"])
	assert.Equal(t, false, req.Body["end_conference_on_exit"])
	assert.Equal(t, true, req.Body["mute"])
	assert.Equal(t, "barge", req.Body["supervisor_role"])

	require.NoError(t, c.ConferenceParticipantAction(ctx, "conf-1", ConferenceMute, "C1"))
	req = stub.last(t)
	assert.Equal(t, "/v2/conferences/conf-1/actions/mute", req.Path)
	assert.Equal(t, []any{"C1"}, req.Body["call_control_ids"])

	conf, err := c.GetConference(ctx, "conf-1")
	require.NoError(t, err)
	assert.Equal(t, "sales-room", conf.Name)
	assert.Equal(t, "in_progress", conf.Status)
}
