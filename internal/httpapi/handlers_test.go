package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"dispo-crm/internal/agents"
	"dispo-crm/internal/auth"
	"dispo-crm/internal/callcontrol"
	"dispo-crm/internal/calls"
	"dispo-crm/internal/rbac"
	"dispo-crm/internal/reporting"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubProvider accepts every action and fails the ones listed in fail.
type stubProvider struct {
	mu      sync.Mutex
	actions []string
	fail    map[string]error
}

func (p *stubProvider) do(action string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.actions = append(p.actions, action)
	return p.fail[action]
}

func (p *stubProvider) Hold(ctx context.Context, legID string) error   { return p.do("hold") }
func (p *stubProvider) Unhold(ctx context.Context, legID string) error { return p.do("unhold") }
func (p *stubProvider) Hangup(ctx context.Context, legID string) error { return p.do("hangup") }
func (p *stubProvider) PlaybackStart(ctx context.Context, legID string, req callcontrol.PlaybackRequest) error {
	return p.do("playback_start")
}
func (p *stubProvider) PlaybackStop(ctx context.Context, legID string) error {
	return p.do("playback_stop")
}
func (p *stubProvider) Bridge(ctx context.Context, legID, otherLegID string) error {
	return p.do("bridge")
}
func (p *stubProvider) Dial(ctx context.Context, req callcontrol.DialRequest) (string, error) {
	if err := p.do("dial"); err != nil {
		return "", err
	}
	return "Q1", nil
}
func (p *stubProvider) Transfer(ctx context.Context, legID, to string) error { return p.do("transfer") }
func (p *stubProvider) JoinConference(ctx context.Context, legID string, req callcontrol.JoinConferenceRequest) error {
	return p.do("join")
}
func (p *stubProvider) LeaveConference(ctx context.Context, legID string) error { return p.do("leave") }
func (p *stubProvider) ConferenceParticipantAction(ctx context.Context, conferenceID string, action callcontrol.ConferenceAction, legIDs ...string) error {
	return p.do(string(action))
}
func (p *stubProvider) GetConference(ctx context.Context, conferenceID string) (callcontrol.Conference, error) {
	if err := p.do("get_conference"); err != nil {
		return callcontrol.Conference{}, err
	}
	return callcontrol.Conference{ID: conferenceID, Name: "room", Status: "in_progress"}, nil
}

type testServer struct {
	router   *gin.Engine
	provider *stubProvider
	repo     *calls.MemoryRepo
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	provider := &stubProvider{fail: map[string]error{}}
	repo := calls.NewMemoryRepo()
	svc, err := calls.NewService(calls.Deps{
		Provider:    provider,
		ActiveCalls: repo,
		Transfers:   repo,
		History:     repo,
		Presence:    agents.NewMemoryRepo(),
	}, calls.Options{
		ConnectionID: "conn-1",
		CallerID:     "+15550001111",
		HoldMusicURL: "https://cdn.example.com/hold.mp3",
		SIPDomain:    "pbx.example.com",
	})
	require.NoError(t, err)

	r := gin.New()
	// Identity comes from test headers instead of a signed token.
	v1 := r.Group("/v1", func(c *gin.Context) {
		id := auth.Identity{UserID: "u1", AgentID: c.GetHeader("X-Test-Agent"), Role: c.GetHeader("X-Test-Role")}
		c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), id))
		c.Next()
	})
	Mount(v1, Handlers{Calls: svc, Reports: reporting.NewService(repo)})
	return &testServer{router: r, provider: provider, repo: repo}
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-Agent", "agent-1")
	req.Header.Set("X-Test-Role", rbac.RoleAgent)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var env errorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env.Error
}

func (s *testServer) register(t *testing.T) {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/v1/calls/active", gin.H{"agent_leg_id": "A1", "customer_leg_id": "C1"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestRegisterAndGetActiveCall(t *testing.T) {
	s := newTestServer(t)
	s.register(t)

	rec := s.do(t, http.MethodGet, "/v1/calls/active", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got calls.ActiveCall
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "agent-1", got.AgentID)
	assert.Equal(t, "C1", got.CustomerLegID)
}

func TestGetActiveCall_None(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/v1/calls/active", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, calls.KindNoActiveCall, decodeError(t, rec).Kind)
}

func TestHoldAndResume(t *testing.T) {
	s := newTestServer(t)
	s.register(t)

	rec := s.do(t, http.MethodPost, "/v1/calls/C1/hold", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = s.do(t, http.MethodPost, "/v1/calls/C1/resume", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, []string{"hold", "playback_start", "playback_stop", "unhold"}, s.provider.actions)
}

func TestProviderFailureNamesStep(t *testing.T) {
	s := newTestServer(t)
	s.register(t)
	s.provider.fail["playback_start"] = errors.New("boom")

	rec := s.do(t, http.MethodPost, "/v1/calls/C1/hold", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, calls.KindProvider, body.Kind)
	assert.Equal(t, calls.OpHold, body.Op)
	assert.Equal(t, "start_hold_music", body.Step)
}

func TestBlindTransfer_InvalidDestination(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/v1/calls/C1/blind-transfer", gin.H{"destination": "not-a-number"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, calls.KindInvalidInput, decodeError(t, rec).Kind)
	assert.Empty(t, s.provider.actions)
}

func TestAttendedTransferFlow(t *testing.T) {
	s := newTestServer(t)
	s.register(t)

	rec := s.do(t, http.MethodPost, "/v1/transfers/attended", gin.H{"destination": "+15557654321"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var started calls.TransferAttempt
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))
	assert.Equal(t, "Q1", started.ConsultLegID)
	assert.Equal(t, "C1", started.CallControlID)

	// Completing before the consult leg is answered or bridged is a precondition failure.
	rec = s.do(t, http.MethodPost, "/v1/transfers/attended/complete", gin.H{"consult_leg_id": "Q1"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = s.do(t, http.MethodPost, "/v1/transfers/attended/bridge", gin.H{"consult_leg_id": "Q1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/v1/transfers/attended/complete", gin.H{"consult_leg_id": "Q1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out struct {
		Transfer calls.TransferAttempt `json:"transfer"`
		Phase    calls.Phase           `json:"phase"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, calls.TransferCompleted, out.Transfer.Status)
	assert.Equal(t, calls.PhaseDone, out.Phase)

	from := time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)
	to := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	rec = s.do(t, http.MethodGet, "/v1/reports/transfers?from="+from+"&to="+to, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var summary reporting.TransfersSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 1, summary.Completed)
}

func TestStartTransfer_NoActiveCall(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/v1/transfers/attended", gin.H{"destination": "+15557654321"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBridgeAndCompleteRequireConsultLeg(t *testing.T) {
	s := newTestServer(t)
	s.register(t)
	for _, path := range []string{"/v1/transfers/attended/bridge", "/v1/transfers/attended/complete"} {
		rec := s.do(t, http.MethodPost, path, gin.H{})
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
	}
	assert.Empty(t, s.provider.actions)
}

func TestCancelAfterFailedDialStopsHoldMusic(t *testing.T) {
	s := newTestServer(t)
	s.register(t)
	s.provider.fail["dial"] = errors.New("no route")

	rec := s.do(t, http.MethodPost, "/v1/transfers/attended", gin.H{"destination": "+15557654321"})
	require.Equal(t, http.StatusBadGateway, rec.Code, rec.Body.String())
	assert.Equal(t, "dial_consult", decodeError(t, rec).Step)
	assert.Equal(t, []string{"playback_start", "dial"}, s.provider.actions)

	s.provider.actions = nil
	rec = s.do(t, http.MethodPost, "/v1/transfers/attended/cancel", gin.H{})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"playback_stop", "bridge"}, s.provider.actions)
}

func TestCancelWithoutConsultLegNeedsActiveCall(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/v1/transfers/attended/cancel", gin.H{})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, calls.KindNoActiveCall, decodeError(t, rec).Kind)
	assert.Empty(t, s.provider.actions)
}

func TestConference_UnknownCommand(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/v1/calls/C1/conference", gin.H{"command": "dance", "conference_id": "room"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, s.provider.actions)
}

func TestCancelActiveCall(t *testing.T) {
	s := newTestServer(t)
	s.register(t)

	rec := s.do(t, http.MethodDelete, "/v1/calls/active", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/v1/calls/active", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAgentCannotActForAnother(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/v1/calls/active", nil, rbac.HeaderActingAgent, "agent-2")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSupervisorActsForAgent(t *testing.T) {
	s := newTestServer(t)
	s.register(t)

	rec := s.do(t, http.MethodGet, "/v1/calls/active", nil,
		"X-Test-Role", rbac.RoleSupervisor, "X-Test-Agent", "", rbac.HeaderActingAgent, "agent-1")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatusFor(t *testing.T) {
	cases := map[calls.Kind]int{
		calls.KindInvalidInput:         http.StatusBadRequest,
		calls.KindMissingConfiguration: http.StatusInternalServerError,
		calls.KindProvider:             http.StatusBadGateway,
		calls.KindStorage:              http.StatusInternalServerError,
		calls.KindNoActiveCall:         http.StatusNotFound,
		calls.KindNotFound:             http.StatusNotFound,
		calls.KindInvalidState:         http.StatusUnprocessableEntity,
		calls.KindConflict:             http.StatusConflict,
	}
	for kind, want := range cases {
		assert.Equal(t, want, StatusFor(kind), kind)
	}
}
