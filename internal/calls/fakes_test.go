package calls

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"dispo-crm/internal/audit"
	"dispo-crm/internal/callcontrol"
)

var errProviderDown = errors.New("provider unavailable")

// providerCall is one recorded provider action. Other holds the second leg of a bridge,
// the destination of a dial or transfer, or the conference name.
type providerCall struct {
	Action string
	Leg    string
	Other  string
}

// fakeProvider records every action in order and fails the ones it is told to.
type fakeProvider struct {
	mu    sync.Mutex
	calls []providerCall

	// failures keyed by "action" or "action:leg".
	failures map[string]error

	dialLeg    string
	lastDial   callcontrol.DialRequest
	lastPlay   callcontrol.PlaybackRequest
	lastJoin   callcontrol.JoinConferenceRequest
	conference callcontrol.Conference
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{failures: map[string]error{}, dialLeg: "Q1"}
}

func (p *fakeProvider) failOn(key string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[key] = err
}

func (p *fakeProvider) rec(action, leg, other string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, providerCall{Action: action, Leg: leg, Other: other})
	if err, ok := p.failures[action+":"+leg]; ok {
		return err
	}
	if err, ok := p.failures[action]; ok {
		return err
	}
	return nil
}

func (p *fakeProvider) recorded() []providerCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]providerCall, len(p.calls))
	copy(out, p.calls)
	return out
}

func (p *fakeProvider) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = nil
}

// count returns how many times action was issued on leg.
func (p *fakeProvider) count(action, leg string) int {
	n := 0
	for _, c := range p.recorded() {
		if c.Action == action && c.Leg == leg {
			n++
		}
	}
	return n
}

// index returns the position of the first matching call, or -1.
func (p *fakeProvider) index(action, leg, other string) int {
	for i, c := range p.recorded() {
		if c.Action == action && c.Leg == leg && c.Other == other {
			return i
		}
	}
	return -1
}

func (p *fakeProvider) Hold(ctx context.Context, legID string) error {
	return p.rec(callcontrol.ActionHold, legID, "")
}

func (p *fakeProvider) Unhold(ctx context.Context, legID string) error {
	return p.rec(callcontrol.ActionUnhold, legID, "")
}

func (p *fakeProvider) Hangup(ctx context.Context, legID string) error {
	return p.rec(callcontrol.ActionHangup, legID, "")
}

func (p *fakeProvider) PlaybackStart(ctx context.Context, legID string, req callcontrol.PlaybackRequest) error {
	p.mu.Lock()
	p.lastPlay = req
	p.mu.Unlock()
	return p.rec(callcontrol.ActionPlaybackStart, legID, req.TargetLegs)
}

func (p *fakeProvider) PlaybackStop(ctx context.Context, legID string) error {
	return p.rec(callcontrol.ActionPlaybackStop, legID, "")
}

func (p *fakeProvider) Bridge(ctx context.Context, legID, otherLegID string) error {
	return p.rec(callcontrol.ActionBridge, legID, otherLegID)
}

func (p *fakeProvider) Dial(ctx context.Context, req callcontrol.DialRequest) (string, error) {
	p.mu.Lock()
	p.lastDial = req
	leg := p.dialLeg
	p.mu.Unlock()
	if err := p.rec(callcontrol.ActionDial, "", req.To); err != nil {
		return "", err
	}
	return leg, nil
}

func (p *fakeProvider) Transfer(ctx context.Context, legID, to string) error {
	return p.rec(callcontrol.ActionTransfer, legID, to)
}

func (p *fakeProvider) JoinConference(ctx context.Context, legID string, req callcontrol.JoinConferenceRequest) error {
	p.mu.Lock()
	p.lastJoin = req
	p.mu.Unlock()
	return p.rec(callcontrol.ActionJoinConference, legID, req.Name)
}

func (p *fakeProvider) LeaveConference(ctx context.Context, legID string) error {
	return p.rec(callcontrol.ActionLeaveConference, legID, "")
}

func (p *fakeProvider) ConferenceParticipantAction(ctx context.Context, conferenceID string, action callcontrol.ConferenceAction, legIDs ...string) error {
	var err error
	for _, leg := range legIDs {
		if e := p.rec("conference_"+string(action), leg, conferenceID); e != nil {
			err = e
		}
	}
	return err
}

func (p *fakeProvider) GetConference(ctx context.Context, conferenceID string) (callcontrol.Conference, error) {
	if err := p.rec(callcontrol.ActionGetConference, "", conferenceID); err != nil {
		return callcontrol.Conference{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conference, nil
}

type fakePresence struct {
	mu        sync.Mutex
	available map[string]time.Time
	onCall    map[string]time.Time
	err       error
}

func newFakePresence() *fakePresence {
	return &fakePresence{available: map[string]time.Time{}, onCall: map[string]time.Time{}}
}

func (p *fakePresence) SetAvailable(ctx context.Context, agentID string, at time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	delete(p.onCall, agentID)
	p.available[agentID] = at
	return nil
}

func (p *fakePresence) SetOnCall(ctx context.Context, agentID string, at time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	delete(p.available, agentID)
	p.onCall[agentID] = at
	return nil
}

func (p *fakePresence) isOnCall(agentID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.onCall[agentID]
	return ok
}

func (p *fakePresence) isAvailable(agentID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.available[agentID]
	return ok
}

// fakeLocker grants each key to one holder at a time.
type fakeLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func (l *fakeLocker) Lock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held == nil {
		l.held = map[string]bool{}
	}
	if l.held[key] {
		return nil, false, nil
	}
	l.held[key] = true
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
		return nil
	}, true, nil
}

var testNow = time.Date(2026, 3, 2, 15, 4, 5, 0, time.UTC)

type harness struct {
	svc      *Service
	provider *fakeProvider
	store    *MemoryRepo
	presence *fakePresence
	audit    *audit.MemoryRepo
	locker   *fakeLocker
}

func testOptions() Options {
	return Options{
		ConnectionID:    "conn-1",
		CallerID:        "+15550001111",
		HoldMusicURL:    "https://cdn.example.com/hold.mp3",
		HoldPlaybackLeg: PlaybackOnAgent,
		SIPDomain:       "pbx.example.com",
	}
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	h := &harness{
		provider: newFakeProvider(),
		store:    NewMemoryRepo(),
		presence: newFakePresence(),
		audit:    audit.NewMemoryRepo(),
		locker:   &fakeLocker{},
	}
	svc, err := NewService(Deps{
		Provider:    h.provider,
		ActiveCalls: h.store,
		Transfers:   h.store,
		History:     h.store,
		Presence:    h.presence,
		Audit:       audit.NewService(h.audit),
		Locker:      h.locker,
	}, opts)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	ids := 0
	svc.clock = func() time.Time { return testNow }
	svc.registry.clock = svc.clock
	svc.newID = func() string {
		ids++
		return fmt.Sprintf("id-%d", ids)
	}
	h.svc = svc
	return h
}

// seedCall creates agent-1's active call with customer leg C1 and agent leg A1.
func (h *harness) seedCall(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	if _, err := h.svc.Registry().Create(ctx, "agent-1", "A1"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := h.svc.Registry().AttachCustomerLeg(ctx, "agent-1", "C1"); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if err := h.store.UpsertCallRecord(ctx, CallRecord{
		ID: "rec-1", AgentID: "agent-1", ProviderLegID: "A1",
		Status: CallStatusInProgress, StartedAt: testNow, UpdatedAt: testNow,
	}); err != nil {
		t.Fatalf("history: %v", err)
	}
}
