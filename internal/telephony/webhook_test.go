package telephony

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"dispo-crm/internal/calls"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const answeredBody = `{"data":{"id":"ev-1","event_type":"call.answered","occurred_at":"2026-03-02T15:04:05.123Z",
"payload":{"call_control_id":"Q1","client_state":"abc=","from":"+15550001111","to":"+15559998888","extra":true}}}`

func TestParseCallControlWebhook(t *testing.T) {
	w, err := ParseCallControlWebhook(strings.NewReader(answeredBody))
	require.NoError(t, err)

	ev := w.ToProviderEvent(time.Unix(0, 0))
	assert.Equal(t, "ev-1", ev.ID)
	assert.Equal(t, calls.EventCallAnswered, ev.Type)
	assert.Equal(t, "Q1", ev.LegID)
	assert.Equal(t, "abc=", ev.ClientState)
	assert.Equal(t, time.Date(2026, 3, 2, 15, 4, 5, 123000000, time.UTC), ev.OccurredAt)
}

func TestParseCallControlWebhook_Rejects(t *testing.T) {
	for _, body := range []string{`not json`, `{"data":{"payload":{"call_control_id":"Q1"}}}`} {
		_, err := ParseCallControlWebhook(strings.NewReader(body))
		assert.ErrorIs(t, err, ErrInvalidWebhook, body)
	}
}

func TestToProviderEvent_BadTimestampFallsBack(t *testing.T) {
	received := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	w := CallControlWebhook{Data: WebhookData{EventType: "call.hangup", OccurredAt: "yesterday"}}
	assert.Equal(t, received, w.ToProviderEvent(received).OccurredAt)
}

type fakeEvents struct {
	got     []calls.ProviderEvent
	outcome calls.EventOutcome
	err     error
}

func (f *fakeEvents) HandleEvent(ctx context.Context, ev calls.ProviderEvent) (calls.EventOutcome, error) {
	f.got = append(f.got, ev)
	return f.outcome, f.err
}

func serve(t *testing.T, h CallControlWebhookHandler, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/webhooks/call-control", h.Handle)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/call-control", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestWebhookHandler_DeliversEvent(t *testing.T) {
	events := &fakeEvents{outcome: calls.EventHandled}
	rec := serve(t, CallControlWebhookHandler{Events: events}, answeredBody, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"handled"}`, rec.Body.String())
	require.Len(t, events.got, 1)
	assert.Equal(t, "Q1", events.got[0].LegID)
}

func TestWebhookHandler_Secret(t *testing.T) {
	events := &fakeEvents{outcome: calls.EventIgnored}
	h := CallControlWebhookHandler{Events: events, Secret: "s3cret"}

	rec := serve(t, h, answeredBody, map[string]string{HeaderWebhookSecret: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, events.got)

	rec = serve(t, h, answeredBody, map[string]string{HeaderWebhookSecret: "s3cret"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, events.got, 1)
}

func TestWebhookHandler_BadPayload(t *testing.T) {
	events := &fakeEvents{}
	rec := serve(t, CallControlWebhookHandler{Events: events}, `{`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, events.got)
}

func TestWebhookHandler_StorageFailureAsksForRedelivery(t *testing.T) {
	events := &fakeEvents{err: errors.Join(calls.ErrStorage, errors.New("db down"))}
	rec := serve(t, CallControlWebhookHandler{Events: events}, answeredBody, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
