package telephony

import (
	"context"
	"crypto/subtle"
	"net/http"
	"time"

	"dispo-crm/internal/calls"
	"dispo-crm/pkg/logger"

	"github.com/gin-gonic/gin"
)

const HeaderWebhookSecret = "X-Webhook-Secret"

// EventHandler folds provider events into engine state. *calls.Service satisfies it.
type EventHandler interface {
	HandleEvent(ctx context.Context, ev calls.ProviderEvent) (calls.EventOutcome, error)
}

// CallControlWebhookHandler converts call-control webhooks to engine events.
//
// Storage failures answer 500 so the provider redelivers; every other outcome
// is acknowledged with 200, including events we ignore.
type CallControlWebhookHandler struct {
	Events EventHandler

	// Secret, when set, must match the X-Webhook-Secret header.
	Secret string

	Now func() time.Time
}

func (h CallControlWebhookHandler) Handle(c *gin.Context) {
	log := logger.FromGin(c)

	if h.Now == nil {
		h.Now = time.Now
	}
	if h.Events == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "event handler not configured"})
		return
	}
	if h.Secret != "" {
		got := c.GetHeader(HeaderWebhookSecret)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.Secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook secret"})
			return
		}
	}

	w, err := ParseCallControlWebhook(c.Request.Body)
	if err != nil {
		log.Warn("call-control webhook parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	ev := w.ToProviderEvent(h.Now())
	outcome, err := h.Events.HandleEvent(c.Request.Context(), ev)
	if err != nil {
		log.Error("call-control event failed", "event_id", ev.ID, "event_type", ev.Type, "leg_id", ev.LegID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "event not processed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": string(outcome)})
}
