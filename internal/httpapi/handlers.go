package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"dispo-crm/internal/auth"
	"dispo-crm/internal/calls"
	"dispo-crm/internal/rbac"
	"dispo-crm/internal/reporting"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth    *auth.Manager
	Calls   *calls.Service
	Reports *reporting.Service
}

// --- Auth ---

type loginRequest struct {
	UserID  string `json:"user_id"`
	AgentID string `json:"agent_id"`
	Role    string `json:"role"`
}

// Login issues a JWT token pair without checking credentials. Routes mount it
// only outside production.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	if req.UserID == "" || req.Role == "" {
		badRequest(c, "user_id and role required")
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), auth.Identity{UserID: req.UserID, AgentID: req.AgentID, Role: req.Role})
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- Active call ---

type registerCallRequest struct {
	AgentLegID    string `json:"agent_leg_id"`
	CustomerLegID string `json:"customer_leg_id"`
	From          string `json:"from"`
	To            string `json:"to"`
}

func (h Handlers) RegisterCall(c *gin.Context) {
	var req registerCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	out, err := h.Calls.RegisterCall(c.Request.Context(), calls.RegisterCallRequest{
		AgentID:       rbac.ActingAgent(c),
		AgentLegID:    req.AgentLegID,
		CustomerLegID: req.CustomerLegID,
		From:          req.From,
		To:            req.To,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (h Handlers) GetActiveCall(c *gin.Context) {
	out, ok, err := h.Calls.Registry().Get(c.Request.Context(), rbac.ActingAgent(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	if !ok {
		abortWithError(c, calls.ErrNoActiveCall)
		return
	}
	c.JSON(http.StatusOK, out)
}

type customerLegRequest struct {
	CustomerLegID string `json:"customer_leg_id"`
}

func (h Handlers) AttachCustomerLeg(c *gin.Context) {
	var req customerLegRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	agentID := rbac.ActingAgent(c)
	if err := h.Calls.Registry().AttachCustomerLeg(c.Request.Context(), agentID, req.CustomerLegID); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"agent_id": agentID, "customer_leg_id": req.CustomerLegID})
}

// CancelActiveCall hangs up every leg of the acting agent's call and resets its state.
func (h Handlers) CancelActiveCall(c *gin.Context) {
	out, err := h.Calls.CancelActiveCall(c.Request.Context(), rbac.ActingAgent(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// --- Hold / blind transfer ---

type holdRequest struct {
	HoldMusicURL string `json:"hold_music_url"`
}

func (h Handlers) Hold(c *gin.Context) {
	var req holdRequest
	// The body is optional.
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid json")
			return
		}
	}
	out, err := h.Calls.Hold(c.Request.Context(), calls.HoldRequest{
		AgentID:      rbac.ActingAgent(c),
		LegID:        c.Param("leg"),
		HoldMusicURL: req.HoldMusicURL,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) Resume(c *gin.Context) {
	out, err := h.Calls.Resume(c.Request.Context(), calls.ResumeRequest{
		AgentID: rbac.ActingAgent(c),
		LegID:   c.Param("leg"),
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

type blindTransferRequest struct {
	Destination string `json:"destination"`
}

func (h Handlers) BlindTransfer(c *gin.Context) {
	var req blindTransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	out, err := h.Calls.BlindTransfer(c.Request.Context(), calls.BlindTransferRequest{
		AgentID:     rbac.ActingAgent(c),
		LegID:       c.Param("leg"),
		Destination: req.Destination,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// --- Attended transfer ---

type startTransferRequest struct {
	CustomerLegID string `json:"customer_leg_id"`
	AgentLegID    string `json:"agent_leg_id"`
	Destination   string `json:"destination"`
}

// StartTransfer fills leg ids the client omitted from the agent's active call.
func (h Handlers) StartTransfer(c *gin.Context) {
	var req startTransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	ctx := c.Request.Context()
	agentID := rbac.ActingAgent(c)
	if err := h.fillLegs(ctx, agentID, &req.CustomerLegID, &req.AgentLegID); err != nil {
		abortWithError(c, err)
		return
	}

	out, err := h.Calls.StartTransfer(ctx, calls.StartTransferRequest{
		AgentID:       agentID,
		CustomerLegID: req.CustomerLegID,
		AgentLegID:    req.AgentLegID,
		Destination:   req.Destination,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

// fillLegs completes omitted customer and agent legs from the agent's active call.
func (h Handlers) fillLegs(ctx context.Context, agentID string, customerLegID, agentLegID *string) error {
	if *customerLegID != "" && *agentLegID != "" {
		return nil
	}
	rec, ok, err := h.Calls.Registry().Get(ctx, agentID)
	if err != nil {
		return err
	}
	if !ok {
		return calls.ErrNoActiveCall
	}
	if *customerLegID == "" {
		*customerLegID = rec.CustomerLegID
	}
	if *agentLegID == "" {
		*agentLegID = rec.AgentLegID
	}
	return nil
}

type consultRequest struct {
	CustomerLegID string `json:"customer_leg_id"`
	AgentLegID    string `json:"agent_leg_id"`
	ConsultLegID  string `json:"consult_leg_id"`
}

// bindConsult reads a consult request. Only bridge and complete need the
// consult leg: cancel also runs after a failed dial, when there is none.
func (h Handlers) bindConsult(c *gin.Context, needConsultLeg bool) (calls.ConsultRequest, bool) {
	var req consultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return calls.ConsultRequest{}, false
	}
	req.ConsultLegID = strings.TrimSpace(req.ConsultLegID)
	if needConsultLeg && req.ConsultLegID == "" {
		badRequest(c, "consult_leg_id required")
		return calls.ConsultRequest{}, false
	}
	return calls.ConsultRequest{
		AgentID:       rbac.ActingAgent(c),
		CustomerLegID: req.CustomerLegID,
		AgentLegID:    req.AgentLegID,
		ConsultLegID:  req.ConsultLegID,
	}, true
}

func (h Handlers) BridgeAgentToConsult(c *gin.Context) {
	req, ok := h.bindConsult(c, true)
	if !ok {
		return
	}
	h.respondTransfer(c, func() (calls.TransferAttempt, error) {
		return h.Calls.BridgeAgentToConsult(c.Request.Context(), req)
	})
}

func (h Handlers) CompleteTransfer(c *gin.Context) {
	req, ok := h.bindConsult(c, true)
	if !ok {
		return
	}
	h.respondTransfer(c, func() (calls.TransferAttempt, error) {
		return h.Calls.CompleteTransfer(c.Request.Context(), req)
	})
}

// CancelTransfer without a consult leg stops the hold music and re-bridges
// the legs of the agent's active call.
func (h Handlers) CancelTransfer(c *gin.Context) {
	req, ok := h.bindConsult(c, false)
	if !ok {
		return
	}
	if req.ConsultLegID == "" {
		if err := h.fillLegs(c.Request.Context(), req.AgentID, &req.CustomerLegID, &req.AgentLegID); err != nil {
			abortWithError(c, err)
			return
		}
	}
	h.respondTransfer(c, func() (calls.TransferAttempt, error) {
		return h.Calls.CancelTransfer(c.Request.Context(), req)
	})
}

func (h Handlers) GetTransfer(c *gin.Context) {
	h.respondTransfer(c, func() (calls.TransferAttempt, error) {
		return h.Calls.GetTransfer(c.Request.Context(), rbac.ActingAgent(c), c.Param("consult_leg"))
	})
}

func (h Handlers) respondTransfer(c *gin.Context, fn func() (calls.TransferAttempt, error)) {
	out, err := fn()
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transfer": out, "phase": out.Phase()})
}

// --- Conference ---

type conferenceRequest struct {
	Command             string `json:"command"`
	ConferenceID        string `json:"conference_id"`
	EndConferenceOnExit bool   `json:"end_conference_on_exit"`
	Mute                bool   `json:"mute"`
	SupervisorRole      string `json:"supervisor_role"`
	HoldMusicURL        string `json:"hold_music_url"`
}

func (h Handlers) Conference(c *gin.Context) {
	var req conferenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	out, err := h.Calls.Conference(c.Request.Context(), calls.ConferenceRequest{
		LegID:               c.Param("leg"),
		Command:             req.Command,
		ConferenceID:        req.ConferenceID,
		EndConferenceOnExit: req.EndConferenceOnExit,
		Mute:                req.Mute,
		SupervisorRole:      req.SupervisorRole,
		HoldMusicURL:        req.HoldMusicURL,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) GetConference(c *gin.Context) {
	out, err := h.Calls.GetConference(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// --- Reporting ---

// TransfersReport summarizes the acting agent's transfers in [from, to), RFC 3339 query params.
func (h Handlers) TransfersReport(c *gin.Context) {
	if h.Reports == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reporting not configured"})
		return
	}
	from, err1 := time.Parse(time.RFC3339, c.Query("from"))
	to, err2 := time.Parse(time.RFC3339, c.Query("to"))
	if err1 != nil || err2 != nil {
		badRequest(c, "from and to must be RFC 3339 timestamps")
		return
	}
	out, err := h.Reports.TransfersSummary(c.Request.Context(), reporting.TransfersSummaryRequest{
		AgentID: rbac.ActingAgent(c),
		Range:   reporting.TimeRange{From: from, To: to},
	})
	if err != nil {
		if errors.Is(err, reporting.ErrInvalidRequest) {
			badRequest(c, err.Error())
			return
		}
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}
