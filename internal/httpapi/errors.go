package httpapi

import (
	"errors"
	"net/http"

	"dispo-crm/internal/calls"
	"dispo-crm/pkg/logger"

	"github.com/gin-gonic/gin"
)

type errorBody struct {
	Kind   calls.Kind `json:"kind"`
	Detail string     `json:"detail"`
	Op     string     `json:"op,omitempty"`
	Step   string     `json:"step,omitempty"`
}

// StatusFor maps an engine error kind to an HTTP status.
func StatusFor(kind calls.Kind) int {
	switch kind {
	case calls.KindInvalidInput:
		return http.StatusBadRequest
	case calls.KindNoActiveCall, calls.KindNotFound:
		return http.StatusNotFound
	case calls.KindInvalidState:
		return http.StatusUnprocessableEntity
	case calls.KindConflict:
		return http.StatusConflict
	case calls.KindProvider:
		return http.StatusBadGateway
	default:
		// missing_configuration is an operator problem, not the caller's.
		return http.StatusInternalServerError
	}
}

// abortWithError writes the error envelope and logs server-side failures.
func abortWithError(c *gin.Context, err error) {
	kind := calls.KindOf(err)
	body := errorBody{Kind: kind, Detail: err.Error()}
	var se *calls.StepError
	if errors.As(err, &se) {
		body.Op = se.Op
		body.Step = se.Step
	}

	status := StatusFor(kind)
	if status >= http.StatusInternalServerError {
		logger.FromGin(c).Error("request failed", "kind", kind, "op", body.Op, "step", body.Step, "err", err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": body})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": errorBody{Kind: calls.KindInvalidInput, Detail: msg}})
}
