package httpapi

import (
	"dispo-crm/internal/rbac"

	"github.com/gin-gonic/gin"
)

// Mount registers the agent-facing call routes on an already authenticated group.
func Mount(v1 *gin.RouterGroup, h Handlers) {
	acting := []gin.HandlerFunc{
		rbac.RequireAnyRole(rbac.RoleAgent, rbac.RoleSupervisor),
		rbac.RequireActingAgent(),
	}

	calls := v1.Group("/calls", acting...)
	{
		calls.POST("/active", h.RegisterCall)
		calls.GET("/active", h.GetActiveCall)
		calls.DELETE("/active", h.CancelActiveCall)
		calls.POST("/active/customer-leg", h.AttachCustomerLeg)

		calls.POST("/:leg/hold", h.Hold)
		calls.POST("/:leg/resume", h.Resume)
		calls.POST("/:leg/blind-transfer", h.BlindTransfer)
		calls.POST("/:leg/conference", h.Conference)
	}

	transfers := v1.Group("/transfers/attended", acting...)
	{
		transfers.POST("", h.StartTransfer)
		transfers.POST("/bridge", h.BridgeAgentToConsult)
		transfers.POST("/complete", h.CompleteTransfer)
		transfers.POST("/cancel", h.CancelTransfer)
		transfers.GET("/:consult_leg", h.GetTransfer)
	}

	v1.GET("/conferences/:id", rbac.RequireAnyRole(rbac.RoleAgent, rbac.RoleSupervisor), h.GetConference)
	v1.GET("/reports/transfers", append(acting, h.TransfersReport)...)
}
