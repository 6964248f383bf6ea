package rbac

import (
	"net/http"
	"strings"

	"dispo-crm/internal/auth"

	"github.com/gin-gonic/gin"
)

const (
	// HeaderActingAgent names the agent a supervisor or admin is acting for.
	HeaderActingAgent = "X-Agent-Id"

	actingAgentKey = "acting_agent_id"
)

// RequireAnyRole allows access if the caller has any of the provided roles.
// admin bypasses all checks.
func RequireAnyRole(allowed ...string) gin.HandlerFunc {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, r := range allowed {
		allowedSet[r] = struct{}{}
	}

	return func(c *gin.Context) {
		role, err := auth.Role(c.Request.Context())
		if err != nil || role == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "role required"})
			return
		}
		if IsAdmin(role) {
			c.Next()
			return
		}
		if _, ok := allowedSet[role]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

// RequireActingAgent resolves which agent's calls the request controls.
//
// Agents always act for themselves; a differing X-Agent-Id is forbidden.
// Supervisors and admins must name the agent unless their token carries one.
func RequireActingAgent() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		role, _ := auth.Role(ctx)
		own, _ := auth.AgentID(ctx)
		requested := strings.TrimSpace(c.GetHeader(HeaderActingAgent))

		acting := own
		switch {
		case ActsForOthers(role):
			if requested != "" {
				acting = requested
			}
		case requested != "" && requested != own:
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "cannot act for another agent"})
			return
		}
		if acting == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "agent_id required"})
			return
		}
		c.Set(actingAgentKey, acting)
		c.Next()
	}
}

// ActingAgent returns the agent resolved by RequireActingAgent.
func ActingAgent(c *gin.Context) string {
	return c.GetString(actingAgentKey)
}
