package auth

import (
	"errors"
	"net/http"
	"strings"

	"dispo-crm/pkg/logger"

	"github.com/gin-gonic/gin"
)

const bearerPrefix = "Bearer "

var errMissingBearer = errors.New("missing bearer token")

// RequireAccessToken verifies the bearer access token and puts the caller's
// Identity on the request context (and the user_id, agent_id, role gin keys).
// Role checks live in internal/rbac.
func RequireAccessToken(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := bearerClaims(m, c.GetHeader("Authorization"))
		if err != nil {
			logger.FromGin(c).Debug("rejected token", "error", err)
			msg := "invalid token"
			if errors.Is(err, errMissingBearer) {
				msg = err.Error()
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
			return
		}

		id := claims.Identity()
		c.Request = c.Request.WithContext(WithIdentity(c.Request.Context(), id))
		c.Set("user_id", id.UserID)
		c.Set("agent_id", id.AgentID)
		c.Set("role", id.Role)
		c.Next()
	}
}

func bearerClaims(m *Manager, header string) (Claims, error) {
	raw, ok := strings.CutPrefix(strings.TrimSpace(header), bearerPrefix)
	if !ok || strings.TrimSpace(raw) == "" {
		return Claims{}, errMissingBearer
	}
	return m.Verify(strings.TrimSpace(raw), TokenTypeAccess, m.clock())
}
