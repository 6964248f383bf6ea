package auth

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims are the only supported JWT claims shape for this service.
// AgentID ties the caller to the agent whose calls they control; supervisors
// and admins may carry none and name an agent per request instead.
type Claims struct {
	jwt.RegisteredClaims

	UserID    string    `json:"user_id"`
	AgentID   string    `json:"agent_id,omitempty"`
	Role      string    `json:"role"`
	TokenType TokenType `json:"token_type"`
}

func (c Claims) Identity() Identity {
	return Identity{UserID: c.UserID, AgentID: c.AgentID, Role: c.Role}
}

func (c Claims) check(expected TokenType) error {
	switch {
	case c.TokenType != expected:
		return errors.New("token_type mismatch")
	case c.UserID == "":
		return errors.New("user_id missing")
	case expected != TokenTypeAccess:
		return nil
	case c.Role == "":
		return errors.New("role missing in access token")
	case c.Role == RoleAgent && c.AgentID == "":
		return errors.New("agent_id missing in agent token")
	}
	return nil
}
