package rbac

import "dispo-crm/internal/auth"

// Role names. Keep these stable; they are part of the token contract.
const (
	RoleAgent      = auth.RoleAgent
	RoleSupervisor = "supervisor"
	RoleAdmin      = "admin"
)

func IsAdmin(role string) bool { return role == RoleAdmin }

// ActsForOthers reports whether role may drive another agent's calls.
func ActsForOthers(role string) bool { return role == RoleSupervisor || role == RoleAdmin }
