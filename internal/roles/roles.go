// Package roles derives capabilities from a user's role.
package roles

import "booking-bot/internal/models"

// Requirement is the capability a route needs.
type Requirement int

const (
	RequireNone Requirement = iota
	RequireAdmin
	RequireOwner
)

func (r Requirement) String() string {
	switch r {
	case RequireAdmin:
		return "admin"
	case RequireOwner:
		return "owner"
	default:
		return "none"
	}
}

type Capabilities struct {
	CanAdmin bool
	CanOwn   bool
}

// Resolve maps a user to its capabilities. A nil user gets none.
func Resolve(u *models.User) Capabilities {
	if u == nil {
		return Capabilities{}
	}
	return Capabilities{
		CanAdmin: u.Role == models.RoleAdmin || u.Role == models.RoleOwner,
		CanOwn:   u.Role == models.RoleOwner,
	}
}

// Allows reports whether c satisfies req.
func (c Capabilities) Allows(req Requirement) bool {
	switch req {
	case RequireNone:
		return true
	case RequireAdmin:
		return c.CanAdmin
	case RequireOwner:
		return c.CanOwn
	default:
		return false
	}
}
