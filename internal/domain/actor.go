package domain

import "github.com/google/uuid"

type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleStaff   Role = "STAFF"
	RoleStudent Role = "STUDENT"
)

func ParseRole(s string) (Role, bool) {
	switch r := Role(s); r {
	case RoleAdmin, RoleStaff, RoleStudent:
		return r, true
	}
	return "", false
}

// Actor is the authenticated caller. Services derive every permission from
// it instead of re-reading the session per call site.
type Actor struct {
	ID   uuid.UUID
	Role Role
}

func (a Actor) Authenticated() bool { return a.ID != uuid.Nil && a.Role != "" }

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// CanOperateDoor reports whether the actor may run check-ins at all. Staff
// still need an assignment for the concrete event.
func (a Actor) CanOperateDoor() bool {
	return a.Role == RoleAdmin || a.Role == RoleStaff
}

// Owns reports whether the actor is userID or an admin acting for them.
func (a Actor) Owns(userID uuid.UUID) bool {
	return a.IsAdmin() || (a.ID != uuid.Nil && a.ID == userID)
}
