package query

import (
	"github.com/kirinyoku/campusgo/internal/apperr"
)

var (
	ErrUnauthenticated      = apperr.E(apperr.Unauthorized, "authentication required")
	ErrEventNotFound        = apperr.E(apperr.NotFound, "event not found")
	ErrRegistrationNotFound = apperr.E(apperr.NotFound, "registration not found")
	ErrNotTicketOwner       = apperr.E(apperr.Forbidden, "only the ticket owner or an admin may view this ticket")
	ErrNotEventStaff        = apperr.E(apperr.Forbidden, "not assigned to this event")
)
