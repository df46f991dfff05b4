package registration

import (
	"errors"

	"github.com/kirinyoku/campusgo/internal/apperr"
)

var (
	ErrUnauthenticated      = apperr.E(apperr.Unauthorized, "authentication required")
	ErrEventNotFound        = apperr.E(apperr.NotFound, "event not found")
	ErrEventNotOpen         = apperr.E(apperr.InvalidState, "event is not available for registration")
	ErrFullyBooked          = apperr.E(apperr.CapacityExceeded, "event is fully booked")
	ErrAlreadyRegistered    = apperr.E(apperr.AlreadyExists, "already registered for this event")
	ErrRegistrationNotFound = apperr.E(apperr.NotFound, "registration not found")
	ErrNotOwner             = apperr.E(apperr.Forbidden, "only the ticket owner or an admin may cancel")

	// errCodeCollision carries no kind and therefore surfaces as INTERNAL.
	errCodeCollision = errors.New("ticket code collided twice")
)
