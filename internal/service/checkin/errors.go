package checkin

import (
	"time"

	"github.com/kirinyoku/campusgo/internal/apperr"
)

var (
	ErrNotDoorRole    = apperr.E(apperr.Unauthorized, "staff or admin role required")
	ErrInvalidMethod  = apperr.E(apperr.InvalidArgument, "method must be QR_CODE or MANUAL")
	ErrInvalidCode    = apperr.E(apperr.NotFound, "invalid code")
	ErrNotConfirmed   = apperr.E(apperr.InvalidState, "registration is not confirmed")
	ErrEventNotFound  = apperr.E(apperr.NotFound, "event not found")
	ErrEventNotActive = apperr.E(apperr.InvalidState, "event is not open for check-in")
	ErrNotAssigned    = apperr.E(apperr.Forbidden, "not assigned to this event")
)

type WindowReason string

const (
	TooEarly WindowReason = "too_early"
	TooLate  WindowReason = "too_late"
)

// OutOfWindowError reports a check-in attempted outside the event's window.
type OutOfWindowError struct {
	Reason   WindowReason
	OpensAt  time.Time
	ClosesAt time.Time
}

func (e OutOfWindowError) Error() string {
	if e.Reason == TooEarly {
		return "check-in is not open yet"
	}
	return "check-in has closed"
}

func (e OutOfWindowError) Kind() apperr.Kind { return apperr.OutOfWindow }

func (e OutOfWindowError) Details() map[string]any {
	return map[string]any{
		"reason":    string(e.Reason),
		"opens_at":  e.OpensAt.UTC().Format(time.RFC3339),
		"closes_at": e.ClosesAt.UTC().Format(time.RFC3339),
	}
}

// AlreadyCheckedInError carries the timestamp of the check-in that won.
type AlreadyCheckedInError struct {
	CheckedInAt time.Time
}

func (e AlreadyCheckedInError) Error() string {
	return "already checked in"
}

func (e AlreadyCheckedInError) Kind() apperr.Kind { return apperr.Conflict }

func (e AlreadyCheckedInError) Details() map[string]any {
	return map[string]any{
		"checked_in_at": e.CheckedInAt.UTC().Format(time.RFC3339Nano),
	}
}
