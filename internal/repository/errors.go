package repository

import (
	"errors"

	"github.com/kirinyoku/campusgo/internal/apperr"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrConflict  = errors.New("conflict")
	ErrCodeTaken = errors.New("ticket code already taken")

	// ErrRetryable is surfaced once a unit of work gave up retrying
	// serialization failures. Clients may retry the request.
	ErrRetryable = apperr.E(apperr.Unavailable, "store is busy, retry later")
)
