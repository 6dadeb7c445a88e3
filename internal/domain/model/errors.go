package model

import "errors"

// Not-found kinds. Scoring and tracking treat these as no-ops.
var (
	ErrMatchNotFound  = errors.New("match not found")
	ErrPlayerNotFound = errors.New("player not found")
)

// Transient engine failures. Callers retry on their own schedule.
var (
	ErrEngineUnavailable = errors.New("match engine unavailable")
	ErrEngineTimeout     = errors.New("match engine timeout")
)

// ErrInvalidInput rejects malformed identifiers and values.
var ErrInvalidInput = errors.New("invalid input")

// State-machine violations.
var (
	ErrMatchNotEnded     = errors.New("match has not ended")
	ErrMatchInvalid      = errors.New("match marked invalid")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrAlreadySettled    = errors.New("match already settled")
)

// IsTransient reports whether err is worth retrying later.
func IsTransient(err error) bool {
	return errors.Is(err, ErrEngineUnavailable) || errors.Is(err, ErrEngineTimeout)
}
