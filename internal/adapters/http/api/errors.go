package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/okian/bastion/internal/adapters/mq/queue"
	"github.com/okian/bastion/internal/adapters/repository"
	"github.com/okian/bastion/internal/domain/model"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrBackpressure = errors.New("backpressure")
	ErrUnavailable  = errors.New("upstream unavailable")
)

// Error carries the failing operation and the kind used to pick a status code.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is.
func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// NewKind returns an error of the given kind with no further cause.
func NewKind(op string, kind error) error {
	return &Error{Op: op, Kind: kind}
}

// WrapKind attaches a kind to err.
func WrapKind(op string, kind, err error) error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// Wrap attaches op to err and derives the kind from the domain error.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Kind: kindOf(err), Err: err}
}

func kindOf(err error) error {
	switch {
	case errors.Is(err, model.ErrInvalidInput), errors.Is(err, repository.ErrInvalidLimit):
		return ErrBadRequest
	case errors.Is(err, model.ErrMatchNotFound), errors.Is(err, model.ErrPlayerNotFound):
		return ErrNotFound
	case errors.Is(err, repository.ErrExists),
		errors.Is(err, model.ErrMatchNotEnded),
		errors.Is(err, model.ErrMatchInvalid),
		errors.Is(err, model.ErrInvalidTransition),
		errors.Is(err, model.ErrAlreadySettled):
		return ErrConflict
	case errors.Is(err, queue.ErrFull), errors.Is(err, queue.ErrClosed):
		return ErrBackpressure
	case model.IsTransient(err):
		return ErrUnavailable
	}
	return nil
}

// statusOf maps an error to its HTTP status and a stable machine code.
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, model.ErrMatchNotEnded):
		return http.StatusConflict, "match_not_ended"
	case errors.Is(err, model.ErrMatchInvalid):
		return http.StatusConflict, "match_invalid"
	case errors.Is(err, model.ErrAlreadySettled):
		return http.StatusConflict, "already_settled"
	case errors.Is(err, ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, ErrBackpressure):
		return http.StatusTooManyRequests, "backpressure"
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable, "engine_unavailable"
	}
	return http.StatusInternalServerError, "internal_error"
}

// Request validation failures.
var (
	errMissingServiceID = errors.New("missing service_id")
	errBadStatus        = errors.New("status must be UP or DOWN")
	errBadTeam          = errors.New("team_id must be teamA or teamB")
	errBadTick          = errors.New("tick must not be negative")
	errBadLimit         = errors.New("limit must be a positive integer")
	errLimitExceeded    = errors.New("limit exceeds the maximum")
)
