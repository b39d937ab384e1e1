package api

import (
	"errors"
	"net/http"

	"github.com/nsqe/nsqe/errs"
)

// kindTable maps the engine's sentinel error kinds to their wire name
// and default HTTP status. Callers match on kind, never on a Go type.
var kindTable = []struct {
	err    error
	kind   string
	status int
}{
	{errs.ErrInvalidInput, "invalid_input", http.StatusBadRequest},
	{errs.ErrPrecisionUnsupported, "precision_unsupported", http.StatusBadRequest},
	{errs.ErrInsufficientCalibration, "insufficient_calibration", http.StatusBadRequest},
	{errs.ErrAccuracyFloorBreached, "accuracy_floor_breached", http.StatusUnprocessableEntity},
	{errs.ErrStaleHandle, "stale_handle", http.StatusConflict},
	{errs.ErrCapacityExhausted, "capacity_exhausted", http.StatusServiceUnavailable},
	{errs.ErrOverloaded, "overloaded", http.StatusServiceUnavailable},
	{errs.ErrNoViableRoute, "no_viable_route", http.StatusUnprocessableEntity},
	{errs.ErrNodeLost, "node_lost", http.StatusBadGateway},
	{errs.ErrCancelled, "cancelled", http.StatusRequestTimeout},
	{errs.ErrDeadline, "deadline", http.StatusGatewayTimeout},
	{errs.ErrInternalInvariantViolated, "internal_invariant_violated", http.StatusInternalServerError},
	{errs.ErrModelEvicting, "model_evicting", http.StatusConflict},
	{errs.ErrModelNotFound, "model_not_found", http.StatusNotFound},
	{errs.ErrNodeNotFound, "node_not_found", http.StatusNotFound},
}

// FromError translates err into a StatusError, matching it against the
// engine's sentinel kinds in order and falling back to an opaque
// internal error for anything unrecognized.
func FromError(err error) StatusError {
	if err == nil {
		return StatusError{}
	}
	for _, e := range kindTable {
		if errors.Is(err, e.err) {
			return StatusError{StatusCode: e.status, Kind: e.kind, Message: err.Error()}
		}
	}
	return StatusError{StatusCode: http.StatusInternalServerError, Kind: "internal", Message: err.Error()}
}

// FinishReasonFor maps a terminal stream error to the fixed finish-
// reason vocabulary.
func FinishReasonFor(err error) FinishReason {
	switch {
	case err == nil:
		return FinishStop
	case errors.Is(err, errs.ErrCancelled):
		return FinishCancelled
	case errors.Is(err, errs.ErrDeadline):
		return FinishDeadline
	default:
		return FinishError
	}
}
