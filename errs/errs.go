// Package errs defines the error kinds shared across the engine's
// components. Kinds are sentinel errors rather than a type hierarchy so
// callers can test with errors.Is through any amount of fmt.Errorf
// wrapping.
package errs

import "errors"

var (
	ErrInvalidInput              = errors.New("invalid input")
	ErrPrecisionUnsupported      = errors.New("precision unsupported")
	ErrInsufficientCalibration   = errors.New("insufficient calibration data")
	ErrAccuracyFloorBreached     = errors.New("accuracy floor breached")
	ErrStaleHandle               = errors.New("stale handle")
	ErrCapacityExhausted         = errors.New("capacity exhausted")
	ErrOverloaded                = errors.New("overloaded")
	ErrNoViableRoute             = errors.New("no viable route")
	ErrNodeLost                  = errors.New("node lost")
	ErrCancelled                 = errors.New("cancelled")
	ErrDeadline                  = errors.New("deadline exceeded")
	ErrInternalInvariantViolated = errors.New("internal invariant violated")

	// ErrModelEvicting is specific to the registry: a model mid-eviction
	// rejects new executions rather than racing the eviction to resident.
	ErrModelEvicting = errors.New("model is evicting")
	// ErrModelNotFound reports a lookup against an unregistered model id.
	ErrModelNotFound = errors.New("model not found")

	// ErrNodeNotFound reports a lookup against an unregistered cluster node.
	ErrNodeNotFound = errors.New("node not found")
	// ErrAlreadyInitialized reports a second Init call without an
	// intervening Shutdown.
	ErrAlreadyInitialized = errors.New("already initialized")
	// ErrNotInitialized reports a call against a component before its
	// Init has run.
	ErrNotInitialized = errors.New("not initialized")
)

// Retryable reports whether callers should retry err locally with bounded
// attempts rather than surface it, per the propagation policy in the
// error handling design: StaleHandle and Overloaded recover locally.
func Retryable(err error) bool {
	return errors.Is(err, ErrStaleHandle) || errors.Is(err, ErrOverloaded)
}
