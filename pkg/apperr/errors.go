package apperr

import "errors"

var (
	// ErrInvalidInput marks a bad enum value or payload shape. Callers get it back unchanged.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound marks an unknown entry or alert id.
	ErrNotFound = errors.New("not found")
	// ErrProbeFailure wraps errors raised inside a health probe.
	ErrProbeFailure = errors.New("probe failure")
	// ErrDispatchFailure wraps notification send errors.
	ErrDispatchFailure = errors.New("dispatch failure")
)

func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
