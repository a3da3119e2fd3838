package fastmixer

import (
	"errors"
	"fmt"
)

// Standard errors.
var (
	// ErrAlreadyRunning is returned when Run is called on a running thread.
	ErrAlreadyRunning = errors.New("fastmixer: render thread is already running")

	// ErrExited is returned when Run is called on a thread that has exited.
	ErrExited = errors.New("fastmixer: render thread has exited")

	// ErrNoFreeSlot is returned by Controller.AddSource when all MaxSources
	// slots are in use.
	ErrNoFreeSlot = errors.New("fastmixer: no free source slot")

	// ErrInvalidSource is returned for an out-of-range or empty source slot,
	// or a source that cannot be mixed.
	ErrInvalidSource = errors.New("fastmixer: invalid source")

	// ErrInvalidGeometry is returned for a frame count, sample rate or
	// channel count the render thread cannot handle.
	ErrInvalidGeometry = errors.New("fastmixer: invalid geometry")

	// ErrInvalidOption is wrapped by errors returned for out-of-range options.
	ErrInvalidOption = errors.New("fastmixer: invalid option")

	// ErrImplausibleDump is wrapped by every RangeError.
	ErrImplausibleDump = errors.New("fastmixer: implausible dump value")
)

// RangeError reports a diagnostics field outside its plausible range,
// typically the result of reading the dump mid-update.
type RangeError struct {
	Field string
	Value int64
	Min   int64
	Max   int64
}

// Error implements the error interface.
func (e *RangeError) Error() string {
	return fmt.Sprintf("fastmixer: implausible dump value: %s=%d outside [%d, %d]", e.Field, e.Value, e.Min, e.Max)
}

// Unwrap returns ErrImplausibleDump, for use with [errors.Is].
func (e *RangeError) Unwrap() error {
	return ErrImplausibleDump
}
