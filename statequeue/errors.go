package statequeue

import (
	"errors"
	"fmt"
	"time"
)

// Standard errors.
var (
	// ErrPoolSize is returned when a pool smaller than MinPoolSize is requested.
	ErrPoolSize = errors.New("statequeue: pool size too small")

	// ErrLiveness is wrapped by LivenessError, use errors.Is to match it.
	ErrLiveness = errors.New("statequeue: reader stopped acknowledging")

	// ErrPublishFromReader is returned when Publish is called on the goroutine
	// bound as the reader.
	ErrPublishFromReader = errors.New("statequeue: publish called from reader goroutine")

	// ErrInvalidOption is wrapped by errors returned for out-of-range options.
	ErrInvalidOption = errors.New("statequeue: invalid option")
)

// LivenessError reports that a bounded wait on the reader expired. Either the
// writer needed a free slot, or it was waiting for a Sync acknowledgement.
// The reader should be considered unresponsive.
type LivenessError struct {
	// Generation is the generation the writer was waiting on.
	Generation uint64
	// Acknowledged is the reader's acknowledged generation when the wait gave up.
	Acknowledged uint64
	// Waited is how long the writer waited.
	Waited time.Duration
	// Sync is true for an acknowledgement wait, false for a slot wait.
	Sync bool
}

// Error implements the error interface.
func (e *LivenessError) Error() string {
	what := `free slot`
	if e.Sync {
		what = `acknowledgement`
	}
	return fmt.Sprintf(
		"statequeue: reader stopped acknowledging: waited %s for %s of generation %d (acknowledged %d)",
		e.Waited, what, e.Generation, e.Acknowledged,
	)
}

// Unwrap returns ErrLiveness, for use with [errors.Is].
func (e *LivenessError) Unwrap() error {
	return ErrLiveness
}
