package agent

import (
	"errors"
	"fmt"
)

// ErrNotInitialized is returned by Invoke when the session's registry has
// not been initialized yet.
var ErrNotInitialized = errors.New("agent: session not initialized")

// ModelCallError reports a failed model backend call. A broken model channel
// cannot produce further useful turns, so Invoke terminates with this error.
type ModelCallError struct {
	Err error
}

func (e *ModelCallError) Error() string {
	return fmt.Sprintf("model call failed: %v", e.Err)
}

func (e *ModelCallError) Unwrap() error {
	return e.Err
}

// RoundLimitError signals that the tool-call round cap was reached. It is a
// distinct signal, not a generic failure: Invoke still returns the best
// partial answer available, and the caller decides what to surface.
type RoundLimitError struct {
	Rounds int
}

func (e *RoundLimitError) Error() string {
	return fmt.Sprintf("exceeded maximum tool-call rounds (%d)", e.Rounds)
}
