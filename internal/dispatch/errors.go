package dispatch

import "errors"

// ErrNotConnected is returned when a batch is dispatched without an
// active session. No work is performed and no events are emitted.
var ErrNotConnected = errors.New("dispatch: session not connected")

// SinkError is fatal: if progress cannot be communicated, the caller
// has no visibility into the batch, so the remaining recipients are
// not processed.
type SinkError struct {
	Err error
}

func (e *SinkError) Error() string { return "dispatch: progress sink: " + e.Err.Error() }
func (e *SinkError) Unwrap() error { return e.Err }
