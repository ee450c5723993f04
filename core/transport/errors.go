package transport

import (
	"errors"
	"fmt"
)

// ErrNotConnected is returned when sending on a connection that is not open.
// Sends are never queued or retried.
var ErrNotConnected = errors.New("connection is not open")

// Error is a connection level failure.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("websocket %s: %v", e.Op, e.Err) }

func (e *Error) Unwrap() error { return e.Err }
