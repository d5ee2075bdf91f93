package session

import (
	"errors"
	"fmt"
)

var (
	// ErrRequestTimeout is returned when no reply arrives before the deadline
	ErrRequestTimeout = errors.New("request timed out")

	// ErrClosed is returned for operations on a closed session, queue or subscription
	ErrClosed = errors.New("session closed")

	// ErrRequestIDInUse is returned when the counter wrapped onto a request
	// that is still waiting for its reply
	ErrRequestIDInUse = errors.New("request id still pending")

	// ErrNotRFCapable is returned by RF for devices without the RF command set
	ErrNotRFCapable = errors.New("device is not RF capable")
)

// TransportError wraps a socket failure
type TransportError struct {
	Op  string // "bind", "send" or "receive"
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
