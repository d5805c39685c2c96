package session

import (
	"errors"
	"fmt"
)

var (
	ErrConnect      = errors.New("session: connect failed")
	ErrSend         = errors.New("session: send failed")
	ErrStreamClosed = errors.New("session: stream closed by peer")
	ErrConnClosed   = errors.New("session: connection closed")
)

// ConnectError reports a failed resolve or dial of Addr.
type ConnectError struct {
	Addr string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("%v addr=%s: %v", ErrConnect, e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() []error { return []error{ErrConnect, e.Err} }

// SendError reports a write that did not accept every requested byte.
type SendError struct {
	Wrote int
	Want  int
	Err   error
}

func (e *SendError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%v: wrote %d of %d bytes", ErrSend, e.Wrote, e.Want)
	}
	return fmt.Sprintf("%v: wrote %d of %d bytes: %v", ErrSend, e.Wrote, e.Want, e.Err)
}

func (e *SendError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrSend}
	}
	return []error{ErrSend, e.Err}
}

// StreamClosedError is the peer-close signal; Received > 0 means a frame was cut short.
type StreamClosedError struct {
	Received int
	Want     int
}

func (e *StreamClosedError) Error() string {
	return fmt.Sprintf("%v: received %d of %d bytes", ErrStreamClosed, e.Received, e.Want)
}

func (e *StreamClosedError) Is(target error) bool { return target == ErrStreamClosed }
