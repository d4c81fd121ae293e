package socket

import (
	"dominicbreuker/marko/pkg/endpoint"
	"errors"
	"fmt"
)

// Status records the outcome of the most recent operation on a socket.
// Failures are not returned to callers of Send and Receive; they are
// recorded here for polling.
type Status int

const (
	StatusNoError Status = iota
	StatusNoData
	StatusIncompleteData
	StatusInvalidContext
	StatusSendError
	StatusReceiveError
)

var (
	ErrNoData         = errors.New("socket: no data")
	ErrIncompleteData = errors.New("socket: incomplete data")
	ErrInvalidContext = errors.New("socket: not ready")
	ErrSend           = errors.New("socket: send failed")
	ErrReceive        = errors.New("socket: receive failed")

	// ErrClosed is returned by blocking helpers once the connection has
	// reached a terminal state.
	ErrClosed = errors.New("socket: connection closed")
)

func (s Status) String() string {
	switch s {
	case StatusNoError:
		return "no error"
	case StatusNoData:
		return "no data"
	case StatusIncompleteData:
		return "incomplete data"
	case StatusInvalidContext:
		return "invalid context"
	case StatusSendError:
		return "send error"
	case StatusReceiveError:
		return "receive error"
	default:
		return "unknown"
	}
}

// Err returns the sentinel error for s, or nil for StatusNoError.
func (s Status) Err() error {
	switch s {
	case StatusNoError:
		return nil
	case StatusNoData:
		return ErrNoData
	case StatusIncompleteData:
		return ErrIncompleteData
	case StatusInvalidContext:
		return ErrInvalidContext
	case StatusSendError:
		return ErrSend
	case StatusReceiveError:
		return ErrReceive
	default:
		return fmt.Errorf("socket: status %d", int(s))
	}
}

// BindError reports that a Listener could not acquire its endpoint.
type BindError struct {
	Endpoint endpoint.Endpoint
	Err      error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("bind %s: %v", e.Endpoint, e.Err)
}

func (e *BindError) Unwrap() error {
	return e.Err
}
