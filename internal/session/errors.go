package session

import (
	"errors"
	"fmt"
)

// Normalized session error codes.
var (
	// ErrConnectFailed indicates the transport could not be reached
	// (refused, unreachable, or dial timeout). No handshake was
	// attempted, so the session stays Disconnected.
	ErrConnectFailed = errors.New("CONNECT_FAILED")

	// ErrHandshakeFailed indicates the endpoint accepted the TCP
	// connection but rejected the protocol upgrade.
	ErrHandshakeFailed = errors.New("HANDSHAKE_FAILED")

	// ErrNotConnected indicates a send was attempted while the session
	// was not in the Connected state. Sends are never silently dropped.
	ErrNotConnected = errors.New("NOT_CONNECTED")

	// ErrQueueFull indicates the outbound write queue is saturated.
	ErrQueueFull = errors.New("QUEUE_FULL")
)

// ConnError wraps a normalized code with the underlying transport
// error and the endpoint it concerned.
type ConnError struct {
	Code     error
	Original error
	Endpoint string
}

func (e *ConnError) Error() string {
	return fmt.Sprintf("%v: %s: %v", e.Code, e.Endpoint, e.Original)
}

func (e *ConnError) Unwrap() error {
	return e.Code
}
