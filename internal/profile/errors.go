package profile

import (
	"errors"
	"fmt"
)

// ErrInvalidIntent indicates malformed input to a formatter. The
// command string is never produced when this is returned.
var ErrInvalidIntent = errors.New("INVALID_INTENT")

// IntentError wraps ErrInvalidIntent with the rejected detail.
type IntentError struct {
	Code   error
	Reason string
}

func (e *IntentError) Error() string {
	return fmt.Sprintf("%v: %s", e.Code, e.Reason)
}

func (e *IntentError) Unwrap() error {
	return e.Code
}
