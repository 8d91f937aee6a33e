// Package command defines ports (interfaces) for dispatcher collaborators.
package command

import (
	"context"
	"time"

	"github.com/swl-control/swlc/internal/session"
)

// Sender is the outbound side of the session as the dispatcher sees
// it: ordered serialized transmission plus the current state.
type Sender interface {
	Send(command string) error
	State() session.State
}

// AuditLogger records one entry per dispatched action.
type AuditLogger interface {
	LogAction(ctx context.Context, action, command, outcome string, latency time.Duration)
}

// Compile-time assertion that session.Conn satisfies Sender.
var _ Sender = (*session.Conn)(nil)
