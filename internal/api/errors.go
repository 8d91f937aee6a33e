package api

import (
	"errors"
	"net/http"

	"github.com/swl-control/swlc/internal/profile"
	"github.com/swl-control/swlc/internal/session"
)

// ToAPIError maps a domain error to an HTTP status and normalized
// code. Session failures keep their codes so the client can tell a
// refused dial from a rejected protocol upgrade.
func ToAPIError(err error) (int, string, string) {
	switch {
	case errors.Is(err, profile.ErrInvalidIntent):
		return http.StatusBadRequest, "INVALID_INTENT", err.Error()
	case errors.Is(err, session.ErrNotConnected):
		return http.StatusConflict, "NOT_CONNECTED", "Session is not connected"
	case errors.Is(err, session.ErrQueueFull):
		return http.StatusServiceUnavailable, "QUEUE_FULL", "Outbound command queue is full"
	case errors.Is(err, session.ErrConnectFailed):
		return http.StatusBadGateway, "CONNECT_FAILED", "Control endpoint unreachable"
	case errors.Is(err, session.ErrHandshakeFailed):
		return http.StatusBadGateway, "HANDSHAKE_FAILED", "Control endpoint rejected the protocol upgrade"
	default:
		return http.StatusInternalServerError, "INTERNAL", "Internal server error"
	}
}

// writeDomainError writes the envelope for a domain error.
func writeDomainError(w http.ResponseWriter, err error) {
	status, code, message := ToAPIError(err)
	WriteError(w, status, code, message, nil)
}
