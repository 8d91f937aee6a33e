// Package session owns the single WebSocket connection to the
// radio-control endpoint. All outbound commands pass through one write
// queue drained by one writer goroutine, so frames from concurrent
// producers are never interleaved on the wire. Reconnecting is always
// an explicit caller action; the session never retries on its own.
package session
