// Package api exposes the HTTP surface: session lifecycle, command
// dispatch, spot management, settings, and the SSE telemetry stream.
// Responses use one envelope format with normalized error codes.
package api
