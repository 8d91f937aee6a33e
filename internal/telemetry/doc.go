// Package telemetry distributes session events (state changes, command
// outcomes, spot lifecycle) to SSE subscribers. Events carry monotonic
// IDs and are kept in a bounded replay buffer so a reconnecting client
// can resume from its Last-Event-ID.
package telemetry
