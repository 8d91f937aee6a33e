package config

import "time"

// Timing collects every interval and capacity the runtime uses.
type Timing struct {
	// Connect covers dial plus protocol upgrade.
	ConnectTimeout time.Duration

	// SweepInterval is the spot expiry scan cadence.
	SweepInterval time.Duration

	// WriteQueueSize is the outbound command queue capacity.
	WriteQueueSize int

	// SSE heartbeat cadence and jitter.
	HeartbeatInterval time.Duration
	HeartbeatJitter   time.Duration

	// EventBufferSize is the replay buffer capacity for the event
	// stream.
	EventBufferSize int
}

// DefaultTiming returns the timing baseline.
func DefaultTiming() *Timing {
	return &Timing{
		ConnectTimeout:    2 * time.Second,
		SweepInterval:     1 * time.Second,
		WriteQueueSize:    32,
		HeartbeatInterval: 15 * time.Second,
		HeartbeatJitter:   2 * time.Second,
		EventBufferSize:   50,
	}
}
