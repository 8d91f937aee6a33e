package api

import (
	"context"
	"net/http"
	"time"

	"github.com/swl-control/swlc/internal/command"
	"github.com/swl-control/swlc/internal/config"
	"github.com/swl-control/swlc/internal/profile"
	"github.com/swl-control/swlc/internal/schedule"
	"github.com/swl-control/swlc/internal/session"
	"github.com/swl-control/swlc/internal/spot"
)

// SessionPort is the connection lifecycle as the API sees it.
type SessionPort interface {
	Connect(ctx context.Context, host string, port int) error
	Disconnect()
	Status() session.Status
}

// DispatcherPort covers the command intents exposed over HTTP.
type DispatcherPort interface {
	SetFormatter(f profile.Formatter)
	Tune(ctx context.Context, frequencyHz int64) (command.Result, error)
	SetMode(ctx context.Context, mode string) (command.Result, error)
	TuneWithMode(ctx context.Context, frequencyHz int64, mode string) (command.Result, error)
	SetMute(ctx context.Context, muted bool) (command.Result, error)
	Raw(ctx context.Context, text string) (command.Result, error)
	Muted() bool
}

// SpotPort is the spot lifecycle surface.
type SpotPort interface {
	SendSpot(ctx context.Context, station schedule.Station, policy spot.Policy, ttl time.Duration, opts ...spot.SendOption) (*spot.Record, error)
	ClearSpot(ctx context.Context, station schedule.Station) error
	Records() []spot.Record
}

// SettingsPort reads and writes the settings document.
type SettingsPort interface {
	Load() (config.Settings, error)
	Save(settings config.Settings) error
}

// TelemetryPort streams events to SSE subscribers.
type TelemetryPort interface {
	Subscribe(ctx context.Context, w http.ResponseWriter, r *http.Request) error
}
