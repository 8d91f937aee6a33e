package command

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/swl-control/swlc/internal/profile"
	"github.com/swl-control/swlc/internal/session"
	"github.com/swl-control/swlc/internal/telemetry"
)

// Outcome tokens for dispatched actions.
const (
	OutcomeSuccess = "SUCCESS"
	// OutcomeDegraded means the frame was transmitted but the dialect
	// documents the peer's handling as unreliable.
	OutcomeDegraded = "DEGRADED"
)

// Result describes a completed dispatch: which wire commands went out
// and whether success is confirmed or degraded.
type Result struct {
	Action   string   `json:"action"`
	Commands []string `json:"commands"`
	Outcome  string   `json:"outcome"`
	Quirk    string   `json:"quirk,omitempty"`
}

// Dispatcher routes intents through the formatter onto the session.
type Dispatcher struct {
	mu        sync.Mutex
	formatter profile.Formatter
	muted     bool

	sender Sender
	hub    *telemetry.Hub
	audit  AuditLogger
}

// NewDispatcher creates a dispatcher bound to a sender. The formatter
// is installed at connect time via SetFormatter.
func NewDispatcher(sender Sender, hub *telemetry.Hub) *Dispatcher {
	return &Dispatcher{sender: sender, hub: hub}
}

// SetAuditLogger installs the audit logger.
func (d *Dispatcher) SetAuditLogger(logger AuditLogger) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.audit = logger
}

// SetFormatter fixes the dialect for the session.
func (d *Dispatcher) SetFormatter(f profile.Formatter) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.formatter = f
}

// Profile reports the active dialect, or empty when none is set.
func (d *Dispatcher) Profile() profile.Profile {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.formatter == nil {
		return ""
	}
	return d.formatter.Profile()
}

// Muted reports the last successfully applied mute state.
func (d *Dispatcher) Muted() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.muted
}

// Tune sets the receiver frequency.
func (d *Dispatcher) Tune(ctx context.Context, frequencyHz int64) (Result, error) {
	return d.dispatch(ctx, "tune", func(f profile.Formatter) (profile.Command, error) {
		return f.Tune(frequencyHz)
	})
}

// SetMode forces the demodulation mode.
func (d *Dispatcher) SetMode(ctx context.Context, mode string) (Result, error) {
	return d.dispatch(ctx, "setMode", func(f profile.Formatter) (profile.Command, error) {
		return f.SetMode(mode)
	})
}

// TuneWithMode tunes and then forces the mode, in that order. The
// peer's mode handling can depend on the current frequency context, so
// the tune frame always goes first; a tune failure aborts the pair.
func (d *Dispatcher) TuneWithMode(ctx context.Context, frequencyHz int64, mode string) (Result, error) {
	tuneRes, err := d.Tune(ctx, frequencyHz)
	if err != nil {
		return tuneRes, err
	}
	modeRes, err := d.SetMode(ctx, mode)
	combined := Result{
		Action:   "tuneWithMode",
		Commands: append(tuneRes.Commands, modeRes.Commands...),
		Outcome:  tuneRes.Outcome,
		Quirk:    tuneRes.Quirk,
	}
	if err != nil {
		return combined, err
	}
	if modeRes.Outcome == OutcomeDegraded {
		combined.Outcome = OutcomeDegraded
		combined.Quirk = modeRes.Quirk
	}
	return combined, nil
}

// SetMute toggles audio muting on the peer.
func (d *Dispatcher) SetMute(ctx context.Context, muted bool) (Result, error) {
	res, err := d.dispatch(ctx, "setMute", func(f profile.Formatter) (profile.Command, error) {
		return f.Mute(muted)
	})
	if err == nil {
		d.mu.Lock()
		d.muted = muted
		d.mu.Unlock()
	}
	return res, err
}

// Spot announces a station on the peer's spot display.
func (d *Dispatcher) Spot(ctx context.Context, intent profile.SpotIntent) (Result, error) {
	return d.dispatch(ctx, "spot", func(f profile.Formatter) (profile.Command, error) {
		return f.Spot(intent)
	})
}

// ClearSpot removes a previously announced spot.
func (d *Dispatcher) ClearSpot(ctx context.Context, callsign string) (Result, error) {
	return d.dispatch(ctx, "clearSpot", func(f profile.Formatter) (profile.Command, error) {
		return f.ClearSpot(callsign)
	})
}

// Raw sends a command verbatim, bypassing the formatter. It is a
// diagnostics escape hatch and carries no format guarantee beyond the
// frame terminator.
func (d *Dispatcher) Raw(ctx context.Context, text string) (Result, error) {
	start := time.Now()

	text = strings.TrimSpace(text)
	if text == "" {
		err := &profile.IntentError{Code: profile.ErrInvalidIntent, Reason: "empty raw command"}
		d.logAudit(ctx, "raw", "", "INVALID_INTENT", time.Since(start))
		return Result{Action: "raw", Outcome: "INVALID_INTENT"}, err
	}
	if !strings.HasSuffix(text, ";") {
		text += ";"
	}

	if err := d.send(ctx, "raw", text, start); err != nil {
		return Result{Action: "raw", Commands: []string{text}, Outcome: outcomeFromError(err)}, err
	}

	d.logAudit(ctx, "raw", text, OutcomeSuccess, time.Since(start))
	d.publishCommand("raw", text, OutcomeSuccess, "")
	return Result{Action: "raw", Commands: []string{text}, Outcome: OutcomeSuccess}, nil
}

// dispatch formats one intent and sends it, with audit and telemetry
// on every path.
func (d *Dispatcher) dispatch(ctx context.Context, action string, format func(profile.Formatter) (profile.Command, error)) (Result, error) {
	start := time.Now()

	d.mu.Lock()
	formatter := d.formatter
	d.mu.Unlock()

	if formatter == nil {
		err := session.ErrNotConnected
		d.logAudit(ctx, action, "", "NOT_CONNECTED", time.Since(start))
		return Result{Action: action, Outcome: "NOT_CONNECTED"}, err
	}

	cmd, err := format(formatter)
	if err != nil {
		d.logAudit(ctx, action, "", "INVALID_INTENT", time.Since(start))
		return Result{Action: action, Outcome: "INVALID_INTENT"}, err
	}

	if err := d.send(ctx, action, cmd.Text, start); err != nil {
		return Result{Action: action, Commands: []string{cmd.Text}, Outcome: outcomeFromError(err)}, err
	}

	outcome := OutcomeSuccess
	if cmd.Quirk != "" {
		outcome = OutcomeDegraded
	}
	d.logAudit(ctx, action, cmd.Text, outcome, time.Since(start))
	d.publishCommand(action, cmd.Text, outcome, cmd.Quirk)
	return Result{Action: action, Commands: []string{cmd.Text}, Outcome: outcome, Quirk: cmd.Quirk}, nil
}

// send forwards one formatted command, translating failure into audit
// and fault telemetry. The error itself propagates unchanged.
func (d *Dispatcher) send(ctx context.Context, action, text string, start time.Time) error {
	err := d.sender.Send(text)
	if err == nil {
		return nil
	}
	code := outcomeFromError(err)
	d.logAudit(ctx, action, text, code, time.Since(start))
	d.publishFault(action, code)
	return err
}

func outcomeFromError(err error) string {
	switch {
	case errors.Is(err, session.ErrNotConnected):
		return "NOT_CONNECTED"
	case errors.Is(err, session.ErrQueueFull):
		return "QUEUE_FULL"
	case errors.Is(err, profile.ErrInvalidIntent):
		return "INVALID_INTENT"
	default:
		return "ERROR"
	}
}

func (d *Dispatcher) logAudit(ctx context.Context, action, command, outcome string, latency time.Duration) {
	d.mu.Lock()
	logger := d.audit
	d.mu.Unlock()
	if logger != nil {
		logger.LogAction(ctx, action, command, outcome, latency)
	}
}

func (d *Dispatcher) publishCommand(action, command, outcome, quirk string) {
	if d.hub == nil {
		return
	}
	data := map[string]interface{}{
		"action":  action,
		"command": command,
		"outcome": outcome,
		"ts":      time.Now().UTC().Format(time.RFC3339),
	}
	if quirk != "" {
		data["quirk"] = quirk
	}
	d.hub.Publish(telemetry.Event{Type: "commandSent", Data: data})
}

func (d *Dispatcher) publishFault(action, code string) {
	if d.hub == nil {
		return
	}
	d.hub.Publish(telemetry.Event{
		Type: "fault",
		Data: map[string]interface{}{
			"action": action,
			"code":   code,
			"ts":     time.Now().UTC().Format(time.RFC3339),
		},
	})
}
