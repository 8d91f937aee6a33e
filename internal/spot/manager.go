package spot

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/swl-control/swlc/internal/command"
	"github.com/swl-control/swlc/internal/profile"
	"github.com/swl-control/swlc/internal/schedule"
	"github.com/swl-control/swlc/internal/session"
	"github.com/swl-control/swlc/internal/telemetry"
)

// Policy selects the expiry behavior of a spot.
type Policy string

const (
	// PolicyTimed spots expire after a TTL, bounded by the station's
	// scheduled end.
	PolicyTimed Policy = "timed"

	// PolicyPersistent spots never expire; only an explicit clear
	// removes them.
	PolicyPersistent Policy = "persistent"
)

// Record is one active spot announcement.
type Record struct {
	Station  schedule.Station `json:"station"`
	Policy   Policy           `json:"policy"`
	Deadline *time.Time       `json:"deadline,omitempty"`
	SentAt   time.Time        `json:"sentAt"`
	Outcome  string           `json:"outcome"`
	Comment  string           `json:"comment,omitempty"`
	Payload  json.RawMessage  `json:"payload,omitempty"`
}

// Clock abstracts time for deterministic expiry tests.
type Clock interface {
	Now() time.Time
}

// systemClock is the production clock.
type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Dispatcher is the slice of the command dispatcher the manager needs.
type Dispatcher interface {
	Spot(ctx context.Context, intent profile.SpotIntent) (command.Result, error)
	ClearSpot(ctx context.Context, callsign string) (command.Result, error)
}

// Manager tracks active spots and enforces their deadlines.
type Manager struct {
	mu        sync.Mutex
	records   map[string]*Record
	connected bool

	dispatcher Dispatcher
	hub        *telemetry.Hub
	clock      Clock

	sweepInterval time.Duration
	stop          chan struct{}
	stopOnce      sync.Once
	started       bool
	done          chan struct{}
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock substitutes the time source.
func WithClock(clock Clock) Option {
	return func(m *Manager) { m.clock = clock }
}

// WithSweepInterval overrides the expiry scan cadence.
func WithSweepInterval(d time.Duration) Option {
	return func(m *Manager) { m.sweepInterval = d }
}

// NewManager creates a manager wired to the dispatcher.
func NewManager(dispatcher Dispatcher, hub *telemetry.Hub, opts ...Option) *Manager {
	m := &Manager{
		records:       make(map[string]*Record),
		dispatcher:    dispatcher,
		hub:           hub,
		clock:         systemClock{},
		sweepInterval: time.Second,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ConnectionStateChanged implements session.StateListener. Away from
// Connected the manager suspends network intents; records stay so the
// operator can still see and clear them after a reconnect.
func (m *Manager) ConnectionStateChanged(state session.State) {
	m.mu.Lock()
	m.connected = state == session.StateConnected
	m.mu.Unlock()
}

var _ session.StateListener = (*Manager)(nil)

// SendOption attaches optional announcement data.
type SendOption func(*Record)

// WithComment sets the free-text comment carried in the announcement.
func WithComment(comment string) SendOption {
	return func(r *Record) { r.Comment = comment }
}

// WithPayload overrides the announcement payload with a caller-supplied
// opaque JSON document, passed to the dialect verbatim.
func WithPayload(payload json.RawMessage) SendOption {
	return func(r *Record) { r.Payload = payload }
}

// SendSpot announces a station and stores its record. For a timed
// policy the deadline is now+ttl, bounded by the station's scheduled
// end when known, and clamped to now so an already-over station gets
// immediate-expiry semantics instead of a rejection. The record is
// stored even when the wire send fails, so bookkeeping matches what
// the operator asked for; the error still propagates.
func (m *Manager) SendSpot(ctx context.Context, station schedule.Station, policy Policy, ttl time.Duration, opts ...SendOption) (*Record, error) {
	now := m.clock.Now()

	record := &Record{
		Station: station,
		Policy:  policy,
		SentAt:  now,
	}
	for _, opt := range opts {
		opt(record)
	}
	ttlSeconds := 0
	if policy == PolicyTimed {
		deadline := now.Add(ttl)
		if station.ScheduledEnd != nil && station.ScheduledEnd.Before(deadline) {
			deadline = *station.ScheduledEnd
		}
		if deadline.Before(now) {
			deadline = now
		}
		record.Deadline = &deadline
		ttlSeconds = int(deadline.Sub(now) / time.Second)
	}

	res, err := m.dispatcher.Spot(ctx, profile.SpotIntent{
		Callsign:    station.Callsign,
		Mode:        station.Mode,
		FrequencyHz: station.FrequencyHz,
		TTLSeconds:  ttlSeconds,
		Timed:       policy == PolicyTimed,
		Comment:     record.Comment,
		UTCTime:     now.UTC(),
		Payload:     record.Payload,
	})
	record.Outcome = res.Outcome

	m.mu.Lock()
	m.records[station.Key()] = record
	m.mu.Unlock()

	m.publish("spotSent", station, record.Outcome)
	return record, err
}

// ClearSpot removes the record and emits a clear intent. Clearing an
// unknown station is a no-op on the bookkeeping but the intent is
// still sent, so the peer and local state cannot drift apart.
func (m *Manager) ClearSpot(ctx context.Context, station schedule.Station) error {
	m.mu.Lock()
	delete(m.records, station.Key())
	connected := m.connected
	m.mu.Unlock()

	if !connected {
		m.publish("spotCleared", station, "LOCAL_ONLY")
		return nil
	}
	res, err := m.dispatcher.ClearSpot(ctx, station.Callsign)
	m.publish("spotCleared", station, res.Outcome)
	return err
}

// Records returns a snapshot of active spots.
func (m *Manager) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, *r)
	}
	return out
}

// Start runs the periodic expiry sweep until Stop.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.mu.Unlock()

	go func() {
		defer close(m.done)
		ticker := time.NewTicker(m.sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.SweepOnce(context.Background())
			case <-m.stop:
				return
			}
		}
	}()
}

// Stop halts the sweep loop. Safe to call without a prior Start.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
	m.mu.Lock()
	started := m.started
	m.mu.Unlock()
	if started {
		<-m.done
	}
}

// SweepOnce scans records and clears every timed spot whose deadline
// has passed. Persistent records are never touched. While disconnected
// the sweep leaves expired records in place; they are picked up by the
// first sweep after reconnect.
func (m *Manager) SweepOnce(ctx context.Context) {
	now := m.clock.Now()

	m.mu.Lock()
	if !m.connected {
		m.mu.Unlock()
		return
	}
	var expired []*Record
	for key, r := range m.records {
		if r.Policy != PolicyTimed || r.Deadline == nil {
			continue
		}
		if !r.Deadline.After(now) {
			expired = append(expired, r)
			delete(m.records, key)
		}
	}
	m.mu.Unlock()

	for _, r := range expired {
		res, _ := m.dispatcher.ClearSpot(ctx, r.Station.Callsign)
		m.publish("spotExpired", r.Station, res.Outcome)
	}
}

func (m *Manager) publish(eventType string, station schedule.Station, outcome string) {
	if m.hub == nil {
		return
	}
	m.hub.Publish(telemetry.Event{
		Type: eventType,
		Data: map[string]interface{}{
			"callsign":    station.Callsign,
			"frequencyHz": station.FrequencyHz,
			"outcome":     outcome,
			"ts":          m.clock.Now().UTC().Format(time.RFC3339),
		},
	})
}
