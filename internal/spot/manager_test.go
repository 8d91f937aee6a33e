package spot

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/swl-control/swlc/internal/command"
	"github.com/swl-control/swlc/internal/profile"
	"github.com/swl-control/swlc/internal/schedule"
	"github.com/swl-control/swlc/internal/session"
)

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(at time.Time) *fakeClock { return &fakeClock{now: at} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeDispatcher records spot and clear intents.
type fakeDispatcher struct {
	mu      sync.Mutex
	spots   []profile.SpotIntent
	cleared []string
	err     error
}

func (f *fakeDispatcher) Spot(_ context.Context, intent profile.SpotIntent) (command.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return command.Result{Action: "spot", Outcome: "NOT_CONNECTED"}, f.err
	}
	f.spots = append(f.spots, intent)
	return command.Result{Action: "spot", Outcome: command.OutcomeSuccess}, nil
}

func (f *fakeDispatcher) ClearSpot(_ context.Context, callsign string) (command.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return command.Result{Action: "clearSpot", Outcome: "NOT_CONNECTED"}, f.err
	}
	f.cleared = append(f.cleared, callsign)
	return command.Result{Action: "clearSpot", Outcome: command.OutcomeSuccess}, nil
}

func (f *fakeDispatcher) clearedCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.cleared))
	copy(out, f.cleared)
	return out
}

func endAt(t time.Time) *time.Time { return &t }

func newTestManager(clock Clock) (*Manager, *fakeDispatcher) {
	dispatcher := &fakeDispatcher{}
	m := NewManager(dispatcher, nil, WithClock(clock))
	m.ConnectionStateChanged(session.StateConnected)
	return m, dispatcher
}

func TestTimedDeadlineBoundedByScheduledEnd(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := newFakeClock(now)
	m, _ := newTestManager(clock)

	station := schedule.Station{
		Callsign:     "BBC",
		FrequencyHz:  9410000,
		Mode:         "am",
		ScheduledEnd: endAt(now.Add(30 * time.Second)),
	}
	record, err := m.SendSpot(context.Background(), station, PolicyTimed, 120*time.Second)
	if err != nil {
		t.Fatalf("SendSpot: %v", err)
	}
	if record.Deadline == nil {
		t.Fatal("timed record without deadline")
	}
	if want := now.Add(30 * time.Second); !record.Deadline.Equal(want) {
		t.Errorf("deadline = %v, want scheduled end %v", record.Deadline, want)
	}
}

func TestCommentAndPayloadReachIntent(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m, dispatcher := newTestManager(newFakeClock(now))

	station := schedule.Station{Callsign: "VOA", FrequencyHz: 15580000, Mode: "am"}
	payload := []byte(`{"note":"relay via Botswana"}`)
	record, err := m.SendSpot(context.Background(), station, PolicyPersistent, 0,
		WithComment("English service"), WithPayload(payload))
	if err != nil {
		t.Fatalf("SendSpot: %v", err)
	}
	if record.Comment != "English service" {
		t.Errorf("record comment = %q", record.Comment)
	}
	if string(record.Payload) != string(payload) {
		t.Errorf("record payload = %s", record.Payload)
	}
	intent := dispatcher.spots[0]
	if intent.Comment != "English service" || string(intent.Payload) != string(payload) {
		t.Errorf("intent comment/payload = %q/%s", intent.Comment, intent.Payload)
	}
}

func TestTimedDeadlineDefaultsToTTL(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := newFakeClock(now)
	m, _ := newTestManager(clock)

	station := schedule.Station{Callsign: "RNZ", FrequencyHz: 11725000, Mode: "am"}
	record, err := m.SendSpot(context.Background(), station, PolicyTimed, 120*time.Second)
	if err != nil {
		t.Fatalf("SendSpot: %v", err)
	}
	if want := now.Add(120 * time.Second); !record.Deadline.Equal(want) {
		t.Errorf("deadline = %v, want %v", record.Deadline, want)
	}
}

func TestOverdueStationClampsToNow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := newFakeClock(now)
	m, dispatcher := newTestManager(clock)

	station := schedule.Station{
		Callsign:     "VOK",
		FrequencyHz:  9435000,
		Mode:         "am",
		ScheduledEnd: endAt(now.Add(-time.Hour)),
	}
	record, err := m.SendSpot(context.Background(), station, PolicyTimed, 120*time.Second)
	if err != nil {
		t.Fatalf("SendSpot: %v", err)
	}
	if !record.Deadline.Equal(now) {
		t.Errorf("deadline = %v, want clamp to now %v", record.Deadline, now)
	}

	// First sweep clears it immediately.
	m.SweepOnce(context.Background())
	if got := dispatcher.clearedCalls(); len(got) != 1 || got[0] != "VOK" {
		t.Errorf("cleared = %v", got)
	}
	if len(m.Records()) != 0 {
		t.Error("record survived immediate-expiry sweep")
	}
}

func TestPersistentSpotNeverSwept(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := newFakeClock(now)
	m, dispatcher := newTestManager(clock)

	station := schedule.Station{Callsign: "RADIO X", FrequencyHz: 9410000, Mode: "am"}
	record, err := m.SendSpot(context.Background(), station, PolicyPersistent, 0)
	if err != nil {
		t.Fatalf("SendSpot: %v", err)
	}
	if record.Deadline != nil {
		t.Fatal("persistent record carries a deadline")
	}

	// 3600 simulated seconds, sweeping once per second.
	for i := 0; i < 3600; i++ {
		clock.Advance(time.Second)
		m.SweepOnce(context.Background())
	}
	if got := dispatcher.clearedCalls(); len(got) != 0 {
		t.Errorf("persistent spot cleared by sweep: %v", got)
	}
	if len(m.Records()) != 1 {
		t.Error("persistent record lost")
	}
}

func TestTimedSpotExpiresOnSweep(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := newFakeClock(now)
	m, dispatcher := newTestManager(clock)

	station := schedule.Station{
		Callsign:     "BBC",
		FrequencyHz:  9410000,
		Mode:         "am",
		ScheduledEnd: endAt(now.Add(30 * time.Second)),
	}
	if _, err := m.SendSpot(context.Background(), station, PolicyTimed, 120*time.Second); err != nil {
		t.Fatalf("SendSpot: %v", err)
	}

	clock.Advance(29 * time.Second)
	m.SweepOnce(context.Background())
	if got := dispatcher.clearedCalls(); len(got) != 0 {
		t.Fatalf("cleared before deadline: %v", got)
	}

	clock.Advance(2 * time.Second) // now+31s
	m.SweepOnce(context.Background())
	if got := dispatcher.clearedCalls(); len(got) != 1 || got[0] != "BBC" {
		t.Errorf("cleared = %v", got)
	}
	if len(m.Records()) != 0 {
		t.Error("expired record not removed")
	}
}

func TestClearSpotIdempotent(t *testing.T) {
	clock := newFakeClock(time.Now())
	m, dispatcher := newTestManager(clock)

	station := schedule.Station{Callsign: "BBC", FrequencyHz: 9410000, Mode: "am"}
	if err := m.ClearSpot(context.Background(), station); err != nil {
		t.Fatalf("ClearSpot of unknown station: %v", err)
	}
	if err := m.ClearSpot(context.Background(), station); err != nil {
		t.Fatalf("repeated ClearSpot: %v", err)
	}
	if got := dispatcher.clearedCalls(); len(got) != 2 {
		t.Errorf("clear intents = %v", got)
	}
}

func TestDisconnectedSweepIssuesNoIntents(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := newFakeClock(now)
	m, dispatcher := newTestManager(clock)

	station := schedule.Station{Callsign: "BBC", FrequencyHz: 9410000, Mode: "am"}
	if _, err := m.SendSpot(context.Background(), station, PolicyTimed, 10*time.Second); err != nil {
		t.Fatalf("SendSpot: %v", err)
	}

	m.ConnectionStateChanged(session.StateDisconnected)
	clock.Advance(time.Minute)
	m.SweepOnce(context.Background())
	if got := dispatcher.clearedCalls(); len(got) != 0 {
		t.Fatalf("sweep issued intents while disconnected: %v", got)
	}
	if len(m.Records()) != 1 {
		t.Fatal("bookkeeping dropped while disconnected")
	}

	// After reconnect the next sweep picks the expired record up. No
	// spot is re-announced, only the clear goes out.
	m.ConnectionStateChanged(session.StateConnected)
	m.SweepOnce(context.Background())
	if got := dispatcher.clearedCalls(); len(got) != 1 || got[0] != "BBC" {
		t.Errorf("cleared after reconnect = %v", got)
	}
	dispatcher.mu.Lock()
	spotCount := len(dispatcher.spots)
	dispatcher.mu.Unlock()
	if spotCount != 1 {
		t.Errorf("spot intents = %d, want only the original", spotCount)
	}
}

func TestSendFailureStillStoresRecord(t *testing.T) {
	clock := newFakeClock(time.Now())
	dispatcher := &fakeDispatcher{err: session.ErrNotConnected}
	m := NewManager(dispatcher, nil, WithClock(clock))

	station := schedule.Station{Callsign: "BBC", FrequencyHz: 9410000, Mode: "am"}
	record, err := m.SendSpot(context.Background(), station, PolicyTimed, time.Minute)
	if err == nil {
		t.Fatal("expected send failure")
	}
	if record.Outcome != "NOT_CONNECTED" {
		t.Errorf("record outcome = %q", record.Outcome)
	}
	if len(m.Records()) != 1 {
		t.Error("record not stored on send failure")
	}
}

func TestSweepLoopRunsOnTicker(t *testing.T) {
	now := time.Now()
	clock := newFakeClock(now)
	dispatcher := &fakeDispatcher{}
	m := NewManager(dispatcher, nil, WithClock(clock), WithSweepInterval(10*time.Millisecond))
	m.ConnectionStateChanged(session.StateConnected)

	station := schedule.Station{Callsign: "BBC", FrequencyHz: 9410000, Mode: "am"}
	if _, err := m.SendSpot(context.Background(), station, PolicyTimed, time.Second); err != nil {
		t.Fatalf("SendSpot: %v", err)
	}

	m.Start()
	defer m.Stop()

	clock.Advance(2 * time.Second)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if calls := dispatcher.clearedCalls(); len(calls) == 1 && strings.EqualFold(calls[0], "BBC") {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("sweep loop never cleared expired spot; cleared = %v", dispatcher.clearedCalls())
}
