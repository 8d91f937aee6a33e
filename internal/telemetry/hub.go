package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/swl-control/swlc/internal/config"
)

// Event is a single telemetry event with SSE formatting.
type Event struct {
	ID   int64                  `json:"id,omitempty"`
	Type string                 `json:"type"`
	Data map[string]interface{} `json:"data"`
}

// client is one SSE subscriber.
type client struct {
	id     string
	writer http.ResponseWriter
	ctx    context.Context
	cancel context.CancelFunc
	events chan Event
	once   sync.Once
	mu     sync.Mutex // serializes writer access
}

// Hub fans session events out to SSE clients. There is one event
// stream per process; the session has no per-entity topics.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*client
	nextID  int64
	buffer  *eventBuffer
	timing  *config.Timing

	heartbeatTicker *time.Ticker
	stopHeartbeat   chan struct{}

	done chan struct{}
	wg   sync.WaitGroup
}

// NewHub creates a hub with the configured replay buffer and heartbeat
// cadence.
func NewHub(timing *config.Timing) *Hub {
	return &Hub{
		clients: make(map[string]*client),
		buffer:  newEventBuffer(timing.EventBufferSize),
		timing:  timing,
		done:    make(chan struct{}),
	}
}

// Publish assigns the event an ID, buffers it for replay, and delivers
// it to every subscriber. A slow subscriber drops the event rather
// than stalling the publisher.
func (h *Hub) Publish(event Event) {
	if event.ID == 0 {
		event.ID = atomic.AddInt64(&h.nextID, 1)
	}
	h.buffer.add(event)

	h.mu.RLock()
	subscribers := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		subscribers = append(subscribers, c)
	}
	h.mu.RUnlock()

	for _, c := range subscribers {
		select {
		case <-c.ctx.Done():
		case <-h.done:
			return
		case c.events <- event:
		case <-time.After(100 * time.Millisecond):
			// Drop for this client; the replay buffer covers the gap.
		}
	}
}

// Subscribe streams events to one SSE client until it disconnects.
// A Last-Event-ID header resumes from the replay buffer.
func (h *Hub) Subscribe(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	clientCtx, cancel := context.WithCancel(ctx)
	c := &client{
		id:     fmt.Sprintf("client_%d", time.Now().UnixNano()),
		writer: w,
		ctx:    clientCtx,
		cancel: cancel,
		events: make(chan Event, 100),
	}

	lastEventID := int64(0)
	if raw := r.Header.Get("Last-Event-ID"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			lastEventID = id
		}
	}

	h.mu.Lock()
	h.clients[c.id] = c
	if len(h.clients) == 1 && h.heartbeatTicker == nil {
		h.startHeartbeat()
	}
	h.mu.Unlock()

	if err := h.sendEvent(c, Event{
		ID:   atomic.AddInt64(&h.nextID, 1),
		Type: "ready",
		Data: map[string]interface{}{"ts": time.Now().UTC().Format(time.RFC3339)},
	}); err != nil {
		h.unregister(c.id)
		return fmt.Errorf("send ready event: %w", err)
	}

	if lastEventID > 0 {
		for _, event := range h.buffer.after(lastEventID) {
			if err := h.sendEvent(c, event); err != nil {
				h.unregister(c.id)
				return fmt.Errorf("replay events: %w", err)
			}
		}
	}

	h.serve(c)
	return nil
}

func (h *Hub) serve(c *client) {
	defer func() {
		c.once.Do(func() { close(c.events) })
		h.unregister(c.id)
	}()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-h.done:
			return
		case event, ok := <-c.events:
			if !ok {
				return
			}
			if err := h.sendEvent(c, event); err != nil {
				return
			}
		}
	}
}

func (h *Hub) sendEvent(c *client, event Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if event.ID > 0 {
		if _, err := fmt.Fprintf(c.writer, "id: %d\n", event.ID); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(c.writer, "event: %s\n", event.Type); err != nil {
		return err
	}
	data, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}
	if _, err := fmt.Fprintf(c.writer, "data: %s\n\n", data); err != nil {
		return err
	}
	if flusher, ok := c.writer.(http.Flusher); ok {
		flusher.Flush()
	}
	return nil
}

func (h *Hub) unregister(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c, ok := h.clients[id]; ok {
		c.cancel()
		delete(h.clients, id)
		if len(h.clients) == 0 && h.heartbeatTicker != nil {
			h.heartbeatTicker.Stop()
			h.heartbeatTicker = nil
			close(h.stopHeartbeat)
			h.stopHeartbeat = nil
		}
	}
}

// startHeartbeat runs while at least one client is subscribed. Caller
// holds h.mu.
func (h *Hub) startHeartbeat() {
	interval := h.timing.HeartbeatInterval + time.Duration(float64(h.timing.HeartbeatJitter)*0.5)
	h.heartbeatTicker = time.NewTicker(interval)
	h.stopHeartbeat = make(chan struct{})

	ticker := h.heartbeatTicker
	stop := h.stopHeartbeat

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		for {
			select {
			case <-ticker.C:
				h.Publish(Event{
					Type: "heartbeat",
					Data: map[string]interface{}{"ts": time.Now().UTC().Format(time.RFC3339)},
				})
			case <-stop:
				return
			case <-h.done:
				return
			}
		}
	}()
}

// Stop shuts the hub down and disconnects every client.
func (h *Hub) Stop() {
	close(h.done)

	h.mu.Lock()
	for _, c := range h.clients {
		c.cancel()
	}
	if h.heartbeatTicker != nil {
		h.heartbeatTicker.Stop()
		h.heartbeatTicker = nil
	}
	if h.stopHeartbeat != nil {
		close(h.stopHeartbeat)
		h.stopHeartbeat = nil
	}
	h.clients = make(map[string]*client)
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
	}
}

// eventBuffer is a bounded FIFO of recent events for replay.
type eventBuffer struct {
	mu       sync.RWMutex
	events   []Event
	capacity int
}

func newEventBuffer(capacity int) *eventBuffer {
	return &eventBuffer{
		events:   make([]Event, 0, capacity),
		capacity: capacity,
	}
}

func (b *eventBuffer) add(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	if len(b.events) > b.capacity {
		b.events = b.events[1:]
	}
}

func (b *eventBuffer) after(lastID int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var result []Event
	for _, event := range b.events {
		if event.ID > lastID {
			result = append(result, event)
		}
	}
	return result
}
