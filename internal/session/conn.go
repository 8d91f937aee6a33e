package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// State is the lifecycle state of the control session.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	// StateError is terminal for the current session instance: a read
	// or write failure landed here and only a fresh Connect leaves it.
	StateError
)

// String returns the wire/status token for the state.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// StateListener is notified on every session state transition.
type StateListener interface {
	ConnectionStateChanged(state State)
}

// StateListenerFunc adapts a function to the StateListener interface.
type StateListenerFunc func(State)

// ConnectionStateChanged implements StateListener.
func (f StateListenerFunc) ConnectionStateChanged(state State) { f(state) }

// FrameListener receives inbound text frames verbatim. The session does
// not interpret inbound payloads beyond liveness.
type FrameListener interface {
	TextFrame(frame string)
}

// FrameListenerFunc adapts a function to the FrameListener interface.
type FrameListenerFunc func(string)

// TextFrame implements FrameListener.
func (f FrameListenerFunc) TextFrame(frame string) { f(frame) }

// DropHandler is invoked once per queued-but-unsent command discarded
// during teardown, so pending work is reported failed instead of
// silently vanishing.
type DropHandler func(command string, reason error)

// Status is a point-in-time snapshot of the session.
type Status struct {
	State       State  `json:"state"`
	Host        string `json:"host"`
	Port        int    `json:"port"`
	LastCommand string `json:"lastCommand"`
	LastError   string `json:"lastError"`
}

// DefaultConnectTimeout bounds dial plus protocol upgrade.
const DefaultConnectTimeout = 2 * time.Second

// DefaultQueueSize is the outbound write queue capacity.
const DefaultQueueSize = 32

// link is the per-connection transport state. A fresh link is created
// on every successful dial so goroutines from a previous connection can
// never touch the current one.
type link struct {
	ws    *websocket.Conn
	sendQ chan string
	quit  chan struct{}
	once  sync.Once
}

func (l *link) shutdown() {
	l.once.Do(func() {
		close(l.quit)
		_ = l.ws.Close()
	})
}

// Conn manages exactly one logical connection to the control endpoint.
type Conn struct {
	// opMu serializes Connect and Disconnect so a connect cannot race
	// another connect's teardown.
	opMu sync.Mutex

	mu             sync.Mutex
	state          State
	host           string
	port           int
	link           *link
	lastCommand    string
	lastError      string
	stateListeners []StateListener
	frameListeners []FrameListener
	dropHandler    DropHandler

	connectTimeout time.Duration
	queueSize      int
}

// Option configures a Conn.
type Option func(*Conn)

// WithConnectTimeout bounds the dial and handshake of Connect.
func WithConnectTimeout(d time.Duration) Option {
	return func(c *Conn) { c.connectTimeout = d }
}

// WithQueueSize sets the outbound write queue capacity.
func WithQueueSize(n int) Option {
	return func(c *Conn) { c.queueSize = n }
}

// NewConn creates a disconnected session.
func NewConn(opts ...Option) *Conn {
	c := &Conn{
		state:          StateDisconnected,
		connectTimeout: DefaultConnectTimeout,
		queueSize:      DefaultQueueSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RegisterStateListener adds a state transition observer.
func (c *Conn) RegisterStateListener(l StateListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stateListeners = append(c.stateListeners, l)
}

// RegisterFrameListener adds an inbound frame observer.
func (c *Conn) RegisterFrameListener(l FrameListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frameListeners = append(c.frameListeners, l)
}

// SetDropHandler installs the teardown drop reporter.
func (c *Conn) SetDropHandler(h DropHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropHandler = h
}

// Status returns a snapshot of the session.
func (c *Conn) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		State:       c.state,
		Host:        c.host,
		Port:        c.port,
		LastCommand: c.lastCommand,
		LastError:   c.lastError,
	}
}

// State returns the current session state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect establishes the session to ws://host:port. Any existing
// connection is torn down first. The call blocks until the handshake
// succeeds, fails, or the configured timeout elapses. There is no
// automatic retry: after a failure the next attempt is the caller's
// explicit decision.
func (c *Conn) Connect(ctx context.Context, host string, port int) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.teardown(StateDisconnected)

	endpoint := fmt.Sprintf("ws://%s:%d", host, port)

	c.mu.Lock()
	c.host = host
	c.port = port
	c.mu.Unlock()
	c.setState(StateConnecting)

	dialCtx, cancel := context.WithTimeout(ctx, c.connectTimeout)
	defer cancel()

	dialer := websocket.Dialer{HandshakeTimeout: c.connectTimeout}
	ws, _, err := dialer.DialContext(dialCtx, endpoint, nil)
	if err != nil {
		if errors.Is(err, websocket.ErrBadHandshake) {
			// The endpoint is alive but refused the protocol upgrade.
			c.recordError(err)
			c.setState(StateError)
			return &ConnError{Code: ErrHandshakeFailed, Original: err, Endpoint: endpoint}
		}
		c.recordError(err)
		c.setState(StateDisconnected)
		return &ConnError{Code: ErrConnectFailed, Original: err, Endpoint: endpoint}
	}

	l := &link{
		ws:    ws,
		sendQ: make(chan string, c.queueSize),
		quit:  make(chan struct{}),
	}

	c.mu.Lock()
	c.link = l
	c.lastError = ""
	c.mu.Unlock()

	go c.writeLoop(l)
	go c.readLoop(l)

	c.setState(StateConnected)
	return nil
}

// Disconnect tears down the transport and moves to Disconnected. It is
// idempotent and cancels in-flight reads; queued-but-unsent commands
// are reported through the drop handler.
func (c *Conn) Disconnect() {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	c.teardown(StateDisconnected)
}

// teardown retires the current link, if any, and settles on the given
// state. Callers hold opMu.
func (c *Conn) teardown(to State) {
	c.mu.Lock()
	l := c.link
	c.link = nil
	changed := c.state != to
	c.mu.Unlock()

	if l != nil {
		l.shutdown()
	}
	if changed {
		c.setState(to)
	}
}

// Send enqueues a command for ordered transmission. It fails with
// ErrNotConnected unless the session is Connected, and with
// ErrQueueFull when the writer cannot keep up. It never blocks beyond
// the enqueue itself.
func (c *Conn) Send(command string) error {
	c.mu.Lock()
	l := c.link
	connected := c.state == StateConnected
	c.mu.Unlock()

	if !connected || l == nil {
		return ErrNotConnected
	}

	select {
	case <-l.quit:
		return ErrNotConnected
	default:
	}

	select {
	case l.sendQ <- command:
	default:
		return ErrQueueFull
	}

	c.mu.Lock()
	c.lastCommand = command
	c.mu.Unlock()
	return nil
}

// writeLoop is the only goroutine that writes to the socket.
func (c *Conn) writeLoop(l *link) {
	for {
		select {
		case <-l.quit:
			c.drain(l)
			return
		case cmd := <-l.sendQ:
			if err := l.ws.WriteMessage(websocket.TextMessage, []byte(cmd)); err != nil {
				c.fail(l, fmt.Errorf("write %q: %w", cmd, err))
				c.drain(l)
				return
			}
		}
	}
}

// readLoop forwards inbound text frames to registered observers until
// the socket closes.
func (c *Conn) readLoop(l *link) {
	for {
		msgType, msg, err := l.ws.ReadMessage()
		if err != nil {
			c.fail(l, fmt.Errorf("read: %w", err))
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		c.mu.Lock()
		listeners := make([]FrameListener, len(c.frameListeners))
		copy(listeners, c.frameListeners)
		c.mu.Unlock()
		for _, fl := range listeners {
			fl.TextFrame(string(msg))
		}
	}
}

// fail moves the session to the terminal Error state after a transport
// failure. If the link was already retired by a deliberate disconnect
// or a newer connect, the failure belongs to a dead connection and is
// ignored.
func (c *Conn) fail(l *link, err error) {
	c.mu.Lock()
	if c.link != l {
		c.mu.Unlock()
		return
	}
	c.lastError = err.Error()
	c.mu.Unlock()

	l.shutdown()
	c.setState(StateError)
}

// drain discards queued-but-unsent commands, reporting each through
// the drop handler.
func (c *Conn) drain(l *link) {
	c.mu.Lock()
	handler := c.dropHandler
	c.mu.Unlock()

	for {
		select {
		case cmd := <-l.sendQ:
			if handler != nil {
				handler(cmd, ErrNotConnected)
			}
		default:
			return
		}
	}
}

func (c *Conn) recordError(err error) {
	c.mu.Lock()
	c.lastError = err.Error()
	c.mu.Unlock()
}

func (c *Conn) setState(s State) {
	c.mu.Lock()
	c.state = s
	listeners := make([]StateListener, len(c.stateListeners))
	copy(listeners, c.stateListeners)
	c.mu.Unlock()

	for _, l := range listeners {
		l.ConnectionStateChanged(s)
	}
}
