package session

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// controlEndpoint is a fake radio-control endpoint capturing every
// text frame it receives.
type controlEndpoint struct {
	server   *httptest.Server
	upgrader websocket.Upgrader
	frames   chan string
	outbound chan string
}

func newControlEndpoint(t *testing.T) *controlEndpoint {
	t.Helper()
	ep := &controlEndpoint{
		frames:   make(chan string, 128),
		outbound: make(chan string, 16),
	}
	ep.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := ep.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()

		go func() {
			for frame := range ep.outbound {
				if err := ws.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
					return
				}
			}
		}()

		for {
			msgType, msg, err := ws.ReadMessage()
			if err != nil {
				return
			}
			if msgType == websocket.TextMessage {
				ep.frames <- string(msg)
			}
		}
	}))
	t.Cleanup(ep.server.Close)
	return ep
}

func (ep *controlEndpoint) hostPort(t *testing.T) (string, int) {
	t.Helper()
	u, err := url.Parse(ep.server.URL)
	if err != nil {
		t.Fatalf("parse server URL: %v", err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatalf("parse server port: %v", err)
	}
	return u.Hostname(), port
}

func (ep *controlEndpoint) nextFrame(t *testing.T) string {
	t.Helper()
	select {
	case frame := <-ep.frames:
		return frame
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return ""
	}
}

func waitForState(t *testing.T, events <-chan State, want State) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case got := <-events:
			if got == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state %v", want)
		}
	}
}

func TestConnectAndSend(t *testing.T) {
	ep := newControlEndpoint(t)
	host, port := ep.hostPort(t)

	c := NewConn()
	if err := c.Connect(context.Background(), host, port); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Disconnect()

	if got := c.State(); got != StateConnected {
		t.Fatalf("state after connect = %v, want %v", got, StateConnected)
	}

	if err := c.Send("vfo:0,0,9410000;"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if frame := ep.nextFrame(t); frame != "vfo:0,0,9410000;" {
		t.Errorf("observed frame %q, want %q", frame, "vfo:0,0,9410000;")
	}

	status := c.Status()
	if status.LastCommand != "vfo:0,0,9410000;" {
		t.Errorf("LastCommand = %q", status.LastCommand)
	}
	if status.Host != host || status.Port != port {
		t.Errorf("status endpoint = %s:%d, want %s:%d", status.Host, status.Port, host, port)
	}
}

func TestSendWhileDisconnected(t *testing.T) {
	c := NewConn()
	if err := c.Send("vfo:0,0,1;"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Send on disconnected session = %v, want NOT_CONNECTED", err)
	}
}

func TestSendOrdering(t *testing.T) {
	ep := newControlEndpoint(t)
	host, port := ep.hostPort(t)

	c := NewConn(WithQueueSize(64))
	if err := c.Connect(context.Background(), host, port); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Disconnect()

	want := make([]string, 0, 50)
	for i := 0; i < 50; i++ {
		cmd := "vfo:0,0," + strconv.Itoa(1000000+i) + ";"
		want = append(want, cmd)
		if err := c.Send(cmd); err != nil {
			t.Fatalf("Send %d: %v", i, err)
		}
	}

	for i, w := range want {
		if got := ep.nextFrame(t); got != w {
			t.Fatalf("frame %d = %q, want %q", i, got, w)
		}
	}
}

// TestConcurrentSendsYieldCompleteFrames exercises the foreground and
// background producer paths at once: every observed frame must be a
// complete command from the sent set, never a partial write.
func TestConcurrentSendsYieldCompleteFrames(t *testing.T) {
	ep := newControlEndpoint(t)
	host, port := ep.hostPort(t)

	c := NewConn(WithQueueSize(256))
	if err := c.Connect(context.Background(), host, port); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Disconnect()

	const perProducer = 40
	sent := map[string]bool{}
	var mu sync.Mutex
	var wg sync.WaitGroup
	for p := 0; p < 2; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				cmd := "spot_delete:P" + strconv.Itoa(p) + "N" + strconv.Itoa(i) + ";"
				mu.Lock()
				sent[cmd] = true
				mu.Unlock()
				if err := c.Send(cmd); err != nil {
					t.Errorf("Send: %v", err)
					return
				}
			}
		}(p)
	}
	wg.Wait()

	for i := 0; i < 2*perProducer; i++ {
		frame := ep.nextFrame(t)
		if !strings.HasSuffix(frame, ";") {
			t.Fatalf("frame %q is not a complete command", frame)
		}
		mu.Lock()
		ok := sent[frame]
		mu.Unlock()
		if !ok {
			t.Fatalf("frame %q was never sent whole", frame)
		}
	}
}

func TestConnectRefusedStaysDisconnected(t *testing.T) {
	// Grab a free port and close it again so the dial is refused.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	c := NewConn(WithConnectTimeout(500 * time.Millisecond))
	err = c.Connect(context.Background(), "127.0.0.1", port)
	if !errors.Is(err, ErrConnectFailed) {
		t.Fatalf("Connect to closed port = %v, want CONNECT_FAILED", err)
	}
	if got := c.State(); got != StateDisconnected {
		t.Errorf("state after refused connect = %v, want %v", got, StateDisconnected)
	}
}

func TestHandshakeRejectedEntersError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no upgrade here", http.StatusForbidden)
	}))
	defer server.Close()

	u, _ := url.Parse(server.URL)
	port, _ := strconv.Atoi(u.Port())

	c := NewConn()
	err := c.Connect(context.Background(), u.Hostname(), port)
	if !errors.Is(err, ErrHandshakeFailed) {
		t.Fatalf("Connect = %v, want HANDSHAKE_FAILED", err)
	}
	if got := c.State(); got != StateError {
		t.Errorf("state after rejected handshake = %v, want %v", got, StateError)
	}
}

func TestStateTransitions(t *testing.T) {
	ep := newControlEndpoint(t)
	host, port := ep.hostPort(t)

	events := make(chan State, 16)
	c := NewConn()
	c.RegisterStateListener(StateListenerFunc(func(s State) { events <- s }))

	if err := c.Connect(context.Background(), host, port); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	waitForState(t, events, StateConnecting)
	waitForState(t, events, StateConnected)

	c.Disconnect()
	waitForState(t, events, StateDisconnected)

	// Idempotent: a second disconnect must not emit another event.
	c.Disconnect()
	select {
	case s := <-events:
		t.Errorf("unexpected state event %v after repeated disconnect", s)
	case <-time.After(100 * time.Millisecond):
	}

	if err := c.Send("vfo:0,0,1;"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send after disconnect = %v, want NOT_CONNECTED", err)
	}
}

func TestInboundFramesForwardedVerbatim(t *testing.T) {
	ep := newControlEndpoint(t)
	host, port := ep.hostPort(t)

	frames := make(chan string, 4)
	c := NewConn()
	c.RegisterFrameListener(FrameListenerFunc(func(f string) { frames <- f }))

	if err := c.Connect(context.Background(), host, port); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Disconnect()

	ep.outbound <- "vfo:0,0,9410000;"
	select {
	case got := <-frames:
		if got != "vfo:0,0,9410000;" {
			t.Errorf("inbound frame = %q, want %q", got, "vfo:0,0,9410000;")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for inbound frame")
	}
}

func TestPeerCloseEntersError(t *testing.T) {
	ep := newControlEndpoint(t)
	host, port := ep.hostPort(t)

	events := make(chan State, 16)
	c := NewConn()
	c.RegisterStateListener(StateListenerFunc(func(s State) { events <- s }))

	if err := c.Connect(context.Background(), host, port); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	waitForState(t, events, StateConnected)

	ep.server.CloseClientConnections()
	waitForState(t, events, StateError)

	if err := c.Send("vfo:0,0,1;"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send after peer close = %v, want NOT_CONNECTED", err)
	}
}

// TestDrainReportsDroppedCommands drives the teardown drain directly:
// everything still queued must be handed to the drop handler.
func TestDrainReportsDroppedCommands(t *testing.T) {
	dropped := make([]string, 0, 2)
	c := NewConn()
	c.SetDropHandler(func(cmd string, reason error) {
		if !errors.Is(reason, ErrNotConnected) {
			t.Errorf("drop reason = %v, want NOT_CONNECTED", reason)
		}
		dropped = append(dropped, cmd)
	})

	l := &link{sendQ: make(chan string, 4), quit: make(chan struct{})}
	l.sendQ <- "vfo:0,0,1;"
	l.sendQ <- "mute:0,1;"
	c.drain(l)

	if len(dropped) != 2 || dropped[0] != "vfo:0,0,1;" || dropped[1] != "mute:0,1;" {
		t.Errorf("dropped = %v", dropped)
	}
}
