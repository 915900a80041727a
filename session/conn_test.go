package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wumingmud/client/logging"
	"github.com/wumingmud/client/protocol"
	"github.com/wumingmud/client/state"
)

type staticTokens string

func (s staticTokens) Token() string { return string(s) }

func quietLogger() *logging.Logger {
	return logging.New(logging.Config{})
}

// newWSServer runs a test websocket server, invoking handle per
// connection. It returns the ws:// URL.
func newWSServer(t *testing.T, handle func(conn *websocket.Conn)) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()
		handle(conn)
	}))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestConnectReceivesMessages(t *testing.T) {
	url := newWSServer(t, func(conn *websocket.Conn) {
		env := &protocol.Envelope{Type: protocol.TypeChat, Timestamp: 1, Data: json.RawMessage(`{"channel":"room","content":"hi"}`)}
		raw, _ := env.Encode()
		conn.WriteMessage(websocket.TextMessage, raw)
		time.Sleep(200 * time.Millisecond)
	})

	m := NewManager(url, staticTokens("tok"), quietLogger())

	var mu sync.Mutex
	var received []*protocol.Envelope
	m.OnMessage(func(env *protocol.Envelope) {
		mu.Lock()
		received = append(received, env)
		mu.Unlock()
	})

	var statuses []state.ConnectionStatus
	m.OnStatusChange(func(s state.ConnectionStatus) {
		mu.Lock()
		statuses = append(statuses, s)
		mu.Unlock()
	})

	if err := m.Connect(context.Background(), ""); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer m.Disconnect()

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	})

	mu.Lock()
	defer mu.Unlock()
	if received[0].Type != protocol.TypeChat {
		t.Errorf("received type = %q, want chat", received[0].Type)
	}
	if len(statuses) < 2 || statuses[0] != state.StatusConnecting || statuses[1] != state.StatusConnected {
		t.Errorf("statuses = %v, want [connecting connected ...]", statuses)
	}
}

func TestConnectAppendsTokenAndTraceID(t *testing.T) {
	var gotToken, gotTrace atomic.Value
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken.Store(r.URL.Query().Get("token"))
		gotTrace.Store(r.URL.Query().Get("trace_id"))
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		time.Sleep(100 * time.Millisecond)
	}))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	m := NewManager(url, staticTokens("fallback"), quietLogger())
	if err := m.Connect(context.Background(), "explicit-token"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer m.Disconnect()

	if gotToken.Load() != "explicit-token" {
		t.Errorf("token query = %v, want explicit-token", gotToken.Load())
	}
	if trace, _ := gotTrace.Load().(string); trace == "" {
		t.Error("trace_id query missing")
	}
}

func TestConnectWithoutTokenFails(t *testing.T) {
	m := NewManager("ws://localhost:1", staticTokens(""), quietLogger())

	var statuses []state.ConnectionStatus
	var mu sync.Mutex
	m.OnStatusChange(func(s state.ConnectionStatus) {
		mu.Lock()
		statuses = append(statuses, s)
		mu.Unlock()
	})

	err := m.Connect(context.Background(), "")
	if !errors.Is(err, ErrNoToken) {
		t.Fatalf("Connect() error = %v, want ErrNoToken", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(statuses) != 2 || statuses[0] != state.StatusConnecting || statuses[1] != state.StatusError {
		t.Errorf("statuses = %v, want [connecting error]", statuses)
	}
	if m.Status() != state.StatusDisconnected {
		t.Errorf("Status() = %s, want disconnected", m.Status())
	}
}

func TestConnectDialFailureEndsDisconnected(t *testing.T) {
	// Nothing listens here.
	m := NewManager("ws://127.0.0.1:1", staticTokens("tok"), quietLogger())

	var mu sync.Mutex
	var statuses []state.ConnectionStatus
	m.OnStatusChange(func(s state.ConnectionStatus) {
		mu.Lock()
		statuses = append(statuses, s)
		mu.Unlock()
	})

	if err := m.Connect(context.Background(), ""); err == nil {
		t.Fatal("Connect() = nil error, want dial failure")
	}

	mu.Lock()
	defer mu.Unlock()
	want := []state.ConnectionStatus{state.StatusConnecting, state.StatusError, state.StatusDisconnected}
	if len(statuses) != len(want) {
		t.Fatalf("statuses = %v, want %v", statuses, want)
	}
	for i := range want {
		if statuses[i] != want[i] {
			t.Fatalf("statuses = %v, want %v", statuses, want)
		}
	}
}

func TestConnectCoalescesConcurrentAttempts(t *testing.T) {
	var upgrades atomic.Int32
	release := make(chan struct{})
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrades.Add(1)
		<-release
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	m := NewManager(url, staticTokens("tok"), quietLogger())
	defer m.Disconnect()

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			errs <- m.Connect(context.Background(), "")
		}()
	}
	// Let both calls reach the manager before the server responds.
	time.Sleep(50 * time.Millisecond)
	close(release)

	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			t.Errorf("Connect() error = %v", err)
		}
	}
	if got := upgrades.Load(); got != 1 {
		t.Errorf("server saw %d connection attempts, want 1", got)
	}
}

func TestConnectWhileConnectedIsNoOp(t *testing.T) {
	url := newWSServer(t, func(conn *websocket.Conn) {
		time.Sleep(300 * time.Millisecond)
	})

	m := NewManager(url, staticTokens("tok"), quietLogger())
	defer m.Disconnect()

	if err := m.Connect(context.Background(), ""); err != nil {
		t.Fatalf("first Connect() error = %v", err)
	}
	if err := m.Connect(context.Background(), ""); err != nil {
		t.Errorf("second Connect() error = %v", err)
	}
	if m.Status() != state.StatusConnected {
		t.Errorf("Status() = %s, want connected", m.Status())
	}
}

func TestDisconnectIsIdempotent(t *testing.T) {
	m := NewManager("ws://localhost:1", staticTokens("tok"), quietLogger())
	m.Disconnect()
	m.Disconnect() // must not panic or block

	url := newWSServer(t, func(conn *websocket.Conn) {
		time.Sleep(300 * time.Millisecond)
	})
	m = NewManager(url, staticTokens("tok"), quietLogger())
	if err := m.Connect(context.Background(), ""); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	m.Disconnect()
	m.Disconnect()
	if m.Status() != state.StatusDisconnected {
		t.Errorf("Status() = %s, want disconnected", m.Status())
	}
}

func TestSendWithoutConnectionReturnsFalse(t *testing.T) {
	m := NewManager("ws://localhost:1", staticTokens("tok"), quietLogger())
	env, _ := protocol.New(protocol.TypeLook, struct{}{})
	if m.Send(env) {
		t.Error("Send() = true with no connection")
	}
}

func TestSendStampsTraceAndRequestIDs(t *testing.T) {
	frames := make(chan []byte, 1)
	url := newWSServer(t, func(conn *websocket.Conn) {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		frames <- raw
	})

	m := NewManager(url, staticTokens("tok"), quietLogger())
	defer m.Disconnect()
	if err := m.Connect(context.Background(), ""); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	env, _ := protocol.New(protocol.TypeMove, protocol.MoveData{Direction: "north"})
	if !m.Send(env) {
		t.Fatal("Send() = false, want true")
	}

	select {
	case raw := <-frames:
		got, err := protocol.Decode(raw)
		if err != nil {
			t.Fatalf("server received bad frame: %v", err)
		}
		if got.TraceID == "" || got.RequestID == "" {
			t.Errorf("frame ids = %q/%q, want non-empty", got.TraceID, got.RequestID)
		}
		if got.Type != protocol.TypeMove {
			t.Errorf("frame type = %q, want move", got.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("server never received the frame")
	}
}

func TestBadInboundFramesAreDropped(t *testing.T) {
	url := newWSServer(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, []byte("{broken"))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"timestamp":5}`))
		raw, _ := (&protocol.Envelope{Type: protocol.TypePong, Timestamp: 6}).Encode()
		conn.WriteMessage(websocket.TextMessage, raw)
		time.Sleep(200 * time.Millisecond)
	})

	m := NewManager(url, staticTokens("tok"), quietLogger())
	defer m.Disconnect()

	var mu sync.Mutex
	var received []string
	m.OnMessage(func(env *protocol.Envelope) {
		mu.Lock()
		received = append(received, env.Type)
		mu.Unlock()
	})

	if err := m.Connect(context.Background(), ""); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) >= 1
	})

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 || received[0] != protocol.TypePong {
		t.Errorf("received = %v, want only the valid pong", received)
	}
}

func TestServerCloseEmitsDisconnected(t *testing.T) {
	url := newWSServer(t, func(conn *websocket.Conn) {
		// Close immediately after the handshake.
	})

	m := NewManager(url, staticTokens("tok"), quietLogger())

	var mu sync.Mutex
	var statuses []state.ConnectionStatus
	m.OnStatusChange(func(s state.ConnectionStatus) {
		mu.Lock()
		statuses = append(statuses, s)
		mu.Unlock()
	})

	if err := m.Connect(context.Background(), ""); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(statuses) >= 3 && statuses[len(statuses)-1] == state.StatusDisconnected
	})

	if m.Status() != state.StatusDisconnected {
		t.Errorf("Status() = %s, want disconnected", m.Status())
	}
}

func TestHeartbeatSendsPingsWhileConnected(t *testing.T) {
	pings := make(chan struct{}, 16)
	readErrs := make(chan error, 1)
	url := newWSServer(t, func(conn *websocket.Conn) {
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				readErrs <- err
				return
			}
			env, err := protocol.Decode(raw)
			if err == nil && env.Type == protocol.TypePing {
				pings <- struct{}{}
			}
		}
	})

	m := NewManager(url, staticTokens("tok"), quietLogger())
	m.heartbeat = 20 * time.Millisecond
	if err := m.Connect(context.Background(), ""); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	for i := 0; i < 2; i++ {
		select {
		case <-pings:
		case <-time.After(time.Second):
			t.Fatalf("ping %d never arrived", i+1)
		}
	}

	m.Disconnect()

	// The server's read loop ends with the close; nothing more may
	// arrive after it.
	select {
	case <-readErrs:
	case <-time.After(time.Second):
		t.Fatal("server connection survived Disconnect")
	}
	for { // drain pings that were in flight at close time
		select {
		case <-pings:
			continue
		default:
		}
		break
	}
	select {
	case <-pings:
		t.Error("ping sent after Disconnect")
	case <-time.After(5 * m.heartbeat):
	}
}

func TestHandlerUnregistration(t *testing.T) {
	m := NewManager("ws://localhost:1", staticTokens("tok"), quietLogger())

	var first, second atomic.Int32
	unsub := m.OnMessage(func(*protocol.Envelope) { first.Add(1) })
	m.OnMessage(func(*protocol.Envelope) { second.Add(1) })

	env := &protocol.Envelope{Type: protocol.TypePong}
	for _, h := range m.messageHandlerSnapshot() {
		h(env)
	}
	unsub()
	unsub() // double unregistration is harmless
	for _, h := range m.messageHandlerSnapshot() {
		h(env)
	}

	if first.Load() != 1 {
		t.Errorf("first handler calls = %d, want 1", first.Load())
	}
	if second.Load() != 2 {
		t.Errorf("second handler calls = %d, want 2", second.Load())
	}
}

func TestHandlersInvokedInRegistrationOrder(t *testing.T) {
	m := NewManager("ws://localhost:1", staticTokens("tok"), quietLogger())

	var mu sync.Mutex
	var order []int
	for i := 0; i < 3; i++ {
		i := i
		m.OnMessage(func(*protocol.Envelope) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
	}
	for _, h := range m.messageHandlerSnapshot() {
		h(&protocol.Envelope{Type: protocol.TypePong})
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 3 || order[0] != 0 || order[1] != 1 || order[2] != 2 {
		t.Errorf("order = %v, want [0 1 2]", order)
	}
}
