// Package session owns the persistent server connection: the websocket
// manager, the reconnect policy, the inbound message dispatcher and the
// session context that ties them to the state store.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wumingmud/client/logging"
	"github.com/wumingmud/client/protocol"
	"github.com/wumingmud/client/state"
)

const heartbeatInterval = 30 * time.Second

// Connect failure modes surfaced to callers.
var (
	ErrNoToken        = errors.New("no session token available")
	ErrConnectAborted = errors.New("connection closed while connecting")
)

// TokenSource supplies the session token when Connect is called without
// one. The auth client satisfies this.
type TokenSource interface {
	Token() string
}

// MessageHandler receives every decoded inbound envelope.
type MessageHandler func(*protocol.Envelope)

// StatusHandler receives every connection status transition.
type StatusHandler func(state.ConnectionStatus)

type messageEntry struct {
	id int
	fn MessageHandler
}

type statusEntry struct {
	id int
	fn StatusHandler
}

// connectResult is the shared outcome of one connect attempt. Concurrent
// Connect calls wait on the same result instead of dialing twice.
type connectResult struct {
	done chan struct{}
	err  error
}

// Manager owns the single live websocket connection. It serializes
// writes, fans inbound envelopes and status changes out to registered
// handlers in registration order, and keeps a heartbeat running while
// connected.
type Manager struct {
	url       string
	tokens    TokenSource
	log       *logging.Logger
	dialer    *websocket.Dialer
	heartbeat time.Duration

	mu       sync.Mutex
	ws       *websocket.Conn
	inflight *connectResult

	writeMu sync.Mutex

	hbMu   sync.Mutex
	hbStop chan struct{}

	handlerMu      sync.Mutex
	nextHandlerID  int
	msgHandlers    []messageEntry
	statusHandlers []statusEntry
}

// NewManager builds a manager dialing wsURL. The token and trace-id query
// parameters are appended per connect attempt.
func NewManager(wsURL string, tokens TokenSource, log *logging.Logger) *Manager {
	return &Manager{
		url:       wsURL,
		tokens:    tokens,
		log:       log,
		dialer:    websocket.DefaultDialer,
		heartbeat: heartbeatInterval,
	}
}

// Connect establishes the websocket connection. If a connection is open
// or an attempt is already in flight, Connect joins the existing outcome
// instead of dialing again. With an empty token the token source is
// consulted; without any token the attempt fails with ErrNoToken.
func (m *Manager) Connect(ctx context.Context, token string) error {
	m.mu.Lock()
	if m.ws != nil {
		m.mu.Unlock()
		return nil
	}
	if m.inflight != nil {
		res := m.inflight
		m.mu.Unlock()
		<-res.done
		return res.err
	}
	res := &connectResult{done: make(chan struct{})}
	m.inflight = res
	m.mu.Unlock()

	err := m.dial(ctx, token, res)
	m.finish(res, err)
	return err
}

func (m *Manager) dial(ctx context.Context, token string, res *connectResult) error {
	m.notifyStatus(state.StatusConnecting)

	traceID := m.log.EnsureTraceID()
	requestID := m.log.NewRequestID()
	start := time.Now()

	authToken := token
	if authToken == "" && m.tokens != nil {
		authToken = m.tokens.Token()
	}
	if authToken == "" {
		m.log.Error("ws.connect.fail", ErrNoToken,
			"trace_id", traceID,
			"request_id", requestID,
			"phase", logging.PhaseConnect,
			"error_kind", "auth",
		)
		m.notifyStatus(state.StatusError)
		return ErrNoToken
	}

	target := fmt.Sprintf("%s?token=%s&trace_id=%s",
		m.url, url.QueryEscape(authToken), url.QueryEscape(traceID))

	m.log.Info("ws.connect.start",
		"trace_id", traceID,
		"request_id", requestID,
		"phase", logging.PhaseConnect,
		"ws_path", m.url,
	)

	ws, _, err := m.dialer.DialContext(ctx, target, nil)
	if err != nil {
		m.log.Error("ws.connect.error", err,
			"trace_id", traceID,
			"request_id", requestID,
			"phase", logging.PhaseConnect,
			"error_kind", "network",
		)
		m.notifyStatus(state.StatusError)
		// A failed dial still ends disconnected; the session's reconnect
		// trigger listens for that transition.
		m.notifyStatus(state.StatusDisconnected)
		return fmt.Errorf("dial %s: %w", m.url, err)
	}

	m.mu.Lock()
	if m.inflight != res {
		// Disconnect was called while the dial was in flight.
		m.mu.Unlock()
		ws.Close()
		return ErrConnectAborted
	}
	m.ws = ws
	m.mu.Unlock()

	m.log.Info("ws.connect.success",
		"trace_id", traceID,
		"request_id", requestID,
		"phase", logging.PhaseConnect,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	m.notifyStatus(state.StatusConnected)
	m.startHeartbeat()
	go m.readLoop(ws, traceID)
	return nil
}

func (m *Manager) finish(res *connectResult, err error) {
	m.mu.Lock()
	if m.inflight == res {
		m.inflight = nil
	}
	m.mu.Unlock()
	res.err = err
	close(res.done)
}

// Disconnect stops the heartbeat, abandons any in-flight connect attempt
// and closes the transport. Safe to call at any time, repeatedly.
func (m *Manager) Disconnect() {
	m.stopHeartbeat()

	m.mu.Lock()
	m.inflight = nil
	ws := m.ws
	m.ws = nil
	m.mu.Unlock()

	if ws != nil {
		ws.Close()
	}
}

// Send transmits one envelope, stamping trace and request ids when
// absent. It reports whether the message was actually written; with no
// open connection it returns false without error.
func (m *Manager) Send(env *protocol.Envelope) bool {
	m.mu.Lock()
	ws := m.ws
	m.mu.Unlock()
	if ws == nil {
		return false
	}

	if env.TraceID == "" {
		env.TraceID = m.log.EnsureTraceID()
	}
	if env.RequestID == "" {
		env.RequestID = m.log.NewRequestID()
	}

	raw, err := env.Encode()
	if err != nil {
		m.log.Error("ws.message.send_error", err,
			"trace_id", env.TraceID,
			"phase", logging.PhaseMessage,
		)
		return false
	}

	m.writeMu.Lock()
	err = ws.WriteMessage(websocket.TextMessage, raw)
	m.writeMu.Unlock()
	if err != nil {
		m.log.Error("ws.message.send_error", err,
			"trace_id", env.TraceID,
			"phase", logging.PhaseMessage,
		)
		return false
	}

	m.log.Info("ws.message.out",
		"trace_id", env.TraceID,
		"request_id", env.RequestID,
		"phase", logging.PhaseMessage,
		"message_type", env.Type,
	)
	return true
}

// OnMessage registers a handler for every inbound envelope and returns
// its unregistration function. Handlers run in registration order.
func (m *Manager) OnMessage(h MessageHandler) func() {
	m.handlerMu.Lock()
	defer m.handlerMu.Unlock()
	id := m.nextHandlerID
	m.nextHandlerID++
	m.msgHandlers = append(m.msgHandlers, messageEntry{id: id, fn: h})
	return func() {
		m.handlerMu.Lock()
		defer m.handlerMu.Unlock()
		kept := m.msgHandlers[:0]
		for _, e := range m.msgHandlers {
			if e.id != id {
				kept = append(kept, e)
			}
		}
		m.msgHandlers = append([]messageEntry{}, kept...)
	}
}

// OnStatusChange registers a handler for connection status transitions
// and returns its unregistration function.
func (m *Manager) OnStatusChange(h StatusHandler) func() {
	m.handlerMu.Lock()
	defer m.handlerMu.Unlock()
	id := m.nextHandlerID
	m.nextHandlerID++
	m.statusHandlers = append(m.statusHandlers, statusEntry{id: id, fn: h})
	return func() {
		m.handlerMu.Lock()
		defer m.handlerMu.Unlock()
		kept := m.statusHandlers[:0]
		for _, e := range m.statusHandlers {
			if e.id != id {
				kept = append(kept, e)
			}
		}
		m.statusHandlers = append([]statusEntry{}, kept...)
	}
}

// Status derives the current connection status from transport state:
// connected while a socket is open, connecting while a dial is in
// flight, disconnected otherwise.
func (m *Manager) Status() state.ConnectionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.ws != nil:
		return state.StatusConnected
	case m.inflight != nil:
		return state.StatusConnecting
	default:
		return state.StatusDisconnected
	}
}

func (m *Manager) readLoop(ws *websocket.Conn, traceID string) {
	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			m.handleClose(ws, err, traceID)
			return
		}

		env, derr := protocol.Decode(raw)
		if derr != nil {
			// Bad inbound data is dropped, never fatal.
			m.log.Error("ws.message.parse_error", derr,
				"trace_id", traceID,
				"phase", logging.PhaseMessage,
				"error_kind", "parse",
			)
			continue
		}

		msgTrace := env.TraceID
		if msgTrace == "" {
			msgTrace = traceID
		}
		m.log.Info("ws.message.in",
			"trace_id", msgTrace,
			"request_id", env.RequestID,
			"phase", logging.PhaseMessage,
			"message_type", env.Type,
			"payload_size", len(raw),
		)

		for _, h := range m.messageHandlerSnapshot() {
			h(env)
		}
	}
}

func (m *Manager) handleClose(ws *websocket.Conn, err error, traceID string) {
	m.stopHeartbeat()

	m.mu.Lock()
	if m.ws == ws {
		m.ws = nil
	}
	m.mu.Unlock()

	m.log.Info("ws.connect.close",
		"trace_id", traceID,
		"phase", logging.PhaseConnect,
		"reason", err.Error(),
	)
	m.notifyStatus(state.StatusDisconnected)
}

func (m *Manager) startHeartbeat() {
	m.stopHeartbeat()

	stop := make(chan struct{})
	m.hbMu.Lock()
	m.hbStop = stop
	m.hbMu.Unlock()

	go func() {
		ticker := time.NewTicker(m.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				env, err := protocol.New(protocol.TypePing, struct{}{})
				if err != nil {
					continue
				}
				m.Send(env)
			}
		}
	}()
}

func (m *Manager) stopHeartbeat() {
	m.hbMu.Lock()
	defer m.hbMu.Unlock()
	if m.hbStop != nil {
		close(m.hbStop)
		m.hbStop = nil
	}
}

// messageHandlerSnapshot copies the registry so handlers unregistering
// mid-dispatch cannot corrupt the iteration.
func (m *Manager) messageHandlerSnapshot() []MessageHandler {
	m.handlerMu.Lock()
	defer m.handlerMu.Unlock()
	handlers := make([]MessageHandler, len(m.msgHandlers))
	for i, e := range m.msgHandlers {
		handlers[i] = e.fn
	}
	return handlers
}

func (m *Manager) notifyStatus(status state.ConnectionStatus) {
	m.handlerMu.Lock()
	handlers := make([]StatusHandler, len(m.statusHandlers))
	for i, e := range m.statusHandlers {
		handlers[i] = e.fn
	}
	m.handlerMu.Unlock()

	for _, h := range handlers {
		h(status)
	}
}
