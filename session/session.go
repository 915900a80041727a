package session

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/wumingmud/client/logging"
	"github.com/wumingmud/client/parser"
	"github.com/wumingmud/client/protocol"
	"github.com/wumingmud/client/state"
)

// connHistory tracks whether this session has ever held a connection;
// only a drop after a successful connection is eligible for reconnecting.
type connHistory int

const (
	historyNever connHistory = iota
	historyBefore
	historyCurrent
)

// Session is the explicit context object tying the connection manager,
// reconnect policy and dispatcher to the shared state store. One Session
// exists per process; every collaborator receives it (or a piece of it)
// rather than reaching for globals.
type Session struct {
	Store     *state.Store
	Manager   *Manager
	Reconnect *Reconnector

	dispatcher *Dispatcher
	log        *logging.Logger

	mu      sync.Mutex
	history connHistory
}

// New wires a session together. tokens supplies the bearer token for
// connect attempts; the auth client satisfies it.
func New(wsURL string, tokens TokenSource, store *state.Store, log *logging.Logger) *Session {
	s := &Session{
		Store: store,
		log:   log,
	}
	s.Manager = NewManager(wsURL, tokens, log)
	s.dispatcher = NewDispatcher(store, log)
	s.Reconnect = NewReconnector(store, log, func() error {
		return s.Manager.Connect(context.Background(), "")
	})

	s.Manager.OnMessage(s.dispatcher.Dispatch)
	s.Manager.OnStatusChange(s.handleStatus)
	return s
}

// Connect opens the connection using the token source.
func (s *Session) Connect(ctx context.Context) error {
	return s.Manager.Connect(ctx, "")
}

// Close stops reconnecting and tears down the connection. Idempotent.
func (s *Session) Close() {
	s.Reconnect.Stop()
	s.Manager.Disconnect()
}

// Logout closes the session and clears the authenticated state.
func (s *Session) Logout() {
	s.Close()
	s.Store.SetAuthenticated(false)
	s.Store.ClearPlayer()
	s.mu.Lock()
	s.history = historyNever
	s.mu.Unlock()
	s.log.ClearTrace()
}

// HandleInput parses one line of player text and sends the resulting
// command. Empty input is dropped. It reports whether a command was
// transmitted; sending while disconnected surfaces a warning
// notification instead.
func (s *Session) HandleInput(input string) bool {
	cmd := parser.Parse(input)
	if cmd.Type == protocol.TypeEmpty {
		return false
	}

	if s.Manager.Status() != state.StatusConnected {
		s.Store.AddNotification(state.Notification{
			ID:      uuid.NewString(),
			Type:    "warning",
			Message: "Not connected to the server.",
		})
		return false
	}

	env, err := protocol.New(cmd.Type, cmd.Data)
	if err != nil {
		s.log.Error("ws.message.build_error", err,
			"phase", logging.PhaseMessage,
			"message_type", cmd.Type,
		)
		return false
	}
	return s.Manager.Send(env)
}

func (s *Session) handleStatus(status state.ConnectionStatus) {
	s.Store.SetConnectionStatus(status)

	switch status {
	case state.StatusConnected:
		s.mu.Lock()
		s.history = historyCurrent
		s.mu.Unlock()
		s.Reconnect.Stop()

	case state.StatusDisconnected:
		s.mu.Lock()
		if s.history == historyCurrent {
			s.history = historyBefore
		}
		eligible := s.history == historyBefore
		s.mu.Unlock()

		// A drop before any successful connection (bad token, refused
		// dial) must not trigger retries.
		if eligible && s.Store.Authenticated() {
			s.Reconnect.Start()
		}
	}
}
