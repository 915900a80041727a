package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wumingmud/client/logging"
	"github.com/wumingmud/client/state"
)

const (
	maxReconnectRetries   = 5
	reconnectInitialDelay = time.Second
	reconnectMaxDelay     = 30 * time.Second
)

// reconnectNarratives flavor the retry wait; one is picked per attempt.
var reconnectNarratives = []string{
	"You steady your breathing and gather your strength...",
	"Mist swirls around you, hiding the path ahead...",
	"You push against the force holding you back...",
	"The world trembles; you wait for it to settle...",
}

// Reconnector schedules reconnect attempts after unexpected disconnects,
// backing off exponentially up to a ceiling of attempts. It never decides
// when to reconnect; the session triggers it.
type Reconnector struct {
	store   *state.Store
	log     *logging.Logger
	connect func() error

	initialDelay time.Duration
	maxDelay     time.Duration
	maxRetries   int

	mu      sync.Mutex
	retries int
	timer   *time.Timer
}

// NewReconnector builds a reconnector invoking connect when a scheduled
// attempt fires.
func NewReconnector(store *state.Store, log *logging.Logger, connect func() error) *Reconnector {
	return &Reconnector{
		store:        store,
		log:          log,
		connect:      connect,
		initialDelay: reconnectInitialDelay,
		maxDelay:     reconnectMaxDelay,
		maxRetries:   maxReconnectRetries,
	}
}

// Start schedules the next reconnect attempt. Past the retry ceiling it
// writes a persistent give-up entry to the world log and schedules
// nothing. A failed attempt is only reported; the next retry is triggered
// by the next disconnect event.
func (r *Reconnector) Start() {
	r.mu.Lock()
	if r.retries >= r.maxRetries {
		r.mu.Unlock()
		r.store.AddWorldEvent(state.WorldEvent{
			ID:        uuid.NewString(),
			Type:      state.EventSystem,
			Content:   "Reconnecting failed repeatedly. Check your network and restart the client.",
			Timestamp: time.Now().UnixMilli(),
		})
		return
	}

	delay := backoffDelay(r.initialDelay, r.maxDelay, r.retries)
	narrative := reconnectNarratives[r.retries%len(reconnectNarratives)]

	if r.timer != nil {
		r.timer.Stop()
	}
	r.timer = time.AfterFunc(delay, r.attempt)
	r.mu.Unlock()

	r.store.AddWorldEvent(state.WorldEvent{
		ID:        uuid.NewString(),
		Type:      state.EventNarrative,
		Content:   narrative,
		Timestamp: time.Now().UnixMilli(),
	})
}

func (r *Reconnector) attempt() {
	r.mu.Lock()
	r.retries++
	attempt := r.retries
	r.mu.Unlock()

	if err := r.connect(); err != nil {
		r.log.Error("ws.reconnect.failed", err,
			"phase", logging.PhaseConnect,
			"reconnect_attempt", attempt,
		)
	}
}

// Stop cancels any pending attempt and resets the retry counter. Call it
// whenever the session reaches a state that makes pending retries stale:
// reconnected, logged out, or intentionally disconnected.
func (r *Reconnector) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.retries = 0
}

func backoffDelay(initial, max time.Duration, retry int) time.Duration {
	delay := initial << uint(retry)
	if delay > max || delay <= 0 {
		return max
	}
	return delay
}
