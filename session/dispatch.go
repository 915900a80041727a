package session

import (
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wumingmud/client/logging"
	"github.com/wumingmud/client/protocol"
	"github.com/wumingmud/client/state"
)

// Dispatcher converts inbound server messages into state-store
// mutations. One message's effects are fully applied before the next is
// processed.
type Dispatcher struct {
	mu    sync.Mutex
	store *state.Store
	log   *logging.Logger
}

// NewDispatcher builds a dispatcher mutating store.
func NewDispatcher(store *state.Store, log *logging.Logger) *Dispatcher {
	return &Dispatcher{store: store, log: log}
}

// Dispatch applies one decoded envelope. Unrecognized types are logged
// and ignored; malformed payloads are dropped without touching state.
func (d *Dispatcher) Dispatch(env *protocol.Envelope) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch env.Type {
	case protocol.TypeAuthOK:
		var data struct {
			Player *state.Player `json:"player"`
			Room   *state.Room   `json:"room"`
		}
		if !d.decode(env, &data) {
			return
		}
		if data.Player != nil {
			d.store.SetPlayer(*data.Player)
		}
		if data.Room != nil {
			d.store.SetRoom(*data.Room)
		}

	case protocol.TypeAuthFailed:
		var data struct {
			Message string `json:"message"`
		}
		if !d.decode(env, &data) {
			return
		}
		message := data.Message
		if message == "" {
			message = "Authentication failed."
		}
		d.store.AddNotification(state.Notification{
			ID:      uuid.NewString(),
			Type:    "error",
			Message: message,
		})

	case protocol.TypeRoomUpdate:
		var room state.Room
		if !d.decode(env, &room) {
			return
		}
		d.store.SetRoom(room)

	case protocol.TypePlayerUpdate:
		var patch state.PlayerPatch
		if !d.decode(env, &patch) {
			return
		}
		d.store.MergePlayer(patch)

	case protocol.TypeWorldEvent:
		var data struct {
			ID      string `json:"id"`
			Type    string `json:"type"`
			Content string `json:"content"`
		}
		if !d.decode(env, &data) {
			return
		}
		if data.ID == "" {
			data.ID = uuid.NewString()
		}
		if data.Type == "" {
			data.Type = state.EventSystem
		}
		d.store.AddWorldEvent(state.WorldEvent{
			ID:        data.ID,
			Type:      data.Type,
			Content:   data.Content,
			Timestamp: env.Timestamp,
		})

	case protocol.TypeOnlineUpdate:
		var data struct {
			Count any `json:"count"`
		}
		if !d.decode(env, &data) {
			return
		}
		d.store.SetOnlineCount(coerceCount(data.Count))

	case protocol.TypeChat:
		var data struct {
			ID      string       `json:"id"`
			Channel string       `json:"channel"`
			Sender  state.Sender `json:"sender"`
			Content string       `json:"content"`
		}
		if !d.decode(env, &data) {
			return
		}
		if data.ID == "" {
			data.ID = uuid.NewString()
		}
		d.store.AddChatMessage(state.ChatMessage{
			ID:        data.ID,
			Channel:   state.ChatChannel(data.Channel),
			Sender:    data.Sender,
			Content:   data.Content,
			Timestamp: env.Timestamp,
		})

	case protocol.TypeCombatStart:
		var combat state.Combat
		if !d.decode(env, &combat) {
			return
		}
		d.store.SetCombat(combat)

	case protocol.TypeCombatRound:
		var combat state.Combat
		if !d.decode(env, &combat) {
			return
		}
		d.store.SetCombat(combat)
		d.addCombatEvent(combat.Narrative, "The battle rages on...")

	case protocol.TypeCombatEnd:
		var data struct {
			Narrative string `json:"narrative"`
		}
		if !d.decode(env, &data) {
			return
		}
		d.store.ClearCombat()
		d.addCombatEvent(data.Narrative, "The battle has ended.")

	case protocol.TypeError:
		var data struct {
			Narrative string `json:"narrative"`
			Message   string `json:"message"`
		}
		if !d.decode(env, &data) {
			return
		}
		message := data.Narrative
		if message == "" {
			message = data.Message
		}
		if message == "" {
			message = "The operation failed."
		}
		d.store.AddWorldEvent(state.WorldEvent{
			ID:        uuid.NewString(),
			Type:      state.EventSystem,
			Content:   message,
			Timestamp: time.Now().UnixMilli(),
		})
		d.store.AddNotification(state.Notification{
			ID:      uuid.NewString(),
			Type:    "error",
			Message: message,
		})

	case protocol.TypeQuestUpdate:
		var data struct {
			ID        string `json:"id"`
			Narrative string `json:"narrative"`
			Message   string `json:"message"`
		}
		if !d.decode(env, &data) {
			return
		}
		content := data.Narrative
		if content == "" {
			content = data.Message
		}
		if content == "" {
			content = "Quest status updated."
		}
		if data.ID == "" {
			data.ID = uuid.NewString()
		}
		d.store.AddWorldEvent(state.WorldEvent{
			ID:        data.ID,
			Type:      state.EventNarrative,
			Content:   content,
			Timestamp: time.Now().UnixMilli(),
		})

	case protocol.TypePong:
		// Heartbeat acknowledgment; nothing to update.

	default:
		d.log.Info("ws.message.unhandled",
			"trace_id", env.TraceID,
			"request_id", env.RequestID,
			"phase", logging.PhaseMessage,
			"message_type", env.Type,
		)
	}
}

func (d *Dispatcher) addCombatEvent(narrative, fallback string) {
	if narrative == "" {
		narrative = fallback
	}
	d.store.AddWorldEvent(state.WorldEvent{
		ID:        uuid.NewString(),
		Type:      state.EventCombat,
		Content:   narrative,
		Timestamp: time.Now().UnixMilli(),
	})
}

func (d *Dispatcher) decode(env *protocol.Envelope, v any) bool {
	if err := env.DecodeData(v); err != nil {
		d.log.Error("ws.message.decode_error", err,
			"trace_id", env.TraceID,
			"phase", logging.PhaseMessage,
			"message_type", env.Type,
			"error_kind", "parse",
		)
		return false
	}
	return true
}

// coerceCount turns whatever the server sent into a non-negative count,
// defaulting to 0 for anything unusable.
func coerceCount(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case string:
		parsed, err := strconv.Atoi(n)
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}
