package session

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/wumingmud/client/protocol"
	"github.com/wumingmud/client/state"
)

func newDispatcher() (*Dispatcher, *state.Store) {
	store := state.NewStore()
	return NewDispatcher(store, quietLogger()), store
}

func envelope(msgType string, data string) *protocol.Envelope {
	return &protocol.Envelope{
		Type:      msgType,
		Timestamp: 1700000000000,
		Data:      json.RawMessage(data),
	}
}

func TestDispatchAuthOK(t *testing.T) {
	d, store := newDispatcher()
	d.Dispatch(envelope(protocol.TypeAuthOK, `{
		"player": {"id":"p1","name":"Wei","level":3,"hp":40,"max_hp":50},
		"room": {"id":"r1","name":"Bamboo Grove","players":[{"id":"p2","name":"Lin"}]}
	}`))

	player := store.Player()
	if player == nil || player.Name != "Wei" || player.Level != 3 {
		t.Fatalf("player = %+v, want Wei level 3", player)
	}
	room := store.Room()
	if room == nil || room.Name != "Bamboo Grove" {
		t.Fatalf("room = %+v, want Bamboo Grove", room)
	}
	occupants := store.OnlinePlayers()
	if len(occupants) != 1 || occupants[0].Name != "Lin" {
		t.Errorf("room occupants = %+v, want [Lin]", occupants)
	}
}

func TestDispatchAuthOKWithoutRoomLeavesRoomNil(t *testing.T) {
	d, store := newDispatcher()
	d.Dispatch(envelope(protocol.TypeAuthOK, `{"player":{"id":"p1","name":"Wei"}}`))
	if store.Room() != nil {
		t.Error("room set from auth_ok without room payload")
	}
}

func TestDispatchAuthFailed(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"server message", `{"message":"bad credentials"}`, "bad credentials"},
		{"empty payload", `{}`, "Authentication failed."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, store := newDispatcher()
			d.Dispatch(envelope(protocol.TypeAuthFailed, tt.data))
			notes := store.Notifications()
			if len(notes) != 1 {
				t.Fatalf("notifications = %d, want 1", len(notes))
			}
			if notes[0].Type != "error" || notes[0].Message != tt.want {
				t.Errorf("notification = %+v, want error %q", notes[0], tt.want)
			}
		})
	}
}

func TestDispatchRoomUpdateNormalizesCollections(t *testing.T) {
	d, store := newDispatcher()
	d.Dispatch(envelope(protocol.TypeRoomUpdate, `{"id":"r2","name":"Cliff Path"}`))

	room := store.Room()
	if room == nil {
		t.Fatal("room not set")
	}
	if room.Players == nil || room.NPCs == nil || room.Exits == nil {
		t.Errorf("room collections = %+v, want all non-nil", room)
	}
	if len(store.OnlinePlayers()) != 0 || len(store.RoomNPCs()) != 0 {
		t.Error("occupant mirrors not reset for empty room")
	}
}

func TestDispatchPlayerUpdateMergesPatch(t *testing.T) {
	d, store := newDispatcher()
	store.SetPlayer(state.Player{ID: "p1", Name: "Wei", HP: 40, MaxHP: 50, Level: 3})

	d.Dispatch(envelope(protocol.TypePlayerUpdate, `{"hp":25}`))

	player := store.Player()
	if player.HP != 25 {
		t.Errorf("hp = %d, want 25", player.HP)
	}
	if player.Name != "Wei" || player.Level != 3 || player.MaxHP != 50 {
		t.Errorf("untouched fields changed: %+v", player)
	}
}

func TestDispatchWorldEventDefaults(t *testing.T) {
	d, store := newDispatcher()
	d.Dispatch(envelope(protocol.TypeWorldEvent, `{"content":"A gong sounds in the distance."}`))

	events := store.WorldEvents()
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	ev := events[0]
	if ev.ID == "" {
		t.Error("event id not generated")
	}
	if ev.Type != state.EventSystem {
		t.Errorf("event type = %q, want system default", ev.Type)
	}
	if ev.Timestamp != 1700000000000 {
		t.Errorf("event timestamp = %d, want envelope timestamp", ev.Timestamp)
	}
}

func TestDispatchWorldEventLogCap(t *testing.T) {
	d, store := newDispatcher()
	for i := 0; i < 150; i++ {
		d.Dispatch(envelope(protocol.TypeWorldEvent,
			fmt.Sprintf(`{"id":"%d","type":"narrative","content":"step %d"}`, i, i)))
	}
	events := store.WorldEvents()
	if len(events) != state.MaxWorldEvents {
		t.Fatalf("events = %d, want %d", len(events), state.MaxWorldEvents)
	}
	if events[0].ID != "50" || events[len(events)-1].ID != "149" {
		t.Errorf("event window = %s..%s, want 50..149", events[0].ID, events[len(events)-1].ID)
	}
}

func TestDispatchOnlineUpdateCoercion(t *testing.T) {
	tests := []struct {
		name string
		data string
		want int
	}{
		{"number", `{"count":12}`, 12},
		{"numeric string", `{"count":"7"}`, 7},
		{"garbage string", `{"count":"many"}`, 0},
		{"null", `{"count":null}`, 0},
		{"missing", `{}`, 0},
		{"negative", `{"count":-3}`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, store := newDispatcher()
			d.Dispatch(envelope(protocol.TypeOnlineUpdate, tt.data))
			if got := store.OnlineCount(); got != tt.want {
				t.Errorf("online count = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestDispatchChatMessage(t *testing.T) {
	d, store := newDispatcher()
	d.Dispatch(envelope(protocol.TypeChat, `{
		"channel":"guild",
		"sender":{"id":"p2","name":"Lin"},
		"content":"anyone up for the trial?"
	}`))

	msgs := store.ChatMessages()
	if len(msgs) != 1 {
		t.Fatalf("chat messages = %d, want 1", len(msgs))
	}
	msg := msgs[0]
	if msg.ID == "" {
		t.Error("chat id not generated")
	}
	if msg.Channel != state.ChannelGuild || msg.Sender.Name != "Lin" {
		t.Errorf("message = %+v, want guild message from Lin", msg)
	}
	if msg.Timestamp != 1700000000000 {
		t.Errorf("timestamp = %d, want envelope timestamp", msg.Timestamp)
	}
}

func TestDispatchCombatLifecycle(t *testing.T) {
	d, store := newDispatcher()

	d.Dispatch(envelope(protocol.TypeCombatStart, `{
		"combat_id":"c1",
		"opponent":{"id":"wolf1","name":"Gray Wolf","hp":30,"max_hp":30}
	}`))
	combat := store.Combat()
	if combat == nil || combat.CombatID != "c1" || combat.Opponent.Name != "Gray Wolf" {
		t.Fatalf("combat = %+v, want active c1 vs Gray Wolf", combat)
	}

	d.Dispatch(envelope(protocol.TypeCombatRound, `{
		"combat_id":"c1",
		"opponent":{"id":"wolf1","name":"Gray Wolf","hp":12,"max_hp":30},
		"narrative":"Your palm strike lands squarely."
	}`))
	combat = store.Combat()
	if combat.Opponent.HP != 12 {
		t.Errorf("opponent hp = %d, want 12", combat.Opponent.HP)
	}
	events := store.WorldEvents()
	if len(events) != 1 || events[0].Type != state.EventCombat || events[0].Content != "Your palm strike lands squarely." {
		t.Errorf("combat event = %+v", events)
	}

	d.Dispatch(envelope(protocol.TypeCombatEnd, `{"narrative":"The wolf collapses."}`))
	if store.Combat() != nil {
		t.Error("combat not cleared on combat_end")
	}
	events = store.WorldEvents()
	if len(events) != 2 || events[1].Content != "The wolf collapses." {
		t.Errorf("end event = %+v", events)
	}
}

func TestDispatchCombatRoundDefaultNarrative(t *testing.T) {
	d, store := newDispatcher()
	d.Dispatch(envelope(protocol.TypeCombatRound, `{"combat_id":"c1"}`))
	events := store.WorldEvents()
	if len(events) != 1 || events[0].Content != "The battle rages on..." {
		t.Errorf("events = %+v, want default round narrative", events)
	}
}

func TestDispatchError(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"narrative preferred", `{"narrative":"A wall of qi blocks your path.","message":"forbidden"}`, "A wall of qi blocks your path."},
		{"message fallback", `{"message":"no such target"}`, "no such target"},
		{"empty payload", `{}`, "The operation failed."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, store := newDispatcher()
			d.Dispatch(envelope(protocol.TypeError, tt.data))

			events := store.WorldEvents()
			if len(events) != 1 || events[0].Type != state.EventSystem || events[0].Content != tt.want {
				t.Errorf("events = %+v, want system %q", events, tt.want)
			}
			notes := store.Notifications()
			if len(notes) != 1 || notes[0].Type != "error" || notes[0].Message != tt.want {
				t.Errorf("notifications = %+v, want error %q", notes, tt.want)
			}
		})
	}
}

func TestDispatchQuestUpdate(t *testing.T) {
	d, store := newDispatcher()
	d.Dispatch(envelope(protocol.TypeQuestUpdate, `{"id":"q1","narrative":"The elder nods approvingly."}`))

	events := store.WorldEvents()
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	if events[0].Type != state.EventNarrative || events[0].Content != "The elder nods approvingly." {
		t.Errorf("event = %+v", events[0])
	}

	d.Dispatch(envelope(protocol.TypeQuestUpdate, `{}`))
	events = store.WorldEvents()
	if events[1].Content != "Quest status updated." {
		t.Errorf("default quest content = %q", events[1].Content)
	}
}

func TestDispatchPongIsNoOp(t *testing.T) {
	d, store := newDispatcher()
	d.Dispatch(envelope(protocol.TypePong, `{}`))
	if len(store.WorldEvents()) != 0 || len(store.Notifications()) != 0 {
		t.Error("pong mutated state")
	}
}

func TestDispatchUnknownTypeIgnored(t *testing.T) {
	d, store := newDispatcher()
	d.Dispatch(envelope("weather_update", `{"sky":"overcast"}`))
	if len(store.WorldEvents()) != 0 {
		t.Error("unknown type mutated state")
	}
}

func TestDispatchMalformedPayloadLeavesStateUntouched(t *testing.T) {
	d, store := newDispatcher()
	store.SetPlayer(state.Player{ID: "p1", Name: "Wei", HP: 40})

	d.Dispatch(envelope(protocol.TypePlayerUpdate, `{"hp":"not a number"}`))

	if got := store.Player().HP; got != 40 {
		t.Errorf("hp = %d, want 40 after malformed patch", got)
	}
}
