package state

import "sync"

// Log caps. Both logs are FIFO-trimmed to the most recent entries.
const (
	MaxWorldEvents  = 100
	MaxChatMessages = 200
)

var chatTabs = []ChatChannel{ChannelRoom, ChannelGuild, ChannelPrivate}

// Store is the single shared container for session and game state. Every
// mutation swaps the affected slice of state atomically under one lock, so
// readers always observe a consistent snapshot.
type Store struct {
	mu sync.Mutex

	authenticated bool
	connStatus    ConnectionStatus
	onlineCount   int
	player        *Player
	room          *Room
	onlinePlayers []Player
	roomNPCs      []NPC
	worldEvents   []WorldEvent
	chatMessages  []ChatMessage
	activeChatTab ChatChannel
	combat        *Combat
	notifications []Notification
}

// NewStore creates a store with all-empty defaults.
func NewStore() *Store {
	return &Store{
		connStatus:    StatusDisconnected,
		activeChatTab: ChannelRoom,
	}
}

func (s *Store) SetAuthenticated(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authenticated = v
}

func (s *Store) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

func (s *Store) SetConnectionStatus(status ConnectionStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connStatus = status
}

func (s *Store) ConnectionStatus() ConnectionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connStatus
}

// SetOnlineCount replaces the online-player count. Negative values are
// clamped to zero.
func (s *Store) SetOnlineCount(count int) {
	if count < 0 {
		count = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onlineCount = count
}

func (s *Store) OnlineCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.onlineCount
}

// SetPlayer replaces the current player snapshot.
func (s *Store) SetPlayer(p Player) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.player = &p
}

// ClearPlayer drops the player snapshot (logout).
func (s *Store) ClearPlayer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.player = nil
}

// MergePlayer applies a partial update to the current player. Without a
// current player the patch is ignored.
func (s *Store) MergePlayer(patch PlayerPatch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.player == nil {
		return
	}
	p := *s.player
	if patch.ID != nil {
		p.ID = *patch.ID
	}
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Level != nil {
		p.Level = *patch.Level
	}
	if patch.HP != nil {
		p.HP = *patch.HP
	}
	if patch.MaxHP != nil {
		p.MaxHP = *patch.MaxHP
	}
	if patch.MP != nil {
		p.MP = *patch.MP
	}
	if patch.MaxMP != nil {
		p.MaxMP = *patch.MaxMP
	}
	if patch.Exp != nil {
		p.Exp = *patch.Exp
	}
	if patch.FactionID != nil {
		p.FactionID = *patch.FactionID
	}
	if patch.GuildID != nil {
		p.GuildID = *patch.GuildID
	}
	if patch.LocationID != nil {
		p.LocationID = *patch.LocationID
	}
	if patch.Gold != nil {
		p.Gold = *patch.Gold
	}
	s.player = &p
}

// Player returns a copy of the current player snapshot, or nil.
func (s *Store) Player() *Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.player == nil {
		return nil
	}
	p := *s.player
	return &p
}

// SetRoom replaces the current room snapshot, defaulting absent list
// fields to empty slices and mirroring the room's players and NPCs into
// their dedicated views.
func (s *Store) SetRoom(room Room) {
	if room.NPCs == nil {
		room.NPCs = []NPC{}
	}
	if room.Players == nil {
		room.Players = []Player{}
	}
	if room.Exits == nil {
		room.Exits = []Exit{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.room = &room
	s.onlinePlayers = room.Players
	s.roomNPCs = room.NPCs
}

// Room returns a copy of the current room snapshot, or nil.
func (s *Store) Room() *Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.room == nil {
		return nil
	}
	room := *s.room
	room.NPCs = append([]NPC{}, s.room.NPCs...)
	room.Players = append([]Player{}, s.room.Players...)
	room.Exits = append([]Exit{}, s.room.Exits...)
	return &room
}

func (s *Store) OnlinePlayers() []Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Player{}, s.onlinePlayers...)
}

func (s *Store) RoomNPCs() []NPC {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]NPC{}, s.roomNPCs...)
}

// AddWorldEvent appends to the world-event log, trimming to the most
// recent MaxWorldEvents entries in arrival order.
func (s *Store) AddWorldEvent(ev WorldEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.worldEvents = append(s.worldEvents, ev)
	if n := len(s.worldEvents); n > MaxWorldEvents {
		s.worldEvents = append([]WorldEvent{}, s.worldEvents[n-MaxWorldEvents:]...)
	}
}

func (s *Store) WorldEvents() []WorldEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]WorldEvent{}, s.worldEvents...)
}

// AddChatMessage appends to the chat log, trimming to the most recent
// MaxChatMessages entries in arrival order.
func (s *Store) AddChatMessage(msg ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chatMessages = append(s.chatMessages, msg)
	if n := len(s.chatMessages); n > MaxChatMessages {
		s.chatMessages = append([]ChatMessage{}, s.chatMessages[n-MaxChatMessages:]...)
	}
}

func (s *Store) ChatMessages() []ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ChatMessage{}, s.chatMessages...)
}

// ActiveChatTab returns the selected chat channel; always one of room,
// guild or private.
func (s *Store) ActiveChatTab() ChatChannel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeChatTab
}

// CycleChatTab advances the active chat channel cyclically over
// room -> guild -> private (or the reverse).
func (s *Store) CycleChatTab(reverse bool) ChatChannel {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := 0
	for i, tab := range chatTabs {
		if tab == s.activeChatTab {
			idx = i
			break
		}
	}
	if reverse {
		idx = (idx - 1 + len(chatTabs)) % len(chatTabs)
	} else {
		idx = (idx + 1) % len(chatTabs)
	}
	s.activeChatTab = chatTabs[idx]
	return s.activeChatTab
}

// SetCombat replaces the active combat session.
func (s *Store) SetCombat(c Combat) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.combat = &c
}

// ClearCombat removes the active combat session.
func (s *Store) ClearCombat() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.combat = nil
}

// Combat returns a copy of the active combat session, or nil.
func (s *Store) Combat() *Combat {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.combat == nil {
		return nil
	}
	c := *s.combat
	return &c
}

func (s *Store) AddNotification(n Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append(s.notifications, n)
}

func (s *Store) RemoveNotification(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.notifications[:0]
	for _, n := range s.notifications {
		if n.ID != id {
			kept = append(kept, n)
		}
	}
	s.notifications = kept
}

func (s *Store) Notifications() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Notification{}, s.notifications...)
}
