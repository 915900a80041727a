// Package state holds the client's view of the session and game world.
// All of it lives in memory for the duration of the process; nothing here
// is persisted.
package state

import "time"

// ConnectionStatus describes the transport connection.
type ConnectionStatus string

const (
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusError        ConnectionStatus = "error"
)

// ChatChannel identifies a chat tab/stream.
type ChatChannel string

const (
	ChannelRoom    ChatChannel = "room"
	ChannelGuild   ChatChannel = "guild"
	ChannelPrivate ChatChannel = "private"
	ChannelSystem  ChatChannel = "system"
)

// World-event categories.
const (
	EventSystem    = "system"
	EventWorld     = "world"
	EventCombat    = "combat"
	EventNarrative = "narrative"
)

// Player is the character snapshot pushed by the server.
type Player struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Level      int    `json:"level"`
	HP         int    `json:"hp"`
	MaxHP      int    `json:"max_hp"`
	MP         int    `json:"mp"`
	MaxMP      int    `json:"max_mp"`
	Exp        int    `json:"exp"`
	FactionID  string `json:"faction_id,omitempty"`
	GuildID    string `json:"guild_id,omitempty"`
	LocationID string `json:"location_id"`
	Gold       int    `json:"gold"`
}

// PlayerPatch is a partial player update; nil fields are left unchanged.
type PlayerPatch struct {
	ID         *string `json:"id"`
	Name       *string `json:"name"`
	Level      *int    `json:"level"`
	HP         *int    `json:"hp"`
	MaxHP      *int    `json:"max_hp"`
	MP         *int    `json:"mp"`
	MaxMP      *int    `json:"max_mp"`
	Exp        *int    `json:"exp"`
	FactionID  *string `json:"faction_id"`
	GuildID    *string `json:"guild_id"`
	LocationID *string `json:"location_id"`
	Gold       *int    `json:"gold"`
}

type NPC struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type Exit struct {
	Direction string `json:"direction"`
	Name      string `json:"name"`
	Target    string `json:"target"`
}

// Room is the current location snapshot. List fields are always non-nil
// once a room has been applied to the store.
type Room struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	NPCs        []NPC    `json:"npcs"`
	Players     []Player `json:"players"`
	Exits       []Exit   `json:"exits"`
}

// Opponent is the other side of an active combat.
type Opponent struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	HP    int    `json:"hp"`
	MaxHP int    `json:"max_hp"`
}

// Combat is the at-most-one active combat session, identified by CombatID.
type Combat struct {
	CombatID  string   `json:"combat_id"`
	Type      string   `json:"type"`
	Opponent  Opponent `json:"opponent"`
	Narrative string   `json:"narrative,omitempty"`
	Round     int      `json:"round,omitempty"`
	Result    string   `json:"result,omitempty"`
}

// WorldEvent is one entry of the world-event log.
type WorldEvent struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Title      string `json:"title,omitempty"`
	Content    string `json:"content"`
	Timestamp  int64  `json:"timestamp"`
	Importance string `json:"importance,omitempty"`
}

// Sender identifies the author of a chat message.
type Sender struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ChatMessage is one entry of the chat log.
type ChatMessage struct {
	ID        string      `json:"id"`
	Channel   ChatChannel `json:"type"`
	Sender    Sender      `json:"sender"`
	Content   string      `json:"content"`
	Timestamp int64       `json:"timestamp"`
}

// Notification is a transient UI notice. Duration > 0 means the
// presentation layer removes it after that long.
type Notification struct {
	ID       string
	Type     string // "success", "error", "warning", "info"
	Message  string
	Duration time.Duration
}
