// Package protocol defines the JSON wire envelope exchanged with the game
// server and the message types used on both directions of the connection.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Client -> server message types.
const (
	TypeMove         = "move"
	TypeLook         = "look"
	TypeChat         = "chat"
	TypeCombatAttack = "combat_attack"
	TypeQuestList    = "quest_list"
	TypeQuestAccept  = "quest_accept"
	TypeHelp         = "help"
	TypeWho          = "who"
	TypeInventory    = "inventory"
	TypeStatus       = "status"
	TypePlayerInput  = "player_input"
	TypePing         = "ping"
)

// Server -> client message types. TypeChat is used in both directions.
const (
	TypeAuthOK       = "auth_ok"
	TypeAuthFailed   = "auth_failed"
	TypeRoomUpdate   = "room_update"
	TypePlayerUpdate = "player_update"
	TypeWorldEvent   = "world_event"
	TypeOnlineUpdate = "online_update"
	TypeCombatStart  = "combat_start"
	TypeCombatRound  = "combat_round"
	TypeCombatEnd    = "combat_end"
	TypeError        = "error"
	TypeQuestUpdate  = "quest_update"
	TypePong         = "pong"
)

// Parser sentinel types. TypeEmpty is never transmitted; TypeUnknownCommand
// is forwarded to the server like any other command.
const (
	TypeEmpty          = "empty"
	TypeUnknownCommand = "unknown_command"
)

// ErrMissingType is returned when an inbound frame has no message type.
var ErrMissingType = errors.New("envelope missing type")

// Envelope is the wire frame shared by client and server messages.
type Envelope struct {
	Type      string          `json:"type"`
	Timestamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
	TraceID   string          `json:"trace_id,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
}

// New builds an outbound envelope for the given payload, stamped with the
// current time in epoch milliseconds.
func New(msgType string, payload any) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	return &Envelope{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	}, nil
}

// Decode parses a raw text frame into an envelope.
func Decode(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return nil, ErrMissingType
	}
	return &env, nil
}

// Encode serializes the envelope to a JSON text frame.
func (e *Envelope) Encode() ([]byte, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return raw, nil
}

// DecodeData unmarshals the envelope payload into v. A missing payload
// leaves v untouched, so zero values act as defaults.
func (e *Envelope) DecodeData(v any) error {
	if len(e.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("decode %s data: %w", e.Type, err)
	}
	return nil
}
