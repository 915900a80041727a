package protocol

// Outbound command payloads. Field names follow the server's snake_case
// wire format.

type MoveData struct {
	Direction string `json:"direction"`
}

type ChatData struct {
	Channel string `json:"channel"`
	Target  string `json:"target,omitempty"`
	Content string `json:"content"`
}

type CombatAttackData struct {
	Target string `json:"target"`
	Skill  string `json:"skill"`
}

type QuestAcceptData struct {
	QuestID string `json:"quest_id"`
}

type PlayerInputData struct {
	Text string `json:"text"`
}

type UnknownCommandData struct {
	Command string `json:"command"`
}
