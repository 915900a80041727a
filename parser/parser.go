// Package parser turns raw player input into structured commands.
//
// Input starting with '/' or '!' is parsed against the verb table; anything
// else is forwarded verbatim as natural language for the server to
// interpret.
package parser

import (
	"strings"

	"github.com/wumingmud/client/protocol"
)

// Command is the structured result of parsing one line of player input.
// Type protocol.TypeEmpty and protocol.TypeUnknownCommand are ordinary
// results, not errors.
type Command struct {
	Type string
	Data any
}

var movementWords = map[string]string{
	"go":    "north",
	"n":     "north",
	"north": "north",
	"s":     "south",
	"south": "south",
	"e":     "east",
	"east":  "east",
	"w":     "west",
	"west":  "west",
	"u":     "up",
	"up":    "up",
	"d":     "down",
	"down":  "down",
}

// Parse maps one line of input to a command. It is total: every input
// produces a command.
func Parse(input string) Command {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return Command{Type: protocol.TypeEmpty, Data: struct{}{}}
	}

	if trimmed[0] == '!' || trimmed[0] == '/' {
		parts := strings.Fields(trimmed[1:])
		verb := ""
		var args []string
		if len(parts) > 0 {
			verb = strings.ToLower(parts[0])
			args = parts[1:]
		}
		if cmd, ok := parseVerb(verb, args); ok {
			return cmd
		}
		// Incomplete verb forms fall through to natural language; the
		// server decides what to make of them.
	}

	return Command{Type: protocol.TypePlayerInput, Data: protocol.PlayerInputData{Text: trimmed}}
}

func parseVerb(verb string, args []string) (Command, bool) {
	if dir, ok := movementWords[verb]; ok {
		return Command{Type: protocol.TypeMove, Data: protocol.MoveData{Direction: dir}}, true
	}

	switch verb {
	case "look", "l":
		return Command{Type: protocol.TypeLook, Data: struct{}{}}, true
	case "say":
		return Command{Type: protocol.TypeChat, Data: protocol.ChatData{
			Channel: "room",
			Content: strings.Join(args, " "),
		}}, true
	case "tell":
		if len(args) >= 2 {
			return Command{Type: protocol.TypeChat, Data: protocol.ChatData{
				Channel: "private",
				Target:  args[0],
				Content: strings.Join(args[1:], " "),
			}}, true
		}
	case "guild", "g":
		return Command{Type: protocol.TypeChat, Data: protocol.ChatData{
			Channel: "guild",
			Content: strings.Join(args, " "),
		}}, true
	case "attack", "kill":
		if len(args) > 0 {
			skill := "normal_attack"
			if len(args) > 1 {
				skill = args[1]
			}
			return Command{Type: protocol.TypeCombatAttack, Data: protocol.CombatAttackData{
				Target: args[0],
				Skill:  skill,
			}}, true
		}
	case "quest", "q":
		if len(args) == 0 {
			return Command{Type: protocol.TypeQuestList, Data: struct{}{}}, true
		}
		if args[0] == "accept" && len(args) > 1 && args[1] != "" {
			return Command{Type: protocol.TypeQuestAccept, Data: protocol.QuestAcceptData{QuestID: args[1]}}, true
		}
	case "help", "h":
		return Command{Type: protocol.TypeHelp, Data: struct{}{}}, true
	case "who":
		return Command{Type: protocol.TypeWho, Data: struct{}{}}, true
	case "inventory", "inv", "i":
		return Command{Type: protocol.TypeInventory, Data: struct{}{}}, true
	case "status", "stat":
		return Command{Type: protocol.TypeStatus, Data: struct{}{}}, true
	default:
		return Command{Type: protocol.TypeUnknownCommand, Data: protocol.UnknownCommandData{Command: verb}}, true
	}

	return Command{}, false
}

// IsMovementInput reports whether the whole input is a bare movement
// shorthand such as "n" or "down".
func IsMovementInput(input string) bool {
	trimmed := strings.ToLower(strings.TrimSpace(input))
	if trimmed == "go" {
		return false
	}
	_, ok := movementWords[trimmed]
	return ok
}

// IsQuotedChat reports whether the input starts with a double quote, the
// classic MUD shorthand for speech.
func IsQuotedChat(input string) bool {
	return strings.HasPrefix(strings.TrimSpace(input), `"`)
}

// IsCommandInput reports whether the input addresses the command parser
// rather than the server's natural-language handler.
func IsCommandInput(input string) bool {
	trimmed := strings.TrimSpace(input)
	return strings.HasPrefix(trimmed, "!") || strings.HasPrefix(trimmed, "/")
}
