// Package session holds the in-memory room model: who is connected, which
// rooms exist, what each room's shared buffer looks like, and the fan-out
// rules that keep every participant's view converging on the server's copy.
package session

import "encoding/json"

// Event names on the wire. Client and server speak the same vocabulary;
// direction decides which payload shape applies.
const (
	EvJoin           = "join"
	EvJoined         = "joined"
	EvCodeChange     = "code-change"
	EvLanguageChange = "language-change"
	EvRunCode        = "run-code"
	EvTerminalOutput = "terminal-output"
	EvDisconnected   = "disconnected"
)

// Envelope is the single framing used for every websocket message:
// {"event": "...", "data": {...}}.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// JoinPayload is sent by a client to enter a room.
type JoinPayload struct {
	RoomID   string `json:"roomId"`
	Username string `json:"username"`
}

// Member is one entry in the room roster carried by JoinedPayload.
// socketId is the connection identifier the clients already key on.
type Member struct {
	SocketID string `json:"socketId"`
	Username string `json:"username"`
}

// JoinedPayload is the full room snapshot unicast to every member when
// anyone joins: the deduplicated roster, who joined, and the room state.
type JoinedPayload struct {
	Clients        []Member `json:"clients"`
	Username       string   `json:"username"`
	SocketID       string   `json:"socketId"`
	Code           string   `json:"code"`
	Language       string   `json:"language"`
	TerminalOutput string   `json:"terminalOutput"`
}

// CodeChangePayload carries a whole-buffer overwrite. RoomID is set on the
// inbound leg only; outbound messages are already scoped to the room.
type CodeChangePayload struct {
	RoomID string `json:"roomId,omitempty"`
	Code   string `json:"code"`
}

// LanguageChangePayload mirrors CodeChangePayload for the language tag.
type LanguageChangePayload struct {
	RoomID   string `json:"roomId,omitempty"`
	Language string `json:"language"`
}

// RunCodePayload asks the server to execute the given source.
type RunCodePayload struct {
	RoomID   string `json:"roomId"`
	Code     string `json:"code"`
	Language string `json:"language"`
}

// TerminalOutputPayload is broadcast to the whole room after a run.
type TerminalOutputPayload struct {
	Output string `json:"output"`
}

// DisconnectedPayload tells remaining members who left.
type DisconnectedPayload struct {
	SocketID string `json:"socketId"`
	Username string `json:"username"`
}
