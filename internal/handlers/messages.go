// internal/handlers/messages.go
package handlers

// Inbound message types accepted over the duel websocket.
const (
	MsgCreateRoom   = "create-room"
	MsgJoinRoom     = "join-room"
	MsgReveal       = "reveal"
	MsgCashout      = "cashout"
	MsgBalanceQuery = "balance-query"
	MsgPing         = "ping"
)

// ClientMessage is the envelope for every inbound websocket message.
// CellIndex is a pointer so a missing index can be told apart from cell 0.
type ClientMessage struct {
	Type      string `json:"type"`
	Wager     int64  `json:"wager,omitempty"`
	RoomCode  string `json:"roomCode,omitempty"`
	CellIndex *int   `json:"cellIndex,omitempty"`
}
