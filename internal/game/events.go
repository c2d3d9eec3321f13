// internal/game/events.go
package game

import "github.com/google/uuid"

// EventType identifies an outbound notification to a single connection.
type EventType string

const (
	EventRoomCreated    EventType = "room-created"
	EventMatchStarted   EventType = "match-started"
	EventBalanceChanged EventType = "balance-changed"
	EventBoardUpdated   EventType = "board-updated"
	EventMatchFinished  EventType = "match-finished"
	EventRejected       EventType = "rejected"
	EventPong           EventType = "pong"
)

// Snapshot is a player's private view of their own board. MineCells is only
// populated once the board is terminal; before that the layout stays hidden
// even from the owner.
type Snapshot struct {
	OpenedCells []int   `json:"openedCells"`
	Multiplier  float64 `json:"multiplier"`
	Busted      bool    `json:"busted"`
	CashedOut   bool    `json:"cashedOut"`
	TimedOut    bool    `json:"timedOut"`
	MineCells   []int   `json:"mineCells,omitempty"`
}

// Result is one occupant's individually computed settlement outcome.
type Result struct {
	Outcome            string  `json:"outcome"` // "win", "lose", or "draw"
	OwnMultiplier      float64 `json:"ownMultiplier"`
	OpponentMultiplier float64 `json:"opponentMultiplier"`
	CombinedMultiplier float64 `json:"combinedMultiplier"`
	Payout             int64   `json:"payout"`
	ResultingBalance   int64   `json:"resultingBalance"`
}

// Event is the single outbound message shape. Fields beyond Type are
// populated per event kind; see the Event* constants.
type Event struct {
	Type EventType `json:"type"`

	RoomCode        string `json:"roomCode,omitempty"`
	Wager           int64  `json:"wager,omitempty"`
	StartTime       int64  `json:"startTime,omitempty"` // epoch millis
	DurationSeconds int    `json:"durationSeconds,omitempty"`

	Balance *int64 `json:"balance,omitempty"`

	Board  *Snapshot `json:"board,omitempty"`
	Result *Result   `json:"result,omitempty"`

	Reason string `json:"reason,omitempty"`
}

// NotifyFunc delivers an event to one connection. Implementations must not
// block: rooms call this while holding their own lock.
type NotifyFunc func(conn uuid.UUID, ev Event)
