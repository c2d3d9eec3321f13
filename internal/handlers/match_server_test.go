// internal/handlers/match_server_test.go
package handlers

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gamblevs/minesduel/internal/game"
	"github.com/gamblevs/minesduel/internal/ledger"
)

func newTestMatchServer() *MatchServer {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	ms := NewMatchServer(logger, nil)
	fixed := time.Unix(1700000000, 0)
	ms.now = func() time.Time { return fixed }
	return ms
}

// drain empties conn's out-channel and returns everything buffered so far.
func drain(ch chan game.Event) []game.Event {
	var evs []game.Event
	for {
		select {
		case ev := <-ch:
			evs = append(evs, ev)
		default:
			return evs
		}
	}
}

func lastOfType(evs []game.Event, typ game.EventType) *game.Event {
	for i := len(evs) - 1; i >= 0; i-- {
		if evs[i].Type == typ {
			return &evs[i]
		}
	}
	return nil
}

func TestHandleConnectPushesStartingBalance(t *testing.T) {
	ms := newTestMatchServer()
	conn := uuid.New()
	ch := ms.Notifier.Register(conn)

	ms.HandleConnect(conn)

	evs := drain(ch)
	require.Len(t, evs, 1)
	assert.Equal(t, game.EventBalanceChanged, evs[0].Type)
	assert.Equal(t, ledger.StartingBalance, *evs[0].Balance)
}

func TestCreateRoom(t *testing.T) {
	ms := newTestMatchServer()
	conn := uuid.New()
	ch := ms.Notifier.Register(conn)

	ms.HandleMessage(conn, ClientMessage{Type: MsgCreateRoom, Wager: 100})

	evs := drain(ch)
	created := lastOfType(evs, game.EventRoomCreated)
	require.NotNil(t, created)
	assert.Len(t, created.RoomCode, game.CodeLength)
	assert.Equal(t, int64(100), created.Wager)

	_, ok := ms.Rooms.Get(created.RoomCode)
	assert.True(t, ok)
	assert.Equal(t, ledger.StartingBalance, ms.Ledger.Get(conn), "no debit until a second player joins")
}

func TestCreateRoomRejectsBadWager(t *testing.T) {
	ms := newTestMatchServer()
	conn := uuid.New()
	ch := ms.Notifier.Register(conn)

	for _, wager := range []int64{0, game.MinWager - 1, game.MaxWager + 1} {
		ms.HandleMessage(conn, ClientMessage{Type: MsgCreateRoom, Wager: wager})
		evs := drain(ch)
		rej := lastOfType(evs, game.EventRejected)
		require.NotNil(t, rej, "wager %d must be rejected", wager)
		assert.Equal(t, "wager out of range", rej.Reason)
	}
	assert.Empty(t, ms.Rooms.All())
}

func TestCreateRoomRejectsInsufficientBalance(t *testing.T) {
	ms := newTestMatchServer()
	conn := uuid.New()
	ch := ms.Notifier.Register(conn)
	ms.Ledger.Adjust(conn, -(ledger.StartingBalance - 50))

	ms.HandleMessage(conn, ClientMessage{Type: MsgCreateRoom, Wager: 100})

	rej := lastOfType(drain(ch), game.EventRejected)
	require.NotNil(t, rej)
	assert.Equal(t, "insufficient balance", rej.Reason)
}

func TestCreateRoomRateLimitDropsSilently(t *testing.T) {
	ms := newTestMatchServer()
	conn := uuid.New()
	ch := ms.Notifier.Register(conn)

	for i := 0; i < 3; i++ {
		ms.HandleMessage(conn, ClientMessage{Type: MsgCreateRoom, Wager: 100})
	}
	require.Len(t, ms.Rooms.All(), 3)
	drain(ch)

	// The fourth burst message is dropped with no feedback at all.
	ms.HandleMessage(conn, ClientMessage{Type: MsgCreateRoom, Wager: 100})
	assert.Empty(t, drain(ch))
	assert.Len(t, ms.Rooms.All(), 3)
}

func TestJoinRoomRejections(t *testing.T) {
	ms := newTestMatchServer()
	conn := uuid.New()
	ch := ms.Notifier.Register(conn)

	ms.HandleMessage(conn, ClientMessage{Type: MsgJoinRoom, RoomCode: "ABC"})
	rej := lastOfType(drain(ch), game.EventRejected)
	require.NotNil(t, rej)
	assert.Equal(t, "invalid room code", rej.Reason)

	ms.HandleMessage(conn, ClientMessage{Type: MsgJoinRoom, RoomCode: "ZZZZZZ"})
	rej = lastOfType(drain(ch), game.EventRejected)
	require.NotNil(t, rej)
	assert.Equal(t, "room not found", rej.Reason)
}

func TestJoinRoomCodeIsCaseInsensitive(t *testing.T) {
	ms := newTestMatchServer()
	a, b := uuid.New(), uuid.New()
	chA := ms.Notifier.Register(a)
	chB := ms.Notifier.Register(b)

	ms.HandleMessage(a, ClientMessage{Type: MsgCreateRoom, Wager: 100})
	created := lastOfType(drain(chA), game.EventRoomCreated)
	require.NotNil(t, created)

	ms.HandleMessage(b, ClientMessage{Type: MsgJoinRoom, RoomCode: "  " + strings.ToLower(created.RoomCode) + " "})

	started := lastOfType(drain(chB), game.EventMatchStarted)
	require.NotNil(t, started)
	assert.Equal(t, created.RoomCode, started.RoomCode)
}

func TestFullMatchFlow(t *testing.T) {
	ms := newTestMatchServer()
	a, b := uuid.New(), uuid.New()
	chA := ms.Notifier.Register(a)
	chB := ms.Notifier.Register(b)

	ms.HandleMessage(a, ClientMessage{Type: MsgCreateRoom, Wager: 100})
	created := lastOfType(drain(chA), game.EventRoomCreated)
	require.NotNil(t, created)
	code := created.RoomCode

	ms.HandleMessage(b, ClientMessage{Type: MsgJoinRoom, RoomCode: code})

	evsA, evsB := drain(chA), drain(chB)
	for _, evs := range [][]game.Event{evsA, evsB} {
		started := lastOfType(evs, game.EventMatchStarted)
		require.NotNil(t, started, "both seats must see match start")
		assert.Equal(t, 60, started.DurationSeconds)

		bal := lastOfType(evs, game.EventBalanceChanged)
		require.NotNil(t, bal)
		assert.Equal(t, ledger.StartingBalance-100, *bal.Balance)
	}

	// A reveal without a cell index is malformed, not stale.
	ms.HandleMessage(a, ClientMessage{Type: MsgReveal, RoomCode: code})
	rej := lastOfType(drain(chA), game.EventRejected)
	require.NotNil(t, rej)
	assert.Equal(t, "missing cell index", rej.Reason)

	cell := 0
	ms.HandleMessage(a, ClientMessage{Type: MsgReveal, RoomCode: code, CellIndex: &cell})
	board := lastOfType(drain(chA), game.EventBoardUpdated)
	require.NotNil(t, board)
	assert.Equal(t, []int{0}, board.Board.OpenedCells)
	assert.Empty(t, drain(chB), "opponent must learn nothing from a private reveal")

	bad := game.GridSize
	ms.HandleMessage(a, ClientMessage{Type: MsgReveal, RoomCode: code, CellIndex: &bad})
	rej = lastOfType(drain(chA), game.EventRejected)
	require.NotNil(t, rej)
	assert.Equal(t, "cell index out of range", rej.Reason)
}

func TestRevealForUnknownRoomIsSilent(t *testing.T) {
	ms := newTestMatchServer()
	conn := uuid.New()
	ch := ms.Notifier.Register(conn)

	cell := 3
	ms.HandleMessage(conn, ClientMessage{Type: MsgReveal, RoomCode: "ZZZZZZ", CellIndex: &cell})
	ms.HandleMessage(conn, ClientMessage{Type: MsgCashout, RoomCode: "ZZZZZZ"})

	assert.Empty(t, drain(ch))
}

func TestBalanceQueryAndPing(t *testing.T) {
	ms := newTestMatchServer()
	conn := uuid.New()
	ch := ms.Notifier.Register(conn)

	ms.HandleMessage(conn, ClientMessage{Type: MsgBalanceQuery})
	bal := lastOfType(drain(ch), game.EventBalanceChanged)
	require.NotNil(t, bal)
	assert.Equal(t, ledger.StartingBalance, *bal.Balance)

	ms.HandleMessage(conn, ClientMessage{Type: MsgPing})
	evs := drain(ch)
	require.Len(t, evs, 1)
	assert.Equal(t, game.EventPong, evs[0].Type)
}

func TestUnknownMessageTypeRejected(t *testing.T) {
	ms := newTestMatchServer()
	conn := uuid.New()
	ch := ms.Notifier.Register(conn)

	ms.HandleMessage(conn, ClientMessage{Type: "self-destruct"})

	rej := lastOfType(drain(ch), game.EventRejected)
	require.NotNil(t, rej)
	assert.Equal(t, "unknown message type", rej.Reason)
}

func TestHandleDisconnectCleansUp(t *testing.T) {
	ms := newTestMatchServer()
	conn := uuid.New()
	ch := ms.Notifier.Register(conn)

	ms.HandleMessage(conn, ClientMessage{Type: MsgCreateRoom, Wager: 100})
	require.Len(t, ms.Rooms.All(), 1)
	drain(ch)
	ms.Ledger.Adjust(conn, -400)

	ms.HandleDisconnect(conn)

	assert.Empty(t, ms.Rooms.All(), "a room with nobody connected is removed")
	assert.Equal(t, ledger.StartingBalance, ms.Ledger.Get(conn), "balance state is dropped with the connection")
}

func TestDisconnectMidMatchSettlesForOpponent(t *testing.T) {
	ms := newTestMatchServer()
	a, b := uuid.New(), uuid.New()
	chA := ms.Notifier.Register(a)
	chB := ms.Notifier.Register(b)

	ms.HandleMessage(a, ClientMessage{Type: MsgCreateRoom, Wager: 100})
	created := lastOfType(drain(chA), game.EventRoomCreated)
	require.NotNil(t, created)
	ms.HandleMessage(b, ClientMessage{Type: MsgJoinRoom, RoomCode: created.RoomCode})
	drain(chA)
	drain(chB)

	ms.HandleDisconnect(a)

	// The match is not settled yet: B's board is still live and B keeps
	// playing against the forfeited board.
	room, ok := ms.Rooms.Get(created.RoomCode)
	require.True(t, ok, "room survives while the other seat is still connected")
	require.Equal(t, game.Active, room.Phase())

	ms.HandleMessage(b, ClientMessage{Type: MsgCashout, RoomCode: created.RoomCode})

	fin := lastOfType(drain(chB), game.EventMatchFinished)
	require.NotNil(t, fin)
	assert.Equal(t, "win", fin.Result.Outcome)
	assert.Equal(t, int64(200), fin.Result.Payout, "survivor payout at multiplier 1.0 against a forfeit")
	assert.Equal(t, game.Settled, room.Phase())
}
