// internal/handlers/match_server.go
package handlers

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/gamblevs/minesduel/internal/audit"
	"github.com/gamblevs/minesduel/internal/game"
	"github.com/gamblevs/minesduel/internal/ledger"
	"github.com/gamblevs/minesduel/internal/ratelimit"
)

// settledRoomGrace is how long a settled room is retained so final messages
// can be delivered before the sweep removes it.
const settledRoomGrace = 30 * time.Second

// MatchServer owns the room registry, the balance ledger, the rate limiter,
// and the connection notifier. It is the only component that creates and
// destroys rooms; everything inside a room is serialized by that room's own
// lock, so cross-room traffic proceeds in parallel.
type MatchServer struct {
	Logger   *logrus.Logger
	Rooms    *game.RoomStore
	Ledger   *ledger.Ledger
	Limiter  *ratelimit.Limiter
	Notifier *Notifier
	Audit    *audit.Publisher

	now func() time.Time // overridable in tests
}

// NewMatchServer wires a fresh match engine. The audit publisher may be nil
// when no audit backend is configured.
func NewMatchServer(logger *logrus.Logger, pub *audit.Publisher) *MatchServer {
	limits := map[string]ratelimit.Limit{
		MsgCreateRoom: {Capacity: 3, RefillPerSec: 1},
		MsgJoinRoom:   {Capacity: 4, RefillPerSec: 1},
		MsgReveal:     {Capacity: 10, RefillPerSec: 8},
		MsgCashout:    {Capacity: 3, RefillPerSec: 1},
	}
	return &MatchServer{
		Logger:   logger,
		Rooms:    game.NewRoomStore(),
		Ledger:   ledger.NewLedger(),
		Limiter:  ratelimit.NewLimiter(limits),
		Notifier: NewNotifier(logger),
		Audit:    pub,
		now:      time.Now,
	}
}

// HandleConnect grants the starting balance (if unseen) and pushes it to
// the freshly connected client.
func (ms *MatchServer) HandleConnect(conn uuid.UUID) {
	bal := ms.Ledger.Get(conn)
	ms.Notifier.Send(conn, game.Event{Type: game.EventBalanceChanged, Balance: &bal})
}

// HandleMessage routes one inbound message. A malformed or malicious
// message only ever affects the sender's own state.
func (ms *MatchServer) HandleMessage(conn uuid.UUID, msg ClientMessage) {
	switch msg.Type {
	case MsgCreateRoom:
		ms.createRoom(conn, msg.Wager)
	case MsgJoinRoom:
		ms.joinRoom(conn, msg.RoomCode)
	case MsgReveal:
		ms.reveal(conn, msg.RoomCode, msg.CellIndex)
	case MsgCashout:
		ms.cashout(conn, msg.RoomCode)
	case MsgBalanceQuery:
		bal := ms.Ledger.Get(conn)
		ms.Notifier.Send(conn, game.Event{Type: game.EventBalanceChanged, Balance: &bal})
	case MsgPing:
		ms.Notifier.Send(conn, game.Event{Type: game.EventPong})
	default:
		ms.reject(conn, "unknown message type")
	}
}

func (ms *MatchServer) createRoom(conn uuid.UUID, wager int64) {
	if !ms.Limiter.Allow(conn, MsgCreateRoom) {
		ms.Logger.Debugf("rate limited %s from %s", MsgCreateRoom, conn)
		return
	}
	if wager < game.MinWager || wager > game.MaxWager {
		ms.reject(conn, "wager out of range")
		return
	}
	if ms.Ledger.Get(conn) < wager {
		ms.reject(conn, "insufficient balance")
		return
	}

	room := ms.Rooms.Allocate(func(code string) *game.Room {
		r := game.NewRoom(code, wager, conn, ms.Ledger, ms.Notifier.Send)
		r.OnSettled = ms.onSettled
		return r
	})
	ms.Logger.Infof("room %s created by %s (wager %d)", room.Code, conn, wager)
	ms.Notifier.Send(conn, game.Event{Type: game.EventRoomCreated, RoomCode: room.Code, Wager: wager})
}

func (ms *MatchServer) joinRoom(conn uuid.UUID, code string) {
	if !ms.Limiter.Allow(conn, MsgJoinRoom) {
		ms.Logger.Debugf("rate limited %s from %s", MsgJoinRoom, conn)
		return
	}
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != game.CodeLength {
		ms.reject(conn, "invalid room code")
		return
	}
	room, ok := ms.Rooms.Get(code)
	if !ok {
		ms.reject(conn, "room not found")
		return
	}

	switch verdict, reason := room.Join(conn, ms.now()); verdict {
	case game.Accepted:
		ms.Logger.Infof("room %s started, second seat taken by %s", room.Code, conn)
	case game.Invalid:
		ms.reject(conn, reason)
	default:
		ms.Logger.Debugf("stale join for room %s from %s", code, conn)
	}
}

func (ms *MatchServer) reveal(conn uuid.UUID, code string, cellIndex *int) {
	if !ms.Limiter.Allow(conn, MsgReveal) {
		return
	}
	if cellIndex == nil {
		ms.reject(conn, "missing cell index")
		return
	}
	room, ok := ms.Rooms.Get(strings.ToUpper(strings.TrimSpace(code)))
	if !ok {
		// Stale room references are expected from racing clients.
		return
	}
	switch room.Reveal(conn, *cellIndex, ms.now()) {
	case game.Invalid:
		ms.reject(conn, "cell index out of range")
	case game.Stale:
		ms.Logger.Debugf("stale reveal for room %s from %s", room.Code, conn)
	}
}

func (ms *MatchServer) cashout(conn uuid.UUID, code string) {
	if !ms.Limiter.Allow(conn, MsgCashout) {
		return
	}
	room, ok := ms.Rooms.Get(strings.ToUpper(strings.TrimSpace(code)))
	if !ok {
		return
	}
	if room.Cashout(conn, ms.now()) == game.Stale {
		ms.Logger.Debugf("stale cashout for room %s from %s", room.Code, conn)
	}
}

// HandleDisconnect forfeits the connection's boards, removes rooms left
// with nobody connected, and discards per-connection state. A disconnect
// is the only cancellation signal in the engine.
func (ms *MatchServer) HandleDisconnect(conn uuid.UUID) {
	now := ms.now()
	for _, room := range ms.Rooms.All() {
		wasMember, empty := room.Disconnect(conn, now)
		if wasMember && empty {
			ms.Logger.Infof("room %s removed: no occupants connected", room.Code)
			ms.Rooms.Delete(room.Code)
		}
	}
	ms.Ledger.Forget(conn)
	ms.Limiter.Forget(conn)
}

// StartSweeper runs the periodic expiry sweep so a room receiving no
// further player action still settles when its clock runs out.
func (ms *MatchServer) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				ms.sweep()
			}
		}
	}()
}

func (ms *MatchServer) sweep() {
	now := ms.now()
	for _, room := range ms.Rooms.All() {
		if room.Sweep(now, settledRoomGrace) {
			ms.Logger.Infof("room %s swept", room.Code)
			ms.Rooms.Delete(room.Code)
		}
	}
}

// onSettled forwards a settlement record to the audit trail. Publishing is
// asynchronous and best-effort; it is invoked under the room lock and must
// never block or fail the settlement itself.
func (ms *MatchServer) onSettled(rec game.SettlementRecord) {
	ms.Logger.WithFields(logrus.Fields{
		"room":     rec.RoomCode,
		"wager":    rec.Wager,
		"combined": rec.CombinedMultiplier,
	}).Info("match settled")

	if ms.Audit == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := ms.Audit.PublishSettlement(ctx, rec); err != nil {
			ms.Logger.Warnf("failed to publish settlement for room %s: %v", rec.RoomCode, err)
		}
	}()
}

func (ms *MatchServer) reject(conn uuid.UUID, reason string) {
	ms.Notifier.Send(conn, game.Event{Type: game.EventRejected, Reason: reason})
}
