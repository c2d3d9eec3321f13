// internal/game/room.go
package game

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gamblevs/minesduel/internal/ledger"
)

// MatchDuration is the fixed length of the shared match clock.
const MatchDuration = 60 * time.Second

// Accepted wager range, inclusive.
const (
	MinWager int64 = 10
	MaxWager int64 = 10000
)

// Phase is the room lifecycle state: Pending (one seat filled), Active
// (both boards live, clock running), Settled (payouts applied).
type Phase int

const (
	Pending Phase = iota
	Active
	Settled
)

// Verdict classifies the result of applying a client request to room state.
// Stale requests are expected under normal network latency (racing or
// repeated messages) and are dropped silently; only Invalid is ever
// surfaced back to the client as a rejection.
type Verdict int

const (
	Accepted Verdict = iota
	Stale
	Invalid
)

// Room pairs exactly two connections into one match. It exclusively owns
// both boards and the settled flag; Mu serializes every read and write so
// concurrent requests from the two occupants cannot interleave into a
// double settlement or a lost debit. Cross-room operations never share
// this lock.
type Room struct {
	Code  string
	Wager int64

	Mu        sync.Mutex
	phase     Phase
	occupants []uuid.UUID // ordered, creator first; retained through settlement for grading
	connected map[uuid.UUID]bool
	boards    map[uuid.UUID]*Board
	StartedAt time.Time
	EndsAt    time.Time
	settled   bool
	SettledAt time.Time

	Ledger *ledger.Ledger
	Notify NotifyFunc

	// OnSettled, if set, receives the settlement record after payouts have
	// been applied. Called once per room, with the room lock held, so the
	// callback must not block.
	OnSettled func(SettlementRecord)
}

// NewRoom creates a Pending room with the creator in the first seat. The
// wager is fixed for the life of the room; it is not debited until the
// second occupant joins.
func NewRoom(code string, wager int64, creator uuid.UUID, led *ledger.Ledger, notify NotifyFunc) *Room {
	return &Room{
		Code:      code,
		Wager:     wager,
		phase:     Pending,
		occupants: []uuid.UUID{creator},
		connected: map[uuid.UUID]bool{creator: true},
		boards:    make(map[uuid.UUID]*Board),
		Ledger:    led,
		Notify:    notify,
	}
}

// Phase returns the current lifecycle phase.
func (r *Room) Phase() Phase {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	return r.phase
}

// Occupants returns the ordered occupant list (creator first).
func (r *Room) Occupants() []uuid.UUID {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	return append([]uuid.UUID(nil), r.occupants...)
}

// IsMember reports whether conn currently occupies a seat in this room.
func (r *Room) IsMember(conn uuid.UUID) bool {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	return r.connected[conn]
}

// Join seats conn as the second occupant and starts the match. The reason
// string is only meaningful for Invalid verdicts.
func (r *Room) Join(conn uuid.UUID, now time.Time) (Verdict, string) {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	for _, occ := range r.occupants {
		if occ == conn {
			return Stale, ""
		}
	}
	if r.phase != Pending || len(r.occupants) >= 2 {
		return Invalid, "room is full"
	}
	if r.Ledger.Get(conn) < r.Wager {
		return Invalid, "insufficient balance"
	}

	r.occupants = append(r.occupants, conn)
	r.connected[conn] = true
	r.activateLocked(now)
	return Accepted, ""
}

// activateLocked debits both occupants, deals both boards from independent
// mine draws, stamps the clock, and notifies match start. Both debits land
// in the same critical section as the phase transition.
func (r *Room) activateLocked(now time.Time) {
	r.phase = Active
	r.StartedAt = now
	r.EndsAt = now.Add(MatchDuration)

	for _, occ := range r.occupants {
		r.Ledger.Adjust(occ, -r.Wager)
		r.boards[occ] = NewBoard(GenerateMines(GridSize, MineCount))
	}
	for _, occ := range r.occupants {
		r.Notify(occ, Event{
			Type:            EventMatchStarted,
			RoomCode:        r.Code,
			Wager:           r.Wager,
			StartTime:       r.StartedAt.UnixMilli(),
			DurationSeconds: int(MatchDuration / time.Second),
		})
		bal := r.Ledger.Get(occ)
		r.Notify(occ, Event{Type: EventBalanceChanged, Balance: &bal})
	}
}

// Reveal opens one cell on the requester's own board. Every precondition
// is re-validated here; a failure anywhere in the ladder leaves the room
// untouched.
func (r *Room) Reveal(conn uuid.UUID, idx int, now time.Time) Verdict {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	if r.phase != Active || r.settled {
		return Stale
	}
	b, ok := r.boards[conn]
	if !ok {
		return Stale
	}
	if !now.Before(r.EndsAt) {
		// Expired clock: the move is stale, but the room can settle now.
		r.trySettleLocked(now)
		return Stale
	}
	if b.Terminal() {
		return Stale
	}
	if idx < 0 || idx >= GridSize {
		return Invalid
	}
	if b.Opened(idx) {
		return Stale
	}

	b.Open(idx)
	snap := b.Snapshot()
	r.Notify(conn, Event{Type: EventBoardUpdated, Board: &snap})
	r.trySettleLocked(now)
	return Accepted
}

// Cashout freezes the requester's board at its current multiplier.
func (r *Room) Cashout(conn uuid.UUID, now time.Time) Verdict {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	if r.phase != Active || r.settled {
		return Stale
	}
	b, ok := r.boards[conn]
	if !ok {
		return Stale
	}
	if !now.Before(r.EndsAt) {
		r.trySettleLocked(now)
		return Stale
	}
	if b.Terminal() {
		return Stale
	}

	b.CashedOut = true
	snap := b.Snapshot()
	r.Notify(conn, Event{Type: EventBoardUpdated, Board: &snap})
	r.trySettleLocked(now)
	return Accepted
}

// Disconnect handles an occupant dropping. Mid-match the occupant's board
// is forfeited (graded identically to a bust) and settlement is attempted
// immediately, so the counterpart is never left waiting on a match that
// cannot complete. Returns whether conn was a member and whether the room
// has zero connected occupants left and should be removed.
func (r *Room) Disconnect(conn uuid.UUID, now time.Time) (wasMember, empty bool) {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	if !r.connected[conn] {
		return false, false
	}

	if r.phase == Active && !r.settled {
		if b := r.boards[conn]; b != nil && !b.Terminal() {
			b.Busted = true // forfeit
		}
		r.trySettleLocked(now)
	}

	delete(r.connected, conn)
	return true, len(r.connected) == 0
}

// Sweep lazily settles an expired room and reports whether the room should
// be removed from the registry: either nobody is connected anymore, or it
// settled long enough ago for final messages to have been delivered.
func (r *Room) Sweep(now time.Time, settledGrace time.Duration) (remove bool) {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	r.trySettleLocked(now)

	if len(r.connected) == 0 {
		return true
	}
	if r.settled && now.Sub(r.SettledAt) >= settledGrace {
		return true
	}
	return false
}
