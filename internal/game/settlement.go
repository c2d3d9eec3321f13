// internal/game/settlement.go
package game

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// PlayerSettlement is one occupant's share of a settled match.
type PlayerSettlement struct {
	Conn       uuid.UUID `json:"conn"`
	Outcome    string    `json:"outcome"`
	Multiplier float64   `json:"multiplier"`
	Payout     int64     `json:"payout"`
}

// SettlementRecord summarizes a settled match for the audit trail.
type SettlementRecord struct {
	RoomCode           string              `json:"roomCode"`
	Wager              int64               `json:"wager"`
	CombinedMultiplier float64             `json:"combinedMultiplier"`
	SettledAt          int64               `json:"settledAt"` // epoch millis
	Players            [2]PlayerSettlement `json:"players"`
}

// TrySettle attempts to finish the room. It is idempotent and safe to call
// after every single-player mutation or from the periodic sweep.
func (r *Room) TrySettle(now time.Time) bool {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	return r.trySettleLocked(now)
}

// trySettleLocked runs settlement exactly once: the settled flag is checked
// and set inside the room's critical section, so racing reveal/cashout
// calls from the two occupants cannot grade the match twice. No effect
// unless both boards are terminal or the clock has expired.
func (r *Room) trySettleLocked(now time.Time) bool {
	if r.settled || r.phase != Active || len(r.occupants) != 2 {
		return false
	}

	a := r.boards[r.occupants[0]]
	b := r.boards[r.occupants[1]]
	timeEnded := !now.Before(r.EndsAt)

	if (!a.Terminal() && !timeEnded) || (!b.Terminal() && !timeEnded) {
		return false
	}

	// On expiry, a still-playing board is converted to a timeout, graded as
	// a cashout at its current multiplier.
	var forced []uuid.UUID
	if timeEnded {
		for i, bd := range []*Board{a, b} {
			if !bd.Terminal() {
				bd.TimedOut = true
				forced = append(forced, r.occupants[i])
			}
		}
	}

	resA, resB, combined := grade(r.Wager, a, b)

	r.settled = true
	r.phase = Settled
	r.SettledAt = now

	rec := SettlementRecord{
		RoomCode:           r.Code,
		Wager:              r.Wager,
		CombinedMultiplier: combined,
		SettledAt:          now.UnixMilli(),
	}

	results := [2]settleOutcome{resA, resB}
	mults := [2]float64{a.Multiplier, b.Multiplier}
	for i, occ := range r.occupants {
		// A zero payout is still an explicit credit of zero.
		bal := r.Ledger.Adjust(occ, results[i].payout)
		rec.Players[i] = PlayerSettlement{
			Conn:       occ,
			Outcome:    results[i].label,
			Multiplier: mults[i],
			Payout:     results[i].payout,
		}

		// Owners of force-converted boards see their mines only now, at
		// the terminal transition.
		for _, f := range forced {
			if f == occ {
				snap := r.boards[occ].Snapshot()
				r.Notify(occ, Event{Type: EventBoardUpdated, Board: &snap})
			}
		}

		r.Notify(occ, Event{
			Type: EventMatchFinished,
			Result: &Result{
				Outcome:            results[i].label,
				OwnMultiplier:      mults[i],
				OpponentMultiplier: mults[1-i],
				CombinedMultiplier: combined,
				Payout:             results[i].payout,
				ResultingBalance:   bal,
			},
		})
		r.Notify(occ, Event{Type: EventBalanceChanged, Balance: &bal})
	}

	if r.OnSettled != nil {
		r.OnSettled(rec)
	}
	return true
}

type settleOutcome struct {
	label  string
	payout int64
}

// grade computes both occupants' outcomes from two terminal boards.
//
//   - Neither busted: higher multiplier takes floor(wager*(mA+mB-1)); a tie
//     pays each player floor(wager*own) rather than refunding the stake.
//   - Both busted: both lose, both paid zero.
//   - One busted: the survivor takes floor(wager*(own+1)).
func grade(wager int64, a, b *Board) (resA, resB settleOutcome, combined float64) {
	mA, mB := a.Multiplier, b.Multiplier

	switch {
	case !a.Busted && !b.Busted:
		combined = round2(mA + mB - 1)
		switch {
		case mA > mB:
			resA = settleOutcome{"win", floorPayout(wager, combined)}
			resB = settleOutcome{"lose", 0}
		case mB > mA:
			resA = settleOutcome{"lose", 0}
			resB = settleOutcome{"win", floorPayout(wager, combined)}
		default:
			resA = settleOutcome{"draw", floorPayout(wager, mA)}
			resB = settleOutcome{"draw", floorPayout(wager, mB)}
		}
	case a.Busted && b.Busted:
		combined = round2(mA + mB - 1)
		resA = settleOutcome{"lose", 0}
		resB = settleOutcome{"lose", 0}
	case a.Busted:
		combined = round2(mB + 1)
		resA = settleOutcome{"lose", 0}
		resB = settleOutcome{"win", floorPayout(wager, combined)}
	default:
		combined = round2(mA + 1)
		resA = settleOutcome{"win", floorPayout(wager, combined)}
		resB = settleOutcome{"lose", 0}
	}
	return resA, resB, combined
}

func floorPayout(wager int64, mult float64) int64 {
	return int64(math.Floor(float64(wager) * mult))
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
