// internal/game/board.go
package game

import "math"

// Reference board sizing.
const (
	GridSize  = 25
	MineCount = 3
)

// Multiplier increments per safe open. Each safe cell is worth BaseStep,
// and every safe cell beyond the first earns an extra StreakBonus. This
// curve is a game-balance knob; it only has to be deterministic and
// monotonically increasing.
const (
	baseStep    = 0.22
	streakBonus = 0.08
)

// Board is one player's private grid state for a single match. All access
// is serialized by the owning Room's mutex.
type Board struct {
	mines       map[int]bool
	opened      map[int]bool
	openedOrder []int
	safeOpens   int

	Multiplier float64

	// Terminal flags; at most one is ever set. Once terminal, the board
	// accepts no further opens and the multiplier is frozen.
	Busted    bool
	CashedOut bool
	TimedOut  bool
}

// NewBoard builds a fresh board around the given mine layout.
func NewBoard(mines map[int]bool) *Board {
	return &Board{
		mines:      mines,
		opened:     make(map[int]bool),
		Multiplier: 1.0,
	}
}

// Terminal reports whether the board is in any terminal state.
func (b *Board) Terminal() bool {
	return b.Busted || b.CashedOut || b.TimedOut
}

// Opened reports whether idx has already been opened.
func (b *Board) Opened(idx int) bool {
	return b.opened[idx]
}

// Open marks idx opened and applies the outcome: a mine busts the board,
// a safe cell advances the multiplier. The caller is responsible for the
// precondition ladder (bounds, terminal, duplicate).
func (b *Board) Open(idx int) {
	b.opened[idx] = true
	b.openedOrder = append(b.openedOrder, idx)

	if b.mines[idx] {
		b.Busted = true
		return
	}
	b.safeOpens++
	b.Multiplier = MultiplierFor(b.safeOpens)
}

// MultiplierFor returns the payout multiplier after k safe opens, rounded
// to two decimals. Streaks are rewarded slightly more than linearly.
func MultiplierFor(k int) float64 {
	m := 1 + float64(k)*baseStep
	if k > 1 {
		m += float64(k-1) * streakBonus
	}
	return math.Round(m*100) / 100
}

// SafeOpens returns the number of safe cells opened so far.
func (b *Board) SafeOpens() int {
	return b.safeOpens
}

// MineCells returns the mine layout in stable order.
func (b *Board) MineCells() []int {
	cells := make([]int, 0, len(b.mines))
	for i := 0; i < GridSize; i++ {
		if b.mines[i] {
			cells = append(cells, i)
		}
	}
	return cells
}

// Snapshot renders the owner's private view. The mine layout is included
// only once the board is terminal.
func (b *Board) Snapshot() Snapshot {
	s := Snapshot{
		OpenedCells: append([]int(nil), b.openedOrder...),
		Multiplier:  b.Multiplier,
		Busted:      b.Busted,
		CashedOut:   b.CashedOut,
		TimedOut:    b.TimedOut,
	}
	if b.Terminal() {
		s.MineCells = b.MineCells()
	}
	return s
}
