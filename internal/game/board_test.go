// internal/game/board_test.go
package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMultiplierCurve(t *testing.T) {
	cases := map[int]float64{
		0: 1.00,
		1: 1.22,
		2: 1.52,
		3: 1.82,
		4: 2.12,
		5: 2.42,
	}
	for k, want := range cases {
		assert.Equal(t, want, MultiplierFor(k), "k=%d", k)
	}
}

func TestMultiplierIsStrictlyIncreasing(t *testing.T) {
	prev := MultiplierFor(0)
	for k := 1; k <= GridSize-MineCount; k++ {
		cur := MultiplierFor(k)
		require.Greater(t, cur, prev, "k=%d", k)
		prev = cur
	}
}

func TestOpenSafeCellAdvancesMultiplier(t *testing.T) {
	b := NewBoard(map[int]bool{3: true, 7: true, 11: true})

	b.Open(0)
	assert.Equal(t, 1.22, b.Multiplier)
	assert.False(t, b.Terminal())

	b.Open(1)
	assert.Equal(t, 1.52, b.Multiplier)
	assert.Equal(t, 2, b.SafeOpens())
	assert.True(t, b.Opened(0))
	assert.True(t, b.Opened(1))
}

func TestOpenMineBusts(t *testing.T) {
	b := NewBoard(map[int]bool{3: true, 7: true, 11: true})

	b.Open(0)
	b.Open(3)

	assert.True(t, b.Busted)
	assert.True(t, b.Terminal())
	// Multiplier is frozen at its pre-bust value.
	assert.Equal(t, 1.22, b.Multiplier)
}

func TestSnapshotHidesMinesUntilTerminal(t *testing.T) {
	b := NewBoard(map[int]bool{3: true, 7: true, 11: true})

	b.Open(0)
	snap := b.Snapshot()
	assert.Empty(t, snap.MineCells, "mines must stay hidden pre-terminal")
	assert.Equal(t, []int{0}, snap.OpenedCells)

	b.CashedOut = true
	snap = b.Snapshot()
	assert.Equal(t, []int{3, 7, 11}, snap.MineCells)
	assert.True(t, snap.CashedOut)
}

func TestGenerateMinesInvariants(t *testing.T) {
	for i := 0; i < 100; i++ {
		mines := GenerateMines(GridSize, MineCount)
		require.Len(t, mines, MineCount)
		for cell := range mines {
			require.GreaterOrEqual(t, cell, 0)
			require.Less(t, cell, GridSize)
		}
	}
}

func TestGenerateMinesDrawsVary(t *testing.T) {
	first := GenerateMines(GridSize, MineCount)
	same := true
	for i := 0; i < 50 && same; i++ {
		next := GenerateMines(GridSize, MineCount)
		for cell := range next {
			if !first[cell] {
				same = false
				break
			}
		}
	}
	assert.False(t, same, "50 independent draws should not all repeat the same layout")
}
