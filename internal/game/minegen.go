// internal/game/minegen.go
package game

import (
	"crypto/rand"
	"math/big"
)

// GenerateMines draws mineCount distinct cell indices uniformly from
// [0, gridSize) without replacement. The source is crypto/rand so neither
// player can predict a layout from previously observed ones; each board in
// a match gets its own independent draw.
func GenerateMines(gridSize, mineCount int) map[int]bool {
	mines := make(map[int]bool, mineCount)
	for len(mines) < mineCount {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(gridSize)))
		if err != nil {
			// crypto/rand only fails if the platform entropy source is
			// broken, at which point serving wagers is not viable anyway.
			panic(err)
		}
		mines[int(n.Int64())] = true
	}
	return mines
}
