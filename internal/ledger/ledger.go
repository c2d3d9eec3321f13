// internal/ledger/ledger.go
package ledger

import (
	"sync"

	"github.com/google/uuid"
)

// StartingBalance is granted to every connection the first time its balance
// is read. Balances are keyed by the ephemeral connection identity and live
// only as long as the network session does.
const StartingBalance int64 = 1000

// Ledger tracks per-connection credit balances in memory. A balance is never
// negative: every mutation saturates at zero.
type Ledger struct {
	mu       sync.Mutex
	balances map[uuid.UUID]int64
}

// NewLedger returns an empty in-memory ledger.
func NewLedger() *Ledger {
	return &Ledger{
		balances: make(map[uuid.UUID]int64),
	}
}

// Get returns the current balance for conn, granting StartingBalance first
// if the connection has never been seen.
func (l *Ledger) Get(conn uuid.UUID) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	bal, ok := l.balances[conn]
	if !ok {
		bal = StartingBalance
		l.balances[conn] = bal
	}
	return bal
}

// Adjust applies delta to conn's balance and returns the new balance.
// The result is clamped to zero; a debit can never drive a balance negative.
// Callers pre-check Get() >= wager before committing a debit, so the clamp
// is a safety net rather than an expected path.
func (l *Ledger) Adjust(conn uuid.UUID, delta int64) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	bal, ok := l.balances[conn]
	if !ok {
		bal = StartingBalance
	}
	bal += delta
	if bal < 0 {
		bal = 0
	}
	l.balances[conn] = bal
	return bal
}

// Forget drops conn's balance entry. Called when the connection closes;
// balances are not portable across reconnects.
func (l *Ledger) Forget(conn uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.balances, conn)
}
