// internal/handlers/notifier.go
package handlers

import (
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/gamblevs/minesduel/internal/game"
)

// outChanSize buffers outbound events per connection so game logic never
// blocks on a slow websocket writer.
const outChanSize = 32

// Notifier routes events to the out-channel of the owning connection.
// Send is non-blocking, which makes it safe to call while holding a room
// lock; events to a full or missing channel are dropped (the client's next
// snapshot supersedes anything lost).
type Notifier struct {
	mu     sync.Mutex
	conns  map[uuid.UUID]chan game.Event
	logger *logrus.Logger
}

// NewNotifier returns an empty connection registry.
func NewNotifier(logger *logrus.Logger) *Notifier {
	return &Notifier{
		conns:  make(map[uuid.UUID]chan game.Event),
		logger: logger,
	}
}

// Register creates the out-channel for conn, replacing any previous one
// (a reconnect with the same session supersedes the old socket).
func (n *Notifier) Register(conn uuid.UUID) chan game.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	ch := make(chan game.Event, outChanSize)
	n.conns[conn] = ch
	return ch
}

// Unregister removes conn's channel, but only if ch is still the one
// registered, so a newer socket's channel is never torn down by a stale
// cleanup path.
func (n *Notifier) Unregister(conn uuid.UUID, ch chan game.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if cur, ok := n.conns[conn]; ok && cur == ch {
		delete(n.conns, conn)
	}
}

// Send delivers ev to conn without blocking.
func (n *Notifier) Send(conn uuid.UUID, ev game.Event) {
	n.mu.Lock()
	ch, ok := n.conns[conn]
	n.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- ev:
	default:
		n.logger.Warnf("dropping %s event for connection %s: out channel full", ev.Type, conn)
	}
}
