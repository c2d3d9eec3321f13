// internal/ratelimit/ratelimit.go
package ratelimit

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Limit configures a single token bucket: it holds at most Capacity tokens
// and refills at RefillPerSec tokens per second.
type Limit struct {
	Capacity     int
	RefillPerSec float64
}

// DefaultLimit applies to actions with no explicit configuration.
var DefaultLimit = Limit{Capacity: 6, RefillPerSec: 6}

type bucketKey struct {
	conn   uuid.UUID
	action string
}

type bucket struct {
	tokens    float64
	updatedAt time.Time
}

// Limiter is a per-(connection, action) token-bucket rate limiter. Distinct
// actions get distinct buckets, so flooding one action cannot starve another.
type Limiter struct {
	mu      sync.Mutex
	limits  map[string]Limit
	buckets map[bucketKey]*bucket

	now func() time.Time // overridable in tests
}

// NewLimiter builds a limiter with per-action limits. Actions absent from
// the map fall back to DefaultLimit.
func NewLimiter(limits map[string]Limit) *Limiter {
	return &Limiter{
		limits:  limits,
		buckets: make(map[bucketKey]*bucket),
		now:     time.Now,
	}
}

// Allow reports whether conn may perform action now, consuming one token if
// so. Buckets refill lazily based on elapsed time, capped at capacity.
func (l *Limiter) Allow(conn uuid.UUID, action string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limits[action]
	if !ok {
		lim = DefaultLimit
	}

	now := l.now()
	key := bucketKey{conn: conn, action: action}
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(lim.Capacity), updatedAt: now}
		l.buckets[key] = b
	}

	elapsed := now.Sub(b.updatedAt)
	if elapsed > 0 {
		b.tokens += elapsed.Seconds() * lim.RefillPerSec
		if b.tokens > float64(lim.Capacity) {
			b.tokens = float64(lim.Capacity)
		}
	}
	b.updatedAt = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Forget drops all buckets belonging to conn.
func (l *Limiter) Forget(conn uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key := range l.buckets {
		if key.conn == conn {
			delete(l.buckets, key)
		}
	}
}
