// internal/audit/redis.go
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gamblevs/minesduel/internal/game"
)

// DefaultQueueName is the Redis list that receives settlement records for
// the historian service.
const DefaultQueueName = "minesduel_settlements"

// Publisher pushes settlement records onto a Redis queue. It is strictly
// best-effort: the match engine itself keeps no durable state, and a
// failed publish never affects a settlement.
type Publisher struct {
	rdb   *redis.Client
	queue string
}

// Connect builds a Publisher from environment variables:
//   - REDIS_ADDR (empty => audit trail disabled, returns nil Publisher)
//   - REDIS_DB (optional, default 0)
//   - AUDIT_QUEUE_NAME (optional, default DefaultQueueName)
func Connect() (*Publisher, error) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return nil, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   getEnvInt("REDIS_DB", 0),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}

	return &Publisher{
		rdb:   rdb,
		queue: getEnv("AUDIT_QUEUE_NAME", DefaultQueueName),
	}, nil
}

// PublishSettlement serializes the record and pushes it onto the queue.
// Safe to call on a nil Publisher.
func (p *Publisher) PublishSettlement(ctx context.Context, rec game.SettlementRecord) error {
	if p == nil {
		return nil
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal settlement record: %w", err)
	}
	if err := p.rdb.RPush(ctx, p.queue, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list %q: %w", p.queue, err)
	}
	return nil
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
