package emit

import (
	"context"
	"fmt"
	"time"

	"cascade/internal/counterpipe/wire"
)

// RedisHashSetter abstracts the minimal surface the mirror needs from a
// Redis client. Implementations may wrap github.com/redis/go-redis/v9
// (Cmdable.HSet) or any equivalent.
type RedisHashSetter interface {
	HSet(ctx context.Context, key string, values ...interface{}) error
}

// RedisMirror records each published sample under a per-counter hash:
//
//	HSET counter:<name> <epoch_minutes> <count>
//
// Re-publishing the same minute overwrites the field with the newer (larger)
// count, so the hash converges on the final per-minute values without any
// idempotency bookkeeping.
type RedisMirror struct {
	client  RedisHashSetter
	timeout time.Duration
}

// NewRedisMirror returns a mirror over the given client.
func NewRedisMirror(client RedisHashSetter) *RedisMirror {
	return &RedisMirror{client: client, timeout: 5 * time.Second}
}

// RedisCounterKey is the hash key layout, public for interoperability with
// readers of the mirror.
func RedisCounterKey(counter string) string {
	return fmt.Sprintf("counter:%s", counter)
}

// EmitUpdate writes one HSET per sample in the update.
func (m *RedisMirror) EmitUpdate(msg wire.UpdateMessage) error {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()
	for _, st := range msg.State {
		err := m.client.HSet(ctx, RedisCounterKey(msg.Counter),
			fmt.Sprintf("%d", st.EpochMinutes), st.Count)
		if err != nil {
			return fmt.Errorf("emit: redis hset counter=%s minute=%d: %w",
				msg.Counter, st.EpochMinutes, err)
		}
	}
	return nil
}
