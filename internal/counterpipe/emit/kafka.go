package emit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cascade/internal/counterpipe/wire"
)

// Producer is a minimal abstraction over a Kafka client. The update's
// counter name is used as the message key so per-counter ordering is
// preserved across partitions.
type Producer interface {
	Produce(ctx context.Context, key []byte, value []byte) error
}

// KafkaMirror publishes each update as one JSON record. Downstream
// consumers materialize whatever view they need; the mirror applies no
// state locally.
type KafkaMirror struct {
	producer Producer
	timeout  time.Duration
}

// NewKafkaMirror returns a mirror over the given producer.
func NewKafkaMirror(p Producer) *KafkaMirror {
	return &KafkaMirror{producer: p, timeout: 10 * time.Second}
}

// updateRecord is the serialized payload. TsUnixMs stamps publish time so
// consumers can measure pipeline lag.
type updateRecord struct {
	Counter  string              `json:"counter"`
	State    []wire.CounterState `json:"state"`
	TsUnixMs int64               `json:"ts_unix_ms"`
}

// EmitUpdate publishes one record for msg.
func (m *KafkaMirror) EmitUpdate(msg wire.UpdateMessage) error {
	rec := updateRecord{
		Counter:  msg.Counter,
		State:    msg.State,
		TsUnixMs: time.Now().UnixMilli(),
	}
	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("emit: encode kafka record for %q: %w", msg.Counter, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()
	if err := m.producer.Produce(ctx, []byte(msg.Counter), value); err != nil {
		return fmt.Errorf("emit: kafka produce for %q: %w", msg.Counter, err)
	}
	return nil
}
