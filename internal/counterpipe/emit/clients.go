package emit

import (
	"context"
	"fmt"

	redis "github.com/redis/go-redis/v9"
	kafka "github.com/segmentio/kafka-go"
)

// LoggingRedisHashSetter is a tiny demo client that just logs the HSET.
// It lets the sim select the Redis mirror without needing a real Redis.
// Not for production use.

type LoggingRedisHashSetter struct{}

func (LoggingRedisHashSetter) HSet(ctx context.Context, key string, values ...interface{}) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	fmt.Printf("[redis-demo] HSET %s %v\n", key, values)
	return nil
}

// GoRedisHashSetter is a production-ready wrapper implementing
// RedisHashSetter on top of github.com/redis/go-redis/v9. Construct it with
// an address like "127.0.0.1:6379".

type GoRedisHashSetter struct{ c *redis.Client }

func NewGoRedisHashSetter(addr string) *GoRedisHashSetter {
	opt := &redis.Options{Addr: addr}
	return &GoRedisHashSetter{c: redis.NewClient(opt)}
}

func (g *GoRedisHashSetter) HSet(ctx context.Context, key string, values ...interface{}) error {
	return g.c.HSet(ctx, key, values...).Err()
}

// LoggingProducer is a tiny demo producer that logs the produced record.
// It enables selecting the Kafka mirror without a broker.
// Not for production use.

type LoggingProducer struct{}

func (LoggingProducer) Produce(ctx context.Context, key []byte, value []byte) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	fmt.Printf("[kafka-demo] KEY=%s VALUE=%s\n", string(key), truncate(string(value), 256))
	return nil
}

// KafkaGoProducer implements Producer on github.com/segmentio/kafka-go.

type KafkaGoProducer struct{ w *kafka.Writer }

func NewKafkaGoProducer(brokers []string, topic string) *KafkaGoProducer {
	return &KafkaGoProducer{w: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}}
}

func (p *KafkaGoProducer) Produce(ctx context.Context, key []byte, value []byte) error {
	return p.w.WriteMessages(ctx, kafka.Message{Key: key, Value: value})
}

// Close releases the underlying writer's connections.
func (p *KafkaGoProducer) Close() error { return p.w.Close() }

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
