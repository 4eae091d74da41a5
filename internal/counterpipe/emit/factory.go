package emit

import (
	"fmt"
)

// Options carries the addresses the factory needs. Leaving a mirror's
// address empty selects its logging fallback client so the sim can exercise
// any selector without infrastructure.
type Options struct {
	CollectorAddr string
	RedisAddr     string
	KafkaBrokers  []string
	KafkaTopic    string
}

const defaultKafkaTopic = "counter-updates"

// Build constructs an Emitter from a string selector:
//   - "", "tcp": the primary TCP emitter alone (default)
//   - "tcp+redis": TCP plus a Redis mirror
//   - "tcp+kafka": TCP plus a Kafka mirror
//
// For production mirrors, supply real addresses; otherwise the logging
// clients stand in.
func Build(selector string, opts Options) (Emitter, error) {
	primary := NewTCPEmitter(opts.CollectorAddr)
	switch selector {
	case "", "tcp":
		return primary, nil
	case "tcp+redis":
		var client RedisHashSetter
		if opts.RedisAddr != "" {
			client = NewGoRedisHashSetter(opts.RedisAddr)
		} else {
			client = LoggingRedisHashSetter{}
		}
		return &Multi{Primary: primary, Mirrors: []Emitter{NewRedisMirror(client)}}, nil
	case "tcp+kafka":
		topic := opts.KafkaTopic
		if topic == "" {
			topic = defaultKafkaTopic
		}
		var producer Producer
		if len(opts.KafkaBrokers) > 0 {
			producer = NewKafkaGoProducer(opts.KafkaBrokers, topic)
		} else {
			producer = LoggingProducer{}
		}
		return &Multi{Primary: primary, Mirrors: []Emitter{NewKafkaMirror(producer)}}, nil
	default:
		return nil, fmt.Errorf("unknown emitter selector: %s", selector)
	}
}
