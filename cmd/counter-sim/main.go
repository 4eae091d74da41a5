// Copyright 2026 Esteban Alvarez. All Rights Reserved.
//
// Created: July 2026
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package main drives load against a running collector. It spins up a
// client pipeline, fires increments at it from several goroutines, then
// reads each counter back and prints the collector's view.
//
// Run a collector first:
//
//	go run ./cmd/counter-collector
//
// then, in another terminal:
//
//	go run ./cmd/counter-sim -n 1000 -counters "signup,login"
//
// The increments funnel through the background aggregator, so the collector
// only sees updates on minute roll-overs and power-of-two counts; watch the
// collector's log to see the publish policy in action.
package main

import (
	"flag"
	"fmt"
	"log"
	"strings"
	"sync"

	"cascade/internal/counterpipe/client"
	"cascade/internal/counterpipe/emit"
)

func main() {
	collectorAddr := flag.String("collector_addr", client.DefaultCollectorAddr, "Collector TCP address")
	counters := flag.String("counters", "demo", "Comma-separated counter names to increment")
	n := flag.Int("n", 100, "Increments per counter")
	producers := flag.Int("producers", 4, "Concurrent goroutines per counter")
	mirror := flag.String("mirror", "", "Emitter selector: tcp (default), tcp+redis, tcp+kafka")
	redisAddr := flag.String("redis_addr", "", "Redis address for the redis mirror (empty = logging client)")
	kafkaBrokers := flag.String("kafka_brokers", "", "Comma-separated Kafka brokers for the kafka mirror (empty = logging client)")
	kafkaTopic := flag.String("kafka_topic", "", "Kafka topic for the kafka mirror")
	flag.Parse()

	names := strings.Split(*counters, ",")

	opts := emit.Options{
		CollectorAddr: *collectorAddr,
		RedisAddr:     *redisAddr,
		KafkaTopic:    *kafkaTopic,
	}
	if *kafkaBrokers != "" {
		opts.KafkaBrokers = strings.Split(*kafkaBrokers, ",")
	}
	emitter, err := emit.Build(*mirror, opts)
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}

	pipeline := client.New(client.Config{
		CollectorAddr: *collectorAddr,
		Emitter:       emitter,
	})

	fmt.Printf("Driving %d increments across %d counters (%d producers each)...\n",
		*n*len(names), len(names), *producers)

	var wg sync.WaitGroup
	for _, name := range names {
		for p := 0; p < *producers; p++ {
			// Spread the remainder so each counter gets exactly n increments.
			per := *n / *producers
			if p < *n%*producers {
				per++
			}
			wg.Add(1)
			go func(name string) {
				defer wg.Done()
				for i := 0; i < per; i++ {
					pipeline.Increment(name)
				}
			}(name)
		}
	}
	wg.Wait()

	// Drain the queue so every increment reached the aggregator before we
	// read back.
	pipeline.Close()

	// The read path is independent of the (now closed) publish queue.
	reader := client.New(client.Config{CollectorAddr: *collectorAddr})
	defer reader.Close()
	for _, name := range names {
		fmt.Printf("  %s = %d\n", name, reader.GetCount(name))
	}
}
