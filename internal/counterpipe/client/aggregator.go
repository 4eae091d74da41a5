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

// Package client is the in-process side of the counter pipeline: a
// lock-light Increment facade whose per-counter accounting runs on a single
// background worker, publishing updates to the collector when a minute rolls
// over or a count hits a power of two.
package client

import (
	"log"

	"cascade"
	"cascade/internal/counterpipe/emit"
	"cascade/internal/counterpipe/telemetry"
	"cascade/internal/counterpipe/wire"
)

// Aggregator accumulates per-counter state and decides when to publish. It
// runs as a bgpub Publisher, so Handle is only ever called from the one
// worker goroutine and the counters map needs no locking.
type Aggregator struct {
	clock    wire.Clock
	emitter  emit.Emitter
	counters map[string]cascade.State
}

// NewAggregator returns an aggregator publishing through emitter, stamping
// samples with clock.
func NewAggregator(clock wire.Clock, emitter emit.Emitter) *Aggregator {
	return &Aggregator{
		clock:    clock,
		emitter:  emitter,
		counters: make(map[string]cascade.State),
	}
}

// Handle records one increment of the named counter.
//
// Within a minute the running count just grows; the first increment of a
// later minute supersedes the entry and the superseded state rides along
// with the new minute's first publish, so the collector never loses the
// final value of the previous minute. A publish happens when a minute was
// superseded or when the in-minute count is a power of two.
func (a *Aggregator) Handle(counter string) {
	m := a.clock()

	var prev *cascade.State
	var cur uint64
	if s, ok := a.counters[counter]; ok {
		if s.EpochMinutes == m {
			s.Count++
			a.counters[counter] = s
			cur = s.Count
		} else {
			superseded := s
			prev = &superseded
			a.counters[counter] = cascade.State{EpochMinutes: m, Count: 1}
			cur = 1
		}
	} else {
		a.counters[counter] = cascade.State{EpochMinutes: m, Count: 1}
		cur = 1
	}

	if prev == nil && !isPowerOfTwo(cur) {
		return
	}
	states := make([]cascade.State, 0, 2)
	if prev != nil {
		states = append(states, *prev)
	}
	states = append(states, cascade.State{EpochMinutes: m, Count: cur})

	err := a.emitter.EmitUpdate(wire.UpdateMessage{Counter: counter, State: states})
	telemetry.RecordEmit(err != nil)
	if err != nil {
		// Counter accounting is best-effort; the sample is gone.
		log.Printf("client: publish %q failed: %v", counter, err)
	}
}

// Flush runs on worker exit. In-minute residue below the next power of two
// was never published; report it rather than silently losing it. No update
// is emitted, so the publish rule stays exact.
func (a *Aggregator) Flush() {
	for counter, s := range a.counters {
		if s.Count > 0 && !isPowerOfTwo(s.Count) {
			log.Printf("client: counter %q closed with unpublished residue [%d]: %d",
				counter, s.EpochMinutes, s.Count)
		}
	}
}

func isPowerOfTwo(n uint64) bool {
	return n != 0 && n&(n-1) == 0
}
