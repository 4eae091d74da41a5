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

// Package server implements the collector: a TCP service that accepts
// framed counter messages and maintains one cascade series per counter.
package server

import (
	"sync"

	"cascade"
	"cascade/internal/counterpipe/telemetry"
	"cascade/internal/counterpipe/wire"
)

// counterEntry pairs a series with its own mutex so writers to different
// counters never contend. All observation and mutation of the series,
// shifting included, happens under mu.
type counterEntry struct {
	mu     sync.Mutex
	series *cascade.Series
}

// Store maps counter names to their series. The map itself is read-mostly:
// the write lock is taken only to insert a counter on first sight.
type Store struct {
	mu       sync.RWMutex
	counters map[string]*counterEntry
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{counters: make(map[string]*counterEntry)}
}

// getOrCreate returns the entry for name, inserting an empty series on
// first sight. The read-lock fast path covers the common case; on a miss we
// retake the map under the write lock, since another connection may have
// inserted between the two acquisitions.
func (s *Store) getOrCreate(name string) *counterEntry {
	s.mu.RLock()
	e, ok := s.counters[name]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.counters[name]; ok {
		return e
	}
	e = &counterEntry{series: cascade.NewSeries()}
	s.counters[name] = e
	telemetry.SetCountersTracked(len(s.counters))
	return e
}

// lookup returns the entry for name, or nil. Reads never create a counter.
func (s *Store) lookup(name string) *counterEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counters[name]
}

// ApplyUpdate folds one Update into the named counter's series, creating it
// on first sight. It returns how many samples were too old for the whole
// cascade.
func (s *Store) ApplyUpdate(msg wire.UpdateMessage, now uint64) (dropped int) {
	e := s.getOrCreate(msg.Counter)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.series.Update(msg.State, now)
}

// ReadSummary answers a Read: the named counter's current summary, or a
// zero count stamped with now when the counter has never been seen.
func (s *Store) ReadSummary(name string, now uint64) wire.CounterState {
	e := s.lookup(name)
	if e == nil {
		return wire.CounterState{EpochMinutes: now, Count: 0}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.series.ReadSummary(now)
}

// Len reports the number of counters tracked.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.counters)
}
