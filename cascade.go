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

// Package cascade provides an in-memory, multi-resolution time-series store
// for monotonic counters. Samples are bucketed by wall-clock minute and held
// in a fixed chain of five buckets at progressively coarser resolutions
// (1 min, 5 min, 15 min, 1 h, 3 h) covering roughly 6 hours out to 90 days.
// A sample lands in the finest bucket it still fits; as samples age past a
// bucket's cutoff they cascade outward into the next coarser bucket, where
// they are re-aligned to the coarser interval and merged with any entry
// already covering that window.
//
// The package is a pure data structure: it owns no locks, no clock, and no
// I/O. Callers are expected to serialize access to a Series and to supply
// the current time as epoch minutes (Unix seconds divided by 60, floored).
package cascade

import (
	"fmt"
	"slices"
)

// State is one counter observation: the minute it was accumulated in and the
// count accumulated during that minute. Counts are positive wherever a State
// is stored in a bucket.
type State struct {
	EpochMinutes uint64 `json:"epoch_minutes"`
	Count        uint64 `json:"count"`
}

// Bucket holds counter states at a single resolution, oldest first.
//
// Invariants, maintained by Series operations:
//   - every entry's EpochMinutes is aligned to IntervalMinutes
//   - entries are strictly increasing in EpochMinutes
//   - no entry is older than CutoffMinutes relative to the caller's "now"
//     immediately after an Update
type Bucket struct {
	// IntervalMinutes is the width of each aggregation window.
	IntervalMinutes uint64
	// CutoffMinutes is the age bound: entries older than this relative to
	// "now" must be cascaded out before an insert completes.
	CutoffMinutes uint64
	// MaxEntries bounds the bucket size; Series enforces it by cascading
	// the oldest entry outward when an insert would exceed it.
	MaxEntries int
	// Data is the stored sequence, oldest entry at index 0.
	Data []State
}

// NumBuckets is the fixed length of a Series.
const NumBuckets = 5

// bucketSpecs is the compiled-in resolution chain, finest first. Cutoffs are
// cumulative: each bucket accepts anything too old for the previous one, up
// to its own bound.
var bucketSpecs = [NumBuckets]struct {
	intervalMinutes uint64
	intervalCount   int
	cutoffMinutes   uint64
}{
	{1, 360, 360},      // 6 h
	{5, 216, 1440},     // out to 24 h
	{15, 480, 8640},    // out to 6 d
	{60, 552, 41760},   // out to 29 d
	{180, 480, 128160}, // out to ~89 d
}

// Series is the ordered chain of buckets for one counter, finest resolution
// first. The zero value is not usable; construct with NewSeries.
type Series struct {
	buckets []Bucket
}

// NewSeries returns an empty series with the standard five-bucket chain.
func NewSeries() *Series {
	s := &Series{buckets: make([]Bucket, NumBuckets)}
	for i, spec := range bucketSpecs {
		s.buckets[i] = Bucket{
			IntervalMinutes: spec.intervalMinutes,
			CutoffMinutes:   spec.cutoffMinutes,
			MaxEntries:      spec.intervalCount,
		}
	}
	return s
}

// Buckets exposes the underlying chain for observation. Callers must not
// mutate it.
func (s *Series) Buckets() []Bucket {
	return s.buckets
}

// age is the distance from now back to m. A sample stamped in the future
// (client clock ahead of ours) is treated as current rather than wrapping.
func age(now, m uint64) uint64 {
	if m >= now {
		return 0
	}
	return now - m
}

// Update shifts aged entries outward and then adds each state, oldest first.
// It returns the number of states discarded for being older than the whole
// chain. This is the single entry point used per incoming counter update;
// shifting first guarantees no bucket exceeds MaxEntries except transiently
// under a pathological clock, which addToChain also handles.
func (s *Series) Update(states []State, now uint64) (dropped int) {
	s.Shift(now)
	for _, st := range states {
		if !addToChain(s.buckets, st, now) {
			dropped++
		}
	}
	return dropped
}

// Shift cascades aged entries outward: for each bucket, every entry older
// than the bucket's cutoff is popped from the oldest end and re-added to the
// remainder of the chain. Entries aging out of the coarsest bucket are
// discarded.
func (s *Series) Shift(now uint64) {
	for i := range s.buckets {
		b := &s.buckets[i]
		for len(b.Data) > 0 && age(now, b.Data[0].EpochMinutes) > b.CutoffMinutes {
			e := b.Data[0]
			b.Data = b.Data[1:]
			addToChain(s.buckets[i+1:], e, now)
		}
	}
}

// ReadSummary reports the series as a single state: the caller's now and the
// sum of the finest bucket's entries. Aged entries are shifted out first so
// the sum only covers the finest bucket's window.
func (s *Series) ReadSummary(now uint64) State {
	s.Shift(now)
	var total uint64
	for _, e := range s.buckets[0].Data {
		total += e.Count
	}
	return State{EpochMinutes: now, Count: total}
}

// addToChain places st into the finest bucket of chain that still covers its
// age, cascading into coarser buckets as needed. It reports false when st is
// older than every remaining bucket and was discarded.
func addToChain(chain []Bucket, st State, now uint64) bool {
	if len(chain) == 0 {
		return false
	}
	b := &chain[0]
	if age(now, st.EpochMinutes) > b.CutoffMinutes {
		return addToChain(chain[1:], st, now)
	}
	b.add(st, now)
	// Capacity discipline: a bucket never holds more than MaxEntries
	// aligned windows. Shift runs before inserts so this only trips when
	// the clock misbehaves; the oldest entry cascades outward as usual.
	for len(b.Data) > b.MaxEntries {
		e := b.Data[0]
		b.Data = b.Data[1:]
		addToChain(chain[1:], e, now)
	}
	return true
}

// add aligns st down to the bucket's interval and merges or inserts it,
// walking existing entries from newest to oldest. The caller must have
// established that st is within the bucket's cutoff.
func (b *Bucket) add(st State, now uint64) {
	if age(now, st.EpochMinutes) > b.CutoffMinutes {
		panic(fmt.Sprintf(
			"cascade: sample at minute %d is older than bucket cutoff %d at now %d",
			st.EpochMinutes, b.CutoffMinutes, now))
	}
	st.EpochMinutes -= st.EpochMinutes % b.IntervalMinutes
	for i := len(b.Data) - 1; i >= 0; i-- {
		e := &b.Data[i]
		if st.EpochMinutes < e.EpochMinutes {
			continue
		}
		if st.EpochMinutes < e.EpochMinutes+b.IntervalMinutes {
			e.Count += st.Count
			return
		}
		// Strictly newer than e's window: it belongs immediately after e.
		b.Data = slices.Insert(b.Data, i+1, st)
		return
	}
	// Older than everything stored (or the bucket is empty).
	b.Data = slices.Insert(b.Data, 0, st)
}
