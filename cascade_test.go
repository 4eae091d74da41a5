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

package cascade

import (
	"slices"
	"testing"
)

func statesEqual(a, b []State) bool {
	return slices.Equal(a, b)
}

// checkInvariants walks every bucket asserting alignment, strict ordering,
// and the age bound relative to now.
func checkInvariants(t *testing.T, s *Series, now uint64) {
	t.Helper()
	for bi, b := range s.Buckets() {
		var prev *State
		for ei, e := range b.Data {
			if e.EpochMinutes%b.IntervalMinutes != 0 {
				t.Fatalf("bucket %d entry %d: minute %d not aligned to interval %d",
					bi, ei, e.EpochMinutes, b.IntervalMinutes)
			}
			if prev != nil && e.EpochMinutes <= prev.EpochMinutes {
				t.Fatalf("bucket %d entry %d: minutes not strictly increasing (%d then %d)",
					bi, ei, prev.EpochMinutes, e.EpochMinutes)
			}
			if e.EpochMinutes < now && now-e.EpochMinutes > b.CutoffMinutes {
				t.Fatalf("bucket %d entry %d: age %d exceeds cutoff %d",
					bi, ei, now-e.EpochMinutes, b.CutoffMinutes)
			}
			if e.Count == 0 {
				t.Fatalf("bucket %d entry %d: zero count stored", bi, ei)
			}
			p := e
			prev = &p
		}
		if len(b.Data) > b.MaxEntries {
			t.Fatalf("bucket %d: %d entries exceeds capacity %d", bi, len(b.Data), b.MaxEntries)
		}
	}
}

func totalCount(s *Series) uint64 {
	var sum uint64
	for _, b := range s.Buckets() {
		for _, e := range b.Data {
			sum += e.Count
		}
	}
	return sum
}

// TestSeries_Specs verifies the compiled-in resolution chain: five buckets,
// finest first, with the documented intervals, capacities, and cumulative
// cutoffs.
func TestSeries_Specs(t *testing.T) {
	s := NewSeries()
	want := []struct {
		interval uint64
		count    int
		cutoff   uint64
	}{
		{1, 360, 360},
		{5, 216, 1440},
		{15, 480, 8640},
		{60, 552, 41760},
		{180, 480, 128160},
	}
	buckets := s.Buckets()
	if len(buckets) != NumBuckets {
		t.Fatalf("expected %d buckets, got %d", NumBuckets, len(buckets))
	}
	for i, w := range want {
		b := buckets[i]
		if b.IntervalMinutes != w.interval || b.MaxEntries != w.count || b.CutoffMinutes != w.cutoff {
			t.Fatalf("bucket %d: got (%d,%d,%d) want (%d,%d,%d)",
				i, b.IntervalMinutes, b.MaxEntries, b.CutoffMinutes, w.interval, w.count, w.cutoff)
		}
	}
}

// TestSeries_MinuteBucketInsertAndMerge covers the finest bucket: a sample
// merges into an existing minute, and an older minute inserts before it.
func TestSeries_MinuteBucketInsertAndMerge(t *testing.T) {
	s := NewSeries()

	s.Update([]State{{EpochMinutes: 5, Count: 3}}, 6)
	if got := s.Buckets()[0].Data; !statesEqual(got, []State{{5, 3}}) {
		t.Fatalf("after first add: %v", got)
	}

	s.Update([]State{{EpochMinutes: 5, Count: 2}}, 6)
	if got := s.Buckets()[0].Data; !statesEqual(got, []State{{5, 5}}) {
		t.Fatalf("after merge: %v", got)
	}

	s.Update([]State{{EpochMinutes: 4, Count: 1}}, 6)
	if got := s.Buckets()[0].Data; !statesEqual(got, []State{{4, 1}, {5, 5}}) {
		t.Fatalf("after older insert: %v", got)
	}
	checkInvariants(t, s, 6)
}

// TestBucket_ThreeMinuteAlignment exercises alignment on a coarse bucket:
// samples align down to the interval and merge within a window.
func TestBucket_ThreeMinuteAlignment(t *testing.T) {
	b := Bucket{IntervalMinutes: 3, CutoffMinutes: 1000, MaxEntries: 100}

	b.add(State{EpochMinutes: 1, Count: 1}, 1)
	if !statesEqual(b.Data, []State{{0, 1}}) {
		t.Fatalf("after aligned-down add: %v", b.Data)
	}

	b.add(State{EpochMinutes: 4, Count: 1}, 4)
	if !statesEqual(b.Data, []State{{0, 1}, {3, 1}}) {
		t.Fatalf("after second window: %v", b.Data)
	}

	b.add(State{EpochMinutes: 5, Count: 7}, 5)
	if !statesEqual(b.Data, []State{{0, 1}, {3, 8}}) {
		t.Fatalf("after in-window merge: %v", b.Data)
	}
}

// TestBucket_AddRejectsTooOld asserts the programmer-error path: handing a
// bucket a sample beyond its cutoff aborts loudly.
func TestBucket_AddRejectsTooOld(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for sample past the cutoff")
		}
	}()
	b := Bucket{IntervalMinutes: 1, CutoffMinutes: 10, MaxEntries: 10}
	b.add(State{EpochMinutes: 0, Count: 1}, 100)
}

// TestSeries_CascadeShift follows samples through a day of aging: two
// minute-resolution entries collapse into a single aligned entry in the
// 15-minute bucket, with the finer buckets drained.
func TestSeries_CascadeShift(t *testing.T) {
	s := NewSeries()
	s.Update([]State{{EpochMinutes: 10, Count: 2}, {EpochMinutes: 11, Count: 3}}, 12)
	if got := s.Buckets()[0].Data; !statesEqual(got, []State{{10, 2}, {11, 3}}) {
		t.Fatalf("finest bucket before aging: %v", got)
	}

	now := uint64(1080 + 1440)
	s.Shift(now)

	buckets := s.Buckets()
	if len(buckets[0].Data) != 0 {
		t.Fatalf("finest bucket should be empty, got %v", buckets[0].Data)
	}
	if len(buckets[1].Data) != 0 {
		t.Fatalf("5-minute bucket should be empty, got %v", buckets[1].Data)
	}
	if !statesEqual(buckets[2].Data, []State{{0, 5}}) {
		t.Fatalf("15-minute bucket: got %v want [{0 5}]", buckets[2].Data)
	}
	for i := 3; i < NumBuckets; i++ {
		if len(buckets[i].Data) != 0 {
			t.Fatalf("bucket %d should be empty, got %v", i, buckets[i].Data)
		}
	}
	checkInvariants(t, s, now)
}

// TestSeries_TooOldSampleDropped verifies that a sample older than the
// whole chain is discarded without touching any bucket.
func TestSeries_TooOldSampleDropped(t *testing.T) {
	s := NewSeries()
	now := uint64(128160 + 100)
	dropped := s.Update([]State{{EpochMinutes: 10, Count: 1}}, now)
	if dropped != 1 {
		t.Fatalf("expected 1 dropped sample, got %d", dropped)
	}
	if got := totalCount(s); got != 0 {
		t.Fatalf("expected untouched series, total count %d", got)
	}
}

// TestSeries_CountConservation checks that counts are neither created nor
// lost except past the coarsest cutoff: after each update the stored total
// matches the running expectation.
func TestSeries_CountConservation(t *testing.T) {
	s := NewSeries()

	steps := []struct {
		states    []State
		now       uint64
		wantTotal uint64
	}{
		{[]State{{100, 1}}, 100, 1},
		{[]State{{100, 3}, {101, 1}}, 101, 5},
		{[]State{{90, 2}}, 101, 7},
		{[]State{{101, 4}, {102, 1}}, 102, 12},
		// A day later the early minutes shift coarser on the way in, but
		// nothing has aged past the chain yet.
		{[]State{{1540, 2}}, 1542, 14},
		// Far future: everything old ages past the coarsest cutoff and
		// only the fresh sample survives.
		{[]State{{130000, 8}}, 130001, 8},
	}
	for i, step := range steps {
		s.Update(step.states, step.now)
		if got := totalCount(s); got != step.wantTotal {
			t.Fatalf("step %d: total count %d, want %d", i, got, step.wantTotal)
		}
		checkInvariants(t, s, step.now)
	}
}

// TestSeries_CapacityCascadesOldest fills the finest bucket past its
// capacity with a frozen clock and verifies the overflow cascades outward
// instead of growing the bucket.
func TestSeries_CapacityCascadesOldest(t *testing.T) {
	s := NewSeries()
	// 361 distinct minutes, all within the finest cutoff of a late "now",
	// so Shift alone cannot evict any of them.
	now := uint64(1000)
	for m := uint64(640); m <= 1000; m++ {
		s.Update([]State{{EpochMinutes: m, Count: 1}}, now)
	}
	b0 := s.Buckets()[0]
	if len(b0.Data) > b0.MaxEntries {
		t.Fatalf("finest bucket exceeded capacity: %d > %d", len(b0.Data), b0.MaxEntries)
	}
	// Nothing was truly old enough to discard, so the overflow must have
	// moved, not vanished.
	if got := totalCount(s); got != 361 {
		t.Fatalf("expected all 361 counts retained, got %d", got)
	}
	checkInvariants(t, s, now)
}

// TestSeries_ReadSummary verifies the read contract: the caller's now plus
// the sum over the finest bucket, with aged entries shifted out first.
func TestSeries_ReadSummary(t *testing.T) {
	s := NewSeries()
	s.Update([]State{{100, 3}, {101, 4}}, 101)

	got := s.ReadSummary(102)
	if got.EpochMinutes != 102 || got.Count != 7 {
		t.Fatalf("summary: got %+v want {102 7}", got)
	}

	// Once the samples age past the finest cutoff they leave the summary.
	later := uint64(101 + 400)
	got = s.ReadSummary(later)
	if got.EpochMinutes != later || got.Count != 0 {
		t.Fatalf("aged summary: got %+v want {%d 0}", got, later)
	}
	checkInvariants(t, s, later)
}

// TestSeries_FutureSampleAccepted ensures a sample stamped slightly ahead
// of the server clock (client skew) is treated as current, not as an
// underflowed ancient sample.
func TestSeries_FutureSampleAccepted(t *testing.T) {
	s := NewSeries()
	dropped := s.Update([]State{{EpochMinutes: 205, Count: 2}}, 200)
	if dropped != 0 {
		t.Fatalf("future sample dropped")
	}
	if got := s.Buckets()[0].Data; !statesEqual(got, []State{{205, 2}}) {
		t.Fatalf("future sample placement: %v", got)
	}
}
