package tt

import (
	"bytes"
	"sync"
	"testing"

	"github.com/cespare/xxhash/v2"

	"github.com/nguyencongminh090/Rapfi-engine/internal/board"
)

// TestProbeMissStoreHit covers the basic lifecycle: a miss on an empty
// table, a store, then a hit returning exactly what was stored.
func TestProbeMissStoreHit(t *testing.T) {
	table := NewHashTable(1) // 1 KB
	const hash = uint64(0xDEADBEEFCAFEBABE)

	if _, _, _, _, _, _, ok := table.Probe(hash, 0); ok {
		t.Fatalf("probe on an empty table should miss")
	}

	table.Store(hash, 100, 50, true, BoundExact, board.Pos(77), DepthLowerBound+5, 0)

	value, eval, isPV, bound, move, depth, ok := table.Probe(hash, 0)
	if !ok {
		t.Fatalf("probe after store should hit")
	}
	if value != 100 || eval != 50 || !isPV || bound != BoundExact || move != board.Pos(77) || depth != DepthLowerBound+5 {
		t.Fatalf("probe returned %v %v %v %v %v %v, want 100 50 true EXACT 77 %d",
			value, eval, isPV, bound, move, depth, DepthLowerBound+5)
	}
}

// TestStoreReplacementSkip checks the store-skip rule: a shallower non-exact bound
// on the same key must not overwrite a deeper existing record.
func TestStoreReplacementSkip(t *testing.T) {
	table := NewHashTable(1)
	const hash = uint64(0xDEADBEEFCAFEBABE)

	table.Store(hash, 100, 50, true, BoundExact, board.Pos(77), DepthLowerBound+5, 0)
	table.Store(hash, 999, 999, false, BoundUpper, board.NonePos, DepthLowerBound+2, 0)

	value, eval, isPV, bound, move, depth, ok := table.Probe(hash, 0)
	if !ok {
		t.Fatalf("probe should still hit the original record")
	}
	if value != 100 || eval != 50 || !isPV || bound != BoundExact || move != board.Pos(77) || depth != DepthLowerBound+5 {
		t.Fatalf("shallow non-exact store should have been skipped, got %v %v %v %v %v %v",
			value, eval, isPV, bound, move, depth)
	}
}

// TestStoreReplacementOverwritesOnExactBound checks the positive side of
// the skip rule: an EXACT bound always overwrites, even shallower.
func TestStoreReplacementOverwritesOnExactBound(t *testing.T) {
	table := NewHashTable(1)
	const hash = uint64(0xDEADBEEFCAFEBABE)

	table.Store(hash, 100, 50, true, BoundExact, board.Pos(77), DepthLowerBound+5, 0)
	table.Store(hash, 200, 60, false, BoundExact, board.Pos(12), DepthLowerBound+1, 0)

	value, _, _, bound, move, depth, ok := table.Probe(hash, 0)
	if !ok || value != 200 || bound != BoundExact || move != board.Pos(12) || depth != DepthLowerBound+1 {
		t.Fatalf("EXACT bound should always overwrite, got value=%v bound=%v move=%v depth=%v", value, bound, move, depth)
	}
}

func TestStoreRetainsPreviousMoveWhenNoneSupplied(t *testing.T) {
	table := NewHashTable(1)
	const hash = uint64(0xDEADBEEFCAFEBABE)

	table.Store(hash, 100, 50, true, BoundExact, board.Pos(77), DepthLowerBound+5, 0)
	table.Store(hash, 150, 55, true, BoundExact, board.NonePos, DepthLowerBound+6, 0)

	_, _, _, _, move, _, ok := table.Probe(hash, 0)
	if !ok || move != board.Pos(77) {
		t.Fatalf("a store with move=NONE should retain the previous move, got %v", move)
	}
}

// TestKeyChecksumDetectsCorruption: flipping a byte in a
// stored entry's data invalidates the next probe as a miss.
func TestKeyChecksumDetectsCorruption(t *testing.T) {
	table := NewHashTable(1)
	const hash = uint64(0xDEADBEEFCAFEBABE)
	table.Store(hash, 100, 50, true, BoundExact, board.Pos(77), DepthLowerBound+5, 0)

	idx := bucketIndex(hash, table.NumBuckets())
	table.buckets[idx][0].Value16 ^= 1

	if _, _, _, _, _, _, ok := table.Probe(hash, 0); ok {
		t.Fatalf("a corrupted entry should fail its checksum and miss on probe")
	}
}

// TestDumpLoadRoundTrip: populate a table, dump it,
// reload into a fresh table, and confirm every stored key still probes
// identically and hashUsage is preserved.
func TestDumpLoadRoundTrip(t *testing.T) {
	table := NewHashTable(256)

	type stored struct {
		hash  uint64
		value Value
		depth int
	}
	var entries []stored
	for i := 0; i < 1000; i++ {
		h := xxhash.Sum64(append([]byte("entry-"), byte(i), byte(i>>8)))
		depth := DepthLowerBound + 1 + (i % 100)
		table.Store(h, Value(i), Value(i/2), i%2 == 0, BoundExact, board.Pos(i%400), depth, 0)
		entries = append(entries, stored{hash: h, value: Value(i), depth: depth})
	}
	wantUsage := table.HashUsage()

	var buf bytes.Buffer
	if err := table.Dump(&buf); err != nil {
		t.Fatalf("Dump failed: %v", err)
	}

	fresh := NewHashTable(1)
	if err := fresh.Load(&buf); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	for _, e := range entries {
		value, _, _, _, _, depth, ok := fresh.Probe(e.hash, 0)
		if !ok {
			t.Fatalf("probe for hash %#x missed after dump/load round trip", e.hash)
		}
		if value != e.value || depth != e.depth {
			t.Fatalf("probe for hash %#x = (value=%v depth=%v), want (value=%v depth=%v)",
				e.hash, value, depth, e.value, e.depth)
		}
	}

	if got := fresh.HashUsage(); got != wantUsage {
		t.Fatalf("HashUsage after round trip = %d, want %d", got, wantUsage)
	}
}

func TestClearResetsGenerationAndEntries(t *testing.T) {
	table := NewHashTable(64)
	table.Store(0x1234, 10, 5, false, BoundExact, board.Pos(1), DepthLowerBound+3, 0)
	table.NewSearch()
	table.Clear()

	if _, _, _, _, _, _, ok := table.Probe(0x1234, 0); ok {
		t.Fatalf("Clear should remove all entries")
	}
	if table.generation != 0 {
		t.Fatalf("Clear should reset generation to 0, got %d", table.generation)
	}
}

// TestConcurrentProbeAndStore hammers the table from several goroutines
// mixing probes and stores over a shared key set, so the sharded lock
// discipline is exercised under the race detector. Hits must decode to
// the exact values some goroutine stored; the checksum guarantees a
// torn or foreign record reads as a miss, never as garbage.
func TestConcurrentProbeAndStore(t *testing.T) {
	table := NewHashTable(64)
	const (
		numWorkers = 8
		numKeys    = 512
		iterations = 2000
	)

	hashes := make([]uint64, numKeys)
	for i := range hashes {
		hashes[i] = xxhash.Sum64(append([]byte("key-"), byte(i), byte(i>>8)))
	}

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func(seed int) {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				k := (seed*31 + i) % numKeys
				h := hashes[k]
				if i%3 == 0 {
					table.Store(h, Value(k), Value(k/2), k%2 == 0, BoundExact, board.Pos(k%400), DepthLowerBound+1+k%50, 0)
					continue
				}
				value, eval, _, bound, _, depth, ok := table.Probe(h, 0)
				if !ok {
					continue
				}
				wantK := int(value)
				if wantK < 0 || wantK >= numKeys || hashes[wantK] != h {
					t.Errorf("probe for %#x decoded value %d, which no store wrote for this key", h, value)
					return
				}
				if eval != Value(wantK/2) || bound != BoundExact || depth != DepthLowerBound+1+wantK%50 {
					t.Errorf("probe for %#x returned fields (eval=%v bound=%v depth=%v) inconsistent with value %d",
						h, eval, bound, depth, wantK)
					return
				}
			}
		}(w)
	}
	wg.Wait()
}

func TestBucketIndexWithinRange(t *testing.T) {
	for _, n := range []int{1, 2, 3, 7, 1000} {
		for _, h := range []uint64{0, 1, ^uint64(0), 0xABCDEF0123456789} {
			idx := bucketIndex(h, n)
			if idx < 0 || idx >= n {
				t.Fatalf("bucketIndex(%#x, %d) = %d, out of range", h, n, idx)
			}
		}
	}
}
