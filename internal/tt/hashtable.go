package tt

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"math/bits"
	"os"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/zstd"

	"github.com/nguyencongminh090/Rapfi-engine/internal/board"
)

// logger is the package-level logger every notable TT event (resize,
// allocation shortfall) writes through, one log line per event.
var logger = log.New(os.Stderr, "tt: ", log.LstdFlags)

// EntriesPerBucket entries share one Bucket, sized to fit a single
// 64-byte cache line (16 bytes per Entry).
const EntriesPerBucket = 4

// Bucket is one cache line's worth of entries, probed/stored as a unit.
type Bucket [EntriesPerBucket]Entry

const entrySize = 16 // 4+2+2+2+1+1 field bytes plus 4 zero bytes, the wire size Dump/Load use per Entry
const bucketSize = entrySize * EntriesPerBucket

// hashDumpMagic is the fixed 32-byte ASCII header every dump begins
// with, ported verbatim from HashDumpMagicString.
var hashDumpMagic = func() [32]byte {
	var m [32]byte
	copy(m[:], "RAPFI HASH DUMP VER 001")
	return m
}()

// numShards is the number of bucket-lock shards, a power of two so the
// shard index is a mask of the bucket index.
const numShards = 256
const shardMask = numShards - 1

// HashTable is the process-wide transposition table: a flat array of
// Buckets indexed by a wide multiply of the position hash, with an
// 8-bit generation counter used for age-aware replacement. Ported from
// Search::HashTable. The reference gets away with lock-free racing
// stores because its entries are written with aligned hardware stores;
// plain Go struct writes carry no such guarantee, so bucket access is
// serialized through sharded mutexes instead: mu guards the buckets
// slice header and generation (Resize/Clear/Load swap or rewrite them
// under the exclusive lock), and shards[i&shardMask] gives each bucket
// range its own mutual exclusion for Probe/Store.
type HashTable struct {
	mu         sync.RWMutex
	shards     [numShards]sync.RWMutex
	buckets    []Bucket
	generation uint8
}

// NewHashTable allocates a table sized to hold roughly hashSizeKB
// kilobytes of buckets (at least one bucket).
func NewHashTable(hashSizeKB int) *HashTable {
	t := &HashTable{}
	t.Resize(hashSizeKB)
	return t
}

// Resize reallocates the table to hold roughly hashSizeKB kilobytes,
// at least one bucket. Ported from HashTable::resize; Go's allocator
// has no large-page control and does not fail allocation the way the
// reference's aligned allocator can, so the halve-and-retry fallback
// has nothing to retry against — a single make() either succeeds or
// the program is already out of memory, in which case there is nothing
// graceful left to do. The reported target still goes through Clear.
func (t *HashTable) Resize(hashSizeKB int) {
	numBuckets := hashSizeKB * 1024 / bucketSize
	if numBuckets < 1 {
		numBuckets = 1
	}
	t.mu.Lock()
	t.buckets = make([]Bucket, numBuckets)
	t.mu.Unlock()
	logger.Printf("allocated %s for transposition table (%d buckets)",
		humanizeBytes(uint64(numBuckets*bucketSize)), numBuckets)
	t.Clear()
}

// NumBuckets returns the table's current bucket count.
func (t *HashTable) NumBuckets() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.buckets)
}

// Clear zeros every bucket and resets the generation counter, splitting
// the work across goroutines the way HashTable::clear splits it across
// std::thread workers, each zeroing a contiguous slab. Callers must
// ensure no search worker is probing/storing concurrently (the
// reference's Threads.waitForIdle() precondition).
func (t *HashTable) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()

	const numWorkers = 8
	n := len(t.buckets)
	if n == 0 {
		t.generation = 0
		return
	}
	workers := numWorkers
	if workers > n {
		workers = n
	}
	stride := n / workers

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		start := w * stride
		end := start + stride
		if w == workers-1 {
			end = n
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			var zero Bucket
			for i := start; i < end; i++ {
				t.buckets[i] = zero
			}
		}(start, end)
	}
	wg.Wait()

	t.generation = 0
}

// NewSearch advances the generation counter, marking entries from prior
// searches as progressively cheaper to evict.
func (t *HashTable) NewSearch() {
	t.mu.Lock()
	t.generation++
	t.mu.Unlock()
}

// bucketIndex maps hash to a bucket slot via a wide multiply:
// floor(hash * numBuckets / 2^64), which spreads keys uniformly over an
// arbitrary bucket count without requiring it to be a power of two.
func bucketIndex(hash uint64, numBuckets int) int {
	hi, _ := bits.Mul64(hash, uint64(numBuckets))
	return int(hi)
}

// Probe looks up hashKey's entry. On a hit it returns the decoded
// fields (value already adjusted to ply-relative search space) and
// bumps the entry's generation in place. Ported from HashTable::probe;
// the generation bump is a read-modify-write of the entry, so the
// bucket's shard lock is taken exclusively for the whole scan.
func (t *HashTable) Probe(hashKey uint64, ply int) (value, eval Value, isPV bool, bound Bound, move board.Pos, depth int, ok bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if len(t.buckets) == 0 {
		return 0, 0, false, BoundNone, board.NonePos, 0, false
	}
	idx := bucketIndex(hashKey, len(t.buckets))
	shard := &t.shards[idx&shardMask]
	shard.Lock()
	defer shard.Unlock()

	bucket := &t.buckets[idx]
	key32 := uint32(hashKey)

	for i := range bucket {
		tte := bucket[i]
		if tte.Key() != key32 {
			continue
		}
		bucket[i].Generation8 = t.generation
		bucket[i].setKey(key32)

		return StoredValueToSearchValue(Value(tte.Value16), ply),
			Value(tte.Eval16),
			tte.IsPV(),
			tte.BoundOf(),
			tte.Move(),
			tte.Depth(),
			true
	}
	return 0, 0, false, BoundNone, board.NonePos, 0, false
}

func replaceValue(e Entry, generation uint8) int {
	return int(e.Depth8) - int(generation-e.Generation8)
}

// Store writes (or updates) hashKey's record. Ported from
// HashTable::store: find a matching entry or the least valuable one by
// replaceValue, skip the overwrite when the new record is a non-exact
// bound that's barely shallower than what's already there, and retain
// the previous best move if the new call doesn't supply one.
func (t *HashTable) Store(hashKey uint64, value, eval Value, isPV bool, bound Bound, move board.Pos, depth, ply int) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if len(t.buckets) == 0 {
		return
	}
	idx := bucketIndex(hashKey, len(t.buckets))
	shard := &t.shards[idx&shardMask]
	shard.Lock()
	defer shard.Unlock()

	bucket := &t.buckets[idx]
	newKey32 := uint32(hashKey)

	replace := 0
	for i := range bucket {
		if bucket[i].Key() == newKey32 {
			replace = i
			break
		}
		if replaceValue(bucket[i], t.generation) < replaceValue(bucket[replace], t.generation) {
			replace = i
		}
	}

	old := bucket[replace]
	oldKey32 := old.Key()

	if bound != BoundExact && newKey32 == oldKey32 && depth+2 < old.Depth() {
		return
	}

	if move == board.NonePos && newKey32 == oldKey32 {
		move = old.Move()
	}

	var e Entry
	e.Value16 = int16(SearchValueToStoredValue(value, ply))
	e.Eval16 = int16(eval)
	e.PVBoundBest16 = uint16(boolToU16(isPV))<<15 | uint16(bound)<<13 | packMove(move)
	e.Depth8 = uint8(depth - DepthLowerBound)
	e.Generation8 = t.generation
	e.setKey(newKey32)

	bucket[replace] = e
}

func boolToU16(b bool) uint16 {
	if b {
		return 1
	}
	return 0
}

// HashUsage samples the first numBuckets/1024 buckets and returns the
// permille of sampled entries that carry a nonzero depth from the
// current generation. Ported from HashTable::hashUsage.
func (t *HashTable) HashUsage() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	testCount := len(t.buckets) >> 10
	if testCount == 0 {
		return 0
	}
	var cnt int
	for i := 0; i < testCount; i++ {
		shard := &t.shards[i&shardMask]
		shard.RLock()
		for _, e := range t.buckets[i] {
			if e.Depth8 != 0 && e.Generation8 == t.generation {
				cnt++
			}
		}
		shard.RUnlock()
	}
	return cnt * 1000 / (EntriesPerBucket * testCount)
}

// Dump serializes the table through a zstd envelope: the magic header,
// bucket count, generation, then every bucket's entries in order.
// Ported from HashTable::dump (LZ4 there, zstd here — see
// internal/weight.CompressedWrapper for why).
func (t *HashTable) Dump(w io.Writer) error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	zw, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("tt dump: %w", err)
	}
	defer zw.Close()

	if _, err := zw.Write(hashDumpMagic[:]); err != nil {
		return fmt.Errorf("tt dump: magic: %w", err)
	}
	var header [9]byte
	binary.LittleEndian.PutUint64(header[0:8], uint64(len(t.buckets)))
	header[8] = t.generation
	if _, err := zw.Write(header[:]); err != nil {
		return fmt.Errorf("tt dump: header: %w", err)
	}

	// Each bucket is snapshotted under its shard lock, so concurrent
	// stores to other shards proceed; the dump as a whole is not a
	// point-in-time snapshot, same as the reference's.
	buf := make([]byte, bucketSize)
	for i := range t.buckets {
		shard := &t.shards[i&shardMask]
		shard.RLock()
		b := t.buckets[i]
		shard.RUnlock()
		encodeBucket(buf, &b)
		if _, err := zw.Write(buf); err != nil {
			return fmt.Errorf("tt dump: bucket %d: %w", i, err)
		}
	}
	return nil
}

// Load replaces the table's contents by decoding a stream Dump wrote.
// It validates the magic header and requires EOF immediately after the
// last bucket, matching HashTable::load's strictness.
func (t *HashTable) Load(r io.Reader) error {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return fmt.Errorf("tt load: %w", err)
	}
	defer zr.Close()

	var magic [32]byte
	if _, err := io.ReadFull(zr, magic[:]); err != nil {
		return fmt.Errorf("tt load: magic: %w", err)
	}
	if !bytes.Equal(magic[:], hashDumpMagic[:]) {
		return fmt.Errorf("tt load: bad magic")
	}

	var header [9]byte
	if _, err := io.ReadFull(zr, header[:]); err != nil {
		return fmt.Errorf("tt load: header: %w", err)
	}
	numBuckets := binary.LittleEndian.Uint64(header[0:8])
	if numBuckets == 0 {
		return fmt.Errorf("tt load: zero bucket count")
	}
	generation := header[8]

	buckets := make([]Bucket, numBuckets)
	buf := make([]byte, bucketSize)
	for i := range buckets {
		if _, err := io.ReadFull(zr, buf); err != nil {
			return fmt.Errorf("tt load: bucket %d: %w", i, err)
		}
		decodeBucket(buf, &buckets[i])
	}

	var probe [1]byte
	if _, err := zr.Read(probe[:]); err != io.EOF {
		return fmt.Errorf("tt load: trailing data after last bucket")
	}

	t.mu.Lock()
	t.buckets = buckets
	t.generation = generation
	t.mu.Unlock()
	return nil
}

func encodeBucket(dst []byte, b *Bucket) {
	for i, e := range b {
		off := i * entrySize
		binary.LittleEndian.PutUint32(dst[off:], e.Key32)
		binary.LittleEndian.PutUint16(dst[off+4:], uint16(e.Value16))
		binary.LittleEndian.PutUint16(dst[off+6:], uint16(e.Eval16))
		binary.LittleEndian.PutUint16(dst[off+8:], e.PVBoundBest16)
		dst[off+10] = e.Depth8
		dst[off+11] = e.Generation8
		dst[off+12] = 0
		dst[off+13] = 0
		dst[off+14] = 0
		dst[off+15] = 0
	}
}

func decodeBucket(src []byte, b *Bucket) {
	for i := range b {
		off := i * entrySize
		b[i] = Entry{
			Key32:         binary.LittleEndian.Uint32(src[off:]),
			Value16:       int16(binary.LittleEndian.Uint16(src[off+4:])),
			Eval16:        int16(binary.LittleEndian.Uint16(src[off+6:])),
			PVBoundBest16: binary.LittleEndian.Uint16(src[off+8:]),
			Depth8:        src[off+10],
			Generation8:   src[off+11],
		}
	}
}

// humanizeBytes reports a byte count as a human-readable string for log
// messages.
func humanizeBytes(n uint64) string {
	return humanize.Bytes(n)
}
