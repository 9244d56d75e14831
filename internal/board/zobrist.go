package board

import (
	"github.com/cespare/xxhash/v2"
)

// HashKey is the 64-bit position hash the transposition table is keyed
// by. The search owns incremental Zobrist hashing; this module only
// provides a from-scratch content hash, useful for tests and the demo
// CLI where no incremental hasher is wired up.
type HashKey = uint64

// ContentHash computes a deterministic HashKey from a board's current
// contents and side to move. It is not incremental and is not a real
// Zobrist scheme; it exists so tests and cmd/mix8tool have a HashKey
// source without a search layer attached.
func ContentHash(b Board) HashKey {
	size := b.BoardSize()
	buf := make([]byte, size*size+1)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			buf[y*size+x] = byte(b.At(x, y))
		}
	}
	buf[size*size] = byte(b.SideToMove())
	return xxhash.Sum64(buf)
}
