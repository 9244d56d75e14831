package tt

import (
	"math/bits"

	"github.com/nguyencongminh090/Rapfi-engine/internal/board"
)

// moveMask selects the 10-bit move field packed into the low bits of
// PVBoundBest16. Bits 13-14 hold the bound and bit 15 the PV flag.
const moveMask = 0x3ff

// moveNone is the sentinel packed value representing "no move", chosen
// as the all-ones pattern of the 10-bit field so it never collides with
// a real packed position.
const moveNone = moveMask

// packMove encodes pos into the 10-bit field PVBoundBest16 carries.
func packMove(pos board.Pos) uint16 {
	if pos == board.NonePos {
		return moveNone
	}
	return uint16(pos) & moveMask
}

// unpackMove decodes a 10-bit packed move field back into a board.Pos.
func unpackMove(packed uint16) board.Pos {
	v := packed & moveMask
	if v == moveNone {
		return board.NonePos
	}
	return board.Pos(v)
}

// Entry is one transposition-table record, packed to 16 bytes on the
// wire (Dump/Load serialize it field-by-field in this exact order so
// the on-disk layout is stable). Ported from Search::TTEntry.
type Entry struct {
	Key32         uint32
	Value16       int16
	Eval16        int16
	PVBoundBest16 uint16
	Depth8        uint8
	Generation8   uint8
	_             [4]byte // pads Entry to 16 bytes so a Bucket fills one 64-byte line
}

// checksumWords derives two 64-bit data words over the entry's payload
// fields for the key checksum fold. Go has no unsafe-free way to alias
// a struct's fields as raw words, so this packs every field but Key32
// into one 64-bit word (they fit exactly: 2+2+2+1+1 bytes) and derives
// a second, dependent word by rotating it. Any change to any field
// changes both words, so torn-write detection still holds without
// memory-layout punning. See DESIGN.md.
func (e Entry) checksumWords() (uint64, uint64) {
	w0 := uint64(uint16(e.Value16)) |
		uint64(uint16(e.Eval16))<<16 |
		uint64(e.PVBoundBest16)<<32 |
		uint64(e.Depth8)<<48 |
		uint64(e.Generation8)<<56
	w1 := bits.RotateLeft64(w0, 32)
	return w0, w1
}

// Key returns the plain (unmasked) 32-bit key this entry currently
// claims to hold, reconstructed by XORing the stored, checksum-folded
// Key32 back against the two data words. A concurrent torn write that
// changed Key32 or any other field without updating the rest
// consistently produces a Key() that fails to match the probe's
// expected key, which is the whole point of storing it XOR-folded.
func (e Entry) Key() uint32 {
	w0, w1 := e.checksumWords()
	return e.Key32 ^ uint32(w0) ^ uint32(w1)
}

// setKey stores plainKey32 into e.Key32 XOR-folded against e's current
// data words, the inverse of Key(). Must be called after every other
// field has its final value, matching HashTable::store's field order.
func (e *Entry) setKey(plainKey32 uint32) {
	w0, w1 := e.checksumWords()
	e.Key32 = plainKey32 ^ uint32(w0) ^ uint32(w1)
}

// IsPV, BoundOf, and Move decode PVBoundBest16's three packed fields:
// bit 15 is the PV flag, bits 14:13 are the bound, bits 9:0 are the
// move. Ported from HashTable::probe's decode of pvBoundBest16.
func (e Entry) IsPV() bool     { return e.PVBoundBest16>>15 != 0 }
func (e Entry) BoundOf() Bound { return Bound((e.PVBoundBest16 >> 13) & 0x3) }
func (e Entry) Move() board.Pos {
	return unpackMove(e.PVBoundBest16)
}

// Depth reconstructs the real search depth from the packed depth8
// field.
func (e Entry) Depth() int { return int(e.Depth8) + DepthLowerBound }
