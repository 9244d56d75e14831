// Package tt implements the transposition table the search consults for
// cached position records: a large, cache-line-bucketed array of packed
// 16-byte entries with an XOR-checksummed key, an age/depth replacement
// policy, and a compressed dump/load format. Ported from
// Search::HashTable in hashtable.cpp.
package tt

// Value is a search score. It is carried as a plain int in this
// package's API and truncated to int16 on the wire (Entry.Value16),
// matching the reference's Value/int16_t split between search-space and
// storage-space representations.
type Value int32

const (
	// ValueInfinite bounds the legal search-value domain on both ends.
	ValueInfinite Value = 30000
	// ValueNone marks "no value computed", one past the negative bound.
	ValueNone Value = -ValueInfinite - 1
	// MateValue is the score assigned to an immediate win; scores within
	// MaxPly of it are mate scores whose distance-to-mate must be
	// adjusted for the probing ply.
	MateValue Value = 29000
	// MaxPly bounds how many plies a mate-distance adjustment considers,
	// mirroring internal/engine's MaxPly.
	MaxPly = 128
)

// DepthLowerBound offsets the depth stored in an entry's 8-bit depth8
// field: depth8 = depth - DepthLowerBound, so a depth range of 256
// values starting below zero (to make room for quiescence-search
// negative depths) fits in one byte. Ported from DEPTH_LOWER_BOUND.
const DepthLowerBound = -6

// Bound records what kind of search bound a stored value represents.
type Bound uint8

const (
	BoundNone Bound = iota
	BoundUpper
	BoundLower
	BoundExact
)

// StoredValueToSearchValue converts a value read from the table back
// into ply-relative search space: a stored mate score is relative to
// the position it was stored from (ply 0 of that subtree), so probing
// it from a different ply must shift it by the ply difference.
// Ported from AdjustScoreFromTT.
func StoredValueToSearchValue(v Value, ply int) Value {
	if v == ValueNone {
		return v
	}
	if v > MateValue-MaxPly {
		return v - Value(ply)
	}
	if v < -MateValue+MaxPly {
		return v + Value(ply)
	}
	return v
}

// SearchValueToStoredValue is StoredValueToSearchValue's inverse,
// applied before writing a value into the table. Ported from
// AdjustScoreToTT.
func SearchValueToStoredValue(v Value, ply int) Value {
	if v == ValueNone {
		return v
	}
	if v > MateValue-MaxPly {
		return v + Value(ply)
	}
	if v < -MateValue+MaxPly {
		return v - Value(ply)
	}
	return v
}
