package weight

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/nguyencongminh090/Rapfi-engine/internal/board"
)

// magicStandardHeader is the fixed sentinel every Mix8-family weight
// file begins with, ported verbatim from weightloader.h's
// RawHeaderData::StandardHeaderMagic.
const magicStandardHeader uint32 = 0xacd8cc6a

// PODLoader reads a single fixed-size little-endian value of type T with
// no header and no further framing, the Go analogue of
// BinaryPODWeightLoader<WeightType>. Size must match the serialized wire
// layout of T exactly (fields in declaration order, no implicit
// padding); callers that need control over padding should define T's
// fields at types that already pack tightly (int8/int16/int32/float32).
type PODLoader[T any] struct {
	// Size is the exact encoded byte length of T. It is passed explicitly
	// rather than computed because Go's encoding/binary.Size only handles
	// a subset of struct shapes (no slices/maps); spelling it out keeps
	// the contract obvious at the call site.
	Size int
	// Decode fills a zero-value *T from buf, which has length Size.
	Decode func(buf []byte) (*T, error)
}

func (l *PODLoader[T]) NeedsBinaryStream() bool { return true }

func (l *PODLoader[T]) Load(r io.Reader) (*T, error) {
	buf := make([]byte, l.Size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("pod weight: %w", err)
	}
	// weightloader.h asserts no trailing bytes remain; a short extra read
	// that doesn't hit EOF means the file is larger than WeightType.
	var tail [1]byte
	if _, err := r.Read(tail[:]); err != io.EOF {
		return nil, &IncompatibleWeightError{Message: "trailing data after POD weight"}
	}
	return l.Decode(buf)
}

// StandardHeader is the parsed form of RawHeaderData plus the
// description string that follows it in the file.
type StandardHeader struct {
	ArchHash      uint32
	RuleMask      uint32
	BoardSizeMask uint32
	Description   string
}

// SupportsRule reports whether r's bit is set in the header's rule mask.
func (h StandardHeader) SupportsRule(r board.Rule) bool {
	return h.RuleMask&r.RuleMaskBit() != 0
}

// SupportsBoardSize reports whether size's bit is set in the header's
// board-size mask. Bit i corresponds to board size i.
func (h StandardHeader) SupportsBoardSize(size int) bool {
	if size < 0 || size >= 32 {
		return false
	}
	return h.BoardSizeMask&(1<<uint32(size)) != 0
}

// HeaderValidator checks a parsed header against the caller's expected
// architecture/rule/board size, returning one of the structured errors
// in errors.go on rejection.
type HeaderValidator func(StandardHeader) error

// ReadStandardHeader consumes and parses the fixed RawHeaderData layout
// plus the description bytes it names from r, leaving the reader
// positioned at the first byte of the weight body. Callers that only
// need header metadata (cmd/mix8tool's header mode, the metadata cache)
// use this directly without decoding the body.
func ReadStandardHeader(r io.Reader) (StandardHeader, error) {
	var raw struct {
		Magic         uint32
		ArchHash      uint32
		RuleMask      uint32
		BoardSizeMask uint32
		DescLen       uint32
	}
	if err := binary.Read(r, binary.LittleEndian, &raw); err != nil {
		return StandardHeader{}, fmt.Errorf("standard header: %w", err)
	}
	if raw.Magic != magicStandardHeader {
		return StandardHeader{}, &IncompatibleWeightError{Message: "bad standard header magic"}
	}

	descBuf := make([]byte, raw.DescLen)
	if raw.DescLen > 0 {
		if _, err := io.ReadFull(r, descBuf); err != nil {
			return StandardHeader{}, fmt.Errorf("standard header description: %w", err)
		}
	}

	return StandardHeader{
		ArchHash:      raw.ArchHash,
		RuleMask:      raw.RuleMask,
		BoardSizeMask: raw.BoardSizeMask,
		Description:   string(descBuf),
	}, nil
}

// StandardHeaderWrapper reads the standard header, validates the result,
// and then delegates the remainder of the stream to Inner. Ported from
// StandardHeaderParserWarpper::load in weightloader.h.
type StandardHeaderWrapper[T any] struct {
	Inner    Loader[T]
	Validate HeaderValidator
	// LastHeader is populated after a successful Load, for callers that
	// want the parsed metadata (e.g. to Store into a MetadataCache).
	LastHeader StandardHeader
}

func (w *StandardHeaderWrapper[T]) NeedsBinaryStream() bool { return true }

func (w *StandardHeaderWrapper[T]) Load(r io.Reader) (*T, error) {
	header, err := ReadStandardHeader(r)
	if err != nil {
		return nil, err
	}

	if w.Validate != nil {
		if err := w.Validate(header); err != nil {
			return nil, err
		}
	}

	w.LastHeader = header
	return w.Inner.Load(r)
}

// CompressedWrapper decodes a zstd-compressed envelope before handing
// the decompressed stream to Inner. This is the Go/zstd substitute for
// weightloader.h's CompressedWrapper<BaseLoader>, which wraps an
// LZ4-backed Compressor; klauspost/compress/zstd is used throughout this
// module's binary I/O (see internal/tt's Dump/Load) so weight files and
// hash dumps share one compression story.
type CompressedWrapper[T any] struct {
	Inner Loader[T]
}

func (w *CompressedWrapper[T]) NeedsBinaryStream() bool { return true }

func (w *CompressedWrapper[T]) Load(r io.Reader) (*T, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("compressed weight: %w", err)
	}
	defer zr.Close()
	return w.Inner.Load(zr)
}
