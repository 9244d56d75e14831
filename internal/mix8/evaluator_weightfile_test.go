package mix8

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"

	"github.com/nguyencongminh090/Rapfi-engine/internal/board"
	weightpkg "github.com/nguyencongminh090/Rapfi-engine/internal/weight"
)

// writeHeaderOnlyWeightFile writes a zstd-compressed file containing just
// a standard header (no body). The header validator runs before the body
// loader touches the stream, so rejection tests never need the ~51MB of
// real weight data.
func writeHeaderOnlyWeightFile(t *testing.T, archHash, ruleMask, boardSizeMask uint32) string {
	t.Helper()

	var raw []byte
	raw = binary.LittleEndian.AppendUint32(raw, 0xacd8cc6a)
	raw = binary.LittleEndian.AppendUint32(raw, archHash)
	raw = binary.LittleEndian.AppendUint32(raw, ruleMask)
	raw = binary.LittleEndian.AppendUint32(raw, boardSizeMask)
	desc := "test weight"
	raw = binary.LittleEndian.AppendUint32(raw, uint32(len(desc)))
	raw = append(raw, desc...)

	path := filepath.Join(t.TempDir(), "header-only.bin.zst")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating weight file: %v", err)
	}
	zw, err := zstd.NewWriter(f)
	if err != nil {
		t.Fatalf("creating zstd writer: %v", err)
	}
	if _, err := zw.Write(raw); err != nil {
		t.Fatalf("writing header: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("closing zstd writer: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("closing weight file: %v", err)
	}
	return path
}

func TestNewEvaluatorRejectsUnsupportedRule(t *testing.T) {
	path := writeHeaderOnlyWeightFile(t, archHash(),
		board.Renju.RuleMaskBit(), 1<<15)

	reg := weightpkg.NewRegistry[Weight]()
	_, err := NewEvaluator(reg, 15, board.Freestyle, path, path)
	if err == nil {
		t.Fatalf("a renju-only weight file must be rejected under freestyle")
	}
	var ruleErr *weightpkg.UnsupportedRuleError
	if !errors.As(err, &ruleErr) {
		t.Fatalf("expected UnsupportedRuleError, got %v", err)
	}
	if ruleErr.Rule != board.Freestyle {
		t.Fatalf("error should name the requested rule, got %v", ruleErr.Rule)
	}
	if reg.Len() != 0 {
		t.Fatalf("a rejected weight must not stay registered, registry has %d entries", reg.Len())
	}
}

func TestNewEvaluatorRejectsUnsupportedBoardSize(t *testing.T) {
	path := writeHeaderOnlyWeightFile(t, archHash(),
		board.Freestyle.RuleMaskBit(), 1<<15)

	reg := weightpkg.NewRegistry[Weight]()
	_, err := NewEvaluator(reg, 9, board.Freestyle, path, path)
	var sizeErr *weightpkg.UnsupportedBoardSizeError
	if !errors.As(err, &sizeErr) {
		t.Fatalf("expected UnsupportedBoardSizeError, got %v", err)
	}
	if reg.Len() != 0 {
		t.Fatalf("a rejected weight must not stay registered, registry has %d entries", reg.Len())
	}
}

func TestNewEvaluatorRejectsArchitectureMismatch(t *testing.T) {
	path := writeHeaderOnlyWeightFile(t, archHash()^1,
		board.Freestyle.RuleMaskBit(), 1<<15)

	reg := weightpkg.NewRegistry[Weight]()
	_, err := NewEvaluator(reg, 15, board.Freestyle, path, path)
	var incompatErr *weightpkg.IncompatibleWeightError
	if !errors.As(err, &incompatErr) {
		t.Fatalf("expected IncompatibleWeightError, got %v", err)
	}
	if reg.Len() != 0 {
		t.Fatalf("a rejected weight must not stay registered, registry has %d entries", reg.Len())
	}
}
