package weight

import (
	"io"
	"os"
	"path/filepath"
	"testing"
)

type fakeWeight struct {
	N int32
}

type fakePODLoader struct {
	loadCount *int
}

func (l *fakePODLoader) NeedsBinaryStream() bool { return true }

func (l *fakePODLoader) Load(r io.Reader) (*fakeWeight, error) {
	*l.loadCount++
	buf := make([]byte, 4)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	n := int32(buf[0]) | int32(buf[1])<<8 | int32(buf[2])<<16 | int32(buf[3])<<24
	return &fakeWeight{N: n}, nil
}

func writeFakeWeightFile(t *testing.T, dir, name string, n int32) string {
	t.Helper()
	path := filepath.Join(dir, name)
	buf := []byte{byte(n), byte(n >> 8), byte(n >> 16), byte(n >> 24)}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatalf("write fake weight file: %v", err)
	}
	return path
}

func TestRegistrySharesSamePath(t *testing.T) {
	dir := t.TempDir()
	path := writeFakeWeightFile(t, dir, "a.bin", 42)

	loadCount := 0
	loader := &fakePODLoader{loadCount: &loadCount}
	reg := NewRegistry[fakeWeight]()

	w1, err := reg.Load(path, loader)
	if err != nil {
		t.Fatalf("first Load: %v", err)
	}
	w2, err := reg.Load(path, loader)
	if err != nil {
		t.Fatalf("second Load: %v", err)
	}

	if w1 != w2 {
		t.Fatalf("Load on the same path should return the same pointer")
	}
	if loadCount != 1 {
		t.Fatalf("loader should only decode once for a shared path, decoded %d times", loadCount)
	}
	if got := reg.RefCount(path); got != 2 {
		t.Fatalf("RefCount = %d, want 2", got)
	}

	reg.Unload(w1)
	if got := reg.RefCount(path); got != 1 {
		t.Fatalf("RefCount after one Unload = %d, want 1", got)
	}

	reg.Unload(w2)
	if got := reg.RefCount(path); got != 0 {
		t.Fatalf("RefCount after final Unload = %d, want 0", got)
	}
	if reg.Len() != 0 {
		t.Fatalf("registry should be empty after all references released, Len = %d", reg.Len())
	}
}

func TestRegistryDistinctPaths(t *testing.T) {
	dir := t.TempDir()
	pathA := writeFakeWeightFile(t, dir, "a.bin", 1)
	pathB := writeFakeWeightFile(t, dir, "b.bin", 2)

	loadCount := 0
	loader := &fakePODLoader{loadCount: &loadCount}
	reg := NewRegistry[fakeWeight]()

	wa, err := reg.Load(pathA, loader)
	if err != nil {
		t.Fatalf("Load a: %v", err)
	}
	wb, err := reg.Load(pathB, loader)
	if err != nil {
		t.Fatalf("Load b: %v", err)
	}

	if wa.N != 1 || wb.N != 2 {
		t.Fatalf("decoded values wrong: a=%d b=%d", wa.N, wb.N)
	}
	if reg.Len() != 2 {
		t.Fatalf("Len = %d, want 2 distinct entries", reg.Len())
	}
}

func TestRegistryLoadMissingFile(t *testing.T) {
	reg := NewRegistry[fakeWeight]()
	loadCount := 0
	loader := &fakePODLoader{loadCount: &loadCount}

	if _, err := reg.Load("/nonexistent/path/does/not/exist.bin", loader); err == nil {
		t.Fatalf("expected error loading a missing file")
	}
}

func TestPODLoaderRejectsTrailingData(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "oversized.bin")
	if err := os.WriteFile(path, []byte{1, 0, 0, 0, 0xff}, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	loader := &PODLoader[fakeWeight]{
		Size: 4,
		Decode: func(buf []byte) (*fakeWeight, error) {
			n := int32(buf[0]) | int32(buf[1])<<8 | int32(buf[2])<<16 | int32(buf[3])<<24
			return &fakeWeight{N: n}, nil
		},
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	if _, err := loader.Load(f); err == nil {
		t.Fatalf("expected rejection of trailing data after POD weight")
	}
}
