package weight

import (
	"os"
	"path/filepath"
	"testing"
)

func TestMetadataCacheStoreAndLookup(t *testing.T) {
	tmpDir := t.TempDir()

	cache, err := OpenMetadataCache(filepath.Join(tmpDir, "cache"))
	if err != nil {
		t.Fatalf("OpenMetadataCache: %v", err)
	}
	defer cache.Close()

	weightPath := filepath.Join(tmpDir, "weight.bin")
	if err := os.WriteFile(weightPath, []byte{1, 2, 3, 4}, 0o644); err != nil {
		t.Fatalf("write weight file: %v", err)
	}

	if _, found, err := cache.Lookup(weightPath); err != nil {
		t.Fatalf("Lookup on empty cache: %v", err)
	} else if found {
		t.Fatalf("expected cache miss before any Store")
	}

	header := StandardHeader{ArchHash: 123, RuleMask: 0b111, BoardSizeMask: 1 << 15, Description: "mix8"}
	if err := cache.Store(weightPath, header); err != nil {
		t.Fatalf("Store: %v", err)
	}

	got, found, err := cache.Lookup(weightPath)
	if err != nil {
		t.Fatalf("Lookup after Store: %v", err)
	}
	if !found {
		t.Fatalf("expected cache hit after Store")
	}
	if got != header {
		t.Fatalf("Lookup returned %+v, want %+v", got, header)
	}
}

func TestMetadataCacheMissForDifferentFile(t *testing.T) {
	tmpDir := t.TempDir()
	cache, err := OpenMetadataCache(filepath.Join(tmpDir, "cache"))
	if err != nil {
		t.Fatalf("OpenMetadataCache: %v", err)
	}
	defer cache.Close()

	pathA := filepath.Join(tmpDir, "a.bin")
	pathB := filepath.Join(tmpDir, "b.bin")
	if err := os.WriteFile(pathA, []byte{1, 2, 3, 4}, 0o644); err != nil {
		t.Fatalf("write a: %v", err)
	}
	if err := os.WriteFile(pathB, []byte{5, 6, 7, 8}, 0o644); err != nil {
		t.Fatalf("write b: %v", err)
	}

	if err := cache.Store(pathA, StandardHeader{ArchHash: 1}); err != nil {
		t.Fatalf("Store a: %v", err)
	}

	if _, found, err := cache.Lookup(pathB); err != nil {
		t.Fatalf("Lookup b: %v", err)
	} else if found {
		t.Fatalf("expected b to miss: only a was stored")
	}
}

func TestDefaultMetadataCacheDir(t *testing.T) {
	dir, err := DefaultMetadataCacheDir()
	if err != nil {
		t.Fatalf("DefaultMetadataCacheDir: %v", err)
	}
	if dir == "" {
		t.Fatalf("DefaultMetadataCacheDir returned empty path")
	}
}
