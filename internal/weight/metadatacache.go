package weight

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	badger "github.com/dgraph-io/badger/v4"
)

// MetadataCache persists parsed StandardHeader values keyed by file path
// and modification time, so a process that repeatedly opens the same
// weight file (e.g. a UI re-validating every available weight on
// startup) doesn't have to re-read and re-parse the header bytes each
// time.
type MetadataCache struct {
	db *badger.DB
}

// OpenMetadataCache opens (creating if necessary) a badger store at dir.
func OpenMetadataCache(dir string) (*MetadataCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("metadata cache: %w", err)
	}
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("metadata cache: %w", err)
	}
	return &MetadataCache{db: db}, nil
}

// Close releases the underlying badger store.
func (c *MetadataCache) Close() error {
	return c.db.Close()
}

func cacheKey(path string, modTime int64) []byte {
	return []byte(fmt.Sprintf("header:%s:%d", path, modTime))
}

// Lookup returns the cached header for path if one was stored for the
// file's current modification time, and (false, nil) on a cache miss or
// stale entry (caller should re-parse and call Store).
func (c *MetadataCache) Lookup(path string) (StandardHeader, bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return StandardHeader{}, false, fmt.Errorf("metadata cache: %w", err)
	}

	var header StandardHeader
	found := false
	err = c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(cacheKey(path, info.ModTime().UnixNano()))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if jerr := json.Unmarshal(val, &header); jerr != nil {
				return jerr
			}
			found = true
			return nil
		})
	})
	if err != nil {
		return StandardHeader{}, false, fmt.Errorf("metadata cache: %w", err)
	}
	return header, found, nil
}

// Store records header as the cached metadata for path at its current
// modification time.
func (c *MetadataCache) Store(path string, header StandardHeader) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("metadata cache: %w", err)
	}
	buf, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("metadata cache: %w", err)
	}
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(cacheKey(path, info.ModTime().UnixNano()), buf)
	})
}

// DefaultMetadataCacheDir places the cache under the user cache
// directory, XDG-aware via os.UserCacheDir.
func DefaultMetadataCacheDir() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("metadata cache dir: %w", err)
	}
	return filepath.Join(base, "rapfi-engine", "weight-metadata"), nil
}
