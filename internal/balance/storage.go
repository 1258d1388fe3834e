package balance

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mrz1836/finora/internal/fileutil"
)

const cacheFilePermissions = 0o600

// ErrCorruptCache indicates the cache file is malformed JSON.
var ErrCorruptCache = errors.New("balance cache file is corrupted")

// FileStorage persists a Cache between CLI invocations.
type FileStorage struct {
	path string
}

// NewFileStorage creates a file-backed cache storage at path.
func NewFileStorage(path string) *FileStorage {
	return &FileStorage{path: path}
}

// Path returns the cache file path.
func (s *FileStorage) Path() string {
	return s.path
}

// Save writes the cache atomically.
func (s *FileStorage) Save(cache *Cache) error {
	cache.mu.RLock()
	data, err := json.MarshalIndent(cache, "", "  ")
	cache.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshaling cache: %w", err)
	}

	if err := fileutil.WriteAtomic(s.path, data, cacheFilePermissions); err != nil {
		return fmt.Errorf("writing cache file: %w", err)
	}
	return nil
}

// Load reads the cache. A missing file yields an empty cache. A corrupt file
// is moved aside and an empty cache is returned alongside ErrCorruptCache.
func (s *FileStorage) Load() (*Cache, error) {
	data, err := fileutil.ReadOptional(s.path)
	if err != nil {
		return nil, fmt.Errorf("reading cache file: %w", err)
	}
	if data == nil {
		return NewCache(), nil
	}

	var cache Cache
	if err := json.Unmarshal(data, &cache); err != nil {
		corruptPath := fmt.Sprintf("%s.corrupt.%d", s.path, time.Now().UTC().UnixNano())
		if renameErr := os.Rename(s.path, corruptPath); renameErr != nil {
			return NewCache(), fmt.Errorf("%w: %w (also failed to move file: %w)", ErrCorruptCache, err, renameErr)
		}
		return NewCache(), fmt.Errorf("%w: %w (moved to %s)", ErrCorruptCache, err, corruptPath)
	}

	if cache.Entries == nil {
		cache.Entries = make(map[string]Entry)
	}
	return &cache, nil
}

// Delete removes the cache file.
func (s *FileStorage) Delete() error {
	if err := fileutil.RemoveIfExists(s.path); err != nil {
		return fmt.Errorf("removing cache file: %w", err)
	}
	return nil
}
