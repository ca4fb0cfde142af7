// Package cache memoizes parsed position files.
package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/hpungsan/gpsmap/internal/errors"
	"github.com/hpungsan/gpsmap/internal/position"
)

// DefaultSize is the default maximum number of cached records.
const DefaultSize = 2048

// ParseFunc parses a position file paired with a capture file.
type ParseFunc func(path, capturePath string) (position.Record, error)

// entry is a cached record plus the file state it was parsed from.
type entry struct {
	record      position.Record
	capturePath string
	modTime     time.Time
	size        int64
}

// Stats reports cache effectiveness.
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Len    int   `json:"len"`
}

// RecordCache is a bounded LRU of parsed position records keyed by absolute path.
// An entry is reused only while the file's modification time and size are
// unchanged; otherwise the file is parsed again. Failed parses are not cached.
// It is safe for concurrent use.
type RecordCache struct {
	lru    *lru.Cache[string, entry]
	parse  ParseFunc
	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a cache holding at most size records, parsing with position.Parse.
func New(size int) (*RecordCache, error) {
	return NewWithParser(size, position.Parse)
}

// NewWithParser creates a cache that uses parse to fill misses.
func NewWithParser(size int, parse ParseFunc) (*RecordCache, error) {
	if size <= 0 {
		return nil, fmt.Errorf("cache size must be positive, got %d", size)
	}
	l, err := lru.New[string, entry](size)
	if err != nil {
		return nil, err
	}
	return &RecordCache{lru: l, parse: parse}, nil
}

// Get returns the record for path, parsing it on a miss or when the file changed.
func (c *RecordCache) Get(path, capturePath string) (position.Record, error) {
	key, err := filepath.Abs(path)
	if err != nil {
		return position.Record{}, errors.NewIO(path, err)
	}

	info, err := os.Stat(key)
	if err != nil {
		c.lru.Remove(key)
		return position.Record{}, errors.NewIO(path, err)
	}

	if e, ok := c.lru.Get(key); ok &&
		e.capturePath == capturePath &&
		e.size == info.Size() &&
		e.modTime.Equal(info.ModTime()) {
		c.hits.Add(1)
		return e.record, nil
	}
	c.misses.Add(1)

	rec, err := c.parse(path, capturePath)
	if err != nil {
		c.lru.Remove(key)
		return position.Record{}, err
	}
	c.lru.Add(key, entry{
		record:      rec,
		capturePath: capturePath,
		modTime:     info.ModTime(),
		size:        info.Size(),
	})
	return rec, nil
}

// Len returns the number of cached records.
func (c *RecordCache) Len() int {
	return c.lru.Len()
}

// Purge drops every cached record.
func (c *RecordCache) Purge() {
	c.lru.Purge()
}

// Stats returns hit and miss counters since creation.
func (c *RecordCache) Stats() Stats {
	return Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Len:    c.lru.Len(),
	}
}
