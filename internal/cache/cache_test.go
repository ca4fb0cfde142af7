package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/gpsmap/internal/errors"
	"github.com/hpungsan/gpsmap/internal/position"
)

func writePosition(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

// countingParser wraps position.Parse and counts invocations.
func countingParser(calls *atomic.Int64) ParseFunc {
	return func(path, capturePath string) (position.Record, error) {
		calls.Add(1)
		return position.Parse(path, capturePath)
	}
}

func TestNew_InvalidSize(t *testing.T) {
	_, err := New(0)
	require.Error(t, err)
}

func TestGet_MemoizesByPath(t *testing.T) {
	dir := t.TempDir()
	path := writePosition(t, dir, "home_aabbccddeeff.gps.json", `{"lat":48.1,"long":10.2}`)

	var calls atomic.Int64
	c, err := NewWithParser(8, countingParser(&calls))
	require.NoError(t, err)

	first, err := c.Get(path, "")
	require.NoError(t, err)
	second, err := c.Get(path, "")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), calls.Load())
	assert.Equal(t, Stats{Hits: 1, Misses: 1, Len: 1}, c.Stats())
}

func TestGet_ReparsesAfterModification(t *testing.T) {
	dir := t.TempDir()
	path := writePosition(t, dir, "home_aabbccddeeff.gps.json", `{"lat":48.1,"long":10.2}`)
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(path, old, old))

	c, err := New(8)
	require.NoError(t, err)

	rec, err := c.Get(path, "")
	require.NoError(t, err)
	assert.Equal(t, 48.1, rec.Latitude)

	require.NoError(t, os.WriteFile(path, []byte(`{"lat":51.5,"long":-0.12}`), 0600))

	rec, err = c.Get(path, "")
	require.NoError(t, err)
	assert.Equal(t, 51.5, rec.Latitude)
	assert.Equal(t, -0.12, rec.Longitude)
}

func TestGet_FailuresAreNotCached(t *testing.T) {
	dir := t.TempDir()
	path := writePosition(t, dir, "home_aabbccddeeff.gps.json", `{"lat":0,"long":10.2}`)

	var calls atomic.Int64
	c, err := NewWithParser(8, countingParser(&calls))
	require.NoError(t, err)

	_, err = c.Get(path, "")
	require.True(t, errors.Is(err, errors.ErrValidation))
	_, err = c.Get(path, "")
	require.True(t, errors.Is(err, errors.ErrValidation))

	assert.Equal(t, int64(2), calls.Load())
	assert.Equal(t, 0, c.Len())
}

func TestGet_MissingFile(t *testing.T) {
	c, err := New(8)
	require.NoError(t, err)

	_, err = c.Get(filepath.Join(t.TempDir(), "x_aabbccddeeff.gps.json"), "")
	require.True(t, errors.Is(err, errors.ErrIO))
}

func TestGet_EvictsLeastRecentlyUsed(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for i := 0; i < 3; i++ {
		paths = append(paths, writePosition(t, dir,
			fmt.Sprintf("ap%d_aabbccddee0%d.gps.json", i, i), `{"lat":1,"long":2}`))
	}

	var calls atomic.Int64
	c, err := NewWithParser(2, countingParser(&calls))
	require.NoError(t, err)

	for _, p := range paths {
		_, err := c.Get(p, "")
		require.NoError(t, err)
	}
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, int64(3), calls.Load())

	// paths[0] was evicted, paths[2] is still cached
	_, err = c.Get(paths[2], "")
	require.NoError(t, err)
	assert.Equal(t, int64(3), calls.Load())
	_, err = c.Get(paths[0], "")
	require.NoError(t, err)
	assert.Equal(t, int64(4), calls.Load())
}

func TestGet_ConcurrentAccess(t *testing.T) {
	dir := t.TempDir()
	path := writePosition(t, dir, "home_aabbccddeeff.gps.json", `{"lat":48.1,"long":10.2}`)

	c, err := New(8)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, err := c.Get(path, "")
			assert.NoError(t, err)
			assert.Equal(t, "aabbccddeeff", rec.MAC)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, c.Len())
}

func TestPurge(t *testing.T) {
	dir := t.TempDir()
	path := writePosition(t, dir, "home_aabbccddeeff.gps.json", `{"lat":48.1,"long":10.2}`)

	c, err := New(8)
	require.NoError(t, err)
	_, err = c.Get(path, "")
	require.NoError(t, err)

	c.Purge()
	assert.Equal(t, 0, c.Len())
}
