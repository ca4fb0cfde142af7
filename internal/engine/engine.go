// Package engine pairs capture files with their position files, joins them
// against the credential index, and tracks what has been delivered.
package engine

import (
	"context"
	stderrors "errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hpungsan/gpsmap/internal/cache"
	"github.com/hpungsan/gpsmap/internal/errors"
	"github.com/hpungsan/gpsmap/internal/metrics"
	"github.com/hpungsan/gpsmap/internal/position"
	"github.com/hpungsan/gpsmap/internal/potfile"
)

// CaptureExt is the extension of capture files.
const CaptureExt = ".pcap"

// DefaultWorkers is the default number of concurrent position-file parses.
const DefaultWorkers = 4

type options struct {
	cacheSize int
	workers   int
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// Option configures an Engine.
type Option func(*options)

// WithCacheSize bounds the record cache.
func WithCacheSize(n int) Option {
	return func(o *options) { o.cacheSize = n }
}

// WithWorkers sets how many position files are parsed concurrently.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics records scan activity into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// Engine aggregates one handshakes directory.
type Engine struct {
	dir     string
	cache   *cache.RecordCache
	creds   atomic.Pointer[potfile.Index]
	workers int
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// pair is a capture file and its chosen companion position file.
type pair struct {
	capture  string
	position string
}

// parsed is the outcome of parsing one pair.
type parsed struct {
	rec position.Record
	err error
}

// New creates an engine for dir. The credential index is loaded on the first
// Scan or by an explicit LoadCredentials call.
func New(dir string, opts ...Option) (*Engine, error) {
	o := options{
		cacheSize: cache.DefaultSize,
		workers:   DefaultWorkers,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.workers <= 0 {
		o.workers = 1
	}

	c, err := cache.New(o.cacheSize)
	if err != nil {
		return nil, errors.NewInvalidRequest(err.Error())
	}

	return &Engine{
		dir:     dir,
		cache:   c,
		workers: o.workers,
		logger:  o.logger,
		metrics: o.metrics,
	}, nil
}

// Dir returns the handshakes directory.
func (e *Engine) Dir() string {
	return e.dir
}

// Credentials returns the current credential index, or nil if none was loaded.
func (e *Engine) Credentials() *potfile.Index {
	return e.creds.Load()
}

// CacheStats returns record cache counters.
func (e *Engine) CacheStats() cache.Stats {
	return e.cache.Stats()
}

// NewSession creates delivery state for one consumer.
func (e *Engine) NewSession() *Session {
	return NewSession()
}

// LoadCredentials rebuilds the credential index from the potfiles in the
// handshakes directory and returns the number of entries. Unreadable potfiles
// are logged and skipped; only a missing directory is an error.
func (e *Engine) LoadCredentials() (int, error) {
	if err := e.checkDir(); err != nil {
		return 0, err
	}
	idx := potfile.Load(e.dir, e.logger)
	e.creds.Store(idx)
	e.metrics.SetCredentials(idx.Len())
	e.logger.Info("loaded passwords from potfiles", zap.Int("count", idx.Len()))
	return idx.Len(), nil
}

// Scan builds the dataset for the handshakes directory.
//
// When incrementalOnly is true, position files already delivered in session
// are left out. Every delivered file is added to session; every file that fails
// to parse or validate is recorded in session's skipped set and the scan goes on.
// Only a missing or unreadable directory, or a cancelled ctx, fails the scan.
// A nil session behaves like a fresh one.
func (e *Engine) Scan(ctx context.Context, session *Session, incrementalOnly bool) (Dataset, error) {
	start := time.Now()
	if session == nil {
		session = NewSession()
	}
	log := e.logger.With(
		zap.String("scan", ulid.Make().String()),
		zap.String("session", session.ID()),
		zap.Bool("incremental", incrementalOnly),
	)
	log.Info("scanning", zap.String("dir", e.dir))

	creds := e.creds.Load()
	if creds == nil {
		if _, err := e.LoadCredentials(); err != nil {
			return nil, err
		}
		creds = e.creds.Load()
	}

	pairs, captures, err := e.pairs()
	if err != nil {
		return nil, err
	}
	found := len(pairs)

	if incrementalOnly {
		paths := make([]string, len(pairs))
		for i, p := range pairs {
			paths[i] = p.position
		}
		claimed := session.claim(paths)
		fresh := pairs[:0]
		for _, p := range pairs {
			if claimed[p.position] {
				fresh = append(fresh, p)
			}
		}
		pairs = fresh
	}
	log.Info("fetching positions",
		zap.Int("captures", captures),
		zap.Int("position_files", found),
		zap.Int("candidates", len(pairs)))

	results, err := e.parseAll(ctx, pairs)
	if err != nil {
		if incrementalOnly {
			for _, p := range pairs {
				session.release(p.position)
			}
		}
		return nil, err
	}

	data := make(Dataset, len(pairs))
	skipped := 0
	for i, p := range pairs {
		r := results[i]
		if r.err == nil && r.rec.MAC == "" {
			r.err = errors.NewValidation(p.position, "mac can't be parsed from filename")
		}
		if r.err != nil {
			skipped++
			if incrementalOnly {
				session.release(p.position)
			}
			session.markSkipped(p.position, r.err)
			e.metrics.ObserveSkip(string(errors.CodeOf(r.err)))
			log.Error("skipping position file",
				zap.String("path", p.position),
				zap.String("code", string(errors.CodeOf(r.err))),
				zap.Error(r.err))
			continue
		}
		ap := newAccessPoint(r.rec, creds)
		data[ap.key()] = ap
		session.markSent(p.position)
	}

	took := time.Since(start)
	e.metrics.ObserveScan(incrementalOnly, captures, len(data), took)
	log.Info("loaded positions",
		zap.Int("captures", captures),
		zap.Int("position_files", found),
		zap.Int("records", len(data)),
		zap.Int("skipped", skipped),
		zap.Duration("took", took))
	return data, nil
}

// parseAll parses every pair through the cache on a bounded worker pool.
// Each worker writes only its own slot of the result slice.
func (e *Engine) parseAll(ctx context.Context, pairs []pair) ([]parsed, error) {
	results := make([]parsed, len(pairs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, p := range pairs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rec, err := e.cache.Get(p.position, p.capture)
			results[i] = parsed{rec: rec, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// pairs lists the directory and pairs each capture file with its preferred
// position file. Capture files without one are dropped. It also returns the
// number of capture files seen.
func (e *Engine) pairs() ([]pair, int, error) {
	entries, err := os.ReadDir(e.dir)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, 0, errors.NewNotFound(e.dir)
		}
		return nil, 0, errors.NewIO(e.dir, err)
	}

	names := make(map[string]bool, len(entries))
	var captures []string
	for _, de := range entries {
		name := de.Name()
		names[name] = true
		if !de.IsDir() && strings.HasSuffix(name, CaptureExt) {
			captures = append(captures, name)
		}
	}

	var out []pair
	for _, name := range captures {
		base := strings.TrimSuffix(name, CaptureExt)
		for _, suffix := range position.Suffixes {
			if names[base+suffix] {
				out = append(out, pair{
					capture:  filepath.Join(e.dir, name),
					position: filepath.Join(e.dir, base+suffix),
				})
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].position < out[j].position })
	return out, len(captures), nil
}

// checkDir classifies a missing or inaccessible handshakes directory.
func (e *Engine) checkDir() error {
	info, err := os.Stat(e.dir)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return errors.NewNotFound(e.dir)
		}
		return errors.NewIO(e.dir, err)
	}
	if !info.IsDir() {
		return errors.NewIO(e.dir, stderrors.New("not a directory"))
	}
	return nil
}
