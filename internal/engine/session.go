package engine

import (
	"sort"
	"sync"

	"github.com/oklog/ulid/v2"
)

// Session is caller-owned delivery state: which position files were already
// delivered and which failed to parse. Both sets only grow until Reset is
// called; Scan never clears them. A Session is safe for concurrent use.
type Session struct {
	id string

	mu      sync.RWMutex
	sent    map[string]struct{}
	skipped map[string]error
}

// NewSession creates an empty session with a fresh ULID.
func NewSession() *Session {
	return &Session{
		id:      ulid.Make().String(),
		sent:    make(map[string]struct{}),
		skipped: make(map[string]error),
	}
}

// ID returns the session's ULID.
func (s *Session) ID() string {
	return s.id
}

// Reset clears the delivered set, and the skipped set too when clearSkipped is true.
// Previously delivered files become eligible for incremental scans again.
func (s *Session) Reset(clearSkipped bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = make(map[string]struct{})
	if clearSkipped {
		s.skipped = make(map[string]error)
	}
}

// Sent returns the delivered position-file paths in sorted order.
func (s *Session) Sent() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.sent))
	for p := range s.sent {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Skipped returns a copy of the skipped paths and the error recorded for each.
func (s *Session) Skipped() map[string]error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]error, len(s.skipped))
	for p, err := range s.skipped {
		out[p] = err
	}
	return out
}

// IsSent reports whether path was already delivered.
func (s *Session) IsSent(path string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sent[path]
	return ok
}

// claim marks every path not yet delivered as sent and returns those paths.
// Concurrent incremental scans on one session never claim the same path.
func (s *Session) claim(paths []string) map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]bool, len(paths))
	for _, p := range paths {
		if _, ok := s.sent[p]; ok {
			continue
		}
		s.sent[p] = struct{}{}
		out[p] = true
	}
	return out
}

// release returns claimed paths that were not delivered.
func (s *Session) release(paths ...string) {
	s.mu.Lock()
	for _, p := range paths {
		delete(s.sent, p)
	}
	s.mu.Unlock()
}

func (s *Session) markSent(path string) {
	s.mu.Lock()
	s.sent[path] = struct{}{}
	s.mu.Unlock()
}

func (s *Session) markSkipped(path string, err error) {
	s.mu.Lock()
	s.skipped[path] = err
	s.mu.Unlock()
}
