package lock

import (
	"sync"

	"github.com/rutexd/minidav/internal/weberr"
)

// StreamMode selects how an in-flight body transfer holds a path.
type StreamMode int

const (
	StreamRead StreamMode = iota
	StreamWrite
)

type streamEntry struct {
	mode  StreamMode
	count int
}

// StreamTable guards in-flight body I/O per path: many concurrent
// readers, or exactly one writer, never both. It is orthogonal to the
// WebDAV locks above — those enforce the RFC 4918 authorization model,
// this one prevents intra-process transfer interleavings.
type StreamTable struct {
	mu      sync.Mutex
	entries map[string]*streamEntry
}

// NewStreamTable returns an empty table.
func NewStreamTable() *StreamTable {
	return &StreamTable{entries: make(map[string]*streamEntry)}
}

// Acquire takes a stream lock on path. Read succeeds when the path is
// free or already read-held; write succeeds only when the path is
// free. Contention surfaces as a Busy error so handlers can answer
// 503 with Retry-After.
func (t *StreamTable) Acquire(path string, mode StreamMode) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, held := t.entries[path]
	switch {
	case !held:
		t.entries[path] = &streamEntry{mode: mode, count: 1}
		return nil
	case mode == StreamRead && e.mode == StreamRead:
		e.count++
		return nil
	default:
		return weberr.New(weberr.Busy, "stream lock held on "+path)
	}
}

// Release drops one hold on path; the entry disappears at zero.
func (t *StreamTable) Release(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, held := t.entries[path]
	if !held {
		return
	}
	e.count--
	if e.count <= 0 {
		delete(t.entries, path)
	}
}

// Held reports whether any stream lock is currently held on path.
func (t *StreamTable) Held(path string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, held := t.entries[path]
	return held
}
