// Package lock implements RFC 4918 write locks and the in-process
// stream locks that serialize body I/O on a single path. A Manager
// owns two indexes (token -> lock, path -> token set) under one
// reader/writer mutex, plus a background sweep that removes expired
// locks every minute.
package lock

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rutexd/minidav/internal/webdav/davpath"
	"github.com/rutexd/minidav/internal/weberr"
)

// Scope is the WebDAV lock scope.
type Scope string

const (
	ScopeExclusive Scope = "exclusive"
	ScopeShared    Scope = "shared"
)

// DepthInfinity marks a lock covering the whole subtree below its
// path. The only other legal depth is 0.
const DepthInfinity = -1

// Lock is one active WebDAV write lock. Token is the immutable
// identity; Timeout and Created change on refresh.
type Lock struct {
	Token   string
	Path    string
	Owner   string
	Scope   Scope
	Depth   int
	Timeout int64
	Created time.Time
}

// ExpiresAt returns the instant the lock lapses.
func (l *Lock) ExpiresAt() time.Time {
	return l.Created.Add(time.Duration(l.Timeout) * time.Second)
}

// Expired reports whether the lock has lapsed at now.
func (l *Lock) Expired(now time.Time) bool {
	return now.After(l.ExpiresAt())
}

// Covers reports whether this lock overlaps an operation on p: the
// paths are equal, or the lock has depth infinity and p sits below it.
func (l *Lock) Covers(p string) bool {
	if l.Path == p {
		return true
	}
	return l.Depth == DepthInfinity && davpath.IsDescendant(l.Path, p)
}

// Options tune a Manager. Zero values fall back to defaults.
type Options struct {
	DefaultTimeout int64
	MaxTimeout     int64
	SweepInterval  time.Duration
	Persistence    *Persistence
	Logger         *logrus.Entry
}

// Manager owns all WebDAV locks of one engine instance. Construction
// starts the background sweeper; Close stops it.
type Manager struct {
	mu      sync.RWMutex
	byToken map[string]*Lock
	byPath  map[string]map[string]struct{}

	defaultTimeout int64
	maxTimeout     int64

	persistence *Persistence
	logger      *logrus.Entry

	done    chan struct{}
	closeMu sync.Once
}

// NewManager builds a Manager and starts its sweep goroutine.
func NewManager(opts Options) *Manager {
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = 3600
	}
	if opts.MaxTimeout <= 0 {
		opts.MaxTimeout = 86400
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = 60 * time.Second
	}
	if opts.Logger == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		opts.Logger = logrus.NewEntry(discard)
	}

	m := &Manager{
		byToken:        make(map[string]*Lock),
		byPath:         make(map[string]map[string]struct{}),
		defaultTimeout: opts.DefaultTimeout,
		maxTimeout:     opts.MaxTimeout,
		persistence:    opts.Persistence,
		logger:         opts.Logger,
		done:           make(chan struct{}),
	}

	if m.persistence != nil {
		if err := m.restoreFromPersistence(); err != nil {
			m.logger.WithError(err).Warn("failed to restore locks")
		}
	}

	go m.sweepLoop(opts.SweepInterval)
	return m
}

// Close stops the sweeper and flushes persistence, if configured.
func (m *Manager) Close() error {
	m.closeMu.Do(func() { close(m.done) })
	if m.persistence != nil {
		return m.persistence.Close()
	}
	return nil
}

func (m *Manager) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				m.logger.WithField("count", n).Debug("swept expired locks")
			}
		}
	}
}

func newToken() string {
	return fmt.Sprintf("opaquelocktoken:%s", uuid.New().String())
}

// clampTimeout applies the configured bounds to a requested timeout.
func (m *Manager) clampTimeout(timeout int64) int64 {
	if timeout <= 0 {
		return m.defaultTimeout
	}
	if timeout > m.maxTimeout {
		return m.maxTimeout
	}
	return timeout
}

// Create allocates a fresh lock on path. It fails with a Locked error
// when an overlapping lock denies the requested scope: exclusive needs
// no overlap at all, shared tolerates overlapping shared locks only.
func (m *Manager) Create(path, owner string, scope Scope, depth int, timeout int64) (*Lock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if conflict := m.conflictLocked(path, scope, depth, time.Now()); conflict != nil {
		return nil, weberr.New(weberr.Locked, "conflicting lock "+conflict.Token+" on "+conflict.Path)
	}

	l := &Lock{
		Token:   newToken(),
		Path:    path,
		Owner:   owner,
		Scope:   scope,
		Depth:   depth,
		Timeout: m.clampTimeout(timeout),
		Created: time.Now(),
	}
	m.insertLocked(l)

	if m.persistence != nil {
		if err := m.persistence.Save(l); err != nil {
			m.logger.WithError(err).Warn("failed to persist lock")
		}
	}
	return l, nil
}

// conflictLocked returns an active lock that denies a new lock of the
// given scope on path, or nil. A candidate at depth infinity also
// collides with locks anywhere below path.
func (m *Manager) conflictLocked(path string, scope Scope, depth int, now time.Time) *Lock {
	for _, l := range m.byToken {
		if l.Expired(now) {
			continue
		}
		overlaps := l.Covers(path) ||
			(depth == DepthInfinity && davpath.IsDescendant(path, l.Path))
		if !overlaps {
			continue
		}
		if scope == ScopeExclusive || l.Scope == ScopeExclusive {
			return l
		}
	}
	return nil
}

func (m *Manager) insertLocked(l *Lock) {
	m.byToken[l.Token] = l
	set, ok := m.byPath[l.Path]
	if !ok {
		set = make(map[string]struct{})
		m.byPath[l.Path] = set
	}
	set[l.Token] = struct{}{}
}

func (m *Manager) removeLocked(token string) bool {
	l, ok := m.byToken[token]
	if !ok {
		return false
	}
	delete(m.byToken, token)
	if set, ok := m.byPath[l.Path]; ok {
		delete(set, token)
		if len(set) == 0 {
			delete(m.byPath, l.Path)
		}
	}
	if m.persistence != nil {
		if err := m.persistence.Delete(token); err != nil {
			m.logger.WithError(err).Warn("failed to delete persisted lock")
		}
	}
	return true
}

// Get resolves a token to its lock. An expired lock is purged on
// observation and reported as missing.
func (m *Manager) Get(token string) (*Lock, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.byToken[token]
	if !ok {
		return nil, false
	}
	if l.Expired(time.Now()) {
		m.removeLocked(token)
		return nil, false
	}
	cp := *l
	return &cp, true
}

// Refresh updates the lease of an existing lock and resets its clock.
func (m *Manager) Refresh(token string, timeout int64) (*Lock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.byToken[token]
	if !ok {
		return nil, weberr.New(weberr.NotFound, "lock token not found")
	}
	if l.Expired(time.Now()) {
		m.removeLocked(token)
		return nil, weberr.New(weberr.NotFound, "lock has expired")
	}
	l.Timeout = m.clampTimeout(timeout)
	l.Created = time.Now()
	if m.persistence != nil {
		if err := m.persistence.Save(l); err != nil {
			m.logger.WithError(err).Warn("failed to persist refreshed lock")
		}
	}
	cp := *l
	return &cp, nil
}

// Remove deletes the lock identified by token from both indexes.
func (m *Manager) Remove(token string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removeLocked(token)
}

// Covering returns the active locks that overlap an operation on path:
// exact-path locks plus ancestor locks at depth infinity.
func (m *Manager) Covering(path string) []*Lock {
	m.mu.RLock()
	defer m.mu.RUnlock()
	now := time.Now()
	var out []*Lock
	for _, l := range m.byToken {
		if l.Expired(now) || !l.Covers(path) {
			continue
		}
		cp := *l
		out = append(out, &cp)
	}
	return out
}

// HasValidToken reports whether any of tokens authorizes an operation
// on path.
func (m *Manager) HasValidToken(path string, tokens []string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	now := time.Now()
	for _, t := range tokens {
		l, ok := m.byToken[t]
		if ok && !l.Expired(now) && l.Covers(path) {
			return true
		}
	}
	return false
}

// Unsatisfied returns the active locks governing an operation on path
// that none of the supplied tokens match. With subtree set, locks on
// descendants of path are governed too (DELETE and MOVE of a
// collection must satisfy every lock inside it).
func (m *Manager) Unsatisfied(path string, tokens []string, subtree bool) []*Lock {
	m.mu.RLock()
	defer m.mu.RUnlock()
	now := time.Now()
	supplied := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		supplied[t] = struct{}{}
	}
	var out []*Lock
	for _, l := range m.byToken {
		if l.Expired(now) {
			continue
		}
		governs := l.Covers(path) || (subtree && davpath.IsDescendant(path, l.Path))
		if !governs {
			continue
		}
		if _, ok := supplied[l.Token]; ok {
			continue
		}
		cp := *l
		out = append(out, &cp)
	}
	return out
}

// PurgeTree removes every lock whose path equals or sits below path.
func (m *Manager) PurgeTree(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	var victims []string
	for token, l := range m.byToken {
		if davpath.IsWithin(path, l.Path) {
			victims = append(victims, token)
		}
	}
	for _, token := range victims {
		m.removeLocked(token)
	}
	return len(victims)
}

// Rekey migrates locks whose path matches src exactly onto dst,
// re-keying the path index. Locks below src are purged, matching the
// delete half of a move.
func (m *Manager) Rekey(src, dst string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	var migrated []string
	var purged []string
	for token, l := range m.byToken {
		switch {
		case l.Path == src:
			migrated = append(migrated, token)
		case davpath.IsDescendant(src, l.Path):
			purged = append(purged, token)
		}
	}
	for _, token := range purged {
		m.removeLocked(token)
	}
	for _, token := range migrated {
		l := m.byToken[token]
		if set, ok := m.byPath[src]; ok {
			delete(set, token)
			if len(set) == 0 {
				delete(m.byPath, src)
			}
		}
		l.Path = dst
		set, ok := m.byPath[dst]
		if !ok {
			set = make(map[string]struct{})
			m.byPath[dst] = set
		}
		set[token] = struct{}{}
		if m.persistence != nil {
			if err := m.persistence.Save(l); err != nil {
				m.logger.WithError(err).Warn("failed to persist migrated lock")
			}
		}
	}
	return len(migrated)
}

// Sweep removes every expired lock and returns how many it found.
func (m *Manager) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	var victims []string
	for token, l := range m.byToken {
		if l.Expired(now) {
			victims = append(victims, token)
		}
	}
	for _, token := range victims {
		m.removeLocked(token)
	}
	if m.persistence != nil {
		if _, err := m.persistence.DeleteExpired(now); err != nil {
			m.logger.WithError(err).Warn("failed to sweep persisted locks")
		}
	}
	return len(victims)
}

// Count returns the number of active locks.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	now := time.Now()
	n := 0
	for _, l := range m.byToken {
		if !l.Expired(now) {
			n++
		}
	}
	return n
}

func (m *Manager) restoreFromPersistence() error {
	locks, err := m.persistence.LoadAll()
	if err != nil {
		return err
	}
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	restored := 0
	for _, l := range locks {
		if l.Expired(now) {
			continue
		}
		m.insertLocked(l)
		restored++
	}
	m.logger.WithField("count", restored).Info("restored locks")
	return nil
}
