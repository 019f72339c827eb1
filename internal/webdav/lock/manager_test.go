package lock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rutexd/minidav/internal/weberr"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(Options{DefaultTimeout: 60, MaxTimeout: 3600})
	t.Cleanup(func() { m.Close() })
	return m
}

func TestCreateAndGet(t *testing.T) {
	m := newTestManager(t)

	l, err := m.Create("/a/x", "alice", ScopeExclusive, 0, 60)
	require.NoError(t, err)
	assert.Contains(t, l.Token, "opaquelocktoken:")
	assert.Equal(t, "/a/x", l.Path)

	got, ok := m.Get(l.Token)
	require.True(t, ok)
	assert.Equal(t, l.Token, got.Token)
	assert.Equal(t, ScopeExclusive, got.Scope)
}

func TestExclusiveConflicts(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Create("/a/x", "alice", ScopeExclusive, 0, 60)
	require.NoError(t, err)

	// Any second lock on the same path collides with an exclusive.
	_, err = m.Create("/a/x", "bob", ScopeExclusive, 0, 60)
	assert.Equal(t, weberr.Locked, weberr.KindOf(err))
	_, err = m.Create("/a/x", "bob", ScopeShared, 0, 60)
	assert.Equal(t, weberr.Locked, weberr.KindOf(err))
}

func TestSharedLocksCoexist(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Create("/a/x", "alice", ScopeShared, 0, 60)
	require.NoError(t, err)
	_, err = m.Create("/a/x", "bob", ScopeShared, 0, 60)
	require.NoError(t, err)

	// But an exclusive cannot join them.
	_, err = m.Create("/a/x", "carol", ScopeExclusive, 0, 60)
	assert.Equal(t, weberr.Locked, weberr.KindOf(err))
}

func TestDepthInfinityOverlap(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Create("/a", "alice", ScopeExclusive, DepthInfinity, 60)
	require.NoError(t, err)

	// The subtree is covered.
	_, err = m.Create("/a/b/c", "bob", ScopeExclusive, 0, 60)
	assert.Equal(t, weberr.Locked, weberr.KindOf(err))

	// A sibling tree is not.
	_, err = m.Create("/z", "bob", ScopeExclusive, 0, 60)
	assert.NoError(t, err)
}

func TestDepthZeroDoesNotCoverChildren(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Create("/a", "alice", ScopeExclusive, 0, 60)
	require.NoError(t, err)
	_, err = m.Create("/a/b", "bob", ScopeExclusive, 0, 60)
	assert.NoError(t, err)
}

func TestInfinityCandidateCollidesWithDescendantLock(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Create("/a/b/c", "alice", ScopeExclusive, 0, 60)
	require.NoError(t, err)
	_, err = m.Create("/a", "bob", ScopeExclusive, DepthInfinity, 60)
	assert.Equal(t, weberr.Locked, weberr.KindOf(err))
}

func TestRefresh(t *testing.T) {
	m := newTestManager(t)

	l, err := m.Create("/a/x", "alice", ScopeExclusive, 0, 60)
	require.NoError(t, err)

	refreshed, err := m.Refresh(l.Token, 120)
	require.NoError(t, err)
	assert.Equal(t, int64(120), refreshed.Timeout)
	assert.False(t, refreshed.Created.Before(l.Created))

	_, err = m.Refresh("opaquelocktoken:nope", 120)
	assert.Equal(t, weberr.NotFound, weberr.KindOf(err))
}

func TestExpiry(t *testing.T) {
	m := newTestManager(t)

	l, err := m.Create("/a/x", "alice", ScopeExclusive, 0, 60)
	require.NoError(t, err)

	// Backdate past the lease and observe lazy removal.
	m.mu.Lock()
	m.byToken[l.Token].Created = time.Now().Add(-2 * time.Minute)
	m.mu.Unlock()

	_, ok := m.Get(l.Token)
	assert.False(t, ok)
	assert.Equal(t, 0, m.Count())

	// The slot is free again.
	_, err = m.Create("/a/x", "bob", ScopeExclusive, 0, 60)
	assert.NoError(t, err)
}

func TestSweep(t *testing.T) {
	m := newTestManager(t)

	l1, err := m.Create("/a", "alice", ScopeExclusive, 0, 60)
	require.NoError(t, err)
	_, err = m.Create("/b", "bob", ScopeExclusive, 0, 60)
	require.NoError(t, err)

	m.mu.Lock()
	m.byToken[l1.Token].Created = time.Now().Add(-2 * time.Minute)
	m.mu.Unlock()

	assert.Equal(t, 1, m.Sweep())
	assert.Equal(t, 1, m.Count())
}

func TestUnsatisfied(t *testing.T) {
	m := newTestManager(t)

	l, err := m.Create("/a", "alice", ScopeExclusive, DepthInfinity, 60)
	require.NoError(t, err)
	child, err := m.Create("/z/inner", "bob", ScopeExclusive, 0, 60)
	require.NoError(t, err)

	assert.Len(t, m.Unsatisfied("/a/b", nil, false), 1)
	assert.Empty(t, m.Unsatisfied("/a/b", []string{l.Token}, false))

	// Subtree mode pulls in descendant locks.
	assert.Len(t, m.Unsatisfied("/z", nil, true), 1)
	assert.Empty(t, m.Unsatisfied("/z", []string{child.Token}, true))
	assert.Empty(t, m.Unsatisfied("/z", nil, false))
}

func TestPurgeTree(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Create("/a", "alice", ScopeShared, 0, 60)
	require.NoError(t, err)
	_, err = m.Create("/a/b", "bob", ScopeShared, 0, 60)
	require.NoError(t, err)
	_, err = m.Create("/c", "carol", ScopeShared, 0, 60)
	require.NoError(t, err)

	assert.Equal(t, 2, m.PurgeTree("/a"))
	assert.Equal(t, 1, m.Count())
	assert.Empty(t, m.Covering("/a/b"))
}

func TestRekeyMigratesExactMatch(t *testing.T) {
	m := newTestManager(t)

	l, err := m.Create("/a/x", "alice", ScopeExclusive, 0, 60)
	require.NoError(t, err)
	_, err = m.Create("/a/x/nested", "bob", ScopeShared, 0, 60)
	require.NoError(t, err)

	assert.Equal(t, 1, m.Rekey("/a/x", "/a/y"))

	// The exact-match lock moved, keeping its token.
	moved, ok := m.Get(l.Token)
	require.True(t, ok)
	assert.Equal(t, "/a/y", moved.Path)
	assert.Empty(t, m.Covering("/a/x"))
	assert.Len(t, m.Covering("/a/y"), 1)

	// The descendant lock went with the delete half of the move.
	assert.Equal(t, 1, m.Count())
}

func TestHasValidToken(t *testing.T) {
	m := newTestManager(t)

	l, err := m.Create("/a", "alice", ScopeExclusive, DepthInfinity, 60)
	require.NoError(t, err)

	assert.True(t, m.HasValidToken("/a", []string{l.Token}))
	assert.True(t, m.HasValidToken("/a/deep/child", []string{l.Token}))
	assert.False(t, m.HasValidToken("/other", []string{l.Token}))
	assert.False(t, m.HasValidToken("/a", []string{"opaquelocktoken:bogus"}))
}

func TestTimeoutClamped(t *testing.T) {
	m := newTestManager(t)

	l, err := m.Create("/a", "alice", ScopeShared, 0, 999999)
	require.NoError(t, err)
	assert.Equal(t, int64(3600), l.Timeout)

	l2, err := m.Create("/b", "alice", ScopeShared, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(60), l2.Timeout)
}
