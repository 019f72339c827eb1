package props

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rutexd/minidav/internal/vfs"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSetGetRemove(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "/f", "urn:example", "author")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "/f", "urn:example", "author", "Jane"))
	value, ok, err := s.Get(ctx, "/f", "urn:example", "author")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Jane", value)

	// Upsert overwrites.
	require.NoError(t, s.Set(ctx, "/f", "urn:example", "author", "Joe"))
	value, _, err = s.Get(ctx, "/f", "urn:example", "author")
	require.NoError(t, err)
	assert.Equal(t, "Joe", value)

	require.NoError(t, s.Remove(ctx, "/f", "urn:example", "author"))
	_, ok, err = s.Get(ctx, "/f", "urn:example", "author")
	require.NoError(t, err)
	assert.False(t, ok)

	// Removing again is harmless.
	assert.NoError(t, s.Remove(ctx, "/f", "urn:example", "author"))
}

func TestList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "/f", "urn:example", "a", "1"))
	require.NoError(t, s.Set(ctx, "/f", "urn:other", "b", "2"))
	require.NoError(t, s.Set(ctx, "/other", "urn:example", "c", "3"))

	all, err := s.List(ctx, "/f")
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, "1", all[vfs.PropKey{Namespace: "urn:example", Name: "a"}])
	assert.Equal(t, "2", all[vfs.PropKey{Namespace: "urn:other", Name: "b"}])
}

func TestDeleteTree(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "/a", "u", "k", "1"))
	require.NoError(t, s.Set(ctx, "/a/b", "u", "k", "2"))
	require.NoError(t, s.Set(ctx, "/ab", "u", "k", "3"))

	require.NoError(t, s.DeleteTree(ctx, "/a"))

	_, ok, err := s.Get(ctx, "/a", "u", "k")
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = s.Get(ctx, "/a/b", "u", "k")
	require.NoError(t, err)
	assert.False(t, ok)

	// The sibling sharing a name prefix survives.
	_, ok, err = s.Get(ctx, "/ab", "u", "k")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCopyAndMoveTree(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "/src", "u", "k", "root"))
	require.NoError(t, s.Set(ctx, "/src/child", "u", "k", "nested"))

	require.NoError(t, s.CopyTree(ctx, "/src", "/copy"))
	value, ok, err := s.Get(ctx, "/copy", "u", "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "root", value)
	value, _, err = s.Get(ctx, "/copy/child", "u", "k")
	require.NoError(t, err)
	assert.Equal(t, "nested", value)

	require.NoError(t, s.MoveTree(ctx, "/src", "/dst"))
	_, ok, err = s.Get(ctx, "/src", "u", "k")
	require.NoError(t, err)
	assert.False(t, ok)
	value, _, err = s.Get(ctx, "/dst/child", "u", "k")
	require.NoError(t, err)
	assert.Equal(t, "nested", value)
}

func TestValidateName(t *testing.T) {
	assert.NoError(t, ValidateName("urn:example", "author"))
	assert.Error(t, ValidateName("urn:example", ""))
	assert.Error(t, ValidateName("urn:example", "bad name"))
	assert.Error(t, ValidateName("urn:example", "bad<name"))
	assert.Error(t, ValidateName(`bad"ns`, "name"))
}
