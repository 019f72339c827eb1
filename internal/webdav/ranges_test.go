package webdav

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rutexd/minidav/internal/vfs"
)

func TestParseRangeForms(t *testing.T) {
	rng, err := parseRange("bytes=2-4", 10)
	require.NoError(t, err)
	assert.Equal(t, &vfs.Range{Start: 2, End: 4}, rng)

	rng, err = parseRange("bytes=5-", 10)
	require.NoError(t, err)
	assert.Equal(t, &vfs.Range{Start: 5, End: 9}, rng)

	rng, err = parseRange("bytes=-3", 10)
	require.NoError(t, err)
	assert.Equal(t, &vfs.Range{Start: 7, End: 9}, rng)

	// An oversized suffix covers the whole file.
	rng, err = parseRange("bytes=-100", 10)
	require.NoError(t, err)
	assert.Equal(t, &vfs.Range{Start: 0, End: 9}, rng)

	// An end past the file is clamped.
	rng, err = parseRange("bytes=8-99", 10)
	require.NoError(t, err)
	assert.Equal(t, &vfs.Range{Start: 8, End: 9}, rng)

	// No header means no range.
	rng, err = parseRange("", 10)
	require.NoError(t, err)
	assert.Nil(t, rng)
}

func TestParseRangeRejects(t *testing.T) {
	for _, header := range []string{
		"bytes=-0",
		"bytes=10-",
		"bytes=11-12",
		"bytes=5-4",
		"bytes=a-b",
		"bytes=1-2,4-5",
		"chunks=1-2",
		"bytes=",
	} {
		_, err := parseRange(header, 10)
		assert.Error(t, err, header)
	}
}

func TestParseRangeSingleByte(t *testing.T) {
	rng, err := parseRange("bytes=0-0", 1)
	require.NoError(t, err)
	assert.Equal(t, &vfs.Range{Start: 0, End: 0}, rng)
}

func TestParseContentRange(t *testing.T) {
	rng, err := parseContentRange("bytes 10-19/30")
	require.NoError(t, err)
	assert.Equal(t, &vfs.Range{Start: 10, End: 19, Total: 30}, rng)

	rng, err = parseContentRange("bytes 0-4/*")
	require.NoError(t, err)
	assert.Equal(t, &vfs.Range{Start: 0, End: 4}, rng)

	rng, err = parseContentRange("")
	require.NoError(t, err)
	assert.Nil(t, rng)
}

func TestParseContentRangeRejects(t *testing.T) {
	for _, header := range []string{
		"bytes 19-10/30",
		"bytes 10-19/15",
		"bytes x-y/30",
		"items 1-2/3",
		"bytes 1-2",
	} {
		_, err := parseContentRange(header)
		assert.Error(t, err, header)
	}
}
