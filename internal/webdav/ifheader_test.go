package webdav

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIfHeaderNoTagList(t *testing.T) {
	h, err := parseIfHeader("(<opaquelocktoken:abc>)")
	require.NoError(t, err)
	require.Len(t, h.Lists, 1)
	assert.Equal(t, "", h.Lists[0].ResourceTag)
	assert.Equal(t, "opaquelocktoken:abc", h.Lists[0].Conditions[0].Token)
}

func TestParseIfHeaderTaggedList(t *testing.T) {
	h, err := parseIfHeader(`<http://host/a> (<opaquelocktoken:abc> [W/"etag1"])`)
	require.NoError(t, err)
	require.Len(t, h.Lists, 1)
	assert.Equal(t, "http://host/a", h.Lists[0].ResourceTag)
	require.Len(t, h.Lists[0].Conditions, 2)
	assert.Equal(t, "opaquelocktoken:abc", h.Lists[0].Conditions[0].Token)
	assert.Equal(t, `W/"etag1"`, h.Lists[0].Conditions[1].ETag)
}

func TestParseIfHeaderNot(t *testing.T) {
	h, err := parseIfHeader("(Not <opaquelocktoken:abc> <opaquelocktoken:def>)")
	require.NoError(t, err)
	require.Len(t, h.Lists, 1)
	conds := h.Lists[0].Conditions
	require.Len(t, conds, 2)
	assert.True(t, conds[0].Not)
	assert.False(t, conds[1].Not)

	// Negated tokens are not submissions.
	assert.Equal(t, []string{"opaquelocktoken:def"}, h.Tokens())
}

func TestParseIfHeaderMultipleLists(t *testing.T) {
	h, err := parseIfHeader("(<opaquelocktoken:a>) (<opaquelocktoken:b>)")
	require.NoError(t, err)
	assert.Len(t, h.Lists, 2)
	assert.Equal(t, []string{"opaquelocktoken:a", "opaquelocktoken:b"}, h.Tokens())
}

func TestParseIfHeaderEmpty(t *testing.T) {
	h, err := parseIfHeader("")
	require.NoError(t, err)
	assert.Nil(t, h)
	assert.Nil(t, h.Tokens())
}

func TestParseIfHeaderRejects(t *testing.T) {
	for _, header := range []string{
		"()",
		"(",
		"(<unterminated)",
		"<http://host/a>",
		"garbage",
		"(Not)",
	} {
		_, err := parseIfHeader(header)
		assert.Error(t, err, header)
	}
}

func TestSubmittedTokens(t *testing.T) {
	tokens := submittedTokens("<opaquelocktoken:hdr>", "(<opaquelocktoken:ifh>)")
	assert.Equal(t, []string{"opaquelocktoken:hdr", "opaquelocktoken:ifh"}, tokens)

	assert.Empty(t, submittedTokens("", ""))
	assert.Equal(t, []string{"raw-token"}, submittedTokens("raw-token", "not a header"))
}
