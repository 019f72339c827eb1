package davpath

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"/":             "/",
		"":              "/",
		"/a/b":          "/a/b",
		"/a/b/":         "/a/b",
		"//a///b":       "/a/b",
		"/a/./b/../c":   "/a/c",
		"/..":           "/",
		"/../../etc":    "/etc",
		"/a%20b/c":      "/a b/c",
		"/caf%C3%A9":    "/café",
		"a/relative":    "/a/relative",
		"/trailing///":  "/trailing",
		"/a/b/../../..": "/",
	}
	for input, want := range cases {
		assert.Equal(t, want, Normalize(input), "input %q", input)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{"/a/./b/../c", "/x//y/", "/..", "/a%2Fb"}
	for _, input := range inputs {
		once := Normalize(input)
		assert.Equal(t, once, Normalize(once), "input %q", input)
	}
}

func TestSplit(t *testing.T) {
	parent, name := Split("/a/b/c")
	assert.Equal(t, "/a/b", parent)
	assert.Equal(t, "c", name)

	parent, name = Split("/top")
	assert.Equal(t, "/", parent)
	assert.Equal(t, "top", name)

	parent, name = Split("/")
	assert.Equal(t, "/", parent)
	assert.Equal(t, "/", name)
}

func TestDescendants(t *testing.T) {
	assert.True(t, IsDescendant("/a", "/a/b"))
	assert.True(t, IsDescendant("/", "/a"))
	assert.False(t, IsDescendant("/a", "/a"))
	assert.False(t, IsDescendant("/a", "/ab"))
	assert.True(t, IsWithin("/a", "/a"))
	assert.True(t, IsWithin("/a", "/a/b/c"))
	assert.False(t, IsWithin("/a/b", "/a"))
}

func TestEncodeHref(t *testing.T) {
	assert.Equal(t, "/", EncodeHref("/"))
	assert.Equal(t, "/a/b", EncodeHref("/a/b"))
	assert.Equal(t, "/a%20b/c", EncodeHref("/a b/c"))
}
