package davxml

import (
	"encoding/xml"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePropfindEmptyBodyIsAllprop(t *testing.T) {
	pf, err := ParsePropfind(nil)
	require.NoError(t, err)
	assert.Equal(t, PropfindAllprop, pf.Mode)

	pf, err = ParsePropfind([]byte("   \n"))
	require.NoError(t, err)
	assert.Equal(t, PropfindAllprop, pf.Mode)
}

func TestParsePropfindShapes(t *testing.T) {
	pf, err := ParsePropfind([]byte(`<?xml version="1.0"?>
		<D:propfind xmlns:D="DAV:"><D:allprop/></D:propfind>`))
	require.NoError(t, err)
	assert.Equal(t, PropfindAllprop, pf.Mode)

	pf, err = ParsePropfind([]byte(`<d:propfind xmlns:d="DAV:"><d:propname/></d:propfind>`))
	require.NoError(t, err)
	assert.Equal(t, PropfindPropname, pf.Mode)

	pf, err = ParsePropfind([]byte(`<D:propfind xmlns:D="DAV:">
		<D:prop><D:getetag/><D:displayname/></D:prop>
	</D:propfind>`))
	require.NoError(t, err)
	assert.Equal(t, PropfindProp, pf.Mode)
	require.Len(t, pf.Props, 2)
	assert.Equal(t, xml.Name{Space: "DAV:", Local: "getetag"}, pf.Props[0])
}

func TestParsePropfindUnprefixed(t *testing.T) {
	pf, err := ParsePropfind([]byte(`<propfind><prop><getcontentlength/></prop></propfind>`))
	require.NoError(t, err)
	assert.Equal(t, PropfindProp, pf.Mode)
	require.Len(t, pf.Props, 1)
	assert.Equal(t, "getcontentlength", pf.Props[0].Local)
	assert.Equal(t, "DAV:", pf.Props[0].Space)
}

func TestParsePropfindForeignNamespaceProp(t *testing.T) {
	pf, err := ParsePropfind([]byte(`<D:propfind xmlns:D="DAV:" xmlns:z="urn:example">
		<D:prop><z:author/></D:prop>
	</D:propfind>`))
	require.NoError(t, err)
	require.Len(t, pf.Props, 1)
	assert.Equal(t, xml.Name{Space: "urn:example", Local: "author"}, pf.Props[0])
}

func TestParsePropfindRejectsGarbage(t *testing.T) {
	_, err := ParsePropfind([]byte(`<not-propfind/>`))
	assert.Error(t, err)

	_, err = ParsePropfind([]byte(`<D:propfind xmlns:D="DAV:">`))
	assert.Error(t, err)
}

func TestParsePropertyUpdateOrder(t *testing.T) {
	pu, err := ParsePropertyUpdate([]byte(`<?xml version="1.0"?>
		<D:propertyupdate xmlns:D="DAV:" xmlns:z="urn:example">
			<D:set><D:prop><z:author>Jane</z:author></D:prop></D:set>
			<D:remove><D:prop><z:draft/></D:prop></D:remove>
			<D:set><D:prop><z:status>done</z:status></D:prop></D:set>
		</D:propertyupdate>`))
	require.NoError(t, err)
	require.Len(t, pu.Ops, 3)
	assert.Equal(t, ActionSet, pu.Ops[0].Action)
	assert.Equal(t, ActionRemove, pu.Ops[1].Action)
	assert.Equal(t, ActionSet, pu.Ops[2].Action)

	require.Len(t, pu.Ops[0].Props, 1)
	assert.Equal(t, "author", pu.Ops[0].Props[0].Name.Local)
	assert.Equal(t, "urn:example", pu.Ops[0].Props[0].Name.Space)
	assert.Equal(t, "Jane", pu.Ops[0].Props[0].Value)
	assert.Equal(t, "draft", pu.Ops[1].Props[0].Name.Local)
}

func TestParsePropertyUpdateRejectsEmpty(t *testing.T) {
	_, err := ParsePropertyUpdate(nil)
	assert.Error(t, err)

	_, err = ParsePropertyUpdate([]byte(`<D:wrong xmlns:D="DAV:"/>`))
	assert.Error(t, err)
}

func TestParseLockInfo(t *testing.T) {
	li, err := ParseLockInfo([]byte(`<?xml version="1.0"?>
		<D:lockinfo xmlns:D="DAV:">
			<D:lockscope><D:exclusive/></D:lockscope>
			<D:locktype><D:write/></D:locktype>
			<D:owner><D:href>http://example.org/~u</D:href></D:owner>
		</D:lockinfo>`))
	require.NoError(t, err)
	assert.True(t, li.Exclusive)
	assert.Equal(t, "http://example.org/~u", li.Owner)
}

func TestParseLockInfoShared(t *testing.T) {
	li, err := ParseLockInfo([]byte(`<lockinfo>
		<lockscope><shared/></lockscope>
		<locktype><write/></locktype>
		<owner>plain text owner</owner>
	</lockinfo>`))
	require.NoError(t, err)
	assert.False(t, li.Exclusive)
	assert.Equal(t, "plain text owner", li.Owner)
}

func TestParseLockInfoRejectsNonWrite(t *testing.T) {
	_, err := ParseLockInfo([]byte(`<D:lockinfo xmlns:D="DAV:">
		<D:lockscope><D:exclusive/></D:lockscope>
		<D:locktype><D:read/></D:locktype>
	</D:lockinfo>`))
	assert.Error(t, err)
}

func TestParseLockInfoRejectsEmpty(t *testing.T) {
	_, err := ParseLockInfo(nil)
	assert.Error(t, err)
}
