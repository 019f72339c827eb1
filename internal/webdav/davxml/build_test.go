package davxml

import (
	"encoding/xml"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMultistatusMarshal(t *testing.T) {
	ms := NewMultistatus()
	props := NewPropBuilder().
		Text("displayname", "x").
		CollectionType().
		String()
	ms.Responses = append(ms.Responses, Response{
		Href: "/a",
		Propstats: []Propstat{{
			Prop:   InnerProp{Inner: props},
			Status: StatusLine(200, "OK"),
		}},
	})

	out, err := ms.Marshal()
	require.NoError(t, err)
	s := string(out)
	assert.True(t, strings.HasPrefix(s, xml.Header))
	assert.Contains(t, s, `<d:multistatus xmlns:d="DAV:"`)
	assert.Contains(t, s, "<d:href>/a</d:href>")
	assert.Contains(t, s, "<d:displayname>x</d:displayname>")
	assert.Contains(t, s, "<d:collection/>")
	assert.Contains(t, s, "HTTP/1.1 200 OK")
}

func TestPropBuilderEscapes(t *testing.T) {
	out := NewPropBuilder().Text("displayname", `a<b>&"c`).String()
	assert.Contains(t, out, "a&lt;b&gt;&amp;")
	assert.NotContains(t, out, `<b>`)
}

func TestPropBuilderForeignNamespace(t *testing.T) {
	out := NewPropBuilder().
		Named(xml.Name{Space: "urn:example", Local: "author"}, "Jane", false).
		String()
	assert.Contains(t, out, `xmlns:ns="urn:example"`)
	assert.Contains(t, out, ">Jane</ns:author>")

	empty := NewPropBuilder().
		Named(xml.Name{Space: "urn:example", Local: "draft"}, "", true).
		String()
	assert.Contains(t, empty, `<ns:draft xmlns:ns="urn:example"/>`)
}

func TestSupportedLockAdvertisesBothScopes(t *testing.T) {
	out := NewPropBuilder().SupportedLock().String()
	assert.Contains(t, out, "<d:exclusive/>")
	assert.Contains(t, out, "<d:shared/>")
	assert.Contains(t, out, "<d:write/>")
}

func TestMarshalLockDiscovery(t *testing.T) {
	al := NewActiveLock(true, "infinity", "alice", "Second-60",
		"opaquelocktoken:abc", "http://host/a/x")
	out, err := MarshalLockDiscovery([]ActiveLock{al})
	require.NoError(t, err)
	s := string(out)
	assert.Contains(t, s, `<d:prop xmlns:d="DAV:"`)
	assert.Contains(t, s, "<d:lockdiscovery>")
	assert.Contains(t, s, "<d:exclusive></d:exclusive>")
	assert.Contains(t, s, "<d:depth>infinity</d:depth>")
	assert.Contains(t, s, "<d:href>opaquelocktoken:abc</d:href>")
	assert.Contains(t, s, "<d:timeout>Second-60</d:timeout>")
}

func TestLockDiscoveryXMLInline(t *testing.T) {
	al := NewActiveLock(false, "0", "bob", "Second-30",
		"opaquelocktoken:def", "http://host/b")
	out, err := LockDiscoveryXML([]ActiveLock{al})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "<d:lockdiscovery>"))
	assert.Contains(t, out, "<d:shared></d:shared>")
	assert.True(t, strings.HasSuffix(out, "</d:lockdiscovery>"))
}
