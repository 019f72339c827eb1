package davxml

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"
)

// Multistatus is the 207 response document. Propstat contents are
// assembled as raw inner XML by PropBuilder because dead properties
// carry arbitrary qualified names the static type system can't spell.
type Multistatus struct {
	XMLName   xml.Name   `xml:"d:multistatus"`
	Xmlns     string     `xml:"xmlns:d,attr"`
	Responses []Response `xml:"d:response"`
}

// Response is one per-resource entry of a multistatus.
type Response struct {
	Href      string     `xml:"d:href"`
	Propstats []Propstat `xml:"d:propstat"`
}

// Propstat groups properties sharing one status.
type Propstat struct {
	Prop   InnerProp `xml:"d:prop"`
	Status string    `xml:"d:status"`
}

// InnerProp holds pre-rendered property XML.
type InnerProp struct {
	Inner string `xml:",innerxml"`
}

// NewMultistatus returns a document with the DAV namespace declared.
func NewMultistatus() *Multistatus {
	return &Multistatus{Xmlns: NamespaceDAV}
}

// Marshal renders the document with the XML header prepended.
func (ms *Multistatus) Marshal() ([]byte, error) {
	out, err := xml.MarshalIndent(ms, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal multistatus: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}

// StatusLine formats an HTTP status for a propstat element.
func StatusLine(code int, text string) string {
	return fmt.Sprintf("HTTP/1.1 %d %s", code, text)
}

// PropBuilder accumulates the inner XML of one d:prop element.
type PropBuilder struct {
	buf bytes.Buffer
}

// NewPropBuilder returns an empty builder.
func NewPropBuilder() *PropBuilder {
	return &PropBuilder{}
}

// Empty appends a self-closed DAV property element.
func (b *PropBuilder) Empty(local string) *PropBuilder {
	fmt.Fprintf(&b.buf, "<d:%s/>", local)
	return b
}

// Text appends a DAV property element with character data.
func (b *PropBuilder) Text(local, value string) *PropBuilder {
	fmt.Fprintf(&b.buf, "<d:%s>%s</d:%s>", local, EscapeText(value), local)
	return b
}

// Raw appends already-rendered XML verbatim.
func (b *PropBuilder) Raw(s string) *PropBuilder {
	b.buf.WriteString(s)
	return b
}

// Named appends a property with an arbitrary qualified name. DAV names
// reuse the document's d: prefix; foreign namespaces get a local
// declaration on the element itself.
func (b *PropBuilder) Named(name xml.Name, value string, empty bool) *PropBuilder {
	if name.Space == NamespaceDAV || name.Space == "" {
		if empty {
			return b.Empty(name.Local)
		}
		return b.Text(name.Local, value)
	}
	if empty {
		fmt.Fprintf(&b.buf, `<ns:%s xmlns:ns=%q/>`, name.Local, name.Space)
		return b
	}
	fmt.Fprintf(&b.buf, `<ns:%s xmlns:ns=%q>%s</ns:%s>`,
		name.Local, name.Space, EscapeText(value), name.Local)
	return b
}

// CollectionType appends a resourcetype marking a collection.
func (b *PropBuilder) CollectionType() *PropBuilder {
	b.buf.WriteString("<d:resourcetype><d:collection/></d:resourcetype>")
	return b
}

// SupportedLock appends the supportedlock advertisement: exclusive and
// shared write locks.
func (b *PropBuilder) SupportedLock() *PropBuilder {
	b.buf.WriteString("<d:supportedlock>" +
		"<d:lockentry><d:lockscope><d:exclusive/></d:lockscope><d:locktype><d:write/></d:locktype></d:lockentry>" +
		"<d:lockentry><d:lockscope><d:shared/></d:lockscope><d:locktype><d:write/></d:locktype></d:lockentry>" +
		"</d:supportedlock>")
	return b
}

// String returns the accumulated inner XML.
func (b *PropBuilder) String() string {
	return b.buf.String()
}

// Len reports how much XML has been accumulated.
func (b *PropBuilder) Len() int {
	return b.buf.Len()
}

// ActiveLock is the activelock element of a lockdiscovery.
type ActiveLock struct {
	XMLName   xml.Name  `xml:"d:activelock"`
	Scope     LockScope `xml:"d:lockscope"`
	Type      LockType  `xml:"d:locktype"`
	Depth     string    `xml:"d:depth"`
	Owner     string    `xml:"d:owner,omitempty"`
	Timeout   string    `xml:"d:timeout"`
	LockToken HrefValue `xml:"d:locktoken"`
	LockRoot  HrefValue `xml:"d:lockroot"`
}

// LockScope renders exclusive or shared.
type LockScope struct {
	Exclusive *struct{} `xml:"d:exclusive,omitempty"`
	Shared    *struct{} `xml:"d:shared,omitempty"`
}

// LockType renders the write lock type.
type LockType struct {
	Write struct{} `xml:"d:write"`
}

// HrefValue wraps a d:href child.
type HrefValue struct {
	Href string `xml:"d:href"`
}

// NewActiveLock assembles an activelock element.
func NewActiveLock(exclusive bool, depth string, owner, timeout, token, root string) ActiveLock {
	al := ActiveLock{
		Depth:     depth,
		Owner:     owner,
		Timeout:   timeout,
		LockToken: HrefValue{Href: token},
		LockRoot:  HrefValue{Href: root},
	}
	if exclusive {
		al.Scope.Exclusive = &struct{}{}
	} else {
		al.Scope.Shared = &struct{}{}
	}
	return al
}

// LockDiscoveryProp is the prop/lockdiscovery document returned by
// LOCK responses.
type LockDiscoveryProp struct {
	XMLName xml.Name     `xml:"d:prop"`
	Xmlns   string       `xml:"xmlns:d,attr"`
	Locks   []ActiveLock `xml:"d:lockdiscovery>d:activelock"`
}

// MarshalLockDiscovery renders the LOCK response body.
func MarshalLockDiscovery(locks []ActiveLock) ([]byte, error) {
	doc := LockDiscoveryProp{Xmlns: NamespaceDAV, Locks: locks}
	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal lockdiscovery: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}

// LockDiscoveryXML renders the activelock list as inner XML for
// embedding in a PROPFIND propstat.
func LockDiscoveryXML(locks []ActiveLock) (string, error) {
	var buf bytes.Buffer
	buf.WriteString("<d:lockdiscovery>")
	for _, al := range locks {
		out, err := xml.Marshal(al)
		if err != nil {
			return "", fmt.Errorf("marshal activelock: %w", err)
		}
		buf.Write(out)
	}
	buf.WriteString("</d:lockdiscovery>")
	return buf.String(), nil
}

// EscapeText escapes character data for embedding in built XML.
func EscapeText(s string) string {
	var buf strings.Builder
	if err := xml.EscapeText(&buf, []byte(s)); err != nil {
		return s
	}
	return buf.String()
}
