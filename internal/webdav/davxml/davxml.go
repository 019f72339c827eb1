// Package davxml parses PROPFIND, PROPPATCH, and LOCK request bodies
// and builds multistatus and lock-discovery responses. The parsers are
// namespace-prefix tolerant: D:, d:, and unprefixed DAV elements are
// accepted interchangeably. The builders emit the d: prefix and
// declare xmlns:d="DAV:" on the document element.
package davxml

import "encoding/xml"

// NamespaceDAV is the WebDAV XML namespace.
const NamespaceDAV = "DAV:"

// PropfindMode says which of the three request shapes the body used.
type PropfindMode int

const (
	// PropfindAllprop requests all live properties. An empty body
	// means allprop too.
	PropfindAllprop PropfindMode = iota
	// PropfindPropname requests property names only.
	PropfindPropname
	// PropfindProp requests the explicit list in Props.
	PropfindProp
)

// Propfind is a parsed PROPFIND request body.
type Propfind struct {
	Mode  PropfindMode
	Props []xml.Name
}

// PropertyUpdate is a parsed PROPPATCH body: the set and remove blocks
// in document order.
type PropertyUpdate struct {
	Ops []PropertyOp
}

// PropertyOpAction distinguishes set from remove.
type PropertyOpAction string

const (
	ActionSet    PropertyOpAction = "set"
	ActionRemove PropertyOpAction = "remove"
)

// PropertyOp is one set or remove block.
type PropertyOp struct {
	Action PropertyOpAction
	Props  []PropertyValue
}

// PropertyValue is one property inside a set/remove block. Value holds
// the element's character data; it is empty for remove operations.
type PropertyValue struct {
	Name  xml.Name
	Value string
}

// LockInfo is a parsed LOCK request body.
type LockInfo struct {
	Exclusive bool
	Owner     string
}
