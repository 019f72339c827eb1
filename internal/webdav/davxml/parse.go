package davxml

import (
	"bytes"
	"encoding/xml"
	"io"
	"strings"

	"github.com/rutexd/minidav/internal/weberr"
)

// isDAV matches an element name against a DAV local name, accepting
// the DAV: namespace or no namespace at all. This is what makes the
// parser tolerant of D:, d:, and bare prefixes.
func isDAV(n xml.Name, local string) bool {
	if !strings.EqualFold(n.Local, local) {
		return false
	}
	return n.Space == NamespaceDAV || n.Space == ""
}

// ParsePropfind parses a PROPFIND body. A nil or empty body means
// allprop.
func ParsePropfind(body []byte) (*Propfind, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return &Propfind{Mode: PropfindAllprop}, nil
	}

	dec := xml.NewDecoder(bytes.NewReader(body))
	pf := &Propfind{Mode: PropfindAllprop}
	sawRoot := false
	depth := 0
	inProp := false

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, weberr.Wrap(weberr.BadRequest, "malformed propfind body", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			switch {
			case depth == 1:
				if !isDAV(t.Name, "propfind") {
					return nil, weberr.New(weberr.BadRequest, "expected propfind root element")
				}
				sawRoot = true
			case depth == 2:
				switch {
				case isDAV(t.Name, "allprop"):
					pf.Mode = PropfindAllprop
				case isDAV(t.Name, "propname"):
					pf.Mode = PropfindPropname
				case isDAV(t.Name, "prop"):
					pf.Mode = PropfindProp
					inProp = true
				}
			case depth == 3 && inProp:
				pf.Props = append(pf.Props, normalizeName(t.Name))
			}
		case xml.EndElement:
			if depth == 2 && isDAV(t.Name, "prop") {
				inProp = false
			}
			depth--
		}
	}
	if !sawRoot {
		return nil, weberr.New(weberr.BadRequest, "empty propfind document")
	}
	return pf, nil
}

// ParsePropertyUpdate parses a PROPPATCH propertyupdate body,
// preserving the document order of set and remove blocks.
func ParsePropertyUpdate(body []byte) (*PropertyUpdate, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, weberr.New(weberr.BadRequest, "empty propertyupdate body")
	}

	dec := xml.NewDecoder(bytes.NewReader(body))
	pu := &PropertyUpdate{}
	sawRoot := false
	depth := 0
	var current *PropertyOp
	var pending *PropertyValue
	var text strings.Builder
	propDepth := 0

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, weberr.Wrap(weberr.BadRequest, "malformed propertyupdate body", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			switch {
			case depth == 1:
				if !isDAV(t.Name, "propertyupdate") {
					return nil, weberr.New(weberr.BadRequest, "expected propertyupdate root element")
				}
				sawRoot = true
			case depth == 2:
				switch {
				case isDAV(t.Name, "set"):
					pu.Ops = append(pu.Ops, PropertyOp{Action: ActionSet})
					current = &pu.Ops[len(pu.Ops)-1]
				case isDAV(t.Name, "remove"):
					pu.Ops = append(pu.Ops, PropertyOp{Action: ActionRemove})
					current = &pu.Ops[len(pu.Ops)-1]
				default:
					current = nil
				}
			case depth == 4 && current != nil:
				pending = &PropertyValue{Name: normalizeName(t.Name)}
				text.Reset()
				propDepth = depth
			case pending != nil && depth > propDepth:
				// Nested markup inside a property value is flattened
				// to its character data.
			}
		case xml.CharData:
			if pending != nil {
				text.Write(t)
			}
		case xml.EndElement:
			if pending != nil && depth == propDepth {
				pending.Value = strings.TrimSpace(text.String())
				current.Props = append(current.Props, *pending)
				pending = nil
			}
			depth--
		}
	}
	if !sawRoot {
		return nil, weberr.New(weberr.BadRequest, "empty propertyupdate document")
	}
	return pu, nil
}

// ParseLockInfo parses a LOCK request body. The only lock type the
// protocol defines is write, so anything else is rejected.
func ParseLockInfo(body []byte) (*LockInfo, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, weberr.New(weberr.BadRequest, "empty lockinfo body")
	}

	dec := xml.NewDecoder(bytes.NewReader(body))
	li := &LockInfo{}
	sawRoot := false
	sawScope := false
	badType := false
	depth := 0
	section := ""
	var ownerText strings.Builder
	inOwner := false

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, weberr.Wrap(weberr.BadRequest, "malformed lockinfo body", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			switch {
			case depth == 1:
				if !isDAV(t.Name, "lockinfo") {
					return nil, weberr.New(weberr.BadRequest, "expected lockinfo root element")
				}
				sawRoot = true
			case depth == 2:
				switch {
				case isDAV(t.Name, "lockscope"):
					section = "scope"
				case isDAV(t.Name, "locktype"):
					section = "type"
				case isDAV(t.Name, "owner"):
					section = "owner"
					inOwner = true
				default:
					section = ""
				}
			case depth == 3:
				switch section {
				case "scope":
					sawScope = true
					li.Exclusive = isDAV(t.Name, "exclusive")
				case "type":
					if !isDAV(t.Name, "write") {
						badType = true
					}
				}
			}
		case xml.CharData:
			if inOwner {
				ownerText.Write(t)
			}
		case xml.EndElement:
			if depth == 2 && inOwner {
				inOwner = false
			}
			depth--
		}
	}
	if !sawRoot || !sawScope {
		return nil, weberr.New(weberr.BadRequest, "lockinfo missing lockscope")
	}
	if badType {
		return nil, weberr.New(weberr.BadRequest, "only write locks are supported")
	}
	li.Owner = strings.TrimSpace(ownerText.String())
	return li, nil
}

// normalizeName maps an element with no namespace into DAV:, matching
// clients that omit the declaration on request bodies.
func normalizeName(n xml.Name) xml.Name {
	if n.Space == "" {
		n.Space = NamespaceDAV
	}
	return n
}
