// Package davpath normalizes request and Destination paths into the
// canonical keys the VFS and lock manager index by.
package davpath

import (
	"net/url"
	"path"
	"strings"
)

// Normalize percent-decodes raw and reduces it to POSIX form: empty
// and "." segments collapse, ".." resolves but clamps at root (the
// path is rooted before cleaning, so a request can never escape above
// root), and the result carries a leading slash and no trailing slash
// except for root itself.
func Normalize(raw string) string {
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		decoded = raw
	}
	if !strings.HasPrefix(decoded, "/") {
		decoded = "/" + decoded
	}
	cleaned := path.Clean(decoded)
	if cleaned == "" {
		return "/"
	}
	return cleaned
}

// Split returns the parent path and the final segment (the
// displayName) of a normalized path. Split("/") returns ("/", "/").
func Split(p string) (parent, name string) {
	if p == "/" {
		return "/", "/"
	}
	idx := strings.LastIndex(p, "/")
	name = p[idx+1:]
	if idx == 0 {
		parent = "/"
	} else {
		parent = p[:idx]
	}
	return parent, name
}

// IsRoot reports whether p is the root collection.
func IsRoot(p string) bool { return p == "/" }

// IsDescendant reports whether child is strictly nested under parent.
func IsDescendant(parent, child string) bool {
	if parent == "/" {
		return child != "/"
	}
	return strings.HasPrefix(child, parent+"/")
}

// IsWithin reports whether child equals parent or is nested under it.
func IsWithin(parent, child string) bool {
	return child == parent || IsDescendant(parent, child)
}

// EncodeHref percent-encodes a normalized path segment by segment, as
// required for the <href> element in PROPFIND responses.
func EncodeHref(p string) string {
	if p == "/" {
		return "/"
	}
	parts := strings.Split(strings.TrimPrefix(p, "/"), "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return "/" + strings.Join(parts, "/")
}
