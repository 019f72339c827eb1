// Package vfs defines the virtual filesystem contract the WebDAV
// method engine consumes. Two adapters ship with it: the in-memory
// reference implementation in this package and an object-storage
// backed one in vfs/objectfs. Callers depend on the FS interface,
// never on a concrete backend; backends report failures as typed
// *weberr.Error values.
package vfs

import (
	"context"
	"io"
	"time"
)

// Kind distinguishes the two resource variants of the namespace.
type Kind int

const (
	KindAbsent Kind = iota
	KindFile
	KindCollection
)

// Range is an inclusive byte range. Total, when non-zero, carries the
// declared total size of a Content-Range PUT so the VFS can
// zero-extend a file that doesn't yet reach that size.
type Range struct {
	Start, End int64
	Total      int64
}

// Info is the metadata carried by every resource.
type Info struct {
	Path         string
	Kind         Kind
	Size         int64
	ETag         string
	Created      time.Time
	LastModified time.Time
	DisplayName  string
}

// FS is the capability set the method engine consumes. Every method
// may return a *weberr.Error; callers translate it to HTTP via
// internal/webdav/errors.go.
type FS interface {
	Exists(ctx context.Context, path string) (bool, error)
	Stat(ctx context.Context, path string) (Info, error)

	// Create makes a new resource of the given kind, creating any
	// missing parent collections implicitly.
	Create(ctx context.Context, path string, kind Kind) error

	// Delete removes path; recursive for collections.
	Delete(ctx context.Context, path string) error

	// Copy and Move duplicate/relocate a subtree, preserving dead
	// properties. Move should be atomic when the backend supports a
	// native rename; a copy-then-delete fallback is permitted
	// otherwise.
	Copy(ctx context.Context, from, to string) error
	Move(ctx context.Context, from, to string) error

	// Members lists the immediate children of a collection.
	Members(ctx context.Context, path string) ([]Info, error)

	// ReadStream returns a lazy reader over path, optionally sliced to
	// rng. The caller must Close the returned ReadCloser.
	ReadStream(ctx context.Context, path string, rng *Range) (io.ReadCloser, error)

	// WriteStream writes data into path. When rng is nil the content
	// is replaced wholesale; otherwise it is a random-access write at
	// rng.Start, zero-extending the file to rng.Total when the file is
	// shorter.
	WriteStream(ctx context.Context, path string, data io.Reader, rng *Range) error

	// Dead-property storage.
	GetProperty(ctx context.Context, path, namespace, name string) (string, bool, error)
	SetProperty(ctx context.Context, path, namespace, name, value string) error
	RemoveProperty(ctx context.Context, path, namespace, name string) error
	ListProperties(ctx context.Context, path string) (map[PropKey]string, error)
}

// PropKey identifies a dead property by qualified name.
type PropKey struct {
	Namespace string
	Name      string
}
