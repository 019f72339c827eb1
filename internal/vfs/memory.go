package vfs

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rutexd/minidav/internal/webdav/davpath"
	"github.com/rutexd/minidav/internal/weberr"
)

// node is the in-memory representation of one resource. Guarded by
// Memory.mu rather than its own lock: same-path serialization is the
// engine's stream lock's job, the VFS only protects its own map and
// slice mutations.
type node struct {
	kind         Kind
	data         []byte
	etag         string
	created      time.Time
	lastModified time.Time
	props        map[PropKey]string
}

// Memory is the reference VFS adapter: an in-memory namespace keyed by
// normalized path.
type Memory struct {
	mu    sync.RWMutex
	nodes map[string]*node
}

// NewMemory returns an adapter with just the root collection.
func NewMemory() *Memory {
	now := time.Now()
	m := &Memory{nodes: make(map[string]*node)}
	m.nodes["/"] = &node{
		kind:         KindCollection,
		created:      now,
		lastModified: now,
		etag:         newETag(),
		props:        make(map[PropKey]string),
	}
	return m
}

func newETag() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return `"` + hex.EncodeToString(b) + `"`
}

func (m *Memory) Exists(_ context.Context, path string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.nodes[path]
	return ok, nil
}

func (m *Memory) Stat(_ context.Context, path string) (Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.nodes[path]
	if !ok {
		return Info{}, weberr.New(weberr.NotFound, path)
	}
	return m.infoLocked(path, n), nil
}

func (m *Memory) infoLocked(path string, n *node) Info {
	_, name := davpath.Split(path)
	return Info{
		Path:         path,
		Kind:         n.kind,
		Size:         int64(len(n.data)),
		ETag:         n.etag,
		Created:      n.created,
		LastModified: n.lastModified,
		DisplayName:  name,
	}
}

// ensureParentsLocked creates any missing ancestor collections of path.
func (m *Memory) ensureParentsLocked(path string) {
	parent, _ := davpath.Split(path)
	for parent != "/" {
		if _, ok := m.nodes[parent]; ok {
			break
		}
		now := time.Now()
		m.nodes[parent] = &node{
			kind:         KindCollection,
			created:      now,
			lastModified: now,
			etag:         newETag(),
			props:        make(map[PropKey]string),
		}
		parent, _ = davpath.Split(parent)
	}
}

func (m *Memory) Create(_ context.Context, path string, kind Kind) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.nodes[path]; ok {
		return weberr.New(weberr.MethodNotAllowed, path+" already exists")
	}
	// The nearest existing ancestor must be a collection; missing ones
	// between it and path are created.
	for anc, _ := davpath.Split(path); anc != "/"; anc, _ = davpath.Split(anc) {
		if pn, ok := m.nodes[anc]; ok {
			if pn.kind != KindCollection {
				return weberr.New(weberr.Conflict, "parent "+anc+" is not a collection")
			}
			break
		}
	}
	m.ensureParentsLocked(path)
	now := time.Now()
	m.nodes[path] = &node{
		kind:         kind,
		created:      now,
		lastModified: now,
		etag:         newETag(),
		props:        make(map[PropKey]string),
	}
	return nil
}

// createImplicit is used by PUT/WriteStream, which must create missing
// parents rather than fail on them.
func (m *Memory) createImplicit(path string) *node {
	m.ensureParentsLocked(path)
	now := time.Now()
	n := &node{
		kind:         KindFile,
		created:      now,
		lastModified: now,
		etag:         newETag(),
		props:        make(map[PropKey]string),
	}
	m.nodes[path] = n
	return n
}

func (m *Memory) Delete(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.nodes[path]; !ok {
		return weberr.New(weberr.NotFound, path)
	}
	if davpath.IsRoot(path) {
		return weberr.New(weberr.Forbidden, "cannot delete root")
	}
	for p := range m.nodes {
		if davpath.IsWithin(path, p) {
			delete(m.nodes, p)
		}
	}
	return nil
}

func (m *Memory) subtreeLocked(path string) []string {
	var out []string
	for p := range m.nodes {
		if davpath.IsWithin(path, p) {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

func (m *Memory) Copy(_ context.Context, from, to string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.nodes[from]; !ok {
		return weberr.New(weberr.NotFound, from)
	}
	m.ensureParentsLocked(to)
	now := time.Now()
	for _, p := range m.subtreeLocked(from) {
		rel := strings.TrimPrefix(p, from)
		dst := to + rel
		old := m.nodes[p]
		cp := &node{
			kind:         old.kind,
			data:         append([]byte(nil), old.data...),
			etag:         newETag(),
			created:      now,
			lastModified: old.lastModified,
			props:        clonedProps(old.props),
		}
		m.nodes[dst] = cp
	}
	return nil
}

func (m *Memory) Move(_ context.Context, from, to string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.nodes[from]; !ok {
		return weberr.New(weberr.NotFound, from)
	}
	m.ensureParentsLocked(to)
	subtree := m.subtreeLocked(from)
	moved := make(map[string]*node, len(subtree))
	for _, p := range subtree {
		rel := strings.TrimPrefix(p, from)
		moved[to+rel] = m.nodes[p]
	}
	for _, p := range subtree {
		delete(m.nodes, p)
	}
	for p, n := range moved {
		m.nodes[p] = n
	}
	return nil
}

func clonedProps(src map[PropKey]string) map[PropKey]string {
	dst := make(map[PropKey]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func (m *Memory) Members(_ context.Context, path string) ([]Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.nodes[path]
	if !ok {
		return nil, weberr.New(weberr.NotFound, path)
	}
	if n.kind != KindCollection {
		return nil, weberr.New(weberr.Conflict, path+" is not a collection")
	}
	prefix := path
	if prefix != "/" {
		prefix += "/"
	}
	var out []Info
	for p, child := range m.nodes {
		if p == path || !strings.HasPrefix(p, prefix) {
			continue
		}
		rest := strings.TrimPrefix(p, prefix)
		if strings.Contains(rest, "/") {
			continue // not an immediate child
		}
		out = append(out, m.infoLocked(p, child))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (m *Memory) ReadStream(_ context.Context, path string, rng *Range) (io.ReadCloser, error) {
	m.mu.RLock()
	n, ok := m.nodes[path]
	if !ok {
		m.mu.RUnlock()
		return nil, weberr.New(weberr.NotFound, path)
	}
	if n.kind != KindFile {
		m.mu.RUnlock()
		return nil, weberr.New(weberr.Conflict, path+" is not a file")
	}
	data := n.data
	m.mu.RUnlock()

	if rng == nil {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	size := int64(len(data))
	if rng.Start < 0 || rng.End >= size || rng.Start > rng.End {
		return nil, weberr.New(weberr.RangeNotSatisfiable, fmt.Sprintf("range %d-%d outside [0,%d)", rng.Start, rng.End, size))
	}
	return io.NopCloser(bytes.NewReader(data[rng.Start : rng.End+1])), nil
}

func (m *Memory) WriteStream(_ context.Context, path string, r io.Reader, rng *Range) error {
	incoming, err := io.ReadAll(r)
	if err != nil {
		return weberr.Wrap(weberr.Internal, "read request body", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.nodes[path]
	if !ok {
		n = m.createImplicit(path)
	} else if n.kind != KindFile {
		return weberr.New(weberr.Conflict, path+" is not a file")
	}

	if rng == nil {
		n.data = incoming
	} else {
		total := rng.Total
		if total < int64(len(n.data)) {
			total = int64(len(n.data))
		}
		if need := rng.Start + int64(len(incoming)); need > total {
			total = need
		}
		buf := make([]byte, total)
		copy(buf, n.data)
		copy(buf[rng.Start:], incoming)
		n.data = buf
	}

	n.lastModified = time.Now()
	n.etag = newETag()
	return nil
}

func (m *Memory) GetProperty(_ context.Context, path, namespace, name string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.nodes[path]
	if !ok {
		return "", false, weberr.New(weberr.NotFound, path)
	}
	v, ok := n.props[PropKey{Namespace: namespace, Name: name}]
	return v, ok, nil
}

func (m *Memory) SetProperty(_ context.Context, path, namespace, name, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nodes[path]
	if !ok {
		return weberr.New(weberr.NotFound, path)
	}
	n.props[PropKey{Namespace: namespace, Name: name}] = value
	return nil
}

func (m *Memory) RemoveProperty(_ context.Context, path, namespace, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nodes[path]
	if !ok {
		return weberr.New(weberr.NotFound, path)
	}
	delete(n.props, PropKey{Namespace: namespace, Name: name})
	return nil
}

func (m *Memory) ListProperties(_ context.Context, path string) (map[PropKey]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.nodes[path]
	if !ok {
		return nil, weberr.New(weberr.NotFound, path)
	}
	return clonedProps(n.props), nil
}
