// Package webdav implements a Class 1 and Class 2 WebDAV method engine
// over the vfs contract. The Handler is a plain http.Handler so a host
// application can mount it under any router, wrap it with its own
// authentication, CORS, and logging, and pick the VFS backend.
package webdav

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rutexd/minidav/internal/vfs"
	"github.com/rutexd/minidav/internal/webdav/davpath"
	"github.com/rutexd/minidav/internal/webdav/lock"
	"github.com/rutexd/minidav/internal/weberr"
)

const allowedMethods = "OPTIONS, GET, HEAD, PUT, DELETE, MKCOL, COPY, MOVE, PROPFIND, PROPPATCH, LOCK, UNLOCK"

// Config carries everything a Handler needs. FS is required; the rest
// falls back to sensible defaults.
type Config struct {
	// Prefix is the URL prefix the handler is mounted under, stripped
	// from every request path before normalization.
	Prefix string

	FS    vfs.FS
	Locks *lock.Manager

	Logger *logrus.Entry

	// MaxRequestBytes bounds the XML bodies of PROPFIND, PROPPATCH,
	// and LOCK.
	MaxRequestBytes int64

	// RequestTimeout is the fixed deadline for non-upload requests.
	// UploadTimeout is the inactivity window for PUT bodies, reset on
	// every chunk.
	RequestTimeout time.Duration
	UploadTimeout  time.Duration

	// DefaultLockTimeout applies when LOCK carries no Timeout header.
	DefaultLockTimeout int64
}

// Handler dispatches WebDAV methods against a virtual filesystem.
type Handler struct {
	prefix  string
	fs      vfs.FS
	locks   *lock.Manager
	streams *lock.StreamTable
	logger  *logrus.Entry

	maxRequestBytes    int64
	requestTimeout     time.Duration
	uploadTimeout      time.Duration
	defaultLockTimeout int64
}

// NewHandler builds an engine. The handler owns the lock manager's
// lifecycle; Close stops its sweeper.
func NewHandler(cfg Config) *Handler {
	if cfg.Logger == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		cfg.Logger = logrus.NewEntry(discard)
	}
	if cfg.DefaultLockTimeout <= 0 {
		cfg.DefaultLockTimeout = 3600
	}
	if cfg.Locks == nil {
		cfg.Locks = lock.NewManager(lock.Options{
			DefaultTimeout: cfg.DefaultLockTimeout,
			Logger:         cfg.Logger,
		})
	}
	if cfg.MaxRequestBytes <= 0 {
		cfg.MaxRequestBytes = 1 << 20
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.UploadTimeout <= 0 {
		cfg.UploadTimeout = 30 * time.Second
	}
	return &Handler{
		prefix:             strings.TrimSuffix(cfg.Prefix, "/"),
		fs:                 cfg.FS,
		locks:              cfg.Locks,
		streams:            lock.NewStreamTable(),
		logger:             cfg.Logger,
		maxRequestBytes:    cfg.MaxRequestBytes,
		requestTimeout:     cfg.RequestTimeout,
		uploadTimeout:      cfg.UploadTimeout,
		defaultLockTimeout: cfg.DefaultLockTimeout,
	}
}

// Close stops the lock manager's background sweeper.
func (h *Handler) Close() error {
	return h.locks.Close()
}

// LockManager exposes the engine's lock manager, mainly so a host can
// inspect lock state on its admin surface.
func (h *Handler) LockManager() *lock.Manager {
	return h.locks
}

// resolvePath strips the mount prefix and normalizes what remains.
func (h *Handler) resolvePath(raw string) string {
	p := raw
	if h.prefix != "" && strings.HasPrefix(p, h.prefix) {
		p = p[len(h.prefix):]
	}
	return davpath.Normalize(p)
}

// ServeHTTP dispatches by method. Non-upload requests run under a
// fixed deadline; PUT gets the progressive upload window instead.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := h.resolvePath(r.URL.EscapedPath())
	start := time.Now()

	if r.Method != http.MethodPut {
		ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
		defer cancel()
		r = r.WithContext(ctx)
	}

	switch r.Method {
	case http.MethodOptions:
		h.handleOptions(w, r)
	case http.MethodGet:
		h.handleGet(w, r, path, true)
	case http.MethodHead:
		h.handleGet(w, r, path, false)
	case http.MethodPut:
		h.handlePut(w, r, path)
	case http.MethodDelete:
		h.handleDelete(w, r, path)
	case "MKCOL":
		h.handleMkcol(w, r, path)
	case "COPY":
		h.handleCopyMove(w, r, path, false)
	case "MOVE":
		h.handleCopyMove(w, r, path, true)
	case "PROPFIND":
		h.handlePropfind(w, r, path)
	case "PROPPATCH":
		h.handleProppatch(w, r, path)
	case "LOCK":
		h.handleLock(w, r, path)
	case "UNLOCK":
		h.handleUnlock(w, r, path)
	default:
		w.Header().Set("Allow", allowedMethods)
		w.WriteHeader(http.StatusMethodNotAllowed)
	}

	h.logger.WithFields(logrus.Fields{
		"method":      r.Method,
		"path":        path,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("request handled")
}

func (h *Handler) handleOptions(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("DAV", "1, 2")
	w.Header().Set("Allow", allowedMethods)
	w.Header().Set("MS-Author-Via", "DAV")
	w.Header().Set("Accept-Ranges", "bytes")
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleMkcol(w http.ResponseWriter, r *http.Request, path string) {
	if err := h.checkWriteLocks(r, path, false); err != nil {
		h.writeError(w, r, err)
		return
	}
	exists, err := h.fs.Exists(r.Context(), path)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if exists {
		w.Header().Set("Allow", allowedMethods)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	parent, _ := davpath.Split(path)
	parentInfo, err := h.fs.Stat(r.Context(), parent)
	if err != nil || parentInfo.Kind != vfs.KindCollection {
		w.WriteHeader(http.StatusConflict)
		return
	}
	if err := h.fs.Create(r.Context(), path, vfs.KindCollection); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request, path string) {
	exists, err := h.fs.Exists(r.Context(), path)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !exists {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if davpath.IsRoot(path) {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	if err := h.checkWriteLocks(r, path, true); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.fs.Delete(r.Context(), path); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.locks.PurgeTree(path)
	w.WriteHeader(http.StatusNoContent)
}

// checkWriteLocks enforces the lock authorization model for a mutating
// operation on path: every governing lock must be matched by a token
// from the Lock-Token or If header. With subtree set, locks anywhere
// below path govern too.
func (h *Handler) checkWriteLocks(r *http.Request, path string, subtree bool) error {
	tokens := submittedTokens(r.Header.Get("Lock-Token"), r.Header.Get("If"))
	if blocked := h.locks.Unsatisfied(path, tokens, subtree); len(blocked) > 0 {
		return weberr.New(weberr.Locked,
			fmt.Sprintf("%d unsatisfied lock(s) on %s", len(blocked), path))
	}
	return nil
}

// parseDepthHeader interprets the Depth request header. The lock
// package's DepthInfinity constant doubles as the sentinel.
func parseDepthHeader(value string, def int) (int, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "":
		return def, nil
	case "0":
		return 0, nil
	case "1":
		return 1, nil
	case "infinity":
		return lock.DepthInfinity, nil
	default:
		return 0, weberr.New(weberr.BadRequest, "invalid Depth header")
	}
}

// parseTimeoutHeader interprets the Timeout request header. It accepts
// a comma-separated preference list and takes the first recognizable
// entry; Infinite is clamped by the lock manager's maximum.
func parseTimeoutHeader(value string, def int64) int64 {
	value = strings.TrimSpace(value)
	if value == "" {
		return def
	}
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if strings.EqualFold(part, "Infinite") {
			return 1<<31 - 1
		}
		var seconds int64
		if _, err := fmt.Sscanf(part, "Second-%d", &seconds); err == nil && seconds > 0 {
			return seconds
		}
	}
	return def
}
