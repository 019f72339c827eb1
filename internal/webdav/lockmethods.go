package webdav

import (
	"net/http"
	"strconv"

	"github.com/rutexd/minidav/internal/vfs"
	"github.com/rutexd/minidav/internal/webdav/davxml"
	"github.com/rutexd/minidav/internal/webdav/lock"
	"github.com/rutexd/minidav/internal/weberr"
)

func (h *Handler) handleLock(w http.ResponseWriter, r *http.Request, p string) {
	depth, err := parseDepthHeader(r.Header.Get("Depth"), lock.DepthInfinity)
	if err != nil || depth == 1 {
		h.writeError(w, r, weberr.New(weberr.BadRequest, "LOCK depth must be 0 or infinity"))
		return
	}
	timeout := parseTimeoutHeader(r.Header.Get("Timeout"), h.defaultLockTimeout)

	body, err := h.readXMLBody(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if len(body) == 0 {
		// No body: a refresh, identified by the first token from the
		// Lock-Token or If header. Without one it is not a valid LOCK
		// at all.
		tokens := submittedTokens(r.Header.Get("Lock-Token"), r.Header.Get("If"))
		if len(tokens) == 0 {
			h.writeError(w, r, weberr.New(weberr.BadRequest, "LOCK without body or If token"))
			return
		}
		h.refreshLock(w, r, p, tokens[0], timeout)
		return
	}

	info, err := davxml.ParseLockInfo(body)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	scope := lock.ScopeShared
	if info.Exclusive {
		scope = lock.ScopeExclusive
	}

	l, err := h.locks.Create(p, info.Owner, scope, depth, timeout)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	// Locking an unmapped URL creates an empty file at it.
	exists, err := h.fs.Exists(r.Context(), p)
	if err == nil && !exists {
		if createErr := h.fs.Create(r.Context(), p, vfs.KindFile); createErr != nil {
			h.locks.Remove(l.Token)
			h.writeError(w, r, createErr)
			return
		}
	}

	h.writeLockResponse(w, r, l, http.StatusOK, true)
}

func (h *Handler) refreshLock(w http.ResponseWriter, r *http.Request, p, token string, timeout int64) {
	existing, ok := h.locks.Get(token)
	if !ok {
		h.writeError(w, r, weberr.New(weberr.PreconditionFailed, "no such lock token"))
		return
	}
	if !existing.Covers(p) {
		w.WriteHeader(http.StatusConflict)
		return
	}
	l, err := h.locks.Refresh(token, timeout)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeLockResponse(w, r, l, http.StatusOK, false)
}

// writeLockResponse renders the prop/lockdiscovery body. The
// Lock-Token header is only set when a lock was created.
func (h *Handler) writeLockResponse(w http.ResponseWriter, r *http.Request, l *lock.Lock, status int, created bool) {
	depth := "0"
	if l.Depth == lock.DepthInfinity {
		depth = "infinity"
	}
	al := davxml.NewActiveLock(
		l.Scope == lock.ScopeExclusive,
		depth,
		l.Owner,
		"Second-"+strconv.FormatInt(l.Timeout, 10),
		l.Token,
		h.lockRootHref(r, l.Path),
	)
	out, err := davxml.MarshalLockDiscovery([]davxml.ActiveLock{al})
	if err != nil {
		h.writeError(w, r, weberr.Wrap(weberr.Internal, "marshal lock response", err))
		return
	}
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	if created {
		w.Header().Set("Lock-Token", "<"+l.Token+">")
	}
	w.WriteHeader(status)
	w.Write(out)
}

func (h *Handler) handleUnlock(w http.ResponseWriter, r *http.Request, p string) {
	token := trimTokenBrackets(r.Header.Get("Lock-Token"))
	if token == "" {
		h.writeError(w, r, weberr.New(weberr.BadRequest, "missing Lock-Token header"))
		return
	}
	exists, err := h.fs.Exists(r.Context(), p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !exists {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	l, ok := h.locks.Get(token)
	if !ok || !l.Covers(p) {
		w.WriteHeader(http.StatusConflict)
		return
	}
	if !h.locks.Remove(token) {
		w.WriteHeader(http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
