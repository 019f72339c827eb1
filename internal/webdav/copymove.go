package webdav

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/rutexd/minidav/internal/webdav/davpath"
	"github.com/rutexd/minidav/internal/weberr"
)

// destinationPath extracts and normalizes the Destination header. A
// cross-host absolute URL is rejected; the mount prefix is stripped so
// the result lives in the same namespace as the request path.
func (h *Handler) destinationPath(r *http.Request) (string, error) {
	raw := strings.TrimSpace(r.Header.Get("Destination"))
	if raw == "" {
		return "", weberr.New(weberr.BadRequest, "missing Destination header")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", weberr.Wrap(weberr.BadRequest, "malformed Destination header", err)
	}
	if u.Host != "" && !strings.EqualFold(u.Host, r.Host) {
		return "", weberr.New(weberr.BadRequest, "cross-host Destination not supported")
	}
	return h.resolvePath(u.EscapedPath()), nil
}

func (h *Handler) handleCopyMove(w http.ResponseWriter, r *http.Request, src string, move bool) {
	dst, err := h.destinationPath(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if dst == src || davpath.IsWithin(src, dst) {
		w.WriteHeader(http.StatusForbidden)
		return
	}

	exists, err := h.fs.Exists(r.Context(), src)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !exists {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	dstExists, err := h.fs.Exists(r.Context(), dst)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if dstExists && strings.EqualFold(r.Header.Get("Overwrite"), "F") {
		w.WriteHeader(http.StatusPreconditionFailed)
		return
	}

	// MOVE consumes the source like DELETE would; both verbs write the
	// destination and its parent like PUT would.
	if move {
		if err := h.checkWriteLocks(r, src, true); err != nil {
			h.writeError(w, r, err)
			return
		}
	}
	if err := h.checkWriteLocks(r, dst, dstExists); err != nil {
		h.writeError(w, r, err)
		return
	}

	if dstExists {
		if err := h.fs.Delete(r.Context(), dst); err != nil {
			h.writeError(w, r, err)
			return
		}
		h.locks.PurgeTree(dst)
	}

	if move {
		if err := h.fs.Move(r.Context(), src, dst); err != nil {
			h.writeError(w, r, err)
			return
		}
		h.locks.Rekey(src, dst)
	} else {
		if err := h.fs.Copy(r.Context(), src, dst); err != nil {
			h.writeError(w, r, err)
			return
		}
	}

	if dstExists {
		w.WriteHeader(http.StatusNoContent)
	} else {
		w.WriteHeader(http.StatusCreated)
	}
}
