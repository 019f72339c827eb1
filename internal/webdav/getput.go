package webdav

import (
	"context"
	"fmt"
	"html"
	"io"
	"mime"
	"net/http"
	"path"
	"sort"
	"strconv"
	"time"

	"github.com/rutexd/minidav/internal/vfs"
	"github.com/rutexd/minidav/internal/webdav/davpath"
	"github.com/rutexd/minidav/internal/webdav/lock"
	"github.com/rutexd/minidav/internal/weberr"
)

// contentTypeOf guesses a MIME type from the file extension.
func contentTypeOf(p string) string {
	if ct := mime.TypeByExtension(path.Ext(p)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request, p string, withBody bool) {
	info, err := h.fs.Stat(r.Context(), p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if info.Kind == vfs.KindCollection {
		h.serveListing(w, r, p, withBody)
		return
	}

	// An exclusive WebDAV lock blocks reads unless the request holds
	// its token.
	if err := h.checkExclusiveRead(r, p); err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.streams.Acquire(p, lock.StreamRead); err != nil {
		h.writeError(w, r, err)
		return
	}
	defer h.streams.Release(p)

	rng, err := parseRange(r.Header.Get("Range"), info.Size)
	if err != nil {
		w.Header().Set("Content-Range", unsatisfiableRange(info.Size))
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
		return
	}

	w.Header().Set("Content-Type", contentTypeOf(p))
	w.Header().Set("ETag", info.ETag)
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Last-Modified", info.LastModified.UTC().Format(http.TimeFormat))

	if rng == nil {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
		w.WriteHeader(http.StatusOK)
	} else {
		w.Header().Set("Content-Range", contentRangeValue(rng, info.Size))
		w.Header().Set("Content-Length", strconv.FormatInt(rng.End-rng.Start+1, 10))
		w.WriteHeader(http.StatusPartialContent)
	}
	if !withBody {
		return
	}

	rc, err := h.fs.ReadStream(r.Context(), p, rng)
	if err != nil {
		// Headers are gone; all that is left is dropping the body.
		h.logger.WithError(err).Warn("read stream failed after headers")
		return
	}
	defer rc.Close()
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.WithError(err).Debug("response body aborted")
	}
}

// checkExclusiveRead denies a read when an exclusive lock covers p and
// the request carries no matching token.
func (h *Handler) checkExclusiveRead(r *http.Request, p string) error {
	tokens := submittedTokens(r.Header.Get("Lock-Token"), r.Header.Get("If"))
	for _, l := range h.locks.Covering(p) {
		if l.Scope != lock.ScopeExclusive {
			continue
		}
		matched := false
		for _, t := range tokens {
			if t == l.Token {
				matched = true
				break
			}
		}
		if !matched {
			return weberr.New(weberr.Locked, "exclusive lock on "+l.Path)
		}
	}
	return nil
}

// serveListing answers GET on a collection with a minimal HTML page of
// child links.
func (h *Handler) serveListing(w http.ResponseWriter, r *http.Request, p string, withBody bool) {
	members, err := h.fs.Members(r.Context(), p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	sort.Slice(members, func(i, j int) bool { return members[i].Path < members[j].Path })

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if !withBody {
		return
	}

	fmt.Fprintf(w, "<html><head><title>Index of %s</title></head><body>\n", htmlEscape(p))
	fmt.Fprintf(w, "<h1>Index of %s</h1>\n<ul>\n", htmlEscape(p))
	for _, m := range members {
		href := davpath.EncodeHref(m.Path)
		name := m.DisplayName
		if m.Kind == vfs.KindCollection {
			name += "/"
		}
		fmt.Fprintf(w, "<li><a href=\"%s%s\">%s</a></li>\n", h.prefix, href, htmlEscape(name))
	}
	fmt.Fprint(w, "</ul>\n</body></html>\n")
}

func (h *Handler) handlePut(w http.ResponseWriter, r *http.Request, p string) {
	if davpath.IsRoot(p) {
		w.WriteHeader(http.StatusConflict)
		return
	}
	if err := h.checkWriteLocks(r, p, false); err != nil {
		h.writeError(w, r, err)
		return
	}

	rng, err := parseContentRange(r.Header.Get("Content-Range"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.streams.Acquire(p, lock.StreamWrite); err != nil {
		h.writeError(w, r, err)
		return
	}
	defer h.streams.Release(p)

	existed, err := h.fs.Exists(r.Context(), p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	// The upload deadline is progressive: the watchdog cancels the
	// write only after the body has been idle for a whole window.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	body := newProgressReader(r.Body, h.uploadTimeout, cancel)
	defer body.Stop()

	if err := h.fs.WriteStream(ctx, p, body, rng); err != nil {
		if body.TimedOut() || ctx.Err() != nil {
			h.writeError(w, r, weberr.New(weberr.Timeout, "upload stalled"))
			return
		}
		h.writeError(w, r, err)
		return
	}

	info, err := h.fs.Stat(r.Context(), p)
	if err == nil {
		w.Header().Set("ETag", info.ETag)
	}
	if existed {
		w.WriteHeader(http.StatusNoContent)
	} else {
		w.WriteHeader(http.StatusCreated)
	}
}

// progressReader enforces an inactivity window on an upload body. A
// watchdog goroutine fires when no chunk has arrived for a full
// window and cancels the surrounding context.
type progressReader struct {
	r        io.Reader
	window   time.Duration
	timer    *time.Timer
	timedOut chan struct{}
	done     chan struct{}
}

func newProgressReader(r io.Reader, window time.Duration, cancel context.CancelFunc) *progressReader {
	pr := &progressReader{
		r:        r,
		window:   window,
		timer:    time.NewTimer(window),
		timedOut: make(chan struct{}),
		done:     make(chan struct{}),
	}
	go func() {
		select {
		case <-pr.timer.C:
			close(pr.timedOut)
			cancel()
		case <-pr.done:
		}
	}()
	return pr
}

func (pr *progressReader) Read(b []byte) (int, error) {
	select {
	case <-pr.timedOut:
		return 0, weberr.New(weberr.Timeout, "upload inactivity window exceeded")
	default:
	}
	n, err := pr.r.Read(b)
	if n > 0 {
		pr.timer.Reset(pr.window)
	}
	return n, err
}

// Stop retires the watchdog.
func (pr *progressReader) Stop() {
	pr.timer.Stop()
	select {
	case <-pr.done:
	default:
		close(pr.done)
	}
}

// TimedOut reports whether the watchdog fired.
func (pr *progressReader) TimedOut() bool {
	select {
	case <-pr.timedOut:
		return true
	default:
		return false
	}
}

func htmlEscape(s string) string {
	return html.EscapeString(s)
}
