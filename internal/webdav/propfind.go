package webdav

import (
	"encoding/xml"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rutexd/minidav/internal/vfs"
	"github.com/rutexd/minidav/internal/webdav/davpath"
	"github.com/rutexd/minidav/internal/webdav/davxml"
	"github.com/rutexd/minidav/internal/webdav/lock"
	"github.com/rutexd/minidav/internal/weberr"
)

// liveProps is the set of live property names the engine computes.
// Everything else routes to the dead-property store.
var liveProps = map[string]struct{}{
	"resourcetype":     {},
	"getcontentlength": {},
	"getcontenttype":   {},
	"getetag":          {},
	"displayname":      {},
	"getlastmodified":  {},
	"creationdate":     {},
	"supportedlock":    {},
	"lockdiscovery":    {},
	"ishidden":         {},
	"isreadonly":       {},
}

func isLiveProp(name xml.Name) bool {
	if name.Space != davxml.NamespaceDAV && name.Space != "" {
		return false
	}
	_, ok := liveProps[strings.ToLower(name.Local)]
	return ok
}

// readXMLBody buffers a raw XML request body, bounded by the
// configured maximum.
func (h *Handler) readXMLBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, h.maxRequestBytes+1))
	if err != nil {
		return nil, weberr.Wrap(weberr.BadRequest, "read request body", err)
	}
	if int64(len(body)) > h.maxRequestBytes {
		return nil, weberr.New(weberr.BadRequest, "request body too large")
	}
	return body, nil
}

func (h *Handler) handlePropfind(w http.ResponseWriter, r *http.Request, p string) {
	depth, err := parseDepthHeader(r.Header.Get("Depth"), lock.DepthInfinity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	body, err := h.readXMLBody(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	pf, err := davxml.ParsePropfind(body)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	info, err := h.fs.Stat(r.Context(), p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	infos := []vfs.Info{info}
	if info.Kind == vfs.KindCollection && depth != 0 {
		descendants, err := h.collectDescendants(r, p, depth)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		infos = append(infos, descendants...)
	}

	ms := davxml.NewMultistatus()
	for _, in := range infos {
		resp, err := h.propfindResponse(r, in, pf)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		ms.Responses = append(ms.Responses, resp)
	}

	out, err := ms.Marshal()
	if err != nil {
		h.writeError(w, r, weberr.Wrap(weberr.Internal, "marshal multistatus", err))
		return
	}
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(http.StatusMultiStatus)
	w.Write(out)
}

// collectDescendants walks the tree below p. Depth 1 stops at the
// immediate children; infinity recurses.
func (h *Handler) collectDescendants(r *http.Request, p string, depth int) ([]vfs.Info, error) {
	members, err := h.fs.Members(r.Context(), p)
	if err != nil {
		return nil, err
	}
	var out []vfs.Info
	for _, m := range members {
		out = append(out, m)
		if depth == lock.DepthInfinity && m.Kind == vfs.KindCollection {
			sub, err := h.collectDescendants(r, m.Path, depth)
			if err != nil {
				return nil, err
			}
			out = append(out, sub...)
		}
	}
	return out, nil
}

// propfindResponse builds the per-resource entry: found properties
// under 200, requested-but-missing ones under 404.
func (h *Handler) propfindResponse(r *http.Request, info vfs.Info, pf *davxml.Propfind) (davxml.Response, error) {
	resp := davxml.Response{Href: davpath.EncodeHref(info.Path)}

	switch pf.Mode {
	case davxml.PropfindPropname:
		names := davxml.NewPropBuilder()
		for name := range liveProps {
			names.Empty(name)
		}
		props, err := h.fs.ListProperties(r.Context(), info.Path)
		if err != nil {
			return resp, err
		}
		for key := range props {
			names.Named(xml.Name{Space: key.Namespace, Local: key.Name}, "", true)
		}
		resp.Propstats = []davxml.Propstat{{
			Prop:   davxml.InnerProp{Inner: names.String()},
			Status: davxml.StatusLine(http.StatusOK, "OK"),
		}}
		return resp, nil

	case davxml.PropfindAllprop:
		found := davxml.NewPropBuilder()
		for name := range liveProps {
			if err := h.liveProp(r, info, name, found); err != nil {
				return resp, err
			}
		}
		props, err := h.fs.ListProperties(r.Context(), info.Path)
		if err != nil {
			return resp, err
		}
		for key, value := range props {
			found.Named(xml.Name{Space: key.Namespace, Local: key.Name}, value, false)
		}
		resp.Propstats = []davxml.Propstat{{
			Prop:   davxml.InnerProp{Inner: found.String()},
			Status: davxml.StatusLine(http.StatusOK, "OK"),
		}}
		return resp, nil

	default:
		found := davxml.NewPropBuilder()
		missing := davxml.NewPropBuilder()
		for _, name := range pf.Props {
			if isLiveProp(name) {
				local := strings.ToLower(name.Local)
				if local == "getcontentlength" && info.Kind != vfs.KindFile {
					missing.Named(name, "", true)
					continue
				}
				if err := h.liveProp(r, info, local, found); err != nil {
					return resp, err
				}
				continue
			}
			value, ok, err := h.fs.GetProperty(r.Context(), info.Path, name.Space, name.Local)
			if err != nil {
				return resp, err
			}
			if ok {
				found.Named(name, value, false)
			} else {
				missing.Named(name, "", true)
			}
		}
		if found.Len() > 0 || missing.Len() == 0 {
			resp.Propstats = append(resp.Propstats, davxml.Propstat{
				Prop:   davxml.InnerProp{Inner: found.String()},
				Status: davxml.StatusLine(http.StatusOK, "OK"),
			})
		}
		if missing.Len() > 0 {
			resp.Propstats = append(resp.Propstats, davxml.Propstat{
				Prop:   davxml.InnerProp{Inner: missing.String()},
				Status: davxml.StatusLine(http.StatusNotFound, "Not Found"),
			})
		}
		return resp, nil
	}
}

// liveProp appends one computed property to b.
func (h *Handler) liveProp(r *http.Request, info vfs.Info, name string, b *davxml.PropBuilder) error {
	switch name {
	case "resourcetype":
		if info.Kind == vfs.KindCollection {
			b.CollectionType()
		} else {
			b.Empty("resourcetype")
		}
	case "getcontentlength":
		if info.Kind == vfs.KindFile {
			b.Text("getcontentlength", strconv.FormatInt(info.Size, 10))
		}
	case "getcontenttype":
		if info.Kind == vfs.KindFile {
			b.Text("getcontenttype", contentTypeOf(info.Path))
		} else {
			b.Text("getcontenttype", "httpd/unix-directory")
		}
	case "getetag":
		b.Text("getetag", info.ETag)
	case "displayname":
		b.Text("displayname", info.DisplayName)
	case "getlastmodified":
		b.Text("getlastmodified", info.LastModified.UTC().Format(http.TimeFormat))
	case "creationdate":
		b.Text("creationdate", info.Created.UTC().Format(time.RFC3339))
	case "supportedlock":
		b.SupportedLock()
	case "lockdiscovery":
		discovery, err := davxml.LockDiscoveryXML(h.activeLocks(r, info.Path))
		if err != nil {
			return weberr.Wrap(weberr.Internal, "render lockdiscovery", err)
		}
		b.Raw(discovery)
	case "ishidden":
		b.Text("ishidden", "0")
	case "isreadonly":
		b.Text("isreadonly", "0")
	}
	return nil
}

// activeLocks renders the locks governing p for lockdiscovery.
func (h *Handler) activeLocks(r *http.Request, p string) []davxml.ActiveLock {
	var out []davxml.ActiveLock
	for _, l := range h.locks.Covering(p) {
		depth := "0"
		if l.Depth == lock.DepthInfinity {
			depth = "infinity"
		}
		out = append(out, davxml.NewActiveLock(
			l.Scope == lock.ScopeExclusive,
			depth,
			l.Owner,
			"Second-"+strconv.FormatInt(l.Timeout, 10),
			l.Token,
			h.lockRootHref(r, l.Path),
		))
	}
	return out
}

// lockRootHref builds the absolute URL of a lock root.
func (h *Handler) lockRootHref(r *http.Request, p string) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host + h.prefix + davpath.EncodeHref(p)
}
