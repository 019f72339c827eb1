package webdav

import (
	"net/http"

	"github.com/rutexd/minidav/internal/webdav/davpath"
	"github.com/rutexd/minidav/internal/webdav/davxml"
)

// propResult is the per-property outcome of a PROPPATCH.
type propResult struct {
	value  davxml.PropertyValue
	status int
	text   string
}

func (h *Handler) handleProppatch(w http.ResponseWriter, r *http.Request, p string) {
	if err := h.checkWriteLocks(r, p, false); err != nil {
		h.writeError(w, r, err)
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

	body, err := h.readXMLBody(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	update, err := davxml.ParsePropertyUpdate(body)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	// Validation pass first: live properties are read-only. The update
	// is atomic, so one rejected property fails the whole batch and
	// the rest report 424.
	var results []propResult
	failed := false
	for _, op := range update.Ops {
		for _, pv := range op.Props {
			if isLiveProp(pv.Name) {
				results = append(results, propResult{
					value:  pv,
					status: http.StatusForbidden,
					text:   "Forbidden",
				})
				failed = true
				continue
			}
			results = append(results, propResult{value: pv, status: http.StatusOK, text: "OK"})
		}
	}

	if failed {
		for i := range results {
			if results[i].status == http.StatusOK {
				results[i].status = http.StatusFailedDependency
				results[i].text = "Failed Dependency"
			}
		}
	} else {
		idx := 0
		for _, op := range update.Ops {
			for _, pv := range op.Props {
				var applyErr error
				if op.Action == davxml.ActionSet {
					applyErr = h.fs.SetProperty(r.Context(), p, pv.Name.Space, pv.Name.Local, pv.Value)
				} else {
					applyErr = h.fs.RemoveProperty(r.Context(), p, pv.Name.Space, pv.Name.Local)
				}
				if applyErr != nil {
					results[idx] = propResult{
						value:  pv,
						status: http.StatusInternalServerError,
						text:   "Internal Server Error",
					}
				}
				idx++
			}
		}
	}

	ms := davxml.NewMultistatus()
	resp := davxml.Response{Href: davpath.EncodeHref(p)}
	// Group properties by status so each propstat carries one code.
	byStatus := make(map[int][]propResult)
	var order []int
	for _, res := range results {
		if _, seen := byStatus[res.status]; !seen {
			order = append(order, res.status)
		}
		byStatus[res.status] = append(byStatus[res.status], res)
	}
	for _, status := range order {
		b := davxml.NewPropBuilder()
		for _, res := range byStatus[status] {
			b.Named(res.value.Name, "", true)
		}
		resp.Propstats = append(resp.Propstats, davxml.Propstat{
			Prop:   davxml.InnerProp{Inner: b.String()},
			Status: davxml.StatusLine(status, byStatus[status][0].text),
		})
	}
	ms.Responses = append(ms.Responses, resp)

	out, err := ms.Marshal()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(http.StatusMultiStatus)
	w.Write(out)
}
