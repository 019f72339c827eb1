package webdav

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/rutexd/minidav/internal/weberr"
)

// statusOf maps an error kind to its HTTP status.
func statusOf(kind weberr.Kind) int {
	switch kind {
	case weberr.NotFound:
		return http.StatusNotFound
	case weberr.Conflict:
		return http.StatusConflict
	case weberr.PreconditionFailed:
		return http.StatusPreconditionFailed
	case weberr.Locked:
		return http.StatusLocked
	case weberr.RangeNotSatisfiable:
		return http.StatusRequestedRangeNotSatisfiable
	case weberr.Busy:
		return http.StatusServiceUnavailable
	case weberr.Forbidden:
		return http.StatusForbidden
	case weberr.BadRequest:
		return http.StatusBadRequest
	case weberr.MethodNotAllowed:
		return http.StatusMethodNotAllowed
	case weberr.Timeout:
		return http.StatusRequestTimeout
	case weberr.Unauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// writeError translates err into its status code, attaching the
// Retry-After hint for stream-lock contention.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := weberr.KindOf(err)
	status := statusOf(kind)
	if kind == weberr.Busy {
		w.Header().Set("Retry-After", "1")
	}
	fields := logrus.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
		"status": status,
	}
	if status >= 500 {
		h.logger.WithError(err).WithFields(fields).Error("request failed")
	} else {
		h.logger.WithError(err).WithFields(fields).Warn("request rejected")
	}
	w.WriteHeader(status)
}
