package webdav

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rutexd/minidav/internal/vfs"
	"github.com/rutexd/minidav/internal/weberr"
)

// parseRange interprets a Range request header against a file of the
// given size. Only a single bytes range is supported, in the forms
// a-b, a-, and -n. A nil result with nil error means no Range header
// was present.
func parseRange(header string, size int64) (*vfs.Range, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, nil
	}
	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok {
		return nil, weberr.New(weberr.RangeNotSatisfiable, "unsupported range unit")
	}
	if strings.Contains(spec, ",") {
		return nil, weberr.New(weberr.RangeNotSatisfiable, "multiple ranges not supported")
	}
	start, end, found := strings.Cut(spec, "-")
	if !found {
		return nil, weberr.New(weberr.RangeNotSatisfiable, "malformed range")
	}

	// Suffix form: -n means the final n bytes.
	if start == "" {
		n, err := strconv.ParseInt(end, 10, 64)
		if err != nil || n <= 0 {
			return nil, weberr.New(weberr.RangeNotSatisfiable, "bad suffix length")
		}
		if n > size {
			n = size
		}
		return &vfs.Range{Start: size - n, End: size - 1}, nil
	}

	s, err := strconv.ParseInt(start, 10, 64)
	if err != nil || s < 0 || s >= size {
		return nil, weberr.New(weberr.RangeNotSatisfiable, "range start out of bounds")
	}
	if end == "" {
		return &vfs.Range{Start: s, End: size - 1}, nil
	}
	e, err := strconv.ParseInt(end, 10, 64)
	if err != nil || e < s {
		return nil, weberr.New(weberr.RangeNotSatisfiable, "range end before start")
	}
	if e >= size {
		e = size - 1
	}
	return &vfs.Range{Start: s, End: e}, nil
}

// parseContentRange interprets a Content-Range header on PUT, the
// random-access write form "bytes s-e/total" where total may be "*".
func parseContentRange(header string) (*vfs.Range, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, nil
	}
	spec, ok := strings.CutPrefix(header, "bytes ")
	if !ok {
		return nil, weberr.New(weberr.BadRequest, "unsupported content-range unit")
	}
	rangePart, totalPart, found := strings.Cut(spec, "/")
	if !found {
		return nil, weberr.New(weberr.BadRequest, "malformed content-range")
	}
	startStr, endStr, found := strings.Cut(rangePart, "-")
	if !found {
		return nil, weberr.New(weberr.BadRequest, "malformed content-range span")
	}
	s, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || s < 0 {
		return nil, weberr.New(weberr.BadRequest, "bad content-range start")
	}
	e, err := strconv.ParseInt(endStr, 10, 64)
	if err != nil || e < s {
		return nil, weberr.New(weberr.BadRequest, "bad content-range end")
	}
	rng := &vfs.Range{Start: s, End: e}
	if totalPart != "*" {
		total, err := strconv.ParseInt(totalPart, 10, 64)
		if err != nil || total <= e {
			return nil, weberr.New(weberr.BadRequest, "bad content-range total")
		}
		rng.Total = total
	}
	return rng, nil
}

// contentRangeValue formats the Content-Range header of a 206.
func contentRangeValue(rng *vfs.Range, size int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", rng.Start, rng.End, size)
}

// unsatisfiableRange formats the Content-Range header of a 416.
func unsatisfiableRange(size int64) string {
	return fmt.Sprintf("bytes */%d", size)
}
