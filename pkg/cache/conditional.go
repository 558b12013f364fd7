package cache

import (
	"net/http"
	"strings"
)

// BuildConditionalRequest derives a revalidation request from the original
// request and the stored entry: If-None-Match from the stored ETag and
// If-Modified-Since from the stored Last-Modified, falling back to the
// stored Date. All original request headers are preserved so the response
// side can match variants correctly; caller-supplied conditional headers
// are merged with, never overwritten by, the stored validators.
func BuildConditionalRequest(orig *http.Request, e *Entry) *http.Request {
	req := orig.Clone(orig.Context())

	if etag := e.ETag(); etag != "" && !listsETag(req.Header.Values("If-None-Match"), etag) {
		req.Header.Add("If-None-Match", etag)
	}

	if req.Header.Get("If-Modified-Since") == "" {
		if lastModified, ok := e.LastModified(); ok {
			req.Header.Set("If-Modified-Since", lastModified.UTC().Format(http.TimeFormat))
		} else if date, ok := e.Date(); ok {
			req.Header.Set("If-Modified-Since", date.UTC().Format(http.TimeFormat))
		}
	}

	return req
}

// listsETag reports whether the entity tag already appears in the given
// If-None-Match field values.
func listsETag(values []string, etag string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
		for _, candidate := range strings.Split(value, ",") {
			if strings.TrimSpace(candidate) == etag {
				return true
			}
		}
	}
	return false
}
