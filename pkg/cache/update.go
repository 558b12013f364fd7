package cache

import (
	"net/http"
	"sort"
	"time"
)

// refreshExcludedHeaders continue to describe the original cached body and
// are never replaced by a 304's headers.
var refreshExcludedHeaders = map[string]bool{
	"Content-Length":   true,
	"Content-Encoding": true,
	"Content-Range":    true,
}

// NewEntryFromResponse builds the entry for a first-time cacheable
// response. A missing Date header is synthesized from the response
// timestamp so age arithmetic always has a generation time to work from.
func NewEntryFromResponse(req *http.Request, resp *http.Response, body []byte, requestTime, responseTime time.Time) *Entry {
	e := NewEntry(req.Method, requestTime, responseTime, resp.StatusCode, resp.Header, body)
	if _, ok := e.FirstHeader("Date"); !ok {
		e.Headers = append(e.Headers, Header{Name: "Date", Value: responseTime.UTC().Format(http.TimeFormat)})
	}
	return e
}

// RefreshEntry merges a 304 revalidation response into the stored entry,
// producing a new entry with the original body. Headers present on the 304
// replace their stored counterparts, except those describing the cached
// body and hop-by-hop fields. The stored Age header is always dropped so
// the served age is recomputed against the new response timestamp.
func RefreshEntry(old *Entry, resp *http.Response, requestTime, responseTime time.Time) *Entry {
	replaced := map[string]bool{"Age": true}
	var names []string
	for name := range resp.Header {
		if refreshExcludedHeaders[name] || hopByHopHeaders[name] {
			continue
		}
		replaced[name] = true
		names = append(names, name)
	}
	sort.Strings(names)

	merged := make([]Header, 0, len(old.Headers)+len(names))
	for _, h := range old.Headers {
		if !replaced[http.CanonicalHeaderKey(h.Name)] {
			merged = append(merged, h)
		}
	}
	for _, name := range names {
		for _, value := range resp.Header[name] {
			merged = append(merged, Header{Name: name, Value: value})
		}
	}

	if responseTime.Before(requestTime) {
		responseTime = requestTime
	}
	return &Entry{
		Method:       old.Method,
		RequestTime:  requestTime,
		ResponseTime: responseTime,
		StatusCode:   old.StatusCode,
		Headers:      merged,
		Body:         old.Body,
		Variants:     old.Variants,
	}
}

// etagsConflict reports a revalidation response whose entity tag disagrees
// with the stored one, indicating a mismatched cache/origin view.
func etagsConflict(entry *Entry, resp *http.Response) bool {
	respTag := resp.Header.Get("ETag")
	storedTag := entry.ETag()
	return respTag != "" && storedTag != "" && respTag != storedTag
}
