package cache

import (
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Header is a single stored response header field. Entries keep the complete
// field list instead of a map so duplicate fields and their relative order
// survive a storage round trip.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Entry is one stored response variant.
//
// Entries are immutable: every update after construction (for example a
// refresh following a 304 revalidation) builds a new Entry value and swaps
// the stored reference. Concurrent readers never observe a partial update.
type Entry struct {
	// Method is the request method that produced the response.
	Method string `json:"method"`

	// RequestTime is when the originating request was sent.
	RequestTime time.Time `json:"request_time"`

	// ResponseTime is when the response was received. Never before
	// RequestTime.
	ResponseTime time.Time `json:"response_time"`

	// StatusCode is the status code of the cached response.
	StatusCode int `json:"status_code"`

	// Headers are the stored response headers.
	Headers []Header `json:"headers"`

	// Body is the stored response body.
	Body []byte `json:"body,omitempty"`

	// Variants maps variant key to variant cache key on base entries that
	// track content-negotiated children. Nil for plain entries.
	Variants map[string]string `json:"variants,omitempty"`
}

// hopByHopHeaders describe the connection rather than the resource. They are
// never stored and never replaced on refresh.
var hopByHopHeaders = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
}

// NewEntry builds an immutable entry from a response exchange. Hop-by-hop
// headers are dropped. The response timestamp is clamped so it is never
// before the request timestamp.
func NewEntry(method string, requestTime, responseTime time.Time, statusCode int, headers http.Header, body []byte) *Entry {
	if responseTime.Before(requestTime) {
		responseTime = requestTime
	}
	return &Entry{
		Method:       method,
		RequestTime:  requestTime,
		ResponseTime: responseTime,
		StatusCode:   statusCode,
		Headers:      storedHeaders(headers),
		Body:         body,
	}
}

// storedHeaders flattens an http.Header into the stored field list. Names
// are emitted in sorted order so the result is deterministic; values of a
// repeated field keep their original order.
func storedHeaders(h http.Header) []Header {
	names := make([]string, 0, len(h))
	for name := range h {
		if hopByHopHeaders[name] {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Header, 0, len(names))
	for _, name := range names {
		for _, value := range h[name] {
			out = append(out, Header{Name: name, Value: value})
		}
	}
	return out
}

// FirstHeader returns the first value of the named header.
func (e *Entry) FirstHeader(name string) (string, bool) {
	name = http.CanonicalHeaderKey(name)
	for _, h := range e.Headers {
		if http.CanonicalHeaderKey(h.Name) == name {
			return h.Value, true
		}
	}
	return "", false
}

// HeaderValues returns all values of the named header in stored order.
func (e *Entry) HeaderValues(name string) []string {
	name = http.CanonicalHeaderKey(name)
	var values []string
	for _, h := range e.Headers {
		if http.CanonicalHeaderKey(h.Name) == name {
			values = append(values, h.Value)
		}
	}
	return values
}

// HTTPHeader converts the stored field list back into an http.Header.
func (e *Entry) HTTPHeader() http.Header {
	h := make(http.Header, len(e.Headers))
	for _, f := range e.Headers {
		h.Add(f.Name, f.Value)
	}
	return h
}

// HasVariants reports whether the response declared a Vary header.
func (e *Entry) HasVariants() bool {
	return len(e.VaryNames()) > 0
}

// VaryNames returns the lowercased header names listed in the entry's Vary
// header, deduplicated, in declaration order.
func (e *Entry) VaryNames() []string {
	var names []string
	seen := map[string]bool{}
	for _, value := range e.HeaderValues("Vary") {
		for _, name := range strings.Split(value, ",") {
			name = strings.ToLower(strings.TrimSpace(name))
			if name == "" || seen[name] {
				continue
			}
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

// ETag returns the entry's entity tag, or "" when absent.
func (e *Entry) ETag() string {
	etag, _ := e.FirstHeader("ETag")
	return etag
}

// Date returns the parsed Date header. Unparsable dates count as absent.
func (e *Entry) Date() (time.Time, bool) {
	return e.dateHeader("Date")
}

// LastModified returns the parsed Last-Modified header.
func (e *Entry) LastModified() (time.Time, bool) {
	return e.dateHeader("Last-Modified")
}

func (e *Entry) dateHeader(name string) (time.Time, bool) {
	value, ok := e.FirstHeader(name)
	if !ok {
		return time.Time{}, false
	}
	t, err := http.ParseTime(value)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Age returns the value of the stored Age header, if present and valid.
func (e *Entry) Age() (time.Duration, bool) {
	value, ok := e.FirstHeader("Age")
	if !ok {
		return 0, false
	}
	seconds, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || seconds < 0 {
		return 0, false
	}
	return time.Duration(seconds) * time.Second, true
}

// WithVariant returns a copy of the entry whose variant map additionally
// routes variantKey to cacheKey. The receiver is not modified.
func (e *Entry) WithVariant(variantKey, cacheKey string) *Entry {
	variants := make(map[string]string, len(e.Variants)+1)
	for k, v := range e.Variants {
		variants[k] = v
	}
	variants[variantKey] = cacheKey

	clone := *e
	clone.Variants = variants
	return &clone
}
