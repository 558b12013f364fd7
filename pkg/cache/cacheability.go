package cache

import (
	"net/http"
	"strings"
)

// DefaultCacheableStatuses are the status codes storable without explicit
// freshness information. Responses of other statuses are stored only when
// they carry explicit expiration (max-age, s-maxage or Expires).
var DefaultCacheableStatuses = map[int]bool{
	http.StatusOK:                   true,
	http.StatusNonAuthoritativeInfo: true,
	http.StatusMultipleChoices:      true,
	http.StatusMovedPermanently:     true,
	http.StatusNotFound:             true,
	http.StatusMethodNotAllowed:     true,
	http.StatusGone:                 true,
	http.StatusRequestURITooLong:    true,
	http.StatusNotImplemented:       true,
}

// CacheabilityPolicy classifies a request/response exchange as storable or
// not. The policy is stateless and safe for unsynchronized concurrent use.
type CacheabilityPolicy struct {
	// SharedCache rejects private responses and restricts responses to
	// authorized requests.
	SharedCache bool

	// HeuristicEnabled admits responses without explicit freshness
	// information on the strength of heuristic freshness.
	HeuristicEnabled bool

	// Methods are the request methods whose responses may be stored.
	// Defaults to GET and HEAD.
	Methods []string

	// Statuses overrides DefaultCacheableStatuses when non-nil.
	Statuses map[int]bool
}

// IsCacheable reports whether the exchange may be stored.
func (p CacheabilityPolicy) IsCacheable(req *http.Request, resp *http.Response) bool {
	if !p.MethodAllowed(req.Method) {
		return false
	}
	// partial and revalidation responses never replace a full entry
	if resp.StatusCode == http.StatusPartialContent || resp.StatusCode == http.StatusNotModified {
		return false
	}

	reqCC := ParseCacheControl(req.Header.Values("Cache-Control"))
	respCC := ParseCacheControl(resp.Header.Values("Cache-Control"))
	if reqCC.NoStore() || respCC.NoStore() {
		return false
	}
	if p.SharedCache && respCC.Private() {
		return false
	}
	if p.SharedCache && req.Header.Get("Authorization") != "" && !authorizedResponseShareable(respCC) {
		return false
	}
	for _, vary := range resp.Header.Values("Vary") {
		if strings.Contains(vary, "*") {
			return false
		}
	}

	if hasExplicitFreshness(respCC, resp.Header) {
		return true
	}
	if !p.statusAllowed(resp.StatusCode) {
		return false
	}
	// without explicit freshness the entry is only useful under the
	// heuristic allowance
	return p.HeuristicEnabled
}

// MethodAllowed reports whether responses to the given method may be
// cached at all.
func (p CacheabilityPolicy) MethodAllowed(method string) bool {
	methods := p.Methods
	if len(methods) == 0 {
		methods = []string{http.MethodGet, http.MethodHead}
	}
	for _, m := range methods {
		if strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}

func (p CacheabilityPolicy) statusAllowed(status int) bool {
	if p.Statuses != nil {
		return p.Statuses[status]
	}
	return DefaultCacheableStatuses[status]
}

// authorizedResponseShareable: a shared cache may store a response to an
// authorized request only when the origin opted in explicitly.
func authorizedResponseShareable(cc CacheControl) bool {
	if cc.Public() || cc.MustRevalidate() {
		return true
	}
	_, ok := cc.SMaxAge()
	return ok
}

func hasExplicitFreshness(cc CacheControl, h http.Header) bool {
	if _, ok := cc.MaxAge(); ok {
		return true
	}
	if _, ok := cc.SMaxAge(); ok {
		return true
	}
	return h.Get("Expires") != ""
}
