package cache

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// safeMethods never imply server state changes.
var safeMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodOptions: true,
	http.MethodTrace:   true,
}

// Invalidator removes cache entries made stale by unsafe requests and by
// responses that point at modified resources. Storage failures are logged
// and swallowed: invalidation is best effort and never fails a request.
type Invalidator struct {
	storage Storage
	logger  zerolog.Logger
}

// NewInvalidator creates an invalidator over the given storage.
func NewInvalidator(storage Storage) *Invalidator {
	return &Invalidator{
		storage: storage,
		logger:  log.With().Str("component", "cache-invalidator").Logger(),
	}
}

// OnRequest invalidates the entry for the request's own target URI before
// an unsafe request is sent. A successful unsafe method is assumed to
// change server state regardless of the response body, so invalidation is
// optimistic.
func (iv *Invalidator) OnRequest(ctx context.Context, host string, req *http.Request) {
	if safeMethods[req.Method] {
		return
	}
	iv.flush(ctx, GenerateKey(host, req))
}

// OnResponse invalidates entries for Location and Content-Location targets
// on the same authority as the request. This covers unsafe methods whose
// effect is visible at a different resource, such as a POST answered with
// the URI of the resource it created.
func (iv *Invalidator) OnResponse(ctx context.Context, host string, req *http.Request, resp *http.Response) {
	for _, name := range []string{"Location", "Content-Location"} {
		value := resp.Header.Get(name)
		if value == "" {
			continue
		}
		target, err := url.Parse(value)
		if err != nil {
			continue
		}
		if req.URL != nil {
			target = req.URL.ResolveReference(target)
		}
		if !sameAuthority(req.URL, target) {
			continue
		}
		iv.flush(ctx, GenerateKeyForURI(target))
	}
}

// flush removes the entry under key and, when it tracks variants, every
// variant entry it routes to.
func (iv *Invalidator) flush(ctx context.Context, key string) {
	entry, err := iv.storage.Get(ctx, key)
	if err == nil {
		for _, variantCacheKey := range entry.Variants {
			if err := iv.storage.Remove(ctx, variantCacheKey); err != nil {
				iv.logger.Warn().Err(err).Str("key", variantCacheKey).Msg("variant invalidation failed")
			} else {
				cacheInvalidations.Inc()
			}
		}
	} else if err != ErrNotFound {
		iv.logger.Warn().Err(err).Str("key", key).Msg("lookup before invalidation failed")
	}

	if err := iv.storage.Remove(ctx, key); err != nil {
		iv.logger.Warn().Err(err).Str("key", key).Msg("invalidation failed")
		return
	}
	// a remove of an absent key succeeds but invalidates nothing
	if entry != nil {
		cacheInvalidations.Inc()
		iv.logger.Debug().Str("key", key).Msg("cache entry invalidated")
	}
}

// sameAuthority compares normalized host and port, with default ports
// resolved from the scheme.
func sameAuthority(a, b *url.URL) bool {
	if a == nil || b == nil {
		return false
	}
	return strings.EqualFold(a.Hostname(), b.Hostname()) && effectivePort(a) == effectivePort(b)
}

func effectivePort(u *url.URL) string {
	if port := u.Port(); port != "" {
		return port
	}
	switch strings.ToLower(u.Scheme) {
	case "https":
		return "443"
	default:
		return "80"
	}
}
