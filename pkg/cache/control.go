package cache

import (
	"strconv"
	"strings"
	"time"
)

// CacheControl holds the parsed directives of one or more Cache-Control
// field values. Directive names compare case-insensitively; quoted-string
// arguments are unquoted. When a directive repeats, the last occurrence
// wins.
type CacheControl struct {
	directives map[string]string
}

// ParseCacheControl parses the given Cache-Control field values.
// Unrecognized directives are retained and reachable through Has.
func ParseCacheControl(values []string) CacheControl {
	m := make(map[string]string)
	for _, value := range values {
		for _, directive := range strings.Split(value, ",") {
			directive = strings.TrimSpace(directive)
			if directive == "" {
				continue
			}
			name, arg, _ := strings.Cut(directive, "=")
			name = strings.ToLower(strings.TrimSpace(name))
			arg = strings.Trim(strings.TrimSpace(arg), `"`)
			m[name] = arg
		}
	}
	return CacheControl{directives: m}
}

// Has reports whether the named directive is present.
func (c CacheControl) Has(name string) bool {
	_, ok := c.directives[strings.ToLower(name)]
	return ok
}

// NoStore reports the no-store directive.
func (c CacheControl) NoStore() bool { return c.Has("no-store") }

// NoCache reports the no-cache directive.
func (c CacheControl) NoCache() bool { return c.Has("no-cache") }

// MustRevalidate reports the must-revalidate directive.
func (c CacheControl) MustRevalidate() bool { return c.Has("must-revalidate") }

// ProxyRevalidate reports the proxy-revalidate directive.
func (c CacheControl) ProxyRevalidate() bool { return c.Has("proxy-revalidate") }

// Public reports the public directive.
func (c CacheControl) Public() bool { return c.Has("public") }

// Private reports the private directive.
func (c CacheControl) Private() bool { return c.Has("private") }

// OnlyIfCached reports the only-if-cached request directive.
func (c CacheControl) OnlyIfCached() bool { return c.Has("only-if-cached") }

// MaxAge returns the max-age directive value.
func (c CacheControl) MaxAge() (time.Duration, bool) { return c.seconds("max-age") }

// SMaxAge returns the s-maxage directive value.
func (c CacheControl) SMaxAge() (time.Duration, bool) { return c.seconds("s-maxage") }

// StaleWhileRevalidate returns the stale-while-revalidate extension value.
func (c CacheControl) StaleWhileRevalidate() (time.Duration, bool) {
	return c.seconds("stale-while-revalidate")
}

// StaleIfError returns the stale-if-error extension value.
func (c CacheControl) StaleIfError() (time.Duration, bool) { return c.seconds("stale-if-error") }

// seconds parses a delta-seconds argument. Invalid or negative values count
// as absent, driving callers toward treating the response as stale.
func (c CacheControl) seconds(name string) (time.Duration, bool) {
	arg, ok := c.directives[name]
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return time.Duration(n) * time.Second, true
}
