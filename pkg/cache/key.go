package cache

import (
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// GenerateKey maps a target host and request to the canonical cache key for
// the request's target URI. The key is a normalized ASCII URI string:
// scheme defaults to "http", the default port for the scheme is made
// explicit, an empty path becomes "/" and the fragment is dropped, so two
// semantically equal target URIs produce identical keys.
//
// GenerateKey never fails: when the target cannot be parsed it falls back
// to the raw request-target string. Callers tolerate the weaker
// canonicalization (a reduced hit rate on malformed input), never a crash.
func GenerateKey(host string, req *http.Request) string {
	u := req.URL
	if u == nil {
		return req.RequestURI
	}
	if !u.IsAbs() {
		base, err := parseHost(host)
		if err != nil {
			return rawTarget(req)
		}
		u = base.ResolveReference(u)
	}
	return normalizeURI(u)
}

// GenerateKeyForURI maps an already-resolved target URI to its cache key.
func GenerateKeyForURI(u *url.URL) string {
	return normalizeURI(u)
}

// GenerateVariantKey computes the variant key for a request against the
// Vary header names recorded in the base entry: the varying names sorted
// lexicographically, each rendered as urlencode(name)=urlencode(values) and
// joined by "&" inside braces. Requests whose values for every varying
// header are equal produce identical keys regardless of declaration order.
func GenerateVariantKey(req *http.Request, base *Entry) string {
	names := base.VaryNames()
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("{")
	for i, name := range names {
		if i > 0 {
			b.WriteString("&")
		}
		b.WriteString(url.QueryEscape(name))
		b.WriteString("=")
		b.WriteString(url.QueryEscape(fullHeaderValue(req.Header, name)))
	}
	b.WriteString("}")
	return b.String()
}

// GenerateVariantURI returns the full cache identifier for a request
// against a base entry: the plain key when the entry declares no Vary
// header, otherwise the variant key prefixed to it.
func GenerateVariantURI(host string, req *http.Request, base *Entry) string {
	if !base.HasVariants() {
		return GenerateKey(host, req)
	}
	return GenerateVariantKey(req, base) + GenerateKey(host, req)
}

// fullHeaderValue joins all values of the named request header, trimmed, in
// declaration order.
func fullHeaderValue(h http.Header, name string) string {
	values := h.Values(name)
	trimmed := make([]string, 0, len(values))
	for _, v := range values {
		trimmed = append(trimmed, strings.TrimSpace(v))
	}
	return strings.Join(trimmed, ", ")
}

// parseHost accepts "example.com", "example.com:8080" or a full
// "scheme://host[:port]" origin.
func parseHost(host string) (*url.URL, error) {
	if !strings.Contains(host, "://") {
		host = "http://" + host
	}
	u, err := url.Parse(host)
	if err != nil {
		return nil, err
	}
	if u.Host == "" {
		return nil, fmt.Errorf("no host in %q", host)
	}
	return u, nil
}

func rawTarget(req *http.Request) string {
	if req.RequestURI != "" {
		return req.RequestURI
	}
	return req.URL.String()
}

func normalizeURI(u *url.URL) string {
	n := *u
	n.Fragment = ""
	n.Scheme = strings.ToLower(n.Scheme)
	if n.Host != "" {
		if n.Scheme == "" {
			n.Scheme = "http"
		}
		host := strings.ToLower(n.Hostname())
		port := n.Port()
		if port == "" {
			switch n.Scheme {
			case "http":
				port = "80"
			case "https":
				port = "443"
			}
		}
		if port != "" {
			n.Host = host + ":" + port
		} else {
			n.Host = host
		}
	}
	if n.Path == "" {
		n.Path = "/"
	}
	return n.String()
}
