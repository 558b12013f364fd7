package cache

import (
	"time"
)

// DefaultHeuristicFraction is the fraction of (Date - Last-Modified) used
// as the heuristic freshness lifetime when a response carries no explicit
// expiration.
const DefaultHeuristicFraction = 0.1

// ValidityPolicy computes freshness lifetimes, current ages and staleness
// allowances from a stored entry's headers and timestamps. The zero value
// is a private cache with heuristic freshness disabled. Policies are
// stateless and safe for unsynchronized concurrent use.
type ValidityPolicy struct {
	// SharedCache honors s-maxage and proxy-revalidate.
	SharedCache bool

	// HeuristicEnabled allows freshness to be inferred from Last-Modified
	// when the response carries no explicit expiration.
	HeuristicEnabled bool

	// HeuristicFraction overrides DefaultHeuristicFraction when positive.
	HeuristicFraction float64
}

// FreshnessLifetime resolves the entry's freshness lifetime, first match
// wins: s-maxage (shared caches), max-age, Expires minus Date, heuristic
// fraction of the Last-Modified interval, zero (already stale). Unparsable
// dates are treated as absent, not as errors.
func (p ValidityPolicy) FreshnessLifetime(e *Entry) time.Duration {
	cc := ParseCacheControl(e.HeaderValues("Cache-Control"))
	if p.SharedCache {
		if d, ok := cc.SMaxAge(); ok {
			return d
		}
	}
	if d, ok := cc.MaxAge(); ok {
		return d
	}
	if expires, ok := e.dateHeader("Expires"); ok {
		if date, ok := e.Date(); ok {
			if lifetime := expires.Sub(date); lifetime > 0 {
				return lifetime
			}
			return 0
		}
	}
	if p.HeuristicEnabled {
		return p.heuristicLifetime(e)
	}
	return 0
}

func (p ValidityPolicy) heuristicLifetime(e *Entry) time.Duration {
	lastModified, ok := e.LastModified()
	if !ok {
		return 0
	}
	date, ok := e.Date()
	if !ok {
		date = e.ResponseTime
	}
	if !date.After(lastModified) {
		return 0
	}
	fraction := p.HeuristicFraction
	if fraction <= 0 {
		fraction = DefaultHeuristicFraction
	}
	return time.Duration(float64(date.Sub(lastModified)) * fraction)
}

// CurrentAge is the corrected initial age plus resident time. The corrected
// initial age takes the larger of the apparent age (response timestamp
// minus Date, clamped at zero) and the upstream Age header corrected for
// the request/response delay.
func (p ValidityPolicy) CurrentAge(e *Entry, now time.Time) time.Duration {
	var apparent time.Duration
	if date, ok := e.Date(); ok {
		if d := e.ResponseTime.Sub(date); d > 0 {
			apparent = d
		}
	}

	var corrected time.Duration
	if age, ok := e.Age(); ok {
		corrected = age + e.ResponseTime.Sub(e.RequestTime)
	}

	initial := apparent
	if corrected > initial {
		initial = corrected
	}

	resident := now.Sub(e.ResponseTime)
	if resident < 0 {
		resident = 0
	}
	return initial + resident
}

// IsFresh reports whether the entry may be served without revalidation:
// current age strictly below the freshness lifetime.
func (p ValidityPolicy) IsFresh(e *Entry, now time.Time) bool {
	return p.CurrentAge(e, now) < p.FreshnessLifetime(e)
}

// MayServeStaleWhileRevalidate reports whether the stale entry is still
// inside its stale-while-revalidate window and may be served immediately
// while a background revalidation runs.
func (p ValidityPolicy) MayServeStaleWhileRevalidate(e *Entry, now time.Time) bool {
	cc := ParseCacheControl(e.HeaderValues("Cache-Control"))
	window, ok := cc.StaleWhileRevalidate()
	if !ok || p.staleServingForbidden(cc) {
		return false
	}
	return p.CurrentAge(e, now) < p.FreshnessLifetime(e)+window
}

// MayServeStaleIfError reports whether the stale entry may be served in
// place of a failed revalidation.
func (p ValidityPolicy) MayServeStaleIfError(e *Entry, now time.Time) bool {
	cc := ParseCacheControl(e.HeaderValues("Cache-Control"))
	window, ok := cc.StaleIfError()
	if !ok || p.staleServingForbidden(cc) {
		return false
	}
	return p.CurrentAge(e, now) < p.FreshnessLifetime(e)+window
}

// staleServingForbidden: must-revalidate and no-cache override any stale
// allowance; proxy-revalidate does the same for shared caches.
func (p ValidityPolicy) staleServingForbidden(cc CacheControl) bool {
	if cc.MustRevalidate() || cc.NoCache() {
		return true
	}
	return p.SharedCache && cc.ProxyRevalidate()
}
