// Package cache provides a standards-based HTTP response cache.
//
// The engine implements the core HTTP caching model with the following features:
//
// - Freshness from Cache-Control (max-age, s-maxage), Expires and heuristics
// - Conditional revalidation with If-None-Match / If-Modified-Since
// - Entry refresh from 304 Not Modified responses
// - Content negotiation via Vary with per-variant entries
// - Invalidation on unsafe methods and Location-bearing responses
// - stale-while-revalidate and stale-if-error extensions
// - Cache-Status response annotations
// - Prometheus metrics for observability
// - Pluggable storage backends with graceful degradation
//
// # Basic Usage
//
//	// Pick a storage backend
//	store, err := storage.NewMemory(storage.DefaultMemoryConfig())
//	if err != nil {
//		return err
//	}
//
//	// Create the engine and install it as a transport
//	engine, err := cache.New(cache.DefaultConfig(store))
//	if err != nil {
//		return err
//	}
//	defer engine.Close()
//
//	client := &http.Client{Transport: engine}
//	resp, err := client.Get("https://example.org/articles/1")
//
// # Freshness Decisions
//
//	policy := cache.ValidityPolicy{SharedCache: true, HeuristicEnabled: true}
//	if policy.IsFresh(entry, time.Now()) {
//		// serve without contacting the origin
//	}
//
// Responses served from the cache carry a Cache-Status header describing
// the decision, for example "httpcache; hit; ttl=240" or
// "httpcache; fwd=miss; stored".
package cache
