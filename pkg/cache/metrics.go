package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// cacheHits tracks responses served from storage by state:
	// fresh, stale_while_revalidate, stale_if_error.
	cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpcache_hits_total",
			Help: "Total responses served from the cache by freshness state",
		},
		[]string{"state"},
	)

	// cacheMisses tracks lookups that found no usable entry.
	cacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "httpcache_misses_total",
			Help: "Total cache lookups that found no usable entry",
		},
	)

	// cacheStores tracks entries written after a cacheable exchange.
	cacheStores = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "httpcache_stores_total",
			Help: "Total cache entries stored",
		},
	)

	// cacheRevalidations tracks conditional requests by outcome:
	// not_modified, modified, etag_mismatch, error.
	cacheRevalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpcache_revalidations_total",
			Help: "Total revalidation attempts by outcome",
		},
		[]string{"result"},
	)

	// cacheInvalidations tracks entries removed by unsafe methods or
	// Location-bearing responses.
	cacheInvalidations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "httpcache_invalidations_total",
			Help: "Total cache entries invalidated",
		},
	)

	// storageDegraded tracks requests forwarded without caching because the
	// storage backend failed.
	storageDegraded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "httpcache_storage_degraded_total",
			Help: "Total requests forwarded without caching due to storage failures",
		},
	)
)
