package storage

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// storageErrors tracks backend failures by backend and operation.
	storageErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpcache_storage_errors_total",
			Help: "Total storage backend errors by backend and operation",
		},
		[]string{"backend", "operation"},
	)

	// storageCorrupt tracks records dropped because they failed to decode.
	storageCorrupt = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpcache_storage_corrupt_total",
			Help: "Total corrupt storage records dropped",
		},
		[]string{"backend"},
	)
)
