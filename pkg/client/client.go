// Package client provides a caching HTTP client built on the cache engine.
package client

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/cachewright/httpcache/pkg/cache"
)

// Prometheus metrics for client operations.
var (
	clientRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "httpcache_client_requests_total",
		Help: "Total client requests by method and status",
	}, []string{"method", "status"})

	clientRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "httpcache_client_request_duration_seconds",
		Help:    "Client request duration in seconds by method",
		Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"method"})
)

// Client is an http.Client wrapper whose transport is the cache engine:
// every request goes through cache lookup, revalidation and storage before
// it reaches the network.
type Client struct {
	httpClient *http.Client
	engine     *cache.Engine
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// Storage is the backend cache entries are kept in. Required.
	Storage cache.Storage

	// Upstream is the transport used for origin requests.
	// Defaults to http.DefaultTransport.
	Upstream http.RoundTripper

	// UserAgent is sent on every request when set.
	UserAgent string

	// Timeout bounds a complete request, including any origin round trip.
	Timeout time.Duration

	// Engine overrides individual cache engine settings. Storage and
	// Upstream from this Config always win.
	Engine *cache.Config
}

// DefaultConfig returns a safe default configuration over the given storage.
func DefaultConfig(storage cache.Storage) Config {
	return Config{
		Storage: storage,
		Timeout: 30 * time.Second,
	}
}

// New creates a caching client.
func New(cfg Config) (*Client, error) {
	if cfg.Storage == nil {
		return nil, fmt.Errorf("storage is required")
	}

	engineCfg := cache.DefaultConfig(cfg.Storage)
	if cfg.Engine != nil {
		engineCfg = *cfg.Engine
		engineCfg.Storage = cfg.Storage
	}
	if cfg.Upstream != nil {
		engineCfg.Upstream = cfg.Upstream
	}

	engine, err := cache.New(engineCfg)
	if err != nil {
		return nil, fmt.Errorf("create cache engine: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		httpClient: &http.Client{
			Transport: engine,
			Timeout:   timeout,
		},
		engine: engine,
		config: cfg,
		logger: log.With().Str("component", "cache-client").Logger(),
	}, nil
}

// Do performs an HTTP request through the cache engine.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	startTime := time.Now()
	defer func() {
		clientRequestDuration.WithLabelValues(req.Method).Observe(time.Since(startTime).Seconds())
	}()

	if c.config.UserAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		clientRequestsTotal.WithLabelValues(req.Method, "error").Inc()
		return nil, err
	}

	clientRequestsTotal.WithLabelValues(req.Method, fmt.Sprintf("%d", resp.StatusCode)).Inc()
	c.logger.Debug().
		Str("method", req.Method).
		Str("url", req.URL.String()).
		Int("status", resp.StatusCode).
		Str("cache_status", resp.Header.Get("Cache-Status")).
		Msg("Request completed")

	return resp, nil
}

// Get performs a GET request to url.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return c.Do(req)
}

// Close stops the engine's background revalidation workers.
func (c *Client) Close() error {
	return c.engine.Close()
}

// Engine returns the underlying cache engine (for testing).
func (c *Client) Engine() *cache.Engine {
	return c.engine
}
