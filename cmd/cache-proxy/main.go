// Command cache-proxy serves a caching reverse proxy in front of a single
// origin, with Prometheus metrics and a health endpoint.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/cachewright/httpcache/pkg/cache"
	"github.com/cachewright/httpcache/pkg/logging"
	"github.com/cachewright/httpcache/pkg/storage"
)

func main() {
	configPath := flag.String("config", "", "path to YAML configuration")
	flag.Parse()

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.Log.Level),
		Pretty: cfg.Log.Pretty,
		Output: os.Stderr,
	})

	store, cleanup, err := buildStorage(cfg.Backend)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create storage backend")
	}
	defer cleanup()

	engineCfg := cache.DefaultConfig(store)
	engineCfg.SharedCache = cfg.Cache.Shared
	engineCfg.HeuristicEnabled = cfg.Cache.Heuristic
	engineCfg.MaxBodyBytes = cfg.Cache.MaxBodyBytes

	engine, err := cache.New(engineCfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create cache engine")
	}
	defer engine.Close()

	origin, err := url.Parse(cfg.Origin)
	if err != nil {
		logger.Fatal().Err(err).Str("origin", cfg.Origin).Msg("Invalid origin URL")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", proxyHandler(engine, origin))

	server := &http.Server{
		Addr:    cfg.Listen,
		Handler: mux,
	}

	go func() {
		logger.Info().Str("addr", cfg.Listen).Str("origin", cfg.Origin).
			Str("backend", cfg.Backend.Type).Msg("Starting cache proxy")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info().Msg("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Shutdown failed")
	}
}

// buildStorage creates the configured backend and a cleanup function.
func buildStorage(cfg BackendConfig) (cache.Storage, func(), error) {
	switch cfg.Type {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		if err := client.Ping(context.Background()).Err(); err != nil {
			return nil, nil, fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		store := storage.NewRedis(client, cfg.Redis.Prefix, time.Duration(cfg.Redis.TTLSeconds)*time.Second)
		return store, func() { client.Close() }, nil

	case "disk":
		store, err := storage.NewDisk(cfg.Disk.Path)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil

	default:
		store, err := storage.NewMemory(storage.MemoryConfig{
			MaxSizeMB: cfg.Memory.MaxSizeMB,
			Eviction:  time.Duration(cfg.Memory.EvictionSeconds) * time.Second,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	}
}

// proxyHandler rewrites incoming requests against the origin and sends them
// through the cache engine.
func proxyHandler(engine *cache.Engine, origin *url.URL) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		target := *origin
		target.Path = r.URL.Path
		target.RawQuery = r.URL.RawQuery

		req, err := http.NewRequestWithContext(r.Context(), r.Method, target.String(), r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		req.Header = r.Header.Clone()
		req.Host = origin.Host

		resp, err := engine.RoundTrip(req)
		if err != nil {
			http.Error(w, fmt.Sprintf("upstream request failed: %v", err), http.StatusBadGateway)
			return
		}
		defer resp.Body.Close()

		for key, values := range resp.Header {
			for _, value := range values {
				w.Header().Add(key, value)
			}
		}
		w.WriteHeader(resp.StatusCode)
		if _, err := io.Copy(w, resp.Body); err != nil {
			logger := logging.NewLogger("cache-proxy")
			logger.Warn().Err(err).Msg("Failed to write response body")
		}
	}
}
