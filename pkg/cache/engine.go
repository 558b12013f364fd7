package cache

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// cacheStatusName identifies this cache in Cache-Status fields (RFC 9211).
const cacheStatusName = "httpcache"

// Config holds the engine configuration.
type Config struct {
	// Upstream is the transport used to reach origin servers.
	// Defaults to http.DefaultTransport.
	Upstream http.RoundTripper

	// Storage is the backend entries are persisted to. Required.
	Storage Storage

	// SharedCache selects shared-cache semantics: s-maxage is honored,
	// private responses and unmarked responses to authorized requests are
	// not stored.
	SharedCache bool

	// HeuristicEnabled allows freshness to be inferred from Last-Modified
	// when a response carries no explicit expiration.
	HeuristicEnabled bool

	// HeuristicFraction is the fraction of the Last-Modified interval used
	// as the heuristic lifetime. Zero means DefaultHeuristicFraction.
	HeuristicFraction float64

	// Trust304WithMismatchedETag keeps the stored entry when a 304 carries
	// a different entity tag than the one revalidated. When false (the
	// default) the entry is discarded and the request forwarded
	// unconditionally.
	Trust304WithMismatchedETag bool

	// CacheableMethods are the request methods served from the cache.
	// Defaults to GET and HEAD. Only responses to GET are stored; HEAD
	// requests are answered from the stored GET entry with the body
	// stripped, since a stored bodiless HEAD response would shadow the
	// GET entry under the same key.
	CacheableMethods []string

	// CacheableStatuses overrides the default heuristically-cacheable
	// status set when non-nil.
	CacheableStatuses map[int]bool

	// MaxBodyBytes caps the size of bodies admitted to storage.
	// Zero means no limit.
	MaxBodyBytes int64

	// RevalidationWorkers is the number of background workers refreshing
	// entries served under stale-while-revalidate.
	RevalidationWorkers int

	// RevalidationQueue bounds the number of pending background refreshes.
	RevalidationQueue int

	// RevalidationTimeout bounds a single background refresh.
	RevalidationTimeout time.Duration
}

// DefaultConfig returns a safe default configuration over the given
// storage: a shared cache with heuristic freshness enabled.
func DefaultConfig(storage Storage) Config {
	return Config{
		Storage:             storage,
		SharedCache:         true,
		HeuristicEnabled:    true,
		HeuristicFraction:   DefaultHeuristicFraction,
		CacheableMethods:    []string{http.MethodGet, http.MethodHead},
		RevalidationWorkers: 2,
		RevalidationQueue:   64,
		RevalidationTimeout: 30 * time.Second,
	}
}

// Engine decides, per request, whether a stored response may be served
// verbatim, must be revalidated with the origin, or must be forwarded
// unconditionally, and stores or invalidates entries based on what comes
// back. It implements http.RoundTripper so it can be installed as an
// http.Client transport.
//
// The engine carries no cross-request state beyond what the storage
// backend persists; a single Engine is safe for concurrent use.
type Engine struct {
	upstream     http.RoundTripper
	storage      Storage
	validity     ValidityPolicy
	cacheability CacheabilityPolicy
	invalidator  *Invalidator
	trust304     bool
	maxBodyBytes int64
	logger       zerolog.Logger
	revalidator  *revalidator
}

// New creates an engine from cfg.
func New(cfg Config) (*Engine, error) {
	if cfg.Storage == nil {
		return nil, fmt.Errorf("storage is required")
	}
	upstream := cfg.Upstream
	if upstream == nil {
		upstream = http.DefaultTransport
	}

	e := &Engine{
		upstream: upstream,
		storage:  cfg.Storage,
		validity: ValidityPolicy{
			SharedCache:       cfg.SharedCache,
			HeuristicEnabled:  cfg.HeuristicEnabled,
			HeuristicFraction: cfg.HeuristicFraction,
		},
		cacheability: CacheabilityPolicy{
			SharedCache:      cfg.SharedCache,
			HeuristicEnabled: cfg.HeuristicEnabled,
			Methods:          cfg.CacheableMethods,
			Statuses:         cfg.CacheableStatuses,
		},
		invalidator:  NewInvalidator(cfg.Storage),
		trust304:     cfg.Trust304WithMismatchedETag,
		maxBodyBytes: cfg.MaxBodyBytes,
		logger:       log.With().Str("component", "cache-engine").Logger(),
	}
	e.revalidator = newRevalidator(e, cfg.RevalidationWorkers, cfg.RevalidationQueue, cfg.RevalidationTimeout)
	return e, nil
}

// Close stops the background revalidation workers and waits for in-flight
// refreshes to finish.
func (e *Engine) Close() error {
	e.revalidator.stop()
	return nil
}

// RoundTrip implements http.RoundTripper.
func (e *Engine) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	host := requestOrigin(req)
	key := GenerateKey(host, req)

	if !safeMethods[req.Method] {
		e.invalidator.OnRequest(ctx, host, req)
	}
	if !e.cacheability.MethodAllowed(req.Method) {
		return e.forward(ctx, host, key, req, "method")
	}

	reqCC := ParseCacheControl(req.Header.Values("Cache-Control"))

	entry, entryKey, err := e.lookup(ctx, key, req)
	if err != nil {
		storageDegraded.Inc()
		e.logger.Warn().Err(err).Str("key", key).Msg("storage lookup failed, forwarding without cache")
		return e.forwardUncached(req, "miss")
	}

	now := time.Now()
	if entry == nil {
		cacheMisses.Inc()
		if reqCC.OnlyIfCached() {
			return gatewayTimeout(req), nil
		}
		return e.forward(ctx, host, key, req, "miss")
	}

	if e.isServableFresh(entry, reqCC, now) {
		cacheHits.WithLabelValues("fresh").Inc()
		e.logger.Debug().Str("key", entryKey).Msg("serving fresh entry")
		return e.serve(entry, req, now, ""), nil
	}

	if reqCC.OnlyIfCached() {
		return gatewayTimeout(req), nil
	}

	if e.validity.MayServeStaleWhileRevalidate(entry, now) {
		cacheHits.WithLabelValues("stale_while_revalidate").Inc()
		e.logger.Debug().Str("key", entryKey).Msg("serving stale entry, revalidating in background")
		e.revalidator.schedule(entryKey, host, req)
		return e.serve(entry, req, now, "stale-while-revalidate"), nil
	}

	return e.revalidate(ctx, host, key, entryKey, req, entry)
}

// isServableFresh applies the entry's freshness plus any request-side
// constraints: no-cache forces revalidation and max-age tightens the
// acceptable age.
func (e *Engine) isServableFresh(entry *Entry, reqCC CacheControl, now time.Time) bool {
	if reqCC.NoCache() {
		return false
	}
	respCC := ParseCacheControl(entry.HeaderValues("Cache-Control"))
	if respCC.NoCache() {
		return false
	}
	if !e.validity.IsFresh(entry, now) {
		return false
	}
	if limit, ok := reqCC.MaxAge(); ok && e.validity.CurrentAge(entry, now) > limit {
		return false
	}
	return true
}

// lookup resolves the entry for the request, following the variant map
// when the base entry tracks content-negotiated children.
func (e *Engine) lookup(ctx context.Context, key string, req *http.Request) (*Entry, string, error) {
	entry, err := e.storage.Get(ctx, key)
	if err == ErrNotFound {
		return nil, key, nil
	}
	if err != nil {
		return nil, key, err
	}
	if !entry.HasVariants() {
		if !methodCompatible(req.Method, entry.Method) {
			return nil, key, nil
		}
		return entry, key, nil
	}

	variantCacheKey, ok := entry.Variants[GenerateVariantKey(req, entry)]
	if !ok {
		return nil, key, nil
	}
	variant, err := e.storage.Get(ctx, variantCacheKey)
	if err == ErrNotFound {
		return nil, key, nil
	}
	if err != nil {
		return nil, key, err
	}
	if !methodCompatible(req.Method, variant.Method) {
		return nil, key, nil
	}
	return variant, variantCacheKey, nil
}

// methodCompatible reports whether an entry produced by entryMethod may
// answer a request using reqMethod. A GET entry answers HEAD requests; the
// body is stripped at serve time.
func methodCompatible(reqMethod, entryMethod string) bool {
	if reqMethod == entryMethod {
		return true
	}
	return reqMethod == http.MethodHead && entryMethod == http.MethodGet
}

// forward sends the request upstream and stores the response when the
// exchange is cacheable.
func (e *Engine) forward(ctx context.Context, host, key string, req *http.Request, reason string) (*http.Response, error) {
	requestTime := time.Now()
	resp, err := e.upstream.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	responseTime := time.Now()

	e.invalidator.OnResponse(ctx, host, req, resp)

	if !e.cacheability.IsCacheable(req, resp) {
		setCacheStatus(resp.Header, "fwd="+reason)
		return resp, nil
	}

	stored, err := e.store(ctx, key, req, resp, requestTime, responseTime)
	if err != nil {
		storageDegraded.Inc()
		e.logger.Warn().Err(err).Str("key", key).Msg("storing response failed")
		setCacheStatus(resp.Header, "fwd="+reason)
		return resp, nil
	}
	if stored {
		setCacheStatus(resp.Header, "fwd="+reason+"; stored")
	} else {
		setCacheStatus(resp.Header, "fwd="+reason)
	}
	return resp, nil
}

// forwardUncached bypasses lookup and storage entirely; used when the
// storage backend is unavailable.
func (e *Engine) forwardUncached(req *http.Request, reason string) (*http.Response, error) {
	resp, err := e.upstream.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	setCacheStatus(resp.Header, "fwd="+reason)
	return resp, nil
}

// store reads the response body, builds an immutable entry and writes it
// under the appropriate cache identifier. The response body is restored
// for the caller. Returns false when the body exceeds the admission limit.
//
// Entry construction is atomic (build, then put): a cancelled request can
// abort the write but never leaves a partially written entry behind.
func (e *Engine) store(ctx context.Context, key string, req *http.Request, resp *http.Response, requestTime, responseTime time.Time) (bool, error) {
	// HEAD responses have no body and would shadow the GET entry at the
	// same key
	if req.Method == http.MethodHead {
		return false, nil
	}
	if e.maxBodyBytes > 0 && resp.ContentLength > e.maxBodyBytes {
		return false, nil
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("read response body: %w", err)
	}
	if e.maxBodyBytes > 0 && int64(len(body)) > e.maxBodyBytes {
		return false, nil
	}

	entry := NewEntryFromResponse(req, resp, body, requestTime, responseTime)

	if entry.HasVariants() {
		variantKey := GenerateVariantKey(req, entry)
		variantCacheKey := variantKey + key
		if err := e.storage.Put(ctx, variantCacheKey, entry); err != nil {
			return false, fmt.Errorf("store variant: %w", err)
		}
		if err := e.storage.Put(ctx, key, e.baseEntryWith(ctx, key, entry, variantKey, variantCacheKey)); err != nil {
			return false, fmt.Errorf("store base entry: %w", err)
		}
	} else {
		if err := e.storage.Put(ctx, key, entry); err != nil {
			return false, fmt.Errorf("store entry: %w", err)
		}
	}
	cacheStores.Inc()
	return true, nil
}

// baseEntryWith refreshes the base entry's variant map with the new child.
// The base entry of a varying resource routes lookups only and keeps no
// body of its own.
func (e *Engine) baseEntryWith(ctx context.Context, key string, entry *Entry, variantKey, variantCacheKey string) *Entry {
	base := &Entry{
		Method:       entry.Method,
		RequestTime:  entry.RequestTime,
		ResponseTime: entry.ResponseTime,
		StatusCode:   entry.StatusCode,
		Headers:      entry.Headers,
	}
	if existing, err := e.storage.Get(ctx, key); err == nil {
		for k, v := range existing.Variants {
			base = base.WithVariant(k, v)
		}
	}
	return base.WithVariant(variantKey, variantCacheKey)
}

// revalidate sends a conditional request for a stale entry and serves the
// outcome: a 304 freshens the entry, a full response replaces it, and a
// failure falls back to the stale entry when stale-if-error permits.
func (e *Engine) revalidate(ctx context.Context, host, key, entryKey string, req *http.Request, entry *Entry) (*http.Response, error) {
	condReq := BuildConditionalRequest(req, entry)
	requestTime := time.Now()
	resp, err := e.upstream.RoundTrip(condReq)
	if err != nil {
		if e.validity.MayServeStaleIfError(entry, time.Now()) {
			cacheHits.WithLabelValues("stale_if_error").Inc()
			cacheRevalidations.WithLabelValues("error").Inc()
			e.logger.Warn().Err(err).Str("key", entryKey).Msg("revalidation failed, serving stale entry")
			return e.serve(entry, req, time.Now(), "stale-if-error"), nil
		}
		return nil, err
	}
	responseTime := time.Now()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		drain(resp)
		if etagsConflict(entry, resp) && !e.trust304 {
			// the origin answered for a different representation than the
			// one stored; discard and start over unconditionally
			cacheRevalidations.WithLabelValues("etag_mismatch").Inc()
			e.logger.Warn().Str("key", entryKey).Str("etag", resp.Header.Get("ETag")).
				Msg("304 entity tag mismatch, discarding entry")
			e.removeEntry(ctx, entryKey)
			return e.forward(ctx, host, key, req, "stale")
		}
		refreshed := RefreshEntry(entry, resp, requestTime, responseTime)
		if err := e.storage.Put(ctx, entryKey, refreshed); err != nil {
			e.logger.Warn().Err(err).Str("key", entryKey).Msg("storing refreshed entry failed")
		}
		cacheRevalidations.WithLabelValues("not_modified").Inc()
		return e.serve(refreshed, req, time.Now(), ""), nil

	case resp.StatusCode >= http.StatusInternalServerError && e.validity.MayServeStaleIfError(entry, responseTime):
		drain(resp)
		cacheHits.WithLabelValues("stale_if_error").Inc()
		cacheRevalidations.WithLabelValues("error").Inc()
		e.logger.Warn().Int("status", resp.StatusCode).Str("key", entryKey).
			Msg("origin error during revalidation, serving stale entry")
		return e.serve(entry, req, responseTime, "stale-if-error"), nil

	default:
		// the full response supersedes whatever was stored
		cacheRevalidations.WithLabelValues("modified").Inc()
		e.invalidator.OnResponse(ctx, host, req, resp)
		if !e.cacheability.IsCacheable(req, resp) {
			e.removeEntry(ctx, entryKey)
			setCacheStatus(resp.Header, "fwd=stale")
			return resp, nil
		}
		stored, err := e.store(ctx, key, req, resp, requestTime, responseTime)
		if err != nil {
			storageDegraded.Inc()
			e.logger.Warn().Err(err).Str("key", key).Msg("storing replacement entry failed")
		}
		if stored {
			setCacheStatus(resp.Header, "fwd=stale; stored")
		} else {
			setCacheStatus(resp.Header, "fwd=stale")
		}
		return resp, nil
	}
}

// refresh revalidates the stored entry for the request and updates
// storage. It serves nothing; the background revalidator calls it after a
// stale entry has already been returned to the caller.
func (e *Engine) refresh(ctx context.Context, host string, req *http.Request) error {
	key := GenerateKey(host, req)
	entry, entryKey, err := e.lookup(ctx, key, req)
	if err != nil {
		return err
	}
	if entry == nil {
		// evicted since the stale hit; nothing to refresh
		return nil
	}

	condReq := BuildConditionalRequest(req.WithContext(ctx), entry)
	requestTime := time.Now()
	resp, err := e.upstream.RoundTrip(condReq)
	if err != nil {
		cacheRevalidations.WithLabelValues("error").Inc()
		return err
	}
	responseTime := time.Now()
	defer drain(resp)

	if resp.StatusCode == http.StatusNotModified {
		if etagsConflict(entry, resp) && !e.trust304 {
			cacheRevalidations.WithLabelValues("etag_mismatch").Inc()
			e.removeEntry(ctx, entryKey)
			return nil
		}
		cacheRevalidations.WithLabelValues("not_modified").Inc()
		return e.storage.Put(ctx, entryKey, RefreshEntry(entry, resp, requestTime, responseTime))
	}

	cacheRevalidations.WithLabelValues("modified").Inc()
	if !e.cacheability.IsCacheable(req, resp) {
		e.removeEntry(ctx, entryKey)
		return nil
	}
	_, err = e.store(ctx, key, req, resp, requestTime, responseTime)
	return err
}

func (e *Engine) removeEntry(ctx context.Context, key string) {
	if err := e.storage.Remove(ctx, key); err != nil {
		e.logger.Warn().Err(err).Str("key", key).Msg("removing entry failed")
	}
}

// serve synthesizes a response from a stored entry without contacting the
// network. The served Age is recomputed from the entry's timestamps at
// serve time; detail annotates the Cache-Status field for stale serves.
func (e *Engine) serve(entry *Entry, req *http.Request, now time.Time, detail string) *http.Response {
	header := entry.HTTPHeader()

	age := e.validity.CurrentAge(entry, now)
	header.Set("Age", strconv.FormatInt(int64(age/time.Second), 10))

	ttl := (e.validity.FreshnessLifetime(entry) - age) / time.Second
	params := fmt.Sprintf("hit; ttl=%d", ttl)
	if detail != "" {
		params += "; detail=" + detail
	}
	setCacheStatus(header, params)

	var body []byte
	if req.Method != http.MethodHead {
		body = entry.Body
	}
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", entry.StatusCode, http.StatusText(entry.StatusCode)),
		StatusCode:    entry.StatusCode,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}

// gatewayTimeout answers an only-if-cached request that cannot be
// satisfied from the cache.
func gatewayTimeout(req *http.Request) *http.Response {
	header := make(http.Header)
	setCacheStatus(header, "fwd=miss; detail=only-if-cached")
	return &http.Response{
		Status:     fmt.Sprintf("%d %s", http.StatusGatewayTimeout, http.StatusText(http.StatusGatewayTimeout)),
		StatusCode: http.StatusGatewayTimeout,
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
		Header:     header,
		Body:       io.NopCloser(bytes.NewReader(nil)),
		Request:    req,
	}
}

func setCacheStatus(h http.Header, params string) {
	h.Add("Cache-Status", cacheStatusName+"; "+params)
}

func drain(resp *http.Response) {
	if resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

// requestOrigin extracts the scheme://host origin the request targets.
func requestOrigin(req *http.Request) string {
	scheme := "http"
	host := req.Host
	if req.URL != nil {
		if req.URL.Scheme != "" {
			scheme = req.URL.Scheme
		}
		if req.URL.Host != "" {
			host = req.URL.Host
		}
	}
	return scheme + "://" + host
}
