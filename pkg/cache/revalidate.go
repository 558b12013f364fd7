package cache

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// revalidationJob carries everything a worker needs to refresh one entry.
type revalidationJob struct {
	key  string
	host string
	req  *http.Request
}

// revalidator refreshes entries served under stale-while-revalidate.
// Scheduling never blocks request processing: when the queue is full the
// job is dropped and the entry stays stale until the next stale hit.
// At most one refresh per cache key is in flight at a time.
type revalidator struct {
	engine  *Engine
	jobs    chan revalidationJob
	timeout time.Duration
	logger  zerolog.Logger

	mu       sync.Mutex
	inflight map[string]bool
	stopped  bool

	wg sync.WaitGroup
}

func newRevalidator(engine *Engine, workers, queue int, timeout time.Duration) *revalidator {
	if workers <= 0 {
		workers = 1
	}
	if queue <= 0 {
		queue = 16
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	r := &revalidator{
		engine:   engine,
		jobs:     make(chan revalidationJob, queue),
		timeout:  timeout,
		logger:   log.With().Str("component", "cache-revalidator").Logger(),
		inflight: make(map[string]bool),
	}
	r.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go r.worker()
	}
	return r
}

// schedule queues a background refresh for the entry under key. Duplicate
// keys already queued or running are ignored.
func (r *revalidator) schedule(key, host string, req *http.Request) {
	// the refresh must outlive the request that triggered it
	job := revalidationJob{key: key, host: host, req: req.Clone(context.WithoutCancel(req.Context()))}

	// the send stays under the lock: stop sets stopped under the same lock
	// before closing the queue, so no send can hit a closed channel
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped || r.inflight[key] {
		return
	}
	select {
	case r.jobs <- job:
		r.inflight[key] = true
	default:
		r.logger.Debug().Str("key", key).Msg("revalidation queue full, dropping refresh")
	}
}

func (r *revalidator) worker() {
	defer r.wg.Done()
	for job := range r.jobs {
		ctx, cancel := context.WithTimeout(job.req.Context(), r.timeout)
		if err := r.engine.refresh(ctx, job.host, job.req); err != nil {
			r.logger.Warn().Err(err).Str("key", job.key).Msg("background revalidation failed")
		}
		cancel()
		r.done(job.key)
	}
}

func (r *revalidator) done(key string) {
	r.mu.Lock()
	delete(r.inflight, key)
	r.mu.Unlock()
}

// stop closes the queue and waits for running refreshes to finish.
// Safe to call more than once.
func (r *revalidator) stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	r.mu.Unlock()

	close(r.jobs)
	r.wg.Wait()
}
