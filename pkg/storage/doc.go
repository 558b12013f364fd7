// Package storage provides cache.Storage backends.
//
// Three backends are included:
//
// - Redis for shared, cross-process caches with server-side expiry
// - Memory (bigcache) for fast in-process caching with bounded memory
// - Disk (goleveldb) for persistent single-node caching
//
// All backends store entries as JSON and report corrupt records as
// cache.ErrNotFound after removing them, so a damaged record behaves like
// a miss rather than an error.
package storage
