package storage

import (
	"context"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"

	"github.com/cachewright/httpcache/pkg/cache"
)

var _ cache.Storage = (*Disk)(nil)

// Disk is a cache.Storage backed by a goleveldb database. Records survive
// process restarts; the database belongs to a single process at a time.
type Disk struct {
	db *leveldb.DB
}

// NewDisk opens (or creates) the database at path.
func NewDisk(path string) (*Disk, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb at %s: %w", path, err)
	}
	return &Disk{db: db}, nil
}

// Get implements cache.Storage.
func (d *Disk) Get(_ context.Context, key string) (*cache.Entry, error) {
	data, err := d.db.Get([]byte(key), nil)
	if err != nil {
		if err == leveldb.ErrNotFound {
			return nil, cache.ErrNotFound
		}
		storageErrors.WithLabelValues("disk", "get").Inc()
		return nil, fmt.Errorf("leveldb get: %w", err)
	}

	entry, err := decodeEntry(data)
	if err != nil {
		storageCorrupt.WithLabelValues("disk").Inc()
		_ = d.db.Delete([]byte(key), nil)
		return nil, cache.ErrNotFound
	}
	return entry, nil
}

// Put implements cache.Storage.
func (d *Disk) Put(_ context.Context, key string, entry *cache.Entry) error {
	data, err := encodeEntry(entry)
	if err != nil {
		return err
	}
	if err := d.db.Put([]byte(key), data, nil); err != nil {
		storageErrors.WithLabelValues("disk", "put").Inc()
		return fmt.Errorf("leveldb put: %w", err)
	}
	return nil
}

// Remove implements cache.Storage.
func (d *Disk) Remove(_ context.Context, key string) error {
	if err := d.db.Delete([]byte(key), nil); err != nil {
		storageErrors.WithLabelValues("disk", "remove").Inc()
		return fmt.Errorf("leveldb delete: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (d *Disk) Close() error {
	return d.db.Close()
}
