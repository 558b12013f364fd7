package storage

import (
	"encoding/json"
	"fmt"

	"github.com/cachewright/httpcache/pkg/cache"
)

func encodeEntry(entry *cache.Entry) ([]byte, error) {
	if entry == nil {
		return nil, fmt.Errorf("cache entry cannot be nil")
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("marshal cache entry: %w", err)
	}
	return data, nil
}

func decodeEntry(data []byte) (*cache.Entry, error) {
	var entry cache.Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("unmarshal cache entry: %w", err)
	}
	return &entry, nil
}
