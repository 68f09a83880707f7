// Tracelane - Vehicle Presence Ingestion and Correlation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracelane

package cache

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/zeebo/xxh3"

	"github.com/tomtom215/tracelane/internal/config"
)

// Backend names accepted by correlation.cache_backend.
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
)

// janitorInterval is how often the memory backend drops expired entries.
const janitorInterval = 10 * time.Minute

// Store is a byte-oriented TTL cache. Implementations are safe for
// concurrent use. Get never fails: any backend error is reported as a miss.
type Store interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration)
	Close() error
}

// Collector is implemented by backends that need periodic maintenance.
type Collector interface {
	RunGC() error
}

// Open creates the backend named by cfg.CacheBackend.
func Open(cfg config.CorrelationConfig) (Store, error) {
	switch cfg.CacheBackend {
	case "", BackendMemory:
		return NewMemory(cfg.ShadowCacheTTL, janitorInterval), nil
	case BackendBadger:
		return OpenBadger(cfg.CachePath)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
	}
}

// Key derives a cache key from the JSON encoding of v. Equal values under
// the same namespace always produce the same key.
//
//	key, err := cache.Key("shadow", req)
func Key(namespace string, v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode cache key: %w", err)
	}
	return fmt.Sprintf("%s:%016x", namespace, xxh3.Hash(data)), nil
}
