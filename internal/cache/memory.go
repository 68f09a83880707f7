// Tracelane - Vehicle Presence Ingestion and Correlation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracelane

package cache

import (
	"bytes"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/tomtom215/tracelane/internal/metrics"
)

// Memory is a process-local Store backed by go-cache.
type Memory struct {
	c *gocache.Cache
}

// NewMemory creates a memory store. Entries set with a non-positive ttl use
// defaultTTL. A non-positive janitor interval disables background expiry;
// expired entries are then dropped by RunGC or on read.
func NewMemory(defaultTTL, janitor time.Duration) *Memory {
	if janitor <= 0 {
		janitor = -1
	}
	return &Memory{c: gocache.New(defaultTTL, janitor)}
}

// Get implements Store.
func (m *Memory) Get(key string) ([]byte, bool) {
	v, found := m.c.Get(key)
	data, ok := v.([]byte)
	hit := found && ok
	metrics.RecordCacheLookup(BackendMemory, hit)
	if !hit {
		return nil, false
	}
	return data, true
}

// Set implements Store. The value is copied.
func (m *Memory) Set(key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = gocache.DefaultExpiration
	}
	m.c.Set(key, bytes.Clone(value), ttl)
	metrics.RecordCacheSet(BackendMemory)
}

// Len returns the number of stored entries, including expired ones not yet
// collected.
func (m *Memory) Len() int {
	return m.c.ItemCount()
}

// RunGC drops expired entries.
func (m *Memory) RunGC() error {
	m.c.DeleteExpired()
	return nil
}

// Close empties the store. go-cache stops its janitor once the store is
// garbage collected.
func (m *Memory) Close() error {
	m.c.Flush()
	return nil
}

var (
	_ Store     = (*Memory)(nil)
	_ Collector = (*Memory)(nil)
)
