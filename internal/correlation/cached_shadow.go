// Tracelane - Vehicle Presence Ingestion and Correlation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracelane

package correlation

import (
	"context"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/tracelane/internal/cache"
	"github.com/tomtom215/tracelane/internal/logging"
)

const shadowNamespace = "shadow"

// CachedShadowDetector memoizes an Engine's shadow results in a cache.Store.
// Requests are normalized before hashing, so a request that spells out the
// defaults shares its entry with one that omits them.
//
// Cached results are not invalidated by later ingestion; they age out after
// the TTL.
type CachedShadowDetector struct {
	engine *Engine
	store  cache.Store
	ttl    time.Duration
}

// NewCachedShadowDetector wraps engine. A non-positive ttl uses the
// configured shadow_cache_ttl.
func NewCachedShadowDetector(engine *Engine, store cache.Store, ttl time.Duration) *CachedShadowDetector {
	if ttl <= 0 {
		ttl = engine.cfg.ShadowCacheTTL
	}
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &CachedShadowDetector{engine: engine, store: store, ttl: ttl}
}

// DetectShadows implements ShadowDetector.
func (d *CachedShadowDetector) DetectShadows(ctx context.Context, req ShadowRequest) (*ShadowResult, error) {
	req, err := d.engine.withDefaults(req)
	if err != nil {
		return nil, err
	}
	log := logging.Ctx(ctx)

	key, err := cache.Key(shadowNamespace, req)
	if err != nil {
		log.Warn().Err(err).Msg("Shadow cache key unavailable")
		return d.engine.DetectShadows(ctx, req)
	}

	if data, ok := d.store.Get(key); ok {
		var cached ShadowResult
		if err := json.Unmarshal(data, &cached); err == nil {
			log.Debug().Str("key", key).Msg("Shadow result served from cache")
			return &cached, nil
		}
		log.Warn().Str("key", key).Msg("Discarding undecodable shadow cache entry")
	}

	res, err := d.engine.DetectShadows(ctx, req)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(res); err == nil {
		d.store.Set(key, data, d.ttl)
	} else {
		log.Warn().Err(err).Msg("Failed to encode shadow result for cache")
	}
	return res, nil
}

var _ ShadowDetector = (*CachedShadowDetector)(nil)
