// Tracelane - Vehicle Presence Ingestion and Correlation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracelane

package services

import (
	"context"
	"time"

	"github.com/tomtom215/tracelane/internal/cache"
	"github.com/tomtom215/tracelane/internal/logging"
)

// CacheGCService runs garbage collection on a result cache backend at a
// fixed interval. GC failures are logged and retried on the next tick; they
// never crash the service.
//
//	if c, ok := store.(cache.Collector); ok {
//	    tree.AddDataService(services.NewCacheGCService(c, 10*time.Minute))
//	}
type CacheGCService struct {
	collector cache.Collector
	interval  time.Duration
	name      string
}

// NewCacheGCService wraps collector. A non-positive interval means 10m.
func NewCacheGCService(collector cache.Collector, interval time.Duration) *CacheGCService {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &CacheGCService{
		collector: collector,
		interval:  interval,
		name:      "result-cache-gc",
	}
}

// Serve implements suture.Service.
func (s *CacheGCService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			start := time.Now()
			if err := s.collector.RunGC(); err != nil {
				logging.Warn().Err(err).Str("service", s.name).Msg("Result cache GC failed")
				continue
			}
			logging.Debug().Dur("duration", time.Since(start)).Msg("Result cache GC completed")
		}
	}
}

// String implements fmt.Stringer.
func (s *CacheGCService) String() string {
	return s.name
}
