// Tracelane - Vehicle Presence Ingestion and Correlation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracelane

package tasks

import (
	"context"
	"time"

	"github.com/tomtom215/tracelane/internal/logging"
	"github.com/tomtom215/tracelane/internal/metrics"
)

// SweeperConfig holds the sweep cadence and thresholds.
type SweeperConfig struct {
	Interval     time.Duration
	Retention    time.Duration
	StuckTimeout time.Duration
}

// Sweeper runs Registry.Sweep on a ticker. It is a suture.Service.
type Sweeper struct {
	registry *Registry
	cfg      SweeperConfig
	name     string
}

// NewSweeper creates a sweeper for registry.
func NewSweeper(registry *Registry, cfg SweeperConfig) *Sweeper {
	return &Sweeper{registry: registry, cfg: cfg, name: "task-sweeper"}
}

// Serve implements suture.Service. It returns ctx.Err() on shutdown.
func (s *Sweeper) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			s.SweepOnce(now)
		}
	}
}

// SweepOnce runs a single pass and records its outcome.
func (s *Sweeper) SweepOnce(now time.Time) SweepStats {
	stats := s.registry.Sweep(now, s.cfg.Retention, s.cfg.StuckTimeout)
	if stats.Evicted == 0 && stats.TimedOut == 0 {
		return stats
	}

	metrics.RecordSweep(stats.Evicted, stats.TimedOut)
	ev := logging.Info()
	if stats.TimedOut > 0 {
		ev = logging.Warn()
	}
	ev.Str("component", s.name).
		Int("evicted", stats.Evicted).
		Int("timed_out", stats.TimedOut).
		Int("live", stats.Live).
		Msg("task sweep")
	return stats
}

// String implements fmt.Stringer. Suture uses it in log messages.
func (s *Sweeper) String() string {
	return s.name
}
