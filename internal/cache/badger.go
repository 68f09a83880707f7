// Tracelane - Vehicle Presence Ingestion and Correlation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracelane

package cache

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/tracelane/internal/logging"
	"github.com/tomtom215/tracelane/internal/metrics"
)

const (
	keyPrefix = "result:"
	gcRatio   = 0.5

	// breakerTripFailures consecutive store errors open the breaker.
	breakerTripFailures = 5
	breakerOpenTimeout  = 30 * time.Second
)

// Badger is a persistent Store. Entries expire through badger's own TTL.
//
// Reads and writes go through a circuit breaker. While it is open every
// lookup is a miss and writes are dropped, so a failing disk costs
// requests nothing but the recomputation.
type Badger struct {
	db *badger.DB
	cb *gobreaker.CircuitBreaker[[]byte]
}

// OpenBadger opens (or creates) a badger store in dir.
func OpenBadger(dir string) (*Badger, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	opts.ValueLogFileSize = 64 << 20
	return openBadger(opts)
}

// OpenBadgerInMemory opens a badger store without a directory.
func OpenBadgerInMemory() (*Badger, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	return openBadger(opts)
}

func openBadger(opts badger.Options) (*Badger, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger result cache: %w", err)
	}
	return &Badger{db: db, cb: newBreaker("result-cache-" + BackendBadger)}, nil
}

func newBreaker(name string) *gobreaker.CircuitBreaker[[]byte] {
	metrics.CacheBreakerState.WithLabelValues(name).Set(float64(gobreaker.StateClosed))
	return gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     breakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerTripFailures
		},
		// A missing key is an answer, not a store failure.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, badger.ErrKeyNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Result cache breaker state change")
			metrics.CacheBreakerState.WithLabelValues(name).Set(float64(to))
		},
	})
}

func rejected(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// Get implements Store.
func (b *Badger) Get(key string) ([]byte, bool) {
	data, err := b.cb.Execute(func() ([]byte, error) {
		var data []byte
		err := b.db.View(func(txn *badger.Txn) error {
			item, err := txn.Get([]byte(keyPrefix + key))
			if err != nil {
				return err
			}
			data, err = item.ValueCopy(nil)
			return err
		})
		return data, err
	})
	switch {
	case err == nil, errors.Is(err, badger.ErrKeyNotFound):
	case rejected(err):
		logging.Debug().Str("key", key).Msg("Result cache read skipped, breaker open")
	default:
		logging.Warn().Err(err).Str("key", key).Msg("Result cache read failed")
	}
	hit := err == nil
	metrics.RecordCacheLookup(BackendBadger, hit)
	if !hit {
		return nil, false
	}
	return data, true
}

// Set implements Store. A non-positive ttl stores the entry without expiry.
func (b *Badger) Set(key string, value []byte, ttl time.Duration) {
	_, err := b.cb.Execute(func() ([]byte, error) {
		return nil, b.db.Update(func(txn *badger.Txn) error {
			e := badger.NewEntry([]byte(keyPrefix+key), value)
			if ttl > 0 {
				e = e.WithTTL(ttl)
			}
			return txn.SetEntry(e)
		})
	})
	switch {
	case err == nil:
		metrics.RecordCacheSet(BackendBadger)
	case rejected(err):
		logging.Debug().Str("key", key).Msg("Result cache write skipped, breaker open")
	default:
		logging.Warn().Err(err).Str("key", key).Msg("Result cache write failed")
	}
}

// BreakerState reports the state of the store's circuit breaker.
func (b *Badger) BreakerState() gobreaker.State {
	return b.cb.State()
}

// RunGC rewrites value log files until badger reports nothing left to
// reclaim.
func (b *Badger) RunGC() error {
	for {
		err := b.db.RunValueLogGC(gcRatio)
		switch {
		case err == nil:
			continue
		case errors.Is(err, badger.ErrNoRewrite), errors.Is(err, badger.ErrGCInMemoryMode):
			return nil
		default:
			return fmt.Errorf("result cache GC: %w", err)
		}
	}
}

// Close flushes and closes the database.
func (b *Badger) Close() error {
	return b.db.Close()
}

var (
	_ Store     = (*Badger)(nil)
	_ Collector = (*Badger)(nil)
)
