// Tracelane - Vehicle Presence Ingestion and Correlation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracelane

/*
Package cache stores encoded correlation results for reuse.

Two backends implement Store:

  - Memory keeps entries in process memory (go-cache). Entries are lost on
    restart.
  - Badger keeps entries on disk and lets badger expire them. Its value log
    needs periodic RunGC calls, which the supervisor schedules. Reads and
    writes pass through a gobreaker circuit breaker that opens after
    repeated store errors.

Keys come from Key, which hashes the JSON encoding of a request with xxh3:

	key, err := cache.Key("shadow", req)
	if data, ok := store.Get(key); ok {
	    // decode data
	}

A cache failure never fails a request. Backends log the error and report a
miss, and the caller computes the result again.

Lookups, writes and the breaker state are exported as result_cache_*
Prometheus metrics.
*/
package cache
