// Tracelane - Vehicle Presence Ingestion and Correlation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracelane

/*
Package services adapts Tracelane components to suture's Serve pattern.

HTTPServerService turns http.Server's blocking ListenAndServe into a
context-aware service with a bounded graceful shutdown.

CacheGCService periodically runs garbage collection on a result cache
backend that supports it, such as the Badger store's value log.

Both implement fmt.Stringer so supervisor events name them.
*/
package services
