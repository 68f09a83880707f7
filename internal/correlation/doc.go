// Tracelane - Vehicle Presence Ingestion and Correlation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracelane

/*
Package correlation runs the investigative matchers over stored presence
records.

Matchers:

  - Cross-source: plates present both in a case's external datasets and in
    its LPR readings. One match per plate, pairing the first external record
    with the earliest reading. Available synchronously and as a background
    task with stage progress.
  - Multi-case: plates read by LPR cameras in at least two of the given
    cases, grouped by plate and case.
  - Shadow vehicles: plates that repeatedly pass the same readers as a
    target plate within a time window.

Shadow detection is the expensive one. CachedShadowDetector memoizes its
results in a cache.Store keyed by the request.

Invalid input is reported with ErrInvalidRequest so the API can answer 400.
Store failures are returned wrapped.
*/
package correlation
