// Tracelane - Vehicle Presence Ingestion and Correlation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracelane

/*
Package models defines the data structures shared by the store, the ingestion
pipeline and the correlation engine.

Key Components:

  - SourceKind: LPR, GPS or EXTERNAL, parsed case-insensitively
  - FileRecord: one ingested upload, owner of the rows it produced
  - PresenceRecord: a plate observed at a time, optionally at a reader
  - DedupKey: the comparable identity of a presence record within a case
  - Reader: a fixed detection point, created lazily during ingestion
  - ExternalRecord: a third-party row keyed by plate with free attributes
  - Reading: a presence record joined with its reader for query results

Times are stored and compared in UTC at microsecond precision, which is
what DedupKey encodes.
*/
package models
