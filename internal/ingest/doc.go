// Tracelane - Vehicle Presence Ingestion and Correlation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracelane

/*
Package ingest turns uploaded spreadsheets into presence and external records.

# Overview

An ingestion job reads a tabular file (.xlsx, .xlsm, .csv or .txt), maps its
columns onto canonical fields and writes the accepted rows to the store in
fixed-size batches:

	Upload (temp file)
	       ↓
	ReadTable          columns + raw cell strings
	       ↓
	Mapping            canonical field → column, validated at submission
	       ↓
	row normalization  plate, timestamp, coordinates, reader
	       ↓
	dedup              per-job seen set + store lookup per batch
	       ↓
	InsertPresenceBatch / InsertExternalBatch (one transaction per batch)

# Failure Classes

Row-level problems (empty plate, unparseable timestamp, rejected reader id)
are collected as RowError values and the row is skipped. Duplicates are
counted separately and are not errors. Unparseable coordinates become null.

Job-level problems (missing mandatory mapping, unreadable file, mapped column
absent from the header, store failure) fail the job. The file record and
every row already committed under it are deleted. The temporary upload is
always removed.

# Reader Safety

LPR rows reference a reader (camera) by id. Unknown readers are created on
the fly, but only when CheckReaderID accepts the id. Ids shaped like vehicle
plates are refused, since a swapped column would otherwise flood the reader
table with plates.
*/
package ingest
