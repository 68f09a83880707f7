// Tracelane - Vehicle Presence Ingestion and Correlation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracelane

package models

import "time"

// FileRecord is the metadata row written for every ingested upload.
type FileRecord struct {
	ID          int64      `json:"id"`
	CaseID      int64      `json:"case_id"`
	Filename    string     `json:"filename"`
	SourceKind  SourceKind `json:"source_kind"`
	RecordCount int        `json:"record_count"`
	StoredPath  string     `json:"stored_path,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}
