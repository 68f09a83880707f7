// Tracelane - Vehicle Presence Ingestion and Correlation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracelane

package models

import "time"

// ExternalRecord is a third-party row keyed by plate within a case.
// Attribute values are nil when the source cell was empty.
type ExternalRecord struct {
	ID         int64              `json:"id"`
	CaseID     int64              `json:"case_id"`
	FileID     int64              `json:"file_id"`
	Plate      string             `json:"plate"`
	SourceName string             `json:"source_name"`
	ObservedAt *time.Time         `json:"observed_at,omitempty"`
	Attributes map[string]*string `json:"attributes"`
}
