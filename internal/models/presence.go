// Tracelane - Vehicle Presence Ingestion and Correlation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracelane

package models

import "time"

// PresenceRecord is one observation of a plate at a place and time.
// Records are immutable once written. (CaseID, Plate, ObservedAt, ReaderID)
// is unique within a case.
type PresenceRecord struct {
	ID         int64      `json:"id"`
	CaseID     int64      `json:"case_id"`
	FileID     int64      `json:"file_id"`
	Plate      string     `json:"plate"`
	ObservedAt time.Time  `json:"observed_at"`
	ReaderID   *string    `json:"reader_id,omitempty"`
	Latitude   *float64   `json:"latitude,omitempty"`
	Longitude  *float64   `json:"longitude,omitempty"`
	Lane       *string    `json:"lane,omitempty"`
	Speed      *float64   `json:"speed,omitempty"`
	SourceKind SourceKind `json:"source_kind"`
}

// DedupKey identifies a presence record for duplicate detection. It is
// comparable and safe to use as a map key.
type DedupKey struct {
	CaseID   int64
	Plate    string
	At       int64  // observed_at in Unix microseconds, the store's precision
	ReaderID string // empty when the record has no reader
}

// NewDedupKey builds the key for a record observed at t.
func NewDedupKey(caseID int64, plate string, t time.Time, readerID string) DedupKey {
	return DedupKey{CaseID: caseID, Plate: plate, At: t.UnixMicro(), ReaderID: readerID}
}

// Time returns the observation time of the key in UTC.
func (k DedupKey) Time() time.Time {
	return time.UnixMicro(k.At).UTC()
}

// Key returns the dedup key of the record.
func (p *PresenceRecord) Key() DedupKey {
	reader := ""
	if p.ReaderID != nil {
		reader = *p.ReaderID
	}
	return NewDedupKey(p.CaseID, p.Plate, p.ObservedAt, reader)
}

// Reading is a presence record joined with its reader, as returned by
// correlation queries.
type Reading struct {
	ID         int64     `json:"id"`
	CaseID     int64     `json:"case_id"`
	Plate      string    `json:"plate"`
	ObservedAt time.Time `json:"observed_at"`
	ReaderID   string    `json:"reader_id,omitempty"`
	ReaderName string    `json:"reader_name,omitempty"`
	Road       string    `json:"road,omitempty"`
	Province   string    `json:"province,omitempty"`
	Locality   string    `json:"locality,omitempty"`
	Latitude   *float64  `json:"latitude,omitempty"`
	Longitude  *float64  `json:"longitude,omitempty"`
}
