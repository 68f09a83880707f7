// Tracelane - Vehicle Presence Ingestion and Correlation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracelane

package models

import "time"

// Reader is a fixed detection point, usually an LPR camera.
// Readers are created lazily during ingestion and never deleted automatically.
type Reader struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	Road      string    `json:"road,omitempty"`
	Province  string    `json:"province,omitempty"`
	Locality  string    `json:"locality,omitempty"`
	Latitude  *float64  `json:"latitude,omitempty"`
	Longitude *float64  `json:"longitude,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// HasCoordinates reports whether both axes are known.
func (r *Reader) HasCoordinates() bool {
	return r != nil && r.Latitude != nil && r.Longitude != nil
}
