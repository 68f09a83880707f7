// Tracelane - Vehicle Presence Ingestion and Correlation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracelane

package models

import (
	"fmt"
	"strings"
)

// SourceKind identifies where a presence record came from.
type SourceKind string

const (
	// SourceLPR is a fixed license plate reader (camera) export.
	SourceLPR SourceKind = "LPR"

	// SourceGPS is a vehicle GPS track export.
	SourceGPS SourceKind = "GPS"

	// SourceExternal is a third-party dataset correlated by plate only.
	SourceExternal SourceKind = "EXTERNAL"
)

// ParseSourceKind normalizes a user supplied source kind.
func ParseSourceKind(s string) (SourceKind, error) {
	switch k := SourceKind(strings.ToUpper(strings.TrimSpace(s))); k {
	case SourceLPR, SourceGPS, SourceExternal:
		return k, nil
	default:
		return "", fmt.Errorf("unknown source kind %q", s)
	}
}

// String implements fmt.Stringer.
func (k SourceKind) String() string {
	return string(k)
}
