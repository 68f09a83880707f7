// Tracelane - Vehicle Presence Ingestion and Correlation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracelane

package ingest

import (
	"fmt"
	"regexp"
	"strings"
)

// minReaderIDLen is the shortest reader id accepted for auto-creation.
const minReaderIDLen = 2

// PlatePattern is one vehicle-plate shape that reader ids must not match.
type PlatePattern struct {
	Name    string
	Example string
	re      *regexp.Regexp
}

// Matches reports whether the normalized id has this plate shape.
func (p PlatePattern) Matches(id string) bool {
	return p.re.MatchString(id)
}

// PlatePatterns are checked against the trimmed, uppercased id.
//
//	current   ^\d{4}[A-Z]{3}$              1234ABC
//	provincial ^[A-Z]{1,2}\d{1,4}[A-Z]{1,3}$ M1234AB
//	short      ^\d{4}[A-Z]{2,3}$            1234AB
var PlatePatterns = []PlatePattern{
	{Name: "current", Example: "1234ABC", re: regexp.MustCompile(`^\d{4}[A-Z]{3}$`)},
	{Name: "provincial", Example: "M1234AB", re: regexp.MustCompile(`^[A-Z]{1,2}\d{1,4}[A-Z]{1,3}$`)},
	{Name: "short", Example: "1234AB", re: regexp.MustCompile(`^\d{4}[A-Z]{2,3}$`)},
}

// Verdict is the outcome of CheckReaderID.
type Verdict struct {
	Safe       bool   `json:"safe"`
	Reason     string `json:"reason"`
	Suggestion string `json:"suggestion,omitempty"`
}

// NormalizeReaderID trims and uppercases a reader id.
func NormalizeReaderID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}

// LooksLikePlate reports whether id matches any plate pattern.
func LooksLikePlate(id string) bool {
	n := NormalizeReaderID(id)
	for _, p := range PlatePatterns {
		if p.Matches(n) {
			return true
		}
	}
	return false
}

// CheckReaderID decides whether an unknown reader id may be created
// automatically. It has no side effects.
func CheckReaderID(id string) Verdict {
	n := NormalizeReaderID(id)

	for _, p := range PlatePatterns {
		if p.Matches(n) {
			return Verdict{
				Reason:     fmt.Sprintf("%q looks like a vehicle plate (%s format, e.g. %s), not a reader", n, p.Name, p.Example),
				Suggestion: fmt.Sprintf("check that %q is a physical LPR camera and that the reader and plate columns are not swapped", n),
			}
		}
	}

	if len([]rune(n)) < minReaderIDLen {
		return Verdict{
			Reason:     fmt.Sprintf("%q is too short to be a reader id", n),
			Suggestion: "reader ids are usually descriptive codes such as L-01 or CAM_NORTH",
		}
	}

	return Verdict{Safe: true, Reason: fmt.Sprintf("%q looks like a valid reader id", n)}
}
