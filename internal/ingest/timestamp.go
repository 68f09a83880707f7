// Tracelane - Vehicle Presence Ingestion and Correlation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracelane

package ingest

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultDatetimeFormat is used for combined date-time columns when the
// mapping does not name a format.
const DefaultDatetimeFormat = "DD/MM/YYYY HH:mm:ss"

// excelEpoch is day zero of spreadsheet date serials.
var excelEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// maxExcelSerial is 9999-12-31, the last date spreadsheets can represent.
const maxExcelSerial = 2958465

// dateLayouts are tried in order against the date portion of a value.
var dateLayouts = []string{
	"2006-1-2",
	"2/1/2006",
	"2-1-2006",
	"2.1.2006",
	"2006/1/2",
}

var clockPattern = regexp.MustCompile(`^(\d{1,2}):(\d{2})(?::(\d{2})(?:[.,]\d+)?)?$`)

// zoneSuffix matches a trailing UTC designator or numeric offset. Offsets
// are dropped and the wall clock is kept.
var zoneSuffix = regexp.MustCompile(`\s*(?:Z|[+-]\d{2}:?\d{2})$`)

func stripZone(s string) string {
	return zoneSuffix.ReplaceAllString(s, "")
}

// formatTokens translate user date-time formats to Go layouts. Longer
// tokens come first.
var formatTokens = strings.NewReplacer(
	"YYYY", "2006",
	"YY", "06",
	"MM", "01",
	"DD", "02",
	"HH", "15",
	"mm", "04",
	"ss", "05",
)

// GoLayout converts a format such as "DD/MM/YYYY HH:mm:ss" to a Go layout.
func GoLayout(format string) string {
	return formatTokens.Replace(format)
}

func parseNumber(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// splitDateTime splits "date time" or "dateTtime" at the first separator.
func splitDateTime(s string) (datePart, timePart string) {
	if i := strings.IndexAny(s, " T"); i >= 0 {
		return s[:i], strings.TrimSpace(s[i+1:])
	}
	return s, ""
}

// ParseDate parses a date cell and returns midnight UTC of that day.
// Spreadsheet serials ignore their fractional part. A trailing time
// portion is ignored.
func ParseDate(v string) (time.Time, error) {
	s := strings.TrimSpace(v)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	if f, ok := parseNumber(s); ok {
		days := math.Floor(f)
		if days < 1 || days > maxExcelSerial {
			return time.Time{}, fmt.Errorf("date serial out of range: %q", v)
		}
		return excelEpoch.AddDate(0, 0, int(days)), nil
	}

	datePart, _ := splitDateTime(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, datePart); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date: %q", v)
}

// ParseClock parses a time cell and returns the offset from midnight,
// truncated to whole seconds. Numeric values are fractions of a day; values
// of 1 or more use their fractional part.
func ParseClock(v string) (time.Duration, error) {
	s := strings.TrimSpace(v)
	if s == "" {
		return 0, fmt.Errorf("empty time")
	}
	if f, ok := parseNumber(s); ok {
		if f < 0 {
			return 0, fmt.Errorf("negative time: %q", v)
		}
		frac := f - math.Floor(f)
		// The epsilon absorbs binary rounding of serials such as 10:00.
		secs := int64(math.Floor(frac*86400 + 1e-6))
		if secs >= 86400 {
			secs = 86399
		}
		return time.Duration(secs) * time.Second, nil
	}

	if d, ok := parseClockString(stripZone(s)); ok {
		return d, nil
	}
	if _, timePart := splitDateTime(s); timePart != "" {
		if d, ok := parseClockString(stripZone(timePart)); ok {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unrecognized time: %q", v)
}

func parseClockString(s string) (time.Duration, bool) {
	m := clockPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	h, _ := strconv.Atoi(m[1])
	mi, _ := strconv.Atoi(m[2])
	sec := 0
	if m[3] != "" {
		sec, _ = strconv.Atoi(m[3])
	}
	if h > 23 || mi > 59 || sec > 59 {
		return 0, false
	}
	return time.Duration(h)*time.Hour + time.Duration(mi)*time.Minute + time.Duration(sec)*time.Second, true
}

// ParseTimestamp combines separate date and time cells.
func ParseTimestamp(dateVal, timeVal string) (time.Time, error) {
	d, err := ParseDate(dateVal)
	if err != nil {
		return time.Time{}, err
	}
	c, err := ParseClock(timeVal)
	if err != nil {
		return time.Time{}, err
	}
	return d.Add(c), nil
}

// ParseDateTime parses a combined date-time cell with format, falling back
// to the generic date and time encodings. Sub-second precision is dropped.
func ParseDateTime(v, format string) (time.Time, error) {
	s := strings.TrimSpace(v)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date-time")
	}
	if format != "" {
		if t, err := time.Parse(GoLayout(format), s); err == nil {
			return t.UTC().Truncate(time.Second), nil
		}
	}
	if _, ok := parseNumber(s); ok {
		return ParseTimestamp(s, s)
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC), nil
	}
	datePart, timePart := splitDateTime(s)
	if timePart == "" {
		return time.Time{}, fmt.Errorf("unrecognized date-time: %q", v)
	}
	ts, err := ParseTimestamp(datePart, timePart)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognized date-time: %q", v)
	}
	return ts, nil
}
