// Tracelane - Vehicle Presence Ingestion and Correlation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracelane

package ingest

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/goccy/go-json"

	"github.com/tomtom215/tracelane/internal/models"
)

// Field is a canonical column of an ingested row.
type Field string

const (
	FieldPlate     Field = "plate"
	FieldDate      Field = "date"
	FieldTime      Field = "time"
	FieldReaderID  Field = "reader_id"
	FieldLatitude  Field = "latitude"
	FieldLongitude Field = "longitude"
	FieldLocation  Field = "location"
	FieldLane      Field = "lane"
	FieldSpeed     Field = "speed"
)

// DatetimeFormatKey is the mapping key holding the layout used when date and
// time share one column. It does not name a column.
const DatetimeFormatKey = "datetime_format"

var canonicalFields = map[Field]struct{}{
	FieldPlate: {}, FieldDate: {}, FieldTime: {}, FieldReaderID: {},
	FieldLatitude: {}, FieldLongitude: {}, FieldLocation: {}, FieldLane: {}, FieldSpeed: {},
}

var (
	// ErrMissingMapping is returned when a mandatory field has no column.
	ErrMissingMapping = errors.New("missing mandatory column mapping")

	// ErrInvalidMapping is returned for mappings that cannot be decoded.
	ErrInvalidMapping = errors.New("invalid column mapping")
)

// MandatoryFields returns the fields every row of kind must map.
func MandatoryFields(kind models.SourceKind) []Field {
	if kind == models.SourceLPR {
		return []Field{FieldPlate, FieldDate, FieldTime, FieldReaderID}
	}
	return []Field{FieldPlate, FieldDate, FieldTime}
}

// Mapping binds canonical fields to source columns for one source kind.
type Mapping struct {
	Kind models.SourceKind
	// Columns maps canonical fields to header names.
	Columns map[Field]string
	// Extra maps any other key to a header name. EXTERNAL jobs use it to
	// resolve selected attribute names.
	Extra map[string]string
	// DatetimeFormat is empty unless the client supplied one.
	DatetimeFormat string
}

// NewMapping validates raw (key → column) for kind. Blank columns are
// treated as unmapped.
func NewMapping(kind models.SourceKind, raw map[string]string) (*Mapping, error) {
	switch kind {
	case models.SourceLPR, models.SourceGPS, models.SourceExternal:
	default:
		return nil, fmt.Errorf("%w: unknown source kind %q", ErrInvalidMapping, kind)
	}

	m := buildMapping(kind, raw)
	if missing := m.missing(); len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingMapping, strings.Join(missing, ", "))
	}
	return m, nil
}

// LooseMapping builds an LPR mapping without checking mandatory fields.
// Reader previews use it, since they only need the reader column.
func LooseMapping(raw map[string]string) *Mapping {
	return buildMapping(models.SourceLPR, raw)
}

// DecodeRawMapping decodes the JSON object sent by clients. Non-string
// values are rejected.
func DecodeRawMapping(data []byte) (map[string]string, error) {
	raw := map[string]string{}
	if len(strings.TrimSpace(string(data))) == 0 {
		return raw, nil
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMapping, err)
	}
	return raw, nil
}

func buildMapping(kind models.SourceKind, raw map[string]string) *Mapping {
	m := &Mapping{
		Kind:    kind,
		Columns: make(map[Field]string),
		Extra:   make(map[string]string),
	}
	for k, v := range raw {
		key := strings.TrimSpace(k)
		col := strings.TrimSpace(v)
		if key == "" || col == "" {
			continue
		}
		if key == DatetimeFormatKey {
			m.DatetimeFormat = col
			continue
		}
		if _, ok := canonicalFields[Field(strings.ToLower(key))]; ok {
			m.Columns[Field(strings.ToLower(key))] = col
			continue
		}
		m.Extra[key] = col
	}
	return m
}

func (m *Mapping) missing() []string {
	var out []string
	for _, f := range MandatoryFields(m.Kind) {
		if _, ok := m.Columns[f]; !ok {
			out = append(out, string(f))
		}
	}
	return out
}

// Column returns the header mapped to f.
func (m *Mapping) Column(f Field) (string, bool) {
	c, ok := m.Columns[f]
	return c, ok
}

// CombinedDateTime reports whether date and time come from the same column.
func (m *Mapping) CombinedDateTime() bool {
	d, okD := m.Columns[FieldDate]
	t, okT := m.Columns[FieldTime]
	return okD && okT && d == t
}

// Format returns the combined date-time layout, or def when none was given.
func (m *Mapping) Format(def string) string {
	if m.DatetimeFormat != "" {
		return m.DatetimeFormat
	}
	return def
}

// AttributeColumn resolves a selected EXTERNAL attribute name. Names not
// present in the mapping are taken as header names.
func (m *Mapping) AttributeColumn(name string) string {
	if c, ok := m.Extra[name]; ok {
		return c
	}
	if c, ok := m.Columns[Field(strings.ToLower(name))]; ok {
		return c
	}
	return name
}

// MappedColumns returns every column the mapping references, sorted.
func (m *Mapping) MappedColumns() []string {
	seen := make(map[string]struct{}, len(m.Columns))
	for _, c := range m.Columns {
		seen[c] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
