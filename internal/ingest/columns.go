// Tracelane - Vehicle Presence Ingestion and Correlation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracelane

package ingest

import (
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/tracelane/internal/models"
)

type attrColumn struct {
	name  string
	index int
}

// columns holds resolved header positions. Unmapped optional fields are -1.
type columns struct {
	plate, date, time, reader int
	lat, lon, loc             int
	lane, speed               int

	combined bool
	format   string
	attrs    []attrColumn
}

// resolveColumns locates every mapped column in the header. A mapped column
// missing from the header fails the job.
func resolveColumns(t *Table, job Job, defaultFormat string) (columns, error) {
	m := job.Mapping
	var missing []string
	lookup := func(f Field) int {
		name, ok := m.Column(f)
		if !ok {
			return -1
		}
		idx, ok := t.ColumnIndex(name)
		if !ok {
			missing = append(missing, fmt.Sprintf("%s (mapped from %q)", f, name))
			return -1
		}
		return idx
	}

	c := columns{
		plate:    lookup(FieldPlate),
		date:     lookup(FieldDate),
		time:     lookup(FieldTime),
		lat:      lookup(FieldLatitude),
		lon:      lookup(FieldLongitude),
		loc:      lookup(FieldLocation),
		lane:     lookup(FieldLane),
		speed:    lookup(FieldSpeed),
		reader:   -1,
		combined: m.CombinedDateTime(),
		format:   m.Format(defaultFormat),
	}
	if job.Kind == models.SourceLPR {
		c.reader = lookup(FieldReaderID)
	}

	if job.Kind == models.SourceExternal {
		for _, name := range job.SelectedFields {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			col := m.AttributeColumn(name)
			idx, ok := t.ColumnIndex(col)
			if !ok {
				missing = append(missing, fmt.Sprintf("%s (mapped from %q)", name, col))
				continue
			}
			c.attrs = append(c.attrs, attrColumn{name: name, index: idx})
		}
	}

	if len(missing) > 0 {
		return c, fmt.Errorf("%w: %s", ErrMissingColumn, strings.Join(missing, ", "))
	}
	return c, nil
}

// timestamp parses the date and time cells of row.
func (c columns) timestamp(row []string) (time.Time, error) {
	if c.combined {
		t, err := ParseDateTime(Cell(row, c.date), c.format)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid timestamp: %w", err)
		}
		return t, nil
	}
	t, err := ParseTimestamp(Cell(row, c.date), Cell(row, c.time))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp: %w", err)
	}
	return t, nil
}
