// Tracelane - Vehicle Presence Ingestion and Correlation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracelane

package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/tomtom215/tracelane/internal/models"
)

// PreviewRowLimit is the number of rows returned by PreviewTable.
const PreviewRowLimit = 10

// FilePreview lets a client build a column mapping before submitting.
type FilePreview struct {
	Columns   []string            `json:"columns"`
	TotalRows int                 `json:"total_rows"`
	Rows      []map[string]string `json:"preview_data"`
}

// PreviewTable returns the header, the row count and the first rows of t.
func PreviewTable(t *Table) *FilePreview {
	n := min(len(t.Rows), PreviewRowLimit)
	rows := make([]map[string]string, 0, n)
	for _, row := range t.Rows[:n] {
		m := make(map[string]string, len(t.Columns))
		for i, col := range t.Columns {
			m[col] = Cell(row, i)
		}
		rows = append(rows, m)
	}
	return &FilePreview{Columns: t.Columns, TotalRows: len(t.Rows), Rows: rows}
}

// ReaderStatus classifies a reader id found in a file.
type ReaderStatus string

const (
	ReaderExisting    ReaderStatus = "existing"
	ReaderNewSafe     ReaderStatus = "new_safe"
	ReaderProblematic ReaderStatus = "problematic"
)

// ReaderCheck is the classification of one distinct reader id.
type ReaderCheck struct {
	ID         string       `json:"id"`
	Status     ReaderStatus `json:"status"`
	Reason     string       `json:"reason,omitempty"`
	Suggestion string       `json:"suggestion,omitempty"`
}

// ReaderPreview is the outcome of PreviewReaders.
type ReaderPreview struct {
	TotalRows     int           `json:"total_rows"`
	Existing      []ReaderCheck `json:"existing"`
	NewSafe       []ReaderCheck `json:"new_safe"`
	Problematic   []ReaderCheck `json:"problematic"`
	SafeToProceed bool          `json:"safe_to_proceed"`
	Warnings      []string      `json:"warnings"`
}

// ReaderLookup finds stored readers by id.
type ReaderLookup interface {
	GetReaders(ctx context.Context, ids []string) (map[string]*models.Reader, error)
}

// PreviewReaders classifies the distinct reader ids of t without writing
// anything. A mapping without a reader column yields an empty, safe preview.
func PreviewReaders(ctx context.Context, t *Table, m *Mapping, store ReaderLookup) (*ReaderPreview, error) {
	out := &ReaderPreview{
		TotalRows:     len(t.Rows),
		Existing:      []ReaderCheck{},
		NewSafe:       []ReaderCheck{},
		Problematic:   []ReaderCheck{},
		SafeToProceed: true,
		Warnings:      []string{},
	}

	col, ok := m.Column(FieldReaderID)
	if !ok {
		return out, nil
	}
	idx, ok := t.ColumnIndex(col)
	if !ok {
		return nil, fmt.Errorf("%w: %s (mapped from %q)", ErrMissingColumn, FieldReaderID, col)
	}

	var ids []string
	seen := make(map[string]struct{})
	for _, row := range t.Rows {
		id := strings.TrimSpace(Cell(row, idx))
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return out, nil
	}

	found, err := store.GetReaders(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to look up readers: %w", err)
	}

	var plateLike, tooShort int
	for _, id := range ids {
		if _, ok := found[id]; ok {
			out.Existing = append(out.Existing, ReaderCheck{ID: id, Status: ReaderExisting})
			continue
		}
		v := CheckReaderID(id)
		if v.Safe {
			out.NewSafe = append(out.NewSafe, ReaderCheck{ID: id, Status: ReaderNewSafe, Reason: v.Reason})
			continue
		}
		out.Problematic = append(out.Problematic, ReaderCheck{
			ID: id, Status: ReaderProblematic, Reason: v.Reason, Suggestion: v.Suggestion,
		})
		out.SafeToProceed = false
		if LooksLikePlate(id) {
			plateLike++
		} else {
			tooShort++
		}
	}

	if plateLike > 0 {
		out.Warnings = append(out.Warnings,
			fmt.Sprintf("%s reader ids look like vehicle plates and will be rejected", humanize.Comma(int64(plateLike))))
	}
	if tooShort > 0 {
		out.Warnings = append(out.Warnings,
			fmt.Sprintf("%s reader ids are too short and will be rejected", humanize.Comma(int64(tooShort))))
	}
	if n := len(out.NewSafe); n > 0 {
		out.Warnings = append(out.Warnings,
			fmt.Sprintf("%s new readers will be created automatically", humanize.Comma(int64(n))))
	}
	return out, nil
}
