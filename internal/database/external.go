// Tracelane - Vehicle Presence Ingestion and Correlation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracelane

package database

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/tracelane/internal/models"
)

// InsertExternalBatch writes recs in one transaction. Attributes are stored
// as a JSON object whose empty cells are null.
func (db *DB) InsertExternalBatch(ctx context.Context, recs []models.ExternalRecord) (n int, err error) {
	if len(recs) == 0 {
		return 0, nil
	}
	defer observe("insert", "external_records", time.Now(), &err)

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollbackOnError(tx, &err)

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO external_records (case_id, file_id, plate, source_name, observed_at, attributes)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare external insert: %w", err)
	}
	defer closeWithLog(stmt, "external insert statement")

	for i := range recs {
		r := &recs[i]
		attrs := r.Attributes
		if attrs == nil {
			attrs = map[string]*string{}
		}
		var raw []byte
		if raw, err = json.Marshal(attrs); err != nil {
			return 0, fmt.Errorf("failed to encode attributes for %s: %w", r.Plate, err)
		}
		var observed any
		if r.ObservedAt != nil {
			observed = *r.ObservedAt
		}
		if _, err = stmt.ExecContext(ctx, r.CaseID, r.FileID, r.Plate, r.SourceName, observed, string(raw)); err != nil {
			return 0, fmt.Errorf("failed to insert external record for %s: %w", r.Plate, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit external batch: %w", err)
	}
	return len(recs), nil
}

// ListExternalRecords returns the external records of a case in insertion
// order. A non-empty sourceName restricts the result to that exact source.
func (db *DB) ListExternalRecords(ctx context.Context, caseID int64, sourceName string) (out []models.ExternalRecord, err error) {
	defer observe("select", "external_records", time.Now(), &err)

	q := `SELECT id, case_id, file_id, plate, source_name, observed_at, attributes
	      FROM external_records WHERE case_id = ?`
	args := []any{caseID}
	if sourceName != "" {
		q += ` AND source_name = ?`
		args = append(args, sourceName)
	}
	q += ` ORDER BY id`

	rows, err := db.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query external records: %w", err)
	}
	defer closeWithLog(rows, "external rows")

	for rows.Next() {
		var (
			r        models.ExternalRecord
			observed sql.NullTime
			raw      string
		)
		if err = rows.Scan(&r.ID, &r.CaseID, &r.FileID, &r.Plate, &r.SourceName, &observed, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan external record: %w", err)
		}
		if observed.Valid {
			t := observed.Time
			r.ObservedAt = &t
		}
		if err = json.Unmarshal([]byte(raw), &r.Attributes); err != nil {
			return nil, fmt.Errorf("failed to decode attributes of external record %d: %w", r.ID, err)
		}
		out = append(out, r)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate external records: %w", err)
	}
	return out, nil
}

// ListExternalSources returns the distinct source names of a case, sorted.
func (db *DB) ListExternalSources(ctx context.Context, caseID int64) (out []string, err error) {
	defer observe("select", "external_records", time.Now(), &err)

	rows, err := db.conn.QueryContext(ctx,
		`SELECT DISTINCT source_name FROM external_records WHERE case_id = ? ORDER BY source_name`, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to query external sources: %w", err)
	}
	defer closeWithLog(rows, "external source rows")

	out = []string{}
	for rows.Next() {
		var s string
		if err = rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan external source: %w", err)
		}
		out = append(out, s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate external sources: %w", err)
	}
	return out, nil
}

// ListExternalFields returns the sorted union of attribute keys of a case,
// optionally restricted to one source.
func (db *DB) ListExternalFields(ctx context.Context, caseID int64, sourceName string) ([]string, error) {
	q := `SELECT DISTINCT attributes FROM external_records WHERE case_id = ?`
	args := []any{caseID}
	if sourceName != "" {
		q += ` AND source_name = ?`
		args = append(args, sourceName)
	}

	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, q, args...)
	if err != nil {
		observe("select", "external_records", start, &err)
		return nil, fmt.Errorf("failed to query external fields: %w", err)
	}
	defer closeWithLog(rows, "external field rows")

	seen := make(map[string]struct{})
	for rows.Next() {
		var raw string
		if err = rows.Scan(&raw); err != nil {
			break
		}
		var attrs map[string]json.RawMessage
		if err = json.Unmarshal([]byte(raw), &attrs); err != nil {
			break
		}
		for k := range attrs {
			seen[k] = struct{}{}
		}
	}
	if err == nil {
		err = rows.Err()
	}
	observe("select", "external_records", start, &err)
	if err != nil {
		return nil, fmt.Errorf("failed to read external fields: %w", err)
	}

	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}
