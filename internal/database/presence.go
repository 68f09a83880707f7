// Tracelane - Vehicle Presence Ingestion and Correlation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracelane

package database

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/tomtom215/tracelane/internal/models"
)

// PresenceExists reports whether a presence record with key k is stored.
func (db *DB) PresenceExists(ctx context.Context, k models.DedupKey) (bool, error) {
	found, err := db.ExistingPresenceKeys(ctx, []models.DedupKey{k})
	if err != nil {
		return false, err
	}
	_, ok := found[k]
	return ok, nil
}

// ExistingPresenceKeys returns the subset of keys that are already stored.
// Keys may belong to several cases.
func (db *DB) ExistingPresenceKeys(ctx context.Context, keys []models.DedupKey) (found map[models.DedupKey]struct{}, err error) {
	defer observe("select", "presence_records", time.Now(), &err)

	found = make(map[models.DedupKey]struct{})
	if len(keys) == 0 {
		return found, nil
	}

	want := make(map[models.DedupKey]struct{}, len(keys))
	type span struct {
		plates   map[string]struct{}
		min, max int64
	}
	byCase := make(map[int64]*span)
	for _, k := range keys {
		want[k] = struct{}{}
		s, ok := byCase[k.CaseID]
		if !ok {
			s = &span{plates: make(map[string]struct{}), min: k.At, max: k.At}
			byCase[k.CaseID] = s
		}
		s.plates[k.Plate] = struct{}{}
		if k.At < s.min {
			s.min = k.At
		}
		if k.At > s.max {
			s.max = k.At
		}
	}

	for caseID, s := range byCase {
		plates := make([]string, 0, len(s.plates))
		for p := range s.plates {
			plates = append(plates, p)
		}
		sort.Strings(plates)

		for _, chunk := range chunkStrings(plates, maxInParams) {
			args := make([]any, 0, len(chunk)+3)
			args = append(args, caseID, time.UnixMicro(s.min).UTC(), time.UnixMicro(s.max).UTC())
			args = append(args, stringArgs(chunk)...)

			rows, qErr := db.conn.QueryContext(ctx,
				`SELECT plate, observed_at, COALESCE(reader_id, '')
				 FROM presence_records
				 WHERE case_id = ? AND observed_at BETWEEN ? AND ?
				   AND plate IN (`+placeholders(len(chunk))+`)`, args...)
			if qErr != nil {
				err = fmt.Errorf("failed to query existing presence: %w", qErr)
				return nil, err
			}
			for rows.Next() {
				var (
					plate, reader string
					at            time.Time
				)
				if err = rows.Scan(&plate, &at, &reader); err != nil {
					closeQuietly(rows)
					return nil, fmt.Errorf("failed to scan presence key: %w", err)
				}
				k := models.NewDedupKey(caseID, plate, at, reader)
				if _, ok := want[k]; ok {
					found[k] = struct{}{}
				}
			}
			if err = rows.Err(); err != nil {
				closeQuietly(rows)
				return nil, fmt.Errorf("failed to iterate presence keys: %w", err)
			}
			closeWithLog(rows, "presence key rows")
		}
	}
	return found, nil
}

// InsertPresenceBatch writes recs in one transaction and returns the number
// of rows written. Either every record is stored or none is.
func (db *DB) InsertPresenceBatch(ctx context.Context, recs []models.PresenceRecord) (n int, err error) {
	if len(recs) == 0 {
		return 0, nil
	}
	defer observe("insert", "presence_records", time.Now(), &err)

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollbackOnError(tx, &err)

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO presence_records
		 (case_id, file_id, plate, observed_at, reader_id, latitude, longitude, lane, speed, source_kind)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare presence insert: %w", err)
	}
	defer closeWithLog(stmt, "presence insert statement")

	for i := range recs {
		r := &recs[i]
		if _, err = stmt.ExecContext(ctx,
			r.CaseID, r.FileID, r.Plate, r.ObservedAt, stringPtrArg(r.ReaderID),
			floatArg(r.Latitude), floatArg(r.Longitude), stringPtrArg(r.Lane), floatArg(r.Speed),
			string(r.SourceKind),
		); err != nil {
			return 0, fmt.Errorf("failed to insert presence record for %s: %w", r.Plate, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit presence batch: %w", err)
	}
	return len(recs), nil
}

// CountPresence returns the number of presence records in a case.
func (db *DB) CountPresence(ctx context.Context, caseID int64) (n int, err error) {
	defer observe("select", "presence_records", time.Now(), &err)

	if err = db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM presence_records WHERE case_id = ?`, caseID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count presence records: %w", err)
	}
	return n, nil
}
