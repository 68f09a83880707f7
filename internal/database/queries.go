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
	"strings"
	"time"

	"github.com/tomtom215/tracelane/internal/models"
)

// readingSelect joins presence records with their reader. Record
// coordinates win over the reader's.
const readingSelect = `SELECT p.id, p.case_id, p.plate, p.observed_at, COALESCE(p.reader_id, ''),
	COALESCE(r.name, ''), COALESCE(r.road, ''), COALESCE(r.province, ''), COALESCE(r.locality, ''),
	COALESCE(p.latitude, r.latitude), COALESCE(p.longitude, r.longitude)
	FROM presence_records p
	LEFT JOIN readers r ON r.id = p.reader_id`

func scanReading(s rowScanner) (models.Reading, error) {
	var (
		rd       models.Reading
		lat, lon sql.NullFloat64
	)
	err := s.Scan(&rd.ID, &rd.CaseID, &rd.Plate, &rd.ObservedAt, &rd.ReaderID,
		&rd.ReaderName, &rd.Road, &rd.Province, &rd.Locality, &lat, &lon)
	if err != nil {
		return rd, err
	}
	rd.Latitude = nullFloat(lat)
	rd.Longitude = nullFloat(lon)
	return rd, nil
}

func (db *DB) queryReadings(ctx context.Context, q string, args ...any) ([]models.Reading, error) {
	rows, err := db.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	defer closeWithLog(rows, "reading rows")

	var out []models.Reading
	for rows.Next() {
		rd, err := scanReading(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		out = append(out, rd)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate readings: %w", err)
	}
	return out, nil
}

// LPRFilter selects LPR readings of one case.
type LPRFilter struct {
	CaseID int64
	// Plates restricts the result to these exact plates. Nil means all plates.
	Plates []string
	// PlateContains is a case-insensitive substring filter.
	PlateContains string
	From          *time.Time
	To            *time.Time
}

// ListLPRReadings returns the LPR readings matching f ordered by time.
func (db *DB) ListLPRReadings(ctx context.Context, f LPRFilter) (out []models.Reading, err error) {
	defer observe("select", "presence_records", time.Now(), &err)

	if f.Plates != nil && len(f.Plates) == 0 {
		return nil, nil
	}

	var (
		where strings.Builder
		base  []any
	)
	where.WriteString(` WHERE p.case_id = ? AND p.source_kind = 'LPR'`)
	base = append(base, f.CaseID)
	if f.PlateContains != "" {
		where.WriteString(` AND p.plate ILIKE ? ESCAPE '\'`)
		base = append(base, "%"+EscapeLike(f.PlateContains)+"%")
	}
	if f.From != nil {
		where.WriteString(` AND p.observed_at >= ?`)
		base = append(base, *f.From)
	}
	if f.To != nil {
		where.WriteString(` AND p.observed_at <= ?`)
		base = append(base, *f.To)
	}

	if f.Plates == nil {
		out, err = db.queryReadings(ctx, readingSelect+where.String()+` ORDER BY p.observed_at, p.id`, base...)
		return out, err
	}

	for _, chunk := range chunkStrings(f.Plates, maxInParams) {
		args := make([]any, 0, len(base)+len(chunk))
		args = append(args, base...)
		args = append(args, stringArgs(chunk)...)
		q := readingSelect + where.String() + ` AND p.plate IN (` + placeholders(len(chunk)) + `)`
		part, qErr := db.queryReadings(ctx, q, args...)
		if qErr != nil {
			err = qErr
			return nil, err
		}
		out = append(out, part...)
	}
	sortReadings(out)
	return out, nil
}

func sortReadings(rs []models.Reading) {
	sort.SliceStable(rs, func(i, j int) bool {
		if !rs[i].ObservedAt.Equal(rs[j].ObservedAt) {
			return rs[i].ObservedAt.Before(rs[j].ObservedAt)
		}
		return rs[i].ID < rs[j].ID
	})
}

// ListMultiCaseReadings returns the LPR readings, across caseIDs, of every
// plate present in at least two of those cases. Non-empty likePatterns
// restrict plates to those matching any pattern (ILIKE, ESCAPE '\').
// Rows are ordered by plate, case and time.
func (db *DB) ListMultiCaseReadings(ctx context.Context, caseIDs []int64, likePatterns []string) (out []models.Reading, err error) {
	defer observe("select", "presence_records", time.Now(), &err)

	if len(caseIDs) == 0 {
		return nil, nil
	}

	args := int64Args(caseIDs)
	filter := ""
	if len(likePatterns) > 0 {
		conds := make([]string, len(likePatterns))
		for i, p := range likePatterns {
			conds[i] = `plate ILIKE ? ESCAPE '\'`
			args = append(args, p)
		}
		filter = ` AND (` + strings.Join(conds, " OR ") + `)`
	}

	q := `WITH candidate AS (
			SELECT id FROM presence_records
			WHERE source_kind = 'LPR' AND case_id IN (` + placeholders(len(caseIDs)) + `)` + filter + `
		), shared AS (
			SELECT plate FROM presence_records
			WHERE id IN (SELECT id FROM candidate)
			GROUP BY plate HAVING COUNT(DISTINCT case_id) >= 2
		)
		` + readingSelect + `
		WHERE p.id IN (SELECT id FROM candidate) AND p.plate IN (SELECT plate FROM shared)
		ORDER BY p.plate, p.case_id, p.observed_at, p.id`

	out, err = db.queryReadings(ctx, q, args...)
	return out, err
}

// ListPlateReadings returns every presence record of plate in a case within
// the optional bounds, ordered by time.
func (db *DB) ListPlateReadings(ctx context.Context, caseID int64, plate string, from, to *time.Time) (out []models.Reading, err error) {
	defer observe("select", "presence_records", time.Now(), &err)

	q := readingSelect + ` WHERE p.case_id = ? AND p.plate = ?`
	args := []any{caseID, plate}
	if from != nil {
		q += ` AND p.observed_at >= ?`
		args = append(args, *from)
	}
	if to != nil {
		q += ` AND p.observed_at <= ?`
		args = append(args, *to)
	}
	q += ` ORDER BY p.observed_at, p.id`

	out, err = db.queryReadings(ctx, q, args...)
	return out, err
}

// ListReaderWindow returns the presence records of a case seen by readerID
// in [from, to], excluding excludePlate, ordered by time.
func (db *DB) ListReaderWindow(ctx context.Context, caseID int64, readerID string, from, to time.Time, excludePlate string) (out []models.Reading, err error) {
	defer observe("select", "presence_records", time.Now(), &err)

	out, err = db.queryReadings(ctx, readingSelect+`
		WHERE p.reader_id = ? AND p.observed_at BETWEEN ? AND ?
		  AND p.case_id = ? AND p.plate <> ?
		ORDER BY p.observed_at, p.id`,
		readerID, from, to, caseID, excludePlate)
	return out, err
}
