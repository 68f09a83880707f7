// Tracelane - Vehicle Presence Ingestion and Correlation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracelane

package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/tracelane/internal/models"
)

const readerColumns = `id, COALESCE(name, ''), COALESCE(road, ''), COALESCE(province, ''),
	COALESCE(locality, ''), latitude, longitude, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReader(s rowScanner) (*models.Reader, error) {
	var (
		r        models.Reader
		lat, lon sql.NullFloat64
	)
	if err := s.Scan(&r.ID, &r.Name, &r.Road, &r.Province, &r.Locality, &lat, &lon, &r.CreatedAt); err != nil {
		return nil, err
	}
	r.Latitude = nullFloat(lat)
	r.Longitude = nullFloat(lon)
	return &r, nil
}

// GetReaders returns the known readers among ids, keyed by id. Unknown ids
// are simply absent from the result.
func (db *DB) GetReaders(ctx context.Context, ids []string) (out map[string]*models.Reader, err error) {
	defer observe("select", "readers", time.Now(), &err)

	out = make(map[string]*models.Reader, len(ids))
	for _, chunk := range chunkStrings(ids, maxInParams) {
		q := `SELECT ` + readerColumns + ` FROM readers WHERE id IN (` + placeholders(len(chunk)) + `)`
		rows, qErr := db.conn.QueryContext(ctx, q, stringArgs(chunk)...)
		if qErr != nil {
			err = fmt.Errorf("failed to query readers: %w", qErr)
			return nil, err
		}
		for rows.Next() {
			r, scanErr := scanReader(rows)
			if scanErr != nil {
				closeQuietly(rows)
				err = fmt.Errorf("failed to scan reader: %w", scanErr)
				return nil, err
			}
			out[r.ID] = r
		}
		if err = rows.Err(); err != nil {
			closeQuietly(rows)
			return nil, fmt.Errorf("failed to iterate readers: %w", err)
		}
		closeWithLog(rows, "reader rows")
	}
	return out, nil
}

// CreateReader inserts r unless a reader with the same id already exists.
// It reports whether a row was created.
func (db *DB) CreateReader(ctx context.Context, r *models.Reader) (created bool, err error) {
	defer observe("insert", "readers", time.Now(), &err)

	if strings.TrimSpace(r.ID) == "" {
		return false, fmt.Errorf("reader id is required")
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO readers (id, name, road, province, locality, latitude, longitude, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT (id) DO NOTHING`,
		r.ID, nullString(r.Name), nullString(r.Road), nullString(r.Province), nullString(r.Locality),
		floatArg(r.Latitude), floatArg(r.Longitude), r.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("failed to create reader %q: %w", r.ID, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}
