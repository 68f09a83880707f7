// Tracelane - Vehicle Presence Ingestion and Correlation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracelane

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/tracelane/internal/models"
)

// CreateFile inserts the metadata row of an upload being ingested and sets
// f.ID and f.CreatedAt.
func (db *DB) CreateFile(ctx context.Context, f *models.FileRecord) (err error) {
	defer observe("insert", "files", time.Now(), &err)

	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	row := db.conn.QueryRowContext(ctx,
		`INSERT INTO files (case_id, filename, source_kind, record_count, stored_path, created_at)
		 VALUES (?, ?, ?, 0, NULL, ?) RETURNING id`,
		f.CaseID, f.Filename, string(f.SourceKind), f.CreatedAt)
	if err = row.Scan(&f.ID); err != nil {
		return fmt.Errorf("failed to create file record: %w", err)
	}
	return nil
}

// FinalizeFile stores the accepted row count and permanent location of a
// successfully ingested file.
func (db *DB) FinalizeFile(ctx context.Context, id int64, recordCount int, storedPath string) (err error) {
	defer observe("update", "files", time.Now(), &err)

	res, err := db.conn.ExecContext(ctx,
		`UPDATE files SET record_count = ?, stored_path = ? WHERE id = ?`,
		recordCount, storedPath, id)
	if err != nil {
		return fmt.Errorf("failed to finalize file %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		err = fmt.Errorf("file %d: %w", id, ErrNotFound)
		return err
	}
	return nil
}

// DeleteFileCascade removes a file row together with every presence and
// external record ingested under it.
func (db *DB) DeleteFileCascade(ctx context.Context, id int64) (err error) {
	defer observe("delete", "files", time.Now(), &err)

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollbackOnError(tx, &err)

	for _, q := range []string{
		`DELETE FROM presence_records WHERE file_id = ?`,
		`DELETE FROM external_records WHERE file_id = ?`,
		`DELETE FROM files WHERE id = ?`,
	} {
		if _, err = tx.ExecContext(ctx, q, id); err != nil {
			return fmt.Errorf("failed to delete file %d: %w", id, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit file deletion: %w", err)
	}
	return nil
}

const fileColumns = `id, case_id, filename, source_kind, record_count, stored_path, created_at`

func scanFile(row rowScanner) (*models.FileRecord, error) {
	var (
		f      models.FileRecord
		kind   string
		stored sql.NullString
	)
	if err := row.Scan(&f.ID, &f.CaseID, &f.Filename, &kind, &f.RecordCount, &stored, &f.CreatedAt); err != nil {
		return nil, err
	}
	f.SourceKind = models.SourceKind(kind)
	f.StoredPath = stored.String
	return &f, nil
}

// GetFile returns the file row or ErrNotFound.
func (db *DB) GetFile(ctx context.Context, id int64) (f *models.FileRecord, err error) {
	defer observe("select", "files", time.Now(), &err)

	f, err = scanFile(db.conn.QueryRowContext(ctx,
		`SELECT `+fileColumns+` FROM files WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("file %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file %d: %w", id, err)
	}
	return f, nil
}

// FileByName returns the oldest file of a case uploaded under filename, or
// ErrNotFound.
func (db *DB) FileByName(ctx context.Context, caseID int64, filename string) (f *models.FileRecord, err error) {
	defer observe("select", "files", time.Now(), &err)

	f, err = scanFile(db.conn.QueryRowContext(ctx,
		`SELECT `+fileColumns+` FROM files WHERE case_id = ? AND filename = ? ORDER BY id LIMIT 1`,
		caseID, filename))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("file %q in case %d: %w", filename, caseID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up file %q: %w", filename, err)
	}
	return f, nil
}
