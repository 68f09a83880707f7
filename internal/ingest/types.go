// Tracelane - Vehicle Presence Ingestion and Correlation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracelane

package ingest

import (
	"context"
	"fmt"

	"github.com/tomtom215/tracelane/internal/models"
)

// RowError is a non-fatal problem with one row. Row is the spreadsheet row
// number, counting the header as row 1.
type RowError struct {
	Row    int
	Reason string
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %s", e.Row, e.Reason)
}

// spreadsheetRow converts a zero-based data index to a spreadsheet row number.
func spreadsheetRow(dataIndex int) int {
	return dataIndex + 2
}

// Store is the persistence the pipeline needs. *database.DB implements it.
type Store interface {
	CreateFile(ctx context.Context, f *models.FileRecord) error
	FinalizeFile(ctx context.Context, id int64, recordCount int, storedPath string) error
	DeleteFileCascade(ctx context.Context, id int64) error
	GetReaders(ctx context.Context, ids []string) (map[string]*models.Reader, error)
	CreateReader(ctx context.Context, r *models.Reader) (bool, error)
	ExistingPresenceKeys(ctx context.Context, keys []models.DedupKey) (map[models.DedupKey]struct{}, error)
	InsertPresenceBatch(ctx context.Context, recs []models.PresenceRecord) (int, error)
	InsertExternalBatch(ctx context.Context, recs []models.ExternalRecord) (int, error)
}

// Job describes one ingestion request.
type Job struct {
	CaseID   int64
	Kind     models.SourceKind
	Mapping  *Mapping
	TempPath string // uploaded copy, always removed when the job ends
	Filename string // name the client uploaded

	// EXTERNAL only.
	SourceName     string
	SelectedFields []string
}

// Result is the accounting of a completed job.
type Result struct {
	ImportedCount  int      `json:"imported_count"`
	DuplicateCount int      `json:"duplicate_count"`
	Duplicates     []string `json:"duplicates"`
	ErrorCount     int      `json:"error_count"`
	RowErrors      []string `json:"row_errors"`
	NewReaderIDs   []string `json:"new_reader_ids"`
	// RejectedReaderIDs lists unknown reader ids refused by CheckReaderID.
	RejectedReaderIDs []string           `json:"rejected_reader_ids"`
	File              *models.FileRecord `json:"file"`
}

// accounting collects row outcomes, keeping only the first limit entries
// of each list while counting all of them.
type accounting struct {
	limit      int
	imported   int
	duplicates []string
	dupCount   int
	errors     []string
	errCount   int
	newReaders []string
	rejected   []string
}

func (a *accounting) rowError(row int, reason string) {
	a.errCount++
	if len(a.errors) < a.limit {
		a.errors = append(a.errors, (&RowError{Row: row, Reason: reason}).Error())
	}
}

func (a *accounting) duplicate(desc string) {
	a.dupCount++
	if len(a.duplicates) < a.limit {
		a.duplicates = append(a.duplicates, desc)
	}
}

func (a *accounting) result(file *models.FileRecord) *Result {
	r := &Result{
		ImportedCount:     a.imported,
		DuplicateCount:    a.dupCount,
		Duplicates:        a.duplicates,
		ErrorCount:        a.errCount,
		RowErrors:         a.errors,
		NewReaderIDs:      a.newReaders,
		RejectedReaderIDs: a.rejected,
		File:              file,
	}
	if r.Duplicates == nil {
		r.Duplicates = []string{}
	}
	if r.RowErrors == nil {
		r.RowErrors = []string{}
	}
	if r.NewReaderIDs == nil {
		r.NewReaderIDs = []string{}
	}
	if r.RejectedReaderIDs == nil {
		r.RejectedReaderIDs = []string{}
	}
	return r
}
