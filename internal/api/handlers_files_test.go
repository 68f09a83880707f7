// Tracelane - Vehicle Presence Ingestion and Correlation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracelane

package api

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/tomtom215/tracelane/internal/config"
	"github.com/tomtom215/tracelane/internal/ingest"
	"github.com/tomtom215/tracelane/internal/models"
)

const readsCSV = "Matricula;Fecha;Hora;Lector\n" +
	"1234ABC;05/03/2024;10:00:00;CAM-01\n" +
	"5678DEF;05/03/2024;10:01:00;CAM-02\n" +
	"9999ZZZ;05/03/2024;10:02:00;4321XYZ\n"

const lprMappingJSON = `{"plate":"Matricula","date":"Fecha","time":"Hora","reader_id":"Lector"}`

func tempDirEntries(t *testing.T, dir string) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	return entries
}

func TestUploadFile_Accepted(t *testing.T) {
	env := newTestEnv(t)
	req := multipartRequest(t, "/api/v1/cases/7/files", "reads.csv", readsCSV, map[string]string{
		"source_kind":    "lpr",
		"column_mapping": lprMappingJSON,
	})

	var data map[string]string
	expectData(t, env.do(req), http.StatusAccepted, &data)
	if data["task_id"] == "" {
		t.Fatal("response has no task_id")
	}
	if _, err := env.registry.Get(data["task_id"]); err != nil {
		t.Errorf("task %s not registered: %v", data["task_id"], err)
	}

	if len(env.ingestor.jobs) != 1 {
		t.Fatalf("jobs = %d, want 1", len(env.ingestor.jobs))
	}
	job := env.ingestor.jobs[0]
	if job.CaseID != 7 || job.Kind != models.SourceLPR || job.Filename != "reads.csv" {
		t.Errorf("job = %+v", job)
	}
	if col, _ := job.Mapping.Column(ingest.FieldReaderID); col != "Lector" {
		t.Errorf("reader column = %q, want Lector", col)
	}
	content, err := os.ReadFile(job.TempPath)
	if err != nil {
		t.Fatalf("temp upload missing: %v", err)
	}
	if string(content) != readsCSV {
		t.Errorf("temp upload content differs")
	}
}

func TestUploadFile_External(t *testing.T) {
	env := newTestEnv(t)
	req := multipartRequest(t, "/api/v1/cases/3/files", "insurer.xlsx", "not parsed here", map[string]string{
		"source_kind":     "EXTERNAL",
		"column_mapping":  `{"plate":"Plate","date":"Date","time":"Date","colour":"Colour"}`,
		"source_name":     "  Insurer  ",
		"selected_fields": `["colour"]`,
	})

	expectData(t, env.do(req), http.StatusAccepted, nil)
	job := env.ingestor.jobs[0]
	if job.SourceName != "Insurer" {
		t.Errorf("SourceName = %q, want trimmed Insurer", job.SourceName)
	}
	if len(job.SelectedFields) != 1 || job.SelectedFields[0] != "colour" {
		t.Errorf("SelectedFields = %q", job.SelectedFields)
	}
}

func TestUploadFile_Rejected(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		filename string
		fields   map[string]string
		status   int
		code     string
	}{
		{
			name:     "bad case id",
			path:     "/api/v1/cases/abc/files",
			filename: "reads.csv",
			fields:   map[string]string{"source_kind": "LPR", "column_mapping": lprMappingJSON},
			status:   http.StatusBadRequest,
			code:     ErrCodeValidationFailed,
		},
		{
			name:     "zero case id",
			path:     "/api/v1/cases/0/files",
			filename: "reads.csv",
			fields:   map[string]string{"source_kind": "LPR", "column_mapping": lprMappingJSON},
			status:   http.StatusBadRequest,
			code:     ErrCodeValidationFailed,
		},
		{
			name:   "no file",
			path:   "/api/v1/cases/1/files",
			fields: map[string]string{"source_kind": "LPR", "column_mapping": lprMappingJSON},
			status: http.StatusBadRequest,
			code:   ErrCodeValidationFailed,
		},
		{
			name:     "unsupported extension",
			path:     "/api/v1/cases/1/files",
			filename: "reads.pdf",
			fields:   map[string]string{"source_kind": "LPR", "column_mapping": lprMappingJSON},
			status:   http.StatusBadRequest,
			code:     ErrCodeValidationFailed,
		},
		{
			name:     "unknown source kind",
			path:     "/api/v1/cases/1/files",
			filename: "reads.csv",
			fields:   map[string]string{"source_kind": "RADAR", "column_mapping": lprMappingJSON},
			status:   http.StatusBadRequest,
			code:     ErrCodeValidationFailed,
		},
		{
			name:     "mapping missing reader",
			path:     "/api/v1/cases/1/files",
			filename: "reads.csv",
			fields:   map[string]string{"source_kind": "LPR", "column_mapping": `{"plate":"Matricula","date":"Fecha","time":"Hora"}`},
			status:   http.StatusBadRequest,
			code:     ErrCodeValidationFailed,
		},
		{
			name:     "mapping not an object",
			path:     "/api/v1/cases/1/files",
			filename: "reads.csv",
			fields:   map[string]string{"source_kind": "LPR", "column_mapping": `["plate"]`},
			status:   http.StatusBadRequest,
			code:     ErrCodeValidationFailed,
		},
		{
			name:     "external without source name",
			path:     "/api/v1/cases/1/files",
			filename: "insurer.csv",
			fields:   map[string]string{"source_kind": "EXTERNAL", "column_mapping": `{"plate":"P","date":"D","time":"T"}`},
			status:   http.StatusBadRequest,
			code:     ErrCodeValidationFailed,
		},
		{
			name:     "selected fields not an array",
			path:     "/api/v1/cases/1/files",
			filename: "insurer.csv",
			fields: map[string]string{
				"source_kind": "EXTERNAL", "column_mapping": `{"plate":"P","date":"D","time":"T"}`,
				"source_name": "Insurer", "selected_fields": `"colour"`,
			},
			status: http.StatusBadRequest,
			code:   ErrCodeValidationFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			req := multipartRequest(t, tt.path, tt.filename, readsCSV, tt.fields)
			expectError(t, env.do(req), tt.status, tt.code)

			if len(env.ingestor.jobs) != 0 {
				t.Errorf("job submitted for rejected upload: %+v", env.ingestor.jobs)
			}
			if entries := tempDirEntries(t, env.cfg.Ingest.TempDir); len(entries) != 0 {
				t.Errorf("temp dir not cleaned: %d entries", len(entries))
			}
		})
	}
}

func TestUploadFile_DuplicateName(t *testing.T) {
	tests := []struct {
		name     string
		caseID   string
		filename string
		storeErr error
		status   int
		code     string
	}{
		{"same name same case", "7", "reads.csv", nil, http.StatusBadRequest, ErrCodeValidationFailed},
		{"name with directories", "7", "exports/reads.csv", nil, http.StatusBadRequest, ErrCodeValidationFailed},
		{"lookup failure", "7", "other.csv", errStore, http.StatusInternalServerError, ErrCodeDatabaseError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.files.files[11] = &models.FileRecord{ID: 11, CaseID: 7, Filename: "reads.csv", SourceKind: models.SourceLPR}
			env.files.err = tt.storeErr

			req := multipartRequest(t, "/api/v1/cases/"+tt.caseID+"/files", tt.filename, readsCSV, map[string]string{
				"source_kind": "LPR", "column_mapping": lprMappingJSON,
			})
			expectError(t, env.do(req), tt.status, tt.code)

			if len(env.ingestor.jobs) != 0 {
				t.Errorf("job submitted for a duplicate upload: %+v", env.ingestor.jobs)
			}
			if entries := tempDirEntries(t, env.cfg.Ingest.TempDir); len(entries) != 0 {
				t.Errorf("temp dir not cleaned: %d entries", len(entries))
			}
		})
	}
}

func TestUploadFile_SameNameOtherCase(t *testing.T) {
	env := newTestEnv(t)
	env.files.files[11] = &models.FileRecord{ID: 11, CaseID: 7, Filename: "reads.csv", SourceKind: models.SourceLPR}

	req := multipartRequest(t, "/api/v1/cases/8/files", "reads.csv", readsCSV, map[string]string{
		"source_kind": "LPR", "column_mapping": lprMappingJSON,
	})
	expectData(t, env.do(req), http.StatusAccepted, nil)
	if len(env.ingestor.jobs) != 1 {
		t.Errorf("jobs = %d, want 1", len(env.ingestor.jobs))
	}
}

func TestGetFile(t *testing.T) {
	env := newTestEnv(t)
	env.files.files[11] = &models.FileRecord{ID: 11, CaseID: 7, Filename: "reads.csv", SourceKind: models.SourceLPR, RecordCount: 3}

	var got models.FileRecord
	expectData(t, env.do(httptest.NewRequest(http.MethodGet, "/api/v1/files/11", nil)), http.StatusOK, &got)
	if got.ID != 11 || got.CaseID != 7 || got.RecordCount != 3 || got.SourceKind != models.SourceLPR {
		t.Errorf("file = %+v", got)
	}

	expectError(t, env.do(httptest.NewRequest(http.MethodGet, "/api/v1/files/12", nil)), http.StatusNotFound, ErrCodeNotFound)
	expectError(t, env.do(httptest.NewRequest(http.MethodGet, "/api/v1/files/x", nil)), http.StatusBadRequest, ErrCodeValidationFailed)

	env.files.err = errStore
	expectError(t, env.do(httptest.NewRequest(http.MethodGet, "/api/v1/files/11", nil)), http.StatusInternalServerError, ErrCodeDatabaseError)
}

func TestUploadFile_TooLarge(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.Server.MaxUploadBytes = 256 })
	big := readsCSV
	for len(big) < 1024 {
		big += "1234ABC;05/03/2024;10:00:00;CAM-01\n"
	}
	req := multipartRequest(t, "/api/v1/cases/1/files", "reads.csv", big, map[string]string{
		"source_kind": "LPR", "column_mapping": lprMappingJSON,
	})
	expectError(t, env.do(req), http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge)
}

func TestValidateReaders(t *testing.T) {
	env := newTestEnv(t)
	req := multipartRequest(t, "/api/v1/cases/7/files/validate-readers", "reads.csv", readsCSV, map[string]string{
		"column_mapping": `{"reader_id":"Lector"}`,
	})

	var got ingest.ReaderPreview
	expectData(t, env.do(req), http.StatusOK, &got)
	if got.TotalRows != 3 {
		t.Errorf("TotalRows = %d, want 3", got.TotalRows)
	}
	if len(got.Existing) != 1 || got.Existing[0].ID != "CAM-01" {
		t.Errorf("Existing = %+v", got.Existing)
	}
	if len(got.NewSafe) != 1 || got.NewSafe[0].ID != "CAM-02" {
		t.Errorf("NewSafe = %+v", got.NewSafe)
	}
	if len(got.Problematic) != 1 || got.Problematic[0].ID != "4321XYZ" {
		t.Errorf("Problematic = %+v", got.Problematic)
	}
	if got.SafeToProceed {
		t.Error("SafeToProceed = true with a plate-like reader id")
	}
	if entries := tempDirEntries(t, env.cfg.Ingest.TempDir); len(entries) != 0 {
		t.Errorf("temp dir not cleaned: %d entries", len(entries))
	}
}

func TestValidateReaders_UnknownColumn(t *testing.T) {
	env := newTestEnv(t)
	req := multipartRequest(t, "/api/v1/cases/7/files/validate-readers", "reads.csv", readsCSV, map[string]string{
		"column_mapping": `{"reader_id":"Camera"}`,
	})
	expectError(t, env.do(req), http.StatusBadRequest, ErrCodeValidationFailed)
}

func TestPreviewFile(t *testing.T) {
	env := newTestEnv(t)
	req := multipartRequest(t, "/api/v1/files/preview", "reads.csv", readsCSV, nil)

	var got ingest.FilePreview
	expectData(t, env.do(req), http.StatusOK, &got)
	if len(got.Columns) != 4 || got.Columns[0] != "Matricula" {
		t.Errorf("Columns = %q", got.Columns)
	}
	if got.TotalRows != 3 || len(got.Rows) != 3 {
		t.Errorf("TotalRows = %d, rows = %d", got.TotalRows, len(got.Rows))
	}
	if got.Rows[1]["Lector"] != "CAM-02" {
		t.Errorf("row 1 = %v", got.Rows[1])
	}
	if entries := tempDirEntries(t, env.cfg.Ingest.TempDir); len(entries) != 0 {
		t.Errorf("temp dir not cleaned: %d entries", len(entries))
	}
}

func TestPreviewFile_Unreadable(t *testing.T) {
	env := newTestEnv(t)
	req := multipartRequest(t, "/api/v1/files/preview", "reads.xlsx", "definitely not a zip archive", nil)
	expectError(t, env.do(req), http.StatusBadRequest, ErrCodeBadRequest)
}
