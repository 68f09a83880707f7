// Tracelane - Vehicle Presence Ingestion and Correlation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracelane

package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/tracelane/internal/database"
	"github.com/tomtom215/tracelane/internal/ingest"
	"github.com/tomtom215/tracelane/internal/logging"
	"github.com/tomtom215/tracelane/internal/models"
)

// multipartMemory is the part of a multipart form kept in memory; larger
// files spill to disk.
const multipartMemory = 32 << 20

// upload is a multipart file saved to a server-side temp file.
type upload struct {
	path     string
	filename string
}

func (u *upload) remove() {
	if u == nil || u.path == "" {
		return
	}
	if err := os.Remove(u.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logging.Warn().Err(err).Str("path", u.path).Msg("Failed to remove temp upload")
	}
}

// parseUpload parses a bounded multipart form and saves its "file" part to
// the ingest temp dir. It writes the error response and returns nil on
// failure. The caller owns the returned upload.
func (h *Handler) parseUpload(rw *ResponseWriter, w http.ResponseWriter, r *http.Request) *upload {
	limit := h.config.Server.MaxUploadBytes
	if limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			rw.PayloadTooLarge(fmt.Sprintf("upload exceeds %s", humanize.IBytes(uint64(tooLarge.Limit))))
			return nil
		}
		rw.BadRequest("invalid multipart form: " + err.Error())
		return nil
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		rw.ValidationError("file is required", map[string]any{"field": "file", "tag": "required"})
		return nil
	}
	defer file.Close()

	if !ingest.SupportedExtension(header.Filename) {
		rw.ValidationError(
			fmt.Sprintf("%s: %q", ingest.ErrUnsupportedFormat, filepath.Ext(header.Filename)),
			map[string]any{"field": "file", "supported": []string{".xlsx", ".xlsm", ".csv", ".txt"}},
		)
		return nil
	}

	path, err := h.saveTemp(file, header)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to save upload")
		rw.InternalError("failed to store upload")
		return nil
	}
	return &upload{path: path, filename: header.Filename}
}

func (h *Handler) saveTemp(src multipart.File, header *multipart.FileHeader) (path string, err error) {
	dst, err := os.CreateTemp(h.config.Ingest.TempDir, "upload-*"+strings.ToLower(filepath.Ext(header.Filename)))
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		if cerr := dst.Close(); cerr != nil && err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(dst.Name())
		}
	}()
	if _, err := io.Copy(dst, src); err != nil {
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}
	return dst.Name(), nil
}

// removeForm drops multipart spill files once the handler is done.
func removeForm(r *http.Request) {
	if r.MultipartForm != nil {
		_ = r.MultipartForm.RemoveAll()
	}
}

// readUpload parses the saved upload. Unreadable files are the client's
// problem and get a 400.
func readUpload(rw *ResponseWriter, u *upload) (*ingest.Table, bool) {
	t, err := ingest.ReadTable(u.path, u.filename)
	if err != nil {
		rw.BadRequest("unable to read file: " + err.Error())
		return nil, false
	}
	return t, true
}

// UploadFile submits an ingestion job.
//
// Multipart fields: file, source_kind, column_mapping (JSON object),
// selected_fields (JSON array, EXTERNAL only), source_name (EXTERNAL only).
// The mapping is validated before the task is created; the response is
// 202 {task_id}.
func (h *Handler) UploadFile(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	caseID, ok := caseIDParam(rw, r)
	if !ok {
		return
	}

	defer removeForm(r)
	up := h.parseUpload(rw, w, r)
	if up == nil {
		return
	}

	if !h.checkUniqueFilename(rw, r, caseID, up.filename) {
		up.remove()
		return
	}
	job, ok := buildJob(rw, r, caseID)
	if !ok {
		up.remove()
		return
	}
	job.TempPath = up.path
	job.Filename = up.filename

	task := h.deps.Ingestor.Start(job)
	logging.Ctx(r.Context()).Info().
		Str("task_id", task.ID).
		Int64("case_id", caseID).
		Str("source_kind", job.Kind.String()).
		Str("file", sanitizeLogValue(up.filename)).
		Msg("Ingestion submitted")
	rw.Accepted(map[string]string{"task_id": task.ID})
}

// checkUniqueFilename writes a 400 when the case already has a file stored
// under the same name.
func (h *Handler) checkUniqueFilename(rw *ResponseWriter, r *http.Request, caseID int64, filename string) bool {
	name := ingest.CleanFilename(filename)
	existing, err := h.deps.Files.FileByName(r.Context(), caseID, name)
	if errors.Is(err, database.ErrNotFound) {
		return true
	}
	if err != nil {
		rw.DatabaseError(err)
		return false
	}
	rw.ValidationError(
		fmt.Sprintf("a file named %q already exists in this case", name),
		map[string]any{"field": "file", "tag": "unique", "file_id": existing.ID},
	)
	return false
}

// buildJob validates the non-file form fields.
func buildJob(rw *ResponseWriter, r *http.Request, caseID int64) (ingest.Job, bool) {
	kind, err := models.ParseSourceKind(r.FormValue("source_kind"))
	if err != nil {
		rw.ValidationError(err.Error(), map[string]any{"field": "source_kind", "tag": "oneof", "param": "LPR GPS EXTERNAL"})
		return ingest.Job{}, false
	}

	raw, err := ingest.DecodeRawMapping([]byte(r.FormValue("column_mapping")))
	if err != nil {
		rw.ValidationError(err.Error(), map[string]any{"field": "column_mapping"})
		return ingest.Job{}, false
	}
	mapping, err := ingest.NewMapping(kind, raw)
	if err != nil {
		rw.ValidationError(err.Error(), map[string]any{"field": "column_mapping"})
		return ingest.Job{}, false
	}

	job := ingest.Job{CaseID: caseID, Kind: kind, Mapping: mapping}
	if kind != models.SourceExternal {
		return job, true
	}

	job.SourceName = strings.TrimSpace(r.FormValue("source_name"))
	if job.SourceName == "" {
		rw.ValidationError("source_name is required for EXTERNAL files", map[string]any{"field": "source_name", "tag": "required"})
		return ingest.Job{}, false
	}
	if s := strings.TrimSpace(r.FormValue("selected_fields")); s != "" {
		if err := json.Unmarshal([]byte(s), &job.SelectedFields); err != nil {
			rw.ValidationError("selected_fields must be a JSON array of column names", map[string]any{"field": "selected_fields"})
			return ingest.Job{}, false
		}
	}
	return job, true
}

// ValidateReaders classifies the reader ids of an uploaded file without
// writing anything.
func (h *Handler) ValidateReaders(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if _, ok := caseIDParam(rw, r); !ok {
		return
	}

	defer removeForm(r)
	up := h.parseUpload(rw, w, r)
	if up == nil {
		return
	}
	defer up.remove()

	raw, err := ingest.DecodeRawMapping([]byte(r.FormValue("column_mapping")))
	if err != nil {
		rw.ValidationError(err.Error(), map[string]any{"field": "column_mapping"})
		return
	}
	t, ok := readUpload(rw, up)
	if !ok {
		return
	}

	preview, err := ingest.PreviewReaders(r.Context(), t, ingest.LooseMapping(raw), h.deps.Readers)
	if err != nil {
		if errors.Is(err, ingest.ErrMissingColumn) {
			rw.ValidationError(err.Error(), map[string]any{"field": "column_mapping"})
			return
		}
		rw.DatabaseError(err)
		return
	}
	rw.Success(preview)
}

// PreviewFile returns the columns, row count and first rows of an upload.
func (h *Handler) PreviewFile(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	defer removeForm(r)
	up := h.parseUpload(rw, w, r)
	if up == nil {
		return
	}
	defer up.remove()

	t, ok := readUpload(rw, up)
	if !ok {
		return
	}
	rw.Success(ingest.PreviewTable(t))
}

// GetFile returns the metadata row of an ingested file.
func (h *Handler) GetFile(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	raw := chi.URLParam(r, "fileID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		rw.ValidationError("file id must be a positive integer", map[string]any{"field": "fileID", "value": raw})
		return
	}

	f, err := h.deps.Files.GetFile(r.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			rw.NotFound("file not found")
			return
		}
		rw.DatabaseError(err)
		return
	}
	rw.Success(f)
}
