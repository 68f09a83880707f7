// Tracelane - Vehicle Presence Ingestion and Correlation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracelane

package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/goccy/go-json"

	"github.com/tomtom215/tracelane/internal/config"
	"github.com/tomtom215/tracelane/internal/correlation"
	"github.com/tomtom215/tracelane/internal/database"
	"github.com/tomtom215/tracelane/internal/ingest"
	"github.com/tomtom215/tracelane/internal/models"
	"github.com/tomtom215/tracelane/internal/tasks"
)

// fakeIngestor records submitted jobs instead of running them.
type fakeIngestor struct {
	mu       sync.Mutex
	registry *tasks.Registry
	jobs     []ingest.Job
}

func (f *fakeIngestor) Start(job ingest.Job) tasks.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, job)
	return f.registry.Create(tasks.KindIngestion)
}

type fakeReaders map[string]*models.Reader

func (f fakeReaders) GetReaders(_ context.Context, ids []string) (map[string]*models.Reader, error) {
	out := make(map[string]*models.Reader)
	for _, id := range ids {
		if r, ok := f[id]; ok {
			out[id] = r
		}
	}
	return out, nil
}

// fakeCorrelator records the last request of each matcher and returns err
// when set.
type fakeCorrelator struct {
	registry *tasks.Registry
	err      error

	crossReq   correlation.CrossSourceRequest
	multiReq   correlation.MultiCaseRequest
	fieldsArgs struct {
		caseID int64
		source string
	}
	sourcesCase int64
}

func (f *fakeCorrelator) CrossSource(_ context.Context, req correlation.CrossSourceRequest) (*correlation.CrossSourceResult, error) {
	f.crossReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &correlation.CrossSourceResult{
		Results:      []correlation.CrossSourceMatch{{ReadingID: 1, Plate: "1234ABC", ReaderID: "CAM-01"}},
		TotalMatches: 1,
	}, nil
}

func (f *fakeCorrelator) StartCrossSource(req correlation.CrossSourceRequest) (tasks.Task, error) {
	f.crossReq = req
	if f.err != nil {
		return tasks.Task{}, f.err
	}
	return f.registry.Create(tasks.KindCrossSource), nil
}

func (f *fakeCorrelator) ExternalSources(_ context.Context, caseID int64) ([]string, error) {
	f.sourcesCase = caseID
	return []string{"Insurer", "Registry"}, f.err
}

func (f *fakeCorrelator) ExternalFields(_ context.Context, caseID int64, sourceName string) ([]string, error) {
	f.fieldsArgs.caseID, f.fieldsArgs.source = caseID, sourceName
	return []string{"colour", "model"}, f.err
}

func (f *fakeCorrelator) MultiCase(_ context.Context, req correlation.MultiCaseRequest) ([]correlation.PlateCases, error) {
	f.multiReq = req
	if f.err != nil {
		return nil, f.err
	}
	return []correlation.PlateCases{{
		Plate: "1234ABC",
		Cases: []correlation.CaseReadings{{CaseID: 1}, {CaseID: 2}},
	}}, nil
}

type fakeShadows struct {
	req correlation.ShadowRequest
	err error
}

func (f *fakeShadows) DetectShadows(_ context.Context, req correlation.ShadowRequest) (*correlation.ShadowResult, error) {
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	return &correlation.ShadowResult{Vehicles: []string{"5678DEF"}, Details: []correlation.ShadowDetail{}}, nil
}

// fakeFiles holds file rows keyed by id; err fails every lookup.
type fakeFiles struct {
	files map[int64]*models.FileRecord
	err   error
}

func (f *fakeFiles) GetFile(_ context.Context, id int64) (*models.FileRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	if rec, ok := f.files[id]; ok {
		return rec, nil
	}
	return nil, fmt.Errorf("file %d: %w", id, database.ErrNotFound)
}

func (f *fakeFiles) FileByName(_ context.Context, caseID int64, filename string) (*models.FileRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, rec := range f.files {
		if rec.CaseID == caseID && rec.Filename == filename {
			return rec, nil
		}
	}
	return nil, fmt.Errorf("file %q: %w", filename, database.ErrNotFound)
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

// testEnv is a router over fakes.
type testEnv struct {
	cfg        *config.Config
	registry   *tasks.Registry
	ingestor   *fakeIngestor
	files      *fakeFiles
	correlator *fakeCorrelator
	shadows    *fakeShadows
	pinger     *fakePinger
	handler    http.Handler
}

func newTestEnv(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()
	cfg := config.Default()
	cfg.Ingest.TempDir = t.TempDir()
	cfg.Security.RateLimitDisabled = true
	cfg.Security.CORSOrigins = []string{"https://ui.example"}
	for _, m := range mutate {
		m(cfg)
	}

	registry := tasks.NewRegistry()
	env := &testEnv{
		cfg:        cfg,
		registry:   registry,
		ingestor:   &fakeIngestor{registry: registry},
		files:      &fakeFiles{files: map[int64]*models.FileRecord{}},
		correlator: &fakeCorrelator{registry: registry},
		shadows:    &fakeShadows{},
		pinger:     &fakePinger{},
	}
	h := NewHandler(Deps{
		Ingestor:   env.ingestor,
		Files:      env.files,
		Readers:    fakeReaders{"CAM-01": {ID: "CAM-01", Name: "North gate"}},
		Tasks:      registry,
		Correlator: env.correlator,
		Shadows:    env.shadows,
		DB:         env.pinger,
	}, cfg)
	env.handler = NewRouter(h).SetupChi()
	return env
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func (e *testEnv) postJSON(path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	return e.do(req)
}

// envelope mirrors APIResponse with the payload left raw.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
	Meta    *APIMeta        `json:"meta"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope %q: %v", w.Body.String(), err)
	}
	if env.Meta == nil || env.Meta.Timestamp.IsZero() {
		t.Errorf("envelope without meta: %s", w.Body.String())
	}
	return env
}

// expectError checks status and error code of an error envelope.
func expectError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) envelope {
	t.Helper()
	if w.Code != status {
		t.Fatalf("status = %d, want %d: %s", w.Code, status, w.Body.String())
	}
	env := decodeEnvelope(t, w)
	if env.Success || env.Error == nil || env.Error.Code != code {
		t.Fatalf("error = %+v, want code %s", env.Error, code)
	}
	return env
}

// expectData checks for a success envelope and decodes its payload into v.
func expectData(t *testing.T, w *httptest.ResponseRecorder, status int, v any) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("status = %d, want %d: %s", w.Code, status, w.Body.String())
	}
	env := decodeEnvelope(t, w)
	if !env.Success {
		t.Fatalf("success = false: %s", w.Body.String())
	}
	if v != nil {
		if err := json.Unmarshal(env.Data, v); err != nil {
			t.Fatalf("decode data %s: %v", env.Data, err)
		}
	}
}

// multipartRequest builds a multipart POST with an optional file part.
func multipartRequest(t *testing.T, path, filename, content string, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("WriteField: %v", err)
		}
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		if _, err := fw.Write([]byte(content)); err != nil {
			t.Fatalf("write file part: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

var errStore = errors.New("connection reset")
