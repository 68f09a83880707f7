// Tracelane - Vehicle Presence Ingestion and Correlation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracelane

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/tracelane/internal/config"
	"github.com/tomtom215/tracelane/internal/correlation"
	"github.com/tomtom215/tracelane/internal/ingest"
	"github.com/tomtom215/tracelane/internal/logging"
	"github.com/tomtom215/tracelane/internal/models"
	"github.com/tomtom215/tracelane/internal/tasks"
)

// Ingestor starts background ingestion jobs. *ingest.Pipeline implements it.
type Ingestor interface {
	Start(job ingest.Job) tasks.Task
}

// TaskSource reads the task registry. *tasks.Registry implements it.
type TaskSource interface {
	Get(id string) (tasks.Task, error)
	Watch(id string) (<-chan tasks.Task, func(), error)
}

// Correlator runs the synchronous and background matchers.
// *correlation.Engine implements it.
type Correlator interface {
	CrossSource(ctx context.Context, req correlation.CrossSourceRequest) (*correlation.CrossSourceResult, error)
	StartCrossSource(req correlation.CrossSourceRequest) (tasks.Task, error)
	ExternalSources(ctx context.Context, caseID int64) ([]string, error)
	ExternalFields(ctx context.Context, caseID int64, sourceName string) ([]string, error)
	MultiCase(ctx context.Context, req correlation.MultiCaseRequest) ([]correlation.PlateCases, error)
}

// FileStore reads file rows. *database.DB implements it; lookups that find
// nothing return database.ErrNotFound.
type FileStore interface {
	GetFile(ctx context.Context, id int64) (*models.FileRecord, error)
	FileByName(ctx context.Context, caseID int64, filename string) (*models.FileRecord, error)
}

// Pinger checks store connectivity. *database.DB implements it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators of Handler.
type Deps struct {
	Ingestor   Ingestor
	Files      FileStore
	Readers    ingest.ReaderLookup
	Tasks      TaskSource
	Correlator Correlator
	Shadows    correlation.ShadowDetector
	DB         Pinger
}

// Handler serves the HTTP API.
//
// Handler methods are split across files:
//   - handlers_files.go: ingestion submit, file rows and previews
//   - handlers_tasks.go: task polling and the websocket stream
//   - handlers_correlation.go: matchers and external metadata
//   - handlers_health.go: health check
type Handler struct {
	deps      Deps
	config    *config.Config
	mw        *ChiMiddleware
	startTime time.Time
}

// NewHandler creates the API handler.
func NewHandler(deps Deps, cfg *config.Config) *Handler {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Handler{
		deps:      deps,
		config:    cfg,
		mw:        NewChiMiddleware(ChiMiddlewareConfigFromSecurity(cfg.Security)),
		startTime: time.Now(),
	}
}

// upgrader creates the websocket upgrader for task streams.
func (h *Handler) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  4096,
		CheckOrigin:      h.checkWebSocketOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
}

// checkWebSocketOrigin allows non-browser clients (no Origin header) and
// browsers from a configured CORS origin.
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if h.mw.AllowsOrigin(origin) {
		return true
	}
	logging.Warn().Str("origin", sanitizeLogValue(origin)).Msg("Task stream rejected from unauthorized origin")
	return false
}
