// Tracelane - Vehicle Presence Ingestion and Correlation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracelane

package correlation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/tracelane/internal/config"
	"github.com/tomtom215/tracelane/internal/database"
	"github.com/tomtom215/tracelane/internal/models"
	"github.com/tomtom215/tracelane/internal/tasks"
	"github.com/tomtom215/tracelane/internal/validation"
)

// ErrInvalidRequest marks input the matchers cannot run with.
var ErrInvalidRequest = errors.New("invalid correlation request")

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// Store is the read side of the database used by the matchers.
type Store interface {
	ListExternalRecords(ctx context.Context, caseID int64, sourceName string) ([]models.ExternalRecord, error)
	ListExternalSources(ctx context.Context, caseID int64) ([]string, error)
	ListExternalFields(ctx context.Context, caseID int64, sourceName string) ([]string, error)
	ListLPRReadings(ctx context.Context, f database.LPRFilter) ([]models.Reading, error)
	ListMultiCaseReadings(ctx context.Context, caseIDs []int64, likePatterns []string) ([]models.Reading, error)
	ListPlateReadings(ctx context.Context, caseID int64, plate string, from, to *time.Time) ([]models.Reading, error)
	ListReaderWindow(ctx context.Context, caseID int64, readerID string, from, to time.Time, excludePlate string) ([]models.Reading, error)
}

// Engine runs the matchers against a Store.
type Engine struct {
	store      Store
	registry   *tasks.Registry
	cfg        config.CorrelationConfig
	jobTimeout time.Duration
}

// NewEngine creates an engine. Background cross-source runs are registered
// in registry and bounded by jobTimeout.
func NewEngine(store Store, registry *tasks.Registry, cfg config.CorrelationConfig, jobTimeout time.Duration) *Engine {
	if cfg.CrossSourceMaxPlates <= 0 {
		cfg.CrossSourceMaxPlates = 5000
	}
	if cfg.ShadowDefaultWindow <= 0 {
		cfg.ShadowDefaultWindow = 10
	}
	if cfg.ShadowDefaultSeparation <= 0 {
		cfg.ShadowDefaultSeparation = 5
	}
	if jobTimeout <= 0 {
		jobTimeout = 30 * time.Minute
	}
	return &Engine{store: store, registry: registry, cfg: cfg, jobTimeout: jobTimeout}
}

// ExternalSources lists the distinct external source names of a case.
func (e *Engine) ExternalSources(ctx context.Context, caseID int64) ([]string, error) {
	sources, err := e.store.ListExternalSources(ctx, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list external sources: %w", err)
	}
	return sources, nil
}

// ExternalFields lists the attribute keys of a case's external records,
// optionally for one source.
func (e *Engine) ExternalFields(ctx context.Context, caseID int64, sourceName string) ([]string, error) {
	fields, err := e.store.ListExternalFields(ctx, caseID, strings.TrimSpace(sourceName))
	if err != nil {
		return nil, fmt.Errorf("failed to list external fields: %w", err)
	}
	return fields, nil
}

// dateRange parses optional request bounds. A date-only upper bound covers
// the whole day.
func dateRange(from, to string) (lo, hi *time.Time, err error) {
	if from = strings.TrimSpace(from); from != "" {
		t, _, perr := validation.ParseDate(from)
		if perr != nil {
			return nil, nil, invalidf("date_from: %v", perr)
		}
		lo = &t
	}
	if to = strings.TrimSpace(to); to != "" {
		t, dateOnly, perr := validation.ParseDate(to)
		if perr != nil {
			return nil, nil, invalidf("date_to: %v", perr)
		}
		if dateOnly {
			t = endOfDay(t)
		}
		hi = &t
	}
	if lo != nil && hi != nil && hi.Before(*lo) {
		return nil, nil, invalidf("date_to is before date_from")
	}
	return lo, hi, nil
}

func endOfDay(t time.Time) time.Time {
	return t.Add(24*time.Hour - time.Microsecond)
}

func normalizePlate(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
