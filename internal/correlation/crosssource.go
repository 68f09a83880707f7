// Tracelane - Vehicle Presence Ingestion and Correlation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracelane

package correlation

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/tomtom215/tracelane/internal/database"
	"github.com/tomtom215/tracelane/internal/logging"
	"github.com/tomtom215/tracelane/internal/metrics"
	"github.com/tomtom215/tracelane/internal/models"
	"github.com/tomtom215/tracelane/internal/tasks"
)

// Progress stages of a background cross-source run.
const (
	StageAnalyzing      = "analyzing"
	StageExternalSearch = "external_search"
	StageLPRSearch      = "lpr_search"
	StageCrossing       = "crossing"
)

// CrossSourceRequest filters both sides of a cross-source match. CaseID
// comes from the URL.
type CrossSourceRequest struct {
	CaseID        int64             `json:"case_id"`
	SourceName    string            `json:"source_name,omitempty" validate:"omitempty,max=200"`
	CustomFilters map[string]string `json:"custom_filters,omitempty" validate:"omitempty,dive,keys,required,endkeys"`
	Plate         string            `json:"plate,omitempty" validate:"omitempty,max=20"`
	DateFrom      string            `json:"date_from,omitempty" validate:"omitempty,dateish"`
	DateTo        string            `json:"date_to,omitempty" validate:"omitempty,dateish"`
}

// CrossSourceMatch pairs one external record with the earliest LPR reading
// of its plate.
type CrossSourceMatch struct {
	ReadingID    int64              `json:"reading_id"`
	Plate        string             `json:"plate"`
	ReadAt       time.Time          `json:"read_at"`
	ReaderID     string             `json:"reader_id"`
	ReaderName   string             `json:"reader_name"`
	ExternalData map[string]*string `json:"external_data"`
	SourceName   string             `json:"source_name"`
}

// CrossSourceResult is the outcome of a cross-source match. FiltersApplied
// is only set by background runs.
type CrossSourceResult struct {
	Results        []CrossSourceMatch  `json:"results"`
	TotalMatches   int                 `json:"total_matches"`
	Limited        bool                `json:"limited"`
	FiltersApplied *CrossSourceRequest `json:"filters_applied,omitempty"`
}

// CrossSource runs the match synchronously.
func (e *Engine) CrossSource(ctx context.Context, req CrossSourceRequest) (*CrossSourceResult, error) {
	return e.crossSource(ctx, req, func(tasks.Patch) {})
}

// StartCrossSource validates req, registers a task and runs the match in
// the background.
func (e *Engine) StartCrossSource(req CrossSourceRequest) (tasks.Task, error) {
	if _, _, err := dateRange(req.DateFrom, req.DateTo); err != nil {
		return tasks.Task{}, err
	}
	t := e.registry.Create(tasks.KindCrossSource)
	go e.executeCrossSource(t.ID, req)
	return t, nil
}

func (e *Engine) executeCrossSource(taskID string, req CrossSourceRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), e.jobTimeout)
	defer cancel()
	ctx = logging.ContextWithTaskID(ctx, taskID)

	res, err := e.crossSource(ctx, req, func(p tasks.Patch) {
		e.registry.Update(taskID, p)
	})
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Int64("case_id", req.CaseID).Msg("Cross-source match failed")
		e.registry.Update(taskID, tasks.Failed(err.Error()))
		return
	}
	applied := req
	res.FiltersApplied = &applied
	e.registry.Update(taskID, tasks.Completed(crossSourceSummary(res), res))
}

func crossSourceSummary(r *CrossSourceResult) string {
	if r.TotalMatches == 0 {
		return "No plates found in both external data and LPR readings"
	}
	msg := fmt.Sprintf("Found %s matching plates", humanize.Comma(int64(r.TotalMatches)))
	if r.Limited {
		msg += " (limited)"
	}
	return msg
}

func (e *Engine) crossSource(ctx context.Context, req CrossSourceRequest, report func(tasks.Patch)) (res *CrossSourceResult, err error) {
	start := time.Now()
	defer func() {
		if err == nil {
			metrics.RecordCorrelation("cross_source", time.Since(start), res.TotalMatches)
		}
	}()

	from, to, err := dateRange(req.DateFrom, req.DateTo)
	if err != nil {
		return nil, err
	}
	report(tasks.Processing(StageAnalyzing, 10, "Analyzing available data"))

	report(tasks.Processing(StageExternalSearch, 20, "Searching external data"))
	records, err := e.store.ListExternalRecords(ctx, req.CaseID, strings.TrimSpace(req.SourceName))
	if err != nil {
		return nil, fmt.Errorf("failed to load external records: %w", err)
	}
	external, plates := firstExternalPerPlate(records, req.CustomFilters)
	if len(plates) == 0 {
		return &CrossSourceResult{Results: []CrossSourceMatch{}}, nil
	}

	report(tasks.Processing(StageLPRSearch, 40,
		fmt.Sprintf("Searching LPR readings for %s plates", humanize.Comma(int64(len(plates))))))
	readings, err := e.store.ListLPRReadings(ctx, database.LPRFilter{
		CaseID:        req.CaseID,
		Plates:        plates,
		PlateContains: strings.TrimSpace(req.Plate),
		From:          from,
		To:            to,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load LPR readings: %w", err)
	}

	// Readings arrive in time order, so the first one per plate is the
	// earliest.
	earliest := make(map[string]models.Reading)
	for _, rd := range readings {
		if _, ok := external[rd.Plate]; !ok {
			continue
		}
		if _, ok := earliest[rd.Plate]; !ok {
			earliest[rd.Plate] = rd
		}
	}

	matched := make([]string, 0, len(earliest))
	for plate := range earliest {
		matched = append(matched, plate)
	}
	sort.Strings(matched)

	res = &CrossSourceResult{}
	if len(matched) > e.cfg.CrossSourceMaxPlates {
		logging.Ctx(ctx).Warn().
			Int("matches", len(matched)).
			Int("limit", e.cfg.CrossSourceMaxPlates).
			Msg("Cross-source result truncated")
		matched = matched[:e.cfg.CrossSourceMaxPlates]
		res.Limited = true
	}

	report(tasks.Processing(StageCrossing, 70,
		fmt.Sprintf("Crossing %s matching plates", humanize.Comma(int64(len(matched))))))
	res.Results = make([]CrossSourceMatch, 0, len(matched))
	for _, plate := range matched {
		rd := earliest[plate]
		ext := external[plate]
		res.Results = append(res.Results, CrossSourceMatch{
			ReadingID:    rd.ID,
			Plate:        plate,
			ReadAt:       rd.ObservedAt,
			ReaderID:     rd.ReaderID,
			ReaderName:   rd.ReaderName,
			ExternalData: ext.Attributes,
			SourceName:   ext.SourceName,
		})
	}
	res.TotalMatches = len(res.Results)
	return res, nil
}

// firstExternalPerPlate keeps, per plate, the first record in insertion
// order that passes every custom filter. It also returns the plates in
// first-seen order.
func firstExternalPerPlate(records []models.ExternalRecord, filters map[string]string) (map[string]*models.ExternalRecord, []string) {
	byPlate := make(map[string]*models.ExternalRecord)
	var plates []string
	for i := range records {
		rec := &records[i]
		if !matchesAttributes(rec, filters) {
			continue
		}
		if _, ok := byPlate[rec.Plate]; ok {
			continue
		}
		byPlate[rec.Plate] = rec
		plates = append(plates, rec.Plate)
	}
	return byPlate, plates
}

// matchesAttributes compares each filter with the attribute of the same
// name, ignoring case. A missing or null attribute never matches.
func matchesAttributes(rec *models.ExternalRecord, filters map[string]string) bool {
	for field, want := range filters {
		got, ok := rec.Attributes[field]
		if !ok || got == nil || !strings.EqualFold(strings.TrimSpace(*got), strings.TrimSpace(want)) {
			return false
		}
	}
	return true
}
