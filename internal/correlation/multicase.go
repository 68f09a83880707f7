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

	"github.com/tomtom215/tracelane/internal/database"
	"github.com/tomtom215/tracelane/internal/logging"
	"github.com/tomtom215/tracelane/internal/metrics"
	"github.com/tomtom215/tracelane/internal/models"
)

// MultiCaseRequest asks for plates seen in several cases. Plate and Plates
// are OR-combined; both empty means every plate.
type MultiCaseRequest struct {
	CaseIDs []int64  `json:"case_ids" validate:"required,min=2,dive,gt=0"`
	Plate   string   `json:"plate,omitempty" validate:"omitempty,max=20"`
	Plates  []string `json:"plates,omitempty" validate:"omitempty,max=1000,dive,max=20"`
}

// CaseReadings is the readings of one plate in one case, in time order.
type CaseReadings struct {
	CaseID   int64            `json:"case_id"`
	Readings []models.Reading `json:"readings"`
}

// PlateCases groups a plate's readings by case, in ascending case order.
type PlateCases struct {
	Plate string         `json:"plate"`
	Cases []CaseReadings `json:"cases"`
}

// LikePattern turns a plate filter into an ILIKE pattern. "*" matches any
// run of characters and "?" a single one; SQL wildcards in the input are
// literal.
func LikePattern(filter string) string {
	p := database.EscapeLike(normalizePlate(filter))
	p = strings.ReplaceAll(p, "*", "%")
	return strings.ReplaceAll(p, "?", "_")
}

// MultiCase returns, sorted by plate, every plate read by LPR in at least
// two of req.CaseIDs.
func (e *Engine) MultiCase(ctx context.Context, req MultiCaseRequest) ([]PlateCases, error) {
	start := time.Now()

	caseIDs := distinctCases(req.CaseIDs)
	if len(caseIDs) < 2 {
		return nil, invalidf("at least two distinct case ids are required")
	}

	var patterns []string
	for _, f := range append([]string{req.Plate}, req.Plates...) {
		if strings.TrimSpace(f) == "" {
			continue
		}
		patterns = append(patterns, LikePattern(f))
	}

	readings, err := e.store.ListMultiCaseReadings(ctx, caseIDs, patterns)
	if err != nil {
		return nil, fmt.Errorf("failed to load multi-case readings: %w", err)
	}

	out := groupByPlateAndCase(readings)
	metrics.RecordCorrelation("multi_case", time.Since(start), len(out))
	logging.Ctx(ctx).Debug().
		Ints64("case_ids", caseIDs).
		Int("patterns", len(patterns)).
		Int("plates", len(out)).
		Msg("Multi-case correlation finished")
	return out, nil
}

func distinctCases(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// groupByPlateAndCase groups readings and keeps plates present in two or
// more cases. It does not rely on input order.
func groupByPlateAndCase(readings []models.Reading) []PlateCases {
	byPlate := make(map[string]map[int64][]models.Reading)
	for _, rd := range readings {
		cases, ok := byPlate[rd.Plate]
		if !ok {
			cases = make(map[int64][]models.Reading)
			byPlate[rd.Plate] = cases
		}
		cases[rd.CaseID] = append(cases[rd.CaseID], rd)
	}

	plates := make([]string, 0, len(byPlate))
	for plate, cases := range byPlate {
		if len(cases) >= 2 {
			plates = append(plates, plate)
		}
	}
	sort.Strings(plates)

	out := make([]PlateCases, 0, len(plates))
	for _, plate := range plates {
		cases := byPlate[plate]
		ids := make([]int64, 0, len(cases))
		for id := range cases {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

		pc := PlateCases{Plate: plate, Cases: make([]CaseReadings, 0, len(ids))}
		for _, id := range ids {
			rs := cases[id]
			sort.SliceStable(rs, func(i, j int) bool {
				if !rs[i].ObservedAt.Equal(rs[j].ObservedAt) {
					return rs[i].ObservedAt.Before(rs[j].ObservedAt)
				}
				return rs[i].ID < rs[j].ID
			})
			pc.Cases = append(pc.Cases, CaseReadings{CaseID: id, Readings: rs})
		}
		out = append(out, pc)
	}
	return out
}
