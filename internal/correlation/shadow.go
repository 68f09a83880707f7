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

	"github.com/tomtom215/tracelane/internal/logging"
	"github.com/tomtom215/tracelane/internal/metrics"
	"github.com/tomtom215/tracelane/internal/models"
)

// Direction modes select which side of a target reading is searched.
const (
	DirectionBefore = "before"
	DirectionAfter  = "after"
	DirectionBoth   = "both"
)

// Temporal position of a co-occurrence relative to the target reading.
const (
	PositionBefore       = "before"
	PositionAfter        = "after"
	PositionSimultaneous = "simultaneous"
)

// Detail row kinds.
const (
	KindTarget = "target"
	KindShadow = "shadow"
)

const (
	dayLayout    = "2006-01-02"
	minuteLayout = "15:04"
)

// ShadowRequest describes a shadow-vehicle search. A nil Window or
// Separation and an empty Direction take the configured defaults; an
// explicit zero Separation is kept.
type ShadowRequest struct {
	CaseID     int64  `json:"case_id"`
	Plate      string `json:"plate" validate:"required,max=20"`
	DateFrom   string `json:"date_from,omitempty" validate:"omitempty,dateish"`
	DateTo     string `json:"date_to,omitempty" validate:"omitempty,dateish"`
	Window     *int   `json:"window_minutes,omitempty" validate:"omitempty,min=1,max=1440"`
	Separation *int   `json:"min_separation_minutes,omitempty" validate:"omitempty,min=0,max=1440"`
	Direction  string `json:"direction,omitempty" validate:"omitempty,oneof=before after both"`
}

// ShadowDetail is one row of the shadow report.
type ShadowDetail struct {
	Plate     string  `json:"plate"`
	Date      string  `json:"date"`
	Time      string  `json:"time"`
	ReaderID  string  `json:"reader_id"`
	Kind      string  `json:"kind"`
	Direction *string `json:"direction"`
}

// ShadowResult lists the shadow vehicles of a target in first-seen order,
// and every target reading and shadow co-occurrence sorted by date, time
// and plate.
type ShadowResult struct {
	Vehicles []string       `json:"shadow_vehicles"`
	Details  []ShadowDetail `json:"details"`
}

// ShadowDetector finds shadow vehicles.
type ShadowDetector interface {
	DetectShadows(ctx context.Context, req ShadowRequest) (*ShadowResult, error)
}

// withDefaults normalizes req so equivalent requests compare equal.
func (e *Engine) withDefaults(req ShadowRequest) (ShadowRequest, error) {
	req.Plate = normalizePlate(req.Plate)
	if req.Plate == "" {
		return req, invalidf("plate is required")
	}
	window, separation := e.cfg.ShadowDefaultWindow, e.cfg.ShadowDefaultSeparation
	if req.Window != nil {
		window = *req.Window
	}
	if req.Separation != nil {
		separation = *req.Separation
	}
	if window < 1 {
		return req, invalidf("window_minutes must be positive")
	}
	if separation < 0 {
		return req, invalidf("min_separation_minutes must not be negative")
	}
	req.Window, req.Separation = &window, &separation
	req.Direction = strings.ToLower(strings.TrimSpace(req.Direction))
	switch req.Direction {
	case "":
		req.Direction = DirectionBoth
	case DirectionBefore, DirectionAfter, DirectionBoth:
	default:
		return req, invalidf("unknown direction %q", req.Direction)
	}
	req.DateFrom = strings.TrimSpace(req.DateFrom)
	req.DateTo = strings.TrimSpace(req.DateTo)
	return req, nil
}

// sighting is one co-occurrence of a candidate plate with the target.
type sighting struct {
	minute   string // HH:MM
	reader   string
	position string
}

// candidate accumulates the sightings of one plate, per day in first-seen
// order.
type candidate struct {
	plate string
	days  []string
	byDay map[string][]sighting
}

func (c *candidate) add(day string, s sighting) {
	if _, ok := c.byDay[day]; !ok {
		c.days = append(c.days, day)
	}
	c.byDay[day] = append(c.byDay[day], s)
}

// qualifies reports whether the candidate met the target on two or more
// days, or at more than two readers on one day with two sightings at
// least separation apart.
func (c *candidate) qualifies(separation time.Duration) bool {
	if len(c.days) >= 2 {
		return true
	}
	for _, day := range c.days {
		ss := c.byDay[day]
		readers := make(map[string]struct{}, len(ss))
		for _, s := range ss {
			readers[s.reader] = struct{}{}
		}
		if len(readers) <= 2 {
			continue
		}
		if spread(ss) >= separation {
			return true
		}
	}
	return false
}

// spread is the largest gap between two sightings, at minute precision.
func spread(ss []sighting) time.Duration {
	var lo, hi time.Duration
	for i, s := range ss {
		t, err := time.Parse(minuteLayout, s.minute)
		if err != nil {
			continue
		}
		d := time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute
		if i == 0 || d < lo {
			lo = d
		}
		if i == 0 || d > hi {
			hi = d
		}
	}
	return hi - lo
}

// DetectShadows implements ShadowDetector.
func (e *Engine) DetectShadows(ctx context.Context, req ShadowRequest) (*ShadowResult, error) {
	start := time.Now()
	req, err := e.withDefaults(req)
	if err != nil {
		return nil, err
	}
	from, to, err := dateRange(req.DateFrom, req.DateTo)
	if err != nil {
		return nil, err
	}

	targets, err := e.store.ListPlateReadings(ctx, req.CaseID, req.Plate, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to load target readings: %w", err)
	}
	res := &ShadowResult{Vehicles: []string{}, Details: []ShadowDetail{}}
	if len(targets) == 0 {
		metrics.RecordCorrelation("shadow", time.Since(start), 0)
		return res, nil
	}

	window := time.Duration(*req.Window) * time.Minute
	var (
		order      []*candidate
		candidates = make(map[string]*candidate)
	)
	for _, target := range targets {
		if target.ReaderID == "" {
			continue
		}
		lo, hi := target.ObservedAt.Add(-window), target.ObservedAt.Add(window)
		switch req.Direction {
		case DirectionBefore:
			hi = target.ObservedAt
		case DirectionAfter:
			lo = target.ObservedAt
		}

		nearby, err := e.store.ListReaderWindow(ctx, req.CaseID, target.ReaderID, lo, hi, req.Plate)
		if err != nil {
			return nil, fmt.Errorf("failed to load readings near %s: %w", target.ObservedAt.Format(time.DateTime), err)
		}
		for _, rd := range nearby {
			c, ok := candidates[rd.Plate]
			if !ok {
				c = &candidate{plate: rd.Plate, byDay: make(map[string][]sighting)}
				candidates[rd.Plate] = c
				order = append(order, c)
			}
			c.add(rd.ObservedAt.Format(dayLayout), sighting{
				minute:   rd.ObservedAt.Format(minuteLayout),
				reader:   rd.ReaderID,
				position: position(rd.ObservedAt, target.ObservedAt),
			})
		}
	}

	for _, target := range targets {
		res.Details = append(res.Details, targetDetail(target))
	}
	separation := time.Duration(*req.Separation) * time.Minute
	for _, c := range order {
		if !c.qualifies(separation) {
			continue
		}
		res.Vehicles = append(res.Vehicles, c.plate)
		for _, day := range c.days {
			for _, s := range c.byDay[day] {
				pos := s.position
				res.Details = append(res.Details, ShadowDetail{
					Plate:     c.plate,
					Date:      day,
					Time:      s.minute + ":00",
					ReaderID:  s.reader,
					Kind:      KindShadow,
					Direction: &pos,
				})
			}
		}
	}
	sort.SliceStable(res.Details, func(i, j int) bool {
		a, b := res.Details[i], res.Details[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.Time != b.Time {
			return a.Time < b.Time
		}
		return a.Plate < b.Plate
	})

	metrics.RecordCorrelation("shadow", time.Since(start), len(res.Vehicles))
	logging.Ctx(ctx).Info().
		Str("plate", req.Plate).
		Int64("case_id", req.CaseID).
		Int("targets", len(targets)).
		Int("candidates", len(order)).
		Int("shadows", len(res.Vehicles)).
		Msg("Shadow detection finished")
	return res, nil
}

func position(at, target time.Time) string {
	switch {
	case at.Before(target):
		return PositionBefore
	case at.After(target):
		return PositionAfter
	default:
		return PositionSimultaneous
	}
}

func targetDetail(rd models.Reading) ShadowDetail {
	return ShadowDetail{
		Plate:    rd.Plate,
		Date:     rd.ObservedAt.Format(dayLayout),
		Time:     rd.ObservedAt.Format(time.TimeOnly),
		ReaderID: rd.ReaderID,
		Kind:     KindTarget,
	}
}

var _ ShadowDetector = (*Engine)(nil)
