// Tracelane - Vehicle Presence Ingestion and Correlation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracelane

package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/tomtom215/tracelane/internal/correlation"
	"github.com/tomtom215/tracelane/internal/logging"
)

// correlationError maps matcher failures: bad input is the client's, the
// rest is a store failure.
func correlationError(rw *ResponseWriter, err error) {
	if errors.Is(err, correlation.ErrInvalidRequest) {
		rw.ValidationError(err.Error(), nil)
		return
	}
	rw.DatabaseError(err)
}

// decodeCrossSource reads and validates a cross-source body. The case id
// always comes from the path.
func decodeCrossSource(rw *ResponseWriter, w http.ResponseWriter, r *http.Request) (correlation.CrossSourceRequest, bool) {
	var req correlation.CrossSourceRequest
	caseID, ok := caseIDParam(rw, r)
	if !ok || !decodeJSON(rw, w, r, &req) {
		return req, false
	}
	req.CaseID = caseID
	if !validateRequest(rw, &req) {
		return req, false
	}
	return req, true
}

// CrossSource matches external records against LPR readings of a case.
func (h *Handler) CrossSource(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	req, ok := decodeCrossSource(rw, w, r)
	if !ok {
		return
	}

	res, err := h.deps.Correlator.CrossSource(r.Context(), req)
	if err != nil {
		correlationError(rw, err)
		return
	}
	rw.Success(res)
}

// CrossSourceAsync runs the cross-source match in the background and
// returns 202 {task_id}.
func (h *Handler) CrossSourceAsync(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	req, ok := decodeCrossSource(rw, w, r)
	if !ok {
		return
	}

	task, err := h.deps.Correlator.StartCrossSource(req)
	if err != nil {
		correlationError(rw, err)
		return
	}
	logging.Ctx(r.Context()).Info().Str("task_id", task.ID).Int64("case_id", req.CaseID).Msg("Cross-source match submitted")
	rw.Accepted(map[string]string{"task_id": task.ID})
}

// ExternalSources lists the external source names ingested into a case.
func (h *Handler) ExternalSources(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	caseID, ok := caseIDParam(rw, r)
	if !ok {
		return
	}

	sources, err := h.deps.Correlator.ExternalSources(r.Context(), caseID)
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	rw.Success(map[string]any{"sources": sources})
}

// ExternalFields lists the attribute keys of a case's external records,
// optionally limited to ?source_name=.
func (h *Handler) ExternalFields(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	caseID, ok := caseIDParam(rw, r)
	if !ok {
		return
	}
	sourceName := strings.TrimSpace(r.URL.Query().Get("source_name"))

	fields, err := h.deps.Correlator.ExternalFields(r.Context(), caseID, sourceName)
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	rw.Success(map[string]any{"fields": fields})
}

// MultiCase returns the plates read in at least two of the requested cases.
func (h *Handler) MultiCase(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	var req correlation.MultiCaseRequest
	if !decodeJSON(rw, w, r, &req) || !validateRequest(rw, &req) {
		return
	}

	groups, err := h.deps.Correlator.MultiCase(r.Context(), req)
	if err != nil {
		correlationError(rw, err)
		return
	}
	rw.Success(map[string]any{"plates": groups, "total": len(groups)})
}

// Shadow finds vehicles travelling with a target plate.
func (h *Handler) Shadow(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	caseID, ok := caseIDParam(rw, r)
	if !ok {
		return
	}
	var req correlation.ShadowRequest
	if !decodeJSON(rw, w, r, &req) {
		return
	}
	req.CaseID = caseID
	if !validateRequest(rw, &req) {
		return
	}

	res, err := h.deps.Shadows.DetectShadows(r.Context(), req)
	if err != nil {
		correlationError(rw, err)
		return
	}
	rw.Success(res)
}
