// Tracelane - Vehicle Presence Ingestion and Correlation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracelane

package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/tracelane/internal/validation"
)

// maxJSONBody bounds JSON request bodies.
const maxJSONBody = 1 << 20

// sanitizeLogValue escapes control characters so client input cannot
// forge log lines.
func sanitizeLogValue(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7F {
			fmt.Fprintf(&b, "\\x%02x", r)
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// caseIDParam parses the {caseID} URL parameter. It writes a 400 and
// returns false when the id is not a positive integer.
func caseIDParam(rw *ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "caseID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		rw.ValidationError("case id must be a positive integer", map[string]any{"field": "caseID", "value": raw})
		return 0, false
	}
	return id, true
}

// decodeJSON reads a bounded JSON body into v. An empty body leaves v
// untouched. It writes a 400 and returns false on malformed input.
func decodeJSON(rw *ResponseWriter, w http.ResponseWriter, r *http.Request, v any) bool {
	body := http.MaxBytesReader(w, r.Body, maxJSONBody)
	defer body.Close()

	dec := json.NewDecoder(body)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return true
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			rw.PayloadTooLarge("request body too large")
			return false
		}
		rw.BadRequest("invalid JSON body: " + err.Error())
		return false
	}
	return true
}

// validateRequest runs struct validation and writes the 400 on failure.
func validateRequest(rw *ResponseWriter, v any) bool {
	verr := validation.ValidateStruct(v)
	if verr == nil {
		return true
	}
	apiErr := verr.ToAPIError()
	rw.ValidationError(apiErr.Message, apiErr.Details)
	return false
}
