// Tracelane - Vehicle Presence Ingestion and Correlation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracelane

package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/tracelane/internal/config"
	"github.com/tomtom215/tracelane/internal/metrics"
)

func TestRequestIDWithLogging(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{name: "client id kept", incoming: "req-abc-123", keep: true},
		{name: "missing id generated"},
		{name: "oversized id replaced", incoming: strings.Repeat("x", 200)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks/none", nil)
			if tt.incoming != "" {
				req.Header.Set("X-Request-ID", tt.incoming)
			}
			w := env.do(req)

			got := w.Header().Get("X-Request-ID")
			if tt.keep {
				if got != tt.incoming {
					t.Errorf("X-Request-ID = %q, want %q", got, tt.incoming)
				}
			} else if _, err := uuid.Parse(got); err != nil {
				t.Errorf("X-Request-ID = %q, want a generated uuid", got)
			}

			body := decodeEnvelope(t, w)
			if body.Meta.RequestID != got || body.Error.RequestID != got {
				t.Errorf("envelope request ids = %q/%q, header %q", body.Meta.RequestID, body.Error.RequestID, got)
			}
		})
	}
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.Security.RateLimitDisabled = false
		c.Security.RateLimitReqs = 1
		c.Security.RateLimitWindow = time.Minute
	})

	first := env.do(httptest.NewRequest(http.MethodGet, "/api/v1/cases/1/external/sources", nil))
	if first.Code != http.StatusOK {
		t.Fatalf("first request status = %d", first.Code)
	}
	second := env.do(httptest.NewRequest(http.MethodGet, "/api/v1/cases/1/external/sources", nil))
	expectError(t, second, http.StatusTooManyRequests, ErrCodeTooManyRequests)

	// Health sits outside the limited group.
	if w := env.do(httptest.NewRequest(http.MethodGet, "/health", nil)); w.Code != http.StatusOK {
		t.Errorf("health status = %d", w.Code)
	}
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		origin string
		want   string
	}{
		{origin: "https://ui.example", want: "https://ui.example"},
		{origin: "https://evil.example", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodOptions, "/api/v1/correlation/multi-case", nil)
			req.Header.Set("Origin", tt.origin)
			req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			w := env.do(req)
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.want {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAllowsOrigin(t *testing.T) {
	m := NewChiMiddleware(&ChiMiddlewareConfig{CORSAllowedOrigins: []string{"https://a.example"}})
	if !m.AllowsOrigin("https://a.example") || m.AllowsOrigin("https://b.example") {
		t.Error("explicit origin list not honoured")
	}
	wild := NewChiMiddleware(&ChiMiddlewareConfig{CORSAllowedOrigins: []string{"*"}})
	if !wild.AllowsOrigin("https://b.example") {
		t.Error("wildcard origin rejected")
	}
	if NewChiMiddleware(nil).AllowsOrigin("https://a.example") {
		t.Error("default config allows an origin")
	}
}

func TestPrometheusMetrics(t *testing.T) {
	env := newTestEnv(t)
	counter := metrics.APIRequestsTotal.WithLabelValues(http.MethodGet, "/api/v1/tasks/{taskID}", "404")
	before := testutil.ToFloat64(counter)

	env.do(httptest.NewRequest(http.MethodGet, "/api/v1/tasks/first", nil))
	env.do(httptest.NewRequest(http.MethodGet, "/api/v1/tasks/second", nil))

	if got := testutil.ToFloat64(counter) - before; got != 2 {
		t.Errorf("requests recorded under route pattern = %v, want 2", got)
	}

	w := env.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "api_requests_total") {
		t.Errorf("metrics endpoint status %d without api_requests_total", w.Code)
	}
}

func TestNotFoundEnvelope(t *testing.T) {
	env := newTestEnv(t)
	expectError(t, env.do(httptest.NewRequest(http.MethodGet, "/api/v1/nope", nil)), http.StatusNotFound, ErrCodeNotFound)

	w := env.do(httptest.NewRequest(http.MethodDelete, "/api/v1/tasks/abc", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", w.Code)
	}
}
