// Tracelane - Vehicle Presence Ingestion and Correlation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracelane

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router wires the handler into a chi route tree.
type Router struct {
	handler *Handler
}

// NewRouter creates a router for handler.
func NewRouter(handler *Handler) *Router {
	return &Router{handler: handler}
}

// SetupChi builds the route tree.
func (router *Router) SetupChi() http.Handler {
	h := router.handler
	r := chi.NewRouter()

	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(h.mw.CORS()) // global so OPTIONS preflight is answered

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NewResponseWriter(w, r).NotFound("route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		NewResponseWriter(w, r).Error(http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	})

	r.With(APISecurityHeaders()).Get("/health", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(h.mw.RateLimit())
		r.Use(APISecurityHeaders())
		r.Use(PrometheusMetrics)

		r.Post("/files/preview", h.PreviewFile)
		r.Get("/files/{fileID}", h.GetFile)

		r.Route("/cases/{caseID}", func(r chi.Router) {
			r.Post("/files", h.UploadFile)
			r.Post("/files/validate-readers", h.ValidateReaders)

			r.Post("/cross-source", h.CrossSource)
			r.Post("/cross-source/async", h.CrossSourceAsync)
			r.Get("/external/sources", h.ExternalSources)
			r.Get("/external/fields", h.ExternalFields)

			r.Post("/shadow", h.Shadow)
		})

		r.Get("/tasks/{taskID}", h.GetTask)
		r.Get("/tasks/{taskID}/stream", h.StreamTask)

		r.Post("/correlation/multi-case", h.MultiCase)
	})

	return r
}
