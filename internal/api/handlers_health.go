// Tracelane - Vehicle Presence Ingestion and Correlation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracelane

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/tomtom215/tracelane/internal/logging"
)

// healthPingTimeout bounds the database ping of a health check.
const healthPingTimeout = 2 * time.Second

// HealthStatus is the body of GET /health.
type HealthStatus struct {
	Status            string  `json:"status"` // healthy or degraded
	DatabaseConnected bool    `json:"database_connected"`
	Uptime            float64 `json:"uptime_seconds"`
}

// Health reports liveness and database connectivity. A failed ping answers
// 503 so load balancers take the instance out of rotation.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	dbConnected := false
	if h.deps.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
		err := h.deps.DB.Ping(ctx)
		cancel()
		if err != nil {
			logging.Ctx(r.Context()).Warn().Err(err).Msg("Health check database ping failed")
		}
		dbConnected = err == nil
	}

	status := HealthStatus{
		Status:            "healthy",
		DatabaseConnected: dbConnected,
		Uptime:            time.Since(h.startTime).Seconds(),
	}
	if !dbConnected {
		status.Status = "degraded"
		rw.ServiceUnavailable("database unavailable", status)
		return
	}
	rw.Success(status)
}
