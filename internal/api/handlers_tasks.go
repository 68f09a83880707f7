// Tracelane - Vehicle Presence Ingestion and Correlation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracelane

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/tracelane/internal/logging"
	"github.com/tomtom215/tracelane/internal/tasks"
	"github.com/tomtom215/tracelane/internal/websocket"
)

// TaskResponse is the polled view of a task. Result is only present once
// the task has completed.
type TaskResponse struct {
	TaskID   string       `json:"task_id"`
	Kind     tasks.Kind   `json:"kind"`
	Status   tasks.Status `json:"status"`
	Message  string       `json:"message"`
	Progress int          `json:"progress"`
	Stage    string       `json:"stage,omitempty"`
	Total    int          `json:"total"`
	Result   any          `json:"result,omitempty"`
}

func newTaskResponse(t tasks.Task) TaskResponse {
	resp := TaskResponse{
		TaskID:   t.ID,
		Kind:     t.Kind,
		Status:   t.Status,
		Message:  t.Message,
		Progress: t.Progress,
		Stage:    t.Stage,
		Total:    t.Total,
	}
	if t.Status == tasks.StatusCompleted {
		resp.Result = t.Result
	}
	return resp
}

// GetTask returns the current state of a background task.
func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	id := chi.URLParam(r, "taskID")

	t, err := h.deps.Tasks.Get(id)
	if err != nil {
		if errors.Is(err, tasks.ErrNotFound) {
			rw.NotFound("task not found")
			return
		}
		rw.InternalError("failed to read task")
		return
	}
	rw.Success(newTaskResponse(t))
}

// StreamTask upgrades to a websocket and pushes task snapshots until the
// task is terminal. Unknown tasks get a 404 before the upgrade.
func (h *Handler) StreamTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "taskID")

	updates, cancel, err := h.deps.Tasks.Watch(id)
	if err != nil {
		rw := NewResponseWriter(w, r)
		if errors.Is(err, tasks.ErrNotFound) {
			rw.NotFound("task not found")
			return
		}
		rw.InternalError("failed to watch task")
		return
	}

	upgrader := h.upgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		cancel()
		logging.Ctx(r.Context()).Warn().Err(err).Str("task_id", id).Msg("Task stream upgrade failed")
		return
	}

	logging.Ctx(r.Context()).Debug().Str("task_id", id).Msg("Task stream opened")
	websocket.NewTaskStream(conn, updates, cancel).Run()
}
