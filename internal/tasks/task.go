// Tracelane - Vehicle Presence Ingestion and Correlation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracelane

// Package tasks tracks the lifecycle of detached background jobs.
//
// A job registers itself with Create, reports progress through Update, and
// ends in completed or failed. Pollers read value snapshots with Get or
// subscribe with Watch. The Sweeper evicts finished tasks after a retention
// period and fails tasks that never finish.
package tasks

import (
	"errors"
	"time"
)

// ErrNotFound is returned for unknown or evicted task ids.
var ErrNotFound = errors.New("task not found")

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Kind names the job type a task runs.
type Kind string

const (
	KindIngestion   Kind = "ingestion"
	KindCrossSource Kind = "cross_source"
)

// TimeoutMessage is set on tasks failed by the sweep.
const TimeoutMessage = "interrupted by timeout"

// Task is a snapshot of a job. Values returned by the registry are copies.
type Task struct {
	ID          string     `json:"task_id"`
	Kind        Kind       `json:"kind"`
	Status      Status     `json:"status"`
	Progress    int        `json:"progress"`
	Stage       string     `json:"stage,omitempty"`
	Message     string     `json:"message"`
	Total       int        `json:"total"`
	Result      any        `json:"result,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	Status   *Status
	Progress *int
	Stage    *string
	Message  *string
	Total    *int
	Result   any
}

// Processing builds a progress update.
func Processing(stage string, progress int, message string) Patch {
	s := StatusProcessing
	return Patch{Status: &s, Stage: &stage, Progress: &progress, Message: &message}
}

// Completed builds the terminal success update.
func Completed(message string, result any) Patch {
	s := StatusCompleted
	p := 100
	stage := "done"
	return Patch{Status: &s, Progress: &p, Stage: &stage, Message: &message, Result: result}
}

// Failed builds the terminal failure update.
func Failed(message string) Patch {
	s := StatusFailed
	return Patch{Status: &s, Message: &message}
}

func clampProgress(p int) int {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}
