// Tracelane - Vehicle Presence Ingestion and Correlation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracelane

package tasks

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/tracelane/internal/metrics"
)

type entry struct {
	task     Task
	watchers []chan Task
}

// Registry holds every live task. All methods are safe for concurrent use
// and never fail the caller, except Get on an unknown id.
type Registry struct {
	mu    sync.Mutex
	tasks map[string]*entry
	now   func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tasks: make(map[string]*entry),
		now:   time.Now,
	}
}

// Create registers a new pending task and returns its snapshot.
func (r *Registry) Create(kind Kind) Task {
	now := r.now()
	t := Task{
		ID:        uuid.New().String(),
		Kind:      kind,
		Status:    StatusPending,
		Message:   "queued",
		CreatedAt: now,
		UpdatedAt: now,
	}

	r.mu.Lock()
	r.tasks[t.ID] = &entry{task: t}
	r.publishCountsLocked()
	r.mu.Unlock()
	return t
}

// Update applies p to the task. Updates to unknown or already terminal
// tasks are ignored, so a worker that outlives its timeout cannot resurrect
// a task the sweep has failed. It reports whether the patch was applied.
func (r *Registry) Update(id string, p Patch) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.tasks[id]
	if !ok || e.task.Status.Terminal() {
		return false
	}

	t := &e.task
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.Progress != nil {
		t.Progress = clampProgress(*p.Progress)
	}
	if p.Stage != nil {
		t.Stage = *p.Stage
	}
	if p.Message != nil {
		t.Message = *p.Message
	}
	if p.Total != nil {
		t.Total = *p.Total
	}
	if p.Result != nil {
		t.Result = p.Result
	}
	t.UpdatedAt = r.now()
	if t.Status.Terminal() {
		completed := t.UpdatedAt
		t.CompletedAt = &completed
	}

	r.notifyLocked(e)
	r.publishCountsLocked()
	return true
}

// Get returns a snapshot of the task or ErrNotFound.
func (r *Registry) Get(id string) (Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.tasks[id]
	if !ok {
		return Task{}, ErrNotFound
	}
	return e.task, nil
}

// Watch returns a channel receiving the latest snapshot after each update.
// The current snapshot is delivered first. Slow readers only see the most
// recent state. The channel closes once the task is terminal or evicted;
// call cancel to stop watching earlier.
func (r *Registry) Watch(id string) (updates <-chan Task, cancel func(), err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.tasks[id]
	if !ok {
		return nil, nil, ErrNotFound
	}

	ch := make(chan Task, 1)
	ch <- e.task
	if e.task.Status.Terminal() {
		close(ch)
		return ch, func() {}, nil
	}
	e.watchers = append(e.watchers, ch)

	cancel = func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		cur, ok := r.tasks[id]
		if !ok {
			return
		}
		for i, w := range cur.watchers {
			if w == ch {
				cur.watchers = append(cur.watchers[:i], cur.watchers[i+1:]...)
				close(ch)
				return
			}
		}
	}
	return ch, cancel, nil
}

// notifyLocked pushes the current snapshot to every watcher, replacing any
// undelivered one, and closes the watchers of terminal tasks.
func (r *Registry) notifyLocked(e *entry) {
	for _, ch := range e.watchers {
		select {
		case <-ch:
		default:
		}
		ch <- e.task
		if e.task.Status.Terminal() {
			close(ch)
		}
	}
	if e.task.Status.Terminal() {
		e.watchers = nil
	}
}

// SweepStats reports the work done by one sweep.
type SweepStats struct {
	Evicted  int `json:"evicted"`
	TimedOut int `json:"timed_out"`
	Live     int `json:"live"`
}

// Sweep evicts terminal tasks whose completion is older than retention and
// fails unfinished tasks older than stuckTimeout. Tasks failed here become
// eligible for eviction on a later sweep once their own retention elapses.
func (r *Registry) Sweep(now time.Time, retention, stuckTimeout time.Duration) SweepStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	var stats SweepStats
	for id, e := range r.tasks {
		t := &e.task
		switch {
		case t.Status.Terminal():
			if t.CompletedAt != nil && now.Sub(*t.CompletedAt) > retention {
				for _, ch := range e.watchers {
					close(ch)
				}
				delete(r.tasks, id)
				stats.Evicted++
			}
		case now.Sub(t.CreatedAt) > stuckTimeout:
			t.Status = StatusFailed
			t.Message = TimeoutMessage
			t.UpdatedAt = now
			completed := now
			t.CompletedAt = &completed
			r.notifyLocked(e)
			stats.TimedOut++
		}
	}
	stats.Live = len(r.tasks)
	r.publishCountsLocked()
	return stats
}

func (r *Registry) publishCountsLocked() {
	counts := make(map[string]int, 4)
	for _, e := range r.tasks {
		counts[string(e.task.Status)]++
	}
	metrics.SetTaskCounts(counts)
}
