// Tracelane - Vehicle Presence Ingestion and Correlation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracelane

package tasks

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeClock lets tests move the registry's notion of now.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestRegistry(t *testing.T) (*Registry, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	r := NewRegistry()
	r.now = clock.Now
	return r, clock
}

func TestCreateAndGet(t *testing.T) {
	r, _ := newTestRegistry(t)

	task := r.Create(KindIngestion)
	if task.Status != StatusPending {
		t.Errorf("status = %s, want pending", task.Status)
	}
	if task.ID == "" {
		t.Fatal("empty task id")
	}

	got, err := r.Get(task.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Kind != KindIngestion {
		t.Errorf("kind = %s, want ingestion", got.Kind)
	}

	if _, err := r.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestUpdateClampsProgressAndStampsCompletion(t *testing.T) {
	r, clock := newTestRegistry(t)
	task := r.Create(KindIngestion)

	r.Update(task.ID, Processing("processing", 150, "rows"))
	got, _ := r.Get(task.ID)
	if got.Progress != 100 {
		t.Errorf("progress = %d, want clamped 100", got.Progress)
	}
	if got.CompletedAt != nil {
		t.Error("completed_at set on non-terminal task")
	}

	r.Update(task.ID, Processing("processing", -5, "rows"))
	got, _ = r.Get(task.ID)
	if got.Progress != 0 {
		t.Errorf("progress = %d, want clamped 0", got.Progress)
	}

	clock.Advance(time.Minute)
	r.Update(task.ID, Completed("done", map[string]int{"imported_count": 3}))
	got, _ = r.Get(task.ID)
	if got.Status != StatusCompleted || got.CompletedAt == nil {
		t.Fatalf("task = %+v, want completed with completed_at", got)
	}
	if !got.CompletedAt.Equal(clock.Now()) {
		t.Errorf("completed_at = %v, want %v", got.CompletedAt, clock.Now())
	}
}

func TestUpdateIgnoredAfterTerminal(t *testing.T) {
	r, _ := newTestRegistry(t)
	task := r.Create(KindCrossSource)

	r.Update(task.ID, Failed("boom"))
	if r.Update(task.ID, Completed("late", nil)) {
		t.Error("update applied to a terminal task")
	}
	got, _ := r.Get(task.ID)
	if got.Status != StatusFailed || got.Message != "boom" {
		t.Errorf("task = %+v, want failed/boom", got)
	}
	if r.Update("missing", Failed("x")) {
		t.Error("update applied to unknown task")
	}
}

func TestGetReturnsCopies(t *testing.T) {
	r, _ := newTestRegistry(t)
	task := r.Create(KindIngestion)

	snap, _ := r.Get(task.ID)
	snap.Status = StatusCompleted
	snap.Message = "mutated"

	got, _ := r.Get(task.ID)
	if got.Status != StatusPending || got.Message == "mutated" {
		t.Errorf("registry state changed through snapshot: %+v", got)
	}
}

func TestSweepStuckProcessingTask(t *testing.T) {
	r, clock := newTestRegistry(t)
	task := r.Create(KindIngestion)
	r.Update(task.ID, Processing("processing", 40, "rows"))

	retention := 5 * time.Minute
	stuck := 30 * time.Minute

	clock.Advance(29 * time.Minute)
	if s := r.Sweep(clock.Now(), retention, stuck); s.TimedOut != 0 {
		t.Fatalf("timed out too early: %+v", s)
	}

	clock.Advance(2 * time.Minute)
	s := r.Sweep(clock.Now(), retention, stuck)
	if s.TimedOut != 1 || s.Evicted != 0 {
		t.Fatalf("stats = %+v, want 1 timed out, 0 evicted", s)
	}
	got, err := r.Get(task.ID)
	if err != nil {
		t.Fatalf("task evicted in the same pass: %v", err)
	}
	if got.Status != StatusFailed || got.Message != TimeoutMessage {
		t.Errorf("task = %+v, want failed with timeout message", got)
	}

	clock.Advance(4 * time.Minute)
	if s := r.Sweep(clock.Now(), retention, stuck); s.Evicted != 0 {
		t.Fatalf("evicted before retention: %+v", s)
	}

	clock.Advance(2 * time.Minute)
	if s := r.Sweep(clock.Now(), retention, stuck); s.Evicted != 1 {
		t.Fatalf("stats = %+v, want 1 evicted", s)
	}
	if _, err := r.Get(task.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after eviction error = %v, want ErrNotFound", err)
	}
}

func TestSweepStalePendingTask(t *testing.T) {
	r, clock := newTestRegistry(t)
	task := r.Create(KindCrossSource)

	clock.Advance(31 * time.Minute)
	s := r.Sweep(clock.Now(), 5*time.Minute, 30*time.Minute)
	if s.TimedOut != 1 {
		t.Fatalf("stats = %+v, want pending task timed out", s)
	}
	got, _ := r.Get(task.ID)
	if got.Status != StatusFailed {
		t.Errorf("status = %s, want failed", got.Status)
	}
}

func TestWatchDeliversUpdatesAndCloses(t *testing.T) {
	r, _ := newTestRegistry(t)
	task := r.Create(KindIngestion)

	ch, cancel, err := r.Watch(task.ID)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	defer cancel()

	first := <-ch
	if first.Status != StatusPending {
		t.Errorf("first snapshot status = %s, want pending", first.Status)
	}

	r.Update(task.ID, Processing("processing", 10, "a"))
	r.Update(task.ID, Processing("processing", 20, "b"))
	latest := <-ch
	if latest.Progress != 20 {
		t.Errorf("progress = %d, want latest 20", latest.Progress)
	}

	r.Update(task.ID, Completed("ok", nil))
	final, ok := <-ch
	if !ok || final.Status != StatusCompleted {
		t.Fatalf("final = %+v ok=%v, want completed", final, ok)
	}
	if _, ok := <-ch; ok {
		t.Error("channel not closed after terminal update")
	}
}

func TestWatchTerminalAndUnknown(t *testing.T) {
	r, _ := newTestRegistry(t)
	task := r.Create(KindIngestion)
	r.Update(task.ID, Failed("bad"))

	ch, cancel, err := r.Watch(task.ID)
	if err != nil {
		t.Fatal(err)
	}
	defer cancel()
	if snap := <-ch; snap.Status != StatusFailed {
		t.Errorf("status = %s, want failed", snap.Status)
	}
	if _, ok := <-ch; ok {
		t.Error("channel for terminal task should be closed")
	}

	if _, _, err := r.Watch("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Watch(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestWatchCancel(t *testing.T) {
	r, _ := newTestRegistry(t)
	task := r.Create(KindIngestion)

	ch, cancel, err := r.Watch(task.ID)
	if err != nil {
		t.Fatal(err)
	}
	<-ch
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after cancel")
	}
	// updates after cancel must not panic on the closed channel
	r.Update(task.ID, Completed("ok", nil))
}

func TestConcurrentUpdates(t *testing.T) {
	r := NewRegistry()
	task := r.Create(KindIngestion)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for p := 0; p < 100; p++ {
				r.Update(task.ID, Processing("processing", p, "x"))
				_, _ = r.Get(task.ID)
			}
		}(i)
	}
	wg.Wait()

	got, _ := r.Get(task.ID)
	if got.Status != StatusProcessing {
		t.Errorf("status = %s, want processing", got.Status)
	}
}
