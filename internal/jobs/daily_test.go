package jobs

import (
	"context"
	"testing"
	"time"
)

func TestDailyJobStartStop(t *testing.T) {
	store := &fakeStore{hasSnapshot: true}
	job := NewDailyJob(DailyJobConfig{Interval: time.Hour}, testRunner(store, 1), store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := job.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !job.IsRunning() {
		t.Error("IsRunning() = false after Start()")
	}

	// Starting twice is a no-op.
	if err := job.Start(ctx); err != nil {
		t.Errorf("second Start() error = %v", err)
	}

	job.Stop()
	if job.IsRunning() {
		t.Error("IsRunning() = true after Stop()")
	}

	// Stopping twice is a no-op.
	job.Stop()
}

func TestDailyJobSkipsWhenSnapshotExists(t *testing.T) {
	store := &fakeStore{hasSnapshot: true}
	job := NewDailyJob(DailyJobConfig{Interval: time.Hour}, testRunner(store, 1), store)

	job.runOnceIfDue(context.Background())

	if got := len(store.writtenBatches()); got != 0 {
		t.Errorf("store received %d batches, want 0 when today's snapshot exists", got)
	}
}

func TestDailyJobRunsWhenSnapshotMissing(t *testing.T) {
	store := &fakeStore{hasSnapshot: false}
	job := NewDailyJob(DailyJobConfig{Interval: time.Hour}, testRunner(store, 1), store)

	job.runOnceIfDue(context.Background())

	if got := len(store.writtenBatches()); got == 0 {
		t.Error("store received no batches, want a full run when today's snapshot is missing")
	}
}

func TestDailyJobDefaults(t *testing.T) {
	job := NewDailyJob(DailyJobConfig{}, nil, nil)

	if job.config.Interval != DefaultCheckInterval {
		t.Errorf("Interval = %v, want %v", job.config.Interval, DefaultCheckInterval)
	}
	if job.config.Timeout != DefaultRunTimeout {
		t.Errorf("Timeout = %v, want %v", job.config.Timeout, DefaultRunTimeout)
	}
	if job.config.Logger == nil {
		t.Error("Logger was not defaulted")
	}
}
