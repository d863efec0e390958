package planner

import (
	"context"
	"testing"
	"time"
)

func TestTrackerEmptyQueue(t *testing.T) {
	tr := NewTracker()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := tr.WaitComplete(ctx); err != nil {
		t.Fatalf("WaitComplete on an empty queue must not block, got %v", err)
	}
}

func TestTrackerBlocksUntilDrained(t *testing.T) {
	tr := NewTracker()
	tr.MoveQueued()
	tr.MoveQueued()
	if got := tr.Pending(); got != 2 {
		t.Fatalf("expected 2 pending, got %d", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := tr.WaitComplete(ctx); err != context.DeadlineExceeded {
		t.Fatalf("expected deadline exceeded while motion is pending, got %v", err)
	}

	tr.MoveCompleted()
	tr.MoveCompleted()
	if err := tr.WaitComplete(context.Background()); err != nil {
		t.Fatalf("WaitComplete after drain failed: %v", err)
	}
}

func TestTrackerConcurrentDrain(t *testing.T) {
	tr := NewTracker()
	tr.MoveQueued()
	go func() {
		time.Sleep(20 * time.Millisecond)
		tr.MoveCompleted()
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := tr.WaitComplete(ctx); err != nil {
		t.Fatalf("WaitComplete failed: %v", err)
	}
}

func TestTrackerIgnoresUnmatchedComplete(t *testing.T) {
	tr := NewTracker()
	tr.MoveCompleted()
	if got := tr.Pending(); got != 0 {
		t.Errorf("expected 0 pending, got %d", got)
	}
	tr.MoveQueued()
	tr.MoveCompleted()
	if err := tr.WaitComplete(context.Background()); err != nil {
		t.Fatalf("WaitComplete failed: %v", err)
	}
}

func TestNoopNeverBlocks(t *testing.T) {
	m := Noop()
	if err := m.WaitComplete(context.Background()); err != nil {
		t.Fatalf("WaitComplete failed: %v", err)
	}
}
