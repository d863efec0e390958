package planner

import (
	"context"
	"sync"
)

// Tracker is a Motion barrier fed by the motion execution path.
// The planner calls MoveQueued when it accepts a motion segment and
// MoveCompleted when the segment has been executed; WaitComplete blocks
// callers until the queue has drained.
type Tracker struct {
	mutex   sync.Mutex
	pending int
	drained chan struct{}
}

// NewTracker creates a Tracker with an empty queue.
func NewTracker() *Tracker {
	drained := make(chan struct{})
	close(drained)
	return &Tracker{drained: drained}
}

// MoveQueued records that a motion segment has been queued.
func (t *Tracker) MoveQueued() {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if t.pending == 0 {
		t.drained = make(chan struct{})
	}
	t.pending++
}

// MoveCompleted records that a queued motion segment has finished
// executing. Calls without a matching MoveQueued are ignored.
func (t *Tracker) MoveCompleted() {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if t.pending == 0 {
		return
	}
	t.pending--
	if t.pending == 0 {
		close(t.drained)
	}
}

// Pending returns the number of queued, not yet executed segments.
func (t *Tracker) Pending() int {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.pending
}

// WaitComplete blocks until all previously queued motion has been
// executed, or the given context is canceled.
func (t *Tracker) WaitComplete(ctx context.Context) error {
	t.mutex.Lock()
	drained := t.drained
	t.mutex.Unlock()
	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
