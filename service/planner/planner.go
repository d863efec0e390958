// Package planner provides the synchronization barrier between
// auxiliary I/O commands and the motion planner. An I/O change must not
// execute until all motion queued before it has finished, so that
// outputs switch in program order relative to motion.
package planner

import (
	"context"
)

// Motion is the barrier offered by the motion planner.
type Motion interface {
	// WaitComplete blocks until all previously queued motion has been
	// executed, or the given context is canceled.
	WaitComplete(ctx context.Context) error
}

// Noop returns a barrier that never blocks.
// Used when the worker runs without a motion planner attached.
func Noop() Motion {
	return noopMotion{}
}

type noopMotion struct{}

func (noopMotion) WaitComplete(ctx context.Context) error {
	return ctx.Err()
}
