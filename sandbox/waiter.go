package sandbox

import (
	"context"
	"time"
)

const defaultTickInterval = 100 * time.Millisecond

// Waiter owns the kill decision for a running process: it polls CPU usage
// each tick and arms a wall clock timer, returning true once either limit is
// measurably exceeded. Cooperative termination is never relied upon.
type Waiter struct {
	TickInterval time.Duration
	TimeLimit    time.Duration // CPU
	WallLimit    time.Duration // clock
}

// Wait blocks until the process exits (false) or a limit triggers (true).
// A process that finishes naturally at the exact boundary reports normal
// exit: usage must strictly exceed the limit before the kill fires.
func (w *Waiter) Wait(ctx context.Context, p Process) bool {
	wallLimit := w.WallLimit
	if wallLimit == 0 {
		wallLimit = 2 * w.TimeLimit
	}
	tick := w.TickInterval
	if tick <= 0 {
		tick = defaultTickInterval
	}

	timer := time.NewTimer(wallLimit)
	defer timer.Stop()
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-p.Done():
			return false
		case <-timer.C:
			return true
		case <-ticker.C:
			if u := p.Usage(); u.Time > w.TimeLimit {
				return true
			}
		}
	}
}
