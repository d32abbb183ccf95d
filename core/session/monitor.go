package session

import (
	"context"
	"time"
)

// Monitor recomputes session statuses on a fixed interval.
type Monitor struct {
	interval time.Duration
	now      func() time.Time
}

func NewMonitor() *Monitor {
	return &Monitor{interval: RefreshInterval, now: func() time.Time { return nowFunc() }}
}

// Watch emits the status of the session starting at start right away and then on every tick.
// The channel is closed once ctx is done.
func (m *Monitor) Watch(ctx context.Context, start time.Time) <-chan Result {
	out := make(chan Result, 1)

	go func() {
		defer close(out)

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case out <- Classify(m.now(), start):
			case <-ctx.Done():
				return
			}

			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}
