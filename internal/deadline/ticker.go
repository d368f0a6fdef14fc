package deadline

import (
	"context"
	"log/slog"
	"time"
)

// DefaultTickInterval is the countdown resolution.
const DefaultTickInterval = time.Second

// Clock reads wall-clock time.
type Clock interface {
	Now() time.Time
}

// SystemClock is the real wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time {
	return time.Now()
}

// RunTicker calls emit with the clock's current time every interval until ctx
// is cancelled or emit reports false. It never touches quest state; emit is
// expected to hand the time to the engine's queue.
func RunTicker(ctx context.Context, interval time.Duration, clock Clock, emit func(time.Time) bool) {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Debug("deadline ticker started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			slog.Debug("deadline ticker stopped", "reason", ctx.Err())
			return
		case <-ticker.C:
			if !emit(clock.Now()) {
				slog.Debug("deadline ticker stopped", "reason", "receiver closed")
				return
			}
		}
	}
}
