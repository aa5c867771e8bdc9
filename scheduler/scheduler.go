package scheduler

import (
	"context"
	"time"
)

const (
	// PerRecordDelay is the crawler's expected processing time per identifier.
	PerRecordDelay = 30 * time.Second
	// BaseDelay covers queue pickup before the first identifier is crawled.
	BaseDelay = 20 * time.Second
)

// InitialDelay returns how long to wait after pushing n identifiers before the
// first verification tick. Negative n is treated as zero.
func InitialDelay(n int) time.Duration {
	if n < 0 {
		n = 0
	}
	return PerRecordDelay*time.Duration(n) + BaseDelay
}

// Clock is the time source of the poll loop.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done, returning ctx.Err() in the latter case.
	Sleep(ctx context.Context, d time.Duration) error
}

// RealClock is backed by the time package.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Plan describes the poll loop that follows the initial wait.
type Plan struct {
	Interval time.Duration
	// Timeouts maps backend name to the time after the first tick during which it is probed.
	Timeouts map[string]time.Duration
}

// Active reports whether backend is still probed at elapsed time since the first tick.
func (p Plan) Active(backend string, elapsed time.Duration) bool {
	return elapsed < p.Timeouts[backend]
}

// Horizon returns the largest backend timeout.
func (p Plan) Horizon() time.Duration {
	var longest time.Duration
	for _, d := range p.Timeouts {
		if d > longest {
			longest = d
		}
	}
	return longest
}
