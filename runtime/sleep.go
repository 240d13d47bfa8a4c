package runtime

import (
	"context"
	"time"
)

// Sleep is a cancellable suspension point (spec §5): used for inter-item
// and inter-project pacing. Returns ctx.Err() if cancelled before d
// elapses.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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
