package flows

import (
	"context"
	"time"
)

// waitFor polls cond every interval until it reports true, the timeout elapses
// (false, nil) or ctx is cancelled (false, ctx.Err()). cond is checked once immediately.
func waitFor(ctx context.Context, timeout, interval time.Duration, cond func(context.Context) (bool, error)) (bool, error) {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		ok, err := cond(ctx)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-deadline.C:
			return false, nil
		case <-ticker.C:
		}
	}
}
