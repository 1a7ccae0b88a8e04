package clock

import (
	"context"
	"time"
)

// Tick is the countdown reporting granularity.
const Tick = time.Second

// Countdown sleeps for d in one-second steps, calling report with the time
// remaining before each step. It returns early with ctx.Err() on cancellation.
// A nil report is allowed.
func Countdown(ctx context.Context, c Clock, d time.Duration, report func(remaining time.Duration)) error {
	remaining := d
	for remaining > 0 {
		if report != nil {
			report(remaining)
		}
		step := Tick
		if remaining < step {
			step = remaining
		}
		if err := c.Sleep(ctx, step); err != nil {
			return err
		}
		remaining -= step
	}
	return ctx.Err()
}
