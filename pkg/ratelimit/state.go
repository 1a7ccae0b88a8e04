// Package ratelimit implements the session-wide call-rate governor.
//
// The governor is a cumulative-average limiter: the rate is the total number of
// calls made in the session divided by the minutes elapsed since the session
// started. It reacts only once the budget has already been exceeded, and it never
// forgets earlier calls, so bursts early in a session are under-throttled and
// long sessions are over-throttled. Callers needing windowed precision should
// layer their own limiter on top.
package ratelimit

import (
	"fmt"
	"time"
)

// Defaults for Config.
const (
	// DefaultLimit is the call budget in calls per minute.
	DefaultLimit = 80

	// DefaultWait is how long Throttle sleeps between rate checks once over budget.
	DefaultWait = 10 * time.Second
)

// Redis key suffixes for shared counter state.
const (
	RedisKeyCalls     = "rate_limit:calls"
	RedisKeyStartedAt = "rate_limit:started_at"
)

// State is a snapshot of the governor's counters.
type State struct {
	// Calls is the cumulative number of successful calls in the session.
	Calls int64 `json:"calls"`

	// StartedAt is when the session started.
	StartedAt time.Time `json:"started_at"`

	// Elapsed is the session age at the time of the snapshot.
	Elapsed time.Duration `json:"elapsed"`

	// Rate is the cumulative average in calls per minute.
	Rate float64 `json:"rate"`

	// Limit is the configured budget in calls per minute.
	Limit int `json:"limit"`
}

// newState computes the rate for calls made between startedAt and now.
// A non-positive elapsed time yields a rate of 0.
func newState(calls int64, startedAt, now time.Time, limit int) State {
	elapsed := now.Sub(startedAt)
	var rate float64
	if minutes := elapsed.Minutes(); minutes > 0 {
		rate = float64(calls) / minutes
	}
	return State{
		Calls:     calls,
		StartedAt: startedAt,
		Elapsed:   elapsed,
		Rate:      rate,
		Limit:     limit,
	}
}

// OverBudget reports whether both the call count and the current rate exceed the limit.
// Until more than Limit calls have been made the session can't be over budget.
func (s State) OverBudget() bool {
	return s.Calls > int64(s.Limit) && s.Rate > float64(s.Limit)
}

// MinElapsed returns the session age at which the current call count falls back to the limit.
func (s State) MinElapsed() time.Duration {
	if s.Limit <= 0 {
		return 0
	}
	return time.Duration(float64(s.Calls) / float64(s.Limit) * float64(time.Minute))
}

// String formats the state for progress output.
func (s State) String() string {
	return fmt.Sprintf("calls=%d rate=%.2f/%d elapsed=%s", s.Calls, s.Rate, s.Limit, s.Elapsed.Truncate(time.Second))
}
