package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/slack-exporter/pkg/clock"
)

// Prometheus metrics for call-rate governance.
var (
	slackRateCallsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slack_rate_calls_total",
		Help: "Total number of successful API calls observed by the rate governor",
	})

	slackRateCurrent = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "slack_rate_current_per_minute",
		Help: "Cumulative average call rate of the session in calls per minute",
	})

	slackRateThrottleWaitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slack_rate_throttle_waits_total",
		Help: "Total number of throttle episodes entered because the call rate exceeded the budget",
	})

	slackRateThrottleSecondsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slack_rate_throttle_seconds_total",
		Help: "Total time spent waiting for the call rate to fall back under the budget",
	})
)

// Config holds the governor configuration.
type Config struct {
	// Limit is the budget in calls per minute.
	Limit int

	// Wait is the sleep between rate checks once the budget is exceeded.
	Wait time.Duration
}

// DefaultConfig returns the default budget of 80 calls per minute.
func DefaultConfig() Config {
	return Config{
		Limit: DefaultLimit,
		Wait:  DefaultWait,
	}
}

// ProgressFunc receives the state and remaining wait once per second while throttled.
type ProgressFunc func(state State, remaining time.Duration)

// Option customizes a Governor.
type Option func(*Governor)

// WithClock replaces the wall clock.
func WithClock(c clock.Clock) Option {
	return func(g *Governor) { g.clock = c }
}

// WithStore shares the counter through store.
func WithStore(store CounterStore) Option {
	return func(g *Governor) { g.store = store }
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(g *Governor) { g.logger = logger }
}

// WithProgress sets a callback for throttle countdowns.
func WithProgress(fn ProgressFunc) Option {
	return func(g *Governor) { g.progress = fn }
}

// Governor enforces a calls-per-minute budget for a whole session.
// It is safe for concurrent use; share one instance between all fetchers.
type Governor struct {
	config   Config
	clock    clock.Clock
	store    CounterStore
	logger   zerolog.Logger
	progress ProgressFunc

	calls     atomic.Int64
	startedAt time.Time
	startOnce sync.Once
}

// NewGovernor creates a governor. The session starts now.
func NewGovernor(cfg Config, opts ...Option) *Governor {
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	if cfg.Wait <= 0 {
		cfg.Wait = DefaultWait
	}

	g := &Governor{
		config: cfg,
		clock:  clock.Real{},
		logger: log.With().Str("component", "rate-governor").Logger(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.startedAt = g.clock.Now()
	return g
}

// Config returns the effective configuration.
func (g *Governor) Config() Config {
	return g.config
}

// start adopts the shared session start on first use.
func (g *Governor) start(ctx context.Context) {
	g.startOnce.Do(func() {
		if g.store == nil {
			return
		}
		startedAt, err := g.store.Start(ctx, g.startedAt)
		if err != nil {
			g.logger.Warn().Err(err).Msg("Failed to share session start - using local start time")
			return
		}
		g.startedAt = startedAt
	})
}

// Observe records one successful call.
func (g *Governor) Observe(ctx context.Context) {
	g.start(ctx)
	g.calls.Add(1)
	slackRateCallsTotal.Inc()

	if g.store != nil {
		if _, err := g.store.Incr(ctx); err != nil {
			g.logger.Warn().Err(err).Msg("Failed to increment shared call counter")
		}
	}
}

// Calls returns the local call count.
func (g *Governor) Calls() int64 {
	return g.calls.Load()
}

// State returns the current counters and rate. When a shared store is
// configured its count is used unless it is unreachable.
func (g *Governor) State(ctx context.Context) State {
	g.start(ctx)
	calls := g.calls.Load()
	if g.store != nil {
		shared, err := g.store.Count(ctx)
		if err != nil {
			g.logger.Warn().Err(err).Msg("Failed to read shared call counter - using local count")
		} else if shared > calls {
			calls = shared
		}
	}

	state := newState(calls, g.startedAt, g.clock.Now(), g.config.Limit)
	slackRateCurrent.Set(state.Rate)
	return state
}

// Throttle blocks while the session is over budget, re-checking every Wait
// interval. It returns the state that allowed the caller to proceed. The only
// error is ctx's.
func (g *Governor) Throttle(ctx context.Context) (State, error) {
	state := g.State(ctx)
	if !state.OverBudget() {
		return state, nil
	}

	slackRateThrottleWaitsTotal.Inc()
	g.logger.Warn().
		Int64("calls", state.Calls).
		Float64("rate", state.Rate).
		Int("limit", state.Limit).
		Dur("elapsed", state.Elapsed).
		Dur("resume_after", state.MinElapsed()).
		Msg("Call rate over budget - throttling")

	began := g.clock.Now()
	for state.OverBudget() {
		current := state
		err := clock.Countdown(ctx, g.clock, g.config.Wait, func(remaining time.Duration) {
			g.logger.Debug().
				Float64("rate", current.Rate).
				Dur("remaining", remaining).
				Msg("Throttle waiting")
			if g.progress != nil {
				g.progress(current, remaining)
			}
		})
		if err != nil {
			slackRateThrottleSecondsTotal.Add(g.clock.Now().Sub(began).Seconds())
			return state, err
		}
		state = g.State(ctx)
	}

	waited := g.clock.Now().Sub(began)
	slackRateThrottleSecondsTotal.Add(waited.Seconds())
	g.logger.Info().
		Float64("rate", state.Rate).
		Dur("waited", waited).
		Msg("Call rate back under budget")

	return state, nil
}
