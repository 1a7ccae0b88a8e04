package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/slack-exporter/pkg/clock"
)

// Prometheus metrics for retry operations.
var (
	slackRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slack_retries_total",
		Help: "Total number of retry attempts by operation",
	}, []string{"operation"})

	slackRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slack_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by operation",
	}, []string{"operation"})

	slackRetryFatalTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slack_retry_fatal_total",
		Help: "Total number of fatal errors that aborted a retry loop by operation",
	}, []string{"operation"})
)

// DefaultDelay is the pause between attempts.
const DefaultDelay = 5 * time.Second

// Wait describes a pending retry, reported once per second.
type Wait struct {
	Operation string
	Attempt   int
	Err       error
	Remaining time.Duration
}

// Policy holds the configuration for retry logic.
type Policy struct {
	// MaxAttempts is the maximum number of attempts including the first one.
	// 0 means retry forever.
	MaxAttempts int

	// Delay is the fixed wait between attempts. Errors that ask for a longer
	// wait through RetryDelay() get that instead.
	Delay time.Duration

	// Classify decides whether an error is worth retrying. Nil means DefaultClassifier.
	Classify Classifier

	// Clock drives the waits. Nil means the wall clock.
	Clock clock.Clock

	// OnWait is called every second while waiting for the next attempt.
	OnWait func(Wait)

	// Logger for retry attempts. Nil means the global logger.
	Logger *zerolog.Logger
}

// DefaultPolicy retries forever every 5 seconds.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 0,
		Delay:       DefaultDelay,
		Classify:    DefaultClassifier,
	}
}

func (p Policy) classify(err error) Class {
	if p.Classify == nil {
		return DefaultClassifier(err)
	}
	return p.Classify(err)
}

// delayHinter is implemented by errors that carry a server-requested wait,
// such as a Retry-After header.
type delayHinter interface {
	RetryDelay() time.Duration
}

// delayFor returns Delay, raised to the wait err asks for when that is longer.
func (p Policy) delayFor(err error) time.Duration {
	delay := p.Delay
	var h delayHinter
	if errors.As(err, &h) && h.RetryDelay() > delay {
		delay = h.RetryDelay()
	}
	return delay
}

func (p Policy) clock() clock.Clock {
	if p.Clock == nil {
		return clock.Real{}
	}
	return p.Clock
}

func (p Policy) logger() *zerolog.Logger {
	if p.Logger == nil {
		return &log.Logger
	}
	return p.Logger
}

// Do runs op until it succeeds, fails fatally, or MaxAttempts consecutive
// attempts have failed. op is re-run unchanged, so it must be safe to repeat.
// The wait between attempts is cancelled by ctx.
func (p Policy) Do(ctx context.Context, operation string, op func(ctx context.Context) error) error {
	logger := p.logger()
	c := p.clock()

	var lastErr error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return fmt.Errorf("%w (last error: %v)", err, lastErr)
			}
			return err
		}

		err := op(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Info().
					Str("operation", operation).
					Int("attempt", attempt).
					Msg("Request succeeded after retry")
			}
			return nil
		}
		lastErr = err

		if p.classify(err) == Fatal {
			slackRetryFatalTotal.WithLabelValues(operation).Inc()
			return err
		}

		if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
			slackRetryExhaustedTotal.WithLabelValues(operation).Inc()
			logger.Warn().
				Err(err).
				Str("operation", operation).
				Int("max_attempts", p.MaxAttempts).
				Msg("Retry attempts exhausted")
			return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, attempt, err)
		}

		delay := p.delayFor(err)
		slackRetriesTotal.WithLabelValues(operation).Inc()
		logger.Warn().
			Err(err).
			Str("operation", operation).
			Int("attempt", attempt).
			Dur("delay", delay).
			Msg("Request failed - retrying")

		waitErr := clock.Countdown(ctx, c, delay, func(remaining time.Duration) {
			logger.Debug().
				Str("operation", operation).
				Int("attempt", attempt).
				Dur("remaining", remaining).
				Msg("Trying again")
			if p.OnWait != nil {
				p.OnWait(Wait{Operation: operation, Attempt: attempt, Err: err, Remaining: remaining})
			}
		})
		if waitErr != nil {
			logger.Warn().
				Str("operation", operation).
				Int("attempt", attempt).
				Msg("Context cancelled during retry wait")
			return fmt.Errorf("%w (last error: %v)", waitErr, lastErr)
		}
	}
}
