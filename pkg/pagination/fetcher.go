package pagination

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"maps"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/slack-exporter/pkg/ratelimit"
	"github.com/Sternrassler/slack-exporter/pkg/retry"
)

// Prometheus metrics for pagination.
var (
	slackPagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slack_pages_fetched_total",
		Help: "Total pages fetched by method",
	}, []string{"method"})

	slackItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slack_items_fetched_total",
		Help: "Total records fetched by method",
	}, []string{"method"})

	slackFetchFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slack_fetch_failures_total",
		Help: "Total cursor chains aborted by a terminal error, by method",
	}, []string{"method"})
)

// DefaultPageSize is the page size used when neither the request nor the config sets one.
const DefaultPageSize = 200

// Capability fetches one page. Implementations must not modify req.Args.
type Capability interface {
	FetchPage(ctx context.Context, req PageRequest) (RawPage, error)
}

// Config holds fetcher configuration.
type Config struct {
	// PageSize is the default page size.
	PageSize int

	// Retry is applied to every page request.
	Retry retry.Policy
}

// DefaultConfig returns 200-item pages and unbounded retries every 5 seconds.
func DefaultConfig() Config {
	return Config{
		PageSize: DefaultPageSize,
		Retry:    retry.DefaultPolicy(),
	}
}

// Request describes one cursor chain.
type Request struct {
	// Method is the remote method identity.
	Method string

	// Args are the fixed arguments sent with every page.
	Args map[string]string

	// ItemsKey names the collection in each response.
	ItemsKey string

	// PageSize overrides the fetcher's page size when > 0.
	PageSize int

	// Label identifies the resource in progress output, e.g. "3/12 #general".
	Label string
}

// Stats summarizes a fetch.
type Stats struct {
	Pages    int
	Items    int
	Calls    int
	Retries  int
	Duration time.Duration
}

// Fetcher drives cursor pagination for any paged method. A Fetcher may be used
// by several goroutines at once; each fetch is an independent cursor chain
// sharing the governor's budget.
type Fetcher struct {
	capability Capability
	governor   *ratelimit.Governor
	config     Config
	logger     zerolog.Logger
}

// NewFetcher creates a fetcher. A nil governor gets a private default one.
func NewFetcher(capability Capability, governor *ratelimit.Governor, config Config) *Fetcher {
	if config.PageSize <= 0 {
		config.PageSize = DefaultPageSize
	}
	if governor == nil {
		governor = ratelimit.NewGovernor(ratelimit.DefaultConfig())
	}

	return &Fetcher{
		capability: capability,
		governor:   governor,
		config:     config,
		logger:     log.With().Str("component", "fetcher").Logger(),
	}
}

// SetLogger replaces the fetcher's logger.
func (f *Fetcher) SetLogger(logger zerolog.Logger) {
	f.logger = logger
}

// Governor returns the shared rate governor.
func (f *Fetcher) Governor() *ratelimit.Governor {
	return f.governor
}

// errStopped ends a walk when an iterator consumer stops early.
var errStopped = errors.New("iteration stopped")

// Pages iterates over the pages of req. On a terminal error the iterator
// yields it once with a zero Page and stops.
func (f *Fetcher) Pages(ctx context.Context, req Request) iter.Seq2[Page, error] {
	return func(yield func(Page, error) bool) {
		var stats Stats
		err := f.walk(ctx, req, &stats, func(_ context.Context, page Page) error {
			if !yield(page, nil) {
				return errStopped
			}
			return nil
		})
		if err != nil && !errors.Is(err, errStopped) {
			yield(Page{}, err)
		}
	}
}

// Fetch drives req to completion, handing each page to sink. Pages delivered
// before a terminal error stay delivered.
func (f *Fetcher) Fetch(ctx context.Context, req Request, sink Sink) (Stats, error) {
	var stats Stats
	err := f.walk(ctx, req, &stats, sink.Consume)
	return stats, err
}

// FetchAll accumulates every record of req.
func (f *Fetcher) FetchAll(ctx context.Context, req Request, opts ...SinkOption) ([]Record, Stats, error) {
	acc := NewAccumulator(opts...)
	stats, err := f.Fetch(ctx, req, acc)
	return acc.Records(), stats, err
}

// Stream calls handler for each page of req as it arrives.
func (f *Fetcher) Stream(ctx context.Context, req Request, handler PageHandler, opts ...SinkOption) (Stats, error) {
	return f.Fetch(ctx, req, NewStreamSink(handler, opts...))
}

// walk is the cursor loop. The cursor only advances after a page was fetched,
// decoded and emitted; failed attempts repeat the same request.
func (f *Fetcher) walk(ctx context.Context, req Request, stats *Stats, emit PageHandler) error {
	start := time.Now()
	defer func() { stats.Duration = time.Since(start) }()

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = f.config.PageSize
	}
	label := req.Label
	if label == "" {
		label = req.Method
	}

	pageReq := PageRequest{
		Method: req.Method,
		Args:   maps.Clone(req.Args),
		Limit:  pageSize,
	}

	for number := 1; ; number++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		state, err := f.governor.Throttle(ctx)
		if err != nil {
			return err
		}

		var page Page
		attempts := 0
		err = f.config.Retry.Do(ctx, req.Method, func(ctx context.Context) error {
			attempts++
			raw, err := f.capability.FetchPage(ctx, pageReq)
			if err != nil {
				return err
			}
			f.governor.Observe(ctx)
			stats.Calls++

			page, err = Extract(raw, req.ItemsKey)
			return err
		})
		stats.Retries += attempts - 1
		if err != nil {
			slackFetchFailuresTotal.WithLabelValues(req.Method).Inc()
			f.logger.Error().
				Err(err).
				Str("method", req.Method).
				Str("label", label).
				Int("page", number).
				Int("items", stats.Items).
				Msg("Fetch aborted")
			return fmt.Errorf("fetch %s page %d: %w", label, number, err)
		}

		page.Number = number
		if err := emit(ctx, page); err != nil {
			return err
		}
		stats.Pages++
		stats.Items += len(page.Items)
		slackPagesTotal.WithLabelValues(req.Method).Inc()
		slackItemsTotal.WithLabelValues(req.Method).Add(float64(len(page.Items)))

		f.logger.Info().
			Str("method", req.Method).
			Str("label", label).
			Int("page", number).
			Int("page_items", len(page.Items)).
			Int("total_items", stats.Items).
			Str("cursor", page.Next.String()).
			Float64("rate", state.Rate).
			Int("rate_limit", state.Limit).
			Dur("elapsed", state.Elapsed).
			Msg("Page fetched")

		if page.Next.Done() {
			return nil
		}
		pageReq.Cursor = page.Next.Value
	}
}
