// Package metrics exposes the exporter's Prometheus metrics over HTTP.
// All metrics are defined in their respective packages (slack, cache, ratelimit,
// retry, pagination, export) and registered via promauto.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Registry is the default Prometheus registry used by the exporter.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the registry served on /metrics.
var Gatherer = prometheus.DefaultGatherer

const shutdownTimeout = 5 * time.Second

// NewRouter returns a router serving /metrics and /health.
func NewRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{}))

	return r
}

// Serve runs the metrics server on addr until ctx is done.
func Serve(ctx context.Context, addr string) error {
	logger := log.With().Str("component", "metrics").Logger()

	srv := &http.Server{
		Addr:              addr,
		Handler:           NewRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("Metrics server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

// Metrics Documentation
//
// Rate Metrics (pkg/ratelimit):
//   - slack_rate_calls_total (Counter): Calls recorded by the governor
//   - slack_rate_current_per_minute (Gauge): Cumulative average calls per minute
//   - slack_rate_throttle_waits_total (Counter): Throttle waits entered
//   - slack_rate_throttle_seconds_total (Counter): Seconds spent throttled
//
// Request Metrics (pkg/slack):
//   - slack_requests_total{method, status} (Counter): Requests by method and HTTP status
//   - slack_request_duration_seconds{method} (Histogram): Request duration by method
//   - slack_errors_total{class} (Counter): Errors by class (network, server, rate_limit, client, auth, api)
//
// Retry Metrics (pkg/retry):
//   - slack_retries_total{operation} (Counter): Retry attempts
//   - slack_retry_exhausted_total{operation} (Counter): Operations that exhausted max attempts
//   - slack_retry_fatal_total{operation} (Counter): Operations aborted by a fatal error
//
// Pagination Metrics (pkg/pagination):
//   - slack_pages_fetched_total{method} (Counter): Pages fetched
//   - slack_items_fetched_total{method} (Counter): Items delivered to sinks
//   - slack_fetch_failures_total{method} (Counter): Fetches that ended in error
//
// Cache Metrics (pkg/cache):
//   - slack_cache_hits_total{method} (Counter): Cache hits
//   - slack_cache_misses_total{method} (Counter): Cache misses
//   - slack_cache_written_bytes_total (Counter): Bytes written to the cache
//   - slack_cache_errors_total{operation} (Counter): Cache operation errors
//
// Export Metrics (pkg/export):
//   - slack_export_rows_total{kind} (Counter): CSV rows written by kind
//
// Example Prometheus Queries:
//
//   # Effective request rate
//   slack_rate_current_per_minute
//
//   # Share of time spent throttled
//   rate(slack_rate_throttle_seconds_total[5m])
//
//   # Request Error Rate
//   rate(slack_errors_total[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(slack_request_duration_seconds_bucket[5m]))
