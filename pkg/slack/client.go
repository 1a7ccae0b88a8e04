// Package slack implements the page-fetch capability against the Slack Web API.
package slack

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/slack-exporter/pkg/pagination"
)

// Prometheus metrics for Slack API calls.
var (
	slackRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slack_requests_total",
		Help: "Total Slack API requests by method and status",
	}, []string{"method", "status"})

	slackRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "slack_request_duration_seconds",
		Help:    "Slack API request duration in seconds by method",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"method"})

	slackErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slack_errors_total",
		Help: "Total Slack API errors by class",
	}, []string{"class"})
)

// DefaultBaseURL is the Slack Web API root.
const DefaultBaseURL = "https://slack.com/api/"

// maxErrorBody bounds how much of a non-JSON error body is kept.
const maxErrorBody = 512

// Config holds the client configuration.
type Config struct {
	// Token is the bot or user token (xoxb-/xoxp-).
	Token string

	// BaseURL is the API root; method names are appended to it.
	BaseURL string

	// UserAgent header sent with every call.
	UserAgent string

	// Timeout per HTTP request.
	Timeout time.Duration
}

// DefaultConfig returns a configuration for the public Slack API.
func DefaultConfig(token string) Config {
	return Config{
		Token:     token,
		BaseURL:   DefaultBaseURL,
		UserAgent: "slack-exporter/1.0",
		Timeout:   30 * time.Second,
	}
}

// Client calls paged Slack Web API methods. It implements pagination.Capability.
type Client struct {
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger
}

// New creates a new Slack client.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, ErrMissingToken
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(cfg.BaseURL, "/") {
		cfg.BaseURL += "/"
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", cfg.BaseURL, err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		config:     cfg,
		logger:     log.With().Str("component", "slack-client").Logger(),
	}, nil
}

// FetchPage performs one Web API call and returns its top-level fields.
// Transport failures, non-2xx statuses and "ok": false bodies are returned
// as *APIError.
func (c *Client) FetchPage(ctx context.Context, req pagination.PageRequest) (pagination.RawPage, error) {
	start := time.Now()
	defer func() {
		slackRequestDuration.WithLabelValues(req.Method).Observe(time.Since(start).Seconds())
	}()

	form := url.Values{}
	for key, value := range req.Args {
		form.Set(key, value)
	}
	if req.Limit > 0 {
		form.Set("limit", strconv.Itoa(req.Limit))
	}
	if req.Cursor != "" {
		form.Set("cursor", req.Cursor)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+req.Method, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.config.Token)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")
	if c.config.UserAgent != "" {
		httpReq.Header.Set("User-Agent", c.config.UserAgent)
	}

	c.logger.Debug().
		Str("method", req.Method).
		Int("limit", req.Limit).
		Str("cursor", req.Cursor).
		Msg("Executing Slack request")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		slackRequestsTotal.WithLabelValues(req.Method, "network_error").Inc()
		return nil, c.fail(&APIError{Method: req.Method, Class: ErrorClassNetwork, Err: err})
	}
	defer resp.Body.Close()

	slackRequestsTotal.WithLabelValues(req.Method, strconv.Itoa(resp.StatusCode)).Inc()

	if class := classifyStatus(resp.StatusCode); class != "" {
		apiErr := &APIError{
			Method:     req.Method,
			StatusCode: resp.StatusCode,
			Class:      class,
			RetryAfter: retryAfter(resp.Header),
		}
		if body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody)); len(body) > 0 {
			apiErr.Code = errorCode(body)
		}
		return nil, c.fail(apiErr)
	}

	var raw pagination.RawPage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: decode %s response: %v", pagination.ErrMalformedPage, req.Method, err)
	}

	var ok bool
	if err := json.Unmarshal(raw["ok"], &ok); err != nil || !ok {
		var code string
		_ = json.Unmarshal(raw["error"], &code)
		return nil, c.fail(&APIError{
			Method:     req.Method,
			StatusCode: resp.StatusCode,
			Code:       code,
			Class:      classifyCode(code),
			RetryAfter: retryAfter(resp.Header),
		})
	}

	return raw, nil
}

// fail records and logs an API error.
func (c *Client) fail(err *APIError) *APIError {
	slackErrorsTotal.WithLabelValues(string(err.Class)).Inc()

	event := c.logger.Warn()
	if err.Fatal() {
		event = c.logger.Error()
	}
	event.
		Err(err).
		Str("method", err.Method).
		Int("status", err.StatusCode).
		Str("error_class", string(err.Class)).
		Dur("retry_after", err.RetryAfter).
		Msg("Slack request error")
	return err
}

// retryAfter parses the Retry-After header in seconds.
func retryAfter(h http.Header) time.Duration {
	seconds, err := strconv.Atoi(h.Get("Retry-After"))
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

// errorCode extracts the "error" field of a JSON error body.
func errorCode(body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return payload.Error
}

// SetLogger replaces the client's logger.
func (c *Client) SetLogger(logger zerolog.Logger) {
	c.logger = logger
}
