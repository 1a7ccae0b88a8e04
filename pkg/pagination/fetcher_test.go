package pagination

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/slack-exporter/pkg/clock"
	"github.com/Sternrassler/slack-exporter/pkg/ratelimit"
	"github.com/Sternrassler/slack-exporter/pkg/retry"
)

// scripted replays canned responses and records every request it receives.
type scripted struct {
	mu        sync.Mutex
	responses []func(req PageRequest) (RawPage, error)
	requests  []PageRequest
}

func (s *scripted) FetchPage(_ context.Context, req PageRequest) (RawPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if len(s.responses) == 0 {
		return nil, errors.New("no more scripted responses")
	}
	next := s.responses[0]
	s.responses = s.responses[1:]
	return next(req)
}

func (s *scripted) cursors() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.requests))
	for i, r := range s.requests {
		out[i] = r.Cursor
	}
	return out
}

func page(t *testing.T, key string, items any, cursor *string) func(PageRequest) (RawPage, error) {
	t.Helper()
	body := map[string]any{"ok": true, key: items}
	if cursor != nil {
		body[MetadataKey] = map[string]any{NextCursorKey: *cursor}
	}
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal page: %v", err)
	}
	var raw RawPage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal page: %v", err)
	}
	return func(PageRequest) (RawPage, error) { return raw, nil }
}

func failure(err error) func(PageRequest) (RawPage, error) {
	return func(PageRequest) (RawPage, error) { return nil, err }
}

func ptr(s string) *string { return &s }

func newTestFetcher(capability Capability, maxAttempts int) (*Fetcher, *ratelimit.Governor) {
	fake := clock.NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	logger := zerolog.New(io.Discard)
	governor := ratelimit.NewGovernor(ratelimit.DefaultConfig(), ratelimit.WithClock(fake), ratelimit.WithLogger(logger))
	fetcher := NewFetcher(capability, governor, Config{
		PageSize: 200,
		Retry: retry.Policy{
			MaxAttempts: maxAttempts,
			Delay:       5 * time.Second,
			Clock:       fake,
			Logger:      &logger,
		},
	})
	fetcher.SetLogger(logger)
	return fetcher, governor
}

func TestFetcher_EndToEnd(t *testing.T) {
	capability := &scripted{responses: []func(PageRequest) (RawPage, error){
		page(t, "items", []map[string]any{{"id": 1}, {"id": 2}}, ptr("abc")),
		page(t, "items", []map[string]any{{"id": 3}}, nil),
	}}
	fetcher, governor := newTestFetcher(capability, 0)

	records, stats, err := fetcher.FetchAll(context.Background(), Request{Method: "test.list", ItemsKey: "items"})
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}

	got, err := json.Marshal(records)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	if want := `[{"id":1},{"id":2},{"id":3}]`; string(got) != want {
		t.Errorf("records = %s, want %s", got, want)
	}
	if stats.Calls != 2 || stats.Pages != 2 || stats.Items != 3 {
		t.Errorf("stats = %+v, want 2 calls, 2 pages, 3 items", stats)
	}
	if governor.Calls() != 2 {
		t.Errorf("governor Calls() = %d, want 2", governor.Calls())
	}
	if got, want := capability.cursors(), []string{"", "abc"}; !reflect.DeepEqual(got, want) {
		t.Errorf("cursors = %q, want %q", got, want)
	}
}

func TestFetcher_ChainOfN(t *testing.T) {
	for _, n := range []int{1, 2, 5, 20} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			capability := &scripted{}
			for i := 1; i <= n; i++ {
				var cursor *string
				if i < n {
					cursor = ptr(fmt.Sprintf("c%d", i))
				}
				capability.responses = append(capability.responses,
					page(t, "items", []map[string]any{{"page": i}}, cursor))
			}
			fetcher, _ := newTestFetcher(capability, 0)

			var numbers []int
			for p, err := range fetcher.Pages(context.Background(), Request{Method: "test.list", ItemsKey: "items"}) {
				if err != nil {
					t.Fatalf("Pages() error = %v", err)
				}
				numbers = append(numbers, p.Number)
				if got, want := p.Items[0]["page"], json.Number(fmt.Sprint(p.Number)); got != want {
					t.Errorf("page %d item = %v, want %v", p.Number, got, want)
				}
			}

			if len(numbers) != n {
				t.Fatalf("pages = %d, want %d", len(numbers), n)
			}
			for i, number := range numbers {
				if number != i+1 {
					t.Errorf("page[%d].Number = %d, want %d", i, number, i+1)
				}
			}
			if len(capability.requests) != n {
				t.Errorf("requests = %d, want %d", len(capability.requests), n)
			}
		})
	}
}

func TestFetcher_EmptyPageIsNotTerminal(t *testing.T) {
	capability := &scripted{responses: []func(PageRequest) (RawPage, error){
		page(t, "items", []map[string]any{}, ptr("next")),
		page(t, "items", []map[string]any{{"id": "a"}}, ptr("")),
	}}
	fetcher, _ := newTestFetcher(capability, 0)

	records, stats, err := fetcher.FetchAll(context.Background(), Request{Method: "test.list", ItemsKey: "items"})
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if len(records) != 1 {
		t.Errorf("len(records) = %d, want 1", len(records))
	}
	if stats.Pages != 2 {
		t.Errorf("Pages = %d, want 2", stats.Pages)
	}
	if got, want := capability.cursors(), []string{"", "next"}; !reflect.DeepEqual(got, want) {
		t.Errorf("cursors = %q, want %q", got, want)
	}
}

func TestFetcher_MissingMetadataIsSinglePage(t *testing.T) {
	capability := &scripted{responses: []func(PageRequest) (RawPage, error){
		page(t, "user", map[string]any{"id": "U1", "name": "ada"}, nil),
		page(t, "user", map[string]any{"id": "U2"}, nil),
	}}
	fetcher, _ := newTestFetcher(capability, 0)

	records, stats, err := fetcher.FetchAll(context.Background(), Request{Method: "users.info", ItemsKey: "user"})
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if stats.Pages != 1 || len(capability.requests) != 1 {
		t.Errorf("pages = %d, requests = %d, want 1 and 1", stats.Pages, len(capability.requests))
	}
	if len(records) != 1 {
		t.Fatalf("len(records) = %d, want 1", len(records))
	}
	if got := records[0]["name"]; got != "ada" {
		t.Errorf("name = %v, want ada", got)
	}
}

func TestFetcher_RetryKeepsCursor(t *testing.T) {
	const k = 4
	capability := &scripted{responses: []func(PageRequest) (RawPage, error){
		page(t, "items", []map[string]any{{"id": 1}}, ptr("c1")),
	}}
	for i := 0; i < k; i++ {
		capability.responses = append(capability.responses, failure(errors.New("connection reset")))
	}
	capability.responses = append(capability.responses, page(t, "items", []map[string]any{{"id": 2}}, nil))

	fetcher, governor := newTestFetcher(capability, 0)

	records, stats, err := fetcher.FetchAll(context.Background(), Request{Method: "test.list", ItemsKey: "items"})
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if len(records) != 2 {
		t.Errorf("len(records) = %d, want 2", len(records))
	}
	if stats.Retries != k {
		t.Errorf("Retries = %d, want %d", stats.Retries, k)
	}
	if governor.Calls() != 2 {
		t.Errorf("governor Calls() = %d, want 2 (failed attempts must not count)", governor.Calls())
	}

	// First page, then k+1 attempts of the second page, all with cursor c1.
	cursors := capability.cursors()
	if len(cursors) != k+2 {
		t.Fatalf("requests = %d, want %d", len(cursors), k+2)
	}
	if cursors[0] != "" {
		t.Errorf("first cursor = %q, want empty", cursors[0])
	}
	for i, c := range cursors[1:] {
		if c != "c1" {
			t.Errorf("attempt %d cursor = %q, want c1", i+2, c)
		}
	}
}

func TestFetcher_MalformedPageIsRetried(t *testing.T) {
	capability := &scripted{responses: []func(PageRequest) (RawPage, error){
		page(t, "wrong_key", []map[string]any{{"id": 1}}, nil),
		page(t, "items", []map[string]any{{"id": 1}}, nil),
	}}
	fetcher, _ := newTestFetcher(capability, 0)

	records, stats, err := fetcher.FetchAll(context.Background(), Request{Method: "test.list", ItemsKey: "items"})
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if len(records) != 1 || stats.Retries != 1 {
		t.Errorf("records = %d, retries = %d, want 1 and 1", len(records), stats.Retries)
	}
}

func TestFetcher_MaxAttemptsAborts(t *testing.T) {
	capability := &scripted{responses: []func(PageRequest) (RawPage, error){
		page(t, "items", []map[string]any{{"id": 1}}, ptr("c1")),
		failure(errors.New("timeout")),
		failure(errors.New("timeout")),
		failure(errors.New("timeout")),
	}}
	fetcher, _ := newTestFetcher(capability, 3)

	var delivered []Record
	stats, err := fetcher.Stream(context.Background(), Request{Method: "test.list", ItemsKey: "items"},
		func(_ context.Context, p Page) error {
			delivered = append(delivered, p.Items...)
			return nil
		})

	if !errors.Is(err, retry.ErrRetryExhausted) {
		t.Fatalf("Stream() error = %v, want ErrRetryExhausted", err)
	}
	if len(delivered) != 1 {
		t.Errorf("delivered = %d, want 1 (pages fetched before the failure stay delivered)", len(delivered))
	}
	if stats.Pages != 1 {
		t.Errorf("Pages = %d, want 1", stats.Pages)
	}
	if len(capability.requests) != 4 {
		t.Errorf("requests = %d, want 4", len(capability.requests))
	}
}

func TestFetcher_FatalErrorAborts(t *testing.T) {
	fatal := retry.Permanent(errors.New("invalid_auth"))
	capability := &scripted{responses: []func(PageRequest) (RawPage, error){failure(fatal)}}
	fetcher, _ := newTestFetcher(capability, 0)

	_, _, err := fetcher.FetchAll(context.Background(), Request{Method: "test.list", ItemsKey: "items", Label: "general"})
	if !errors.Is(err, fatal) {
		t.Fatalf("FetchAll() error = %v, want %v", err, fatal)
	}
	if !strings.Contains(err.Error(), "general page 1") {
		t.Errorf("error = %q, want it to name general page 1", err)
	}
	if len(capability.requests) != 1 {
		t.Errorf("requests = %d, want 1", len(capability.requests))
	}
}

func TestFetcher_SinkErrorStops(t *testing.T) {
	capability := &scripted{responses: []func(PageRequest) (RawPage, error){
		page(t, "items", []map[string]any{{"id": 1}}, ptr("c1")),
		page(t, "items", []map[string]any{{"id": 2}}, nil),
	}}
	fetcher, _ := newTestFetcher(capability, 0)
	diskFull := errors.New("disk full")

	_, err := fetcher.Stream(context.Background(), Request{Method: "test.list", ItemsKey: "items"},
		func(context.Context, Page) error { return diskFull })
	if !errors.Is(err, diskFull) {
		t.Errorf("Stream() error = %v, want %v", err, diskFull)
	}
	if len(capability.requests) != 1 {
		t.Errorf("requests = %d, want 1", len(capability.requests))
	}
}

func TestFetcher_RequestParameters(t *testing.T) {
	capability := &scripted{responses: []func(PageRequest) (RawPage, error){
		page(t, "items", []map[string]any{}, nil),
	}}
	fetcher, _ := newTestFetcher(capability, 0)
	args := map[string]string{"channel": "C1"}

	_, _, err := fetcher.FetchAll(context.Background(), Request{Method: "conversations.history", Args: args, ItemsKey: "items", PageSize: 50})
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}

	if len(capability.requests) != 1 {
		t.Fatalf("requests = %d, want 1", len(capability.requests))
	}
	req := capability.requests[0]
	if req.Method != "conversations.history" || req.Limit != 50 || req.Args["channel"] != "C1" {
		t.Errorf("request = %+v, want conversations.history limit 50 channel C1", req)
	}
}

func TestFetcher_DefaultPageSize(t *testing.T) {
	capability := &scripted{responses: []func(PageRequest) (RawPage, error){
		page(t, "items", []map[string]any{}, nil),
	}}
	fetcher := NewFetcher(capability, nil, Config{})
	fetcher.SetLogger(zerolog.New(io.Discard))

	if _, _, err := fetcher.FetchAll(context.Background(), Request{Method: "test.list", ItemsKey: "items"}); err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if got := capability.requests[0].Limit; got != DefaultPageSize {
		t.Errorf("Limit = %d, want %d", got, DefaultPageSize)
	}
}

func TestFetcher_AccumulateIsIdempotent(t *testing.T) {
	run := func() []byte {
		capability := &scripted{responses: []func(PageRequest) (RawPage, error){
			page(t, "items", []map[string]any{{"id": "b", "n": 12345678901234567}, {"id": "a"}}, ptr("x")),
			page(t, "items", []map[string]any{{"id": "c", "text": "héllo"}}, nil),
		}}
		fetcher, _ := newTestFetcher(capability, 0)
		records, _, err := fetcher.FetchAll(context.Background(), Request{Method: "test.list", ItemsKey: "items"})
		if err != nil {
			t.Fatalf("FetchAll() error = %v", err)
		}
		out, err := json.Marshal(records)
		if err != nil {
			t.Fatalf("Marshal error: %v", err)
		}
		return out
	}

	first, second := run(), run()
	if string(first) != string(second) {
		t.Errorf("runs differ:\n%s\n%s", first, second)
	}
	if !strings.Contains(string(first), "12345678901234567") {
		t.Errorf("records = %s, want large integer kept exact", first)
	}
}

func TestFetcher_PagesStopEarly(t *testing.T) {
	capability := &scripted{responses: []func(PageRequest) (RawPage, error){
		page(t, "items", []map[string]any{{"id": 1}}, ptr("c1")),
		page(t, "items", []map[string]any{{"id": 2}}, nil),
	}}
	fetcher, _ := newTestFetcher(capability, 0)

	for _, err := range fetcher.Pages(context.Background(), Request{Method: "test.list", ItemsKey: "items"}) {
		if err != nil {
			t.Fatalf("Pages() error = %v", err)
		}
		break
	}
	if len(capability.requests) != 1 {
		t.Errorf("requests = %d, want 1", len(capability.requests))
	}
}

func TestFetcher_PagesYieldsError(t *testing.T) {
	fatal := retry.Permanent(errors.New("not_authed"))
	capability := &scripted{responses: []func(PageRequest) (RawPage, error){failure(fatal)}}
	fetcher, _ := newTestFetcher(capability, 0)

	var errs []error
	for _, err := range fetcher.Pages(context.Background(), Request{Method: "test.list", ItemsKey: "items"}) {
		errs = append(errs, err)
	}
	if len(errs) != 1 {
		t.Fatalf("yielded %d errors, want 1", len(errs))
	}
	if !errors.Is(errs[0], fatal) {
		t.Errorf("error = %v, want %v", errs[0], fatal)
	}
}

func TestFetcher_CancelledContext(t *testing.T) {
	capability := &scripted{}
	fetcher, _ := newTestFetcher(capability, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := fetcher.FetchAll(ctx, Request{Method: "test.list", ItemsKey: "items"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("FetchAll() error = %v, want context.Canceled", err)
	}
	if len(capability.requests) != 0 {
		t.Errorf("requests = %d, want 0", len(capability.requests))
	}
}
