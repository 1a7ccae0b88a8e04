// Package testutil provides testing utilities for the Slack exporter.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock Slack method response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockRequest is one call received by the mock server.
type MockRequest struct {
	Method string
	Form   url.Values
	Header http.Header
}

// MockSlack is a configurable mock Slack Web API server for testing.
type MockSlack struct {
	server    *httptest.Server
	mu        sync.RWMutex
	handlers  map[string]http.HandlerFunc
	sequences map[string][]MockResponse
	pages     map[string][]string
	requests  []MockRequest
}

// NewMockSlack creates a new mock Slack server. Methods are served under /api/.
func NewMockSlack() *MockSlack {
	mock := &MockSlack{
		handlers:  make(map[string]http.HandlerFunc),
		sequences: make(map[string][]MockResponse),
		pages:     make(map[string][]string),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		method := strings.TrimPrefix(r.URL.Path, "/api/")

		mock.mu.Lock()
		mock.requests = append(mock.requests, MockRequest{
			Method: method,
			Form:   cloneValues(r.PostForm),
			Header: r.Header.Clone(),
		})
		handler, hasHandler := mock.handlers[method]
		mock.mu.Unlock()

		if hasHandler {
			handler(w, r)
			return
		}
		if resp, ok := mock.nextInSequence(method); ok {
			writeResponse(w, resp)
			return
		}
		if mock.servePage(w, r, method) {
			return
		}

		writeResponse(w, NewErrorResponse("unknown_method"))
	}))

	return mock
}

// URL returns the API base URL, ending in a slash.
func (m *MockSlack) URL() string {
	return m.server.URL + "/api/"
}

// Close shuts down the mock server.
func (m *MockSlack) Close() {
	m.server.Close()
}

// Reset clears recorded requests.
func (m *MockSlack) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
}

// SetHandler sets a custom handler for a method.
func (m *MockSlack) SetHandler(method string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[method] = handler
}

// SetResponse configures a fixed response for a method.
func (m *MockSlack) SetResponse(method string, resp MockResponse) {
	m.SetHandler(method, func(w http.ResponseWriter, _ *http.Request) {
		writeResponse(w, resp)
	})
}

// QueueResponses makes the next calls to method return resps in order. Once
// the queue is drained the method falls back to its pages.
func (m *MockSlack) QueueResponses(method string, resps ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sequences[method] = append(m.sequences[method], resps...)
}

// SetPages serves a cursor chain for method. Each page holds the items under
// itemsKey; the cursor of page i is "page-i".
func (m *MockSlack) SetPages(method, itemsKey string, pages ...[]any) {
	m.SetChannelPages(method, "", itemsKey, pages...)
}

// SetChannelPages serves a cursor chain for method calls with the given channel
// argument.
func (m *MockSlack) SetChannelPages(method, channel, itemsKey string, pages ...[]any) {
	bodies := make([]string, len(pages))
	for i, items := range pages {
		if items == nil {
			items = []any{}
		}
		body := map[string]any{"ok": true, itemsKey: items}
		next := ""
		if i < len(pages)-1 {
			next = fmt.Sprintf("page-%d", i+1)
		}
		body["response_metadata"] = map[string]any{"next_cursor": next}
		data, err := json.Marshal(body)
		if err != nil {
			panic(fmt.Sprintf("testutil: marshal page: %v", err))
		}
		bodies[i] = string(data)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[pageKey(method, channel)] = bodies
}

// SetObject serves a single-object response such as users.info or reactions.get.
func (m *MockSlack) SetObject(method, key string, object any) {
	data, err := json.Marshal(map[string]any{"ok": true, key: object})
	if err != nil {
		panic(fmt.Sprintf("testutil: marshal object: %v", err))
	}
	m.SetResponse(method, NewOKResponse(string(data)))
}

// Requests returns every call received so far.
func (m *MockSlack) Requests() []MockRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]MockRequest(nil), m.requests...)
}

// RequestsFor returns the calls received for one method.
func (m *MockSlack) RequestsFor(method string) []MockRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []MockRequest
	for _, r := range m.requests {
		if r.Method == method {
			out = append(out, r)
		}
	}
	return out
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockSlack) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.requests)
}

func (m *MockSlack) nextInSequence(method string) (MockResponse, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	queue := m.sequences[method]
	if len(queue) == 0 {
		return MockResponse{}, false
	}
	m.sequences[method] = queue[1:]
	return queue[0], true
}

func (m *MockSlack) servePage(w http.ResponseWriter, r *http.Request, method string) bool {
	m.mu.RLock()
	bodies, ok := m.pages[pageKey(method, r.PostForm.Get("channel"))]
	if !ok {
		bodies, ok = m.pages[pageKey(method, "")]
	}
	m.mu.RUnlock()
	if !ok {
		return false
	}

	index := 0
	if cursor := r.PostForm.Get("cursor"); cursor != "" {
		n, err := strconv.Atoi(strings.TrimPrefix(cursor, "page-"))
		if err != nil || n < 0 || n >= len(bodies) {
			writeResponse(w, NewErrorResponse("invalid_cursor"))
			return true
		}
		index = n
	}
	writeResponse(w, NewOKResponse(bodies[index]))
	return true
}

func pageKey(method, channel string) string {
	return method + "#" + channel
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for key, values := range v {
		out[key] = append([]string(nil), values...)
	}
	return out
}

func writeResponse(w http.ResponseWriter, resp MockResponse) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if resp.Body != "" {
		_, _ = w.Write([]byte(resp.Body))
	}
}

// NewOKResponse creates a 200 OK response with the given JSON body.
func NewOKResponse(body string) MockResponse {
	return MockResponse{StatusCode: http.StatusOK, Body: body}
}

// NewErrorResponse creates a 200 response with "ok": false and the given code.
func NewErrorResponse(code string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       fmt.Sprintf(`{"ok":false,"error":%q}`, code),
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse(retryAfter int) MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"ok":false,"error":"ratelimited"}`,
		Headers:    map[string]string{"Retry-After": strconv.Itoa(retryAfter)},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       "internal error",
		Headers:    map[string]string{"Content-Type": "text/plain"},
	}
}
