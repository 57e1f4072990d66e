// Package testutil provides a mock FrontApp events API for tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"time"
)

// MockResponse is a one-off response served instead of the next page.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockFront serves /events from a fixed list of events, page by page, with
// FrontApp-style rate limit headers.
type MockFront struct {
	server *httptest.Server
	mu     sync.Mutex

	apiKey   string
	events   []map[string]any
	pageSize int
	faults   []MockResponse

	// Rate limit headers sent with every page.
	Remaining int
	Limit     int
	ResetIn   time.Duration

	queries []url.Values
	auth    []string
}

// NewMockFront creates a server holding count events, pageSize per page.
// Event i has id "evt_i" and emitted_at 1700000000 + i + 0.25.
func NewMockFront(apiKey string, count, pageSize int) *MockFront {
	if pageSize < 1 {
		pageSize = 15
	}

	events := make([]map[string]any, 0, count)
	for i := 1; i <= count; i++ {
		events = append(events, map[string]any{
			"_links":     map[string]any{"self": fmt.Sprintf("https://api2.frontapp.com/events/evt_%d", i)},
			"id":         fmt.Sprintf("evt_%d", i),
			"type":       "inbound",
			"emitted_at": json.Number(fmt.Sprintf("%d.25", 1700000000+i)),
		})
	}

	m := &MockFront{
		apiKey:    apiKey,
		events:    events,
		pageSize:  pageSize,
		Remaining: 49,
		Limit:     50,
		ResetIn:   time.Minute,
	}
	m.server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

// URL returns the mock server URL.
func (m *MockFront) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockFront) Close() {
	m.server.Close()
}

// EventIDs returns the ids of all events in serving order.
func (m *MockFront) EventIDs() []string {
	ids := make([]string, 0, len(m.events))
	for _, e := range m.events {
		ids = append(ids, e["id"].(string))
	}
	return ids
}

// FailNext queues responses served, in order, before the next pages.
func (m *MockFront) FailNext(resp ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faults = append(m.faults, resp...)
}

// SetRateLimit changes the headers sent with subsequent pages.
func (m *MockFront) SetRateLimit(remaining, limit int, resetIn time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Remaining, m.Limit, m.ResetIn = remaining, limit, resetIn
}

// RequestCount returns the number of requests made to the server.
func (m *MockFront) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queries)
}

// Queries returns the query of every request, in order.
func (m *MockFront) Queries() []url.Values {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]url.Values, len(m.queries))
	copy(out, m.queries)
	return out
}

// Authorizations returns the Authorization header of every request.
func (m *MockFront) Authorizations() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.auth))
	copy(out, m.auth)
	return out
}

// NextToken returns the continuation token that points at page index page.
func (m *MockFront) NextToken(page int) string {
	return fmt.Sprintf("%s/events?limit=%d&page_token=%d", m.server.URL, m.pageSize, page)
}

func (m *MockFront) handle(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.queries = append(m.queries, r.URL.Query())
	m.auth = append(m.auth, r.Header.Get("Authorization"))

	var fault *MockResponse
	if len(m.faults) > 0 {
		f := m.faults[0]
		m.faults = m.faults[1:]
		fault = &f
	}
	remaining, limit, resetIn := m.Remaining, m.Limit, m.ResetIn
	m.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")

	if fault != nil {
		if fault.Delay > 0 {
			time.Sleep(fault.Delay)
		}
		for key, value := range fault.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(fault.StatusCode)
		if fault.Body != "" {
			w.Write([]byte(fault.Body))
		}
		return
	}

	if r.URL.Path != "/events" {
		writeError(w, http.StatusNotFound, "Not found", "Unknown resource "+r.URL.Path)
		return
	}
	if m.apiKey != "" && r.Header.Get("Authorization") != "Bearer "+m.apiKey {
		writeError(w, http.StatusUnauthorized, "Unauthenticated", "Invalid token")
		return
	}

	page := 0
	if token := r.URL.Query().Get("page_token"); token != "" {
		p, err := strconv.Atoi(token)
		if err != nil || p < 0 {
			writeError(w, http.StatusBadRequest, "Bad request", "Invalid page_token")
			return
		}
		page = p
	}

	start := page * m.pageSize
	if start > len(m.events) {
		start = len(m.events)
	}
	end := start + m.pageSize
	if end > len(m.events) {
		end = len(m.events)
	}

	var next *string
	if end < len(m.events) {
		token := m.NextToken(page + 1)
		next = &token
	}

	body, _ := json.Marshal(map[string]any{
		"_pagination": map[string]any{"next": next},
		"_links":      map[string]any{"self": m.server.URL + r.URL.RequestURI()},
		"_results":    m.events[start:end],
	})

	w.Header().Set("X-Ratelimit-Remaining", strconv.Itoa(remaining))
	w.Header().Set("X-Ratelimit-Limit", strconv.Itoa(limit))
	w.Header().Set("X-Ratelimit-Reset", strconv.FormatInt(time.Now().Add(resetIn).Unix(), 10))
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func writeError(w http.ResponseWriter, status int, title, message string) {
	w.WriteHeader(status)
	body, _ := json.Marshal(map[string]any{
		"_error": map[string]any{"status": status, "title": title, "message": message},
	})
	w.Write(body)
}

// NewTooManyRequestsResponse creates a 429 with retry-after seconds.
func NewTooManyRequestsResponse(retryAfter int) MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"_error":{"status":429,"title":"Too many requests","message":"Rate limit exceeded"}}`,
		Headers: map[string]string{
			"X-Ratelimit-Remaining": "0",
			"X-Ratelimit-Limit":     "50",
			"X-Ratelimit-Reset":     strconv.FormatInt(time.Now().Add(time.Duration(retryAfter)*time.Second).Unix(), 10),
			"Retry-After":           strconv.Itoa(retryAfter),
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"_error":{"status":500,"title":"Internal server error"}}`,
	}
}

// NewClientErrorResponse creates a 4xx response with a FrontApp error body.
func NewClientErrorResponse(status int, message string) MockResponse {
	body, _ := json.Marshal(map[string]any{
		"_error": map[string]any{"status": status, "title": http.StatusText(status), "message": message},
	})
	return MockResponse{StatusCode: status, Body: string(body)}
}
