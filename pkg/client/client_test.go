package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"
)

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		expectError bool
		errorMsg    string
	}{
		{
			name:   "valid config",
			config: DefaultConfig("https://api2.frontapp.com", "secret"),
		},
		{
			name:        "missing api key",
			config:      DefaultConfig("https://api2.frontapp.com", ""),
			expectError: true,
			errorMsg:    "api key is required",
		},
		{
			name:        "relative base url",
			config:      DefaultConfig("api2.frontapp.com", "secret"),
			expectError: true,
			errorMsg:    `invalid base url "api2.frontapp.com"`,
		},
		{
			name: "negative pacing",
			config: Config{
				BaseURL:           "https://api2.frontapp.com",
				APIKey:            "secret",
				RequestsPerSecond: -1,
			},
			expectError: true,
			errorMsg:    "requests_per_second must be >= 0 (got -1)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := New(tt.config)

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got nil")
					return
				}
				if tt.errorMsg != "" && err.Error() != tt.errorMsg {
					t.Errorf("Error message = %q, want %q", err.Error(), tt.errorMsg)
				}
				return
			}
			if err != nil {
				t.Errorf("Unexpected error: %v", err)
				return
			}
			if client == nil {
				t.Error("Client is nil")
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("https://api2.frontapp.com", "secret")

	if cfg.UserAgent != DefaultUserAgent {
		t.Errorf("UserAgent = %q, want %q", cfg.UserAgent, DefaultUserAgent)
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", cfg.Timeout)
	}
	if cfg.RequestsPerSecond != 0 {
		t.Errorf("RequestsPerSecond = %v, want 0 (unpaced)", cfg.RequestsPerSecond)
	}
}

func TestSend_RequestShape(t *testing.T) {
	var got *http.Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		w.Header().Set("X-Ratelimit-Remaining", "49")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"_results": []}`))
	}))
	defer server.Close()

	c, err := New(DefaultConfig(server.URL+"/", "secret"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	query := url.Values{"sort_order": {"asc"}, "q[types]": {"inbound", "outbound"}}
	resp, err := c.Send(context.Background(), Request{
		Method: http.MethodGet,
		Path:   "/events",
		Query:  query,
		Header: http.Header{"X-Trace": {"abc"}},
	})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if got.URL.Path != "/events" {
		t.Errorf("path = %q, want /events", got.URL.Path)
	}
	if got.Method != http.MethodGet {
		t.Errorf("method = %q, want GET", got.Method)
	}
	if got.Header.Get("Authorization") != "Bearer secret" {
		t.Errorf("Authorization = %q", got.Header.Get("Authorization"))
	}
	if got.Header.Get("Accept") != "application/json" || got.Header.Get("X-Trace") != "abc" {
		t.Errorf("headers = %v", got.Header)
	}
	if types := got.URL.Query()["q[types]"]; len(types) != 2 {
		t.Errorf("q[types] = %v, want two values", types)
	}

	if resp.StatusCode != http.StatusOK || string(resp.Body) != `{"_results": []}` {
		t.Errorf("response = %d %s", resp.StatusCode, resp.Body)
	}
	if resp.Header.Get("x-ratelimit-remaining") != "49" {
		t.Errorf("response headers = %v", resp.Header)
	}
}

func TestSend_ErrorStatusIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c, err := New(DefaultConfig(server.URL, "secret"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	resp, err := c.Send(context.Background(), Request{Path: "/events"})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("StatusCode = %d, want 503", resp.StatusCode)
	}
}

func TestSend_NetworkErrorIsRetriable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	baseURL := server.URL
	server.Close()

	c, err := New(DefaultConfig(baseURL, "secret"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, err = c.Send(context.Background(), Request{Path: "/events"})
	if !IsRetriable(err) {
		t.Fatalf("Send() error = %v, want retriable", err)
	}
	if ClassOf(err) != ErrorClassNetwork {
		t.Errorf("ClassOf() = %q, want network", ClassOf(err))
	}
}

func TestSend_CancelledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	c, err := New(DefaultConfig(server.URL, "secret"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = c.Send(ctx, Request{Path: "/events"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Send() error = %v, want deadline exceeded", err)
	}
	if IsRetriable(err) {
		t.Error("cancellation must not be retried")
	}
}

func TestSend_Pacing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := DefaultConfig(server.URL, "secret")
	cfg.RequestsPerSecond = 20
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := c.Send(context.Background(), Request{Path: "/events"}); err != nil {
			t.Fatalf("Send() error = %v", err)
		}
	}

	// Burst of 1 at 20/s: the 2nd and 3rd requests wait ~50ms each.
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Errorf("3 paced requests took %v, want >= ~100ms", elapsed)
	}
}
