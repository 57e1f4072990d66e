// Package client provides the HTTP transport for the FrontApp API, the error
// taxonomy shared by the extraction loop, and the retry executor that
// re-issues transient failures.
package client

import (
	"context"
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
	"golang.org/x/time/rate"
)

// Prometheus metrics for FrontApp requests.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "frontapp_requests_total",
		Help: "Total FrontApp requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "frontapp_request_duration_seconds",
		Help:    "FrontApp request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})
)

// DefaultUserAgent is sent when Config.UserAgent is empty.
const DefaultUserAgent = "frontapp-tap/0.1.0"

// Request is one call to the API.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
}

// Response is a fully read API response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Transport sends requests. Connection pooling and TLS belong to the
// implementation.
type Transport interface {
	Send(ctx context.Context, req Request) (*Response, error)
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is the API root, e.g. https://api2.frontapp.com.
	BaseURL string

	// APIKey is sent as a bearer token.
	APIKey string

	// UserAgent header.
	UserAgent string

	// Timeout per request.
	Timeout time.Duration

	// RequestsPerSecond paces requests client-side. 0 disables pacing.
	RequestsPerSecond float64
}

// DefaultConfig returns a default configuration.
func DefaultConfig(baseURL, apiKey string) Config {
	return Config{
		BaseURL:   baseURL,
		APIKey:    apiKey,
		UserAgent: DefaultUserAgent,
		Timeout:   30 * time.Second,
	}
}

// Client is the HTTP implementation of Transport.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	limiter    *rate.Limiter
	config     Config
	logger     zerolog.Logger
}

// New creates a new FrontApp client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}

	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", cfg.BaseURL)
	}

	if cfg.RequestsPerSecond < 0 {
		return nil, fmt.Errorf("requests_per_second must be >= 0 (got %v)", cfg.RequestsPerSecond)
	}

	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL: base,
		limiter: limiter,
		config:  cfg,
		logger:  log.With().Str("component", "frontapp-client").Logger(),
	}, nil
}

// Send performs one request and reads the whole body. Non-2xx statuses are
// not errors here; classification is the caller's job. Network failures are
// returned as retriable.
func (c *Client) Send(ctx context.Context, req Request) (*Response, error) {
	endpoint := req.Path

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("request pacing: %w", err)
		}
	}

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	u := c.baseURL.JoinPath(req.Path)
	u.RawQuery = req.Query.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.config.UserAgent)

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("method", method).
		Str("query", u.RawQuery).
		Msg("Executing FrontApp request")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("HTTP request failed")
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &RetriableError{Err: &APIError{
			ErrorClass: ErrorClassNetwork,
			Message:    "request failed",
			Path:       endpoint,
			Err:        err,
		}}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		return nil, &RetriableError{Err: &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassNetwork,
			Message:    "read response body",
			Path:       endpoint,
			Err:        err,
		}}
	}

	requestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

