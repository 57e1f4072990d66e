// Package metrics exposes the Prometheus registry of the tap and the small
// HTTP server that serves it during a run. Metrics themselves are defined
// next to the code that updates them (client, ratelimit, extract, checkpoint)
// and registered via promauto.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Gatherer is the registry metrics are served from.
var Gatherer = prometheus.DefaultGatherer

// NewServeMux returns a mux serving /metrics and /health.
func NewServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", healthHandler)
	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

// Server serves metrics until its context is cancelled.
type Server struct {
	srv      *http.Server
	listener net.Listener
	logger   zerolog.Logger
}

// Listen binds addr (e.g. ":9090" or "127.0.0.1:0").
func Listen(addr string, logger zerolog.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return &Server{
		srv: &http.Server{
			Handler:           NewServeMux(),
			ReadHeaderTimeout: 5 * time.Second,
		},
		listener: ln,
		logger:   logger,
	}, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Serve blocks until ctx is done, then shuts the server down.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.srv.Serve(s.listener)
	}()

	s.logger.Info().Str("addr", s.Addr()).Msg("Serving metrics")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown metrics server: %w", err)
	}
	return nil
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - frontapp_requests_total{endpoint, status} (Counter): requests by endpoint and HTTP status
//   - frontapp_request_duration_seconds{endpoint} (Histogram): request duration
//
// Retry Metrics (pkg/client):
//   - frontapp_retries_total{error_class} (Counter): retry attempts by error class
//   - frontapp_retry_backoff_seconds{error_class} (Histogram): backoff duration
//   - frontapp_retry_exhausted_total{error_class} (Counter): pages that exhausted retries
//
// Rate Limit Metrics (pkg/ratelimit):
//   - frontapp_ratelimit_remaining (Gauge): requests left in the current window
//   - frontapp_ratelimit_used_percent (Gauge): share of the window already used
//   - frontapp_verdicts_total{outcome} (Counter): classifier outcomes
//   - frontapp_ratelimit_wait_seconds{reason} (Histogram): throttle and retry-after waits
//
// Extraction Metrics (pkg/extract):
//   - frontapp_pages_total{stream} (Counter): pages fully emitted
//   - frontapp_records_emitted_total{stream} (Counter): records emitted
//
// Checkpoint Metrics (pkg/checkpoint):
//   - frontapp_checkpoint_loads_total{result} (Counter): hit or miss
//   - frontapp_checkpoint_saves_total (Counter): tokens saved
//   - frontapp_checkpoint_errors_total{operation} (Counter): Redis failures
//
// Example Prometheus Queries:
//
//   # Throttle share of verdicts
//   sum(rate(frontapp_verdicts_total{outcome="throttle"}[5m])) / sum(rate(frontapp_verdicts_total[5m]))
//
//   # Window headroom
//   frontapp_ratelimit_used_percent > 80
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(frontapp_request_duration_seconds_bucket[5m]))
//
//   # Extraction throughput
//   rate(frontapp_records_emitted_total[5m])
