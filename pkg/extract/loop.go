// Package extract runs the page-at-a-time extraction of a stream: build the
// query, send it, classify the response, wait if told to, normalize and emit
// the records, then advance the continuation token until none remains.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/frontapp-tap/pkg/client"
	"github.com/Sternrassler/frontapp-tap/pkg/logging"
	"github.com/Sternrassler/frontapp-tap/pkg/pagination"
	"github.com/Sternrassler/frontapp-tap/pkg/ratelimit"
	"github.com/Sternrassler/frontapp-tap/pkg/stream"
)

// Prometheus metrics for extraction.
var (
	pagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "frontapp_pages_total",
		Help: "Total pages fully emitted by stream",
	}, []string{"stream"})

	recordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "frontapp_records_emitted_total",
		Help: "Total normalized records emitted by stream",
	}, []string{"stream"})
)

// Sink receives the output of a run.
type Sink interface {
	// Record is called once per normalized record, in page order.
	Record(streamName string, rec stream.NormalizedRecord) error

	// PageDone is called after all records of a page were emitted, with the
	// token of the next page ("" after the last page).
	PageDone(streamName string, nextToken string) error
}

// Checkpointer persists the continuation token between runs.
type Checkpointer interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

// Options configures a Loop. Transport and Stream are required.
type Options struct {
	Transport client.Transport
	Stream    stream.Stream

	// Retry is the policy of the executor that re-issues retriable pages.
	Retry client.RetryConfig

	// Sleeper performs rate limit waits. Defaults to RealSleeper.
	Sleeper Sleeper

	// Clock is consulted for the proactive throttle. Defaults to time.Now.
	Clock Clock

	// Tracker records snapshots and verdicts. Defaults to a metrics-only tracker.
	Tracker *ratelimit.Tracker

	// Checkpoint is optional. With Resume set the run starts from the stored token.
	Checkpoint Checkpointer
	Resume     bool

	Logger *zerolog.Logger
}

// Result summarizes a run.
type Result struct {
	Pages   int
	Records int

	// Waited is the total time spent in rate limit waits.
	Waited time.Duration
}

// Loop extracts one stream. A Loop is not safe for concurrent use; exactly
// one page is in flight at a time.
type Loop struct {
	transport  client.Transport
	stream     stream.Stream
	retry      client.RetryConfig
	sleeper    Sleeper
	clock      Clock
	tracker    *ratelimit.Tracker
	checkpoint Checkpointer
	resume     bool
	logger     zerolog.Logger
}

// New creates a Loop.
func New(opts Options) (*Loop, error) {
	if opts.Transport == nil {
		return nil, fmt.Errorf("transport is required")
	}
	if opts.Stream == nil {
		return nil, fmt.Errorf("stream is required")
	}

	logger := logging.NewLogger("extract")
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	logger = logger.With().Str("stream", opts.Stream.Name()).Logger()

	l := &Loop{
		transport:  opts.Transport,
		stream:     opts.Stream,
		retry:      opts.Retry,
		sleeper:    opts.Sleeper,
		clock:      opts.Clock,
		tracker:    opts.Tracker,
		checkpoint: opts.Checkpoint,
		resume:     opts.Resume,
		logger:     logger,
	}

	if l.retry.MaxAttempts == 0 {
		l.retry = client.DefaultRetryConfig()
	}
	if l.sleeper == nil {
		l.sleeper = RealSleeper{}
	}
	if l.clock == nil {
		l.clock = time.Now
	}
	if l.tracker == nil {
		l.tracker = ratelimit.NewTracker(nil, logger)
	}

	return l, nil
}

// page is one fully validated and normalized page.
type page struct {
	records []stream.NormalizedRecord
	next    string
	waited  time.Duration
}

// Run extracts every page and hands the records to sink. On a fatal error
// the run stops; records already emitted are not retracted.
func (l *Loop) Run(ctx context.Context, sink Sink) (Result, error) {
	var result Result

	startToken, err := l.startToken(ctx)
	if err != nil {
		return result, err
	}
	state := pagination.NewState(startToken)

	l.logger.Info().
		Bool("resumed", startToken != "").
		Msg("Starting extraction")

	for !state.Done() {
		token := state.Token()
		pageNum := state.Pages() + 1

		var p *page
		err := client.Retry(ctx, l.retry, func(attempt int) error {
			fetched, err := l.fetchPage(ctx, token)
			if fetched != nil {
				result.Waited += fetched.waited
			}
			if err != nil {
				l.logger.Debug().Err(err).Int("page", pageNum).Int("attempt", attempt).Msg("Page attempt failed")
				return err
			}
			p = fetched
			return nil
		})
		if err != nil {
			l.logger.Error().Err(err).Int("page", pageNum).Msg("Extraction aborted")
			return result, fmt.Errorf("page %d: %w", pageNum, err)
		}

		for _, rec := range p.records {
			if err := sink.Record(l.stream.Name(), rec); err != nil {
				return result, fmt.Errorf("emit record: %w", err)
			}
			result.Records++
		}
		recordsTotal.WithLabelValues(l.stream.Name()).Add(float64(len(p.records)))

		if err := state.Advance(p.next); err != nil {
			return result, &client.FatalError{Err: err}
		}
		result.Pages = state.Pages()
		pagesTotal.WithLabelValues(l.stream.Name()).Inc()

		l.saveCheckpoint(ctx, p.next)

		if err := sink.PageDone(l.stream.Name(), p.next); err != nil {
			return result, fmt.Errorf("emit page state: %w", err)
		}

		l.logger.Debug().
			Int("page", pageNum).
			Int("records", len(p.records)).
			Bool("has_next", p.next != "").
			Msg("Page emitted")
	}

	l.logger.Info().
		Int("pages", result.Pages).
		Int("records", result.Records).
		Dur("waited", result.Waited).
		Msg("Extraction complete")

	return result, nil
}

// fetchPage performs one attempt at a page. Waits requested by the verdict
// are performed before it returns, whatever the outcome.
func (l *Loop) fetchPage(ctx context.Context, token string) (*page, error) {
	path := l.stream.Path()

	params, err := l.stream.BuildParams(token)
	if err != nil {
		return nil, &client.FatalError{Err: err}
	}

	resp, err := l.transport.Send(ctx, client.Request{
		Method: http.MethodGet,
		Path:   path,
		Query:  params,
	})
	if err != nil {
		return nil, err
	}

	verdict := l.stream.Classify(resp.StatusCode, resp.Header, l.clock())
	if verdict.Snapshot != nil {
		if err := l.tracker.Observe(ctx, *verdict.Snapshot, l.clock()); err != nil {
			l.logger.Warn().Err(err).Msg("Failed to record rate limit snapshot")
		}
	}
	l.tracker.RecordVerdict(verdict)

	p := &page{}
	for _, wait := range verdict.Waits() {
		if err := l.sleeper.Sleep(ctx, wait); err != nil {
			return p, fmt.Errorf("rate limit wait: %w", err)
		}
		p.waited += wait
	}

	switch verdict.Outcome {
	case ratelimit.Fatal:
		return p, &client.FatalError{Err: apiError(resp, verdict, path)}
	case ratelimit.Retriable:
		return p, &client.RetriableError{Err: apiError(resp, verdict, path), Wait: verdict.RetryAfter}
	}

	raw, err := l.stream.ParseRecords(resp.Body)
	if err != nil {
		return p, &client.RetriableError{Err: contractError(resp, path, err)}
	}

	next, err := l.stream.NextToken(resp.Body)
	if err != nil {
		return p, &client.RetriableError{Err: contractError(resp, path, err)}
	}

	p.records = make([]stream.NormalizedRecord, 0, len(raw))
	for _, r := range raw {
		rec, err := l.stream.PostProcess(r)
		if err != nil {
			return p, &client.FatalError{Err: err}
		}
		p.records = append(p.records, rec)
	}
	p.next = next

	return p, nil
}

func (l *Loop) startToken(ctx context.Context) (string, error) {
	if !l.resume || l.checkpoint == nil {
		return "", nil
	}
	token, err := l.checkpoint.Load(ctx)
	if err != nil {
		return "", fmt.Errorf("load checkpoint: %w", err)
	}
	return token, nil
}

func (l *Loop) saveCheckpoint(ctx context.Context, next string) {
	if l.checkpoint == nil {
		return
	}

	var err error
	if next == "" {
		err = l.checkpoint.Clear(ctx)
	} else {
		err = l.checkpoint.Save(ctx, next)
	}
	if err != nil {
		l.logger.Warn().Err(err).Msg("Failed to update checkpoint")
	}
}

func apiError(resp *client.Response, verdict ratelimit.Verdict, path string) *client.APIError {
	class := client.ClassForStatus(resp.StatusCode)
	if class == "" {
		class = client.ErrorClassContract
	}
	return &client.APIError{
		StatusCode: resp.StatusCode,
		ErrorClass: class,
		Message:    verdict.Message,
		Path:       path,
		Err:        upstreamError(resp.Body),
	}
}

func contractError(resp *client.Response, path string, err error) *client.APIError {
	return &client.APIError{
		StatusCode: resp.StatusCode,
		ErrorClass: client.ErrorClassContract,
		Message:    "malformed response body",
		Path:       path,
		Err:        err,
	}
}

// upstreamError extracts FrontApp's {"_error": {...}} body, if any.
func upstreamError(body []byte) error {
	var env struct {
		Error *struct {
			Title   string `json:"title"`
			Message string `json:"message"`
		} `json:"_error"`
	}
	if err := json.Unmarshal(body, &env); err != nil || env.Error == nil {
		return nil
	}
	switch {
	case env.Error.Title != "" && env.Error.Message != "":
		return errors.New(env.Error.Title + ": " + env.Error.Message)
	case env.Error.Message != "":
		return errors.New(env.Error.Message)
	case env.Error.Title != "":
		return errors.New(env.Error.Title)
	}
	return nil
}
