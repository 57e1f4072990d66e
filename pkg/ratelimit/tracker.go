package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Redis keys for the published rate limit state.
const (
	RedisKeyRemaining  = "frontapp:ratelimit:remaining"
	RedisKeyLimit      = "frontapp:ratelimit:limit"
	RedisKeyReset      = "frontapp:ratelimit:reset"
	RedisKeyLastUpdate = "frontapp:ratelimit:last_update"
)

// ErrNoState is returned by GetState when nothing has been published yet.
var ErrNoState = errors.New("no rate limit state published")

// Prometheus metrics for rate limit tracking.
var (
	rateLimitRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "frontapp_ratelimit_remaining",
		Help: "Requests remaining in the current FrontApp rate limit window",
	})

	rateLimitUsedPercent = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "frontapp_ratelimit_used_percent",
		Help: "Percentage of the FrontApp rate limit window already used",
	})

	verdictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "frontapp_verdicts_total",
		Help: "Total classified responses by outcome",
	}, []string{"outcome"})

	waitSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "frontapp_ratelimit_wait_seconds",
		Help:    "Rate limit waits by reason",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
	}, []string{"reason"})
)

// State is the last rate limit snapshot published to Redis.
type State struct {
	Snapshot
	LastUpdate time.Time `json:"last_update"`
}

// IsStale returns true if the state is older than maxAge.
func (s *State) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// Tracker records observed rate limit snapshots and verdicts.
//
// Classification never reads from the tracker; it exists so operators can see
// the account-wide quota. With a nil Redis client only metrics are updated.
type Tracker struct {
	redis  *redis.Client
	logger zerolog.Logger
}

// NewTracker creates a new rate limit tracker. redisClient may be nil.
func NewTracker(redisClient *redis.Client, logger zerolog.Logger) *Tracker {
	return &Tracker{
		redis:  redisClient,
		logger: logger,
	}
}

// Observe records a snapshot taken at observedAt.
func (t *Tracker) Observe(ctx context.Context, s Snapshot, observedAt time.Time) error {
	rateLimitRemaining.Set(float64(s.Remaining))
	rateLimitUsedPercent.Set(s.UsedPercent())

	t.logger.Debug().
		Int("remaining", s.Remaining).
		Int("limit", s.Limit).
		Float64("used_pct", s.UsedPercent()).
		Time("reset_at", s.ResetAt()).
		Msg("Rate limit snapshot")

	if t.redis == nil {
		return nil
	}

	lastUpdate, err := json.Marshal(observedAt)
	if err != nil {
		return fmt.Errorf("marshal last update: %w", err)
	}

	pipe := t.redis.Pipeline()
	pipe.Set(ctx, RedisKeyRemaining, s.Remaining, 0)
	pipe.Set(ctx, RedisKeyLimit, s.Limit, 0)
	pipe.Set(ctx, RedisKeyReset, s.ResetEpochSeconds, 0)
	pipe.Set(ctx, RedisKeyLastUpdate, lastUpdate, 0)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store rate limit state in redis: %w", err)
	}
	return nil
}

// RecordVerdict counts a verdict and logs any waits it requests.
func (t *Tracker) RecordVerdict(v Verdict) {
	verdictsTotal.WithLabelValues(v.Outcome.String()).Inc()

	if v.ThrottleWait > 0 {
		waitSeconds.WithLabelValues("quota").Observe(v.ThrottleWait.Seconds())
		event := t.logger.Warn().Dur("wait", v.ThrottleWait)
		if v.Snapshot != nil {
			event = event.
				Float64("used_pct", v.Snapshot.UsedPercent()).
				Int("used", v.Snapshot.Used()).
				Int("limit", v.Snapshot.Limit)
		}
		event.Msg(v.Message + ", sleeping until the window resets")
	}

	if v.RetryAfter > 0 {
		waitSeconds.WithLabelValues("retry_after").Observe(v.RetryAfter.Seconds())
		t.logger.Warn().
			Dur("retry_after", v.RetryAfter).
			Msg("Rate limit exceeded")
	}

	if v.Outcome == Fatal {
		t.logger.Error().Str("message", v.Message).Msg("Response classified as fatal")
	}
}

// GetState returns the last published snapshot.
// Returns ErrNoState if nothing has been published or Redis is not configured.
func (t *Tracker) GetState(ctx context.Context) (*State, error) {
	if t.redis == nil {
		return nil, ErrNoState
	}

	remaining, err := t.redis.Get(ctx, RedisKeyRemaining).Int()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNoState
		}
		return nil, fmt.Errorf("get remaining: %w", err)
	}

	limit, err := t.redis.Get(ctx, RedisKeyLimit).Int()
	if err != nil {
		return nil, fmt.Errorf("get limit: %w", err)
	}

	reset, err := t.redis.Get(ctx, RedisKeyReset).Float64()
	if err != nil {
		return nil, fmt.Errorf("get reset: %w", err)
	}

	lastUpdateRaw, err := t.redis.Get(ctx, RedisKeyLastUpdate).Bytes()
	if err != nil {
		return nil, fmt.Errorf("get last update: %w", err)
	}

	var lastUpdate time.Time
	if err := json.Unmarshal(lastUpdateRaw, &lastUpdate); err != nil {
		return nil, fmt.Errorf("parse last update: %w", err)
	}

	return &State{
		Snapshot: Snapshot{
			Remaining:         remaining,
			Limit:             limit,
			ResetEpochSeconds: reset,
		},
		LastUpdate: lastUpdate,
	}, nil
}
