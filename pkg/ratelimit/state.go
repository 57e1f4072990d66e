// Package ratelimit classifies FrontApp responses against the account-wide
// rate limit. FrontApp enforces its quota per company rather than per token and
// exposes it through the x-ratelimit-remaining, x-ratelimit-limit and
// x-ratelimit-reset headers; 429 responses also carry retry-after.
package ratelimit

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Rate limit response headers.
const (
	HeaderRemaining  = "X-Ratelimit-Remaining"
	HeaderLimit      = "X-Ratelimit-Limit"
	HeaderReset      = "X-Ratelimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

var (
	// ErrMissingHeader indicates a required rate limit header was absent.
	ErrMissingHeader = errors.New("missing rate limit header")

	// ErrInvalidHeader indicates a rate limit header could not be parsed.
	ErrInvalidHeader = errors.New("invalid rate limit header")
)

// maxSeconds is the largest number of seconds a time.Duration can hold.
// Reset and retry-after values beyond it are rejected.
var maxSeconds = float64(math.MaxInt64) / float64(time.Second)

// Snapshot is the rate limit state reported by a single response.
// It is built fresh from each response and never carried to the next request.
type Snapshot struct {
	// Remaining is the number of requests left in the current window.
	Remaining int `json:"remaining"`

	// Limit is the size of the window. Always > 0.
	Limit int `json:"limit"`

	// ResetEpochSeconds is when the window resets, in fractional epoch seconds.
	ResetEpochSeconds float64 `json:"reset_epoch_seconds"`
}

// Used returns the number of requests consumed in the current window.
func (s Snapshot) Used() int {
	return s.Limit - s.Remaining
}

// UsedPercent returns (limit - remaining) / limit * 100.
func (s Snapshot) UsedPercent() float64 {
	return float64(s.Used()) / float64(s.Limit) * 100
}

// ResetAt returns the reset instant.
func (s Snapshot) ResetAt() time.Time {
	sec, frac := math.Modf(s.ResetEpochSeconds)
	return time.Unix(int64(sec), int64(frac*float64(time.Second)))
}

// ParseSnapshot reads the three rate limit headers.
func ParseSnapshot(headers http.Header) (Snapshot, error) {
	remaining, err := intHeader(headers, HeaderRemaining)
	if err != nil {
		return Snapshot{}, err
	}

	limit, err := intHeader(headers, HeaderLimit)
	if err != nil {
		return Snapshot{}, err
	}

	reset, err := floatHeader(headers, HeaderReset)
	if err != nil {
		return Snapshot{}, err
	}

	if limit <= 0 {
		return Snapshot{}, fmt.Errorf("%w: %s must be positive (got %d)", ErrInvalidHeader, HeaderLimit, limit)
	}
	if remaining < 0 {
		return Snapshot{}, fmt.Errorf("%w: %s must not be negative (got %d)", ErrInvalidHeader, HeaderRemaining, remaining)
	}
	if math.Abs(reset) >= maxSeconds {
		return Snapshot{}, fmt.Errorf("%w: %s out of range (got %v)", ErrInvalidHeader, HeaderReset, reset)
	}

	return Snapshot{
		Remaining:         remaining,
		Limit:             limit,
		ResetEpochSeconds: reset,
	}, nil
}

// ParseRetryAfter reads the retry-after header as (fractional) seconds.
func ParseRetryAfter(headers http.Header) (time.Duration, error) {
	seconds, err := floatHeader(headers, HeaderRetryAfter)
	if err != nil {
		return 0, err
	}
	if seconds < 0 {
		return 0, fmt.Errorf("%w: %s must not be negative (got %v)", ErrInvalidHeader, HeaderRetryAfter, seconds)
	}
	if seconds >= maxSeconds {
		return 0, fmt.Errorf("%w: %s out of range (got %v)", ErrInvalidHeader, HeaderRetryAfter, seconds)
	}
	return secondsToDuration(seconds), nil
}

func intHeader(headers http.Header, name string) (int, error) {
	raw := strings.TrimSpace(headers.Get(name))
	if raw == "" {
		return 0, fmt.Errorf("%w: %s", ErrMissingHeader, name)
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalidHeader, name, raw)
	}
	return v, nil
}

func floatHeader(headers http.Header, name string) (float64, error) {
	raw := strings.TrimSpace(headers.Get(name))
	if raw == "" {
		return 0, fmt.Errorf("%w: %s", ErrMissingHeader, name)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalidHeader, name, raw)
	}
	return v, nil
}

// secondsToDuration saturates at the largest Duration instead of overflowing.
func secondsToDuration(seconds float64) time.Duration {
	if seconds >= maxSeconds {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(seconds * float64(time.Second))
}
