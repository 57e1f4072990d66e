package ratelimit

import (
	"fmt"
	"math"
	"net/http"
	"time"
)

// ThrottleSafetyMargin is added to the time until reset when throttling proactively.
const ThrottleSafetyMargin = 10 * time.Second

// Outcome is the class of a classified response.
type Outcome int

const (
	// Accept means proceed without waiting.
	Accept Outcome = iota

	// ThrottleThenAccept means the response is usable but the caller must
	// pause before issuing the next request.
	ThrottleThenAccept

	// Retriable means the page failed transiently and must be re-requested.
	Retriable

	// Fatal means the request will never succeed unmodified.
	Fatal
)

// String implements fmt.Stringer.
func (o Outcome) String() string {
	switch o {
	case Accept:
		return "accept"
	case ThrottleThenAccept:
		return "throttle"
	case Retriable:
		return "retriable"
	case Fatal:
		return "fatal"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Verdict is the result of classifying one response.
//
// ThrottleWait and RetryAfter are computed by independent checks. Both may be
// set on the same verdict and the caller waits for each of them.
type Verdict struct {
	Outcome Outcome
	Message string

	// ThrottleWait is the proactive pause requested on a 200 over quota.
	ThrottleWait time.Duration

	// RetryAfter is the pause requested by a 429.
	RetryAfter time.Duration

	// Snapshot is the parsed rate limit state, nil when the headers were
	// absent or not consulted.
	Snapshot *Snapshot
}

// Waits returns the non-zero waits in the order they must be performed.
func (v Verdict) Waits() []time.Duration {
	var waits []time.Duration
	if v.ThrottleWait > 0 {
		waits = append(waits, v.ThrottleWait)
	}
	if v.RetryAfter > 0 {
		waits = append(waits, v.RetryAfter)
	}
	return waits
}

// Classify decides what to do with a response. It performs no I/O.
//
// The checks run in order: 5xx is retriable, any other 4xx except 429 is
// fatal, a 200 above quotaPercent throttles for |reset - now| + 10s, and a 429
// is retriable after retry-after seconds. Rate limit headers are required on
// 200 and 429; missing or malformed ones are fatal.
func Classify(statusCode int, headers http.Header, now time.Time, quotaPercent int) Verdict {
	if statusCode >= http.StatusInternalServerError {
		return Verdict{Outcome: Retriable, Message: StatusMessage(statusCode)}
	}

	if statusCode >= http.StatusBadRequest && statusCode != http.StatusTooManyRequests {
		return Verdict{Outcome: Fatal, Message: StatusMessage(statusCode)}
	}

	verdict := Verdict{Outcome: Accept}

	snapshot, err := ParseSnapshot(headers)
	switch {
	case err == nil:
		verdict.Snapshot = &snapshot
	case statusCode == http.StatusOK || statusCode == http.StatusTooManyRequests:
		return Verdict{
			Outcome: Fatal,
			Message: fmt.Sprintf("%s: %v", StatusMessage(statusCode), err),
		}
	}

	if statusCode == http.StatusOK && verdict.Snapshot != nil &&
		snapshot.UsedPercent() > float64(quotaPercent) {
		seconds := math.Abs(snapshot.ResetEpochSeconds-float64(now.Unix())) + ThrottleSafetyMargin.Seconds()
		verdict.Outcome = ThrottleThenAccept
		verdict.ThrottleWait = secondsToDuration(seconds)
		verdict.Message = fmt.Sprintf(
			"approximately %.2f%% of the rate limit has been used (quota %d%%, %d of %d requests)",
			snapshot.UsedPercent(), quotaPercent, snapshot.Used(), snapshot.Limit)
	}

	if statusCode == http.StatusTooManyRequests {
		retryAfter, err := ParseRetryAfter(headers)
		if err != nil {
			return Verdict{
				Outcome:  Fatal,
				Message:  fmt.Sprintf("%s: %v", StatusMessage(statusCode), err),
				Snapshot: verdict.Snapshot,
			}
		}
		verdict.Outcome = Retriable
		verdict.RetryAfter = retryAfter
		verdict.Message = StatusMessage(statusCode)
	}

	return verdict
}

// StatusMessage formats a status code the way error messages report it,
// e.g. "503 Server Error: Service Unavailable". Non-error statuses render as
// "200 OK".
func StatusMessage(statusCode int) string {
	reason := http.StatusText(statusCode)
	if reason == "" {
		reason = "Unknown Status"
	}
	if statusCode < http.StatusBadRequest {
		return fmt.Sprintf("%d %s", statusCode, reason)
	}
	kind := "Client"
	if statusCode >= http.StatusInternalServerError {
		kind = "Server"
	}
	return fmt.Sprintf("%d %s Error: %s", statusCode, kind, reason)
}
