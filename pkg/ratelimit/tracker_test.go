package ratelimit

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestTracker_WithoutRedis(t *testing.T) {
	logger := zerolog.New(&bytes.Buffer{}).Level(zerolog.Disabled)
	tracker := NewTracker(nil, logger)
	ctx := context.Background()

	s := Snapshot{Remaining: 10, Limit: 50, ResetEpochSeconds: 1700000060}
	if err := tracker.Observe(ctx, s, time.Now()); err != nil {
		t.Fatalf("Observe() error = %v", err)
	}

	_, err := tracker.GetState(ctx)
	if !errors.Is(err, ErrNoState) {
		t.Errorf("GetState() error = %v, want ErrNoState", err)
	}
}

func TestTracker_RecordVerdictLogsWaits(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewTracker(nil, zerolog.New(&buf))

	tracker.RecordVerdict(Verdict{
		Outcome:      ThrottleThenAccept,
		Message:      "approximately 80.00% of the rate limit has been used",
		ThrottleWait: 40 * time.Second,
	})
	tracker.RecordVerdict(Verdict{Outcome: Retriable, Message: "429", RetryAfter: 5 * time.Second})
	tracker.RecordVerdict(Verdict{Outcome: Fatal, Message: "401 Client Error: Unauthorized"})

	out := buf.String()
	for _, want := range []string{"sleeping until the window resets", "Rate limit exceeded", "Unauthorized"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}

func TestTracker_RecordVerdictAcceptIsQuiet(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewTracker(nil, zerolog.New(&buf).Level(zerolog.InfoLevel))

	tracker.RecordVerdict(Verdict{Outcome: Accept})

	if buf.Len() != 0 {
		t.Errorf("accept verdict should not log at info, got %s", buf.String())
	}
}
