package client

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastRetryConfig(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:       attempts,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func serverErr() error {
	return &APIError{StatusCode: 503, ErrorClass: ErrorClassServer, Message: "503 Server Error: Service Unavailable"}
}

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	if config.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want 5", config.MaxAttempts)
	}
	if config.InitialBackoff != 1*time.Second {
		t.Errorf("InitialBackoff = %v, want 1s", config.InitialBackoff)
	}
	if config.MaxBackoff != 60*time.Second {
		t.Errorf("MaxBackoff = %v, want 60s", config.MaxBackoff)
	}
	if config.BackoffMultiplier != 2.0 {
		t.Errorf("BackoffMultiplier = %v, want 2.0", config.BackoffMultiplier)
	}
}

func TestRetry_Success(t *testing.T) {
	callCount := 0
	err := Retry(context.Background(), fastRetryConfig(3), func(int) error {
		callCount++
		return nil
	})

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("Expected 1 call, got %d", callCount)
	}
}

func TestRetry_SuccessAfterRetry(t *testing.T) {
	var attempts []int
	err := Retry(context.Background(), fastRetryConfig(5), func(attempt int) error {
		attempts = append(attempts, attempt)
		if attempt < 3 {
			return serverErr()
		}
		return nil
	})

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if len(attempts) != 3 || attempts[2] != 3 {
		t.Errorf("attempts = %v, want [1 2 3]", attempts)
	}
}

func TestRetry_MaxAttemptsExhausted(t *testing.T) {
	callCount := 0
	err := Retry(context.Background(), fastRetryConfig(3), func(int) error {
		callCount++
		return &RetriableError{Err: serverErr()}
	})

	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("Expected ErrRetryExhausted, got %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 503 {
		t.Errorf("exhausted error should wrap the last APIError, got %v", err)
	}
	if callCount != 3 {
		t.Errorf("Expected 3 calls (MaxAttempts), got %d", callCount)
	}
}

func TestRetry_FatalErrorNoRetry(t *testing.T) {
	callCount := 0
	testErr := &FatalError{Err: &APIError{StatusCode: 401, ErrorClass: ErrorClassClient, Message: "401 Client Error: Unauthorized"}}

	err := Retry(context.Background(), fastRetryConfig(5), func(int) error {
		callCount++
		return testErr
	})

	if callCount != 1 {
		t.Errorf("Expected 1 call (no retry for fatal errors), got %d", callCount)
	}
	if errors.Is(err, ErrRetryExhausted) {
		t.Error("Should not return ErrRetryExhausted for fatal errors")
	}
	if !errors.Is(err, testErr) {
		t.Errorf("Expected original error, got %v", err)
	}
}

func TestRetry_UnclassifiedErrorNoRetry(t *testing.T) {
	callCount := 0
	err := Retry(context.Background(), fastRetryConfig(5), func(int) error {
		callCount++
		return errors.New("emit failed")
	})

	if err == nil || callCount != 1 {
		t.Errorf("err = %v, calls = %d; want error after 1 call", err, callCount)
	}
}

func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	callCount := 0
	cfg := fastRetryConfig(5)
	cfg.InitialBackoff = time.Second

	err := Retry(ctx, cfg, func(int) error {
		callCount++
		cancel()
		return serverErr()
	})

	if !errors.Is(err, ErrContextCancelled) {
		t.Errorf("Expected ErrContextCancelled, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("Expected 1 call before cancellation, got %d", callCount)
	}
}

func TestRetry_ZeroAttemptsRunsOnce(t *testing.T) {
	callCount := 0
	_ = Retry(context.Background(), RetryConfig{}, func(int) error {
		callCount++
		return serverErr()
	})
	if callCount != 1 {
		t.Errorf("Expected 1 call, got %d", callCount)
	}
}
