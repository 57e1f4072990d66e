package client

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")
)

// ErrorClass represents a classification of request failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors other than 429.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 Too Many Requests.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassContract represents responses that break the upstream's
	// contract, such as missing rate limit headers or undecodable bodies.
	ErrorClassContract ErrorClass = "contract"
)

// ClassForStatus maps an HTTP status to an error class. Non-error statuses
// return "".
func ClassForStatus(statusCode int) ErrorClass {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case statusCode >= 500:
		return ErrorClassServer
	case statusCode >= 400:
		return ErrorClassClient
	default:
		return ""
	}
}

// APIError is a failed FrontApp response. With Message set to the status
// line it reads e.g. "404 Client Error: Not Found for path: /events".
type APIError struct {
	StatusCode int
	ErrorClass ErrorClass
	Message    string
	Path       string
	Err        error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	msg := e.Message
	if e.Path != "" {
		msg += " for path: " + e.Path
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// RetriableError marks a transient failure. The same request should be
// issued again.
type RetriableError struct {
	Err error

	// Wait is the pause the upstream asked for, if any. The extraction loop
	// has already slept it by the time the error is returned.
	Wait time.Duration
}

// Error implements the error interface.
func (e *RetriableError) Error() string {
	return "retriable: " + e.Err.Error()
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *RetriableError) Unwrap() error {
	return e.Err
}

// FatalError marks a failure that will not succeed on retry.
type FatalError struct {
	Err error
}

// Error implements the error interface.
func (e *FatalError) Error() string {
	return "fatal: " + e.Err.Error()
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *FatalError) Unwrap() error {
	return e.Err
}

// IsRetriable reports whether err should be retried. FatalError always wins
// over anything it wraps.
func IsRetriable(err error) bool {
	if err == nil {
		return false
	}

	var fatal *FatalError
	if errors.As(err, &fatal) {
		return false
	}

	var retriable *RetriableError
	if errors.As(err, &retriable) {
		return true
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return shouldRetry(apiErr.ErrorClass)
	}

	return false
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassClient, ErrorClassContract:
		return false
	case ErrorClassServer, ErrorClassRateLimit, ErrorClassNetwork:
		return true
	default:
		return false
	}
}
