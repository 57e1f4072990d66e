// Package config holds the operator settings for the FrontApp tap and the
// immutable extraction configuration derived from them.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidConfig is returned when a configuration value is out of range.
var ErrInvalidConfig = errors.New("invalid configuration")

// SortOrder is the order in which the upstream returns events.
type SortOrder string

const (
	// SortAsc returns the oldest events first.
	SortAsc SortOrder = "asc"

	// SortDesc returns the newest events first.
	SortDesc SortOrder = "desc"
)

// Bounds for the extraction configuration.
const (
	MinPageSize     = 1
	MaxPageSize     = 15
	MinQuotaPercent = 0
	MaxQuotaPercent = 100
)

// ExtractionConfig is created once per run and never mutated afterwards.
// Use NewExtractionConfig to build one; the zero value is not valid.
type ExtractionConfig struct {
	// QuotaPercent is the ceiling of rate limit usage before proactive throttling.
	QuotaPercent int

	// PageSize is the number of events requested per page.
	PageSize int

	// SortOrder is sent as sort_order on the first page.
	SortOrder SortOrder

	// EventTypes filters events by type (q[types]). Empty means no filter.
	EventTypes []string

	// After and Before are decimal epoch seconds (q[after], q[before]).
	// Empty means unset.
	After  string
	Before string
}

// NewExtractionConfig validates its arguments and returns an ExtractionConfig.
// Out of range values are a configuration error.
func NewExtractionConfig(quotaPercent, pageSize int, sortOrder SortOrder, eventTypes []string, after, before string) (ExtractionConfig, error) {
	if quotaPercent < MinQuotaPercent || quotaPercent > MaxQuotaPercent {
		return ExtractionConfig{}, fmt.Errorf("%w: rate_limit_quota_pct must be between %d and %d (got %d)",
			ErrInvalidConfig, MinQuotaPercent, MaxQuotaPercent, quotaPercent)
	}

	if pageSize < MinPageSize || pageSize > MaxPageSize {
		return ExtractionConfig{}, fmt.Errorf("%w: limit must be between %d and %d (got %d)",
			ErrInvalidConfig, MinPageSize, MaxPageSize, pageSize)
	}

	switch sortOrder {
	case SortAsc, SortDesc:
	default:
		return ExtractionConfig{}, fmt.Errorf("%w: sort_order must be asc or desc (got %q)", ErrInvalidConfig, sortOrder)
	}

	for name, value := range map[string]string{"q_after": after, "q_before": before} {
		if err := validateTimestamp(value); err != nil {
			return ExtractionConfig{}, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, name, err)
		}
	}

	var types []string
	for _, t := range eventTypes {
		if t = strings.TrimSpace(t); t != "" {
			types = append(types, t)
		}
	}

	return ExtractionConfig{
		QuotaPercent: quotaPercent,
		PageSize:     pageSize,
		SortOrder:    sortOrder,
		EventTypes:   types,
		After:        after,
		Before:       before,
	}, nil
}

// validateTimestamp accepts an empty string or decimal epoch seconds.
func validateTimestamp(value string) error {
	if value == "" {
		return nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return fmt.Errorf("not a decimal timestamp: %q", value)
	}
	if d.IsNegative() {
		return fmt.Errorf("timestamp must not be negative: %q", value)
	}
	return nil
}
