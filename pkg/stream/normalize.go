package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Event field names.
const (
	FieldEmittedAt        = "emitted_at"
	FieldEmittedTimestamp = "emitted_timestamp"
)

// ErrNotNumeric is wrapped by NormalizationError when emitted_at is not a number.
var ErrNotNumeric = errors.New("not numeric")

// ErrMissingField is wrapped by NormalizationError when emitted_at is absent.
var ErrMissingField = errors.New("missing field")

// ErrOutOfRange is wrapped by NormalizationError when emitted_at falls outside
// the years 1 to 9999.
var ErrOutOfRange = errors.New("timestamp out of range")

// NormalizationError reports a malformed record.
type NormalizationError struct {
	RecordID string
	Field    string
	Err      error
}

// Error implements the error interface.
func (e *NormalizationError) Error() string {
	if e.RecordID != "" {
		return fmt.Sprintf("normalize record %s: field %s: %v", e.RecordID, e.Field, e.Err)
	}
	return fmt.Sprintf("normalize record: field %s: %v", e.Field, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *NormalizationError) Unwrap() error {
	return e.Err
}

var (
	microsPerSecond = decimal.NewFromInt(1_000_000)

	// 0001-01-01T00:00:00Z and 10000-01-01T00:00:00Z.
	minEpoch = decimal.NewFromInt(-62135596800)
	maxEpoch = decimal.NewFromInt(253402300800)
)

// Normalize derives emitted_timestamp from the epoch seconds in emitted_at,
// which may be a number or a numeric string. The input is not modified.
func Normalize(raw Record) (NormalizedRecord, error) {
	value, ok := raw[FieldEmittedAt]
	if !ok || value == nil {
		return NormalizedRecord{}, &NormalizationError{RecordID: raw.ID(), Field: FieldEmittedAt, Err: ErrMissingField}
	}

	seconds, err := toDecimal(value)
	if err != nil {
		return NormalizedRecord{}, &NormalizationError{RecordID: raw.ID(), Field: FieldEmittedAt, Err: err}
	}
	if rounded := seconds.RoundBank(6); rounded.LessThan(minEpoch) || rounded.GreaterThanOrEqual(maxEpoch) {
		return NormalizedRecord{}, &NormalizationError{
			RecordID: raw.ID(),
			Field:    FieldEmittedAt,
			Err:      fmt.Errorf("%w: %s", ErrOutOfRange, seconds.String()),
		}
	}

	fields := make(Record, len(raw))
	for k, v := range raw {
		fields[k] = v
	}

	return NormalizedRecord{
		DerivedKey:   FieldEmittedTimestamp,
		DerivedValue: FormatEpoch(seconds),
		Fields:       fields,
	}, nil
}

// FormatEpoch renders epoch seconds as an ISO-8601 UTC timestamp with
// microsecond precision, e.g. 2023-11-14T22:13:20.500000+00:00. The
// fractional part is omitted when it rounds to zero microseconds.
func FormatEpoch(seconds decimal.Decimal) string {
	whole := seconds.Floor()
	micros := seconds.Sub(whole).Mul(microsPerSecond).RoundBank(0).IntPart()
	sec := whole.IntPart()
	if micros == 1_000_000 {
		sec++
		micros = 0
	}

	t := time.Unix(sec, micros*int64(time.Microsecond)).UTC()
	out := t.Format("2006-01-02T15:04:05")
	if micros != 0 {
		out += fmt.Sprintf(".%06d", micros)
	}
	return out + "+00:00"
}

func toDecimal(value any) (decimal.Decimal, error) {
	switch v := value.(type) {
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(v))
		if err != nil {
			return decimal.Decimal{}, fmt.Errorf("%w: %q", ErrNotNumeric, v)
		}
		return d, nil
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		if err != nil {
			return decimal.Decimal{}, fmt.Errorf("%w: %q", ErrNotNumeric, v.String())
		}
		return d, nil
	case decimal.Decimal:
		return v, nil
	case float64:
		return decimal.NewFromFloat(v), nil
	case float32:
		return decimal.NewFromFloat32(v), nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	default:
		return decimal.Decimal{}, fmt.Errorf("%w: %T", ErrNotNumeric, value)
	}
}
