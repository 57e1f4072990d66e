package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of environment variables that override settings.
// FRONTAPP_API_KEY maps to api_key, FRONTAPP_Q_TYPES to q_types and so on.
const EnvPrefix = "FRONTAPP_"

// DefaultAPIURL is the FrontApp API root.
const DefaultAPIURL = "https://api2.frontapp.com"

// Settings is the full operator-facing configuration surface.
type Settings struct {
	APIKey            string        `koanf:"api_key" validate:"required"`
	APIURL            string        `koanf:"api_url" validate:"required,url"`
	QTypes            []string      `koanf:"q_types"`
	QAfter            string        `koanf:"q_after"`
	QBefore           string        `koanf:"q_before"`
	Limit             int           `koanf:"limit" validate:"min=1,max=15"`
	SortOrder         string        `koanf:"sort_order" validate:"oneof=asc desc"`
	RateLimitQuotaPct int           `koanf:"rate_limit_quota_pct" validate:"min=0,max=100"`
	RequestsPerSecond float64       `koanf:"requests_per_second" validate:"gte=0"`
	RequestTimeout    time.Duration `koanf:"request_timeout" validate:"gt=0"`
	MaxRetries        int           `koanf:"max_retries" validate:"min=1"`
	RedisURL          string        `koanf:"redis_url"`
	LogLevel          string        `koanf:"log_level" validate:"oneof=debug info warn error"`
	LogPretty         bool          `koanf:"log_pretty"`
}

// DefaultSettings returns the settings used when neither the config file nor
// the environment provide a value.
func DefaultSettings() Settings {
	return Settings{
		APIURL:            DefaultAPIURL,
		Limit:             MaxPageSize,
		SortOrder:         string(SortAsc),
		RateLimitQuotaPct: MaxQuotaPercent,
		RequestTimeout:    30 * time.Second,
		MaxRetries:        5,
		LogLevel:          "info",
	}
}

// Load builds Settings from defaults, an optional JSON config file and
// FRONTAPP_* environment variables, in that order of precedence.
func Load(path string) (*Settings, error) {
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
		if err := k.Load(file.Provider(path), json.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envValue), nil)
	if err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	settings := DefaultSettings()
	if err := k.Unmarshal("", &settings); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := settings.Validate(); err != nil {
		return nil, err
	}

	return &settings, nil
}

// envValue maps FRONTAPP_Q_TYPES=a,b to q_types=[a b]. Other variables are
// passed through as strings.
func envValue(name, value string) (string, any) {
	key := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	if key == "q_types" {
		if strings.TrimSpace(value) == "" {
			return key, []string{}
		}
		return key, strings.Split(value, ",")
	}
	return key, value
}

// Validate checks struct constraints and the extraction subset.
func (s *Settings) Validate() error {
	if err := validator.New().Struct(s); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if _, err := s.Extraction(); err != nil {
		return err
	}
	return nil
}

// Extraction returns the immutable extraction configuration for a run.
func (s *Settings) Extraction() (ExtractionConfig, error) {
	return NewExtractionConfig(
		s.RateLimitQuotaPct,
		s.Limit,
		SortOrder(s.SortOrder),
		s.QTypes,
		s.QAfter,
		s.QBefore,
	)
}

// BaseURL returns the API root without a trailing slash.
func (s *Settings) BaseURL() string {
	return strings.TrimRight(s.APIURL, "/")
}
