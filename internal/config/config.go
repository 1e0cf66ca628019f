// Package config loads the server configuration from the environment.
//
// Loading happens in three steps:
//  1. A .env file is loaded via godotenv if present. Existing variables win.
//  2. envconfig populates Config from its struct tags.
//  3. validator checks the populated struct.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ZoneLocation selects the forecast city's own UTC offset for day bucketing.
const ZoneLocation = "location"

// Config holds every setting the server reads at startup.
type Config struct {
	Port string `envconfig:"PORT" default:"8080" validate:"required"`

	APIKey  string `envconfig:"OPENWEATHER_API_KEY" validate:"required"`
	BaseURL string `envconfig:"OPENWEATHER_BASE_URL" default:"https://api.openweathermap.org/data/2.5" validate:"required,url"`
	Units   string `envconfig:"OPENWEATHER_UNITS" default:"metric" validate:"oneof=metric imperial standard"`

	IPLookupURL  string `envconfig:"IP_LOOKUP_URL" default:"https://api.ipify.org" validate:"required,url"`
	GeoLookupURL string `envconfig:"GEO_LOOKUP_URL" default:"http://ip-api.com/json" validate:"required,url"`

	UpstreamTimeout   time.Duration `envconfig:"UPSTREAM_TIMEOUT" default:"10s" validate:"gt=0"`
	UpstreamDelay     time.Duration `envconfig:"UPSTREAM_REQUEST_DELAY" default:"200ms" validate:"gte=0"`
	UpstreamRateLimit float64       `envconfig:"UPSTREAM_RATE_LIMIT" default:"0" validate:"gte=0"`
	UpstreamRateBurst int           `envconfig:"UPSTREAM_RATE_BURST" default:"1" validate:"gte=1"`

	ForecastTimezone string `envconfig:"FORECAST_TIMEZONE" default:"Local" validate:"required"`

	HistoryBackend string `envconfig:"HISTORY_BACKEND" default:"file" validate:"oneof=file redis postgres"`
	HistoryFile    string `envconfig:"HISTORY_FILE" default:"history.json" validate:"required_if=HistoryBackend file"`
	HistoryLimit   int    `envconfig:"HISTORY_LIMIT" default:"10" validate:"gte=1"`
	RedisURL       string `envconfig:"REDIS_URL" validate:"required_if=HistoryBackend redis"`
	DatabaseURL    string `envconfig:"DATABASE_URL" validate:"required_if=HistoryBackend postgres"`
	MigrationsDir  string `envconfig:"MIGRATIONS_DIR" default:"migrations"`

	RateLimitPerMinute int    `envconfig:"RATE_LIMIT_PER_MINUTE" default:"60" validate:"gte=1"`
	TrustProxyHeaders  bool   `envconfig:"TRUST_PROXY_HEADERS" default:"false"`
	LogLevel           string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
}

// ErrorType classifies configuration failures.
type ErrorType string

const (
	// ErrParsing indicates a value could not be converted to its field type.
	ErrParsing ErrorType = "PARSING_FAILED"
	// ErrValidation indicates the populated struct broke a validation rule.
	ErrValidation ErrorType = "VALIDATION_FAILED"
)

// Error is returned by Load for any configuration failure.
type Error struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Load reads and validates the configuration.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &Error{Type: ErrParsing, Message: "failed to process environment configuration", Err: err}
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, &Error{Type: ErrValidation, Message: "configuration validation failed", Err: err}
	}

	if _, _, err := cfg.ForecastZone(); err != nil {
		return nil, &Error{Type: ErrValidation, Message: "invalid FORECAST_TIMEZONE", Err: err}
	}

	return &cfg, nil
}

// SlogLevel maps LogLevel to a slog.Level. Unknown values map to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ForecastZone resolves FORECAST_TIMEZONE. The bool result reports whether the
// forecast city's own offset should be used instead, in which case the
// returned location is the fallback for responses that carry no offset.
func (c *Config) ForecastZone() (*time.Location, bool, error) {
	switch c.ForecastTimezone {
	case "", "Local":
		return time.Local, false, nil
	case ZoneLocation:
		return time.Local, true, nil
	}
	loc, err := time.LoadLocation(c.ForecastTimezone)
	if err != nil {
		return nil, false, fmt.Errorf("loading zone %q: %w", c.ForecastTimezone, err)
	}
	return loc, false, nil
}
