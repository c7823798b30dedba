package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Result is the outcome of loading one configuration value.
// FallbackApplied is true when the environment held a value that failed
// parsing or validation and the default was used instead.
//
// Example:
//
//	result := LoadEnvDuration("FETCH_TIMEOUT", 30*time.Second, ValidatePositiveDuration)
//	if result.FallbackApplied {
//	    for _, warning := range result.Warnings {
//	        slog.Warn("configuration fallback", slog.String("warning", warning))
//	    }
//	}
//	timeout := result.Value
type Result[T any] struct {
	Value           T
	Warnings        []string
	FallbackApplied bool
}

func fallback[T any](envKey, raw string, err error, defaultValue T) Result[T] {
	return Result[T]{
		Value: defaultValue,
		Warnings: []string{fmt.Sprintf(
			"Invalid %s='%s': %v, falling back to default '%v'",
			envKey, raw, err, defaultValue,
		)},
		FallbackApplied: true,
	}
}

// LoadEnvString returns the environment value or defaultValue when unset.
// No validation is performed.
func LoadEnvString(envKey, defaultValue string) string {
	value := os.Getenv(envKey)
	if value == "" {
		return defaultValue
	}
	return value
}

// LoadEnvWithFallback loads a string and validates it.
//
// Loading behavior:
//  1. Not set or empty: default value, no warning
//  2. Set and valid (or validator is nil): environment value
//  3. Set and invalid: default value plus a warning
//
// It never returns an error.
func LoadEnvWithFallback(envKey, defaultValue string, validator func(string) error) Result[string] {
	value := os.Getenv(envKey)
	if value == "" {
		return Result[string]{Value: defaultValue}
	}
	if validator != nil {
		if err := validator(value); err != nil {
			return fallback(envKey, value, err, defaultValue)
		}
	}
	return Result[string]{Value: value}
}

// LoadEnvDuration loads a Go duration string ("30s", "1h30m").
// Parse and validation failures fall back to defaultValue with a warning.
func LoadEnvDuration(envKey string, defaultValue time.Duration, validator func(time.Duration) error) Result[time.Duration] {
	raw := os.Getenv(envKey)
	if raw == "" {
		return Result[time.Duration]{Value: defaultValue}
	}

	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fallback(envKey, raw, err, defaultValue)
	}
	if validator != nil {
		if err := validator(value); err != nil {
			return fallback(envKey, raw, err, defaultValue)
		}
	}
	return Result[time.Duration]{Value: value}
}

// LoadEnvInt loads a base-10 integer. Surrounding whitespace and decimals
// are rejected, matching strconv.Atoi.
func LoadEnvInt(envKey string, defaultValue int, validator func(int) error) Result[int] {
	raw := os.Getenv(envKey)
	if raw == "" {
		return Result[int]{Value: defaultValue}
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback(envKey, raw, err, defaultValue)
	}
	if validator != nil {
		if err := validator(value); err != nil {
			return fallback(envKey, raw, err, defaultValue)
		}
	}
	return Result[int]{Value: value}
}

// LoadEnvBool accepts the values understood by strconv.ParseBool.
func LoadEnvBool(envKey string, defaultValue bool) Result[bool] {
	raw := os.Getenv(envKey)
	if raw == "" {
		return Result[bool]{Value: defaultValue}
	}

	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback(envKey, raw, err, defaultValue)
	}
	return Result[bool]{Value: value}
}

// LoadEnvList loads a comma-separated list. Items are trimmed and empty
// items dropped; a value with no items left falls back to defaultValue.
//
// Example:
//
//	// RATE_LIMITED_HOSTS="reddit.com, old.reddit.com"
//	hosts := LoadEnvList("RATE_LIMITED_HOSTS", []string{"reddit.com"}).Value
//	// ["reddit.com", "old.reddit.com"]
func LoadEnvList(envKey string, defaultValue []string) Result[[]string] {
	raw := os.Getenv(envKey)
	if raw == "" {
		return Result[[]string]{Value: defaultValue}
	}

	parts := strings.Split(raw, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	if len(items) == 0 {
		return fallback(envKey, raw, fmt.Errorf("list is empty"), defaultValue)
	}
	return Result[[]string]{Value: items}
}

// Loader applies the fail-open loaders for one component, logging every
// fallback and recording it in ConfigMetrics.
//
// Example:
//
//	l := config.NewLoader(logger, metrics)
//	cfg.Timeout = l.Duration("fetch_timeout", "FETCH_TIMEOUT", cfg.Timeout, config.ValidatePositiveDuration)
//	l.Finish()
type Loader struct {
	logger   *slog.Logger
	metrics  *ConfigMetrics
	fallback bool
}

// NewLoader returns a Loader. Both arguments may be nil.
func NewLoader(logger *slog.Logger, metrics *ConfigMetrics) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger, metrics: metrics}
}

func (l *Loader) observe(field string, applied bool, warnings []string) {
	if !applied {
		return
	}
	l.fallback = true
	if l.metrics != nil {
		l.metrics.RecordValidationError(field)
		l.metrics.RecordFallback(field, "default")
	}
	for _, warning := range warnings {
		l.logger.Warn("Configuration fallback applied",
			slog.String("field", field),
			slog.String("warning", warning))
	}
}

// String loads a validated string.
func (l *Loader) String(field, envKey, def string, validator func(string) error) string {
	r := LoadEnvWithFallback(envKey, def, validator)
	l.observe(field, r.FallbackApplied, r.Warnings)
	return r.Value
}

// Duration loads a validated duration.
func (l *Loader) Duration(field, envKey string, def time.Duration, validator func(time.Duration) error) time.Duration {
	r := LoadEnvDuration(envKey, def, validator)
	l.observe(field, r.FallbackApplied, r.Warnings)
	return r.Value
}

// Int loads a validated integer.
func (l *Loader) Int(field, envKey string, def int, validator func(int) error) int {
	r := LoadEnvInt(envKey, def, validator)
	l.observe(field, r.FallbackApplied, r.Warnings)
	return r.Value
}

// Bool loads a boolean.
func (l *Loader) Bool(field, envKey string, def bool) bool {
	r := LoadEnvBool(envKey, def)
	l.observe(field, r.FallbackApplied, r.Warnings)
	return r.Value
}

// List loads a comma-separated list.
func (l *Loader) List(field, envKey string, def []string) []string {
	r := LoadEnvList(envKey, def)
	l.observe(field, r.FallbackApplied, r.Warnings)
	return r.Value
}

// FallbackApplied reports whether any value fell back to its default.
func (l *Loader) FallbackApplied() bool {
	return l.fallback
}

// Finish publishes the aggregate fallback state and load timestamp.
func (l *Loader) Finish() {
	if l.metrics == nil {
		return
	}
	l.metrics.SetFallbackActive("", l.fallback)
	l.metrics.RecordLoadTimestamp()
}
