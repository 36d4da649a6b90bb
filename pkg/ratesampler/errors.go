package ratesampler

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInvalidConfig is returned when configuration is invalid
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrNilSampler is returned when an adapter is built around a nil sampler
	ErrNilSampler = errors.New("sampler cannot be nil")
)

// InvalidConfigurationError reports a rate or ceiling that cannot be used,
// such as a negative max_traces_per_second. It unwraps to ErrInvalidConfig.
type InvalidConfigurationError struct {
	Field string
	Value float64
}

func (e *InvalidConfigurationError) Error() string {
	if math.IsNaN(e.Value) || math.IsInf(e.Value, 0) {
		return fmt.Sprintf("%v: %s must be a finite number, got %v", ErrInvalidConfig, e.Field, e.Value)
	}
	return fmt.Sprintf("%v: %s must not be negative, got %v", ErrInvalidConfig, e.Field, e.Value)
}

func (e *InvalidConfigurationError) Unwrap() error {
	return ErrInvalidConfig
}

// validateNonNegative returns an *InvalidConfigurationError unless v is a
// finite number >= 0.
func validateNonNegative(field string, v float64) error {
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return &InvalidConfigurationError{Field: field, Value: v}
	}
	return nil
}

// ErrInvalidService is returned when a service name is empty
var ErrInvalidService = errors.New("service name cannot be empty")
