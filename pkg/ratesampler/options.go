package ratesampler

import (
	"fmt"
	"log/slog"
	"time"
)

// Clock returns the current time. The default is time.Now, whose readings
// carry a monotonic component, so elapsed time is immune to wall clock jumps.
type Clock func() time.Time

// DecisionObserver is notified of every sampling decision.
type DecisionObserver interface {
	ObserveDecision(operation string, sampled bool)
}

// RateObserver is optionally implemented by a DecisionObserver that also
// wants to know the configured rate whenever it changes.
type RateObserver interface {
	ObserveRate(maxTracesPerSecond float64)
}

// Option is a functional option for configuring a TokenBucket or a
// RateLimitingSampler.
type Option func(*options) error

type options struct {
	clock    Clock
	logger   *slog.Logger
	observer DecisionObserver
}

func defaultOptions() *options {
	return &options{
		clock:  time.Now,
		logger: slog.Default(),
	}
}

func applyOptions(opts []Option) (*options, error) {
	o := defaultOptions()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	return o, nil
}

// WithClock sets the time source. Tests use it to drive elapsed time.
func WithClock(clock Clock) Option {
	return func(o *options) error {
		if clock == nil {
			return fmt.Errorf("%w: clock cannot be nil", ErrInvalidConfig)
		}
		o.clock = clock
		return nil
	}
}

// WithLogger sets the logger used for reconfiguration events.
// If not provided, slog.Default() is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) error {
		if logger == nil {
			return fmt.Errorf("%w: logger cannot be nil", ErrInvalidConfig)
		}
		o.logger = logger
		return nil
	}
}

// WithObserver registers an observer for sampling decisions, typically one
// of the collectors in the metrics package.
func WithObserver(observer DecisionObserver) Option {
	return func(o *options) error {
		if observer == nil {
			return fmt.Errorf("%w: observer cannot be nil", ErrInvalidConfig)
		}
		o.observer = observer
		return nil
	}
}
