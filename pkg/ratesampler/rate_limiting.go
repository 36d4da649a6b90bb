package ratesampler

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultMaxTracesPerSecond is the rate used when none is configured.
const DefaultMaxTracesPerSecond = 10.0

// minBalance guarantees that at least one trace can be sampled even when the
// configured rate is a small fraction.
const minBalance = 1.0

// RateLimitingSampler samples at most maxTracesPerSecond traces. Sampled
// traces follow the burstiness of the service: uniformly distributed requests
// are sampled uniformly, while bursty sub-second traffic can have several
// sequential requests sampled in the same second.
type RateLimitingSampler struct {
	bucket   *TokenBucket
	state    atomic.Pointer[samplerState]
	mu       sync.Mutex // Serialises Update
	logger   *slog.Logger
	observer DecisionObserver
}

// samplerState is replaced as a whole on every effective update so that the
// rate and its tags are always observed together.
type samplerState struct {
	maxTracesPerSecond float64
	tags               Tags
}

var (
	_ Sampler = (*RateLimitingSampler)(nil)
	_ Updater = (*RateLimitingSampler)(nil)
)

// NewRateLimitingSampler creates a sampler allowing maxTracesPerSecond traces
// per second. The bucket ceiling is max(maxTracesPerSecond, 1).
//
// Example:
//
//	sampler, err := NewRateLimitingSampler(DefaultMaxTracesPerSecond,
//	    WithLogger(logger),
//	)
func NewRateLimitingSampler(maxTracesPerSecond float64, opts ...Option) (*RateLimitingSampler, error) {
	if err := validateNonNegative("max_traces_per_second", maxTracesPerSecond); err != nil {
		return nil, err
	}

	o, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}

	bucket, err := NewTokenBucket(maxTracesPerSecond, ceilingFor(maxTracesPerSecond), WithClock(o.clock))
	if err != nil {
		return nil, fmt.Errorf("failed to create token bucket: %w", err)
	}

	s := &RateLimitingSampler{
		bucket:   bucket,
		logger:   o.logger,
		observer: o.observer,
	}
	s.state.Store(&samplerState{
		maxTracesPerSecond: maxTracesPerSecond,
		tags:               newRateLimitingTags(maxTracesPerSecond),
	})
	s.observeRate(maxTracesPerSecond)

	return s, nil
}

// NewFromConfig creates a sampler from the sampler section of a Config.
func NewFromConfig(cfg SamplerConfig, opts ...Option) (*RateLimitingSampler, error) {
	return NewRateLimitingSampler(cfg.Rate(), opts...)
}

// Sample spends one credit. It returns whether the trace is sampled together
// with the tags currently in effect. The operation, trace ID and baggage are
// not used by this policy.
func (s *RateLimitingSampler) Sample(operation string, _ TraceID, _ map[string]string) (bool, Tags) {
	sampled := s.bucket.TryConsume(1.0)
	tags := s.state.Load().tags

	if s.observer != nil {
		s.observer.ObserveDecision(operation, sampled)
	}

	return sampled, tags
}

// Update changes the maximum rate. It returns false, without touching any
// state, when the rate is unchanged.
func (s *RateLimitingSampler) Update(maxTracesPerSecond float64) (bool, error) {
	if err := validateNonNegative("max_traces_per_second", maxTracesPerSecond); err != nil {
		s.logger.Warn("rejected sampler update", "max_traces_per_second", maxTracesPerSecond, "error", err)
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.state.Load()
	if current.maxTracesPerSecond == maxTracesPerSecond {
		return false, nil
	}

	// The bucket switches before the new tags are published, so a reader that
	// sees the new tags also sees the new rate.
	if err := s.bucket.Reconfigure(maxTracesPerSecond, ceilingFor(maxTracesPerSecond)); err != nil {
		return false, fmt.Errorf("failed to reconfigure token bucket: %w", err)
	}
	s.state.Store(&samplerState{
		maxTracesPerSecond: maxTracesPerSecond,
		tags:               newRateLimitingTags(maxTracesPerSecond),
	})
	s.observeRate(maxTracesPerSecond)

	s.logger.Info("sampler rate updated",
		"previous_max_traces_per_second", current.maxTracesPerSecond,
		"max_traces_per_second", maxTracesPerSecond,
	)
	return true, nil
}

// MaxTracesPerSecond returns the configured rate.
func (s *RateLimitingSampler) MaxTracesPerSecond() float64 {
	return s.state.Load().maxTracesPerSecond
}

// RetryAfter returns how long until the next trace can be sampled, 0 if one
// can be sampled now. It returns math.MaxInt64 when no trace will ever be
// sampled again, as with a zero rate and a spent bucket.
func (s *RateLimitingSampler) RetryAfter() time.Duration {
	return s.bucket.RetryAfter(1.0)
}

// Tags returns the tags currently in effect.
func (s *RateLimitingSampler) Tags() Tags {
	return s.state.Load().tags
}

// Equal reports whether other is a RateLimitingSampler with the same rate.
func (s *RateLimitingSampler) Equal(other Sampler) bool {
	o, ok := other.(*RateLimitingSampler)
	if !ok || o == nil {
		return false
	}
	return s.MaxTracesPerSecond() == o.MaxTracesPerSecond()
}

func (s *RateLimitingSampler) String() string {
	return fmt.Sprintf("RateLimitingSampler(maxTracesPerSecond=%v)", s.MaxTracesPerSecond())
}

func (s *RateLimitingSampler) observeRate(maxTracesPerSecond float64) {
	if ro, ok := s.observer.(RateObserver); ok {
		ro.ObserveRate(maxTracesPerSecond)
	}
}

func ceilingFor(maxTracesPerSecond float64) float64 {
	return math.Max(maxTracesPerSecond, minBalance)
}
