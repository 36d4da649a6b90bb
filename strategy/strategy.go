// Package strategy supplies sampling rates to running samplers. A Source
// fetches a Strategies document; a Refresher applies it to a Target on a
// timer or whenever the source reports a change.
package strategy

import (
	"context"
	"errors"
	"fmt"

	"github.com/yourusername/ratesampler/pkg/ratesampler"
)

// TypeRateLimiting is the only strategy type this module applies.
const TypeRateLimiting = ratesampler.SamplerTypeRateLimiting

var (
	// ErrUnsupportedStrategy is returned for strategy types other than ratelimiting
	ErrUnsupportedStrategy = errors.New("unsupported sampling strategy")

	// ErrNoStrategy is returned when a source has nothing to offer
	ErrNoStrategy = errors.New("no sampling strategy available")
)

// Strategy is a sampling strategy. Type is "ratelimiting" and Param is the
// maximum number of traces per second.
type Strategy struct {
	Type  string  `json:"type" yaml:"type"`
	Param float64 `json:"param" yaml:"param"`
}

// ServiceStrategy is a strategy for one service.
type ServiceStrategy struct {
	Service  string `json:"service" yaml:"service"`
	Strategy `yaml:",inline"`
}

// Strategies holds a default strategy and service specific overrides.
type Strategies struct {
	Default  *Strategy         `json:"default_strategy,omitempty" yaml:"default_strategy,omitempty"`
	Services []ServiceStrategy `json:"service_strategies,omitempty" yaml:"service_strategies,omitempty"`
}

// Validate checks that the strategy can be applied by a rate-limiting sampler.
func (s Strategy) Validate() error {
	if s.Type != TypeRateLimiting {
		return fmt.Errorf("%w: %q", ErrUnsupportedStrategy, s.Type)
	}
	if s.Param < 0 {
		return &ratesampler.InvalidConfigurationError{Field: "max_traces_per_second", Value: s.Param}
	}
	return nil
}

// Source fetches the current strategies.
type Source interface {
	Fetch(ctx context.Context) (*Strategies, error)
}

// Watcher is implemented by sources that can announce changes. Watch blocks
// until ctx is done, calling notify after each change.
type Watcher interface {
	Watch(ctx context.Context, notify func()) error
}

// Publisher is implemented by sources that accept a new document. Later
// Fetch calls return what was published.
type Publisher interface {
	Publish(ctx context.Context, strategies *Strategies) error
}

// Target receives rate updates.
type Target interface {
	UpdateDefault(maxTracesPerSecond float64) (bool, error)
	UpdateService(service string, maxTracesPerSecond float64) (bool, error)
}

var _ Target = (*ratesampler.Registry)(nil)

// SamplerTarget applies strategies to a single sampler owned by Service.
// A matching service strategy takes precedence over the default.
// It is not safe for concurrent use; a Refresher serialises its calls.
type SamplerTarget struct {
	Service string
	Sampler ratesampler.Updater

	pinned bool
}

// UpdateDefault implements Target. It is ignored once a service strategy
// for Service has been applied.
func (t *SamplerTarget) UpdateDefault(maxTracesPerSecond float64) (bool, error) {
	if t.pinned {
		return false, nil
	}
	return t.Sampler.Update(maxTracesPerSecond)
}

// UpdateService implements Target.
func (t *SamplerTarget) UpdateService(service string, maxTracesPerSecond float64) (bool, error) {
	if service != t.Service {
		return false, nil
	}
	t.pinned = true
	return t.Sampler.Update(maxTracesPerSecond)
}
