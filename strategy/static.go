package strategy

import (
	"context"
	"sync"
)

// StaticSource serves strategies held in memory. Set or Publish replaces them.
type StaticSource struct {
	mu         sync.RWMutex
	strategies *Strategies
}

var (
	_ Source    = (*StaticSource)(nil)
	_ Publisher = (*StaticSource)(nil)
)

// NewStaticSource returns a source serving a default ratelimiting strategy.
func NewStaticSource(maxTracesPerSecond float64) *StaticSource {
	return &StaticSource{
		strategies: &Strategies{
			Default: &Strategy{Type: TypeRateLimiting, Param: maxTracesPerSecond},
		},
	}
}

// Fetch implements Source.
func (s *StaticSource) Fetch(context.Context) (*Strategies, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.strategies == nil {
		return nil, ErrNoStrategy
	}
	return s.strategies, nil
}

// Set replaces the served strategies.
func (s *StaticSource) Set(strategies *Strategies) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.strategies = strategies
}

// Publish implements Publisher.
func (s *StaticSource) Publish(_ context.Context, strategies *Strategies) error {
	s.Set(strategies)
	return nil
}
