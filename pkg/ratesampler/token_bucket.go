package ratesampler

import (
	"sync"
	"time"

	"github.com/yourusername/ratesampler/core"
)

// TokenBucket holds a floating point credit balance that is replenished
// continuously at CreditsPerSecond and capped at MaxBalance.
// It implements the token bucket algorithm with lazy refill.
type TokenBucket struct {
	mu     sync.Mutex       // Protects config and state
	config core.Config      // Replenishment rate and ceiling
	state  core.BucketState // Balance and last refill time
	clock  Clock
}

// NewTokenBucket creates a token bucket that starts full, granting an
// initial burst of maxBalance credits.
//
// Example: NewTokenBucket(10, 10) creates a bucket that:
// - Allows bursts up to 10 credits
// - Refills at 10 credits/second
func NewTokenBucket(creditsPerSecond, maxBalance float64, opts ...Option) (*TokenBucket, error) {
	if err := validateNonNegative("credits_per_second", creditsPerSecond); err != nil {
		return nil, err
	}
	if err := validateNonNegative("max_balance", maxBalance); err != nil {
		return nil, err
	}

	o, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}

	cfg := core.Config{
		CreditsPerSecond: creditsPerSecond,
		MaxBalance:       maxBalance,
	}
	return &TokenBucket{
		config: cfg,
		state:  core.NewState(cfg, o.clock()),
		clock:  o.clock,
	}, nil
}

// TryConsume refills the bucket and, if at least cost credits are available,
// debits them and returns true. Refill and debit happen in one critical
// section, so concurrent callers never spend the same credit twice.
func (b *TokenBucket) TryConsume(cost float64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	var result core.ConsumeResult
	b.state, result = core.Consume(b.config, b.state, b.clock(), cost)
	return result.Allowed
}

// Reconfigure changes the rate and ceiling. Credit accrued at the old rate
// up to now is kept, then the balance is clamped to the new ceiling.
func (b *TokenBucket) Reconfigure(creditsPerSecond, maxBalance float64) error {
	if err := validateNonNegative("credits_per_second", creditsPerSecond); err != nil {
		return err
	}
	if err := validateNonNegative("max_balance", maxBalance); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	next := core.Config{
		CreditsPerSecond: creditsPerSecond,
		MaxBalance:       maxBalance,
	}
	b.state = core.Reconfigure(b.config, next, b.state, b.clock())
	b.config = next
	return nil
}

// Balance returns the number of credits currently available.
// This is a snapshot and may change immediately due to concurrent access.
func (b *TokenBucket) Balance() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = core.Refill(b.config, b.state, b.clock())
	return b.state.Balance
}

// CreditsPerSecond returns the replenishment rate.
func (b *TokenBucket) CreditsPerSecond() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.config.CreditsPerSecond
}

// MaxBalance returns the burst ceiling.
func (b *TokenBucket) MaxBalance() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.config.MaxBalance
}

// RetryAfter calculates how long to wait before cost credits are available.
// Returns 0 if they are available immediately.
func (b *TokenBucket) RetryAfter(cost float64) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	return core.RetryAfter(b.config, b.state, b.clock(), cost)
}
