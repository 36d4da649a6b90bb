package core

import (
	"math"
	"time"
)

// NewState returns a full bucket, granting the initial burst allowance.
func NewState(cfg Config, now time.Time) BucketState {
	return BucketState{
		Balance:      cfg.MaxBalance,
		LastRefillAt: now,
	}
}

// Refill adds credits for the time elapsed since the last refill and moves
// LastRefillAt to now. A clock that appears to go backwards adds nothing.
func Refill(cfg Config, state BucketState, now time.Time) BucketState {
	elapsed := now.Sub(state.LastRefillAt).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}

	balance := math.Min(cfg.MaxBalance, state.Balance+elapsed*cfg.CreditsPerSecond)
	if balance < 0 {
		balance = 0
	}

	return BucketState{
		Balance:      balance,
		LastRefillAt: now,
	}
}

// Consume refills the bucket and then debits cost if the balance covers it.
// Nothing is debited when the request is refused.
func Consume(cfg Config, state BucketState, now time.Time, cost float64) (BucketState, ConsumeResult) {
	state = Refill(cfg, state, now)

	if state.Balance >= cost {
		state.Balance -= cost
		return state, ConsumeResult{
			Allowed:   true,
			Remaining: state.Balance,
			Limit:     cfg.MaxBalance,
		}
	}

	return state, ConsumeResult{
		Allowed:   false,
		Remaining: state.Balance,
		Limit:     cfg.MaxBalance,
	}
}

// Reconfigure accrues credit at the old rate up to now, then switches to next
// and clamps the balance into [0, next.MaxBalance].
func Reconfigure(prev, next Config, state BucketState, now time.Time) BucketState {
	state = Refill(prev, state, now)
	if state.Balance > next.MaxBalance {
		state.Balance = next.MaxBalance
	}
	if state.Balance < 0 {
		state.Balance = 0
	}
	return state
}

// RetryAfter returns how long until cost credits are available. It is zero
// when they are available now, and math.MaxInt64 when the bucket can never
// hold cost credits (zero rate or a ceiling below cost) or the wait does not
// fit in a time.Duration.
func RetryAfter(cfg Config, state BucketState, now time.Time, cost float64) time.Duration {
	state = Refill(cfg, state, now)
	if state.Balance >= cost {
		return 0
	}
	if cfg.CreditsPerSecond <= 0 || cfg.MaxBalance < cost {
		return time.Duration(math.MaxInt64)
	}

	secondsNeeded := (cost - state.Balance) / cfg.CreditsPerSecond
	nanos := math.Ceil(secondsNeeded * float64(time.Second))
	if nanos >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(nanos)
}
