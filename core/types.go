package core

import "time"

// Config defines the replenishment policy of a bucket
type Config struct {
	CreditsPerSecond float64 // Credits added per second
	MaxBalance       float64 // Maximum credits (burst size)
}

// BucketState represents the current state of a token bucket
type BucketState struct {
	Balance      float64   // Current credits available
	LastRefillAt time.Time // Last time credits were added
}

// ConsumeResult contains the result of a consume attempt
type ConsumeResult struct {
	Allowed   bool    // Whether the credits were granted
	Remaining float64 // Balance after this attempt
	Limit     float64 // Maximum balance
}
