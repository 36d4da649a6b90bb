package ratesampler

import (
	"github.com/yourusername/ratesampler/middleware"
	"github.com/yourusername/ratesampler/pkg/ratesampler"
)

// Re-export main types for convenience
type (
	Sampler             = ratesampler.Sampler
	RateLimitingSampler = ratesampler.RateLimitingSampler
	TokenBucket         = ratesampler.TokenBucket
	Tags                = ratesampler.Tags
	TraceID             = ratesampler.TraceID
	Registry            = ratesampler.Registry
	Option              = ratesampler.Option
	MiddlewareConfig    = middleware.Config
)

// DefaultMaxTracesPerSecond is the rate used when none is configured.
const DefaultMaxTracesPerSecond = ratesampler.DefaultMaxTracesPerSecond

var (
	// NewRateLimitingSampler creates a new rate-limiting sampler
	NewRateLimitingSampler = ratesampler.NewRateLimitingSampler

	// NewTokenBucket creates a new token bucket
	NewTokenBucket = ratesampler.NewTokenBucket

	// NewRegistry creates a new per-service sampler registry
	NewRegistry = ratesampler.NewRegistry

	// NewSampling creates a new sampling middleware
	NewSampling = middleware.NewSampling
)
