// Package ratesampler provides a rate-limiting trace sampler for distributed
// tracing clients.
//
// A RateLimitingSampler decides, once per trace start, whether the trace is
// recorded. It admits at most max_traces_per_second traces on average while
// tolerating short bursts, using a token bucket whose credit balance refills
// continuously with elapsed time.
//
// # Quick Start
//
//	sampler, err := ratesampler.NewRateLimitingSampler(10) // 10 traces/sec
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	sampled, tags := sampler.Sample("GET /orders", traceID, nil)
//	// tags: {"sampler.type": "ratelimiting", "sampler.param": 10.0}
//
// # Reconfiguration
//
// Update changes the rate at runtime. Credit accrued at the old rate is kept
// and the balance is clamped to the new ceiling. Updating to the current rate
// is a no-op and returns false:
//
//	changed, err := sampler.Update(2.5)
//
// A negative rate is rejected with an *InvalidConfigurationError, which
// matches ErrInvalidConfig under errors.Is.
//
// # Burst Allowance
//
// The bucket ceiling is max(max_traces_per_second, 1). A freshly created
// sampler therefore always admits at least one trace, even at a rate of 0
// or a small fraction such as 0.1.
//
// # Configuration
//
// Load configuration from a YAML file:
//
//	cfg, err := ratesampler.LoadConfigFromFile("ratesampler.yaml")
//	sampler, err := ratesampler.NewFromConfig(cfg.Sampler)
//
// Example YAML configuration:
//
//	sampler:
//	  max_traces_per_second: 10
//	strategy:
//	  source: file
//	  file: strategies.yaml
//	  refresh_interval: 1m
//
// # OpenTelemetry
//
// NewOTelSampler adapts any Sampler to sdktrace.Sampler:
//
//	otelSampler, _ := ratesampler.NewOTelSampler(sampler)
//	tp := sdktrace.NewTracerProvider(
//	    sdktrace.WithSampler(sdktrace.ParentBased(otelSampler)),
//	)
//
// # Concurrency
//
// All operations are safe for concurrent use:
//   - TokenBucket guards refill, debit and reconfigure with one sync.Mutex
//   - RateLimitingSampler publishes its rate and tags through an atomic
//     pointer, so Sample never blocks on Update
//   - Tags values are immutable once built
package ratesampler
