package ratesampler

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Registry holds one RateLimitingSampler per service, created lazily with
// the default rate. It is safe for concurrent use.
//
// An observer given with WithObserver receives every service's decisions,
// but only the default rate: per-service rate changes are not reported.
type Registry struct {
	samplers    map[string]*registryEntry
	defaultRate float64
	opts        []Option
	observer    RateObserver
	clock       Clock
	mu          sync.RWMutex
	idleAge     time.Duration // Samplers idle longer than this are cleaned up
}

// decisionsOnly hides RateObserver from the samplers a registry creates.
type decisionsOnly struct {
	DecisionObserver
}

// registryEntry wraps a sampler with metadata for cleanup.
type registryEntry struct {
	sampler      *RateLimitingSampler
	pinned       bool // Rate set per service; default updates skip it
	mu           sync.Mutex
	lastAccessed time.Time
}

// NewRegistry creates a registry whose samplers start at defaultRate.
// idleAge determines how long unused samplers are kept (0 = forever).
// opts are applied to every sampler the registry creates.
func NewRegistry(defaultRate float64, idleAge time.Duration, opts ...Option) (*Registry, error) {
	if err := validateNonNegative("max_traces_per_second", defaultRate); err != nil {
		return nil, err
	}
	if idleAge < 0 {
		return nil, fmt.Errorf("%w: idle age cannot be negative", ErrInvalidConfig)
	}

	o, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}

	r := &Registry{
		samplers:    make(map[string]*registryEntry),
		defaultRate: defaultRate,
		opts:        append([]Option(nil), opts...),
		clock:       o.clock,
		idleAge:     idleAge,
	}
	if o.observer != nil {
		r.opts = append(r.opts, WithObserver(decisionsOnly{o.observer}))
		if ro, ok := o.observer.(RateObserver); ok {
			r.observer = ro
			ro.ObserveRate(defaultRate)
		}
	}
	return r, nil
}

// Get returns the sampler for service, creating it if needed.
func (r *Registry) Get(service string) (*RateLimitingSampler, error) {
	entry, err := r.entry(service)
	if err != nil {
		return nil, err
	}
	return entry.sampler, nil
}

func (r *Registry) entry(service string) (*registryEntry, error) {
	if service == "" {
		return nil, ErrInvalidService
	}

	// Fast path: sampler exists
	r.mu.RLock()
	entry, exists := r.samplers[service]
	r.mu.RUnlock()

	if exists {
		r.touch(entry)
		return entry, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check: another goroutine might have created it
	if entry, exists = r.samplers[service]; exists {
		r.touch(entry)
		return entry, nil
	}

	sampler, err := NewRateLimitingSampler(r.defaultRate, r.opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sampler for %s: %w", service, err)
	}

	entry = &registryEntry{
		sampler:      sampler,
		lastAccessed: r.clock(),
	}
	r.samplers[service] = entry
	return entry, nil
}

func (r *Registry) touch(entry *registryEntry) {
	entry.mu.Lock()
	entry.lastAccessed = r.clock()
	entry.mu.Unlock()
}

// Sample looks up the sampler for service and asks it for a decision.
func (r *Registry) Sample(service, operation string, traceID TraceID, baggage map[string]string) (bool, Tags, error) {
	sampler, err := r.Get(service)
	if err != nil {
		return false, Tags{}, err
	}
	sampled, tags := sampler.Sample(operation, traceID, baggage)
	return sampled, tags, nil
}

// Sampler returns a Sampler for service that resolves the registry entry on
// every call, so it keeps working after Cleanup removes an idle sampler.
// Decisions for an empty service name are always negative.
func (r *Registry) Sampler(service string) Sampler {
	return serviceSampler{registry: r, service: service}
}

type serviceSampler struct {
	registry *Registry
	service  string
}

func (s serviceSampler) Sample(operation string, traceID TraceID, baggage map[string]string) (bool, Tags) {
	sampled, tags, err := s.registry.Sample(s.service, operation, traceID, baggage)
	if err != nil {
		return false, Tags{}
	}
	return sampled, tags
}

func (s serviceSampler) String() string {
	return fmt.Sprintf("RegistrySampler(service=%s)", s.service)
}

// UpdateService sets the rate for one service. The service keeps this rate
// across later default updates.
func (r *Registry) UpdateService(service string, maxTracesPerSecond float64) (bool, error) {
	if err := validateNonNegative("max_traces_per_second", maxTracesPerSecond); err != nil {
		return false, err
	}

	for {
		entry, err := r.entry(service)
		if err != nil {
			return false, err
		}

		// Holding the read lock orders this update against UpdateDefault and
		// Cleanup, which take the write lock.
		r.mu.RLock()
		if r.samplers[service] != entry {
			r.mu.RUnlock()
			continue // Removed by Cleanup in between
		}

		entry.mu.Lock()
		entry.pinned = true
		entry.mu.Unlock()

		changed, err := entry.sampler.Update(maxTracesPerSecond)
		r.mu.RUnlock()
		return changed, err
	}
}

// UpdateDefault changes the rate given to new samplers and to existing ones
// that have no per-service rate. It reports whether anything changed.
func (r *Registry) UpdateDefault(maxTracesPerSecond float64) (bool, error) {
	if err := validateNonNegative("max_traces_per_second", maxTracesPerSecond); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	changed := r.defaultRate != maxTracesPerSecond
	r.defaultRate = maxTracesPerSecond
	if changed && r.observer != nil {
		r.observer.ObserveRate(maxTracesPerSecond)
	}

	for service, entry := range r.samplers {
		entry.mu.Lock()
		pinned := entry.pinned
		entry.mu.Unlock()
		if pinned {
			continue
		}

		updated, err := entry.sampler.Update(maxTracesPerSecond)
		if err != nil {
			return changed, fmt.Errorf("failed to update sampler for %s: %w", service, err)
		}
		changed = changed || updated
	}

	return changed, nil
}

// DefaultRate returns the rate given to new samplers.
func (r *Registry) DefaultRate() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultRate
}

// Overrides returns the rates set with UpdateService, keyed by service.
func (r *Registry) Overrides() map[string]float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	overrides := make(map[string]float64)
	for service, entry := range r.samplers {
		entry.mu.Lock()
		pinned := entry.pinned
		entry.mu.Unlock()
		if pinned {
			overrides[service] = entry.sampler.MaxTracesPerSecond()
		}
	}
	return overrides
}

// Services returns the names of all registered services, sorted.
func (r *Registry) Services() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.samplers))
	for name := range r.samplers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Cleanup removes samplers that haven't been used recently.
// Returns the number of samplers removed.
func (r *Registry) Cleanup() int {
	if r.idleAge == 0 {
		return 0 // Cleanup disabled
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.clock().Add(-r.idleAge)
	removed := 0

	for service, entry := range r.samplers {
		entry.mu.Lock()
		idle := entry.lastAccessed.Before(cutoff) && !entry.pinned
		entry.mu.Unlock()

		if idle {
			delete(r.samplers, service)
			removed++
		}
	}

	return removed
}

// Count returns the number of registered samplers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.samplers)
}

// StartBackgroundCleanup starts a goroutine that periodically removes idle samplers.
// Call the returned function to stop it.
func (r *Registry) StartBackgroundCleanup(interval time.Duration) func() {
	if r.idleAge == 0 || interval <= 0 {
		return func() {}
	}

	ticker := time.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.C:
				r.Cleanup()
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
	}
}
