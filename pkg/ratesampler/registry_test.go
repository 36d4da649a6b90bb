package ratesampler

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestNewRegistry(t *testing.T) {
	tests := []struct {
		name        string
		defaultRate float64
		idleAge     time.Duration
		wantErr     bool
	}{
		{name: "valid registry", defaultRate: 10, idleAge: time.Hour},
		{name: "cleanup disabled", defaultRate: 10, idleAge: 0},
		{name: "zero rate", defaultRate: 0, idleAge: time.Hour},
		{name: "negative rate", defaultRate: -1, idleAge: time.Hour, wantErr: true},
		{name: "negative idle age", defaultRate: 1, idleAge: -time.Second, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry, err := NewRegistry(tt.defaultRate, tt.idleAge)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidConfig) {
					t.Errorf("NewRegistry() error = %v, want %v", err, ErrInvalidConfig)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewRegistry() unexpected error: %v", err)
			}
			if registry.Count() != 0 {
				t.Errorf("registry.Count() = %d, want 0", registry.Count())
			}
		})
	}
}

func TestRegistry_Get(t *testing.T) {
	registry, err := NewRegistry(5, time.Hour)
	if err != nil {
		t.Fatalf("NewRegistry() failed: %v", err)
	}

	first, err := registry.Get("checkout")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if first.MaxTracesPerSecond() != 5 {
		t.Errorf("MaxTracesPerSecond() = %f, want 5", first.MaxTracesPerSecond())
	}

	again, err := registry.Get("checkout")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if again != first {
		t.Error("Get() should return the same sampler for the same service")
	}

	if _, err := registry.Get("payments"); err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if registry.Count() != 2 {
		t.Errorf("registry.Count() = %d, want 2", registry.Count())
	}

	if _, err := registry.Get(""); !errors.Is(err, ErrInvalidService) {
		t.Errorf("Get(\"\") error = %v, want %v", err, ErrInvalidService)
	}
}

func TestRegistry_SampleIsolatedPerService(t *testing.T) {
	clock := newFakeClock()
	registry, err := NewRegistry(1, time.Hour, WithClock(clock.Now))
	if err != nil {
		t.Fatalf("NewRegistry() failed: %v", err)
	}

	for _, service := range []string{"a", "b"} {
		sampled, tags, err := registry.Sample(service, "op", TraceID{}, nil)
		if err != nil {
			t.Fatalf("Sample() failed: %v", err)
		}
		if !sampled {
			t.Errorf("first sample for %s should succeed", service)
		}
		if tags.Param() != 1 {
			t.Errorf("tags.Param() = %f, want 1", tags.Param())
		}
	}

	if sampled, _, _ := registry.Sample("a", "op", TraceID{}, nil); sampled {
		t.Error("second immediate sample for a should fail")
	}
}

func TestRegistry_UpdateServiceAndDefault(t *testing.T) {
	registry, err := NewRegistry(10, time.Hour)
	if err != nil {
		t.Fatalf("NewRegistry() failed: %v", err)
	}

	changed, err := registry.UpdateService("checkout", 2)
	if err != nil || !changed {
		t.Fatalf("UpdateService() = %v, %v; want true, nil", changed, err)
	}
	if _, err := registry.Get("search"); err != nil {
		t.Fatalf("Get() failed: %v", err)
	}

	changed, err = registry.UpdateDefault(4)
	if err != nil || !changed {
		t.Fatalf("UpdateDefault() = %v, %v; want true, nil", changed, err)
	}

	checkout, _ := registry.Get("checkout")
	search, _ := registry.Get("search")
	fresh, _ := registry.Get("new-service")

	if checkout.MaxTracesPerSecond() != 2 {
		t.Errorf("checkout rate = %f, want 2 (pinned)", checkout.MaxTracesPerSecond())
	}
	if search.MaxTracesPerSecond() != 4 {
		t.Errorf("search rate = %f, want 4 (default)", search.MaxTracesPerSecond())
	}
	if fresh.MaxTracesPerSecond() != 4 {
		t.Errorf("new-service rate = %f, want 4 (default)", fresh.MaxTracesPerSecond())
	}
	if registry.DefaultRate() != 4 {
		t.Errorf("DefaultRate() = %f, want 4", registry.DefaultRate())
	}

	changed, err = registry.UpdateDefault(4)
	if err != nil || changed {
		t.Errorf("UpdateDefault() same rate = %v, %v; want false, nil", changed, err)
	}

	if _, err := registry.UpdateService("checkout", -1); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("UpdateService(-1) error = %v, want %v", err, ErrInvalidConfig)
	}
	if _, err := registry.UpdateDefault(-1); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("UpdateDefault(-1) error = %v, want %v", err, ErrInvalidConfig)
	}
}

func TestRegistry_Services(t *testing.T) {
	registry, _ := NewRegistry(1, 0)
	for _, s := range []string{"zeta", "alpha", "mid"} {
		registry.Get(s)
	}

	got := registry.Services()
	want := []string{"alpha", "mid", "zeta"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("Services() = %v, want %v", got, want)
	}
}

func TestRegistry_Overrides(t *testing.T) {
	registry, _ := NewRegistry(5, 0)
	registry.Get("default-only")
	registry.UpdateService("checkout", 2)
	registry.UpdateService("search", 0)
	registry.UpdateDefault(7)

	got := registry.Overrides()
	if len(got) != 2 || got["checkout"] != 2 || got["search"] != 0 {
		t.Errorf("Overrides() = %v, want map[checkout:2 search:0]", got)
	}
	if _, ok := got["default-only"]; ok {
		t.Error("Overrides() should not include services on the default rate")
	}
}

func TestRegistry_ObserverSeesDefaultRateOnly(t *testing.T) {
	obs := &recordingObserver{}
	registry, err := NewRegistry(5, 0, WithObserver(obs))
	if err != nil {
		t.Fatalf("NewRegistry() failed: %v", err)
	}

	registry.Sample("checkout", "op", TraceID{}, nil)
	registry.UpdateService("checkout", 1)
	registry.Get("search")
	registry.UpdateDefault(8)
	registry.UpdateDefault(8)
	registry.UpdateService("search", 2)

	obs.mu.Lock()
	defer obs.mu.Unlock()
	if fmt.Sprint(obs.rates) != fmt.Sprint([]float64{5, 8}) {
		t.Errorf("observed rates = %v, want [5 8]", obs.rates)
	}
	if obs.decisions[true] != 1 {
		t.Errorf("sampled decisions = %d, want 1", obs.decisions[true])
	}
}

func TestRegistry_Cleanup(t *testing.T) {
	clock := newFakeClock()
	registry, err := NewRegistry(1, time.Minute, WithClock(clock.Now))
	if err != nil {
		t.Fatalf("NewRegistry() failed: %v", err)
	}

	registry.Get("idle")
	registry.UpdateService("pinned", 3)
	clock.Advance(2 * time.Minute)
	registry.Get("recent")

	if removed := registry.Cleanup(); removed != 1 {
		t.Errorf("Cleanup() removed %d, want 1", removed)
	}

	got := registry.Services()
	if fmt.Sprint(got) != "[pinned recent]" {
		t.Errorf("Services() after cleanup = %v, want [pinned recent]", got)
	}
}

func TestRegistry_SamplerSurvivesCleanup(t *testing.T) {
	clock := newFakeClock()
	registry, _ := NewRegistry(1, time.Minute, WithClock(clock.Now))

	sampler := registry.Sampler("checkout")
	if sampled, _ := sampler.Sample("op", TraceID{Low: 1}, nil); !sampled {
		t.Fatal("first decision should be sampled")
	}
	if sampled, _ := sampler.Sample("op", TraceID{Low: 2}, nil); sampled {
		t.Fatal("second decision should be rejected")
	}

	clock.Advance(2 * time.Minute)
	if removed := registry.Cleanup(); removed != 1 {
		t.Fatalf("Cleanup() removed %d, want 1", removed)
	}

	// The entry is recreated on demand with a full bucket and the current default
	registry.UpdateDefault(4)
	sampled, tags := sampler.Sample("op", TraceID{Low: 3}, nil)
	if !sampled {
		t.Error("decision after cleanup should be sampled")
	}
	if tags.Param() != 4 {
		t.Errorf("tags param = %v, want 4", tags.Param())
	}

	if sampled, _ := registry.Sampler("").Sample("op", TraceID{Low: 4}, nil); sampled {
		t.Error("empty service should never be sampled")
	}
	if got := fmt.Sprint(sampler); got != "RegistrySampler(service=checkout)" {
		t.Errorf("String() = %q", got)
	}
}

func TestRegistry_Cleanup_Disabled(t *testing.T) {
	clock := newFakeClock()
	registry, _ := NewRegistry(1, 0, WithClock(clock.Now))

	registry.Get("a")
	clock.Advance(24 * time.Hour)

	if removed := registry.Cleanup(); removed != 0 {
		t.Errorf("Cleanup() removed %d, want 0 (disabled)", removed)
	}
}

func TestRegistry_BackgroundCleanup(t *testing.T) {
	registry, _ := NewRegistry(1, 10*time.Millisecond)
	registry.Get("a")

	stop := registry.StartBackgroundCleanup(5 * time.Millisecond)
	defer stop()

	deadline := time.Now().Add(2 * time.Second)
	for registry.Count() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if registry.Count() != 0 {
		t.Errorf("registry.Count() = %d, want 0 after background cleanup", registry.Count())
	}

	// Stopping twice must not panic
	stop()
}

func TestRegistry_Concurrent(t *testing.T) {
	registry, _ := NewRegistry(100, time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			service := fmt.Sprintf("svc-%d", id%10)
			for j := 0; j < 100; j++ {
				if _, _, err := registry.Sample(service, "op", TraceID{}, nil); err != nil {
					t.Errorf("Sample() failed: %v", err)
					return
				}
				if j%25 == 0 {
					registry.UpdateService(service, float64(j))
					registry.UpdateDefault(float64(id))
				}
			}
		}(i)
	}
	wg.Wait()

	if registry.Count() != 10 {
		t.Errorf("registry.Count() = %d, want 10", registry.Count())
	}
}
