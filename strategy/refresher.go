package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Refresher fetches strategies from a Source and applies them to a Target.
// It is the configuration reload path for running samplers.
type Refresher struct {
	source   Source
	target   Target
	interval time.Duration
	logger   *slog.Logger

	mu sync.Mutex // Serialises Refresh
}

// NewRefresher creates a refresher polling source every interval.
// An interval of 0 disables polling; Refresh can still be called directly.
func NewRefresher(source Source, target Target, interval time.Duration, logger *slog.Logger) (*Refresher, error) {
	if source == nil {
		return nil, fmt.Errorf("strategy source cannot be nil")
	}
	if target == nil {
		return nil, fmt.Errorf("strategy target cannot be nil")
	}
	if interval < 0 {
		return nil, fmt.Errorf("refresh interval cannot be negative")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Refresher{
		source:   source,
		target:   target,
		interval: interval,
		logger:   logger,
	}, nil
}

// Refresh fetches the strategies once and applies them. Strategies that
// cannot be applied are skipped and reported in the returned error; the
// rest are still applied.
func (r *Refresher) Refresh(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	strategies, err := r.source.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("fetch strategies: %w", err)
	}

	var errs []error

	if d := strategies.Default; d != nil {
		if err := r.apply("", *d); err != nil {
			errs = append(errs, fmt.Errorf("default strategy: %w", err))
		}
	}

	for _, s := range strategies.Services {
		if s.Service == "" {
			errs = append(errs, fmt.Errorf("service strategy without service name"))
			continue
		}
		if err := r.apply(s.Service, s.Strategy); err != nil {
			errs = append(errs, fmt.Errorf("strategy for %s: %w", s.Service, err))
		}
	}

	return errors.Join(errs...)
}

func (r *Refresher) apply(service string, s Strategy) error {
	if err := s.Validate(); err != nil {
		return err
	}

	var changed bool
	var err error
	if service == "" {
		changed, err = r.target.UpdateDefault(s.Param)
	} else {
		changed, err = r.target.UpdateService(service, s.Param)
	}
	if err != nil {
		return err
	}

	if changed {
		r.logger.Info("applied sampling strategy",
			"service", service,
			"max_traces_per_second", s.Param,
		)
	}
	return nil
}

// Run refreshes immediately, then on every tick and on every change reported
// by a Watcher source, until ctx is done. Refresh failures are logged and do
// not stop the loop.
func (r *Refresher) Run(ctx context.Context) error {
	r.refreshAndLog(ctx)

	var tick <-chan time.Time
	if r.interval > 0 {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	changes := make(chan struct{}, 1)
	watchErr := make(chan error, 1)
	if w, ok := r.source.(Watcher); ok {
		go func() {
			watchErr <- w.Watch(ctx, func() {
				select {
				case changes <- struct{}{}:
				default: // A refresh is already pending
				}
			})
		}()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
			r.refreshAndLog(ctx)
		case <-changes:
			r.refreshAndLog(ctx)
		case err := <-watchErr:
			if err != nil {
				r.logger.Warn("strategy watcher stopped", "error", err)
			}
			watchErr = nil
		}
	}
}

func (r *Refresher) refreshAndLog(ctx context.Context) {
	if err := r.Refresh(ctx); err != nil {
		r.logger.Warn("strategy refresh failed", "error", err)
	}
}
