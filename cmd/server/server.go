package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/sync/errgroup"

	"github.com/yourusername/ratesampler/api"
	"github.com/yourusername/ratesampler/metrics"
	"github.com/yourusername/ratesampler/pkg/ratesampler"
	"github.com/yourusername/ratesampler/strategy"
)

const (
	// serviceName is the registry entry used for the server's own requests
	serviceName = "ratesampler"

	defaultRedisKey = "ratesampler:strategy"

	idleSamplerAge  = 10 * time.Minute
	cleanupInterval = time.Minute
	shutdownTimeout = 5 * time.Second
)

// loadConfig reads path, or returns defaults when path is empty. PORT and
// REDIS_ADDR override the file.
func loadConfig(path string) (*ratesampler.Config, error) {
	cfg := ratesampler.NewConfig()
	if path != "" {
		loaded, err := ratesampler.LoadConfigFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if port := os.Getenv("PORT"); port != "" {
		cfg.Server.Addr = ":" + port
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Strategy.Source = ratesampler.SourceRedis
		cfg.Strategy.Redis.Addr = addr
		cfg.Strategy.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Strategy.Redis.Password)
		if cfg.Strategy.Redis.Key == "" {
			cfg.Strategy.Redis.Key = defaultRedisKey
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg ratesampler.LogConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.JSON {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// newSource builds the strategy source selected by cfg. The returned close
// function releases its resources.
func newSource(ctx context.Context, cfg ratesampler.StrategyConfig, rate float64) (strategy.Source, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Source {
	case ratesampler.SourceFile:
		src, err := strategy.NewFileSource(cfg.File)
		if err != nil {
			return nil, nil, err
		}
		return src, noop, nil

	case ratesampler.SourceRedis:
		src, err := strategy.NewRedisSource(strategy.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Key:      cfg.Redis.Key,
		})
		if err != nil {
			return nil, nil, err
		}
		if err := src.Ping(ctx); err != nil {
			src.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		return src, src.Close, nil

	default:
		return strategy.NewStaticSource(rate), noop, nil
	}
}

// app is the wired service.
type app struct {
	registry   *ratesampler.Registry
	metrics    *metrics.Metrics
	refresher  *strategy.Refresher
	tracer     *sdktrace.TracerProvider
	propagator propagation.TextMapPropagator
	handler    http.Handler
}

// newApp wires the service. exporter may be nil, in which case spans are
// sampled but not exported.
func newApp(cfg *ratesampler.Config, source strategy.Source, reg *prometheus.Registry, exporter sdktrace.SpanExporter, logger *slog.Logger) (*app, error) {
	tracker := metrics.NewMetrics()
	collector, err := metrics.NewPrometheusCollector(reg)
	if err != nil {
		return nil, err
	}

	registry, err := ratesampler.NewRegistry(cfg.Sampler.Rate(), idleSamplerAge,
		ratesampler.WithLogger(logger),
		ratesampler.WithObserver(metrics.Multi{tracker, collector}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create registry: %w", err)
	}

	refresher, err := strategy.NewRefresher(source, registry, cfg.Strategy.RefreshInterval, logger)
	if err != nil {
		return nil, err
	}

	otelSampler, err := ratesampler.NewOTelSampler(registry.Sampler(serviceName))
	if err != nil {
		return nil, err
	}
	tracer := newTracerProvider(otelSampler, exporter)
	propagator := propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{})

	// Updates made through the API are stored in the source when it accepts
	// them, so the next refresh does not revert them.
	publisher, _ := source.(strategy.Publisher)

	handler := api.NewHandler(registry, logger)
	strategyHandler := api.NewStrategyHandler(registry, publisher, logger)
	metricsHandler := api.NewMetricsHandler(tracker)

	mux := http.NewServeMux()
	mux.Handle("/sample", traced(tracer, propagator, http.HandlerFunc(handler.Sample)))
	mux.Handle("/strategy", traced(tracer, propagator, strategyHandler))
	mux.Handle("/metrics", metricsHandler)
	mux.Handle("/metrics/prometheus", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/dashboard", dashboardHandler)
	mux.HandleFunc("/", rootHandler)

	return &app{
		registry:   registry,
		metrics:    tracker,
		refresher:  refresher,
		tracer:     tracer,
		propagator: propagator,
		handler:    mux,
	}, nil
}

func run(ctx context.Context, cfg *ratesampler.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	source, closeSource, err := newSource(ctx, cfg.Strategy, cfg.Sampler.Rate())
	if err != nil {
		return err
	}
	defer closeSource()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	exporter, err := newExporter(ctx, cfg.Trace)
	if err != nil {
		return err
	}

	a, err := newApp(cfg, source, reg, exporter, logger)
	if err != nil {
		return err
	}
	otel.SetTracerProvider(a.tracer)
	otel.SetTextMapPropagator(a.propagator)

	stopCleanup := a.registry.StartBackgroundCleanup(cleanupInterval)
	defer stopCleanup()

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           a.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.refresher.Run(gCtx)
	})

	g.Go(func() error {
		logger.Info("listening",
			"addr", cfg.Server.Addr,
			"strategy_source", cfg.Strategy.Source,
			"max_traces_per_second", cfg.Sampler.Rate(),
			"trace_exporter", cfg.Trace.Exporter,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		logger.Info("shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return a.tracer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": serviceName,
	})
}

func rootHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"service": "Rate-limiting trace sampler",
		"endpoints": map[string]string{
			"POST /sample":            "Ask for a sampling decision",
			"GET /strategy":           "View applied strategies",
			"PUT /strategy":           "Update default or per-service rates",
			"GET /metrics":            "View decision metrics (JSON)",
			"GET /metrics/prometheus": "Prometheus scrape endpoint",
			"GET /health":             "Health check",
		},
	})
}
