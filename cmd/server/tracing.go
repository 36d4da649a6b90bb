package main

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/yourusername/ratesampler/middleware"
	"github.com/yourusername/ratesampler/pkg/ratesampler"
)

// newExporter builds the span exporter selected by cfg. It returns nil for
// "none".
func newExporter(ctx context.Context, cfg ratesampler.TraceConfig) (sdktrace.SpanExporter, error) {
	var (
		exporter sdktrace.SpanExporter
		err      error
	)

	switch cfg.Exporter {
	case ratesampler.ExporterNone, "":
		return nil, nil
	case ratesampler.ExporterStdout:
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	case ratesampler.ExporterOTLP:
		var opts []otlptracegrpc.Option
		if cfg.OTLPEndpoint != "" {
			opts = append(opts, otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint))
		}
		if cfg.OTLPInsecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exporter, err = otlptracegrpc.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("%w: unknown trace exporter %q", ratesampler.ErrInvalidConfig, cfg.Exporter)
	}

	if err != nil {
		return nil, fmt.Errorf("create %s exporter: %w", cfg.Exporter, err)
	}
	return exporter, nil
}

// newTracerProvider samples root spans with sampler and follows the parent
// decision for requests that arrive with trace context.
func newTracerProvider(sampler sdktrace.Sampler, exporter sdktrace.SpanExporter) *sdktrace.TracerProvider {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(sdktrace.ParentBased(sampler)),
	}
	if exporter != nil {
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}
	return sdktrace.NewTracerProvider(opts...)
}

// traced starts a server span for every request, continuing any trace
// context the caller sent. The span's trace ID and sampling flag are echoed
// in the response headers.
func traced(tp trace.TracerProvider, propagator propagation.TextMapPropagator, next http.Handler) http.Handler {
	tracer := tp.Tracer(serviceName)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

		ctx, span := tracer.Start(ctx, r.Method+" "+r.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer),
		)
		defer span.End()

		sc := span.SpanContext()
		w.Header().Set(middleware.HeaderTraceID, sc.TraceID().String())
		w.Header().Set(middleware.HeaderTraceSampled, strconv.FormatBool(sc.IsSampled()))

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
