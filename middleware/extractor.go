package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/yourusername/ratesampler/pkg/ratesampler"
)

// Trace propagation headers.
const (
	HeaderTraceparent = "traceparent"
	HeaderUberTraceID = "uber-trace-id"
	HeaderBaggage     = "baggage"

	// uberBaggagePrefix marks single baggage items in Jaeger propagation.
	uberBaggagePrefix = "uberctx-"
)

var (
	// ErrNoTraceContext is returned when a request carries no usable trace ID
	ErrNoTraceContext = errors.New("no trace context")

	// ErrInvalidExtractor is returned for unknown extractor configurations
	ErrInvalidExtractor = errors.New("invalid trace extractor")
)

// TraceExtractor extracts the incoming trace ID from an HTTP request.
type TraceExtractor func(*http.Request) (ratesampler.TraceID, error)

// ExtractTraceparent returns a TraceExtractor reading the W3C traceparent
// header through the OpenTelemetry trace context propagator.
func ExtractTraceparent() TraceExtractor {
	var propagator propagation.TraceContext
	return func(r *http.Request) (ratesampler.TraceID, error) {
		if r.Header.Get(HeaderTraceparent) == "" {
			return ratesampler.TraceID{}, fmt.Errorf("%w: %s header not found", ErrNoTraceContext, HeaderTraceparent)
		}

		ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		sc := trace.SpanContextFromContext(ctx)
		if !sc.IsValid() {
			return ratesampler.TraceID{}, fmt.Errorf("%w: malformed %s header", ErrNoTraceContext, HeaderTraceparent)
		}

		return ratesampler.TraceIDFromBytes(sc.TraceID()), nil
	}
}

// ExtractUberTraceID returns a TraceExtractor reading the Jaeger
// uber-trace-id header: traceid:spanid:parentid:flags. OpenTelemetry ships
// no propagator for it in the core module, so it is parsed here.
func ExtractUberTraceID() TraceExtractor {
	return func(r *http.Request) (ratesampler.TraceID, error) {
		value := r.Header.Get(HeaderUberTraceID)
		if value == "" {
			return ratesampler.TraceID{}, fmt.Errorf("%w: %s header not found", ErrNoTraceContext, HeaderUberTraceID)
		}

		// Some clients URL-encode the colons
		if unescaped, err := url.QueryUnescape(value); err == nil {
			value = unescaped
		}

		parts := strings.Split(value, ":")
		if len(parts) != 4 {
			return ratesampler.TraceID{}, fmt.Errorf("%w: malformed %s header", ErrNoTraceContext, HeaderUberTraceID)
		}

		return parseValid(parts[0])
	}
}

// ExtractHeader returns a TraceExtractor that reads a hex trace ID from a
// single header, e.g. ExtractHeader("X-B3-TraceId").
func ExtractHeader(headerName string) TraceExtractor {
	return func(r *http.Request) (ratesampler.TraceID, error) {
		value := r.Header.Get(headerName)
		if value == "" {
			return ratesampler.TraceID{}, fmt.Errorf("%w: header %s not found or empty", ErrNoTraceContext, headerName)
		}
		return parseValid(value)
	}
}

// ExtractComposite returns a TraceExtractor that tries multiple extractors in order.
// It returns the trace ID from the first extractor that succeeds.
//
// Example:
//
//	extractor := ExtractComposite(
//	    ExtractTraceparent(),
//	    ExtractUberTraceID(),  // Fallback for Jaeger clients
//	)
func ExtractComposite(extractors ...TraceExtractor) TraceExtractor {
	if len(extractors) == 0 {
		return func(r *http.Request) (ratesampler.TraceID, error) {
			return ratesampler.TraceID{}, fmt.Errorf("%w: no extractors provided", ErrNoTraceContext)
		}
	}

	return func(r *http.Request) (ratesampler.TraceID, error) {
		var errs []error
		for _, extractor := range extractors {
			id, err := extractor(r)
			if err == nil {
				return id, nil
			}
			errs = append(errs, err)
		}
		return ratesampler.TraceID{}, errors.Join(errs...)
	}
}

// DefaultExtractor tries traceparent first, then uber-trace-id.
func DefaultExtractor() TraceExtractor {
	return ExtractComposite(ExtractTraceparent(), ExtractUberTraceID())
}

// ParseExtractorConfig creates a TraceExtractor from a configuration string.
// Supported formats:
// - "traceparent" -> ExtractTraceparent()
// - "uber" -> ExtractUberTraceID()
// - "header:X-B3-TraceId" -> ExtractHeader("X-B3-TraceId")
// - "default" -> DefaultExtractor()
//
// Several formats can be combined with commas and are tried in order.
func ParseExtractorConfig(config string) (TraceExtractor, error) {
	var extractors []TraceExtractor
	for _, item := range strings.Split(config, ",") {
		item = strings.TrimSpace(item)
		parts := strings.SplitN(item, ":", 2)

		switch parts[0] {
		case "traceparent":
			extractors = append(extractors, ExtractTraceparent())
		case "uber":
			extractors = append(extractors, ExtractUberTraceID())
		case "default":
			extractors = append(extractors, DefaultExtractor())
		case "header":
			if len(parts) != 2 || parts[1] == "" {
				return nil, fmt.Errorf("%w: header extractor requires format 'header:HeaderName'", ErrInvalidExtractor)
			}
			extractors = append(extractors, ExtractHeader(parts[1]))
		default:
			return nil, fmt.Errorf("%w: unknown extractor type: %q", ErrInvalidExtractor, parts[0])
		}
	}

	if len(extractors) == 1 {
		return extractors[0], nil
	}
	return ExtractComposite(extractors...), nil
}

// ExtractBaggage collects baggage from the W3C baggage header and from
// Jaeger uberctx-* headers. Malformed baggage is ignored.
func ExtractBaggage(r *http.Request) map[string]string {
	items := make(map[string]string)

	if header := r.Header.Values(HeaderBaggage); len(header) > 0 {
		if bag, err := baggage.Parse(strings.Join(header, ",")); err == nil {
			for _, m := range bag.Members() {
				items[m.Key()] = m.Value()
			}
		}
	}

	for name, values := range r.Header {
		lower := strings.ToLower(name)
		if !strings.HasPrefix(lower, uberBaggagePrefix) || len(values) == 0 {
			continue
		}
		key := strings.TrimPrefix(lower, uberBaggagePrefix)
		if key == "" {
			continue
		}
		value, err := url.QueryUnescape(values[0])
		if err != nil {
			value = values[0]
		}
		items[key] = value
	}

	if len(items) == 0 {
		return nil
	}
	return items
}

func parseValid(s string) (ratesampler.TraceID, error) {
	id, err := ratesampler.ParseTraceID(s)
	if err != nil {
		return ratesampler.TraceID{}, fmt.Errorf("%w: %v", ErrNoTraceContext, err)
	}
	if !id.IsValid() {
		return ratesampler.TraceID{}, fmt.Errorf("%w: all-zero trace ID", ErrNoTraceContext)
	}
	return id, nil
}
