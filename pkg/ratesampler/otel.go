package ratesampler

import (
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// OTelSampler adapts a Sampler to the OpenTelemetry SDK so it can be passed
// to sdktrace.WithSampler, usually wrapped in sdktrace.ParentBased so that
// only root spans spend credit.
//
// Sampled spans carry the sampler tags as attributes.
type OTelSampler struct {
	sampler     Sampler
	description string
}

var _ sdktrace.Sampler = (*OTelSampler)(nil)

// NewOTelSampler wraps sampler for use with an SDK TracerProvider.
func NewOTelSampler(sampler Sampler) (*OTelSampler, error) {
	if sampler == nil {
		return nil, ErrNilSampler
	}

	description := "RateSampler"
	if s, ok := sampler.(interface{ String() string }); ok {
		description = s.String()
	}

	return &OTelSampler{
		sampler:     sampler,
		description: description,
	}, nil
}

// ShouldSample implements sdktrace.Sampler.
func (s *OTelSampler) ShouldSample(p sdktrace.SamplingParameters) sdktrace.SamplingResult {
	psc := trace.SpanContextFromContext(p.ParentContext)

	sampled, tags := s.sampler.Sample(p.Name, TraceIDFromBytes(p.TraceID), baggageMembers(p))
	if !sampled {
		return sdktrace.SamplingResult{
			Decision:   sdktrace.Drop,
			Tracestate: psc.TraceState(),
		}
	}

	return sdktrace.SamplingResult{
		Decision:   sdktrace.RecordAndSample,
		Attributes: tags.Attributes(),
		Tracestate: psc.TraceState(),
	}
}

// Description implements sdktrace.Sampler.
func (s *OTelSampler) Description() string {
	return s.description
}

func baggageMembers(p sdktrace.SamplingParameters) map[string]string {
	if p.ParentContext == nil {
		return nil
	}
	members := baggage.FromContext(p.ParentContext).Members()
	if len(members) == 0 {
		return nil
	}

	out := make(map[string]string, len(members))
	for _, m := range members {
		out[m.Key()] = m.Value()
	}
	return out
}

// Attributes converts the tags to OpenTelemetry attributes, sorted by key.
func (t Tags) Attributes() []attribute.KeyValue {
	keys := make([]string, 0, len(t.m))
	for k := range t.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	attrs := make([]attribute.KeyValue, 0, len(keys))
	for _, k := range keys {
		switch val := t.m[k].(type) {
		case string:
			attrs = append(attrs, attribute.String(k, val))
		case float64:
			attrs = append(attrs, attribute.Float64(k, val))
		case int64:
			attrs = append(attrs, attribute.Int64(k, val))
		case bool:
			attrs = append(attrs, attribute.Bool(k, val))
		}
	}
	return attrs
}
