package ratesampler

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
)

// Tag keys and values reported with every decision. They must match what
// tracing backends expect.
const (
	SamplerTypeTagKey  = "sampler.type"
	SamplerParamTagKey = "sampler.param"

	SamplerTypeRateLimiting = "ratelimiting"
)

// Sampler decides whether a trace is recorded. The tracer calls Sample once
// per trace start; the returned tags describe the decision.
type Sampler interface {
	Sample(operation string, traceID TraceID, baggage map[string]string) (bool, Tags)
}

// Updater is implemented by samplers that can be reconfigured by a
// configuration reload path.
type Updater interface {
	Update(maxTracesPerSecond float64) (bool, error)
}

// Tags is an immutable set of sampler tags. A Tags value is built once and
// never modified, so it can be shared between goroutines without locking.
type Tags struct {
	m map[string]any
}

func newRateLimitingTags(maxTracesPerSecond float64) Tags {
	return Tags{m: map[string]any{
		SamplerTypeTagKey:  SamplerTypeRateLimiting,
		SamplerParamTagKey: maxTracesPerSecond,
	}}
}

// Get returns the value stored under key.
func (t Tags) Get(key string) (any, bool) {
	v, ok := t.m[key]
	return v, ok
}

// Type returns the sampler.type tag.
func (t Tags) Type() string {
	s, _ := t.m[SamplerTypeTagKey].(string)
	return s
}

// Param returns the sampler.param tag.
func (t Tags) Param() float64 {
	f, _ := t.m[SamplerParamTagKey].(float64)
	return f
}

// Len returns the number of tags.
func (t Tags) Len() int {
	return len(t.m)
}

// ToMap returns a copy of the tags that the caller may modify.
func (t Tags) ToMap() map[string]any {
	out := make(map[string]any, len(t.m))
	for k, v := range t.m {
		out[k] = v
	}
	return out
}

// TraceID is an opaque 128-bit trace identifier. The zero value means the
// identifier is unknown.
type TraceID struct {
	High, Low uint64
}

// TraceIDFromBytes builds a TraceID from its 16-byte big-endian form, the
// layout used by W3C trace context and OpenTelemetry.
func TraceIDFromBytes(b [16]byte) TraceID {
	return TraceID{
		High: binary.BigEndian.Uint64(b[:8]),
		Low:  binary.BigEndian.Uint64(b[8:]),
	}
}

// ParseTraceID parses a hex encoded trace ID of up to 32 characters.
// Shorter inputs are treated as 64-bit IDs, as sent by older clients.
func ParseTraceID(s string) (TraceID, error) {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > 32 {
		return TraceID{}, fmt.Errorf("trace id %q must be 1 to 32 hex characters", s)
	}
	if len(s)%2 == 1 {
		s = "0" + s
	}

	raw, err := hex.DecodeString(s)
	if err != nil {
		return TraceID{}, fmt.Errorf("trace id %q is not hex: %w", s, err)
	}

	var b [16]byte
	copy(b[16-len(raw):], raw)
	return TraceIDFromBytes(b), nil
}

// Bytes returns the 16-byte big-endian form of the ID.
func (t TraceID) Bytes() [16]byte {
	var b [16]byte
	binary.BigEndian.PutUint64(b[:8], t.High)
	binary.BigEndian.PutUint64(b[8:], t.Low)
	return b
}

// IsValid reports whether the trace ID is non-zero.
func (t TraceID) IsValid() bool {
	return t.High != 0 || t.Low != 0
}

// String renders the ID as 32 lowercase hex characters, or 16 when the high
// half is zero.
func (t TraceID) String() string {
	if t.High == 0 {
		return fmt.Sprintf("%016x", t.Low)
	}
	return fmt.Sprintf("%016x%016x", t.High, t.Low)
}
