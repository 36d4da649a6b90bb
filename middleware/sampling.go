package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/yourusername/ratesampler/pkg/ratesampler"
)

// Response headers describing the sampling decision.
const (
	HeaderTraceID      = "X-Trace-Id"
	HeaderTraceSampled = "X-Trace-Sampled"
	HeaderSamplerType  = "X-Sampler-Type"
	HeaderSamplerParam = "X-Sampler-Param"
)

// OperationFunc names the operation a request belongs to
type OperationFunc func(*http.Request) string

// Decision is the sampling outcome for one request.
type Decision struct {
	TraceID ratesampler.TraceID
	Sampled bool
	Tags    ratesampler.Tags
	// Minted is true when the request carried no trace ID and one was generated.
	Minted bool
}

type decisionKey struct{}

// DecisionFromContext returns the decision stored by the sampling middleware.
func DecisionFromContext(ctx context.Context) (Decision, bool) {
	d, ok := ctx.Value(decisionKey{}).(Decision)
	return d, ok
}

// Config for creating the sampling middleware
type Config struct {
	Sampler       ratesampler.Sampler // Required
	Extractor     TraceExtractor      // Optional: defaults to DefaultExtractor
	OperationFunc OperationFunc       // Optional: defaults to "METHOD /path"
	Logger        *slog.Logger        // Optional: defaults to slog.Default
}

// Sampling provides HTTP middleware that makes a sampling decision for every
// request. Requests are never rejected; the decision is exposed through
// response headers and the request context.
type Sampling struct {
	sampler   ratesampler.Sampler
	extractor TraceExtractor
	operation OperationFunc
	logger    *slog.Logger
}

// NewSampling creates a new sampling middleware
func NewSampling(config Config) (*Sampling, error) {
	if config.Sampler == nil {
		return nil, ratesampler.ErrNilSampler
	}
	if config.Extractor == nil {
		config.Extractor = DefaultExtractor()
	}
	if config.OperationFunc == nil {
		config.OperationFunc = defaultOperation
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Sampling{
		sampler:   config.Sampler,
		extractor: config.Extractor,
		operation: config.OperationFunc,
		logger:    config.Logger,
	}, nil
}

// defaultOperation names the operation after method and path
func defaultOperation(r *http.Request) string {
	return r.Method + " " + r.URL.Path
}

// Middleware wraps an http.Handler with a sampling decision
func (s *Sampling) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		decision := s.Decide(r)

		w.Header().Set(HeaderTraceID, decision.TraceID.String())
		w.Header().Set(HeaderTraceSampled, strconv.FormatBool(decision.Sampled))
		w.Header().Set(HeaderSamplerType, decision.Tags.Type())
		w.Header().Set(HeaderSamplerParam, fmt.Sprintf("%v", decision.Tags.Param()))

		ctx := context.WithValue(r.Context(), decisionKey{}, decision)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Decide asks the sampler about r without serving it.
func (s *Sampling) Decide(r *http.Request) Decision {
	id, err := s.extractor(r)
	minted := false
	if err != nil {
		id = newTraceID()
		minted = true
		s.logger.Debug("minted trace id", "trace_id", id.String(), "reason", err)
	}

	operation := s.operation(r)
	sampled, tags := s.sampler.Sample(operation, id, ExtractBaggage(r))

	return Decision{
		TraceID: id,
		Sampled: sampled,
		Tags:    tags,
		Minted:  minted,
	}
}

// newTraceID mints a random 128-bit trace ID
func newTraceID() ratesampler.TraceID {
	return ratesampler.TraceIDFromBytes(uuid.New())
}
