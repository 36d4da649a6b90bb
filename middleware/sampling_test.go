package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/ratesampler/pkg/ratesampler"
)

type recordingSampler struct {
	operations []string
	traceIDs   []ratesampler.TraceID
	baggage    []map[string]string
	inner      ratesampler.Sampler
}

func (s *recordingSampler) Sample(operation string, id ratesampler.TraceID, bag map[string]string) (bool, ratesampler.Tags) {
	s.operations = append(s.operations, operation)
	s.traceIDs = append(s.traceIDs, id)
	s.baggage = append(s.baggage, bag)
	return s.inner.Sample(operation, id, bag)
}

func newTestSampler(t *testing.T, rate float64) *recordingSampler {
	t.Helper()
	inner, err := ratesampler.NewRateLimitingSampler(rate)
	require.NoError(t, err)
	return &recordingSampler{inner: inner}
}

func TestSampling_SetsHeadersAndContext(t *testing.T) {
	sampler := newTestSampler(t, 2)
	mw, err := NewSampling(Config{Sampler: sampler})
	require.NoError(t, err)

	var seen Decision
	handler := mw.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ok bool
		seen, ok = DecisionFromContext(r.Context())
		assert.True(t, ok)
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/users", nil)
	req.Header.Set(HeaderTraceparent, "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	req.Header.Set(HeaderBaggage, "tenant=acme")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", w.Header().Get(HeaderTraceID))
	assert.Equal(t, "true", w.Header().Get(HeaderTraceSampled))
	assert.Equal(t, "ratelimiting", w.Header().Get(HeaderSamplerType))
	assert.Equal(t, "2", w.Header().Get(HeaderSamplerParam))

	assert.True(t, seen.Sampled)
	assert.False(t, seen.Minted)
	assert.Equal(t, 2.0, seen.Tags.Param())

	require.Len(t, sampler.operations, 1)
	assert.Equal(t, "GET /users", sampler.operations[0])
	assert.Equal(t, map[string]string{"tenant": "acme"}, sampler.baggage[0])
}

func TestSampling_NeverBlocks(t *testing.T) {
	mw, err := NewSampling(Config{Sampler: newTestSampler(t, 1)})
	require.NoError(t, err)

	served := 0
	handler := mw.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		served++
	}))

	sampled := 0
	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		if w.Header().Get(HeaderTraceSampled) == "true" {
			sampled++
		}
	}

	assert.Equal(t, 5, served)
	assert.Equal(t, 1, sampled)
}

func TestSampling_MintsTraceID(t *testing.T) {
	sampler := newTestSampler(t, 10)
	mw, err := NewSampling(Config{Sampler: sampler})
	require.NoError(t, err)

	first := mw.Decide(httptest.NewRequest(http.MethodGet, "/", nil))
	second := mw.Decide(httptest.NewRequest(http.MethodGet, "/", nil))

	assert.True(t, first.Minted)
	assert.True(t, first.TraceID.IsValid())
	assert.NotEqual(t, first.TraceID, second.TraceID)
}

func TestSampling_CustomOperationAndExtractor(t *testing.T) {
	sampler := newTestSampler(t, 10)
	mw, err := NewSampling(Config{
		Sampler:       sampler,
		Extractor:     ExtractHeader("X-Request-Trace"),
		OperationFunc: func(r *http.Request) string { return "static-op" },
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/orders", nil)
	req.Header.Set("X-Request-Trace", "beef")
	d := mw.Decide(req)

	assert.Equal(t, ratesampler.TraceID{Low: 0xbeef}, d.TraceID)
	assert.Equal(t, []string{"static-op"}, sampler.operations)
}

func TestNewSampling_RequiresSampler(t *testing.T) {
	_, err := NewSampling(Config{})
	assert.ErrorIs(t, err, ratesampler.ErrNilSampler)
}

func TestDecisionFromContext_Missing(t *testing.T) {
	_, ok := DecisionFromContext(httptest.NewRequest(http.MethodGet, "/", nil).Context())
	assert.False(t, ok)
}
