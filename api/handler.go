package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/yourusername/ratesampler/pkg/ratesampler"
)

// Handler handles sampling decision requests
type Handler struct {
	registry *ratesampler.Registry
	logger   *slog.Logger
}

// NewHandler creates a new API handler
func NewHandler(registry *ratesampler.Registry, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		registry: registry,
		logger:   logger,
	}
}

// SampleRequest represents the incoming sampling decision request
type SampleRequest struct {
	Service   string            `json:"service"`            // Required: service owning the trace
	Operation string            `json:"operation"`          // Optional: operation name, ignored by the decision
	TraceID   string            `json:"trace_id,omitempty"` // Optional: hex trace ID
	Baggage   map[string]string `json:"baggage,omitempty"`  // Optional: baggage items
}

// SampleResponse represents the sampling decision response
type SampleResponse struct {
	Sampled bool           `json:"sampled"`
	TraceID string         `json:"trace_id,omitempty"`
	Tags    map[string]any `json:"tags"`
	// RetryAfterMs is set when the trace was not sampled: milliseconds until
	// the service can sample again, or -1 if it never will at the current rate.
	RetryAfterMs int64 `json:"retry_after_ms,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Sample handles POST /sample requests
func (h *Handler) Sample(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		sendError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only POST requests are allowed")
		return
	}

	// Parse request
	var req SampleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	// Validate service
	if req.Service == "" {
		sendError(w, http.StatusBadRequest, "missing_service", "service is required")
		return
	}

	var traceID ratesampler.TraceID
	if req.TraceID != "" {
		id, err := ratesampler.ParseTraceID(req.TraceID)
		if err != nil {
			sendError(w, http.StatusBadRequest, "invalid_trace_id", err.Error())
			return
		}
		traceID = id
	}

	sampled, tags, err := h.registry.Sample(req.Service, req.Operation, traceID, req.Baggage)
	if err != nil {
		if errors.Is(err, ratesampler.ErrInvalidService) {
			sendError(w, http.StatusBadRequest, "invalid_service", err.Error())
			return
		}
		h.logger.Error("sampling failed", "service", req.Service, "error", err)
		sendError(w, http.StatusInternalServerError, "internal_error", "Sampling failed")
		return
	}

	response := SampleResponse{
		Sampled: sampled,
		Tags:    tags.ToMap(),
	}
	if traceID.IsValid() {
		response.TraceID = traceID.String()
	}
	if !sampled {
		response.RetryAfterMs = h.retryAfterMs(req.Service)
	}

	sendJSON(w, http.StatusOK, response)
}

func (h *Handler) retryAfterMs(service string) int64 {
	sampler, err := h.registry.Get(service)
	if err != nil {
		return 0
	}

	wait := sampler.RetryAfter()
	if wait == time.Duration(math.MaxInt64) {
		return -1
	}
	// Round up so a client waiting this long finds a credit
	return int64((wait + time.Millisecond - 1) / time.Millisecond)
}

func sendJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

func sendError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	sendJSON(w, statusCode, ErrorResponse{
		Error:   errorCode,
		Message: message,
	})
}
