package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"

	"github.com/yourusername/ratesampler/pkg/ratesampler"
	"github.com/yourusername/ratesampler/strategy"
)

// StrategyHandler serves and updates the strategies held by a registry.
// When a publisher is set, accepted updates are written to it before they
// are applied, so a refresher reading the same source keeps them.
type StrategyHandler struct {
	registry  *ratesampler.Registry
	publisher strategy.Publisher
	logger    *slog.Logger
}

// NewStrategyHandler creates a new strategy handler. publisher may be nil.
func NewStrategyHandler(registry *ratesampler.Registry, publisher strategy.Publisher, logger *slog.Logger) *StrategyHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StrategyHandler{registry: registry, publisher: publisher, logger: logger}
}

// StrategyResponse reports the applied strategies and whether an update
// changed anything.
type StrategyResponse struct {
	strategy.Strategies
	Changed *bool `json:"changed,omitempty"`
}

// ServeHTTP handles GET and PUT /strategy
func (h *StrategyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		sendJSON(w, http.StatusOK, StrategyResponse{Strategies: h.current()})
	case http.MethodPut:
		h.update(w, r)
	default:
		sendError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only GET and PUT requests are allowed")
	}
}

func (h *StrategyHandler) update(w http.ResponseWriter, r *http.Request) {
	var req strategy.Strategies
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}
	if req.Default == nil && len(req.Services) == 0 {
		sendError(w, http.StatusBadRequest, "missing_strategy", "default_strategy or service_strategies is required")
		return
	}

	// Validate everything before applying anything
	if req.Default != nil {
		if err := req.Default.Validate(); err != nil {
			sendStrategyError(w, err)
			return
		}
	}
	for _, s := range req.Services {
		if s.Service == "" {
			sendError(w, http.StatusBadRequest, "missing_service", "service is required for service strategies")
			return
		}
		if err := s.Validate(); err != nil {
			sendStrategyError(w, err)
			return
		}
	}

	if h.publisher != nil {
		if err := h.publisher.Publish(r.Context(), h.merge(req)); err != nil {
			h.logger.Error("failed to publish strategy", "error", err)
			sendError(w, http.StatusInternalServerError, "publish_failed", "Failed to store strategy")
			return
		}
	}

	changed := false
	if req.Default != nil {
		updated, err := h.registry.UpdateDefault(req.Default.Param)
		if err != nil {
			sendStrategyError(w, err)
			return
		}
		changed = changed || updated
	}
	for _, s := range req.Services {
		updated, err := h.registry.UpdateService(s.Service, s.Param)
		if err != nil {
			sendStrategyError(w, err)
			return
		}
		changed = changed || updated
	}

	if changed {
		h.logger.Info("strategy updated via api", "services", len(req.Services), "default", req.Default != nil)
	}

	sendJSON(w, http.StatusOK, StrategyResponse{Strategies: h.current(), Changed: &changed})
}

// merge returns the document a source must serve to keep req applied: the
// requested or current default plus every per-service rate, with req taking
// precedence.
func (h *StrategyHandler) merge(req strategy.Strategies) *strategy.Strategies {
	def := req.Default
	if def == nil {
		def = &strategy.Strategy{Type: strategy.TypeRateLimiting, Param: h.registry.DefaultRate()}
	}

	rates := h.registry.Overrides()
	for _, s := range req.Services {
		rates[s.Service] = s.Param
	}

	services := make([]string, 0, len(rates))
	for service := range rates {
		services = append(services, service)
	}
	sort.Strings(services)

	out := &strategy.Strategies{Default: def}
	for _, service := range services {
		out.Services = append(out.Services, strategy.ServiceStrategy{
			Service:  service,
			Strategy: strategy.Strategy{Type: strategy.TypeRateLimiting, Param: rates[service]},
		})
	}
	return out
}

func (h *StrategyHandler) current() strategy.Strategies {
	out := strategy.Strategies{
		Default: &strategy.Strategy{Type: strategy.TypeRateLimiting, Param: h.registry.DefaultRate()},
	}
	for _, service := range h.registry.Services() {
		sampler, err := h.registry.Get(service)
		if err != nil {
			continue
		}
		out.Services = append(out.Services, strategy.ServiceStrategy{
			Service:  service,
			Strategy: strategy.Strategy{Type: strategy.TypeRateLimiting, Param: sampler.MaxTracesPerSecond()},
		})
	}
	return out
}

func sendStrategyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, strategy.ErrUnsupportedStrategy):
		sendError(w, http.StatusBadRequest, "unsupported_strategy", err.Error())
	case errors.Is(err, ratesampler.ErrInvalidConfig):
		sendError(w, http.StatusBadRequest, "invalid_configuration", err.Error())
	default:
		sendError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
