package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/yourusername/ratesampler/pkg/ratesampler"
)

const namespace = "ratesampler"

// Decision label values.
const (
	DecisionSampled  = "sampled"
	DecisionRejected = "rejected"
)

// PrometheusCollector exports sampling decisions and the configured rate
// as Prometheus metrics. Behind a Registry the rate is the default rate.
type PrometheusCollector struct {
	decisions *prometheus.CounterVec
	rate      prometheus.Gauge
}

var (
	_ ratesampler.DecisionObserver = (*PrometheusCollector)(nil)
	_ ratesampler.RateObserver     = (*PrometheusCollector)(nil)
)

// NewPrometheusCollector creates the collectors and registers them with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &PrometheusCollector{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Sampling decisions by outcome.",
		}, []string{"decision"}),
		rate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "max_traces_per_second",
			Help:      "Configured default maximum traces per second.",
		}),
	}

	for _, collector := range []prometheus.Collector{c.decisions, c.rate} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register prometheus collector: %w", err)
		}
	}

	// Expose both series from the start
	c.decisions.WithLabelValues(DecisionSampled)
	c.decisions.WithLabelValues(DecisionRejected)

	return c, nil
}

// ObserveDecision implements ratesampler.DecisionObserver.
func (c *PrometheusCollector) ObserveDecision(_ string, sampled bool) {
	if sampled {
		c.decisions.WithLabelValues(DecisionSampled).Inc()
		return
	}
	c.decisions.WithLabelValues(DecisionRejected).Inc()
}

// ObserveRate implements ratesampler.RateObserver.
func (c *PrometheusCollector) ObserveRate(maxTracesPerSecond float64) {
	c.rate.Set(maxTracesPerSecond)
}
