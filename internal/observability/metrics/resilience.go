package metrics

import "github.com/prometheus/client_golang/prometheus"

var breakerStates = map[string]float64{
	"closed":    0,
	"half-open": 1,
	"open":      2,
}

// resilienceCollectors exports circuit breaker state and retry counts.
type resilienceCollectors struct {
	service      string
	breakerState *prometheus.GaugeVec
	retriesTotal *prometheus.CounterVec
}

func newResilienceCollectors(registry *prometheus.Registry, service string) resilienceCollectors {
	c := resilienceCollectors{
		service: service,
		breakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "resilience",
				Name:      "breaker_state",
				Help:      "Circuit breaker state per operation (0 closed, 1 half-open, 2 open).",
			},
			[]string{"service", "operation"},
		),
		retriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "resilience",
				Name:      "retries_total",
				Help:      "Total retried backend calls per operation.",
			},
			[]string{"service", "operation"},
		),
	}
	registry.MustRegister(c.breakerState, c.retriesTotal)
	return c
}

func (c resilienceCollectors) ObserveBreakerState(operation, state string) {
	value, ok := breakerStates[state]
	if !ok {
		return
	}
	c.breakerState.WithLabelValues(c.service, operation).Set(value)
}

func (c resilienceCollectors) ObserveRetry(operation string) {
	c.retriesTotal.WithLabelValues(c.service, operation).Inc()
}
