package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeAttempt = "attempt"
	outcomeSuccess = "success"
	outcomeError   = "error"
	outcomeSkip    = "skip"
)

type promCollectors struct {
	calls        *prometheus.CounterVec
	circuitState *prometheus.GaugeVec
}

// RegisterPrometheus attaches per-source call counters and circuit gauges to
// the given registry. Safe to leave unregistered; the store then records
// nothing outward.
func (s *Store) RegisterPrometheus(reg prometheus.Registerer) error {
	p := &promCollectors{
		calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arbrun_source_calls_total",
				Help: "Quote source calls by outcome",
			},
			[]string{"source", "outcome"},
		),
		circuitState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "arbrun_source_circuit_open",
				Help: "1 when the source circuit breaker is open",
			},
			[]string{"source"},
		),
	}
	if err := reg.Register(p.calls); err != nil {
		return err
	}
	if err := reg.Register(p.circuitState); err != nil {
		return err
	}
	s.mu.Lock()
	s.prom = p
	s.mu.Unlock()
	return nil
}

// promInc and promCircuit are called with the store mutex held.
func (s *Store) promInc(source, outcome string) {
	if s.prom != nil {
		s.prom.calls.WithLabelValues(source, outcome).Inc()
	}
}

func (s *Store) promCircuit(source string, open bool) {
	if s.prom == nil {
		return
	}
	v := 0.0
	if open {
		v = 1.0
	}
	s.prom.circuitState.WithLabelValues(source).Set(v)
}
