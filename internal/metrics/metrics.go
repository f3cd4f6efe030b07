package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeGranted = "granted"
	OutcomeDenied  = "denied"
	OutcomeError   = "error"

	ScopeAnonymous  = "anonymous"
	ScopeBypass     = "bypass"
	ScopeRestricted = "restricted"
	ScopeEmpty      = "empty"
)

// Metrics holds the authorization counters. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	DecisionsTotal *prometheus.CounterVec
	ScopesTotal    *prometheus.CounterVec
	MutationsTotal *prometheus.CounterVec
}

// New creates the counters and registers them with reg when reg is not nil.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		DecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "authz_decisions_total",
				Help:      "Total number of role and permission checks by outcome",
			},
			[]string{"check", "outcome"},
		),
		ScopesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "authz_affiliation_scopes_total",
				Help:      "Total number of affiliation scopes applied by outcome",
			},
			[]string{"outcome"},
		),
		MutationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "authz_mutations_total",
				Help:      "Total number of assignment mutations by operation and result",
			},
			[]string{"operation", "result"},
		),
	}

	if reg != nil {
		reg.MustRegister(m.DecisionsTotal, m.ScopesTotal, m.MutationsTotal)
	}
	return m
}

func (m *Metrics) ObserveDecision(check string, granted bool, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeDenied
	switch {
	case err != nil:
		outcome = OutcomeError
	case granted:
		outcome = OutcomeGranted
	}
	m.DecisionsTotal.WithLabelValues(check, outcome).Inc()
}

func (m *Metrics) ObserveScope(outcome string) {
	if m == nil {
		return
	}
	m.ScopesTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveMutation(operation string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = OutcomeError
	}
	m.MutationsTotal.WithLabelValues(operation, result).Inc()
}
