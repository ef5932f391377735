package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the dossier lifecycle.
type Metrics struct {
	// Transitions by event and outcome ("applied", "rejected", "conflict").
	Transitions *prometheus.CounterVec

	// Dossiers created, by disease.
	DossiersCreated *prometheus.CounterVec

	// Protection recomputations, by trigger.
	Recomputations *prometheus.CounterVec
}

// New creates a Metrics instance with all dossier metrics registered.
func New() *Metrics {
	return &Metrics{
		Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "impfportal_dossier_transitions_total",
			Help: "Total dossier status transition attempts by event and outcome",
		}, []string{"event", "outcome"}),

		DossiersCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "impfportal_dossiers_created_total",
			Help: "Total dossiers created by disease",
		}, []string{"disease"}),

		Recomputations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "impfportal_protection_recomputations_total",
			Help: "Total protection-record recomputations by trigger",
		}, []string{"trigger"}),
	}
}

// IncrementTransition records a transition attempt outcome.
func (m *Metrics) IncrementTransition(event, outcome string) {
	if m != nil {
		m.Transitions.WithLabelValues(event, outcome).Inc()
	}
}

// IncrementCreated records a created dossier.
func (m *Metrics) IncrementCreated(disease string) {
	if m != nil {
		m.DossiersCreated.WithLabelValues(disease).Inc()
	}
}

// IncrementRecomputation records a protection recomputation.
func (m *Metrics) IncrementRecomputation(trigger string) {
	if m != nil {
		m.Recomputations.WithLabelValues(trigger).Inc()
	}
}
