package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the booking coordinator.
type Metrics struct {
	// Reservation outcomes by result: "reserved", "slot_full", "conflict",
	// "rejected".
	Reservations *prometheus.CounterVec

	// Slot-search cache lookups by result: "hit", "miss".
	CacheLookups *prometheus.CounterVec

	// Soft-hold acquisitions by result: "acquired", "contended".
	Holds *prometheus.CounterVec
}

// New creates a Metrics instance with all booking metrics registered.
func New() *Metrics {
	return &Metrics{
		Reservations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "impfportal_booking_reservations_total",
			Help: "Total slot reservation attempts by outcome",
		}, []string{"outcome"}),

		CacheLookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "impfportal_booking_slot_cache_lookups_total",
			Help: "Total slot-search cache lookups by result",
		}, []string{"result"}),

		Holds: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "impfportal_booking_soft_holds_total",
			Help: "Total soft-hold acquisition attempts by outcome",
		}, []string{"outcome"}),
	}
}

// IncrementReservation records a reservation attempt outcome.
func (m *Metrics) IncrementReservation(outcome string) {
	if m != nil {
		m.Reservations.WithLabelValues(outcome).Inc()
	}
}

// IncrementCacheLookup records a cache hit or miss.
func (m *Metrics) IncrementCacheLookup(result string) {
	if m != nil {
		m.CacheLookups.WithLabelValues(result).Inc()
	}
}

// IncrementHold records a soft-hold acquisition outcome.
func (m *Metrics) IncrementHold(outcome string) {
	if m != nil {
		m.Holds.WithLabelValues(outcome).Inc()
	}
}
