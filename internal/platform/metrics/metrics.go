package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the platform-level Prometheus metrics. Subsystem metrics
// (dossier transitions, reservations) live in their own packages.
type Metrics struct {
	RequestDuration *prometheus.HistogramVec
	DossiersCreated prometheus.Counter
}

// New creates and registers all platform Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "impfportal_http_request_duration_seconds",
			Help:    "HTTP request latency by method and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "status"}),
		DossiersCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "impfportal_dossiers_created_total",
			Help: "Total number of vaccination dossiers created",
		}),
	}
}

// ObserveRequest records one request's latency.
func (m *Metrics) ObserveRequest(method string, status int, d time.Duration) {
	m.RequestDuration.WithLabelValues(method, strconv.Itoa(status)).Observe(d.Seconds())
}

// IncrementDossiersCreated increments the dossier creation counter by 1.
func (m *Metrics) IncrementDossiersCreated() {
	m.DossiersCreated.Inc()
}
