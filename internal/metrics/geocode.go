package metrics

import "github.com/prometheus/client_golang/prometheus"

// Geocoder Prometheus metrics.
var (
	GeocodeRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "casestore",
			Name:      "geocode_requests_total",
			Help:      "Total number of geocoding requests",
		},
		[]string{"status"}, // "ok" / "error"
	)

	GeocodeRequestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "casestore",
			Name:      "geocode_request_duration_seconds",
			Help:      "Geocoding request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)
)

var geocodeMetricsRegistered bool

// RegisterGeocodeMetrics registers Prometheus geocoder metrics. Must be called once from main.
func RegisterGeocodeMetrics() {
	if geocodeMetricsRegistered {
		return
	}
	prometheus.MustRegister(GeocodeRequestsTotal)
	prometheus.MustRegister(GeocodeRequestDuration)
	geocodeMetricsRegistered = true
}
