package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "storm_alerts"

// Metrics holds the Prometheus counters, histograms, and gauges for the alert relay.
type Metrics struct {
	FeedFetches      *prometheus.CounterVec   // labels: feed={sbw,text,discussions,image}, outcome={success,error}
	CycleDuration    *prometheus.HistogramVec // labels: class={warnings,discussions}
	CyclesSkipped    *prometheus.CounterVec   // labels: class
	EventsDetected   *prometheus.CounterVec   // labels: class
	DispatchOutcomes *prometheus.CounterVec   // labels: class, outcome={sent,failed}
	PublishErrors    prometheus.Counter
	TrackedWarnings  prometheus.Gauge
	SeenDiscussions  prometheus.Gauge
	SchedulerRunning prometheus.Gauge

	// Geocoding metrics.
	GeocodeRequests    *prometheus.CounterVec // labels: outcome={success,error,empty}
	GeocodeCache       *prometheus.CounterVec // labels: result={hit,miss}
	GeocodeAPIDuration prometheus.Histogram
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics(true)
	prometheus.MustRegister(
		m.FeedFetches,
		m.CycleDuration,
		m.CyclesSkipped,
		m.EventsDetected,
		m.DispatchOutcomes,
		m.PublishErrors,
		m.TrackedWarnings,
		m.SeenDiscussions,
		m.SchedulerRunning,
		m.GeocodeRequests,
		m.GeocodeCache,
		m.GeocodeAPIDuration,
	)
	return m
}

// NewUnregisteredMetrics creates Metrics that no registry collects, for
// short-lived processes such as the CLI that never serve /metrics.
func NewUnregisteredMetrics() *Metrics {
	return newMetrics(true)
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics(false)
}

func newMetrics(withHelp bool) *Metrics {
	help := func(s string) string {
		if withHelp {
			return s
		}
		return ""
	}

	return &Metrics{
		FeedFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_fetches_total",
			Help:      help("Upstream requests by feed and outcome."),
		}, []string{"feed", "outcome"}),
		CycleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      help("Duration of a complete fetch-detect-dispatch cycle."),
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"class"}),
		CyclesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_skipped_total",
			Help:      help("Ticks skipped because the previous cycle of the class was still running."),
		}, []string{"class"}),
		EventsDetected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_detected_total",
			Help:      help("Newly detected events by class."),
		}, []string{"class"}),
		DispatchOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_total",
			Help:      help("Webhook deliveries by class and outcome."),
		}, []string{"class", "outcome"}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      help("Failed writes to the notification event stream."),
		}),
		TrackedWarnings: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tracked_warnings",
			Help:      help("Warnings active as of the last successful poll."),
		}),
		SeenDiscussions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "seen_discussions",
			Help:      help("Discussion identifiers currently retained for deduplication."),
		}),
		SchedulerRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scheduler_running",
			Help:      help("1 when the polling scheduler is active, 0 when shut down."),
		}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      help("Reverse geocoding requests by outcome."),
		}, []string{"outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_cache_total",
			Help:      help("Geocoding cache lookups by result."),
		}, []string{"result"}),
		GeocodeAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "geocode_api_duration_seconds",
			Help:      help("Mapbox API request duration in seconds."),
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
	}
}
