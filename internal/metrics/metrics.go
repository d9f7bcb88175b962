package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "gatherly"

// Registry is the Prometheus registry for all application metrics. A private
// registry keeps third-party library defaults out of the scrape.
var Registry = prometheus.NewRegistry()

// AppInfo exposes build information as labels on a constant gauge.
var AppInfo = promauto.With(Registry).NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "app_info",
		Help:      "Application version information (always 1, version info in labels)",
	},
	[]string{"version", "commit", "build_date"},
)

// RegistrationsTotal counts registration attempts by terminal outcome:
// committed, replayed, or one of the rejection reasons.
var RegistrationsTotal = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "registrations_total",
		Help:      "Total registration attempts by outcome",
	},
	[]string{"outcome"},
)

// RegistrationDuration records how long the commit path takes, including
// ledger transaction and notification fan-out.
var RegistrationDuration = promauto.With(Registry).NewHistogram(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "registration_duration_seconds",
		Help:      "Registration commit path latency in seconds",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	},
)

// EventsFilledTotal counts events that reached capacity.
var EventsFilledTotal = promauto.With(Registry).NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_filled_total",
		Help:      "Total number of events that reached capacity",
	},
)

// Registration outcome label values.
const (
	OutcomeCommitted         = "committed"
	OutcomeReplayed          = "replayed"
	OutcomeNotFound          = "not_found"
	OutcomeNotPublished      = "not_published"
	OutcomeEventPast         = "event_past"
	OutcomeAlreadyRegistered = "already_registered"
	OutcomeEventFull         = "event_full"
	OutcomeTransient         = "transient"
)

// RegisterRealtimeStats wires live room and subscriber counts into the
// registry. Called once at startup with the hub's accessors.
func RegisterRealtimeStats(rooms func() int, subscribers func() int) {
	Registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "realtime_rooms",
			Help:      "Current number of active realtime rooms",
		},
		func() float64 { return float64(rooms()) },
	))
	Registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "realtime_subscribers",
			Help:      "Current number of realtime subscriptions across all rooms",
		},
		func() float64 { return float64(subscribers()) },
	))
}

// Init registers runtime collectors and stamps the build info gauge.
func Init(version, commit, buildDate string) {
	Registry.MustRegister(collectors.NewGoCollector())
	Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	AppInfo.WithLabelValues(version, commit, buildDate).Set(1)
}
