package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "leadhook"

// Metrics holds all Prometheus metrics of the service.
type Metrics struct {
	FormClaimsTotal        *prometheus.CounterVec
	FormReleasesTotal      prometheus.Counter
	FormVerificationsTotal *prometheus.CounterVec
	LeadsTotal             *prometheus.CounterVec
	WebhookBytesTotal      prometheus.Counter
	WALActive              prometheus.Gauge
	LeadsSunkTotal         prometheus.Counter
	LeadsDeadLetteredTotal prometheus.Counter
}

// New creates the metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		FormClaimsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "forms",
			Name:      "claims_total",
			Help:      "Form claim attempts by result.",
		}, []string{"result"}), // result: claimed, already_claimed, error
		FormReleasesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "forms",
			Name:      "releases_total",
			Help:      "Total number of form releases.",
		}),
		FormVerificationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "forms",
			Name:      "verifications_total",
			Help:      "Form verification attempts by result.",
		}, []string{"result"}),
		LeadsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "leads_total",
			Help:      "Inbound lead deliveries by outcome.",
		}, []string{"status"}), // status: accepted, dropped_token, dropped_payload, dropped_credential, error_store, error_buffer
		WebhookBytesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "bytes_total",
			Help:      "Total number of webhook body bytes received.",
		}),
		WALActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "buffer",
			Name:      "wal_active_gauge",
			Help:      "1 while leads are being written to the local WAL instead of Redis.",
		}),
		LeadsSunkTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "leads_total",
			Help:      "Total number of leads written to PostgreSQL.",
		}),
		LeadsDeadLetteredTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "dead_lettered_total",
			Help:      "Total number of leads moved to the dead-letter stream.",
		}),
	}
}
