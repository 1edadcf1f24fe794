package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(validationRejectionsTotal, validationAcceptedTotal) }

var validationRejectionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "content_validation_rejections_total",
		Help: "Generated texts rejected by validation, labeled by reason code.",
	},
	[]string{"reason"},
)

var validationAcceptedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "content_validation_accepted_total",
		Help: "Generated texts accepted by validation.",
	},
)

func IncValidationRejected(reason string) {
	validationRejectionsTotal.WithLabelValues(norm(reason)).Inc()
}

func IncValidationAccepted() {
	validationAcceptedTotal.Inc()
}

// RejectionSink adapts the validation counters to the validator's sink
// interface, for deployments where per-process counters are not enough.
type RejectionSink struct{}

func (RejectionSink) Rejected(reason string) { IncValidationRejected(reason) }

func (RejectionSink) Accepted() { IncValidationAccepted() }
