package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(batchTransitionsTotal, failedItemsTotal, enqueueFailuresTotal) }

var batchTransitionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "checkpoint_batch_transitions_total",
		Help: "Batch status transitions, labeled by the status entered.",
	},
	[]string{"status"},
)

var failedItemsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "checkpoint_failed_items_total",
		Help: "Failed items recorded, labeled by item and error type.",
	},
	[]string{"item_type", "error_type"},
)

var enqueueFailuresTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "scheduler_enqueue_failures_total",
		Help: "Task enqueue failures during bulk scheduling, by batch type.",
	},
	[]string{"batch_type"},
)

func IncBatch(status string) {
	batchTransitionsTotal.WithLabelValues(norm(status)).Inc()
}

func IncFailedItem(itemType, errorType string) {
	failedItemsTotal.WithLabelValues(norm(itemType), norm(errorType)).Inc()
}

func IncEnqueueFailure(batchType string) {
	enqueueFailuresTotal.WithLabelValues(norm(batchType)).Inc()
}
