package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(jobsFinishedTotal, jobPollsTotal, jobPollBudgetExhausted) }

var jobsFinishedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "generation_jobs_finished_total",
		Help: "Generation jobs reaching a terminal outcome, labeled by outcome.",
	},
	[]string{"outcome"}, // success | no_reviews | no_text | failed | poll_exhausted | not_found | rejected
)

var jobPollsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "generation_job_polls_total",
		Help: "Poll deliveries, labeled by the status the service reported.",
	},
	[]string{"status"},
)

var jobPollBudgetExhausted = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "generation_job_poll_budget_exhausted_total",
		Help: "Jobs abandoned because the poll delivery budget ran out.",
	},
)

func IncJobFinished(outcome string) {
	jobsFinishedTotal.WithLabelValues(norm(outcome)).Inc()
}

func IncJobPoll(status string) {
	jobPollsTotal.WithLabelValues(norm(status)).Inc()
}

func IncPollBudgetExhausted() {
	jobPollBudgetExhausted.Inc()
}
