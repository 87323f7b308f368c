package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(researchJobsStarted, researchJobsFinished, jobStreamsActive, jobsEvicted) }

var (
	researchJobsStarted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "research_jobs_started_total",
			Help: "Research jobs accepted, labeled by provider (\"simulated\" in offline mode).",
		},
		[]string{"provider"},
	)

	researchJobsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "research_jobs_finished_total",
			Help: "Research jobs that reached a terminal state, labeled by status.",
		},
		[]string{"status"}, // 'completed', 'failed'
	)

	jobStreamsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "job_streams_active",
		Help: "Open job event streams.",
	})

	jobsEvicted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "research_jobs_evicted_total",
		Help: "Terminal jobs removed by the retention janitor.",
	})
)

func IncJobStarted(provider string) { researchJobsStarted.WithLabelValues(norm(provider)).Inc() }

func IncJobFinished(status string) { researchJobsFinished.WithLabelValues(norm(status)).Inc() }

// StreamOpened increments the active stream gauge and returns the matching decrement.
func StreamOpened() func() {
	jobStreamsActive.Inc()
	return jobStreamsActive.Dec
}

func AddJobsEvicted(n int) { jobsEvicted.Add(float64(n)) }
