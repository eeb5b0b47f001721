package services

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Job results recorded by Metrics.
const (
	ResultFinished  = "finished"
	ResultCancelled = "cancelled"
	ResultFailed    = "failed"
)

// Metrics exports queue activity via Prometheus. A nil *Metrics records
// nothing.
type Metrics struct {
	jobs          *prometheus.CounterVec
	pagesFetched  prometheus.Counter
	fetchErrors   *prometheus.CounterVec
	queueLength   prometheus.Gauge
	progressRatio prometheus.Gauge
}

// NewMetrics registers the collectors against reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mangaqueue_jobs_total",
			Help: "Jobs that left the runner, partitioned by result.",
		}, []string{"result"}),
		pagesFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mangaqueue_pages_fetched_total",
			Help: "Pages fetched and stored.",
		}),
		fetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mangaqueue_fetch_errors_total",
			Help: "Chapter and page failures, partitioned by stage.",
		}, []string{"stage"}),
		queueLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mangaqueue_queue_length",
			Help: "Jobs currently in the queue, the running one included.",
		}),
		progressRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mangaqueue_job_progress_ratio",
			Help: "Progress of the running job between 0 and 1.",
		}),
	}
	for _, collector := range []prometheus.Collector{
		m.jobs,
		m.pagesFetched,
		m.fetchErrors,
		m.queueLength,
		m.progressRatio,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("failed to register queue collector: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) jobDone(result string) {
	if m == nil {
		return
	}
	m.jobs.WithLabelValues(result).Inc()
}

func (m *Metrics) pageFetched() {
	if m == nil {
		return
	}
	m.pagesFetched.Inc()
}

func (m *Metrics) fetchFailed(stage string) {
	if m == nil {
		return
	}
	m.fetchErrors.WithLabelValues(stage).Inc()
}

func (m *Metrics) setQueueLength(n int) {
	if m == nil {
		return
	}
	m.queueLength.Set(float64(n))
}

func (m *Metrics) setProgress(value, max int) {
	if m == nil {
		return
	}
	if max <= 0 {
		m.progressRatio.Set(0)
		return
	}
	m.progressRatio.Set(float64(value) / float64(max))
}
