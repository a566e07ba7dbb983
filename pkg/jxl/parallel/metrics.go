package parallel

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exports runner activity to prometheus
type Metrics struct {
	runsTotal   prometheus.Counter
	jobsTotal   prometheus.Counter
	runDuration prometheus.Histogram
}

// NewMetrics registers the runner metrics with reg, nil uses the default registerer
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		runsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "jxl_parallel_runs_total",
			Help: "Total number of parallel runs dispatched by libjxl",
		}),
		jobsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "jxl_parallel_jobs_total",
			Help: "Total number of jobs executed",
		}),
		runDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "jxl_parallel_run_duration_seconds",
			Help:    "Wall time of a parallel run",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// Instrumented records every run of the wrapped runner
type Instrumented struct {
	next    Runner
	metrics *Metrics
}

func (m *Metrics) Instrument(next Runner) *Instrumented {
	return &Instrumented{next: next, metrics: m}
}

func (i *Instrumented) Threads() (int, error) {
	return i.next.Threads()
}

func (i *Instrumented) Run(start, end uint32, job func(value uint32, threadID int)) {
	began := time.Now()
	i.next.Run(start, end, job)
	i.metrics.runsTotal.Inc()
	if end > start {
		i.metrics.jobsTotal.Add(float64(end - start))
	}
	i.metrics.runDuration.Observe(time.Since(began).Seconds())
}
