package memory

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exports Tracker activity to prometheus. A nil *Metrics records nothing.
type Metrics struct {
	allocsTotal   prometheus.Counter
	freesTotal    prometheus.Counter
	failuresTotal prometheus.Counter
	bytesInUse    prometheus.Gauge
}

// NewMetrics registers the memory metrics with reg, nil uses the default registerer
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		allocsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "jxl_memory_allocations_total",
			Help: "Total number of allocations served to libjxl",
		}),
		freesTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "jxl_memory_frees_total",
			Help: "Total number of allocations returned by libjxl",
		}),
		failuresTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "jxl_memory_allocation_failures_total",
			Help: "Total number of allocations refused",
		}),
		bytesInUse: f.NewGauge(prometheus.GaugeOpts{
			Name: "jxl_memory_bytes_in_use",
			Help: "Bytes currently held by libjxl",
		}),
	}
}

func (m *Metrics) allocated(size uintptr) {
	if m == nil {
		return
	}
	m.allocsTotal.Inc()
	m.bytesInUse.Add(float64(size))
}

func (m *Metrics) freed(size uintptr) {
	if m == nil {
		return
	}
	m.freesTotal.Inc()
	m.bytesInUse.Sub(float64(size))
}

func (m *Metrics) failed() {
	if m == nil {
		return
	}
	m.failuresTotal.Inc()
}
