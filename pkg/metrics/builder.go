package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

func NewCounter(namespace, subsystem, name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	})
}

func NewCounterVec(namespace, subsystem, name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

func NewGauge(namespace, subsystem, name, help string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	})
}

// NewHistogram falls back to prometheus.DefBuckets when buckets is nil.
func NewHistogram(namespace, subsystem, name, help string, buckets []float64) prometheus.Histogram {
	if buckets == nil {
		buckets = prometheus.DefBuckets
	}
	return prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
		Buckets:   buckets,
	})
}

// MetricBuilder creates metrics under one subsystem and registers them with a Collector.
type MetricBuilder struct {
	namespace string
	subsystem string
	collector *Collector
}

func NewMetricBuilder(collector *Collector, subsystem string) *MetricBuilder {
	return &MetricBuilder{
		namespace: collector.namespace,
		subsystem: subsystem,
		collector: collector,
	}
}

func (mb *MetricBuilder) Counter(name, help string) prometheus.Counter {
	counter := NewCounter(mb.namespace, mb.subsystem, name, help)
	mb.collector.MustRegister(counter)
	return counter
}

func (mb *MetricBuilder) CounterVec(name, help string, labels []string) *prometheus.CounterVec {
	counter := NewCounterVec(mb.namespace, mb.subsystem, name, help, labels)
	mb.collector.MustRegister(counter)
	return counter
}

func (mb *MetricBuilder) Gauge(name, help string) prometheus.Gauge {
	gauge := NewGauge(mb.namespace, mb.subsystem, name, help)
	mb.collector.MustRegister(gauge)
	return gauge
}

// GaugeFunc registers a gauge whose value is read from fn at scrape time.
func (mb *MetricBuilder) GaugeFunc(name, help string, fn func() float64) prometheus.GaugeFunc {
	gauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: mb.namespace,
		Subsystem: mb.subsystem,
		Name:      name,
		Help:      help,
	}, fn)
	mb.collector.MustRegister(gauge)
	return gauge
}

func (mb *MetricBuilder) Histogram(name, help string, buckets []float64) prometheus.Histogram {
	hist := NewHistogram(mb.namespace, mb.subsystem, name, help, buckets)
	mb.collector.MustRegister(hist)
	return hist
}
