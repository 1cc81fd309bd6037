package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns a private registry for one service plus its process gauges.
type Collector struct {
	serviceName    string
	namespace      string
	registry       *prometheus.Registry
	processMetrics *ProcessMetrics
	handler        http.Handler
	options        CollectorOptions

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewCollector(serviceName string, opts ...Option) *Collector {
	options := defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}

	registry := prometheus.NewRegistry()
	c := &Collector{
		serviceName: serviceName,
		namespace:   options.Namespace,
		registry:    registry,
		options:     options,
		stopCh:      make(chan struct{}),
	}
	if options.EnableProcessMetrics {
		c.processMetrics = newProcessMetrics(options.Namespace, serviceName, registry)
	}
	c.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
	return c
}

// Start launches the background refresh loops. It is a no-op without process metrics.
func (c *Collector) Start() {
	if c.processMetrics == nil {
		return
	}
	c.every(c.options.UptimeUpdateInterval, c.processMetrics.UpdateUptime)
	c.every(c.options.SystemMetricsInterval, c.processMetrics.UpdateSystemMetrics)
}

func (c *Collector) every(interval time.Duration, fn func()) {
	if interval <= 0 {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				fn()
			case <-c.stopCh:
				return
			}
		}
	}()
}

func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
}

func (c *Collector) Handler() http.Handler {
	return c.handler
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) Namespace() string {
	return c.namespace
}

func (c *Collector) Process() *ProcessMetrics {
	return c.processMetrics
}

// MustRegister panics if registration fails.
func (c *Collector) MustRegister(collectors ...prometheus.Collector) {
	c.registry.MustRegister(collectors...)
}

func (c *Collector) Register(collectors ...prometheus.Collector) error {
	for _, collector := range collectors {
		if err := c.registry.Register(collector); err != nil {
			return err
		}
	}
	return nil
}
