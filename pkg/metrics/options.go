package metrics

import "time"

type CollectorOptions struct {
	Namespace             string
	EnableProcessMetrics  bool
	UptimeUpdateInterval  time.Duration
	SystemMetricsInterval time.Duration
}

type Option func(*CollectorOptions)

func defaultOptions() CollectorOptions {
	return CollectorOptions{
		Namespace:             "proof_coordinator",
		EnableProcessMetrics:  true,
		UptimeUpdateInterval:  15 * time.Second,
		SystemMetricsInterval: 30 * time.Second,
	}
}

func WithNamespace(namespace string) Option {
	return func(o *CollectorOptions) {
		o.Namespace = namespace
	}
}

func WithProcessMetrics(enable bool) Option {
	return func(o *CollectorOptions) {
		o.EnableProcessMetrics = enable
	}
}

func WithUptimeInterval(interval time.Duration) Option {
	return func(o *CollectorOptions) {
		o.UptimeUpdateInterval = interval
	}
}

// WithSystemMetricsInterval sets how often CPU, memory and goroutine gauges refresh.
// Zero disables the refresh loop.
func WithSystemMetricsInterval(interval time.Duration) Option {
	return func(o *CollectorOptions) {
		o.SystemMetricsInterval = interval
	}
}
