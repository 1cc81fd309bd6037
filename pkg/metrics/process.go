package metrics

import (
	"os"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v3/process"
)

type ProcessMetrics struct {
	startTime time.Time
	proc      *process.Process

	UptimeSeconds     prometheus.Gauge
	MemoryRSSBytes    prometheus.Gauge
	HeapAllocBytes    prometheus.Gauge
	CPUUsagePercent   prometheus.Gauge
	GoroutinesActive  prometheus.Gauge
	GCDurationSeconds prometheus.Gauge
}

func newProcessMetrics(namespace, subsystem string, registry *prometheus.Registry) *ProcessMetrics {
	pm := &ProcessMetrics{
		startTime:         time.Now(),
		UptimeSeconds:     NewGauge(namespace, subsystem, "uptime_seconds", "Time passed since service started in seconds"),
		MemoryRSSBytes:    NewGauge(namespace, subsystem, "memory_rss_bytes", "Resident set size of the process in bytes"),
		HeapAllocBytes:    NewGauge(namespace, subsystem, "heap_alloc_bytes", "Bytes of allocated heap objects"),
		CPUUsagePercent:   NewGauge(namespace, subsystem, "cpu_usage_percent", "CPU utilization of the process"),
		GoroutinesActive:  NewGauge(namespace, subsystem, "goroutines_active", "Number of active goroutines"),
		GCDurationSeconds: NewGauge(namespace, subsystem, "gc_duration_seconds", "Total garbage collection pause duration in seconds"),
	}

	// nil proc leaves RSS and CPU at zero
	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		pm.proc = proc
	}

	registry.MustRegister(
		pm.UptimeSeconds,
		pm.MemoryRSSBytes,
		pm.HeapAllocBytes,
		pm.CPUUsagePercent,
		pm.GoroutinesActive,
		pm.GCDurationSeconds,
	)
	return pm
}

func (pm *ProcessMetrics) UpdateUptime() {
	pm.UptimeSeconds.Set(time.Since(pm.startTime).Seconds())
}

func (pm *ProcessMetrics) UpdateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	pm.HeapAllocBytes.Set(float64(m.Alloc))
	pm.GoroutinesActive.Set(float64(runtime.NumGoroutine()))
	pm.GCDurationSeconds.Set(float64(m.PauseTotalNs) / 1e9)

	if pm.proc == nil {
		return
	}
	if mem, err := pm.proc.MemoryInfo(); err == nil && mem != nil {
		pm.MemoryRSSBytes.Set(float64(mem.RSS))
	}
	if pct, err := pm.proc.CPUPercent(); err == nil {
		pm.CPUUsagePercent.Set(pct)
	}
}
