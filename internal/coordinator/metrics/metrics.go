// Package metrics holds the coordinator's prometheus instruments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	pkgmetrics "github.com/trigg3rX/proof-coordinator/pkg/metrics"
)

type Metrics struct {
	builder *pkgmetrics.MetricBuilder

	TasksDiscovered  prometheus.Counter
	DecodeFailures   prometheus.Counter
	LastHandledBlock prometheus.Gauge
	ChainErrors      prometheus.Counter

	SegmentsDispatched      prometheus.Counter
	SegmentDispatchFailures prometheus.Counter

	ProofsReceived  prometheus.Counter
	ProofsDuplicate prometheus.Counter
	ProofsMalformed prometheus.Counter

	SubmissionsSucceeded prometheus.Counter
	SubmissionsFailed    prometheus.Counter
	SubmissionsStranded  prometheus.Counter
	SubmissionLatency    prometheus.Histogram

	LoopRestarts *prometheus.CounterVec
}

func New(collector *pkgmetrics.Collector) *Metrics {
	mb := pkgmetrics.NewMetricBuilder(collector, "coordinator")
	return &Metrics{
		builder: mb,

		TasksDiscovered:  mb.Counter("tasks_discovered_total", "TaskSubmitted events decoded and queued for dispatch"),
		DecodeFailures:   mb.Counter("decode_failures_total", "Logs skipped because they could not be decoded"),
		LastHandledBlock: mb.Gauge("last_handled_block", "Highest block whose events have been handled"),
		ChainErrors:      mb.Counter("chain_errors_total", "Monitor iterations aborted by a chain RPC error"),

		SegmentsDispatched:      mb.Counter("segments_dispatched_total", "Segments accepted by the scheduler"),
		SegmentDispatchFailures: mb.Counter("segment_dispatch_failures_total", "Segments that exhausted their dispatch attempts"),

		ProofsReceived:  mb.Counter("proofs_received_total", "Proof results taken from the result queue"),
		ProofsDuplicate: mb.Counter("proofs_duplicate_total", "Segment proofs discarded because the segment was already proven"),
		ProofsMalformed: mb.Counter("proofs_malformed_total", "Proof results discarded because the task id was malformed"),

		SubmissionsSucceeded: mb.Counter("submissions_succeeded_total", "Proof transactions broadcast successfully"),
		SubmissionsFailed:    mb.Counter("submissions_failed_total", "Proof transactions that could not be built or signed"),
		SubmissionsStranded:  mb.Counter("submissions_stranded_total", "Tasks whose broadcast failed and no receipt was found"),
		SubmissionLatency:    mb.Histogram("submission_latency_seconds", "Time from proof receipt to broadcast", nil),

		LoopRestarts: mb.CounterVec("loop_restarts_total", "Supervised loop restarts", []string{"loop"}),
	}
}

// Nop returns instruments registered on a throwaway registry.
func Nop() *Metrics {
	return New(pkgmetrics.NewCollector("nop", pkgmetrics.WithProcessMetrics(false)))
}

// RegisterQueueDepth exposes a mailbox length as a gauge read at scrape time.
func (m *Metrics) RegisterQueueDepth(queue string, depth func() int) {
	m.builder.GaugeFunc(queue+"_queue_depth", "Items waiting in the "+queue+" queue", func() float64 {
		return float64(depth())
	})
}
