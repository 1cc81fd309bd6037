package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCollector_Defaults(t *testing.T) {
	c := NewCollector("coordinator")

	assert.Equal(t, "proof_coordinator", c.Namespace())
	require.NotNil(t, c.Process())
	assert.NotNil(t, c.Registry())
	assert.NotNil(t, c.Handler())
}

func TestNewCollector_WithoutProcessMetrics(t *testing.T) {
	c := NewCollector("coordinator", WithProcessMetrics(false), WithNamespace("test"))

	assert.Nil(t, c.Process())
	assert.Equal(t, "test", c.Namespace())
	c.Start()
	c.Stop()
}

func TestCollector_StartStop_UpdatesUptime(t *testing.T) {
	c := NewCollector("coordinator",
		WithUptimeInterval(5*time.Millisecond),
		WithSystemMetricsInterval(5*time.Millisecond),
	)
	c.Start()

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(c.Process().UptimeSeconds) > 0 &&
			testutil.ToFloat64(c.Process().GoroutinesActive) > 0
	}, time.Second, 5*time.Millisecond)

	c.Stop()
	c.Stop()
}

func TestMetricBuilder_RegistersWithCollector(t *testing.T) {
	c := NewCollector("coordinator", WithProcessMetrics(false))
	mb := NewMetricBuilder(c, "aggregator")

	counter := mb.Counter("proofs_total", "Proofs received")
	counter.Add(3)
	mb.GaugeFunc("queue_depth", "Queue depth", func() float64 { return 7 })
	mb.Histogram("latency_seconds", "Latency", nil).Observe(0.2)

	assert.Equal(t, float64(3), testutil.ToFloat64(counter))

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "proof_coordinator_aggregator_proofs_total 3"))
	assert.True(t, strings.Contains(body, "proof_coordinator_aggregator_queue_depth 7"))
}

func TestCollector_Register_Duplicate(t *testing.T) {
	c := NewCollector("coordinator", WithProcessMetrics(false))
	g := NewGauge("ns", "sub", "g", "help")

	require.NoError(t, c.Register(g))
	assert.Error(t, c.Register(g))
}
