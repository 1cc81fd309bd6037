package coordinator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trigg3rX/proof-coordinator/pkg/logging"
)

func newTestSupervisor() (*Supervisor, *prometheus.CounterVec) {
	restarts := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "restarts_total"}, []string{"loop"})
	return NewSupervisor(logging.NewNoOpLogger(), restarts, time.Millisecond, 4*time.Millisecond), restarts
}

func TestSupervisor_RestartsFailingLoop(t *testing.T) {
	s, restarts := newTestSupervisor()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	s.Go(ctx, "flaky", func(ctx context.Context) error {
		if calls.Add(1) < 3 {
			return errors.New("boom")
		}
		<-ctx.Done()
		return nil
	})

	require.Eventually(t, func() bool { return calls.Load() == 3 }, time.Second, time.Millisecond)
	assert.Equal(t, 2.0, testutil.ToFloat64(restarts.WithLabelValues("flaky")))

	cancel()
	s.Wait()
	assert.Equal(t, int32(3), calls.Load())
}

func TestSupervisor_RecoversPanic(t *testing.T) {
	s, restarts := newTestSupervisor()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	s.Go(ctx, "panicky", func(ctx context.Context) error {
		if calls.Add(1) == 1 {
			panic("nil map")
		}
		<-ctx.Done()
		return ctx.Err()
	})

	require.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(restarts.WithLabelValues("panicky")))
	cancel()
	s.Wait()
}

func TestSupervisor_UnexpectedCleanReturnRestarts(t *testing.T) {
	s, restarts := newTestSupervisor()
	ctx, cancel := context.WithCancel(context.Background())

	var calls atomic.Int32
	s.Go(ctx, "early", func(ctx context.Context) error {
		calls.Add(1)
		return nil
	})

	require.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, time.Millisecond)
	cancel()
	s.Wait()
	assert.GreaterOrEqual(t, testutil.ToFloat64(restarts.WithLabelValues("early")), 1.0)
}

func TestSupervisor_CancelledLoopIsNotRestarted(t *testing.T) {
	s, restarts := newTestSupervisor()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int32
	s.Go(ctx, "done", func(ctx context.Context) error {
		calls.Add(1)
		return ctx.Err()
	})
	s.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.Zero(t, testutil.ToFloat64(restarts.WithLabelValues("done")))
}

func TestRunOnce_ConvertsPanic(t *testing.T) {
	err := runOnce(context.Background(), func(context.Context) error { panic("kaboom") })

	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic: kaboom")
}

func TestNewSupervisor_ClampsMaxDelay(t *testing.T) {
	s := NewSupervisor(logging.NewNoOpLogger(), nil, time.Second, time.Millisecond)
	assert.Equal(t, time.Second, s.maxDelay)
}
