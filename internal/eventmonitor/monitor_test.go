package eventmonitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trigg3rX/proof-coordinator/internal/coordinator/metrics"
	"github.com/trigg3rX/proof-coordinator/pkg/logging"
	"github.com/trigg3rX/proof-coordinator/pkg/queue"
	"github.com/trigg3rX/proof-coordinator/pkg/types"
)

type blockRange struct{ from, to uint64 }

type fakeChain struct {
	mu        sync.Mutex
	height    uint64
	heightErr error
	filterErr error
	logs      map[uint64][]ethtypes.Log
	ranges    []blockRange
}

func (f *fakeChain) CurrentBlockHeight(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.height, f.heightErr
}

func (f *fakeChain) FilterTaskLogs(_ context.Context, from, to uint64) ([]ethtypes.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ranges = append(f.ranges, blockRange{from, to})
	if f.filterErr != nil {
		return nil, f.filterErr
	}
	var out []ethtypes.Log
	for b := from; b <= to; b++ {
		out = append(out, f.logs[b]...)
	}
	return out, nil
}

func (f *fakeChain) setHeight(h uint64) {
	f.mu.Lock()
	f.height = h
	f.mu.Unlock()
}

func (f *fakeChain) seenRanges() []blockRange {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]blockRange(nil), f.ranges...)
}

// fakeDecoder keys tasks by the first byte of log data; "bad" data fails.
type fakeDecoder struct{}

func (fakeDecoder) Decode(log ethtypes.Log) (*types.TaskSubmission, error) {
	if string(log.Data) == "bad" {
		return nil, errors.New("malformed log")
	}
	var key [32]byte
	copy(key[:], log.Data)
	return &types.TaskSubmission{TaskKey: key, Instance: log.Data, BlockNumber: log.BlockNumber}, nil
}

func taskLog(block uint64, data string) ethtypes.Log {
	return ethtypes.Log{BlockNumber: block, Data: []byte(data), TxHash: common.HexToHash("0x01")}
}

func newTestMonitor(t *testing.T, chain ChainReader, start uint64) (*Monitor, *queue.Mailbox[types.TaskSubmission], *metrics.Metrics) {
	t.Helper()
	out := queue.NewMailbox[types.TaskSubmission]()
	m := metrics.Nop()
	cfg := DefaultConfig()
	cfg.StartBlock = start
	cfg.PollInterval = 5 * time.Millisecond
	cfg.RetryDelay = 5 * time.Millisecond
	mon, err := NewMonitor(chain, fakeDecoder{}, out, cfg, logging.NewNoOpLogger(), m)
	require.NoError(t, err)
	return mon, out, m
}

func TestPollOnce_HeightBelowWatermark_NoProgress(t *testing.T) {
	chain := &fakeChain{height: 95}
	mon, out, _ := newTestMonitor(t, chain, 100)

	progressed, err := mon.pollOnce(context.Background())

	require.NoError(t, err)
	assert.False(t, progressed)
	assert.Equal(t, uint64(100), mon.LastHandledBlock())
	assert.Empty(t, chain.seenRanges(), "no logs fetched")
	assert.Equal(t, 0, out.Len())
}

func TestPollOnce_HeightEqualsWatermark_NoProgress(t *testing.T) {
	chain := &fakeChain{height: 100}
	mon, _, _ := newTestMonitor(t, chain, 100)

	progressed, err := mon.pollOnce(context.Background())

	require.NoError(t, err)
	assert.False(t, progressed)
	assert.Empty(t, chain.seenRanges())
}

func TestPollOnce_BatchIsCappedAtWidth(t *testing.T) {
	chain := &fakeChain{height: 115}
	mon, _, m := newTestMonitor(t, chain, 100)

	progressed, err := mon.pollOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, progressed)
	assert.Equal(t, []blockRange{{101, 110}}, chain.seenRanges())
	assert.Equal(t, uint64(110), mon.LastHandledBlock())
	assert.Equal(t, float64(110), testutil.ToFloat64(m.LastHandledBlock))

	progressed, err = mon.pollOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, progressed)
	assert.Equal(t, []blockRange{{101, 110}, {111, 115}}, chain.seenRanges())
	assert.Equal(t, uint64(115), mon.LastHandledBlock())

	progressed, err = mon.pollOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, progressed)
}

func TestPollOnce_PublishesDecodedTasksInOrder(t *testing.T) {
	chain := &fakeChain{height: 105, logs: map[uint64][]ethtypes.Log{
		102: {taskLog(102, "a")},
		104: {taskLog(104, "b"), taskLog(104, "c")},
	}}
	mon, out, m := newTestMonitor(t, chain, 100)

	_, err := mon.pollOnce(context.Background())
	require.NoError(t, err)

	require.Equal(t, 3, out.Len())
	for _, want := range []string{"a", "b", "c"} {
		task, ok := out.TryPop()
		require.True(t, ok)
		assert.Equal(t, want, string(task.Instance))
	}
	assert.Equal(t, float64(3), testutil.ToFloat64(m.TasksDiscovered))
}

func TestPollOnce_DecodeFailureSkipsOnlyThatLog(t *testing.T) {
	chain := &fakeChain{height: 103, logs: map[uint64][]ethtypes.Log{
		101: {taskLog(101, "a"), taskLog(101, "bad"), taskLog(101, "b")},
	}}
	mon, out, m := newTestMonitor(t, chain, 100)

	progressed, err := mon.pollOnce(context.Background())

	require.NoError(t, err)
	assert.True(t, progressed)
	assert.Equal(t, 2, out.Len())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.DecodeFailures))
	assert.Equal(t, uint64(103), mon.LastHandledBlock())
}

func TestPollOnce_RPCErrorKeepsWatermark(t *testing.T) {
	tests := []struct {
		name  string
		chain *fakeChain
	}{
		{name: "height error", chain: &fakeChain{heightErr: errors.New("rpc down")}},
		{name: "filter error", chain: &fakeChain{height: 120, filterErr: errors.New("rpc down")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mon, out, _ := newTestMonitor(t, tt.chain, 100)

			progressed, err := mon.pollOnce(context.Background())

			assert.Error(t, err)
			assert.False(t, progressed)
			assert.Equal(t, uint64(100), mon.LastHandledBlock())
			assert.Equal(t, 0, out.Len())
		})
	}
}

func TestRun_ZeroStartUsesChainHeight(t *testing.T) {
	chain := &fakeChain{height: 500}
	mon, out, _ := newTestMonitor(t, chain, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mon.Run(ctx) }()

	assert.Eventually(t, func() bool { return mon.LastHandledBlock() == 500 }, time.Second, time.Millisecond)

	chain.mu.Lock()
	chain.logs = map[uint64][]ethtypes.Log{501: {taskLog(501, "new")}}
	chain.mu.Unlock()
	chain.setHeight(503)

	assert.Eventually(t, func() bool { return out.Len() == 1 }, time.Second, time.Millisecond)
	assert.Eventually(t, func() bool { return mon.LastHandledBlock() == 503 }, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestRun_RecoversFromRPCErrors(t *testing.T) {
	chain := &fakeChain{height: 105, filterErr: errors.New("flaky")}
	mon, _, m := newTestMonitor(t, chain, 100)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = mon.Run(ctx) }()

	assert.Eventually(t, func() bool { return testutil.ToFloat64(m.ChainErrors) >= 2 }, time.Second, time.Millisecond)
	assert.Equal(t, uint64(100), mon.LastHandledBlock())

	chain.mu.Lock()
	chain.filterErr = nil
	chain.mu.Unlock()

	assert.Eventually(t, func() bool { return mon.LastHandledBlock() == 105 }, time.Second, time.Millisecond)
}

func TestNewMonitor_Validation(t *testing.T) {
	out := queue.NewMailbox[types.TaskSubmission]()
	logger := logging.NewNoOpLogger()

	_, err := NewMonitor(nil, fakeDecoder{}, out, DefaultConfig(), logger, nil)
	assert.Error(t, err)

	_, err = NewMonitor(&fakeChain{}, fakeDecoder{}, out, DefaultConfig(), nil, nil)
	assert.Error(t, err)

	cfg := DefaultConfig()
	cfg.BatchWidth = 0
	_, err = NewMonitor(&fakeChain{}, fakeDecoder{}, out, cfg, logger, nil)
	assert.Error(t, err)
}
