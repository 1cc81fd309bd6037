package aggregator

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/mock"
	"github.com/trigg3rX/proof-coordinator/internal/taskstatus"
	"github.com/trigg3rX/proof-coordinator/pkg/datastore"
	"github.com/trigg3rX/proof-coordinator/pkg/retry"
	"github.com/trigg3rX/proof-coordinator/pkg/types"
)

type MockSubmitter struct {
	mock.Mock
}

func (m *MockSubmitter) SubmitProof(ctx context.Context, taskKey [32]byte, proof []byte) (common.Hash, error) {
	args := m.Called(ctx, taskKey, proof)
	return args.Get(0).(common.Hash), args.Error(1)
}

func (m *MockSubmitter) AwaitReceipt(ctx context.Context, hash common.Hash, pollConfig *retry.RetryConfig) (*ethtypes.Receipt, error) {
	args := m.Called(ctx, hash, pollConfig)
	var receipt *ethtypes.Receipt
	if v := args.Get(0); v != nil {
		receipt = v.(*ethtypes.Receipt)
	}
	return receipt, args.Error(1)
}

type segmentWrite struct {
	status     string
	percentage float64
}

type recordingMirror struct {
	datastore.NoopMirror

	mu       sync.Mutex
	tasks    map[string]string
	segments map[int]segmentWrite
	err      error
}

func newRecordingMirror() *recordingMirror {
	return &recordingMirror{tasks: map[string]string{}, segments: map[int]segmentWrite{}}
}

func (r *recordingMirror) SetTaskStatus(_ context.Context, _, taskID, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[taskID] = status
	return r.err
}

func (r *recordingMirror) SetSegmentStatus(_ context.Context, _, _ string, segment int, status string, percentage float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.segments[segment] = segmentWrite{status: status, percentage: percentage}
	return r.err
}

func (r *recordingMirror) taskStatus(taskID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tasks[taskID]
}

// failingStore wraps a MemoryStore and injects errors per operation.
type failingStore struct {
	*taskstatus.MemoryStore
	getErr    error
	upsertErr error
	allErr    error
}

func (f *failingStore) GetStatus(ctx context.Context, id types.SegmentIdentity) (types.TaskStatus, bool, error) {
	if f.getErr != nil {
		return "", false, f.getErr
	}
	return f.MemoryStore.GetStatus(ctx, id)
}

func (f *failingStore) UpsertStatus(ctx context.Context, id types.SegmentIdentity, status types.TaskStatus) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	return f.MemoryStore.UpsertStatus(ctx, id, status)
}

func (f *failingStore) AllSegmentsProven(ctx context.Context, projectID, taskID string, segments int) (bool, error) {
	if f.allErr != nil {
		return false, f.allErr
	}
	return f.MemoryStore.AllSegmentsProven(ctx, projectID, taskID, segments)
}
