package taskdispatcher

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/stretchr/testify/mock"
	"github.com/trigg3rX/proof-coordinator/pkg/datastore"
	"github.com/trigg3rX/proof-coordinator/pkg/types"
)

type MockDeliverer struct {
	mock.Mock
}

func (m *MockDeliverer) Deliver(ctx context.Context, req types.DispatchRequest) (json.RawMessage, error) {
	args := m.Called(ctx, req)
	var result json.RawMessage
	if v := args.Get(0); v != nil {
		result = v.(json.RawMessage)
	}
	return result, args.Error(1)
}

// recordingMirror keeps every write for assertions.
type recordingMirror struct {
	datastore.NoopMirror

	mu       sync.Mutex
	tasks    map[string]string
	segments map[int]string
	err      error
}

func newRecordingMirror() *recordingMirror {
	return &recordingMirror{tasks: map[string]string{}, segments: map[int]string{}}
}

func (r *recordingMirror) EnsureTask(_ context.Context, _, taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[taskID]; !ok {
		r.tasks[taskID] = "created"
	}
	return r.err
}

func (r *recordingMirror) SetTaskStatus(_ context.Context, _, taskID, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[taskID] = status
	return r.err
}

func (r *recordingMirror) SetSegmentStatus(_ context.Context, _, _ string, segment int, status string, _ float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.segments[segment] = status
	return r.err
}
