package taskstatus

import (
	"context"
	"fmt"
	"sync"

	"github.com/trigg3rX/proof-coordinator/pkg/types"
)

// MemoryStore keeps status in a map under one lock.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[types.SegmentIdentity]types.TaskStatus
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[types.SegmentIdentity]types.TaskStatus),
	}
}

func (s *MemoryStore) UpsertStatus(_ context.Context, id types.SegmentIdentity, status types.TaskStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", types.ErrInvalidStatus, status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[id] = s.records[id].Merge(status)
	return nil
}

func (s *MemoryStore) GetStatus(_ context.Context, id types.SegmentIdentity) (types.TaskStatus, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status, ok := s.records[id]
	return status, ok, nil
}

func (s *MemoryStore) AllSegmentsProven(_ context.Context, projectID, taskID string, segments int) (bool, error) {
	if segments <= 0 {
		return false, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := 0; i < segments; i++ {
		status, ok := s.records[types.SegmentIdentity{ProjectID: projectID, TaskID: taskID, Segment: i}]
		if !ok || status != types.TaskStatusProven {
			return false, nil
		}
	}
	return true, nil
}

func (s *MemoryStore) Segments(_ context.Context, projectID, taskID string, segments int) ([]SegmentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]SegmentRecord, segments)
	for i := 0; i < segments; i++ {
		status, ok := s.records[types.SegmentIdentity{ProjectID: projectID, TaskID: taskID, Segment: i}]
		records[i] = SegmentRecord{Segment: i, Status: status, Known: ok}
	}
	return records, nil
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
