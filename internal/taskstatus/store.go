// Package taskstatus owns per-segment proof status. It is the single source of truth
// for deciding when a task is fully proven.
package taskstatus

import (
	"context"
	"errors"
	"fmt"

	"github.com/trigg3rX/proof-coordinator/pkg/types"
)

var ErrNotFound = errors.New("segment status not found")

// SegmentRecord is one segment's status as returned by Segments.
type SegmentRecord struct {
	Segment int
	Status  types.TaskStatus
	Known   bool
}

// Store maps (project, task, segment) to a TaskStatus. Implementations make every call
// atomic with respect to the others and never move a Proven record back to Proving.
type Store interface {
	// UpsertStatus creates the record if absent. Applying Proven to a Proven record and
	// Proving to a Proven record are both no-ops.
	UpsertStatus(ctx context.Context, id types.SegmentIdentity, status types.TaskStatus) error
	GetStatus(ctx context.Context, id types.SegmentIdentity) (types.TaskStatus, bool, error)
	// AllSegmentsProven is true only if all of segments 0..segments-1 exist and are Proven.
	AllSegmentsProven(ctx context.Context, projectID, taskID string, segments int) (bool, error)
	Segments(ctx context.Context, projectID, taskID string, segments int) ([]SegmentRecord, error)
}

// Lookup is GetStatus with absence reported as ErrNotFound.
func Lookup(ctx context.Context, store Store, id types.SegmentIdentity) (types.TaskStatus, error) {
	status, ok, err := store.GetStatus(ctx, id)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, types.CompositeKey(id.TaskID, id.Segment))
	}
	return status, nil
}

// Aggregate summarises segment records the way status queries report them.
func Aggregate(records []SegmentRecord) string {
	if len(records) == 0 {
		return types.TaskStatusCreated
	}
	known, proven := 0, 0
	for _, r := range records {
		if !r.Known {
			continue
		}
		known++
		if r.Status == types.TaskStatusProven {
			proven++
		}
	}
	switch {
	case proven == len(records):
		return string(types.TaskStatusProven)
	case known > 0:
		return string(types.TaskStatusProving)
	default:
		return types.TaskStatusCreated
	}
}
