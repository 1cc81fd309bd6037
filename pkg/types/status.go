package types

import (
	"errors"
	"fmt"
)

var ErrInvalidStatus = errors.New("invalid task status")

// TaskStatus is the per-segment lifecycle. The only transition is Proving -> Proven.
type TaskStatus string

const (
	TaskStatusProving TaskStatus = "proving"
	TaskStatusProven  TaskStatus = "proven"
)

// Mirror-only states.
const (
	TaskStatusCreated      = "created"
	TaskStatusSubmitFailed = "submit_failed"
)

func (s TaskStatus) String() string {
	return string(s)
}

func (s TaskStatus) Valid() bool {
	return s == TaskStatusProving || s == TaskStatusProven
}

func ParseTaskStatus(raw string) (TaskStatus, error) {
	s := TaskStatus(raw)
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
	return s, nil
}

// Merge returns the status a record holds after applying next on top of current.
// Proven is absorbing.
func (s TaskStatus) Merge(next TaskStatus) TaskStatus {
	if s == TaskStatusProven {
		return s
	}
	return next
}
