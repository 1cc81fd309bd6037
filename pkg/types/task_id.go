package types

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

const SegmentSeparator = "#"

type TaskRefKind int

const (
	WholeTask TaskRefKind = iota
	SegmentTask
)

// TaskRef is a parsed task id: either a whole task or one segment of it.
type TaskRef struct {
	Kind    TaskRefKind
	TaskID  string
	Segment int
}

func (r TaskRef) IsSegment() bool {
	return r.Kind == SegmentTask
}

func (r TaskRef) String() string {
	if r.Kind == SegmentTask {
		return CompositeKey(r.TaskID, r.Segment)
	}
	return r.TaskID
}

type MalformedTaskIDError struct {
	Raw    string
	Reason string
}

func (e *MalformedTaskIDError) Error() string {
	return fmt.Sprintf("malformed task id %q: %s", e.Raw, e.Reason)
}

// CompositeKey formats "<task>#<segment>".
func CompositeKey(taskID string, segment int) string {
	return taskID + SegmentSeparator + strconv.Itoa(segment)
}

// ParseTaskID splits a proof result's task id.
func ParseTaskID(raw string) (TaskRef, error) {
	parts := strings.Split(raw, SegmentSeparator)
	switch len(parts) {
	case 1:
		if raw == "" {
			return TaskRef{}, &MalformedTaskIDError{Raw: raw, Reason: "empty"}
		}
		return TaskRef{Kind: WholeTask, TaskID: raw}, nil
	case 2:
		if parts[0] == "" {
			return TaskRef{}, &MalformedTaskIDError{Raw: raw, Reason: "empty task id"}
		}
		segment, err := strconv.Atoi(parts[1])
		if err != nil || strings.TrimLeft(parts[1], "0123456789") != "" {
			return TaskRef{}, &MalformedTaskIDError{Raw: raw, Reason: "segment index is not a non-negative integer"}
		}
		return TaskRef{Kind: SegmentTask, TaskID: parts[0], Segment: segment}, nil
	default:
		return TaskRef{}, &MalformedTaskIDError{Raw: raw, Reason: fmt.Sprintf("%d separators", len(parts)-1)}
	}
}

// DecodeTaskKey turns a hex task id (optional 0x) back into the on-chain bytes32 key.
func DecodeTaskKey(taskID string) ([32]byte, error) {
	var key [32]byte
	raw := strings.TrimPrefix(strings.TrimPrefix(taskID, "0x"), "0X")
	b, err := hex.DecodeString(raw)
	if err != nil {
		return key, &MalformedTaskIDError{Raw: taskID, Reason: "not hex"}
	}
	if len(b) != len(key) {
		return key, &MalformedTaskIDError{Raw: taskID, Reason: fmt.Sprintf("task key is %d bytes, want 32", len(b))}
	}
	copy(key[:], b)
	return key, nil
}
