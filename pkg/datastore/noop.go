package datastore

import "context"

// NoopMirror accepts every write and knows no records.
type NoopMirror struct{}

var _ Mirror = NoopMirror{}

func (NoopMirror) EnsureTask(context.Context, string, string) error {
	return nil
}

func (NoopMirror) SetTaskStatus(context.Context, string, string, string) error {
	return nil
}

func (NoopMirror) EnsureSegment(context.Context, string, string, int) error {
	return nil
}

func (NoopMirror) SetSegmentStatus(context.Context, string, string, int, string, float64) error {
	return nil
}

func (NoopMirror) TaskStatus(context.Context, string, string) (string, error) {
	return "", ErrRecordNotFound
}

func (NoopMirror) Segments(context.Context, string, string) ([]SegmentRow, error) {
	return nil, nil
}

func (NoopMirror) HealthCheck(context.Context) error {
	return nil
}

func (NoopMirror) Close() {}
