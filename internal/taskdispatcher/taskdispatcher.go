// Package taskdispatcher fans each discovered task out to the proving scheduler as a fixed
// number of segments.
package taskdispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/trigg3rX/proof-coordinator/internal/coordinator/metrics"
	"github.com/trigg3rX/proof-coordinator/internal/taskstatus"
	"github.com/trigg3rX/proof-coordinator/pkg/datastore"
	"github.com/trigg3rX/proof-coordinator/pkg/logging"
	"github.com/trigg3rX/proof-coordinator/pkg/retry"
	"github.com/trigg3rX/proof-coordinator/pkg/types"
)

const (
	DefaultProjectID       = "demo"
	DefaultSegmentCount    = 4
	DefaultPriority        = "1"
	DefaultDispatchRetries = 1
	DefaultRetryDelay      = 500 * time.Millisecond
)

type Deliverer interface {
	Deliver(ctx context.Context, req types.DispatchRequest) (json.RawMessage, error)
}

type TaskSource interface {
	Pop(ctx context.Context) (types.TaskSubmission, error)
}

type Config struct {
	ProjectID    string
	SegmentCount int
	Priority     string
	// DispatchRetries is the number of extra attempts per segment after the first.
	DispatchRetries int
	RetryDelay      time.Duration
}

func DefaultConfig() Config {
	return Config{
		ProjectID:       DefaultProjectID,
		SegmentCount:    DefaultSegmentCount,
		Priority:        DefaultPriority,
		DispatchRetries: DefaultDispatchRetries,
		RetryDelay:      DefaultRetryDelay,
	}
}

// DispatchSummary reports what happened to one task's segments.
type DispatchSummary struct {
	TaskID     string
	Dispatched []int
	Failed     []int
}

type TaskDispatcher struct {
	scheduler Deliverer
	store     taskstatus.Store
	mirror    datastore.Mirror
	config    Config
	logger    logging.Logger
	metrics   *metrics.Metrics
}

func NewTaskDispatcher(logger logging.Logger, scheduler Deliverer, store taskstatus.Store, mirror datastore.Mirror, cfg Config, m *metrics.Metrics) (*TaskDispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if scheduler == nil || store == nil {
		return nil, fmt.Errorf("scheduler and status store are required")
	}
	if cfg.SegmentCount <= 0 {
		return nil, fmt.Errorf("segment count must be positive, got %d", cfg.SegmentCount)
	}
	if cfg.DispatchRetries < 0 {
		return nil, fmt.Errorf("dispatch retries cannot be negative, got %d", cfg.DispatchRetries)
	}
	if cfg.ProjectID == "" {
		cfg.ProjectID = DefaultProjectID
	}
	if cfg.Priority == "" {
		cfg.Priority = DefaultPriority
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if mirror == nil {
		mirror = datastore.NoopMirror{}
	}
	if m == nil {
		m = metrics.Nop()
	}

	return &TaskDispatcher{
		scheduler: scheduler,
		store:     store,
		mirror:    mirror,
		config:    cfg,
		logger:    logger.With("component", "task-dispatcher"),
		metrics:   m,
	}, nil
}

// Run drains source one task at a time until ctx is cancelled.
func (d *TaskDispatcher) Run(ctx context.Context, source TaskSource) error {
	d.logger.Info("Task dispatcher started", "segments", d.config.SegmentCount, "project_id", d.config.ProjectID)
	for {
		task, err := source.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				d.logger.Info("Task dispatcher stopped")
				return nil
			}
			return fmt.Errorf("pop dispatch queue: %w", err)
		}
		d.DispatchTask(ctx, task)
	}
}

// DispatchTask sends segments 0..N-1 in order. A segment that exhausts its attempts is
// recorded as failed and the next segment is still sent.
func (d *TaskDispatcher) DispatchTask(ctx context.Context, task types.TaskSubmission) DispatchSummary {
	taskID := task.TaskKeyHex()
	instance := task.InstanceHex()
	summary := DispatchSummary{TaskID: taskID}

	logger := d.logger.With("task_key", taskID)
	logger.Info("Dispatching task", "segments", d.config.SegmentCount, "block", task.BlockNumber)

	if err := d.mirror.EnsureTask(ctx, d.config.ProjectID, taskID); err != nil {
		logger.Warn("Mirror write failed", "op", "ensure_task", "error", err)
	}

	for i := 0; i < d.config.SegmentCount; i++ {
		if ctx.Err() != nil {
			logger.Warn("Dispatch interrupted", "segment", i)
			break
		}

		req := types.DispatchRequest{
			ProjectID:    d.config.ProjectID,
			CompositeKey: types.CompositeKey(taskID, i),
			Instance:     instance,
			Priority:     d.config.Priority,
		}
		if err := d.dispatchSegment(ctx, req); err != nil {
			summary.Failed = append(summary.Failed, i)
			d.metrics.SegmentDispatchFailures.Inc()
			logger.Error("Segment dispatch failed", "segment", i, "composite_key", req.CompositeKey, "error", err)
			continue
		}

		summary.Dispatched = append(summary.Dispatched, i)
		d.metrics.SegmentsDispatched.Inc()

		id := types.SegmentIdentity{ProjectID: d.config.ProjectID, TaskID: taskID, Segment: i}
		if err := d.store.UpsertStatus(ctx, id, types.TaskStatusProving); err != nil {
			logger.Error("Failed to record segment status", "segment", i, "error", err)
		}
		d.mirrorSegment(ctx, logger, taskID, i)
	}

	if len(summary.Dispatched) > 0 {
		if err := d.mirror.SetTaskStatus(ctx, d.config.ProjectID, taskID, string(types.TaskStatusProving)); err != nil {
			logger.Warn("Mirror write failed", "op", "set_task_status", "error", err)
		}
	}

	logger.Info("Task dispatched", "dispatched", len(summary.Dispatched), "failed", len(summary.Failed))
	return summary
}

func (d *TaskDispatcher) dispatchSegment(ctx context.Context, req types.DispatchRequest) error {
	cfg := &retry.RetryConfig{
		MaxRetries:      d.config.DispatchRetries + 1,
		InitialDelay:    d.config.RetryDelay,
		MaxDelay:        d.config.RetryDelay * 4,
		BackoffFactor:   2.0,
		JitterFactor:    0.1,
		LogRetryAttempt: true,
		ShouldRetry: func(err error, _ int) bool {
			return !errors.Is(err, context.Canceled)
		},
	}

	return retry.RetryFunc(ctx, func() error {
		result, err := d.scheduler.Deliver(ctx, req)
		if err != nil {
			return err
		}
		d.logger.Debug("Scheduler accepted segment", "composite_key", req.CompositeKey, "response", string(result))
		return nil
	}, cfg, d.logger)
}

func (d *TaskDispatcher) mirrorSegment(ctx context.Context, logger logging.Logger, taskID string, segment int) {
	if err := d.mirror.EnsureSegment(ctx, d.config.ProjectID, taskID, segment); err != nil {
		logger.Warn("Mirror write failed", "op", "ensure_segment", "segment", segment, "error", err)
		return
	}
	if err := d.mirror.SetSegmentStatus(ctx, d.config.ProjectID, taskID, segment, string(types.TaskStatusProving), 0); err != nil {
		logger.Warn("Mirror write failed", "op", "set_segment_status", "segment", segment, "error", err)
	}
}
