// Package datastore mirrors task and segment progress into an external database for
// operators. The coordinator never reads it back to make decisions.
package datastore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/trigg3rX/proof-coordinator/pkg/logging"
	"github.com/trigg3rX/proof-coordinator/pkg/retry"
)

var ErrRecordNotFound = errors.New("record not found")

const (
	BackendNone     = ""
	BackendPostgres = "postgres"
	BackendScylla   = "scylla"
)

// SegmentRow is one small_proofs row.
type SegmentRow struct {
	ProjectID  string    `json:"project_id"`
	TaskID     string    `json:"task_id"`
	Segment    int       `json:"task_split_id"`
	Percentage float64   `json:"task_percentage"`
	Status     string    `json:"status"`
	CreateTime time.Time `json:"create_time"`
	UpdateTime time.Time `json:"update_time"`
}

// Mirror is the persistence surface used by the dispatcher, the aggregator and status queries.
type Mirror interface {
	EnsureTask(ctx context.Context, projectID, taskID string) error
	SetTaskStatus(ctx context.Context, projectID, taskID, status string) error
	EnsureSegment(ctx context.Context, projectID, taskID string, segment int) error
	SetSegmentStatus(ctx context.Context, projectID, taskID string, segment int, status string, percentage float64) error
	TaskStatus(ctx context.Context, projectID, taskID string) (string, error)
	Segments(ctx context.Context, projectID, taskID string) ([]SegmentRow, error)
	HealthCheck(ctx context.Context) error
	Close()
}

type Config struct {
	Backend             string
	PostgresDSN         string
	ScyllaHosts         []string
	Keyspace            string
	Timeout             time.Duration
	HealthCheckInterval time.Duration
	RetryConfig         *retry.RetryConfig
}

func NewConfig() Config {
	return Config{
		Keyspace:            "proofs",
		Timeout:             10 * time.Second,
		HealthCheckInterval: 15 * time.Second,
		RetryConfig: &retry.RetryConfig{
			MaxRetries:      3,
			InitialDelay:    200 * time.Millisecond,
			MaxDelay:        2 * time.Second,
			BackoffFactor:   2.0,
			JitterFactor:    0.1,
			LogRetryAttempt: true,
		},
	}
}

func (c Config) Validate() error {
	switch c.Backend {
	case BackendNone:
		return nil
	case BackendPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("postgres mirror requires a DSN")
		}
	case BackendScylla:
		if len(c.ScyllaHosts) == 0 {
			return fmt.Errorf("scylla mirror requires at least one host")
		}
		if c.Keyspace == "" {
			return fmt.Errorf("keyspace cannot be empty")
		}
	default:
		return fmt.Errorf("unknown mirror backend %q", c.Backend)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got: %v", c.Timeout)
	}
	if c.HealthCheckInterval < 0 {
		return fmt.Errorf("health check interval cannot be negative, got: %v", c.HealthCheckInterval)
	}
	return nil
}

// NewMirror opens the configured backend. An empty backend yields a no-op mirror.
func NewMirror(ctx context.Context, cfg Config, logger logging.Logger) (Mirror, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Backend {
	case BackendPostgres:
		return NewPostgresMirror(ctx, cfg, logger)
	case BackendScylla:
		return NewScyllaMirror(cfg, logger)
	default:
		return NoopMirror{}, nil
	}
}
