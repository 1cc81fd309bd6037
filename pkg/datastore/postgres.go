package datastore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/trigg3rX/proof-coordinator/pkg/logging"
	"github.com/trigg3rX/proof-coordinator/pkg/retry"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS big_proofs (
  id BIGSERIAL PRIMARY KEY,
  project_id TEXT NOT NULL,
  task_id TEXT NOT NULL,
  status TEXT NOT NULL,
  create_time TIMESTAMPTZ NOT NULL DEFAULT now(),
  update_time TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS big_proofs_task_idx ON big_proofs (project_id, task_id);
CREATE TABLE IF NOT EXISTS small_proofs (
  id BIGSERIAL PRIMARY KEY,
  project_id TEXT NOT NULL,
  task_id TEXT NOT NULL,
  task_split_id INT NOT NULL,
  task_percentage DOUBLE PRECISION NOT NULL DEFAULT 0,
  status TEXT NOT NULL,
  create_time TIMESTAMPTZ NOT NULL DEFAULT now(),
  update_time TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS small_proofs_segment_idx ON small_proofs (project_id, task_id, task_split_id);
`

const (
	ensureTaskQuery = `INSERT INTO big_proofs (project_id, task_id, status) VALUES ($1, $2, 'created')
ON CONFLICT (project_id, task_id) DO NOTHING`
	setTaskStatusQuery = `INSERT INTO big_proofs (project_id, task_id, status) VALUES ($1, $2, $3)
ON CONFLICT (project_id, task_id) DO UPDATE SET status = EXCLUDED.status, update_time = now()`
	ensureSegmentQuery = `INSERT INTO small_proofs (project_id, task_id, task_split_id, status) VALUES ($1, $2, $3, 'created')
ON CONFLICT (project_id, task_id, task_split_id) DO NOTHING`
	// a proven segment keeps its status
	setSegmentStatusQuery = `INSERT INTO small_proofs (project_id, task_id, task_split_id, status, task_percentage) VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (project_id, task_id, task_split_id) DO UPDATE
SET status = EXCLUDED.status, task_percentage = EXCLUDED.task_percentage, update_time = now()
WHERE small_proofs.status <> 'proven'`
	taskStatusQuery = `SELECT status FROM big_proofs WHERE project_id = $1 AND task_id = $2`
	segmentsQuery   = `SELECT task_split_id, task_percentage, status, create_time, update_time
FROM small_proofs WHERE project_id = $1 AND task_id = $2 ORDER BY task_split_id`
)

// PostgresMirror writes big_proofs and small_proofs rows through a pgx pool.
type PostgresMirror struct {
	pool        *pgxpool.Pool
	logger      logging.Logger
	timeout     time.Duration
	retryConfig *retry.RetryConfig
}

var _ Mirror = (*PostgresMirror)(nil)

func NewPostgresMirror(ctx context.Context, cfg Config, logger logging.Logger) (*PostgresMirror, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.HealthCheckInterval > 0 {
		poolCfg.HealthCheckPeriod = cfg.HealthCheckInterval
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	m := &PostgresMirror{
		pool:        pool,
		logger:      logger.With("component", "postgres-mirror"),
		timeout:     cfg.Timeout,
		retryConfig: cfg.RetryConfig,
	}
	if err := m.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	m.logger.Info("Postgres mirror ready")
	return m, nil
}

func (m *PostgresMirror) initSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	if _, err := m.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("init postgres schema: %w", err)
	}
	return nil
}

func (m *PostgresMirror) exec(ctx context.Context, query string, args ...interface{}) error {
	cfg := m.retryConfigWith(pgShouldRetry)
	return retry.RetryFunc(ctx, func() error {
		ctx, cancel := context.WithTimeout(ctx, m.timeout)
		defer cancel()
		_, err := m.pool.Exec(ctx, query, args...)
		return err
	}, cfg, m.logger)
}

func (m *PostgresMirror) retryConfigWith(shouldRetry func(error) bool) *retry.RetryConfig {
	var cfg retry.RetryConfig
	if m.retryConfig != nil {
		cfg = *m.retryConfig
	} else {
		cfg = *retry.DefaultRetryConfig()
	}
	cfg.ShouldRetry = func(err error, _ int) bool { return shouldRetry(err) }
	return &cfg
}

func (m *PostgresMirror) EnsureTask(ctx context.Context, projectID, taskID string) error {
	if err := m.exec(ctx, ensureTaskQuery, projectID, taskID); err != nil {
		return fmt.Errorf("ensure task %s: %w", taskID, err)
	}
	return nil
}

func (m *PostgresMirror) SetTaskStatus(ctx context.Context, projectID, taskID, status string) error {
	if err := m.exec(ctx, setTaskStatusQuery, projectID, taskID, status); err != nil {
		return fmt.Errorf("set task %s status: %w", taskID, err)
	}
	return nil
}

func (m *PostgresMirror) EnsureSegment(ctx context.Context, projectID, taskID string, segment int) error {
	if err := m.exec(ctx, ensureSegmentQuery, projectID, taskID, segment); err != nil {
		return fmt.Errorf("ensure segment %s#%d: %w", taskID, segment, err)
	}
	return nil
}

func (m *PostgresMirror) SetSegmentStatus(ctx context.Context, projectID, taskID string, segment int, status string, percentage float64) error {
	if err := m.exec(ctx, setSegmentStatusQuery, projectID, taskID, segment, status, percentage); err != nil {
		return fmt.Errorf("set segment %s#%d status: %w", taskID, segment, err)
	}
	return nil
}

func (m *PostgresMirror) TaskStatus(ctx context.Context, projectID, taskID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	var status string
	err := m.pool.QueryRow(ctx, taskStatusQuery, projectID, taskID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrRecordNotFound
	}
	if err != nil {
		return "", fmt.Errorf("query task %s: %w", taskID, err)
	}
	return status, nil
}

func (m *PostgresMirror) Segments(ctx context.Context, projectID, taskID string) ([]SegmentRow, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	rows, err := m.pool.Query(ctx, segmentsQuery, projectID, taskID)
	if err != nil {
		return nil, fmt.Errorf("query segments of %s: %w", taskID, err)
	}
	defer rows.Close()

	var out []SegmentRow
	for rows.Next() {
		row := SegmentRow{ProjectID: projectID, TaskID: taskID}
		if err := rows.Scan(&row.Segment, &row.Percentage, &row.Status, &row.CreateTime, &row.UpdateTime); err != nil {
			return nil, fmt.Errorf("scan segment row: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate segments of %s: %w", taskID, err)
	}
	return out, nil
}

func (m *PostgresMirror) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	return m.pool.Ping(ctx)
}

func (m *PostgresMirror) Close() {
	m.pool.Close()
}

// pgShouldRetry retries connection failures and serialization conflicts.
func pgShouldRetry(err error) bool {
	if err == nil || errors.Is(err, pgx.ErrNoRows) {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case len(pgErr.Code) >= 2 && pgErr.Code[:2] == "08":
			return true
		case pgErr.Code == "40001", pgErr.Code == "40P01", pgErr.Code == "57P01":
			return true
		default:
			return false
		}
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return true
	}
	return retry.IsTransientNetError(err)
}
