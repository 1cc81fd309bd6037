package datastore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/gocql/gocql"
	"github.com/trigg3rX/proof-coordinator/pkg/logging"
	"github.com/trigg3rX/proof-coordinator/pkg/retry"
)

var scyllaSchema = []string{
	`CREATE TABLE IF NOT EXISTS big_proofs (
  project_id text,
  task_id text,
  status text,
  create_time timestamp,
  update_time timestamp,
  PRIMARY KEY ((project_id, task_id))
)`,
	`CREATE TABLE IF NOT EXISTS small_proofs (
  project_id text,
  task_id text,
  task_split_id int,
  task_percentage double,
  status text,
  create_time timestamp,
  update_time timestamp,
  PRIMARY KEY ((project_id, task_id), task_split_id)
)`,
}

// ScyllaMirror writes the same two tables to ScyllaDB. A background checker replaces the
// session when the cluster stops answering.
type ScyllaMirror struct {
	config Config
	logger logging.Logger

	mu      sync.RWMutex
	session *gocql.Session

	stop chan struct{}
	done chan struct{}
}

var _ Mirror = (*ScyllaMirror)(nil)

func newCluster(cfg Config) *gocql.ClusterConfig {
	cluster := gocql.NewCluster(cfg.ScyllaHosts...)
	cluster.Keyspace = cfg.Keyspace
	cluster.Timeout = cfg.Timeout
	cluster.ConnectTimeout = cfg.Timeout
	cluster.Consistency = gocql.Quorum
	cluster.ProtoVersion = 4
	cluster.SocketKeepalive = 15 * time.Second
	cluster.RetryPolicy = &gocql.SimpleRetryPolicy{NumRetries: 2}
	return cluster
}

func NewScyllaMirror(cfg Config, logger logging.Logger) (*ScyllaMirror, error) {
	session, err := newCluster(cfg).CreateSession()
	if err != nil {
		return nil, fmt.Errorf("connect scylla: %w", err)
	}

	m := &ScyllaMirror{
		config:  cfg,
		logger:  logger.With("component", "scylla-mirror"),
		session: session,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, stmt := range scyllaSchema {
		if err := session.Query(stmt).Exec(); err != nil {
			session.Close()
			return nil, fmt.Errorf("init scylla schema: %w", err)
		}
	}

	if cfg.HealthCheckInterval > 0 {
		go m.healthLoop()
	} else {
		close(m.done)
	}
	m.logger.Info("Scylla mirror ready", "hosts", cfg.ScyllaHosts, "keyspace", cfg.Keyspace)
	return m, nil
}

func (m *ScyllaMirror) getSession() *gocql.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session
}

func (m *ScyllaMirror) healthLoop() {
	defer close(m.done)
	ticker := time.NewTicker(m.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := m.HealthCheck(ctx)
			cancel()
			if err != nil {
				m.logger.Errorf("Scylla health check failed: %v. Attempting to reconnect...", err)
				m.reconnect()
			}
		}
	}
}

func (m *ScyllaMirror) reconnect() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-m.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	err := retry.RetryFunc(ctx, func() error {
		session, err := newCluster(m.config).CreateSession()
		if err != nil {
			return err
		}
		m.mu.Lock()
		old := m.session
		m.session = session
		m.mu.Unlock()
		if old != nil {
			old.Close()
		}
		return nil
	}, m.config.RetryConfig, m.logger)
	if err != nil {
		m.logger.Error("Scylla reconnect failed", "error", err)
		return
	}
	m.logger.Info("Reconnected to scylla")
}

func (m *ScyllaMirror) exec(ctx context.Context, stmt string, values ...interface{}) error {
	var cfg retry.RetryConfig
	if m.config.RetryConfig != nil {
		cfg = *m.config.RetryConfig
	} else {
		cfg = *retry.DefaultRetryConfig()
	}
	cfg.ShouldRetry = func(err error, _ int) bool { return gocqlShouldRetry(err) }

	return retry.RetryFunc(ctx, func() error {
		return m.getSession().Query(stmt, values...).WithContext(ctx).Idempotent(true).Exec()
	}, &cfg, m.logger)
}

func (m *ScyllaMirror) EnsureTask(ctx context.Context, projectID, taskID string) error {
	now := time.Now().UTC()
	err := m.getSession().Query(
		`INSERT INTO big_proofs (project_id, task_id, status, create_time, update_time) VALUES (?, ?, 'created', ?, ?) IF NOT EXISTS`,
		projectID, taskID, now, now,
	).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("ensure task %s: %w", taskID, err)
	}
	return nil
}

func (m *ScyllaMirror) SetTaskStatus(ctx context.Context, projectID, taskID, status string) error {
	err := m.exec(ctx,
		`UPDATE big_proofs SET status = ?, update_time = ? WHERE project_id = ? AND task_id = ?`,
		status, time.Now().UTC(), projectID, taskID,
	)
	if err != nil {
		return fmt.Errorf("set task %s status: %w", taskID, err)
	}
	return nil
}

func (m *ScyllaMirror) EnsureSegment(ctx context.Context, projectID, taskID string, segment int) error {
	now := time.Now().UTC()
	err := m.getSession().Query(
		`INSERT INTO small_proofs (project_id, task_id, task_split_id, task_percentage, status, create_time, update_time) VALUES (?, ?, ?, 0, 'created', ?, ?) IF NOT EXISTS`,
		projectID, taskID, segment, now, now,
	).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("ensure segment %s#%d: %w", taskID, segment, err)
	}
	return nil
}

func (m *ScyllaMirror) SetSegmentStatus(ctx context.Context, projectID, taskID string, segment int, status string, percentage float64) error {
	err := m.exec(ctx,
		`UPDATE small_proofs SET status = ?, task_percentage = ?, update_time = ? WHERE project_id = ? AND task_id = ? AND task_split_id = ?`,
		status, percentage, time.Now().UTC(), projectID, taskID, segment,
	)
	if err != nil {
		return fmt.Errorf("set segment %s#%d status: %w", taskID, segment, err)
	}
	return nil
}

func (m *ScyllaMirror) TaskStatus(ctx context.Context, projectID, taskID string) (string, error) {
	var status string
	err := m.getSession().Query(
		`SELECT status FROM big_proofs WHERE project_id = ? AND task_id = ?`,
		projectID, taskID,
	).WithContext(ctx).Scan(&status)
	if errors.Is(err, gocql.ErrNotFound) {
		return "", ErrRecordNotFound
	}
	if err != nil {
		return "", fmt.Errorf("query task %s: %w", taskID, err)
	}
	return status, nil
}

func (m *ScyllaMirror) Segments(ctx context.Context, projectID, taskID string) ([]SegmentRow, error) {
	iter := m.getSession().Query(
		`SELECT task_split_id, task_percentage, status, create_time, update_time FROM small_proofs WHERE project_id = ? AND task_id = ?`,
		projectID, taskID,
	).WithContext(ctx).Iter()

	var out []SegmentRow
	row := SegmentRow{ProjectID: projectID, TaskID: taskID}
	for iter.Scan(&row.Segment, &row.Percentage, &row.Status, &row.CreateTime, &row.UpdateTime) {
		out = append(out, row)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("query segments of %s: %w", taskID, err)
	}
	return out, nil
}

func (m *ScyllaMirror) HealthCheck(ctx context.Context) error {
	return m.getSession().Query("SELECT release_version FROM system.local").WithContext(ctx).Exec()
}

func (m *ScyllaMirror) Close() {
	select {
	case <-m.stop:
	default:
		close(m.stop)
	}
	<-m.done

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != nil {
		m.session.Close()
	}
}

// gocqlShouldRetry reports whether a gocql error is transient.
func gocqlShouldRetry(err error) bool {
	if err == nil || errors.Is(err, gocql.ErrNotFound) {
		return false
	}

	// 0x2000 syntax error, 0x2200 invalid query
	var reqErr gocql.RequestError
	if errors.As(err, &reqErr) {
		switch reqErr.Code() {
		case gocql.ErrCodeSyntax, gocql.ErrCodeInvalid:
			return false
		}
	}

	switch err.(type) {
	case *gocql.RequestErrWriteTimeout,
		*gocql.RequestErrReadTimeout,
		*gocql.RequestErrUnavailable,
		*gocql.RequestErrReadFailure,
		*gocql.RequestErrWriteFailure:
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, fragment := range []string{
		"no connections available",
		"connection reset by peer",
		"i/o timeout",
		"broken pipe",
		"connection refused",
	} {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}
