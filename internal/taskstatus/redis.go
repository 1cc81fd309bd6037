package taskstatus

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/trigg3rX/proof-coordinator/pkg/types"
)

const DefaultStatusTTL = 7 * 24 * time.Hour

// upsertScript applies a status to one hash field without ever leaving "proven".
// KEYS[1] task hash, ARGV[1] segment, ARGV[2] status, ARGV[3] ttl seconds.
var upsertScript = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], ARGV[1])
if current == 'proven' then
  return 0
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
if tonumber(ARGV[3]) > 0 then
  redis.call('EXPIRE', KEYS[1], ARGV[3])
end
return 1
`)

// RedisStore keeps one hash per task, one field per segment.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
}

var _ Store = (*RedisStore)(nil)

type RedisOptions struct {
	KeyPrefix string
	TTL       time.Duration
}

func NewRedisStore(client redis.UniversalClient, opts RedisOptions) *RedisStore {
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = "proof:status"
	}
	if opts.TTL == 0 {
		opts.TTL = DefaultStatusTTL
	}
	return &RedisStore{
		client:    client,
		keyPrefix: opts.KeyPrefix,
		ttl:       opts.TTL,
	}
}

// NewRedisClient parses a redis:// URL and verifies connectivity.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

func (s *RedisStore) taskKey(projectID, taskID string) string {
	return s.keyPrefix + ":" + projectID + ":" + taskID
}

func (s *RedisStore) UpsertStatus(ctx context.Context, id types.SegmentIdentity, status types.TaskStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", types.ErrInvalidStatus, status)
	}
	key := s.taskKey(id.ProjectID, id.TaskID)
	ttl := int64(s.ttl / time.Second)
	if err := upsertScript.Run(ctx, s.client, []string{key}, id.Segment, string(status), ttl).Err(); err != nil {
		return fmt.Errorf("redis upsert status for %s#%d: %w", id.TaskID, id.Segment, err)
	}
	return nil
}

func (s *RedisStore) GetStatus(ctx context.Context, id types.SegmentIdentity) (types.TaskStatus, bool, error) {
	val, err := s.client.HGet(ctx, s.taskKey(id.ProjectID, id.TaskID), strconv.Itoa(id.Segment)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("redis get status for %s#%d: %w", id.TaskID, id.Segment, err)
	}
	status, err := types.ParseTaskStatus(val)
	if err != nil {
		return "", false, err
	}
	return status, true, nil
}

func (s *RedisStore) AllSegmentsProven(ctx context.Context, projectID, taskID string, segments int) (bool, error) {
	if segments <= 0 {
		return false, nil
	}
	records, err := s.Segments(ctx, projectID, taskID, segments)
	if err != nil {
		return false, err
	}
	for _, r := range records {
		if !r.Known || r.Status != types.TaskStatusProven {
			return false, nil
		}
	}
	return true, nil
}

// Segments reads every field with one HMGET so the view is never torn.
func (s *RedisStore) Segments(ctx context.Context, projectID, taskID string, segments int) ([]SegmentRecord, error) {
	if segments <= 0 {
		return nil, nil
	}
	fields := make([]string, segments)
	for i := range fields {
		fields[i] = strconv.Itoa(i)
	}

	values, err := s.client.HMGet(ctx, s.taskKey(projectID, taskID), fields...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis read segments of %s: %w", taskID, err)
	}

	records := make([]SegmentRecord, segments)
	for i, v := range values {
		records[i] = SegmentRecord{Segment: i}
		raw, ok := v.(string)
		if !ok {
			continue
		}
		status, err := types.ParseTaskStatus(raw)
		if err != nil {
			return nil, err
		}
		records[i].Status = status
		records[i].Known = true
	}
	return records, nil
}
