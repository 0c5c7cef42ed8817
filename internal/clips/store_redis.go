package clips

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

const jobKeyPrefix = "clipforge:job:"

// RedisStore keeps each job as a JSON record under its own key. Records expire
// after ttl so an unbounded job history never accumulates; rendered artifacts
// are cleaned up by their own external expiry and are not this store's
// concern.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func (s *RedisStore) CreateJob(ctx context.Context, j *Job) error {
	payload, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	return s.rdb.Set(ctx, jobKey(j.ID), payload, s.ttl).Err()
}

func (s *RedisStore) GetJob(ctx context.Context, id string) (*Job, error) {
	data, err := s.rdb.Get(ctx, jobKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	var j Job
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("corrupt job record %s: %w", id, err)
	}
	return &j, nil
}

// ListJobs scans the job keyspace. The listing endpoint is a small
// convenience surface; SCAN over the bounded keyspace is adequate. SCAN order
// is arbitrary, so the full keyspace is collected and ordered newest-first
// before the limit applies, matching the SQLite backend.
func (s *RedisStore) ListJobs(ctx context.Context, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 50
	}
	var jobs []*Job
	iter := s.rdb.Scan(ctx, 0, jobKeyPrefix+"*", int64(limit)).Iterator()
	for iter.Next(ctx) {
		data, err := s.rdb.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			continue
		}
		var j Job
		if err := json.Unmarshal(data, &j); err != nil {
			continue
		}
		jobs = append(jobs, &j)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	sortJobsNewestFirst(jobs)
	if len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

func sortJobsNewestFirst(jobs []*Job) {
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
}

func (s *RedisStore) MarkProcessing(ctx context.Context, id string, totalClips int) error {
	return s.updatePartial(ctx, id, func(j *Job) {
		j.Status = StatusProcessing
		j.TotalClips = totalClips
		j.Progress = 0
	})
}

func (s *RedisStore) AppendClip(ctx context.Context, id string, clip ClipResult, currentClipIndex, progress int) error {
	return s.updatePartial(ctx, id, func(j *Job) {
		j.Clips = append(j.Clips, clip)
		j.CurrentClipIndex = currentClipIndex
		j.Progress = progress
	})
}

func (s *RedisStore) MarkCompleted(ctx context.Context, id string) error {
	return s.updatePartial(ctx, id, func(j *Job) {
		j.Status = StatusCompleted
		j.Progress = 100
	})
}

func (s *RedisStore) MarkError(ctx context.Context, id string, detail string) error {
	return s.updatePartial(ctx, id, func(j *Job) {
		j.Status = StatusError
		j.Error = detail
	})
}

// updatePartial is a read-modify-write cycle on one job record, guarded by
// WATCH so a write that raced another update is retried instead of clobbering
// it. Updates against a terminal record are dropped, the same guard the
// SQLite backend enforces in SQL.
func (s *RedisStore) updatePartial(ctx context.Context, id string, mutate func(*Job)) error {
	key := jobKey(id)

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if err == redis.Nil {
				return ErrJobNotFound
			}
			return err
		}
		var j Job
		if err := json.Unmarshal(data, &j); err != nil {
			return fmt.Errorf("corrupt job record %s: %w", id, err)
		}
		if IsTerminal(j.Status) {
			return nil
		}

		mutate(&j)
		j.UpdatedAt = time.Now().UTC()
		payload, err := json.Marshal(&j)
		if err != nil {
			return fmt.Errorf("marshal job: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, s.ttl)
			return nil
		})
		return err
	}

	const maxRetries = 5
	for i := 0; i < maxRetries; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		if err == redis.TxFailedErr {
			continue
		}
		return err
	}
	return fmt.Errorf("job record %s: update contention exceeded %d retries", id, maxRetries)
}

func jobKey(id string) string {
	return jobKeyPrefix + id
}
