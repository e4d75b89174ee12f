package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/genresorter/api/internal/model"
)

const (
	jobKeyPrefix      = "job:"
	snapshotKeySuffix = ":snapshot"

	maxTxRetries = 50
)

// RedisStore keeps jobs as JSON documents in redis. Both keys of a job expire
// after the retention period.
type RedisStore struct {
	redis     *redis.Client
	retention time.Duration
	now       func() time.Time
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(redisClient *redis.Client, retention time.Duration) *RedisStore {
	return &RedisStore{
		redis:     redisClient,
		retention: retention,
		now:       time.Now,
	}
}

func jobKey(id model.JobID) string {
	return jobKeyPrefix + string(id)
}

func snapshotKey(id model.JobID) string {
	return jobKeyPrefix + string(id) + snapshotKeySuffix
}

func (s *RedisStore) CreateSnapshot(ctx context.Context, tracks []model.Track) (model.JobID, error) {
	now := s.now()
	id := model.NewJobID()

	snapData, err := json.Marshal(model.NewSourceSnapshot(id, tracks, now))
	if err != nil {
		return "", fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	recData, err := json.Marshal(model.NewJobRecord(id, len(tracks), now))
	if err != nil {
		return "", fmt.Errorf("failed to marshal job: %w", err)
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, snapshotKey(id), snapData, s.retention)
		pipe.Set(ctx, jobKey(id), recData, s.retention)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to save job: %w", err)
	}
	return id, nil
}

func (s *RedisStore) Snapshot(ctx context.Context, id model.JobID) (*model.SourceSnapshot, error) {
	data, err := s.redis.Get(ctx, snapshotKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, notFound(id)
		}
		return nil, err
	}

	var snap model.SourceSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

func (s *RedisStore) Get(ctx context.Context, id model.JobID) (*model.JobRecord, error) {
	return getRecord(ctx, s.redis, id)
}

func (s *RedisStore) MarkRunning(ctx context.Context, id model.JobID) error {
	return s.update(ctx, id, func(rec *model.JobRecord, now time.Time) error {
		return applyStart(rec, now)
	})
}

func (s *RedisStore) UpdateProgress(ctx context.Context, id model.JobID, percent int, status model.JobStatus) error {
	return s.update(ctx, id, func(rec *model.JobRecord, now time.Time) error {
		return applyProgress(rec, percent, status, now)
	})
}

func (s *RedisStore) Fail(ctx context.Context, id model.JobID, reason string) error {
	return s.update(ctx, id, func(rec *model.JobRecord, now time.Time) error {
		return applyFail(rec, reason, now)
	})
}

func (s *RedisStore) SetResult(ctx context.Context, id model.JobID, grouped model.GroupedTracks) error {
	return s.update(ctx, id, func(rec *model.JobRecord, now time.Time) error {
		return applyResult(rec, grouped, now)
	})
}

func (s *RedisStore) Delete(ctx context.Context, id model.JobID) error {
	n, err := s.redis.Del(ctx, jobKey(id), snapshotKey(id)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound(id)
	}
	return nil
}

// Sweep scans job keys and deletes terminal ones. Expiry already bounds
// memory; this only reclaims it earlier.
func (s *RedisStore) Sweep(ctx context.Context, olderThan time.Time) (int, error) {
	removed := 0
	iter := s.redis.Scan(ctx, 0, jobKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if strings.HasSuffix(key, snapshotKeySuffix) {
			continue
		}
		id := model.JobID(strings.TrimPrefix(key, jobKeyPrefix))
		rec, err := getRecord(ctx, s.redis, id)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				continue
			}
			return removed, err
		}
		if !isSweepable(rec, olderThan) {
			continue
		}
		if err := s.redis.Del(ctx, jobKey(id), snapshotKey(id)).Err(); err != nil {
			return removed, err
		}
		removed++
	}
	if err := iter.Err(); err != nil {
		return removed, err
	}
	return removed, nil
}

// update runs fn inside an optimistic transaction on the job key, retrying
// when another writer touched the record in between.
func (s *RedisStore) update(ctx context.Context, id model.JobID, fn func(*model.JobRecord, time.Time) error) error {
	key := jobKey(id)
	txf := func(tx *redis.Tx) error {
		rec, err := getRecord(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := fn(rec, s.now()); err != nil {
			return err
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal job: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, redis.KeepTTL)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.redis.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("update job %s: too many concurrent writers", id)
}

// getter is satisfied by both *redis.Client and *redis.Tx.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func getRecord(ctx context.Context, c getter, id model.JobID) (*model.JobRecord, error) {
	data, err := c.Get(ctx, jobKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, notFound(id)
		}
		return nil, err
	}

	var rec model.JobRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &rec, nil
}
