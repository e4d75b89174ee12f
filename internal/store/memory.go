package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/genresorter/api/internal/model"
)

type memoryEntry struct {
	record   *model.JobRecord
	snapshot *model.SourceSnapshot
}

// MemoryStore keeps jobs in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[model.JobID]*memoryEntry
	now  func() time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[model.JobID]*memoryEntry),
		now:  time.Now,
	}
}

func (s *MemoryStore) CreateSnapshot(ctx context.Context, tracks []model.Track) (model.JobID, error) {
	now := s.now()
	id := model.NewJobID()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[id] = &memoryEntry{
		record:   model.NewJobRecord(id, len(tracks), now),
		snapshot: model.NewSourceSnapshot(id, tracks, now),
	}
	return id, nil
}

func (s *MemoryStore) Snapshot(ctx context.Context, id model.JobID) (*model.SourceSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.jobs[id]
	if !ok {
		return nil, notFound(id)
	}
	return e.snapshot.Clone(), nil
}

func (s *MemoryStore) Get(ctx context.Context, id model.JobID) (*model.JobRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.jobs[id]
	if !ok {
		return nil, notFound(id)
	}
	return e.record.Clone(), nil
}

func (s *MemoryStore) MarkRunning(ctx context.Context, id model.JobID) error {
	return s.update(id, func(rec *model.JobRecord, now time.Time) error {
		return applyStart(rec, now)
	})
}

func (s *MemoryStore) UpdateProgress(ctx context.Context, id model.JobID, percent int, status model.JobStatus) error {
	return s.update(id, func(rec *model.JobRecord, now time.Time) error {
		return applyProgress(rec, percent, status, now)
	})
}

func (s *MemoryStore) Fail(ctx context.Context, id model.JobID, reason string) error {
	return s.update(id, func(rec *model.JobRecord, now time.Time) error {
		return applyFail(rec, reason, now)
	})
}

func (s *MemoryStore) SetResult(ctx context.Context, id model.JobID, grouped model.GroupedTracks) error {
	return s.update(id, func(rec *model.JobRecord, now time.Time) error {
		return applyResult(rec, grouped, now)
	})
}

func (s *MemoryStore) Delete(ctx context.Context, id model.JobID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return notFound(id)
	}
	delete(s.jobs, id)
	return nil
}

func (s *MemoryStore) Sweep(ctx context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, e := range s.jobs {
		if isSweepable(e.record, olderThan) {
			delete(s.jobs, id)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored jobs.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

// update applies fn to a working copy and commits it only on success.
func (s *MemoryStore) update(id model.JobID, fn func(*model.JobRecord, time.Time) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.jobs[id]
	if !ok {
		return notFound(id)
	}
	rec := e.record.Clone()
	if err := fn(rec, s.now()); err != nil {
		return err
	}
	e.record = rec
	return nil
}

func notFound(id model.JobID) error {
	return fmt.Errorf("%w: %s", model.ErrNotFound, id)
}
