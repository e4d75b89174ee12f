// Package session remembers, per session key, the snapshot a user is working
// with so repeated page loads reuse it instead of refetching the library.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/singleflight"

	"github.com/genresorter/api/internal/model"
	"github.com/genresorter/api/internal/store"
)

// FetchFunc loads the tracks for a new snapshot.
type FetchFunc func(ctx context.Context) ([]model.Track, error)

// Entry is the cached state of one session.
type Entry struct {
	JobID      model.JobID
	TrackCount int
	FetchedAt  time.Time
	LastAccess time.Time
	// Report is the outcome of the session's latest playlist batch.
	Report *model.PlaylistCreationReport
}

func (e *Entry) clone() Entry {
	out := *e
	out.Report = e.Report.Clone()
	return out
}

// Cache maps session keys to entries. Evicting an entry never touches the
// job store.
type Cache struct {
	store store.Store
	ttl   time.Duration
	idle  time.Duration
	log   logr.Logger
	now   func() time.Time

	group singleflight.Group

	mu      sync.Mutex
	entries map[string]*Entry
}

// New creates a cache. Entries younger than ttl are reused; entries not
// accessed for idle are evicted by Run.
func New(s store.Store, ttl, idle time.Duration, log logr.Logger) *Cache {
	return &Cache{
		store:   s,
		ttl:     ttl,
		idle:    idle,
		log:     log.WithName("session"),
		now:     time.Now,
		entries: make(map[string]*Entry),
	}
}

// ResolveOrCreate returns the session's snapshot when it is fresh and still
// in the store, or fetches a new one. reused reports which happened.
// Concurrent calls for one key share a single fetch. The shared fetch does
// not inherit the cancellation of whichever caller started it; a caller whose
// ctx ends stops waiting and gets ctx.Err().
func (c *Cache) ResolveOrCreate(ctx context.Context, key string, refresh bool, fetch FetchFunc) (entry Entry, reused bool, err error) {
	if !refresh {
		if e, ok := c.fresh(ctx, key); ok {
			return e, true, nil
		}
	}

	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (interface{}, error) {
		tracks, err := fetch(shared)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch library: %w", err)
		}
		id, err := c.store.CreateSnapshot(shared, tracks)
		if err != nil {
			return nil, fmt.Errorf("failed to create snapshot: %w", err)
		}

		now := c.now()
		e := &Entry{JobID: id, TrackCount: len(tracks), FetchedAt: now, LastAccess: now}
		c.mu.Lock()
		c.entries[key] = e
		out := e.clone()
		c.mu.Unlock()

		c.log.V(1).Info("created snapshot", "jobId", id, "tracks", len(tracks))
		return out, nil
	})

	select {
	case <-ctx.Done():
		return Entry{}, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Entry{}, false, res.Err
		}
		return res.Val.(Entry), false, nil
	}
}

func (c *Cache) fresh(ctx context.Context, key string) (Entry, bool) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok || c.now().Sub(e.FetchedAt) >= c.ttl {
		c.mu.Unlock()
		return Entry{}, false
	}
	id := e.JobID
	c.mu.Unlock()

	// The store may have swept or expired the job.
	if _, err := c.store.Get(ctx, id); err != nil {
		if !errors.Is(err, model.ErrNotFound) {
			c.log.Error(err, "failed to check cached job", "jobId", id)
		}
		return Entry{}, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok = c.entries[key]
	if !ok || e.JobID != id {
		return Entry{}, false
	}
	e.LastAccess = c.now()
	return e.clone(), true
}

// Get returns the entry for key and marks it as accessed.
func (c *Cache) Get(key string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return Entry{}, false
	}
	e.LastAccess = c.now()
	return e.clone(), true
}

// SetReport stores the latest playlist report if it belongs to the
// session's current job.
func (c *Cache) SetReport(key string, report *model.PlaylistCreationReport) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || report == nil || e.JobID != report.JobID {
		return false
	}
	e.Report = report.Clone()
	e.LastAccess = c.now()
	return true
}

// Forget drops the session's entry.
func (c *Cache) Forget(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	delete(c.entries, key)
	return ok
}

// Len returns the number of cached sessions.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Run evicts idle entries every interval until ctx is done.
func (c *Cache) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.evictIdle(); n > 0 {
				c.log.V(1).Info("evicted idle sessions", "count", n)
			}
		}
	}
}

func (c *Cache) evictIdle() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	cutoff := c.now().Add(-c.idle)
	n := 0
	for key, e := range c.entries {
		if e.LastAccess.Before(cutoff) {
			delete(c.entries, key)
			n++
		}
	}
	return n
}
