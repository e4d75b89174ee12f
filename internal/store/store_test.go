package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/genresorter/api/internal/model"
)

func sampleTracks() []model.Track {
	return []model.Track{
		{ID: "A", Name: "First", ArtistIDs: []string{"x"}, Genres: []string{"Rock"}},
		{ID: "B", Name: "Second", ArtistIDs: []string{"y"}, Genres: []string{"Rock", "Jazz"}},
	}
}

// runStoreTests exercises the lifecycle rules every Store must honour.
func runStoreTests(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("CreateSnapshot starts pending", func(t *testing.T) {
		s := newStore(t)
		id, err := s.CreateSnapshot(ctx, sampleTracks())
		if err != nil {
			t.Fatalf("CreateSnapshot: %v", err)
		}
		rec, err := s.Get(ctx, id)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if rec.Status != model.JobStatusPending || rec.Progress != 0 {
			t.Errorf("got %s/%d, want pending/0", rec.Status, rec.Progress)
		}
		if rec.TrackCount != 2 {
			t.Errorf("TrackCount = %d, want 2", rec.TrackCount)
		}
		snap, err := s.Snapshot(ctx, id)
		if err != nil {
			t.Fatalf("Snapshot: %v", err)
		}
		if len(snap.Tracks) != 2 || snap.Tracks[1].ID != "B" {
			t.Errorf("unexpected snapshot tracks: %+v", snap.Tracks)
		}
	})

	t.Run("CreateSnapshot gives distinct ids", func(t *testing.T) {
		s := newStore(t)
		a, _ := s.CreateSnapshot(ctx, sampleTracks())
		b, _ := s.CreateSnapshot(ctx, sampleTracks())
		if a == b {
			t.Fatalf("expected distinct ids, got %s twice", a)
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		s := newStore(t)
		id := model.NewJobID()
		if _, err := s.Get(ctx, id); !errors.Is(err, model.ErrNotFound) {
			t.Errorf("Get: expected ErrNotFound, got %v", err)
		}
		if _, err := s.Snapshot(ctx, id); !errors.Is(err, model.ErrNotFound) {
			t.Errorf("Snapshot: expected ErrNotFound, got %v", err)
		}
		if err := s.UpdateProgress(ctx, id, 10, model.JobStatusRunning); !errors.Is(err, model.ErrNotFound) {
			t.Errorf("UpdateProgress: expected ErrNotFound, got %v", err)
		}
		if err := s.MarkRunning(ctx, id); !errors.Is(err, model.ErrNotFound) {
			t.Errorf("MarkRunning: expected ErrNotFound, got %v", err)
		}
	})

	t.Run("MarkRunning only once", func(t *testing.T) {
		s := newStore(t)
		id, _ := s.CreateSnapshot(ctx, sampleTracks())
		if err := s.MarkRunning(ctx, id); err != nil {
			t.Fatalf("MarkRunning: %v", err)
		}
		if err := s.MarkRunning(ctx, id); !errors.Is(err, model.ErrAlreadyStarted) {
			t.Errorf("expected ErrAlreadyStarted, got %v", err)
		}
		rec, _ := s.Get(ctx, id)
		if rec.StartedAt == nil {
			t.Error("expected StartedAt to be set")
		}
	})

	t.Run("progress never decreases", func(t *testing.T) {
		s := newStore(t)
		id, _ := s.CreateSnapshot(ctx, sampleTracks())
		_ = s.MarkRunning(ctx, id)

		if err := s.UpdateProgress(ctx, id, 60, model.JobStatusRunning); err != nil {
			t.Fatalf("UpdateProgress: %v", err)
		}
		if err := s.UpdateProgress(ctx, id, 30, model.JobStatusRunning); err != nil {
			t.Fatalf("UpdateProgress: %v", err)
		}
		rec, _ := s.Get(ctx, id)
		if rec.Progress != 60 {
			t.Errorf("Progress = %d, want 60", rec.Progress)
		}

		_ = s.UpdateProgress(ctx, id, 250, model.JobStatusRunning)
		rec, _ = s.Get(ctx, id)
		if rec.Progress != 100 {
			t.Errorf("Progress = %d, want clamped 100", rec.Progress)
		}
	})

	t.Run("status cannot move backwards", func(t *testing.T) {
		s := newStore(t)
		id, _ := s.CreateSnapshot(ctx, sampleTracks())
		_ = s.MarkRunning(ctx, id)
		err := s.UpdateProgress(ctx, id, 10, model.JobStatusPending)
		if !errors.Is(err, model.ErrInvalidTransition) {
			t.Errorf("expected ErrInvalidTransition, got %v", err)
		}
	})

	t.Run("completion requires a result", func(t *testing.T) {
		s := newStore(t)
		id, _ := s.CreateSnapshot(ctx, sampleTracks())
		_ = s.MarkRunning(ctx, id)
		err := s.UpdateProgress(ctx, id, 100, model.JobStatusCompleted)
		if !errors.Is(err, model.ErrInvalidTransition) {
			t.Errorf("expected ErrInvalidTransition, got %v", err)
		}
	})

	t.Run("SetResult completes once", func(t *testing.T) {
		s := newStore(t)
		id, _ := s.CreateSnapshot(ctx, sampleTracks())
		_ = s.MarkRunning(ctx, id)

		grouped := model.NewGroupedTracks(sampleTracks())
		if err := s.SetResult(ctx, id, grouped); err != nil {
			t.Fatalf("SetResult: %v", err)
		}
		rec, _ := s.Get(ctx, id)
		if rec.Status != model.JobStatusCompleted || rec.Progress != 100 {
			t.Errorf("got %s/%d, want completed/100", rec.Status, rec.Progress)
		}
		if rec.Result == nil || (*rec.Result)["Rock"].Count != 2 {
			t.Errorf("unexpected result: %+v", rec.Result)
		}
		if rec.CompletedAt == nil {
			t.Error("expected CompletedAt to be set")
		}

		if err := s.SetResult(ctx, id, grouped); !errors.Is(err, model.ErrInvalidTransition) {
			t.Errorf("second SetResult: expected ErrInvalidTransition, got %v", err)
		}
		if err := s.UpdateProgress(ctx, id, 50, model.JobStatusRunning); !errors.Is(err, model.ErrInvalidTransition) {
			t.Errorf("UpdateProgress after completion: expected ErrInvalidTransition, got %v", err)
		}
		if err := s.Fail(ctx, id, "late"); !errors.Is(err, model.ErrInvalidTransition) {
			t.Errorf("Fail after completion: expected ErrInvalidTransition, got %v", err)
		}
	})

	t.Run("empty result", func(t *testing.T) {
		s := newStore(t)
		id, _ := s.CreateSnapshot(ctx, nil)
		_ = s.MarkRunning(ctx, id)
		if err := s.SetResult(ctx, id, model.NewGroupedTracks(nil)); err != nil {
			t.Fatalf("SetResult: %v", err)
		}
		rec, _ := s.Get(ctx, id)
		if rec.Result == nil || len(*rec.Result) != 0 {
			t.Errorf("expected empty non-nil result, got %+v", rec.Result)
		}
	})

	t.Run("Fail records reason", func(t *testing.T) {
		s := newStore(t)
		id, _ := s.CreateSnapshot(ctx, sampleTracks())
		_ = s.MarkRunning(ctx, id)
		if err := s.Fail(ctx, id, "provider down"); err != nil {
			t.Fatalf("Fail: %v", err)
		}
		rec, _ := s.Get(ctx, id)
		if rec.Status != model.JobStatusFailed {
			t.Errorf("Status = %s, want failed", rec.Status)
		}
		if rec.Error == nil || *rec.Error != "provider down" {
			t.Errorf("Error = %v, want provider down", rec.Error)
		}
		if rec.Result != nil {
			t.Error("failed job must not carry a result")
		}
		if err := s.Fail(ctx, id, "again"); !errors.Is(err, model.ErrInvalidTransition) {
			t.Errorf("second Fail: expected ErrInvalidTransition, got %v", err)
		}
	})

	t.Run("Get returns copies", func(t *testing.T) {
		s := newStore(t)
		id, _ := s.CreateSnapshot(ctx, sampleTracks())
		_ = s.MarkRunning(ctx, id)
		_ = s.SetResult(ctx, id, model.NewGroupedTracks(sampleTracks()))

		rec, _ := s.Get(ctx, id)
		delete(*rec.Result, "Rock")
		rec.Progress = 3

		again, _ := s.Get(ctx, id)
		if !again.Result.Has("Rock") || again.Progress != 100 {
			t.Errorf("store state leaked through a returned copy: %+v", again)
		}
	})

	t.Run("concurrent updates stay monotonic", func(t *testing.T) {
		s := newStore(t)
		id, _ := s.CreateSnapshot(ctx, sampleTracks())
		_ = s.MarkRunning(ctx, id)

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			highest int
		)
		for p := 1; p <= 20; p++ {
			wg.Add(1)
			go func(p int) {
				defer wg.Done()
				if err := s.UpdateProgress(ctx, id, p*5, model.JobStatusRunning); err != nil {
					return
				}
				mu.Lock()
				if p*5 > highest {
					highest = p * 5
				}
				mu.Unlock()
			}(p)
		}
		wg.Wait()

		rec, _ := s.Get(ctx, id)
		if rec.Progress != highest {
			t.Errorf("Progress = %d, want %d", rec.Progress, highest)
		}
	})

	t.Run("Delete and Sweep", func(t *testing.T) {
		s := newStore(t)
		done, _ := s.CreateSnapshot(ctx, sampleTracks())
		_ = s.MarkRunning(ctx, done)
		_ = s.Fail(ctx, done, "boom")
		live, _ := s.CreateSnapshot(ctx, sampleTracks())

		n, err := s.Sweep(ctx, time.Now().Add(time.Minute))
		if err != nil {
			t.Fatalf("Sweep: %v", err)
		}
		if n < 1 {
			t.Errorf("Sweep removed %d, want at least 1", n)
		}
		if _, err := s.Get(ctx, done); !errors.Is(err, model.ErrNotFound) {
			t.Errorf("swept job still present: %v", err)
		}
		if _, err := s.Get(ctx, live); err != nil {
			t.Errorf("pending job must survive a sweep: %v", err)
		}

		if err := s.Delete(ctx, live); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if err := s.Delete(ctx, live); !errors.Is(err, model.ErrNotFound) {
			t.Errorf("second Delete: expected ErrNotFound, got %v", err)
		}
	})
}
