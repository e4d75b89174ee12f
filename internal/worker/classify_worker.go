package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/go-logr/logr"
	"github.com/hibiken/asynq"

	"github.com/genresorter/api/internal/client"
	"github.com/genresorter/api/internal/model"
	"github.com/genresorter/api/internal/store"
)

// TaskTypeClassify is the asynq task type for classification jobs.
const TaskTypeClassify = "classify:process"

// Publisher receives progress events. Implementations must not block.
type Publisher interface {
	Publish(ev model.ProgressEvent)
}

// ClassifyWorker labels a snapshot's tracks with genres and groups them.
type ClassifyWorker struct {
	store     store.Store
	resolver  client.GenreResolver
	publisher Publisher
	batchSize int
	log       logr.Logger
}

// NewClassifyWorker creates a new classify worker
func NewClassifyWorker(s store.Store, resolver client.GenreResolver, publisher Publisher, batchSize int, log logr.Logger) *ClassifyWorker {
	if batchSize < 1 {
		batchSize = 50
	}
	return &ClassifyWorker{
		store:     s,
		resolver:  resolver,
		publisher: publisher,
		batchSize: batchSize,
		log:       log.WithName("classify"),
	}
}

type classifyPayload struct {
	JobID model.JobID `json:"jobId"`
}

// NewClassifyTask builds the asynq task for a job.
func NewClassifyTask(id model.JobID) (*asynq.Task, error) {
	data, err := json.Marshal(classifyPayload{JobID: id})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeClassify, data), nil
}

// ProcessTask handles classify task processing. Jobs are never retried: a
// failed job stays failed and the client starts over with a new snapshot.
func (w *ClassifyWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload classifyPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %v: %w", err, asynq.SkipRetry)
	}
	if err := w.Run(ctx, payload.JobID); err != nil {
		return fmt.Errorf("classify job %s: %v: %w", payload.JobID, err, asynq.SkipRetry)
	}
	return nil
}

// Run classifies the job's snapshot. Progress goes to the store first and
// then to the publisher. Any error fails the job; the error is also returned.
func (w *ClassifyWorker) Run(ctx context.Context, id model.JobID) (err error) {
	log := w.log.WithValues("jobId", id)
	log.Info("starting classify job")

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("classifier panic: %v", r)
			log.Error(err, "recovered panic", "stack", string(debug.Stack()))
			w.Abort(ctx, id, err)
		}
	}()

	snap, err := w.store.Snapshot(ctx, id)
	if err != nil {
		w.Abort(ctx, id, err)
		return err
	}

	grouped, err := w.classify(ctx, id, snap.Tracks)
	if err != nil {
		w.Abort(ctx, id, err)
		return err
	}

	if err := w.store.SetResult(ctx, id, grouped); err != nil {
		w.Abort(ctx, id, fmt.Errorf("failed to save result: %w", err))
		return err
	}
	w.publisher.Publish(model.ProgressEvent{JobID: id, Percent: 100, Status: model.JobStatusCompleted})

	log.Info("classify job completed", "tracks", len(snap.Tracks), "genres", len(grouped))
	return nil
}

func (w *ClassifyWorker) classify(ctx context.Context, id model.JobID, tracks []model.Track) (model.GroupedTracks, error) {
	total := len(tracks)
	labelled := make([]model.Track, 0, total)
	artistGenres := make(map[string][]string)

	for start := 0; start < total; start += w.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("interrupted: %w", err)
		}
		end := min(start+w.batchSize, total)
		batch := tracks[start:end]

		if err := w.resolveArtists(ctx, batch, artistGenres); err != nil {
			return nil, err
		}
		for _, t := range batch {
			labels := append([]string(nil), t.Genres...)
			for _, artistID := range t.ArtistIDs {
				labels = append(labels, artistGenres[artistID]...)
			}
			t.Genres = model.NormalizeLabels(labels)
			labelled = append(labelled, t)
		}

		percent := end * 100 / total
		if err := w.store.UpdateProgress(ctx, id, percent, model.JobStatusRunning); err != nil {
			return nil, fmt.Errorf("failed to update progress: %w", err)
		}
		w.publisher.Publish(model.ProgressEvent{JobID: id, Percent: percent, Status: model.JobStatusRunning})
	}

	return model.NewGroupedTracks(labelled), nil
}

// resolveArtists fetches genres for artists in batch not seen before.
// Artists the provider does not know resolve to no genres.
func (w *ClassifyWorker) resolveArtists(ctx context.Context, batch []model.Track, known map[string][]string) error {
	var missing []string
	queued := make(map[string]struct{})
	for _, t := range batch {
		for _, artistID := range t.ArtistIDs {
			if _, ok := known[artistID]; ok {
				continue
			}
			if _, ok := queued[artistID]; ok {
				continue
			}
			queued[artistID] = struct{}{}
			missing = append(missing, artistID)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	genres, err := w.resolver.ArtistGenres(ctx, missing)
	if err != nil {
		return fmt.Errorf("failed to resolve artist genres: %w", err)
	}
	for _, artistID := range missing {
		known[artistID] = genres[artistID]
		if known[artistID] == nil {
			known[artistID] = []string{}
		}
	}
	return nil
}

// Abort fails the job and publishes the terminal event. A job that already
// reached a terminal state is left alone.
func (w *ClassifyWorker) Abort(ctx context.Context, id model.JobID, cause error) {
	ctx = context.WithoutCancel(ctx)
	reason := cause.Error()
	if err := w.store.Fail(ctx, id, reason); err != nil {
		if !errors.Is(err, model.ErrInvalidTransition) {
			w.log.Error(err, "failed to mark job as failed", "jobId", id)
		}
		return
	}
	w.log.Info("classify job failed", "jobId", id, "reason", reason)

	rec, err := w.store.Get(ctx, id)
	if err != nil {
		w.publisher.Publish(model.ProgressEvent{JobID: id, Status: model.JobStatusFailed, Error: reason})
		return
	}
	w.publisher.Publish(model.EventFromRecord(rec))
}
