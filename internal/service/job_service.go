package service

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/genresorter/api/internal/model"
	"github.com/genresorter/api/internal/store"
	"github.com/genresorter/api/internal/worker"
)

// JobService starts classification jobs and serves their state and results.
type JobService struct {
	store      store.Store
	publisher  worker.Publisher
	dispatcher worker.Dispatcher
	log        logr.Logger
}

func NewJobService(s store.Store, publisher worker.Publisher, dispatcher worker.Dispatcher, log logr.Logger) *JobService {
	return &JobService{
		store:      s,
		publisher:  publisher,
		dispatcher: dispatcher,
		log:        log.WithName("jobs"),
	}
}

// StartJob marks a pending job running and hands it to a worker. It returns
// once the job is dispatched, not when it finishes.
func (s *JobService) StartJob(ctx context.Context, id model.JobID) (*model.StartJobResponse, error) {
	if err := s.store.MarkRunning(ctx, id); err != nil {
		return nil, err
	}
	s.publisher.Publish(model.ProgressEvent{JobID: id, Percent: 0, Status: model.JobStatusRunning})

	if err := s.dispatcher.Dispatch(ctx, id); err != nil {
		reason := fmt.Sprintf("failed to dispatch job: %v", err)
		if ferr := s.store.Fail(context.WithoutCancel(ctx), id, reason); ferr != nil {
			s.log.Error(ferr, "failed to mark job as failed", "jobId", id)
		} else {
			s.publisher.Publish(model.ProgressEvent{JobID: id, Status: model.JobStatusFailed, Error: reason})
		}
		return nil, fmt.Errorf("failed to dispatch job: %w", err)
	}

	s.log.Info("job started", "jobId", id)
	return &model.StartJobResponse{JobID: id, Status: model.JobStatusRunning}, nil
}

// Record returns a copy of the job record.
func (s *JobService) Record(ctx context.Context, id model.JobID) (*model.JobRecord, error) {
	return s.store.Get(ctx, id)
}

// GetStatus returns the current status of a job
func (s *JobService) GetStatus(ctx context.Context, id model.JobID) (*model.JobStatusResponse, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return model.NewJobStatusResponse(rec), nil
}

// Result returns the grouped tracks of a completed job.
func (s *JobService) Result(ctx context.Context, id model.JobID) (model.GroupedTracks, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch rec.Status {
	case model.JobStatusCompleted:
		return *rec.Result, nil
	case model.JobStatusFailed:
		reason := ""
		if rec.Error != nil {
			reason = *rec.Error
		}
		return nil, fmt.Errorf("%w: %s", model.ErrJobFailed, reason)
	default:
		return nil, fmt.Errorf("%w: job is %s", model.ErrResultNotReady, rec.Status)
	}
}

// GetGenres returns the genre labels of a completed job with display names
// and counts.
func (s *JobService) GetGenres(ctx context.Context, id model.JobID) (*model.GenresResponse, error) {
	grouped, err := s.Result(ctx, id)
	if err != nil {
		return nil, err
	}
	return model.NewGenresResponse(id, grouped), nil
}
