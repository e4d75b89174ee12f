package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/hibiken/asynq"
	"golang.org/x/sync/semaphore"

	"github.com/genresorter/api/internal/model"
)

// QueueClassify is the asynq queue classification tasks run on.
const QueueClassify = "classify"

// Dispatcher hands a started job to a worker and returns without waiting.
type Dispatcher interface {
	Dispatch(ctx context.Context, id model.JobID) error
}

// LocalDispatcher runs jobs on goroutines of this process, at most
// concurrency at a time. Jobs beyond that wait for a slot.
type LocalDispatcher struct {
	worker *ClassifyWorker
	sem    *semaphore.Weighted
	base   context.Context
	wg     sync.WaitGroup
	log    logr.Logger
}

// NewLocalDispatcher creates a dispatcher whose jobs live as long as base.
func NewLocalDispatcher(base context.Context, w *ClassifyWorker, concurrency int, log logr.Logger) *LocalDispatcher {
	if concurrency < 1 {
		concurrency = 1
	}
	return &LocalDispatcher{
		worker: w,
		sem:    semaphore.NewWeighted(int64(concurrency)),
		base:   base,
		log:    log.WithName("dispatcher"),
	}
}

// Dispatch starts the job in the background. The request context is not
// used by the job, so it keeps running after the request returns.
func (d *LocalDispatcher) Dispatch(ctx context.Context, id model.JobID) error {
	if err := d.base.Err(); err != nil {
		return fmt.Errorf("dispatcher stopped: %w", err)
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.sem.Acquire(d.base, 1); err != nil {
			d.worker.Abort(d.base, id, fmt.Errorf("interrupted before start: %w", err))
			return
		}
		defer d.sem.Release(1)

		if err := d.worker.Run(d.base, id); err != nil {
			d.log.V(1).Info("job ended with error", "jobId", id, "error", err.Error())
		}
	}()
	return nil
}

// Wait blocks until every dispatched job has returned.
func (d *LocalDispatcher) Wait() {
	d.wg.Wait()
}

// AsynqDispatcher enqueues jobs for the asynq server.
type AsynqDispatcher struct {
	client    *asynq.Client
	timeout   time.Duration
	retention time.Duration
}

func NewAsynqDispatcher(client *asynq.Client, timeout, retention time.Duration) *AsynqDispatcher {
	return &AsynqDispatcher{
		client:    client,
		timeout:   timeout,
		retention: retention,
	}
}

func (d *AsynqDispatcher) Dispatch(ctx context.Context, id model.JobID) error {
	task, err := NewClassifyTask(id)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	opts := []asynq.Option{
		asynq.Queue(QueueClassify),
		asynq.MaxRetry(0),
		asynq.TaskID(string(id)),
	}
	if d.timeout > 0 {
		opts = append(opts, asynq.Timeout(d.timeout))
	}
	if d.retention > 0 {
		opts = append(opts, asynq.Retention(d.retention))
	}

	if _, err := d.client.EnqueueContext(ctx, task, opts...); err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}
